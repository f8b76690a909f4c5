package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"protodesk/internal/domain"
	"protodesk/internal/repo"
)

// CreateAPIKey issues a key for an existing personnel record. The plaintext key is only
// returned here; storage keeps its hash.
func (e Engine) CreateAPIKey(ctx context.Context, actorID int64, name string) (domain.APIKey, string, error) {
	if _, err := e.Repo.GetPersonnel(ctx, actorID); err != nil {
		if errorsIsNotFound(err) {
			return domain.APIKey{}, "", &domain.ValidationError{Field: "actor_id", Reason: "unknown personnel"}
		}
		return domain.APIKey{}, "", storageErr("get personnel", err)
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	secret := "pd_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: e.now(),
	}
	if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
		return domain.APIKey{}, "", storageErr("insert api key", err)
	}
	return key, secret, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, actorID int64) ([]domain.APIKey, error) {
	keys, err := e.Repo.ListAPIKeys(ctx, actorID)
	return keys, storageErr("list api keys", err)
}

func (e Engine) RevokeAPIKey(ctx context.Context, id string) error {
	return storageErr("delete api key", e.Repo.DeleteAPIKey(ctx, id))
}
