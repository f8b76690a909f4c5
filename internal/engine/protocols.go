package engine

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"protodesk/internal/domain"
	"protodesk/internal/events"
	"protodesk/internal/repo"
)

func (e Engine) GetProtocol(ctx context.Context, id int64) (domain.Protocol, error) {
	p, err := e.Repo.GetProtocol(ctx, id)
	return p, storageErr("get protocol", err)
}

func (e Engine) ListProtocols(ctx context.Context, f repo.ProtocolFilters) ([]domain.Protocol, error) {
	if f.StatusID != 0 {
		if _, err := e.Statuses.Get(f.StatusID); err != nil {
			return nil, err
		}
	}
	ps, err := e.Repo.ListProtocols(ctx, f)
	return ps, storageErr("list protocols", err)
}

// ProtocolUpdateOptions carries field edits; nil fields are left unchanged. ClearDates
// removes both optional dates.
type ProtocolUpdateOptions struct {
	ID                 int64
	Title              *string
	Description        *string
	AssignedTo         *int64
	Priority           *string
	DateRequired       *time.Time
	ExpectedCompletion *time.Time
	ClearDates         bool
	ActorID            int64
}

// UpdateProtocol edits protocol attributes. Status is changed only through ChangeStatus,
// so edits add nothing to the event log.
func (e Engine) UpdateProtocol(ctx context.Context, opts ProtocolUpdateOptions) (domain.Protocol, error) {
	if err := requireActor(opts.ActorID); err != nil {
		return domain.Protocol{}, err
	}
	unlock := e.lockProtocol(opts.ID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Protocol{}, storageErr("begin", err)
	}
	defer tx.Rollback()
	r := e.Repo.WithTx(tx)

	p, err := r.GetProtocol(ctx, opts.ID)
	if err != nil {
		return domain.Protocol{}, storageErr("get protocol", err)
	}
	if opts.Title != nil {
		p.Title = strings.TrimSpace(*opts.Title)
		if p.Title == "" {
			return domain.Protocol{}, &domain.ValidationError{Field: "title", Reason: "is required"}
		}
	}
	if opts.Description != nil {
		p.Description = strings.TrimSpace(*opts.Description)
		if p.Description == "" {
			return domain.Protocol{}, &domain.ValidationError{Field: "description", Reason: "is required"}
		}
	}
	if opts.Priority != nil {
		if p.Priority, err = domain.ParsePriority(*opts.Priority); err != nil {
			return domain.Protocol{}, err
		}
	}
	if opts.AssignedTo != nil {
		if _, err := r.GetPersonnel(ctx, *opts.AssignedTo); err != nil {
			if errorsIsNotFound(err) {
				return domain.Protocol{}, &domain.ValidationError{Field: "assigned_to", Reason: "unknown personnel"}
			}
			return domain.Protocol{}, storageErr("get personnel", err)
		}
		p.AssignedTo = *opts.AssignedTo
	}
	if opts.ClearDates {
		p.DateRequired = nil
		p.ExpectedCompletion = nil
	}
	if opts.DateRequired != nil {
		p.DateRequired = opts.DateRequired
	}
	if opts.ExpectedCompletion != nil {
		p.ExpectedCompletion = opts.ExpectedCompletion
	}
	p.UpdatedAt = e.now()
	if err := r.UpdateProtocolFields(ctx, p); err != nil {
		return domain.Protocol{}, storageErr("update protocol", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Protocol{}, storageErr("commit", err)
	}
	return p, nil
}

// DeleteProtocol removes a protocol whose log holds nothing beyond the initial status
// assignment. Protocols with recorded history are kept.
func (e Engine) DeleteProtocol(ctx context.Context, id, actorID int64) error {
	if err := requireActor(actorID); err != nil {
		return err
	}
	unlock := e.lockProtocol(id)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer tx.Rollback()
	n, err := events.Count(ctx, tx, id)
	if err != nil {
		return storageErr("count events", err)
	}
	if n > 1 {
		return &domain.ValidationError{Field: "protocol_id", Reason: "protocol has recorded history and cannot be deleted"}
	}
	if err := e.Repo.WithTx(tx).DeleteProtocol(ctx, id); err != nil {
		return storageErr("delete protocol", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	e.log().Info("protocol deleted", zap.Int64("protocol_id", id), zap.Int64("actor_id", actorID))
	return nil
}

// StatusCounts returns the number of protocols per status id.
func (e Engine) StatusCounts(ctx context.Context) (map[int64]int, error) {
	counts, err := e.Repo.CountProtocolsByStatus(ctx)
	return counts, storageErr("count protocols", err)
}
