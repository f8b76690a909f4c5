package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"protodesk/internal/config"
	"protodesk/internal/db"
	"protodesk/internal/engine"
	"protodesk/internal/migrate"
	"protodesk/internal/repo"
	"protodesk/internal/status"
	"protodesk/internal/storage"
)

// Context is the wired set of collaborators for one workspace.
type Context struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Engine    engine.Engine
	Logger    *zap.Logger
}

func (c *Context) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// Open migrates the workspace database, seeds statuses from protodesk.yml on first use and
// builds the status registry from the stored rows.
func Open(ctx context.Context, workspace string, logger *zap.Logger) (*Context, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			conn.Close()
		}
	}()
	version, err := migrate.Migrate(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	reg, err := loadRegistry(ctx, repo.Repo{DB: conn}, cfg, logger)
	if err != nil {
		return nil, err
	}
	store := storage.Disk{Root: cfg.StorageRoot(workspace)}
	eng := engine.New(conn, reg, store, logger.Named("engine"))
	logger.Debug("workspace opened", zap.String("db", db.Path(workspace)), zap.Int("schema_version", version), zap.Int("statuses", len(reg.List())))
	ok = true
	return &Context{Workspace: workspace, DB: conn, Config: cfg, Engine: eng, Logger: logger}, nil
}

func loadRegistry(ctx context.Context, r repo.Repo, cfg *config.Config, logger *zap.Logger) (*status.Registry, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	seeded, err := r.SeedStatuses(ctx, tx, cfg.Statuses)
	if err != nil {
		return nil, fmt.Errorf("seed statuses: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	if seeded {
		logger.Info("seeded protocol statuses", zap.Int("count", len(cfg.Statuses)))
	}
	stored, err := r.ListStatuses(ctx)
	if err != nil {
		return nil, err
	}
	reg, err := status.New(stored, cfg.DefaultStatus)
	if err != nil {
		return nil, fmt.Errorf("status registry: %w", err)
	}
	return reg, nil
}
