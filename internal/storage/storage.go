// Package storage opens the audit repository selected by STORAGE_DRIVER.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/audit-trail/backend/internal/config"
	"github.com/audit-trail/backend/internal/db"
	"github.com/audit-trail/backend/internal/repositories"
)

// Open connects to the configured database, brings its schema up to date
// and returns the repository with a close function.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (repositories.AuditRepository, func(), error) {
	switch cfg.StorageDriver {
	case "sqlite":
		conn, err := db.OpenSQLite(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, nil, err
		}
		repo := repositories.NewSQLiteAuditRepo(conn)
		if err := repo.EnsureSchema(ctx); err != nil {
			conn.Close()
			return nil, nil, err
		}
		return repo, func() { _ = conn.Close() }, nil

	case "postgres", "":
		pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
		if err != nil {
			return nil, nil, err
		}
		if err := db.RunMigrations(ctx, pool, cfg.MigrationsDir, log); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		return repositories.NewPostgresAuditRepo(pool), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}
