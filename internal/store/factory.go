package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/relist-cli/api/schemas"
	"github.com/xkilldash9x/relist-cli/internal/config"
)

// Open builds the key-value store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (schemas.KeyValueStore, error) {
	switch cfg.Backend {
	case config.StoreBackendFile, "":
		return NewFile(cfg.Dir, cfg.Namespace, logger)
	case config.StoreBackendSQLite:
		return NewSQLite(ctx, cfg.Path, cfg.Namespace, logger)
	case config.StoreBackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		s, err := New(ctx, pool, cfg.Namespace, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}
