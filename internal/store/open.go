package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
	"go.uber.org/zap"
)

// Open builds the history store selected by cfg. The returned close function
// releases any connections and is never nil.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (schemas.HistoryStore, func(), error) {
	switch cfg.Type {
	case "", config.StoreMemory:
		return NewMemoryStore(), func() {}, nil
	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.URL)
		if err != nil {
			return nil, func() {}, fmt.Errorf("failed to create connection pool: %w", err)
		}
		s, err := New(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		logger.Info("Using PostgreSQL run history store.")
		return s, pool.Close, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
