package postgres

import (
	"context"

	"go.uber.org/zap"

	"dashboard/internal/storage"
)

// newEngine is a test hook that points to NewEngine by default.
// Tests may replace this variable to avoid real DB connections.
var newEngine = func(ctx context.Context, cfg Config) (storage.Engine, error) {
	return NewEngine(ctx, cfg)
}

// init registers the "postgres" backend with the storage factory.
//
// Typical usage:
//
//	eng, err := storage.New(ctx, storage.Config{Kind: "postgres", DSN: dsn})
//	defer eng.Close()
func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Engine, error) {
		eng, err := newEngine(ctx, Config{DSN: cfg.DSN, MaxConns: int32(cfg.MaxConns)})
		if err != nil {
			return nil, err
		}
		cfg.Logger.Debug("storage opened", zap.String("kind", "postgres"))
		return eng, nil
	})
}
