// This adapter wires the MSSQL backend into the storage-agnostic factory.

package mssql

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

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Engine, error) {
		eng, err := newEngine(ctx, Config{DSN: cfg.DSN, MaxConns: cfg.MaxConns})
		if err != nil {
			return nil, err
		}
		cfg.Logger.Debug("storage opened", zap.String("kind", "mssql"))
		return eng, nil
	})
}
