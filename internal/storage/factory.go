package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Config is the backend-agnostic connection configuration.
type Config struct {
	// Kind selects the backend: "postgres", "sqlite", "mssql" or "mysql".
	Kind string
	// DSN is passed to the backend driver unchanged.
	DSN string
	// MaxConns caps the pool size; zero keeps the driver default. SQLite
	// always uses a single connection.
	MaxConns int
	// Logger receives connection lifecycle messages; nil means no logging.
	Logger *zap.Logger
}

// Factory opens an Engine for a given Config.
type Factory func(ctx context.Context, cfg Config) (Engine, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the Factory for kind. Backend packages call
// it from init.
func Register(kind string, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[strings.ToLower(kind)] = f
}

// New opens an Engine for cfg.Kind. The backend package must have been
// imported (see storage/all).
func New(ctx context.Context, cfg Config) (Engine, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	factoryMu.RLock()
	f, ok := factories[kind]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown kind %q (registered: %s)", cfg.Kind, strings.Join(ListKinds(), ", "))
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return f(ctx, cfg)
}

// ListKinds returns the registered backend kinds in sorted order.
func ListKinds() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
