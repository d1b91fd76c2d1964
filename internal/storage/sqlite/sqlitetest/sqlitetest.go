// Package sqlitetest opens throwaway SQLite engines for package tests.
package sqlitetest

import (
	"context"
	"path/filepath"
	"testing"

	"dashboard/internal/storage"
	"dashboard/internal/storage/sqlite"
)

// Open returns an engine over a fresh database file in tb.TempDir(). The
// engine is closed on cleanup.
func Open(tb testing.TB) storage.Engine {
	tb.Helper()
	eng, err := sqlite.NewEngine(context.Background(), sqlite.Config{DSN: filepath.Join(tb.TempDir(), "dashboard.db")})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	tb.Cleanup(eng.Close)
	return eng
}
