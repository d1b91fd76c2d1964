// Package sqlite implements a SQLite-backed storage.Engine using database/sql
// and the pure-Go modernc.org/sqlite driver. Bulk inserts go through
// storage.InsertRows inside a transaction; SQLite has no dedicated bulk-load
// API, but transactions keep performance acceptable for moderate volumes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"

	"dashboard/internal/storage"
	sqliteddl "dashboard/internal/storage/sqlite/ddl"
)

// sqliteCantOpen is SQLITE_CANTOPEN.
const sqliteCantOpen = 14

// Config holds SQLite engine configuration.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:dashboard.db?_pragma=busy_timeout(5000)"
	//   "dashboard.db"
	DSN string
}

// NewEngine opens a SQLite database. The pool is pinned to one connection:
// SQLite serializes writers anyway, and a single connection keeps ":memory:"
// databases stable across calls.
func NewEngine(ctx context.Context, cfg Config) (*storage.SQLEngine, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply a basic ping with context to fail fast on invalid DSNs.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, storage.WrapErr("sqlite", "ping", err, isConnError)
	}

	return storage.NewSQLEngine(db, sqliteddl.Dialect{}, isConnError), nil
}

// isConnError reports SQLITE_CANTOPEN (missing directory, permissions) as a
// connection failure.
func isConnError(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqliteCantOpen
	}
	return strings.Contains(err.Error(), "unable to open database file")
}
