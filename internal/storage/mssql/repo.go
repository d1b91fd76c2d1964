// Package mssql implements a Microsoft SQL Server storage.Engine on top of
// database/sql and github.com/microsoft/go-mssqldb.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	mssqldb "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"dashboard/internal/storage"
	msddl "dashboard/internal/storage/mssql/ddl"
)

// Config holds MSSQL engine configuration.
type Config struct {
	DSN      string
	MaxConns int
}

// NewEngine validates the DSN, opens a pool and verifies connectivity.
func NewEngine(ctx context.Context, cfg Config) (*storage.SQLEngine, error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql: sql.Open: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storage.WrapErr("mssql", "ping", err, isConnError)
	}
	return storage.NewSQLEngine(db, msddl.Dialect{}, isConnError), nil
}

// isConnError treats server-side login and connection-limit failures as
// unavailability.
func isConnError(err error) bool {
	var se mssqldb.Error
	if errors.As(err, &se) {
		switch se.Number {
		case 18456, // login failed
			4060,  // cannot open database
			10928, // resource limit reached
			40613: // database unavailable
			return true
		}
	}
	return false
}
