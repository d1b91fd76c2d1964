// Package mysql implements a MySQL storage.Engine on top of database/sql and
// github.com/go-sql-driver/mysql.
//
// MySQL commits DDL implicitly, so a failed ingestion may leave a created or
// widened table behind even though its rows and registry record roll back.
// The table is then reused by the next ingestion.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"dashboard/internal/storage"
	myddl "dashboard/internal/storage/mysql/ddl"
)

// Config holds MySQL engine configuration.
type Config struct {
	DSN      string
	MaxConns int
}

// NewEngine parses the DSN, forces parseTime so DATETIME columns scan as
// time.Time, opens a pool and verifies connectivity.
func NewEngine(ctx context.Context, cfg Config) (*storage.SQLEngine, error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql dsn: %w", err)
	}
	mc.ParseTime = true

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("mysql: connector: %w", err)
	}
	db := sql.OpenDB(connector)
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storage.WrapErr("mysql", "ping", err, isConnError)
	}
	return storage.NewSQLEngine(db, myddl.Dialect{}, isConnError), nil
}

// isConnError recognizes driver-level connection loss and server-side
// connection refusals.
func isConnError(err error) bool {
	if errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case 1040, // too many connections
			1045, // access denied
			1049: // unknown database
			return true
		}
	}
	return false
}
