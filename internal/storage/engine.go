// Package storage defines the backend-agnostic contract between the dataset
// components and a relational engine, plus a small factory registry so that
// callers can open any registered backend by kind.
//
// Every statement is parameter-bound. Identifiers are never bound; callers
// validate them with naming.Valid and quote them through the engine's
// ddl.Dialect before splicing them into SQL.
package storage

import (
	"context"
	"errors"

	"dashboard/internal/ddl"
)

// ErrUnavailable marks failures caused by an unreachable or closed backend
// (refused connection, broken pipe, closed pool). Backends wrap such errors
// with it so that callers can fall back or report BackendUnavailable.
var ErrUnavailable = errors.New("storage backend unavailable")

// ResultSet is a fully materialized query result. Text values are always
// returned as string, never []byte.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Querier is the set of operations available both on an Engine and inside
// one of its transactions.
type Querier interface {
	// Dialect returns the SQL dialect used to render statements for this
	// backend.
	Dialect() ddl.Dialect

	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, query string, args ...any) (int64, error)

	// Query runs a statement and materializes its result.
	Query(ctx context.Context, query string, args ...any) (ResultSet, error)

	// Columns returns the physical column names of table in ordinal order.
	// An empty result means the table does not exist.
	Columns(ctx context.Context, table string) ([]string, error)

	// InsertID inserts one row and returns the generated "id".
	InsertID(ctx context.Context, table string, cols []string, args ...any) (int64, error)
}

// Engine is an open connection (pool) to a relational backend.
type Engine interface {
	Querier

	// InTx runs fn inside a transaction. The transaction commits when fn
	// returns nil and rolls back otherwise. fn must only use the Querier it
	// is given.
	InTx(ctx context.Context, fn func(ctx context.Context, q Querier) error) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying pool. Calls after Close fail with
	// ErrUnavailable.
	Close()
}

// Copier is implemented by queriers that have a dedicated bulk-load
// primitive (Postgres COPY). InsertRows prefers it when available.
type Copier interface {
	CopyFrom(ctx context.Context, table string, cols []string, rows [][]any) (int64, error)
}
