// Package postgres implements a Postgres storage.Engine using pgx v5. Bulk
// inserts use COPY (pgx CopyFrom), inside the caller's transaction when one
// is open.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	gddl "dashboard/internal/ddl"
	"dashboard/internal/storage"
	pgddl "dashboard/internal/storage/postgres/ddl"
)

// Config holds Postgres engine configuration.
type Config struct {
	DSN      string // connection string for pgxpool
	MaxConns int32  // zero keeps the pgxpool default
}

// pgConn is the subset shared by *pgxpool.Pool and pgx.Tx.
type pgConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Engine is a Postgres-backed storage.Engine.
type Engine struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

var (
	_ storage.Engine = (*Engine)(nil)
	_ storage.Copier = (*querier)(nil)
)

// NewEngine opens a connection pool and verifies connectivity.
func NewEngine(ctx context.Context, cfg Config) (*Engine, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, storage.WrapErr("postgres", "pgxpool", err, isConnError)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storage.WrapErr("postgres", "ping", err, isConnError)
	}
	return &Engine{pool: pool}, nil
}

func (e *Engine) Dialect() gddl.Dialect { return pgddl.Dialect{} }

func (e *Engine) querier() (*querier, error) {
	if e.closed.Load() {
		return nil, fmt.Errorf("postgres: %w: engine closed", storage.ErrUnavailable)
	}
	return &querier{c: e.pool}, nil
}

func (e *Engine) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	q, err := e.querier()
	if err != nil {
		return 0, err
	}
	return q.Exec(ctx, sql, args...)
}

func (e *Engine) Query(ctx context.Context, sql string, args ...any) (storage.ResultSet, error) {
	q, err := e.querier()
	if err != nil {
		return storage.ResultSet{}, err
	}
	return q.Query(ctx, sql, args...)
}

func (e *Engine) Columns(ctx context.Context, table string) ([]string, error) {
	q, err := e.querier()
	if err != nil {
		return nil, err
	}
	return q.Columns(ctx, table)
}

func (e *Engine) InsertID(ctx context.Context, table string, cols []string, args ...any) (int64, error) {
	q, err := e.querier()
	if err != nil {
		return 0, err
	}
	return q.InsertID(ctx, table, cols, args...)
}

// InTx runs fn inside a pgx transaction. DDL is transactional in Postgres, so
// a failed ingestion leaves no partially created or altered table behind.
func (e *Engine) InTx(ctx context.Context, fn func(ctx context.Context, q storage.Querier) error) error {
	if e.closed.Load() {
		return fmt.Errorf("postgres: %w: engine closed", storage.ErrUnavailable)
	}
	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storage.WrapErr("postgres", "begin tx", err, isConnError)
	}
	if err := fn(ctx, &querier{c: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return storage.WrapErr("postgres", "commit", err, isConnError)
	}
	return nil
}

func (e *Engine) Ping(ctx context.Context) error {
	if e.closed.Load() {
		return fmt.Errorf("postgres: %w: engine closed", storage.ErrUnavailable)
	}
	return storage.WrapErr("postgres", "ping", e.pool.Ping(ctx), isConnError)
}

func (e *Engine) Close() {
	if e.closed.CompareAndSwap(false, true) {
		e.pool.Close()
	}
}

// querier implements storage.Querier and storage.Copier over a pool or tx.
type querier struct {
	c pgConn
}

func (q *querier) Dialect() gddl.Dialect { return pgddl.Dialect{} }

func (q *querier) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	if strings.TrimSpace(sql) == "" {
		return 0, nil
	}
	tag, err := q.c.Exec(ctx, sql, args...)
	if err != nil {
		return 0, storage.WrapErr("postgres", "exec", err, isConnError)
	}
	return tag.RowsAffected(), nil
}

func (q *querier) Query(ctx context.Context, sql string, args ...any) (storage.ResultSet, error) {
	rows, err := q.c.Query(ctx, sql, args...)
	if err != nil {
		return storage.ResultSet{}, storage.WrapErr("postgres", "query", err, isConnError)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	rs := storage.ResultSet{Columns: make([]string, len(fds))}
	for i, fd := range fds {
		rs.Columns[i] = fd.Name
	}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return storage.ResultSet{}, storage.WrapErr("postgres", "scan", err, isConnError)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return storage.ResultSet{}, storage.WrapErr("postgres", "rows", err, isConnError)
	}
	return rs, nil
}

func (q *querier) Columns(ctx context.Context, table string) ([]string, error) {
	rs, err := q.Query(ctx, pgddl.Dialect{}.ColumnsQuery(), table)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rs.Rows))
	for _, r := range rs.Rows {
		if s, ok := r[0].(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (q *querier) InsertID(ctx context.Context, table string, cols []string, args ...any) (int64, error) {
	if len(cols) == 0 || len(cols) != len(args) {
		return 0, fmt.Errorf("postgres: insert %s: %d columns for %d values", table, len(cols), len(args))
	}
	d := pgddl.Dialect{}
	stmt, _ := d.InsertReturningID(gddl.QuoteFQN(d, table), gddl.QuoteAll(d, cols), d.QuoteIdent("id"))
	rs, err := q.Query(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	if len(rs.Rows) != 1 {
		return 0, fmt.Errorf("postgres: insert %s: no id returned", table)
	}
	return storage.AsInt64(rs.Rows[0][0])
}

// CopyFrom streams rows with the COPY protocol.
func (q *querier) CopyFrom(ctx context.Context, table string, cols []string, rows [][]any) (int64, error) {
	n, err := q.c.CopyFrom(ctx, identifier(table), cols, pgx.CopyFromRows(rows))
	if err != nil {
		return n, storage.WrapErr("postgres", "copy", err, isConnError)
	}
	return n, nil
}

// identifier splits a possibly schema-qualified name into a pgx.Identifier.
func identifier(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	out := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// isConnError recognizes pgx connection failures.
func isConnError(err error) bool {
	var ce *pgconn.ConnectError
	if errors.As(err, &ce) {
		return true
	}
	return pgconn.SafeToRetry(err)
}
