package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	"dashboard/internal/ddl"
)

// sqlConn is the subset of *sql.DB and *sql.Tx used by sqlQuerier.
type sqlConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SQLEngine is an Engine over database/sql. The sqlite, mssql and mysql
// backends share it and differ only in their ddl.Dialect and Classifier.
type SQLEngine struct {
	db       *sql.DB
	dialect  ddl.Dialect
	classify Classifier
	closed   atomic.Bool
}

var _ Engine = (*SQLEngine)(nil)

// NewSQLEngine wraps an open *sql.DB. classify may be nil.
func NewSQLEngine(db *sql.DB, d ddl.Dialect, classify Classifier) *SQLEngine {
	return &SQLEngine{db: db, dialect: d, classify: classify}
}

// DB exposes the underlying pool for backend-specific setup.
func (e *SQLEngine) DB() *sql.DB { return e.db }

func (e *SQLEngine) Dialect() ddl.Dialect { return e.dialect }

func (e *SQLEngine) querier() (*sqlQuerier, error) {
	if e.closed.Load() {
		return nil, errClosed(e.dialect.Name())
	}
	return &sqlQuerier{c: e.db, d: e.dialect, classify: e.classify}, nil
}

func (e *SQLEngine) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	q, err := e.querier()
	if err != nil {
		return 0, err
	}
	return q.Exec(ctx, query, args...)
}

func (e *SQLEngine) Query(ctx context.Context, query string, args ...any) (ResultSet, error) {
	q, err := e.querier()
	if err != nil {
		return ResultSet{}, err
	}
	return q.Query(ctx, query, args...)
}

func (e *SQLEngine) Columns(ctx context.Context, table string) ([]string, error) {
	q, err := e.querier()
	if err != nil {
		return nil, err
	}
	return q.Columns(ctx, table)
}

func (e *SQLEngine) InsertID(ctx context.Context, table string, cols []string, args ...any) (int64, error) {
	q, err := e.querier()
	if err != nil {
		return 0, err
	}
	return q.InsertID(ctx, table, cols, args...)
}

// InTx implements Engine.InTx on a database/sql transaction.
func (e *SQLEngine) InTx(ctx context.Context, fn func(ctx context.Context, q Querier) error) error {
	if e.closed.Load() {
		return errClosed(e.dialect.Name())
	}
	name := e.dialect.Name()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return WrapErr(name, "begin tx", err, e.classify)
	}
	if err := fn(ctx, &sqlQuerier{c: tx, d: e.dialect, classify: e.classify}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return WrapErr(name, "commit", err, e.classify)
	}
	return nil
}

func (e *SQLEngine) Ping(ctx context.Context) error {
	if e.closed.Load() {
		return errClosed(e.dialect.Name())
	}
	return WrapErr(e.dialect.Name(), "ping", e.db.PingContext(ctx), e.classify)
}

func (e *SQLEngine) Close() {
	if e.closed.CompareAndSwap(false, true) {
		_ = e.db.Close()
	}
}

// sqlQuerier implements Querier over a *sql.DB or *sql.Tx.
type sqlQuerier struct {
	c        sqlConn
	d        ddl.Dialect
	classify Classifier
}

func (q *sqlQuerier) Dialect() ddl.Dialect { return q.d }

func (q *sqlQuerier) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if strings.TrimSpace(query) == "" {
		return 0, nil
	}
	res, err := q.c.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, WrapErr(q.d.Name(), "exec", err, q.classify)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (q *sqlQuerier) Query(ctx context.Context, query string, args ...any) (ResultSet, error) {
	rows, err := q.c.QueryContext(ctx, query, args...)
	if err != nil {
		return ResultSet{}, WrapErr(q.d.Name(), "query", err, q.classify)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return ResultSet{}, WrapErr(q.d.Name(), "columns", err, q.classify)
	}
	rs := ResultSet{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return ResultSet{}, WrapErr(q.d.Name(), "scan", err, q.classify)
		}
		for i, v := range vals {
			vals[i] = normalizeValue(v)
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return ResultSet{}, WrapErr(q.d.Name(), "rows", err, q.classify)
	}
	return rs, nil
}

func (q *sqlQuerier) Columns(ctx context.Context, table string) ([]string, error) {
	rs, err := q.Query(ctx, q.d.ColumnsQuery(), table)
	if err != nil {
		return nil, err
	}
	return firstColumnStrings(rs), nil
}

func (q *sqlQuerier) InsertID(ctx context.Context, table string, cols []string, args ...any) (int64, error) {
	if len(cols) == 0 || len(cols) != len(args) {
		return 0, fmt.Errorf("%s: insert %s: %d columns for %d values", q.d.Name(), table, len(cols), len(args))
	}
	qt := ddl.QuoteFQN(q.d, table)
	qc := ddl.QuoteAll(q.d, cols)
	if stmt, ok := q.d.InsertReturningID(qt, qc, q.d.QuoteIdent("id")); ok {
		rs, err := q.Query(ctx, stmt, args...)
		if err != nil {
			return 0, err
		}
		if len(rs.Rows) != 1 || len(rs.Rows[0]) == 0 {
			return 0, fmt.Errorf("%s: insert %s: no id returned", q.d.Name(), table)
		}
		return AsInt64(rs.Rows[0][0])
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qt, strings.Join(qc, ", "), ddl.Placeholders(q.d, 1, len(cols)))
	res, err := q.c.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, WrapErr(q.d.Name(), "insert", err, q.classify)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s: last insert id: %w", q.d.Name(), err)
	}
	return id, nil
}

// normalizeValue converts driver byte slices into strings so that callers see
// one representation for text regardless of backend.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func firstColumnStrings(rs ResultSet) []string {
	out := make([]string, 0, len(rs.Rows))
	for _, r := range rs.Rows {
		if len(r) == 0 || r[0] == nil {
			continue
		}
		out = append(out, fmt.Sprint(r[0]))
	}
	return out
}
