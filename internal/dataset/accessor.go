// Package dataset reads and edits the rows of dynamic tables whose columns
// are only known at runtime.
//
// Identifiers are validated against the normalizer's rules and quoted by the
// dialect; every value travels as a bound parameter.
package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"dashboard/internal/ddl"
	"dashboard/internal/metrics"
	"dashboard/internal/naming"
	"dashboard/internal/outcome"
	"dashboard/internal/registry"
	"dashboard/internal/storage"
)

const component = "dataset"

// Accessor provides generic CRUD over dynamic tables.
type Accessor struct {
	eng       storage.Engine
	reg       *registry.Registry
	log       *zap.Logger
	now       func() time.Time
	exportDir string
}

// Option configures an Accessor.
type Option func(*Accessor)

// WithClock sets the clock used for updated_at.
func WithClock(now func() time.Time) Option {
	return func(a *Accessor) { a.now = now }
}

// WithExportDir sets the directory for ExportToFile; "" means os.TempDir().
func WithExportDir(dir string) Option {
	return func(a *Accessor) { a.exportDir = dir }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(a *Accessor) {
		if log != nil {
			a.log = log
		}
	}
}

// New returns an Accessor on eng. reg may be nil.
func New(eng storage.Engine, reg *registry.Registry, opts ...Option) *Accessor {
	a := &Accessor{eng: eng, reg: reg, log: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(a)
	}
	if a.reg == nil {
		a.reg = registry.New(a.log)
	}
	return a
}

// shape describes the live columns of a table.
type shape struct {
	data       []string
	hasCreated bool
	hasUpdated bool
}

func (s shape) has(col string) bool {
	for _, c := range s.data {
		if c == col {
			return true
		}
	}
	return false
}

// column maps an update key to a data column the way ingestion maps labels.
// The exact system names (id, created_at, updated_at) address the storage
// columns and are skipped; other labels that normalize onto them, such as
// "Created At", address the renamed data column when the table has it.
func (s shape) column(key string) (string, bool) {
	n := naming.Normalize(key)
	if !naming.IsSystem(n) {
		return n, true
	}
	if strings.TrimSpace(key) == n {
		return "", false
	}
	if renamed := naming.Column(key); s.has(renamed) {
		return renamed, true
	}
	return "", false
}

// describe introspects table; ok is false when it does not exist. Data
// columns follow registry order, with any unregistered physical columns
// after them.
func (a *Accessor) describe(ctx context.Context, q storage.Querier, table string) (shape, bool, error) {
	if !naming.Valid(table) {
		return shape{}, false, nil
	}
	phys, err := q.Columns(ctx, table)
	if err != nil {
		return shape{}, false, err
	}
	if len(phys) == 0 {
		return shape{}, false, nil
	}
	var (
		s       shape
		present = make(map[string]bool, len(phys))
	)
	for _, c := range phys {
		switch strings.ToLower(c) {
		case naming.IDColumn:
		case naming.CreatedAtColumn:
			s.hasCreated = true
		case naming.UpdatedAtColumn:
			s.hasUpdated = true
		default:
			present[c] = true
		}
	}
	if desc, ok, err := a.reg.Describe(ctx, q, table); err == nil && ok {
		for _, c := range desc.Names() {
			if present[c] {
				s.data = append(s.data, c)
				delete(present, c)
			}
		}
	} else if err != nil {
		a.log.Debug("registry lookup failed, using physical order", zap.String("table", table), zap.Error(err))
	}
	for _, c := range phys {
		if present[c] {
			s.data = append(s.data, c)
		}
	}
	return s, true, nil
}

// ReadAll returns every row of table ordered by id. A missing table yields
// an empty slice.
func (a *Accessor) ReadAll(ctx context.Context, table string) (rows []Row, err error) {
	start := time.Now()
	defer func() { metrics.RecordStep(component, "read_all", err, time.Since(start)) }()

	rows, _, err = a.readAll(ctx, table)
	if err != nil {
		return nil, outcome.Wrap(outcome.KindWrite, "read_all", err)
	}
	return rows, nil
}

func (a *Accessor) readAll(ctx context.Context, table string) ([]Row, shape, error) {
	s, ok, err := a.describe(ctx, a.eng, table)
	if err != nil || !ok {
		return []Row{}, s, err
	}
	d := a.eng.Dialect()
	cols := append([]string{naming.IDColumn}, s.data...)
	if s.hasCreated {
		cols = append(cols, naming.CreatedAtColumn)
	}
	if s.hasUpdated {
		cols = append(cols, naming.UpdatedAtColumn)
	}
	rs, err := a.eng.Query(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(ddl.QuoteAll(d, cols), ", "), ddl.QuoteFQN(d, table), d.QuoteIdent(naming.IDColumn)))
	if err != nil {
		return nil, s, err
	}

	out := make([]Row, 0, len(rs.Rows))
	for _, raw := range rs.Rows {
		id, err := storage.AsInt64(raw[0])
		if err != nil {
			return nil, s, fmt.Errorf("dataset: %s id: %w", table, err)
		}
		r := Row{ID: id, Values: make(map[string]any, len(s.data)), columns: s.data}
		for i, c := range s.data {
			r.Values[c] = storage.AsText(raw[i+1])
		}
		next := len(s.data) + 1
		if s.hasCreated {
			if r.CreatedAt, err = storage.AsTime(raw[next]); err != nil {
				return nil, s, fmt.Errorf("dataset: %s row %d created_at: %w", table, id, err)
			}
			next++
		}
		if s.hasUpdated {
			if r.UpdatedAt, err = storage.AsTime(raw[next]); err != nil {
				return nil, s, fmt.Errorf("dataset: %s row %d updated_at: %w", table, id, err)
			}
		}
		out = append(out, r)
	}
	return out, s, nil
}

// UpdateRow sets the given columns of row id and stamps updated_at. Keys are
// mapped like upload labels, so "Created At" reaches data_created_at; the
// exact names id, created_at and updated_at are ignored. An update with no
// remaining keys is a successful no-op.
func (a *Accessor) UpdateRow(ctx context.Context, table string, id int64, values map[string]any) (err error) {
	const op = "update_row"
	start := time.Now()
	defer func() { metrics.RecordStep(component, op, err, time.Since(start)) }()

	err = a.eng.InTx(ctx, func(ctx context.Context, q storage.Querier) error {
		s, ok, err := a.describe(ctx, q, table)
		if err != nil {
			return err
		}
		if !ok {
			return outcome.New(outcome.KindNotFound, op, "table %q", table)
		}

		set := map[string]any{}
		for k, v := range values {
			col, ok := s.column(k)
			if !ok {
				continue
			}
			if !s.has(col) {
				return outcome.New(outcome.KindWrite, op, "unknown column %q in %s", k, table)
			}
			set[col] = storage.AsText(v)
		}
		if len(set) == 0 {
			return nil
		}

		d := q.Dialect()
		var (
			assigns []string
			args    []any
		)
		for _, c := range s.data {
			v, ok := set[c]
			if !ok {
				continue
			}
			args = append(args, v)
			assigns = append(assigns, d.QuoteIdent(c)+" = "+d.Placeholder(len(args)))
		}
		if s.hasUpdated {
			args = append(args, a.now().UTC())
			assigns = append(assigns, d.QuoteIdent(naming.UpdatedAtColumn)+" = "+d.Placeholder(len(args)))
		}
		args = append(args, id)
		stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
			ddl.QuoteFQN(d, table), strings.Join(assigns, ", "), d.QuoteIdent(naming.IDColumn), d.Placeholder(len(args)))
		n, err := q.Exec(ctx, stmt, args...)
		if err != nil {
			return err
		}
		if n == 0 {
			exists, err := rowExists(ctx, q, table, id)
			if err != nil {
				return err
			}
			if !exists {
				return outcome.New(outcome.KindNotFound, op, "row %d in %s", id, table)
			}
		}
		metrics.RecordRow(component, "updated", 1)
		return nil
	})
	return outcome.Wrap(outcome.KindWrite, op, err)
}

// DeleteRow removes row id. Deleting an absent row succeeds.
func (a *Accessor) DeleteRow(ctx context.Context, table string, id int64) (err error) {
	const op = "delete_row"
	start := time.Now()
	defer func() { metrics.RecordStep(component, op, err, time.Since(start)) }()

	err = a.eng.InTx(ctx, func(ctx context.Context, q storage.Querier) error {
		if _, ok, err := a.describe(ctx, q, table); err != nil {
			return err
		} else if !ok {
			return outcome.New(outcome.KindNotFound, op, "table %q", table)
		}
		d := q.Dialect()
		n, err := q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
			ddl.QuoteFQN(d, table), d.QuoteIdent(naming.IDColumn), d.Placeholder(1)), id)
		if err != nil {
			return err
		}
		metrics.RecordRow(component, "deleted", n)
		return nil
	})
	return outcome.Wrap(outcome.KindWrite, op, err)
}

// ExportToFile writes a CSV snapshot of table to a new temporary file and
// returns its path. The header is id, the data columns in registry order,
// then created_at and updated_at. The caller removes the file.
func (a *Accessor) ExportToFile(ctx context.Context, table string) (path string, err error) {
	const op = "export"
	start := time.Now()
	defer func() { metrics.RecordStep(component, op, err, time.Since(start)) }()

	if !naming.Valid(table) {
		return "", outcome.New(outcome.KindNotFound, op, "table %q", table)
	}
	s, ok, err := a.describe(ctx, a.eng, table)
	if err != nil {
		return "", outcome.Wrap(outcome.KindWrite, op, err)
	}
	if !ok {
		return "", outcome.New(outcome.KindNotFound, op, "table %q", table)
	}
	rows, s, err := a.readAll(ctx, table)
	if err != nil {
		return "", outcome.Wrap(outcome.KindWrite, op, err)
	}

	f, err := os.CreateTemp(a.exportDir, table+"-*.csv")
	if err != nil {
		return "", outcome.Wrap(outcome.KindWrite, op, err)
	}
	path = f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	w := csv.NewWriter(f)
	header := append(append([]string{naming.IDColumn}, s.data...), naming.CreatedAtColumn, naming.UpdatedAtColumn)
	if err = w.Write(header); err != nil {
		_ = f.Close()
		return "", outcome.Wrap(outcome.KindWrite, op, err)
	}
	rec := make([]string, len(header))
	for _, r := range rows {
		rec[0] = fmt.Sprint(r.ID)
		for i, c := range s.data {
			v, _ := r.Values[c].(string)
			rec[i+1] = v
		}
		rec[len(rec)-2] = formatTime(r.CreatedAt)
		rec[len(rec)-1] = formatTime(r.UpdatedAt)
		if err = w.Write(rec); err != nil {
			_ = f.Close()
			return "", outcome.Wrap(outcome.KindWrite, op, err)
		}
	}
	w.Flush()
	if err = w.Error(); err != nil {
		_ = f.Close()
		return "", outcome.Wrap(outcome.KindWrite, op, err)
	}
	if err = f.Close(); err != nil {
		return "", outcome.Wrap(outcome.KindWrite, op, err)
	}
	metrics.RecordRow(component, "exported", int64(len(rows)))
	a.log.Info("table exported", zap.String("table", table), zap.Int("rows", len(rows)), zap.String("path", path))
	return path, nil
}

func rowExists(ctx context.Context, q storage.Querier, table string, id int64) (bool, error) {
	d := q.Dialect()
	rs, err := q.Query(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		d.QuoteIdent(naming.IDColumn), ddl.QuoteFQN(d, table), d.QuoteIdent(naming.IDColumn), d.Placeholder(1)), id)
	if err != nil {
		return false, err
	}
	return len(rs.Rows) > 0, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
