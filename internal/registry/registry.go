// Package registry records which physical table backs which page and the
// ordered list of data columns each table carries.
//
// The metadata lives in the dynamic_table relation next to the dataset
// tables themselves. Every method takes the storage.Querier to run on, so
// that ingestion can update the metadata in the same transaction as the DDL
// and the rows it describes.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"dashboard/internal/ddl"
	"dashboard/internal/naming"
	"dashboard/internal/storage"
)

// Table is the metadata relation.
const Table = "dynamic_table"

var (
	// ErrNotRegistered is returned when a table has no metadata record.
	ErrNotRegistered = errors.New("registry: table not registered")
	// ErrOwnedByOtherPage is returned when registering a table name that
	// already belongs to a different page.
	ErrOwnedByOtherPage = errors.New("registry: table belongs to another page")
)

// Column describes one data column of a dataset table.
type Column struct {
	Name string `json:"name"`
	// Kind is the storage kind; always "text".
	Kind string `json:"kind"`
	// Inferred is the advisory kind from the first batch that introduced the
	// column, for display only.
	Inferred string `json:"inferred,omitempty"`
}

// Descriptor is the metadata record of one dataset table.
type Descriptor struct {
	ID        int64     `json:"id"`
	Table     string    `json:"table_name"`
	PageID    int64     `json:"page_id"`
	Columns   []Column  `json:"columns"`
	CreatedAt time.Time `json:"created_at"`
}

// Names returns the column names in order.
func (d Descriptor) Names() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// TextColumns builds text Columns for names, attaching inferred kinds where
// given (inferred may be nil or shorter than names).
func TextColumns(names, inferred []string) []Column {
	out := make([]Column, len(names))
	for i, n := range names {
		out[i] = Column{Name: n, Kind: "text"}
		if i < len(inferred) {
			out[i].Inferred = inferred[i]
		}
	}
	return out
}

// Registry reads and writes dynamic_table.
type Registry struct {
	log *zap.Logger
}

// New returns a Registry. A nil logger disables logging.
func New(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{log: log}
}

// EnsureSchema creates dynamic_table when missing.
func (r *Registry) EnsureSchema(ctx context.Context, q storage.Querier) error {
	d := q.Dialect()
	stmt, err := ddl.BuildCreateTableSQL(d, ddl.TableDef{
		FQN: Table,
		Columns: []ddl.ColumnDef{
			{Name: "id", Identity: true},
			{Name: "table_name", SQLType: d.MapType("identifier"), Unique: true},
			{Name: "page_id", SQLType: d.MapType("bigint")},
			{Name: "columns_info", SQLType: d.MapType("text")},
			{Name: "created_at", SQLType: d.MapType("timestamp"), Default: "CURRENT_TIMESTAMP"},
		},
	})
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	if _, err := q.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("registry: ensure schema: %w", err)
	}
	return nil
}

// Exists reports whether table is present in the engine catalog.
func (r *Registry) Exists(ctx context.Context, q storage.Querier, table string) (bool, error) {
	cols, err := q.Columns(ctx, table)
	if err != nil {
		return false, fmt.Errorf("registry: introspect %s: %w", table, err)
	}
	return len(cols) > 0, nil
}

// ColumnsOf returns the data columns of table in physical order, excluding
// id, created_at and updated_at. A missing table yields an empty slice.
func (r *Registry) ColumnsOf(ctx context.Context, q storage.Querier, table string) ([]string, error) {
	cols, err := q.Columns(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("registry: introspect %s: %w", table, err)
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if naming.IsSystem(strings.ToLower(c)) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Register records table as the dataset of pageID with cols. If a record
// already exists for the same page, cols are appended to it (see Extend).
func (r *Registry) Register(ctx context.Context, q storage.Querier, table string, pageID int64, cols []Column) (Descriptor, error) {
	cur, ok, err := r.Describe(ctx, q, table)
	if err != nil {
		return Descriptor{}, err
	}
	if ok {
		if cur.PageID != pageID {
			return Descriptor{}, fmt.Errorf("%w: %s is owned by page %d", ErrOwnedByOtherPage, table, cur.PageID)
		}
		return r.extend(ctx, q, cur, cols)
	}

	info, err := encodeColumns(mergeColumns(nil, cols))
	if err != nil {
		return Descriptor{}, err
	}
	id, err := q.InsertID(ctx, Table, []string{"table_name", "page_id", "columns_info"}, table, pageID, info)
	if err != nil {
		return Descriptor{}, fmt.Errorf("registry: register %s: %w", table, err)
	}
	r.log.Debug("registry: table registered", zap.String("table", table), zap.Int64("page_id", pageID), zap.Int("columns", len(cols)))
	return Descriptor{ID: id, Table: table, PageID: pageID, Columns: mergeColumns(nil, cols)}, nil
}

// Extend appends cols not yet recorded for table, keeping the existing order.
// It returns ErrNotRegistered when table has no record.
func (r *Registry) Extend(ctx context.Context, q storage.Querier, table string, cols []Column) (Descriptor, error) {
	cur, ok, err := r.Describe(ctx, q, table)
	if err != nil {
		return Descriptor{}, err
	}
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrNotRegistered, table)
	}
	return r.extend(ctx, q, cur, cols)
}

func (r *Registry) extend(ctx context.Context, q storage.Querier, cur Descriptor, cols []Column) (Descriptor, error) {
	merged := mergeColumns(cur.Columns, cols)
	if len(merged) == len(cur.Columns) {
		return cur, nil
	}
	info, err := encodeColumns(merged)
	if err != nil {
		return Descriptor{}, err
	}
	d := q.Dialect()
	stmt := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
		d.QuoteIdent(Table), d.QuoteIdent("columns_info"), d.Placeholder(1),
		d.QuoteIdent("id"), d.Placeholder(2))
	if _, err := q.Exec(ctx, stmt, info, cur.ID); err != nil {
		return Descriptor{}, fmt.Errorf("registry: extend %s: %w", cur.Table, err)
	}
	r.log.Debug("registry: columns appended", zap.String("table", cur.Table), zap.Int("added", len(merged)-len(cur.Columns)))
	cur.Columns = merged
	return cur, nil
}

// Describe returns the record for table; ok is false when there is none.
func (r *Registry) Describe(ctx context.Context, q storage.Querier, table string) (Descriptor, bool, error) {
	return r.one(ctx, q, "table_name", table)
}

// ForPage returns the record bound to pageID; ok is false when there is none.
func (r *Registry) ForPage(ctx context.Context, q storage.Querier, pageID int64) (Descriptor, bool, error) {
	return r.one(ctx, q, "page_id", pageID)
}

// List returns every record ordered by id.
func (r *Registry) List(ctx context.Context, q storage.Querier) ([]Descriptor, error) {
	d := q.Dialect()
	rs, err := q.Query(ctx, selectSQL(d)+" ORDER BY "+d.QuoteIdent("id"))
	if err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	out := make([]Descriptor, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		desc, err := decodeRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, desc)
	}
	return out, nil
}

// Forget deletes the records of pageID. The dataset table itself is left in
// place.
func (r *Registry) Forget(ctx context.Context, q storage.Querier, pageID int64) (int64, error) {
	d := q.Dialect()
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", d.QuoteIdent(Table), d.QuoteIdent("page_id"), d.Placeholder(1))
	n, err := q.Exec(ctx, stmt, pageID)
	if err != nil {
		return 0, fmt.Errorf("registry: forget page %d: %w", pageID, err)
	}
	return n, nil
}

func (r *Registry) one(ctx context.Context, q storage.Querier, col string, val any) (Descriptor, bool, error) {
	d := q.Dialect()
	stmt := fmt.Sprintf("%s WHERE %s = %s ORDER BY %s", selectSQL(d), d.QuoteIdent(col), d.Placeholder(1), d.QuoteIdent("id"))
	rs, err := q.Query(ctx, stmt, val)
	if err != nil {
		return Descriptor{}, false, fmt.Errorf("registry: lookup %s=%v: %w", col, val, err)
	}
	if len(rs.Rows) == 0 {
		return Descriptor{}, false, nil
	}
	desc, err := decodeRow(rs.Rows[0])
	if err != nil {
		return Descriptor{}, false, err
	}
	return desc, true, nil
}

func selectSQL(d ddl.Dialect) string {
	return fmt.Sprintf("SELECT %s FROM %s",
		strings.Join(ddl.QuoteAll(d, []string{"id", "table_name", "page_id", "columns_info", "created_at"}), ", "),
		d.QuoteIdent(Table))
}

func decodeRow(row []any) (Descriptor, error) {
	var (
		desc Descriptor
		err  error
	)
	if desc.ID, err = storage.AsInt64(row[0]); err != nil {
		return Descriptor{}, fmt.Errorf("registry: id: %w", err)
	}
	desc.Table, _ = storage.AsText(row[1]).(string)
	if desc.PageID, err = storage.AsInt64(row[2]); err != nil {
		return Descriptor{}, fmt.Errorf("registry: page_id: %w", err)
	}
	info, _ := storage.AsText(row[3]).(string)
	if desc.Columns, err = DecodeColumns(info); err != nil {
		return Descriptor{}, fmt.Errorf("registry: columns_info of %s: %w", desc.Table, err)
	}
	if desc.CreatedAt, err = storage.AsTime(row[4]); err != nil {
		return Descriptor{}, fmt.Errorf("registry: created_at of %s: %w", desc.Table, err)
	}
	return desc, nil
}

// DecodeColumns parses a columns_info document. Both the current object form
// and the legacy plain list of names are accepted.
func DecodeColumns(info string) ([]Column, error) {
	info = strings.TrimSpace(info)
	if info == "" || info == "null" {
		return nil, nil
	}
	var cols []Column
	if err := json.Unmarshal([]byte(info), &cols); err == nil {
		for i := range cols {
			if cols[i].Kind == "" {
				cols[i].Kind = "text"
			}
		}
		return cols, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(info), &names); err != nil {
		return nil, err
	}
	return TextColumns(names, nil), nil
}

func encodeColumns(cols []Column) (string, error) {
	if cols == nil {
		cols = []Column{}
	}
	b, err := json.Marshal(cols)
	if err != nil {
		return "", fmt.Errorf("registry: encode columns: %w", err)
	}
	return string(b), nil
}

// mergeColumns appends the entries of add whose names are not in base.
func mergeColumns(base, add []Column) []Column {
	out := make([]Column, 0, len(base)+len(add))
	seen := make(map[string]struct{}, len(base)+len(add))
	for _, c := range append(append([]Column{}, base...), add...) {
		if _, ok := seen[c.Name]; ok {
			continue
		}
		seen[c.Name] = struct{}{}
		if c.Kind == "" {
			c.Kind = "text"
		}
		out = append(out, c)
	}
	return out
}
