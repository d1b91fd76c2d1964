// Package schema derives physical table definitions for uploaded datasets
// and computes the additive changes needed when a later upload introduces
// new columns.
//
// Every dataset table has the same envelope: a storage-generated "id"
// primary key, one nullable text column per data column, and created_at /
// updated_at timestamps defaulting to the current time. Data columns never
// carry a narrower type; see InferKinds for the advisory classification.
package schema

import (
	"fmt"
	"strings"

	"dashboard/internal/ddl"
	"dashboard/internal/naming"
)

// Synthesizer renders schema statements for one SQL dialect. It is stateless
// and safe for concurrent use.
type Synthesizer struct {
	d ddl.Dialect
}

// New returns a Synthesizer for d.
func New(d ddl.Dialect) Synthesizer { return Synthesizer{d: d} }

// Columns returns the normalized, deduplicated data columns for raw labels
// in first-seen order.
func Columns(raw []string) []string {
	return naming.Dedup(naming.Columns(raw))
}

// DefineTable builds the definition and CREATE statement for a new dataset
// table. table and columns are normalized; columns are also deduplicated.
// The statement is a no-op when the table already exists.
func (s Synthesizer) DefineTable(table string, columns []string) (ddl.TableDef, string, error) {
	table, err := tableIdent(table)
	if err != nil {
		return ddl.TableDef{}, "", err
	}
	cols := Columns(columns)
	if len(cols) == 0 {
		return ddl.TableDef{}, "", fmt.Errorf("schema: table %s needs at least one data column", table)
	}

	def := ddl.TableDef{FQN: table}
	def.Columns = append(def.Columns, ddl.ColumnDef{Name: naming.IDColumn, Identity: true})
	for _, c := range cols {
		def.Columns = append(def.Columns, s.dataColumn(c))
	}
	def.Columns = append(def.Columns,
		ddl.ColumnDef{Name: naming.CreatedAtColumn, SQLType: s.d.MapType("timestamp"), Default: "CURRENT_TIMESTAMP"},
		ddl.ColumnDef{Name: naming.UpdatedAtColumn, SQLType: s.d.MapType("timestamp"), Default: "CURRENT_TIMESTAMP"},
	)

	stmt, err := ddl.BuildCreateTableSQL(s.d, def)
	if err != nil {
		return ddl.TableDef{}, "", fmt.Errorf("schema: %w", err)
	}
	return def, stmt, nil
}

// EvolveTable returns one ADD COLUMN statement per incoming column missing
// from existing, plus the added names in incoming order. existing holds
// physical names; incoming holds raw labels and is normalized. An empty result
// means the table already covers incoming. Columns are never dropped,
// renamed or retyped.
func (s Synthesizer) EvolveTable(table string, existing, incoming []string) (stmts, added []string, err error) {
	if table, err = tableIdent(table); err != nil {
		return nil, nil, err
	}
	have := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		have[c] = struct{}{}
	}
	for _, c := range Columns(incoming) {
		if _, ok := have[c]; ok {
			continue
		}
		have[c] = struct{}{}
		stmt, err := ddl.BuildAddColumnSQL(s.d, table, s.dataColumn(c))
		if err != nil {
			return nil, nil, fmt.Errorf("schema: %w", err)
		}
		stmts = append(stmts, stmt)
		added = append(added, c)
	}
	return stmts, added, nil
}

// tableIdent normalizes a table name. Blank names are rejected rather than
// mapped to the normalizer fallback.
func tableIdent(table string) (string, error) {
	if strings.TrimSpace(table) == "" {
		return "", fmt.Errorf("schema: empty table name")
	}
	n := naming.Normalize(table)
	if !naming.Valid(n) {
		return "", fmt.Errorf("schema: invalid table name %q", table)
	}
	return n, nil
}

func (s Synthesizer) dataColumn(name string) ddl.ColumnDef {
	return ddl.ColumnDef{Name: name, SQLType: s.d.MapType("text"), Nullable: true}
}
