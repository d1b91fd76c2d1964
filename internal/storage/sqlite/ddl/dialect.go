// Package ddl contains the SQLite SQL dialect.
//
// SQLite supports dynamic typing, so the type mapping prefers canonical
// affinities; timestamps are declared DATETIME and stored as ISO-8601 text.
package ddl

import (
	"fmt"
	"strings"

	gddl "dashboard/internal/ddl"
)

// Dialect implements gddl.Dialect for SQLite.
type Dialect struct{}

var _ gddl.Dialect = Dialect{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func (Dialect) Placeholder(int) string { return "?" }

// MaxParams is SQLITE_MAX_VARIABLE_NUMBER for SQLite >= 3.32.
func (Dialect) MaxParams() int { return 32766 }

// MapType maps a logical type string (e.g., "int", "bool", "date") into a
// SQLite column type:
//   - integer-ish types -> INTEGER
//   - boolean          -> INTEGER (0/1)
//   - date/time        -> DATETIME (ISO-8601 text)
//   - others           -> TEXT
func (Dialect) MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int", "integer", "bigint", "bool", "boolean":
		return "INTEGER"
	case "float", "double", "real":
		return "REAL"
	case "numeric", "decimal":
		return "NUMERIC"
	case "date", "timestamp", "datetime", "timestamptz":
		return "DATETIME"
	case "blob", "bytes":
		return "BLOB"
	default:
		return "TEXT"
	}
}

func (d Dialect) IdentityColumn(name string) string {
	return d.QuoteIdent(name) + " INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (Dialect) CreateTable(quotedTable, body string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", quotedTable, body)
}

func (Dialect) AddColumn(quotedTable, columnDef string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quotedTable, columnDef)
}

func (Dialect) ColumnsQuery() string {
	return "SELECT name FROM pragma_table_info(?) ORDER BY cid"
}

// InsertReturningID uses RETURNING (SQLite >= 3.35).
func (d Dialect) InsertReturningID(quotedTable string, quotedCols []string, idCol string) (string, bool) {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		quotedTable, strings.Join(quotedCols, ", "), gddl.Placeholders(d, 1, len(quotedCols)), idCol), true
}
