// Package ddl contains the Postgres SQL dialect: identifier quoting, $n
// placeholders, type mapping and the catalog query used for introspection.
package ddl

import (
	"fmt"
	"strings"

	gddl "dashboard/internal/ddl"
)

// Dialect implements gddl.Dialect for Postgres.
type Dialect struct{}

var _ gddl.Dialect = Dialect{}

func (Dialect) Name() string { return "postgres" }

// QuoteIdent quotes an identifier with double quotes, doubling embedded ones.
//
//	name     -> "name"
//	we"ird   -> "we""ird"
func (Dialect) QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func (Dialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

// MaxParams is the wire protocol limit on bind parameters per statement.
func (Dialect) MaxParams() int { return 65535 }

// MapType normalizes a loosely-specified logical type into a Postgres SQL type.
//
//	"int"/"integer"/"bigint"  -> BIGINT
//	"bool"/"boolean"          -> BOOLEAN
//	"date"                    -> DATE
//	"timestamp"/"timestamptz" -> TIMESTAMPTZ
//	everything else           -> TEXT
func (Dialect) MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int", "integer", "bigint":
		return "BIGINT"
	case "bool", "boolean":
		return "BOOLEAN"
	case "date":
		return "DATE"
	case "timestamp", "timestamptz":
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func (d Dialect) IdentityColumn(name string) string {
	return d.QuoteIdent(name) + " BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
}

func (Dialect) CreateTable(quotedTable, body string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", quotedTable, body)
}

func (Dialect) AddColumn(quotedTable, columnDef string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s", quotedTable, columnDef)
}

// ColumnsQuery resolves the table in the session's current schema.
func (Dialect) ColumnsQuery() string {
	return `SELECT column_name FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1
ORDER BY ordinal_position`
}

func (d Dialect) InsertReturningID(quotedTable string, quotedCols []string, idCol string) (string, bool) {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		quotedTable, strings.Join(quotedCols, ", "), gddl.Placeholders(d, 1, len(quotedCols)), idCol), true
}
