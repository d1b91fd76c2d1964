// Package ddl contains the MySQL dialect.
package ddl

import (
	"fmt"
	"strings"

	gddl "dashboard/internal/ddl"
)

// Dialect implements gddl.Dialect for MySQL/MariaDB.
type Dialect struct{}

var _ gddl.Dialect = Dialect{}

func (Dialect) Name() string { return "mysql" }

// QuoteIdent quotes with backticks, doubling embedded ones.
func (Dialect) QuoteIdent(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) MaxParams() int { return 65535 }

// MapType maps a logical type into a MySQL column type. Free text is
// LONGTEXT; "identifier" is a bounded VARCHAR so it can be indexed.
func (Dialect) MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int", "integer", "bigint":
		return "BIGINT"
	case "bool", "boolean":
		return "TINYINT(1)"
	case "date":
		return "DATE"
	case "timestamp", "datetime", "timestamptz":
		return "DATETIME"
	case "identifier":
		return "VARCHAR(64)"
	default:
		return "LONGTEXT"
	}
}

func (d Dialect) IdentityColumn(name string) string {
	return d.QuoteIdent(name) + " BIGINT AUTO_INCREMENT PRIMARY KEY"
}

func (Dialect) CreateTable(quotedTable, body string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", quotedTable, body)
}

func (Dialect) AddColumn(quotedTable, columnDef string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quotedTable, columnDef)
}

func (Dialect) ColumnsQuery() string {
	return `SELECT COLUMN_NAME FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`
}

// InsertReturningID reports false: MySQL has no RETURNING, callers use the
// driver's LastInsertId.
func (Dialect) InsertReturningID(string, []string, string) (string, bool) {
	return "", false
}
