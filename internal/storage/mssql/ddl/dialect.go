// Package ddl contains the SQL Server dialect.
//
// It uses SQL Server-style identifier quoting ([schema].[table]) and wraps
// CREATE TABLE in an IF OBJECT_ID(...) IS NULL guard since T-SQL does not
// support CREATE TABLE IF NOT EXISTS.
package ddl

import (
	"fmt"
	"strings"

	gddl "dashboard/internal/ddl"
)

// Dialect implements gddl.Dialect for SQL Server.
type Dialect struct{}

var _ gddl.Dialect = Dialect{}

func (Dialect) Name() string { return "mssql" }

// QuoteIdent quotes a single identifier segment using bracket syntax,
// escaping any closing brackets.
//
//	name      -> [name]
//	weird]id  -> [weird]]id]
func (Dialect) QuoteIdent(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

func (Dialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

// MaxParams is the server's per-request parameter limit.
func (Dialect) MaxParams() int { return 2100 }

// MapType maps a logical type string into a SQL Server column type. Unknown
// or empty kinds fall back to NVARCHAR(MAX); "identifier" is bounded so it can
// carry a UNIQUE constraint.
func (Dialect) MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int", "integer", "bigint":
		return "BIGINT"
	case "bool", "boolean":
		return "BIT"
	case "date":
		return "DATE"
	case "timestamp", "datetime", "timestamptz":
		return "DATETIME2"
	case "float", "double", "numeric", "decimal":
		return "DECIMAL(38, 10)"
	case "identifier":
		return "NVARCHAR(128)"
	default:
		return "NVARCHAR(MAX)"
	}
}

func (d Dialect) IdentityColumn(name string) string {
	return d.QuoteIdent(name) + " BIGINT IDENTITY(1,1) PRIMARY KEY"
}

// CreateTable renders:
//
//	IF OBJECT_ID(N'[table]', N'U') IS NULL
//	BEGIN
//	  CREATE TABLE [table] (
//	    ...
//	  );
//	END;
func (Dialect) CreateTable(quotedTable, body string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL\nBEGIN\n  CREATE TABLE %s (\n    %s\n  );\nEND;",
		strings.ReplaceAll(quotedTable, "'", "''"),
		quotedTable,
		strings.ReplaceAll(body, "\n  ", "\n    "),
	)
}

// AddColumn uses T-SQL's ADD without the COLUMN keyword.
func (Dialect) AddColumn(quotedTable, columnDef string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s", quotedTable, columnDef)
}

func (Dialect) ColumnsQuery() string {
	return `SELECT COLUMN_NAME FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = SCHEMA_NAME() AND TABLE_NAME = @p1
ORDER BY ORDINAL_POSITION`
}

// InsertReturningID uses an OUTPUT clause.
func (d Dialect) InsertReturningID(quotedTable string, quotedCols []string, idCol string) (string, bool) {
	return fmt.Sprintf("INSERT INTO %s (%s) OUTPUT INSERTED.%s VALUES (%s)",
		quotedTable, strings.Join(quotedCols, ", "), idCol, gddl.Placeholders(d, 1, len(quotedCols))), true
}
