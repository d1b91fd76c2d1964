package ddl

// Dialect captures the handful of places where SQL backends disagree:
// identifier quoting, bind placeholders, type names, identity columns and
// the guards around CREATE/ALTER. Backend packages under internal/storage
// provide one implementation each.
type Dialect interface {
	// Name is the storage kind, e.g. "postgres".
	Name() string

	// QuoteIdent quotes a single identifier segment, escaping embedded
	// quote characters.
	QuoteIdent(id string) string

	// Placeholder returns the bind placeholder for the n-th (1-based)
	// parameter of a statement.
	Placeholder(n int) string

	// MaxParams is the largest number of bind parameters a single statement
	// may carry.
	MaxParams() int

	// MapType maps a logical kind ("text", "timestamp", "bigint") to the
	// backend column type.
	MapType(kind string) string

	// IdentityColumn renders the full definition of a generated primary key
	// column, e.g. `"id" BIGSERIAL PRIMARY KEY`.
	IdentityColumn(name string) string

	// CreateTable wraps a rendered column list into a CREATE TABLE statement
	// that is a no-op when the table already exists.
	CreateTable(quotedTable, body string) string

	// AddColumn renders an ALTER TABLE statement adding one column.
	AddColumn(quotedTable, columnDef string) string

	// ColumnsQuery returns a query taking the bare table name as its only
	// parameter and yielding the column names in ordinal order.
	ColumnsQuery() string

	// InsertReturningID renders an INSERT that yields the generated id as a
	// single-row result. ok is false when the backend has no such syntax and
	// callers must fall back to the driver's last-insert-id.
	InsertReturningID(quotedTable string, quotedCols []string, idCol string) (sql string, ok bool)
}
