// Package ddl defines a small, backend-agnostic model for SQL DDL and helpers
// to render CREATE TABLE / ALTER TABLE statements from that model.
//
// Rendering is driven by a Dialect: identifiers are always quoted by the
// dialect, identity columns are rendered by the dialect, and the "create only
// if missing" guard is the dialect's choice (IF NOT EXISTS, OBJECT_ID, ...).
// ColumnDef.Default is emitted as raw SQL; callers only ever pass constant
// expressions such as CURRENT_TIMESTAMP there.
package ddl

import (
	"fmt"
	"strings"
)

// BuildCreateTableSQL renders a CREATE TABLE statement for t using d.
//
// Rules:
//
//   - t.FQN must be non-empty; each dotted segment is quoted separately.
//
//   - Each column must have a non-empty Name and, unless it is an Identity
//     column, a non-empty SQLType.
//
//   - A column is rendered as:
//
//     <quoted Name> <SQLType> [NOT NULL] [UNIQUE] [DEFAULT <Default>]
//
//   - Identity columns are rendered by d.IdentityColumn and carry their own
//     PRIMARY KEY; remaining PrimaryKey columns are collected into a separate
//     PRIMARY KEY (...) clause.
func BuildCreateTableSQL(d Dialect, t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("%s ddl: table FQN must not be empty", d.Name())
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("%s ddl: at least one column is required", d.Name())
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, 1)
	seen := make(map[string]struct{}, len(t.Columns))

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("%s ddl: column with empty name in table %s", d.Name(), fqn)
		}
		if _, dup := seen[name]; dup {
			return "", fmt.Errorf("%s ddl: duplicate column %s in table %s", d.Name(), name, fqn)
		}
		seen[name] = struct{}{}

		if c.Identity {
			cols = append(cols, d.IdentityColumn(name))
			continue
		}

		def, err := ColumnSQL(d, c)
		if err != nil {
			return "", err
		}
		cols = append(cols, def)

		if c.PrimaryKey {
			pks = append(pks, d.QuoteIdent(name))
		}
	}

	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	return d.CreateTable(QuoteFQN(d, fqn), strings.Join(cols, ",\n  ")), nil
}

// BuildAddColumnSQL renders an ALTER TABLE ... ADD statement for c.
func BuildAddColumnSQL(d Dialect, table string, c ColumnDef) (string, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return "", fmt.Errorf("%s ddl: table FQN must not be empty", d.Name())
	}
	if c.Identity || c.PrimaryKey {
		return "", fmt.Errorf("%s ddl: cannot add key column %s to existing table %s", d.Name(), c.Name, table)
	}
	def, err := ColumnSQL(d, c)
	if err != nil {
		return "", err
	}
	return d.AddColumn(QuoteFQN(d, table), def), nil
}

// ColumnSQL renders a single non-identity column definition.
func ColumnSQL(d Dialect, c ColumnDef) (string, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return "", fmt.Errorf("%s ddl: column with empty name", d.Name())
	}
	typ := strings.TrimSpace(c.SQLType)
	if typ == "" {
		return "", fmt.Errorf("%s ddl: column %s missing SQLType", d.Name(), name)
	}

	var sb strings.Builder
	sb.WriteString(d.QuoteIdent(name))
	sb.WriteByte(' ')
	sb.WriteString(typ)

	if !c.Nullable || c.PrimaryKey {
		sb.WriteString(" NOT NULL")
	}
	if c.Unique && !c.PrimaryKey {
		sb.WriteString(" UNIQUE")
	}
	if def := strings.TrimSpace(c.Default); def != "" {
		sb.WriteString(" DEFAULT ")
		sb.WriteString(def)
	}
	return sb.String(), nil
}

// QuoteFQN quotes a possibly schema-qualified name such as "public.events".
// Empty segments are ignored.
func QuoteFQN(d Dialect, fqn string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, d.QuoteIdent(p))
	}
	return strings.Join(out, ".")
}

// QuoteAll maps names to their quoted forms.
func QuoteAll(d Dialect, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = d.QuoteIdent(n)
	}
	return out
}

// Placeholders renders n comma-separated placeholders numbered from start.
func Placeholders(d Dialect, start, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = d.Placeholder(start + i)
	}
	return strings.Join(ps, ", ")
}
