// Package storagetest holds a backend conformance suite shared by the
// storage engine packages. SQLite runs it in unit tests; the server-backed
// engines run it behind the integration build tag.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dashboard/internal/ddl"
	"dashboard/internal/storage"
)

// Run exercises eng with a scratch table named prefix_<unix nanos>. The
// table is dropped on cleanup.
func Run(t *testing.T, eng storage.Engine, prefix string) {
	t.Helper()

	ctx := context.Background()
	d := eng.Dialect()
	table := fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())

	create, err := ddl.BuildCreateTableSQL(d, ddl.TableDef{
		FQN: table,
		Columns: []ddl.ColumnDef{
			{Name: "id", Identity: true},
			{Name: "name", SQLType: d.MapType("text"), Nullable: true},
			{Name: "created_at", SQLType: d.MapType("timestamp"), Default: "CURRENT_TIMESTAMP"},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = eng.Exec(context.Background(), "DROP TABLE "+ddl.QuoteFQN(d, table))
	})

	t.Run("create is idempotent", func(t *testing.T) {
		_, err := eng.Exec(ctx, create)
		require.NoError(t, err)
		_, err = eng.Exec(ctx, create)
		require.NoError(t, err)

		cols, err := eng.Columns(ctx, table)
		require.NoError(t, err)
		require.Equal(t, []string{"id", "name", "created_at"}, cols)
	})

	t.Run("add column is visible to introspection", func(t *testing.T) {
		add, err := ddl.BuildAddColumnSQL(d, table, ddl.ColumnDef{Name: "city", SQLType: d.MapType("text"), Nullable: true})
		require.NoError(t, err)
		_, err = eng.Exec(ctx, add)
		require.NoError(t, err)

		cols, err := eng.Columns(ctx, table)
		require.NoError(t, err)
		require.Equal(t, []string{"id", "name", "created_at", "city"}, cols)
	})

	t.Run("insert id and bulk insert in a transaction", func(t *testing.T) {
		var first int64
		err := eng.InTx(ctx, func(ctx context.Context, q storage.Querier) error {
			id, err := q.InsertID(ctx, table, []string{"name", "city"}, "Ada", "London")
			if err != nil {
				return err
			}
			first = id
			_, err = storage.InsertRows(ctx, q, table, []string{"name", "city"}, [][]any{
				{"Grace", nil},
				{"Edsger", "Nuenen"},
			})
			return err
		})
		require.NoError(t, err)
		require.Greater(t, first, int64(0))

		q := fmt.Sprintf("SELECT %s, %s, %s FROM %s ORDER BY %s",
			d.QuoteIdent("id"), d.QuoteIdent("name"), d.QuoteIdent("city"),
			ddl.QuoteFQN(d, table), d.QuoteIdent("id"))
		rs, err := eng.Query(ctx, q)
		require.NoError(t, err)
		require.Len(t, rs.Rows, 3)
		require.Equal(t, "Ada", storage.AsText(rs.Rows[0][1]))
		require.Nil(t, rs.Rows[1][2])
	})

	t.Run("failed transaction leaves no rows", func(t *testing.T) {
		boom := errors.New("boom")
		err := eng.InTx(ctx, func(ctx context.Context, q storage.Querier) error {
			if _, err := storage.InsertRows(ctx, q, table, []string{"name"}, [][]any{{"ghost"}}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = %s",
			ddl.QuoteFQN(d, table), d.QuoteIdent("name"), d.Placeholder(1))
		rs, err := eng.Query(ctx, q, "ghost")
		require.NoError(t, err)
		n, err := storage.AsInt64(rs.Rows[0][0])
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("missing table has no columns", func(t *testing.T) {
		cols, err := eng.Columns(ctx, table+"_missing")
		require.NoError(t, err)
		require.Empty(t, cols)
	})
}
