package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"dashboard/internal/storage"
	"dashboard/internal/storage/sqlite/sqlitetest"
)

func newRegistry(t *testing.T) (*Registry, storage.Engine) {
	t.Helper()
	eng := sqlitetest.Open(t)
	r := New(nil)
	require.NoError(t, r.EnsureSchema(context.Background(), eng))
	return r, eng
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	t.Parallel()

	r, eng := newRegistry(t)
	require.NoError(t, r.EnsureSchema(context.Background(), eng))

	cols, err := eng.Columns(context.Background(), Table)
	require.NoError(t, err)
	require.Equal(t, []string{"id", "table_name", "page_id", "columns_info", "created_at"}, cols)
}

func TestRegisterDescribeExtend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, eng := newRegistry(t)

	_, ok, err := r.Describe(ctx, eng, "page_1_orders")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = r.Extend(ctx, eng, "page_1_orders", TextColumns([]string{"a"}, nil))
	require.True(t, errors.Is(err, ErrNotRegistered), "Extend on unknown table: %v", err)

	desc, err := r.Register(ctx, eng, "page_1_orders", 1, TextColumns([]string{"customer", "amount"}, []string{"text", "integer"}))
	require.NoError(t, err)
	require.Equal(t, []string{"customer", "amount"}, desc.Names())

	desc, err = r.Extend(ctx, eng, "page_1_orders", TextColumns([]string{"amount", "region"}, nil))
	require.NoError(t, err)
	require.Equal(t, []string{"customer", "amount", "region"}, desc.Names())

	got, ok, err := r.Describe(ctx, eng, "page_1_orders")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), got.PageID)
	require.False(t, got.CreatedAt.IsZero())
	want := []Column{
		{Name: "customer", Kind: "text", Inferred: "text"},
		{Name: "amount", Kind: "text", Inferred: "integer"},
		{Name: "region", Kind: "text"},
	}
	if diff := cmp.Diff(want, got.Columns); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}

	byPage, ok, err := r.ForPage(ctx, eng, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "page_1_orders", byPage.Table)
}

func TestRegisterIsUpsertForSamePage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, eng := newRegistry(t)

	_, err := r.Register(ctx, eng, "page_2_x", 2, TextColumns([]string{"a"}, nil))
	require.NoError(t, err)
	desc, err := r.Register(ctx, eng, "page_2_x", 2, TextColumns([]string{"b"}, nil))
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, desc.Names())

	all, err := r.List(ctx, eng)
	require.NoError(t, err)
	require.Len(t, all, 1)

	_, err = r.Register(ctx, eng, "page_2_x", 3, TextColumns([]string{"c"}, nil))
	require.ErrorIs(t, err, ErrOwnedByOtherPage)
}

func TestColumnsOfSkipsSystemColumns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, eng := newRegistry(t)
	_, err := eng.Exec(ctx, `CREATE TABLE "page_3_t" ("id" INTEGER PRIMARY KEY, "b" TEXT, "a" TEXT, "created_at" DATETIME, "updated_at" DATETIME)`)
	require.NoError(t, err)

	cols, err := r.ColumnsOf(ctx, eng, "page_3_t")
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, cols)

	ok, err := r.Exists(ctx, eng, "page_3_t")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.Exists(ctx, eng, "page_3_missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestForgetAndList(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, eng := newRegistry(t)
	for i, name := range []string{"page_1_a", "page_2_b", "page_3_c"} {
		_, err := r.Register(ctx, eng, name, int64(i+1), TextColumns([]string{"x"}, nil))
		require.NoError(t, err)
	}

	n, err := r.Forget(ctx, eng, 2)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	all, err := r.List(ctx, eng)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "page_1_a", all[0].Table)
	require.Equal(t, "page_3_c", all[1].Table)
}

func TestRegistryWritesRollBackWithTransaction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, eng := newRegistry(t)

	boom := errors.New("insert failed")
	err := eng.InTx(ctx, func(ctx context.Context, q storage.Querier) error {
		if _, err := r.Register(ctx, q, "page_9_z", 9, TextColumns([]string{"a"}, nil)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, ok, err := r.Describe(ctx, eng, "page_9_z")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDecodeColumns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []Column
	}{
		{"empty", "", nil},
		{"legacy names", `["a","b"]`, []Column{{Name: "a", Kind: "text"}, {Name: "b", Kind: "text"}}},
		{"objects", `[{"name":"a","kind":"text","inferred":"date"}]`, []Column{{Name: "a", Kind: "text", Inferred: "date"}}},
		{"objects without kind", `[{"name":"a"}]`, []Column{{Name: "a", Kind: "text"}}},
	}
	for _, tt := range tests {
		got, err := DecodeColumns(tt.in)
		if err != nil {
			t.Fatalf("%s: DecodeColumns() error = %v", tt.name, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Fatalf("%s: mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
	if _, err := DecodeColumns(`{"not":"a list"}`); err == nil {
		t.Fatalf("DecodeColumns(object) error = nil")
	}
}
