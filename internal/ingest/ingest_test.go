package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"dashboard/internal/archive"
	"dashboard/internal/catalog"
	"dashboard/internal/dataset"
	"dashboard/internal/degraded"
	"dashboard/internal/outcome"
	"dashboard/internal/registry"
	"dashboard/internal/storage"
	"dashboard/internal/storage/sqlite/sqlitetest"
)

type fixture struct {
	eng   storage.Engine
	reg   *registry.Registry
	store *catalog.Store
	page  catalog.Page
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	eng := sqlitetest.Open(t)
	reg := registry.New(nil)
	store := catalog.NewStore(eng, reg, nil)
	require.NoError(t, store.EnsureSchema(ctx))
	sec, err := store.CreateSection(ctx, "Sales")
	require.NoError(t, err)
	pg, err := store.CreatePage(ctx, "Orders", catalog.Dataset, sec.ID, nil)
	require.NoError(t, err)
	return fixture{eng: eng, reg: reg, store: store, page: pg}
}

func (f fixture) pipeline(opts ...Option) *Pipeline {
	return New(f.eng, f.reg, f.store, opts...)
}

func csvSource(name, body string) Source {
	return Source{Name: name, Reader: strings.NewReader(body)}
}

func readValues(t *testing.T, f fixture, table string, cols ...string) [][]any {
	t.Helper()
	rows, err := dataset.New(f.eng, f.reg).ReadAll(context.Background(), table)
	require.NoError(t, err)
	out := make([][]any, len(rows))
	for i, r := range rows {
		vals := []any{r.ID}
		for _, c := range cols {
			vals = append(vals, r.Values[c])
		}
		out[i] = vals
	}
	return out
}

func TestIngestCreatesThenEvolves(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	p := f.pipeline()

	res, err := p.Ingest(ctx, csvSource("orders.csv", "Customer Name,Order-Total\nalice,10\nbob,20\n"), catalog.NewPersisted(f.page))
	require.NoError(t, err)
	require.Equal(t, "page_1_orders", res.Table)
	require.True(t, res.Created)
	require.Equal(t, []string{"customer_name", "order_total"}, res.ColumnsAdded)
	require.EqualValues(t, 2, res.RowsInserted)

	desc, ok, err := f.reg.Describe(ctx, f.eng, res.Table)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, f.page.ID, desc.PageID)
	require.Equal(t, []string{"customer_name", "order_total"}, desc.Names())
	require.Equal(t, "integer", desc.Columns[1].Inferred)

	bound, err := f.store.Page(ctx, f.page.ID)
	require.NoError(t, err)
	require.Equal(t, res.Table, bound.TableName)

	// A stale page reference resolves to the same table.
	res, err = p.Ingest(ctx, csvSource("more.csv", "Order-Total,Region\n30,EU\n40,US\n"), catalog.NewPersisted(f.page))
	require.NoError(t, err)
	require.False(t, res.Created)
	require.Equal(t, []string{"region"}, res.ColumnsAdded)

	want := [][]any{
		{int64(1), "alice", "10", nil},
		{int64(2), "bob", "20", nil},
		{int64(3), nil, "30", "EU"},
		{int64(4), nil, "40", "US"},
	}
	if diff := cmp.Diff(want, readValues(t, f, res.Table, "customer_name", "order_total", "region")); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}

	cols, err := f.reg.ColumnsOf(ctx, f.eng, res.Table)
	require.NoError(t, err)
	require.Equal(t, []string{"customer_name", "order_total", "region"}, cols)
}

func TestIngestSameFileTwiceKeepsSchema(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	p := f.pipeline()
	body := "A,B\n1,2\n"

	first, err := p.Ingest(ctx, csvSource("x.csv", body), catalog.NewPersisted(f.page))
	require.NoError(t, err)
	second, err := p.Ingest(ctx, csvSource("x.csv", body), catalog.NewPersisted(f.page))
	require.NoError(t, err)

	require.False(t, second.Created)
	require.Empty(t, second.ColumnsAdded)
	require.Equal(t, first.Fingerprint, second.Fingerprint)
	require.Equal(t, fmt.Sprintf("%016x", xxh3.Hash([]byte(body))), first.Fingerprint)

	cols, err := f.reg.ColumnsOf(ctx, f.eng, first.Table)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, cols)
	require.Len(t, readValues(t, f, first.Table), 2)
}

func TestIngestBindsValuesAsParameters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	hostile := `x'); DROP TABLE pages; --`

	res, err := f.pipeline(WithBatchSize(1)).Ingest(ctx,
		csvSource("evil.csv", "Note,id\n\""+hostile+"\",7\nplain,8\n"), catalog.NewPersisted(f.page))
	require.NoError(t, err)

	want := [][]any{{int64(1), hostile, "7"}, {int64(2), "plain", "8"}}
	if diff := cmp.Diff(want, readValues(t, f, res.Table, "note", "data_id")); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
	_, err = f.store.Page(ctx, f.page.ID)
	require.NoError(t, err, "pages table must survive")
}

func TestIngestStructuredAndMergedLabels(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	body := `{"Name": "a", "NAME ": "", "qty": 1}
{"Name": "b", "NAME ": "B", "qty": 2.5}
`
	res, err := f.pipeline().Ingest(ctx, Source{Name: "items.ndjson", Reader: strings.NewReader(body)}, catalog.NewPersisted(f.page))
	require.NoError(t, err)
	require.Equal(t, []string{"name", "qty"}, res.ColumnsAdded)

	want := [][]any{{int64(1), "a", "1"}, {int64(2), "B", "2.5"}}
	if diff := cmp.Diff(want, readValues(t, f, res.Table, "name", "qty")); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestIngestErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	listPage := f.page
	listPage.Type = catalog.List

	tests := []struct {
		name string
		src  Source
		page catalog.PageRef
		opts []Option
		want error
	}{
		{"header only", csvSource("a.csv", "a,b\n"), catalog.NewPersisted(f.page), nil, outcome.ErrParse},
		{"empty file", csvSource("a.csv", ""), catalog.NewPersisted(f.page), nil, outcome.ErrParse},
		{"unknown format", Source{Name: "blob.bin", Reader: strings.NewReader("\x00\x01\x02")}, catalog.NewPersisted(f.page), nil, outcome.ErrParse},
		{"broken json", Source{Name: "a.json", Reader: strings.NewReader(`{"a":`)}, catalog.NewPersisted(f.page), nil, outcome.ErrParse},
		{"too large", csvSource("a.csv", "a\n1\n2\n"), catalog.NewPersisted(f.page), []Option{WithMaxUploadBytes(4)}, outcome.ErrParse},
		{"no reader", Source{Name: "a.csv"}, catalog.NewPersisted(f.page), nil, outcome.ErrParse},
		{"not a dataset page", csvSource("a.csv", "a\n1\n"), catalog.NewPersisted(listPage), nil, outcome.ErrSchema},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.pipeline(tt.opts...).Ingest(context.Background(), tt.src, tt.page)
			require.ErrorIs(t, err, tt.want)
		})
	}

	exists, err := f.reg.Exists(context.Background(), f.eng, "page_1_orders")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestIngestRollsBackOnRegistryConflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	_, err := f.reg.Register(ctx, f.eng, "page_1_orders", 99, registry.TextColumns([]string{"a"}, nil))
	require.NoError(t, err)

	_, err = f.pipeline().Ingest(ctx, csvSource("a.csv", "a,b\n1,2\n"), catalog.NewPersisted(f.page))
	require.ErrorIs(t, err, outcome.ErrSchema)

	exists, err := f.reg.Exists(ctx, f.eng, "page_1_orders")
	require.NoError(t, err)
	require.False(t, exists, "table must not survive a failed ingestion")

	pg, err := f.store.Page(ctx, f.page.ID)
	require.NoError(t, err)
	require.Empty(t, pg.TableName)
}

func TestIngestRollsBackWhenPageBindingFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	ghost := catalog.Page{ID: 42, Name: "Ghost", Type: catalog.Dataset}

	_, err := f.pipeline().Ingest(ctx, csvSource("a.csv", "a\n1\n"), catalog.NewPersisted(ghost))
	require.ErrorIs(t, err, outcome.ErrNotFound)

	exists, err := f.reg.Exists(ctx, f.eng, "page_42_ghost")
	require.NoError(t, err)
	require.False(t, exists)
	_, ok, err := f.reg.Describe(ctx, f.eng, "page_42_ghost")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIngestUnavailableBackend(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.eng.Close()

	_, err := f.pipeline().Ingest(context.Background(), csvSource("a.csv", "a\n1\n"), catalog.NewPersisted(f.page))
	require.ErrorIs(t, err, outcome.ErrBackendUnavailable)
	require.True(t, outcome.IsUnavailable(err))
}

func TestIngestDegradedPage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	cache := degraded.NewCache()
	scratch := cache.AddPage("Orders", catalog.Dataset, 1, nil)

	// Same id and name as the persisted page: the degraded page must not
	// share its table.
	_, err := f.pipeline().Ingest(ctx, csvSource("a.csv", "a\n1\n"), catalog.NewPersisted(f.page))
	require.NoError(t, err)
	res, err := f.pipeline(WithCache(cache)).Ingest(ctx, csvSource("a.csv", "a\n2\n"), catalog.NewDegraded(scratch))
	require.NoError(t, err)
	require.Equal(t, "page_1_orders_2", res.Table)
	require.Len(t, readValues(t, f, "page_1_orders"), 1)

	other := cache.AddPage("Scratch", catalog.Dataset, 1, nil)
	res, err = f.pipeline(WithCache(cache)).Ingest(ctx, csvSource("a.csv", "a\n3\n"), catalog.NewDegraded(other))
	require.NoError(t, err)
	require.Equal(t, "page_2_scratch", res.Table)

	cached, ok := cache.Page(other.ID)
	require.True(t, ok)
	require.Equal(t, res.Table, cached.TableName)

	desc, ok, err := f.reg.ForPage(ctx, f.eng, -other.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, res.Table, desc.Table)
}

func TestIngestLeavesDeletedPageTableAlone(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	_, err := f.pipeline().Ingest(ctx, csvSource("a.csv", "secret\nold\n"), catalog.NewPersisted(f.page))
	require.NoError(t, err)
	require.NoError(t, f.store.DeletePage(ctx, f.page.ID))

	// A backend that reuses ids hands the same id to a new page of the same
	// name.
	_, err = storage.InsertRows(ctx, f.eng, catalog.PagesTable,
		[]string{"id", "name", "page_type", "section_id"},
		[][]any{{f.page.ID, "Orders", string(catalog.Dataset), f.page.SectionID}})
	require.NoError(t, err)
	reborn, err := f.store.Page(ctx, f.page.ID)
	require.NoError(t, err)
	require.Empty(t, reborn.TableName)

	res, err := f.pipeline().Ingest(ctx, csvSource("b.csv", "a\nnew\n"), catalog.NewPersisted(reborn))
	require.NoError(t, err)
	require.Equal(t, "page_1_orders_2", res.Table)
	require.True(t, res.Created)
	require.Equal(t, [][]any{{int64(1), "new"}}, readValues(t, f, res.Table, "a"))
	require.Equal(t, [][]any{{int64(1), "old"}}, readValues(t, f, "page_1_orders", "secret"))

	pg, err := f.store.Page(ctx, reborn.ID)
	require.NoError(t, err)
	require.Equal(t, res.Table, pg.TableName)

	// Later uploads follow the binding.
	res, err = f.pipeline().Ingest(ctx, csvSource("c.csv", "a\nnewer\n"), catalog.NewPersisted(pg))
	require.NoError(t, err)
	require.Equal(t, "page_1_orders_2", res.Table)
	require.False(t, res.Created)
}

type failingArchiver struct{}

func (failingArchiver) Archive(context.Context, string, []byte) (string, error) {
	return "", errors.New("disk full")
}

func TestIngestArchivesUpload(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	local, err := archive.NewLocal(t.TempDir())
	require.NoError(t, err)

	res, err := f.pipeline(WithArchiver(local)).Ingest(ctx, csvSource("../orders.csv", "a\n1\n"), catalog.NewPersisted(f.page))
	require.NoError(t, err)
	require.NotEmpty(t, res.Archived)
	require.True(t, strings.HasSuffix(res.Archived, "-orders.csv"))
	got, err := os.ReadFile(res.Archived)
	require.NoError(t, err)
	require.Equal(t, "a\n1\n", string(got))

	res, err = f.pipeline(WithArchiver(failingArchiver{})).Ingest(ctx, csvSource("orders.csv", "a\n2\n"), catalog.NewPersisted(f.page))
	require.NoError(t, err, "archive failures never fail the ingestion")
	require.Empty(t, res.Archived)
	require.Len(t, readValues(t, f, res.Table), 2)
}

func TestIngestConcurrentSamePage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	p := f.pipeline(WithBatchSize(2))

	var (
		mu    sync.Mutex
		added []string
	)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < 4; i++ {
		i := i
		g.Go(func() error {
			body := fmt.Sprintf("shared,c%d\n1,x\n2,y\n3,z\n", i)
			res, err := p.Ingest(ctx, csvSource("f.csv", body), catalog.NewPersisted(f.page))
			if err != nil {
				return err
			}
			mu.Lock()
			added = append(added, res.ColumnsAdded...)
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Len(t, added, 5)

	cols, err := f.reg.ColumnsOf(context.Background(), f.eng, "page_1_orders")
	require.NoError(t, err)
	require.Len(t, cols, 5)
	require.ElementsMatch(t, []string{"shared", "c0", "c1", "c2", "c3"}, cols)
	require.Len(t, readValues(t, f, "page_1_orders"), 12)
}

func TestMergeLabels(t *testing.T) {
	t.Parallel()

	cols, rows := mergeLabels(
		[]string{"Name", "name ", "Näme", "Qty"},
		[][]any{
			{"a", "", "c", "1"},
			{"a", nil, "", "2"},
			{nil, nil, nil, nil},
		})
	require.Equal(t, []string{"name", "qty"}, cols)
	want := [][]any{{"c", "1"}, {"a", "2"}, {nil, nil}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}

	cols, rows = mergeLabels([]string{"id", "Value"}, [][]any{{"7", ""}})
	require.Equal(t, []string{"data_id", "value"}, cols)
	require.Equal(t, [][]any{{"7", nil}}, rows)
}

func TestTableLocksRelease(t *testing.T) {
	t.Parallel()

	var l tableLocks
	unlock := l.lock("t")
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.lock("t")()
	}()
	unlock()
	<-done

	l.mu.Lock()
	defer l.mu.Unlock()
	require.Empty(t, l.locks)
}
