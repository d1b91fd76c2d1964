// Package ingest loads an uploaded tabular file into the dynamic table of a
// dataset page.
//
// One ingestion is one transaction: the table is created or evolved, the
// registry record is written, the rows are bulk inserted and the page is
// bound to its table. Any failure rolls all of it back.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"

	"dashboard/internal/archive"
	"dashboard/internal/catalog"
	"dashboard/internal/degraded"
	"dashboard/internal/metrics"
	"dashboard/internal/naming"
	"dashboard/internal/outcome"
	"dashboard/internal/parser"
	"dashboard/internal/registry"
	"dashboard/internal/schema"
	"dashboard/internal/storage"
)

const (
	component = "ingest"
	op        = "ingest"

	// DefaultMaxUploadBytes is the largest accepted upload (16 MiB).
	DefaultMaxUploadBytes int64 = 16 << 20
	// DefaultBatchSize is the number of rows per bulk insert batch.
	DefaultBatchSize = 500
)

// Source is one uploaded file.
type Source struct {
	// Name is the client file name; its extension drives format sniffing
	// and decompression.
	Name string
	// Format may be parser.FormatUnknown to sniff it.
	Format parser.Format
	Reader io.Reader
	// Sheet selects a worksheet for spreadsheets.
	Sheet string
	// Delimiter overrides delimiter sniffing for delimited text.
	Delimiter rune
}

// Result describes a successful ingestion.
type Result struct {
	Table        string   `json:"table"`
	Created      bool     `json:"created"`
	ColumnsAdded []string `json:"columns_added,omitempty"`
	RowsInserted int64    `json:"rows_inserted"`
	// Fingerprint is the xxh3 hash of the raw upload, as hex.
	Fingerprint string `json:"fingerprint"`
	// Archived is the archive location of the upload, if any.
	Archived string `json:"archived,omitempty"`
}

// Pipeline runs ingestions against one engine.
type Pipeline struct {
	eng      storage.Engine
	reg      *registry.Registry
	store    *catalog.Store
	cache    *degraded.Cache
	archiver archive.Archiver
	log      *zap.Logger

	batchSize int
	maxBytes  int64
	locks     tableLocks
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// WithBatchSize sets the rows per insert batch; n <= 0 keeps the default.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithMaxUploadBytes sets the upload size limit; n <= 0 keeps the default.
func WithMaxUploadBytes(n int64) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxBytes = n
		}
	}
}

// WithArchiver retains raw uploads after commit.
func WithArchiver(a archive.Archiver) Option {
	return func(p *Pipeline) {
		if a != nil {
			p.archiver = a
		}
	}
}

// WithCache binds degraded pages to their tables in c after commit.
func WithCache(c *degraded.Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// New returns a Pipeline. store binds persisted pages to their tables and
// must share eng.
func New(eng storage.Engine, reg *registry.Registry, store *catalog.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		eng:       eng,
		reg:       reg,
		store:     store,
		archiver:  archive.Nop{},
		log:       zap.NewNop(),
		batchSize: DefaultBatchSize,
		maxBytes:  DefaultMaxUploadBytes,
	}
	for _, o := range opts {
		o(p)
	}
	if p.reg == nil {
		p.reg = registry.New(p.log)
	}
	return p
}

// Ingest parses src and appends its rows to the table of page, creating or
// evolving the table first. Errors are *outcome.Error values of kind parse,
// schema, write or backend_unavailable.
func (p *Pipeline) Ingest(ctx context.Context, src Source, page catalog.PageRef) (res Result, err error) {
	start := time.Now()
	runID := uuid.NewString()
	log := p.log.With(zap.String("run_id", runID), zap.String("file", src.Name))
	defer func() {
		metrics.RecordStep(component, "total", err, time.Since(start))
		if err != nil {
			log.Warn("ingest: failed", zap.String("kind", string(outcome.KindOf(err))), zap.Error(err))
		}
	}()

	pg := page.Page()
	if pg.Type != catalog.Dataset {
		return Result{}, outcome.New(outcome.KindSchema, op, "page %d has type %s, not %s", pg.ID, pg.Type, catalog.Dataset)
	}

	raw, err := p.read(src.Reader)
	if err != nil {
		return Result{}, err
	}
	res.Fingerprint = fmt.Sprintf("%016x", xxh3.Hash(raw))

	parseStart := time.Now()
	tbl, err := parser.Parse(bytes.NewReader(raw), src.Format, parser.Options{
		Name:      src.Name,
		Delimiter: src.Delimiter,
		Sheet:     src.Sheet,
	})
	metrics.RecordStep(component, "parse", err, time.Since(parseStart))
	if err != nil {
		return Result{}, parseError(src.Name, err)
	}
	cols, rows := mergeLabels(tbl.Columns, tbl.Rows)
	metrics.RecordRow(component, "parsed", int64(len(rows)))

	res.Table = pg.TableName
	if res.Table == "" {
		res.Table = naming.TableName(pg.ID, pg.Name)
	}
	if !naming.Valid(res.Table) {
		return Result{}, outcome.New(outcome.KindSchema, op, "invalid table name %q", res.Table)
	}
	log = log.With(zap.String("table", res.Table), zap.Int64("page_id", pg.ID))
	log.Debug("ingest: parsed", zap.Strings("columns", cols), zap.Int("rows", len(rows)), zap.String("fingerprint", res.Fingerprint))

	unlock := p.locks.lock(res.Table)
	defer unlock()

	kinds := schema.InferKinds(cols, rows)
	err = p.eng.InTx(ctx, func(ctx context.Context, q storage.Querier) error {
		if pg.TableName == "" {
			table, err := p.unclaimedTable(ctx, q, res.Table, ownerID(page))
			if err != nil {
				return err
			}
			if table != res.Table {
				log.Info("ingest: table name taken, using numbered variant", zap.String("variant", table))
				res.Table = table
			}
		}
		ddlStart := time.Now()
		created, added, err := p.applySchema(ctx, q, res.Table, ownerID(page), cols, kinds)
		metrics.RecordStep(component, "schema", err, time.Since(ddlStart))
		if err != nil {
			return err
		}
		res.Created, res.ColumnsAdded = created, added

		insStart := time.Now()
		n, err := p.insert(ctx, q, log, res.Table, cols, rows)
		metrics.RecordStep(component, "insert", err, time.Since(insStart))
		if err != nil {
			return outcome.Wrap(outcome.KindWrite, op, fmt.Errorf("insert into %s: %w", res.Table, err))
		}
		res.RowsInserted = n

		if _, ok := page.(catalog.PersistedPage); ok {
			if p.store == nil {
				return outcome.New(outcome.KindWrite, op, "no page store to bind %s", res.Table)
			}
			if err := p.store.SetTableName(ctx, q, pg.ID, res.Table); err != nil {
				return outcome.Wrap(outcome.KindWrite, op, err)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, outcome.Wrap(outcome.KindWrite, op, err)
	}
	metrics.RecordRow(component, "inserted", res.RowsInserted)
	metrics.RecordBatches(component, batches(len(rows), p.batchSize))

	if _, ok := page.(catalog.DegradedPage); ok && p.cache != nil {
		if err := p.cache.SetTableName(pg.ID, res.Table); err != nil {
			log.Warn("ingest: degraded page not bound", zap.Error(err))
		}
	}

	key := archive.Key(res.Table, runID+"-"+filepath.Base(src.Name))
	if loc, err := p.archiver.Archive(ctx, key, raw); err != nil {
		log.Warn("ingest: archive failed", zap.String("key", key), zap.Error(err))
	} else {
		res.Archived = loc
	}

	log.Info("ingest: done",
		zap.Bool("created", res.Created),
		zap.Strings("columns_added", res.ColumnsAdded),
		zap.Int64("rows", res.RowsInserted),
		zap.Duration("elapsed", time.Since(start).Truncate(time.Millisecond)))
	return res, nil
}

// read buffers the upload, enforcing the size limit.
func (p *Pipeline) read(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, outcome.New(outcome.KindParse, op, "no file")
	}
	raw, err := io.ReadAll(io.LimitReader(r, p.maxBytes+1))
	if err != nil {
		return nil, outcome.Wrap(outcome.KindParse, op, fmt.Errorf("read upload: %w", err))
	}
	if int64(len(raw)) > p.maxBytes {
		return nil, outcome.New(outcome.KindParse, op, "upload exceeds %d bytes", p.maxBytes)
	}
	return raw, nil
}

// maxNameVariants bounds the search for a free numbered table name.
const maxNameVariants = 100

// unclaimedTable picks the table for a page's first ingestion. A table that
// already exists but is not registered to owner is left alone (typically the
// kept table of a deleted page whose id was reused) and the first free
// numbered variant base_2, base_3, ... is used instead.
func (p *Pipeline) unclaimedTable(ctx context.Context, q storage.Querier, base string, owner int64) (string, error) {
	for n := 1; n <= maxNameVariants; n++ {
		name := base
		if n > 1 {
			name = naming.WithSuffix(base, n)
		}
		exists, err := p.reg.Exists(ctx, q, name)
		if err != nil {
			return "", outcome.Wrap(outcome.KindSchema, op, err)
		}
		if !exists {
			return name, nil
		}
		d, ok, err := p.reg.Describe(ctx, q, name)
		if err != nil {
			return "", outcome.Wrap(outcome.KindSchema, op, err)
		}
		if ok && d.PageID == owner {
			return name, nil
		}
	}
	return "", outcome.New(outcome.KindSchema, op, "no free table name for %s", base)
}

// applySchema creates table or adds the missing columns, then records them
// in the registry.
func (p *Pipeline) applySchema(ctx context.Context, q storage.Querier, table string, pageID int64, cols, kinds []string) (created bool, added []string, err error) {
	syn := schema.New(q.Dialect())
	exists, err := p.reg.Exists(ctx, q, table)
	if err != nil {
		return false, nil, outcome.Wrap(outcome.KindSchema, op, err)
	}
	var existing []string
	if exists {
		if existing, err = p.reg.ColumnsOf(ctx, q, table); err != nil {
			return false, nil, outcome.Wrap(outcome.KindSchema, op, err)
		}
	}

	var stmts []string
	if !exists {
		_, stmt, err := syn.DefineTable(table, cols)
		if err != nil {
			return false, nil, outcome.Wrap(outcome.KindSchema, op, err)
		}
		stmts, created, added = []string{stmt}, true, cols
	} else if stmts, added, err = syn.EvolveTable(table, existing, cols); err != nil {
		return false, nil, outcome.Wrap(outcome.KindSchema, op, err)
	}
	for _, stmt := range stmts {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return false, nil, outcome.Wrap(outcome.KindSchema, op, fmt.Errorf("ddl on %s: %w", table, err))
		}
	}

	inferred := make(map[string]string, len(cols))
	for i, c := range cols {
		inferred[c] = kinds[i]
	}
	all := append(append([]string{}, existing...), added...)
	hints := make([]string, len(all))
	for i, c := range all {
		hints[i] = inferred[c]
	}
	if _, err := p.reg.Register(ctx, q, table, pageID, registry.TextColumns(all, hints)); err != nil {
		if errors.Is(err, registry.ErrOwnedByOtherPage) {
			return false, nil, outcome.New(outcome.KindSchema, op, "%v", err)
		}
		return false, nil, outcome.Wrap(outcome.KindSchema, op, err)
	}
	return created, added, nil
}

// insert streams rows through the batched loader into table.
func (p *Pipeline) insert(ctx context.Context, q storage.Querier, log *zap.Logger, table string, cols []string, rows [][]any) (int64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	in := make(chan []any, p.batchSize)
	go func() {
		defer close(in)
		for _, r := range rows {
			select {
			case in <- r:
			case <-ctx.Done():
				return
			}
		}
	}()

	return storage.LoadBatches(ctx, log, cols, in, p.batchSize, func(ctx context.Context, cols []string, batch [][]any) (int64, error) {
		return storage.InsertRows(ctx, q, table, cols, batch)
	})
}

// ownerID is the registry page id for page. Degraded pages are recorded
// under the negated id so that they can never claim the table of a
// persisted page with the same number.
func ownerID(page catalog.PageRef) int64 {
	id := page.Page().ID
	if _, ok := page.(catalog.DegradedPage); ok {
		return -id
	}
	return id
}

func parseError(name string, err error) error {
	switch {
	case errors.Is(err, parser.ErrEmpty):
		return outcome.New(outcome.KindParse, op, "%s contains no data rows", name)
	case errors.Is(err, parser.ErrUnknownFormat):
		return outcome.New(outcome.KindParse, op, "unrecognized format of %s", name)
	default:
		return &outcome.Error{Kind: outcome.KindParse, Op: op, Detail: name, Err: err}
	}
}

func batches(rows, size int) int64 {
	if rows == 0 || size <= 0 {
		return 0
	}
	return int64((rows + size - 1) / size)
}
