package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"dashboard/internal/ddl"
	"dashboard/internal/outcome"
	"dashboard/internal/registry"
	"dashboard/internal/storage"
)

// Relation names.
const (
	SectionsTable = "sections"
	PagesTable    = "pages"
)

var pageColumns = []string{"id", "name", "page_type", "section_id", "table_name", "config", "created_at"}

// Store reads and writes sections and pages on a storage.Engine.
type Store struct {
	eng storage.Engine
	reg *registry.Registry
	log *zap.Logger
}

// NewStore returns a Store. reg receives the cascade when pages are deleted.
func NewStore(eng storage.Engine, reg *registry.Registry, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	if reg == nil {
		reg = registry.New(log)
	}
	return &Store{eng: eng, reg: reg, log: log}
}

// Engine returns the underlying engine.
func (s *Store) Engine() storage.Engine { return s.eng }

// EnsureSchema creates the sections, pages and dynamic_table relations.
func (s *Store) EnsureSchema(ctx context.Context) error {
	d := s.eng.Dialect()
	defs := []ddl.TableDef{
		{FQN: SectionsTable, Columns: []ddl.ColumnDef{
			{Name: "id", Identity: true},
			{Name: "name", SQLType: d.MapType("text")},
			{Name: "created_at", SQLType: d.MapType("timestamp"), Default: "CURRENT_TIMESTAMP"},
		}},
		{FQN: PagesTable, Columns: []ddl.ColumnDef{
			{Name: "id", Identity: true},
			{Name: "name", SQLType: d.MapType("text")},
			{Name: "page_type", SQLType: d.MapType("identifier")},
			{Name: "section_id", SQLType: d.MapType("bigint")},
			{Name: "table_name", SQLType: d.MapType("identifier"), Nullable: true},
			{Name: "config", SQLType: d.MapType("text"), Nullable: true},
			{Name: "created_at", SQLType: d.MapType("timestamp"), Default: "CURRENT_TIMESTAMP"},
		}},
	}
	for _, def := range defs {
		stmt, err := ddl.BuildCreateTableSQL(d, def)
		if err != nil {
			return outcome.Wrap(outcome.KindSchema, "bootstrap", err)
		}
		if _, err := s.eng.Exec(ctx, stmt); err != nil {
			return outcome.Wrap(outcome.KindSchema, "bootstrap", err)
		}
	}
	return outcome.Wrap(outcome.KindSchema, "bootstrap", s.reg.EnsureSchema(ctx, s.eng))
}

// CreateSection inserts a section.
func (s *Store) CreateSection(ctx context.Context, name string) (Section, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Section{}, outcome.New(outcome.KindWrite, "create_section", "name must not be empty")
	}
	id, err := s.eng.InsertID(ctx, SectionsTable, []string{"name"}, name)
	if err != nil {
		return Section{}, outcome.Wrap(outcome.KindWrite, "create_section", err)
	}
	s.log.Info("section created", zap.Int64("section_id", id), zap.String("name", name))
	return s.Section(ctx, id)
}

// Section returns one section without its pages.
func (s *Store) Section(ctx context.Context, id int64) (Section, error) {
	d := s.eng.Dialect()
	rs, err := s.eng.Query(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		strings.Join(ddl.QuoteAll(d, []string{"id", "name", "created_at"}), ", "),
		d.QuoteIdent(SectionsTable), d.QuoteIdent("id"), d.Placeholder(1)), id)
	if err != nil {
		return Section{}, outcome.Wrap(outcome.KindWrite, "get_section", err)
	}
	if len(rs.Rows) == 0 {
		return Section{}, outcome.New(outcome.KindNotFound, "get_section", "section %d", id)
	}
	sec, err := decodeSection(rs.Rows[0])
	return sec, outcome.Wrap(outcome.KindWrite, "get_section", err)
}

// Sections returns every section with its pages, both ordered by id.
func (s *Store) Sections(ctx context.Context) ([]Section, error) {
	d := s.eng.Dialect()
	rs, err := s.eng.Query(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(ddl.QuoteAll(d, []string{"id", "name", "created_at"}), ", "),
		d.QuoteIdent(SectionsTable), d.QuoteIdent("id")))
	if err != nil {
		return nil, outcome.Wrap(outcome.KindWrite, "list_sections", err)
	}
	out := make([]Section, 0, len(rs.Rows))
	index := make(map[int64]int, len(rs.Rows))
	for _, row := range rs.Rows {
		sec, err := decodeSection(row)
		if err != nil {
			return nil, outcome.Wrap(outcome.KindWrite, "list_sections", err)
		}
		sec.Pages = []Page{}
		index[sec.ID] = len(out)
		out = append(out, sec)
	}

	pages, err := s.queryPages(ctx, s.eng, "")
	if err != nil {
		return nil, outcome.Wrap(outcome.KindWrite, "list_sections", err)
	}
	for _, p := range pages {
		if i, ok := index[p.SectionID]; ok {
			out[i].Pages = append(out[i].Pages, p)
		}
	}
	return out, nil
}

// DeleteSection removes a section, its pages and their registry records in
// one transaction. Dataset tables are kept.
func (s *Store) DeleteSection(ctx context.Context, id int64) error {
	err := s.eng.InTx(ctx, func(ctx context.Context, q storage.Querier) error {
		d := q.Dialect()
		pages, err := s.queryPages(ctx, q, d.QuoteIdent("section_id")+" = "+d.Placeholder(1), id)
		if err != nil {
			return err
		}
		for _, p := range pages {
			if _, err := s.reg.Forget(ctx, q, p.ID); err != nil {
				return err
			}
		}
		if _, err := q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
			d.QuoteIdent(PagesTable), d.QuoteIdent("section_id"), d.Placeholder(1)), id); err != nil {
			return err
		}
		n, err := q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
			d.QuoteIdent(SectionsTable), d.QuoteIdent("id"), d.Placeholder(1)), id)
		if err != nil {
			return err
		}
		if n == 0 {
			return outcome.New(outcome.KindNotFound, "delete_section", "section %d", id)
		}
		s.log.Info("section deleted", zap.Int64("section_id", id), zap.Int("pages", len(pages)))
		return nil
	})
	return outcome.Wrap(outcome.KindWrite, "delete_section", err)
}

// CreatePage inserts a page into an existing section. config may be nil.
func (s *Store) CreatePage(ctx context.Context, name string, typ PageType, sectionID int64, config json.RawMessage) (Page, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Page{}, outcome.New(outcome.KindWrite, "create_page", "name must not be empty")
	}
	if _, err := ParsePageType(string(typ)); err != nil {
		return Page{}, outcome.Wrap(outcome.KindWrite, "create_page", err)
	}
	var cfg any
	if len(config) > 0 {
		if !json.Valid(config) {
			return Page{}, outcome.New(outcome.KindWrite, "create_page", "config is not valid JSON")
		}
		cfg = string(config)
	}

	var id int64
	err := s.eng.InTx(ctx, func(ctx context.Context, q storage.Querier) error {
		d := q.Dialect()
		rs, err := q.Query(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
			d.QuoteIdent("id"), d.QuoteIdent(SectionsTable), d.QuoteIdent("id"), d.Placeholder(1)), sectionID)
		if err != nil {
			return err
		}
		if len(rs.Rows) == 0 {
			return outcome.New(outcome.KindNotFound, "create_page", "section %d", sectionID)
		}
		id, err = q.InsertID(ctx, PagesTable, []string{"name", "page_type", "section_id", "config"},
			name, string(typ), sectionID, cfg)
		return err
	})
	if err != nil {
		return Page{}, outcome.Wrap(outcome.KindWrite, "create_page", err)
	}
	s.log.Info("page created", zap.Int64("page_id", id), zap.String("name", name), zap.String("type", string(typ)))
	return s.Page(ctx, id)
}

// Page returns one page.
func (s *Store) Page(ctx context.Context, id int64) (Page, error) {
	p, err := s.page(ctx, s.eng, id)
	return p, outcome.Wrap(outcome.KindWrite, "get_page", err)
}

func (s *Store) page(ctx context.Context, q storage.Querier, id int64) (Page, error) {
	d := q.Dialect()
	pages, err := s.queryPages(ctx, q, d.QuoteIdent("id")+" = "+d.Placeholder(1), id)
	if err != nil {
		return Page{}, err
	}
	if len(pages) == 0 {
		return Page{}, outcome.New(outcome.KindNotFound, "get_page", "page %d", id)
	}
	return pages[0], nil
}

// DeletePage removes a page and its registry record in one transaction.
func (s *Store) DeletePage(ctx context.Context, id int64) error {
	err := s.eng.InTx(ctx, func(ctx context.Context, q storage.Querier) error {
		if _, err := s.reg.Forget(ctx, q, id); err != nil {
			return err
		}
		d := q.Dialect()
		n, err := q.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
			d.QuoteIdent(PagesTable), d.QuoteIdent("id"), d.Placeholder(1)), id)
		if err != nil {
			return err
		}
		if n == 0 {
			return outcome.New(outcome.KindNotFound, "delete_page", "page %d", id)
		}
		return nil
	})
	if err == nil {
		s.log.Info("page deleted", zap.Int64("page_id", id))
	}
	return outcome.Wrap(outcome.KindWrite, "delete_page", err)
}

// SetTableName binds table to pageID using q, so that the binding commits
// with the ingestion that created the table. Rebinding to the same name is a
// no-op; rebinding to a different name is a schema error.
func (s *Store) SetTableName(ctx context.Context, q storage.Querier, pageID int64, table string) error {
	p, err := s.page(ctx, q, pageID)
	if err != nil {
		return err
	}
	switch p.TableName {
	case table:
		return nil
	case "":
	default:
		return outcome.New(outcome.KindSchema, "bind_table", "page %d is already bound to %s", pageID, p.TableName)
	}
	d := q.Dialect()
	_, err = q.Exec(ctx, fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
		d.QuoteIdent(PagesTable), d.QuoteIdent("table_name"), d.Placeholder(1),
		d.QuoteIdent("id"), d.Placeholder(2)), table, pageID)
	return err
}

func (s *Store) queryPages(ctx context.Context, q storage.Querier, where string, args ...any) ([]Page, error) {
	d := q.Dialect()
	stmt := fmt.Sprintf("SELECT %s FROM %s", strings.Join(ddl.QuoteAll(d, pageColumns), ", "), d.QuoteIdent(PagesTable))
	if where != "" {
		stmt += " WHERE " + where
	}
	stmt += " ORDER BY " + d.QuoteIdent("id")
	rs, err := q.Query(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	out := make([]Page, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		p, err := decodePage(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func decodeSection(row []any) (Section, error) {
	var (
		sec Section
		err error
	)
	if sec.ID, err = storage.AsInt64(row[0]); err != nil {
		return Section{}, fmt.Errorf("catalog: section id: %w", err)
	}
	sec.Name = text(row[1])
	if sec.CreatedAt, err = storage.AsTime(row[2]); err != nil {
		return Section{}, fmt.Errorf("catalog: section created_at: %w", err)
	}
	return sec, nil
}

func decodePage(row []any) (Page, error) {
	var (
		p   Page
		err error
	)
	if p.ID, err = storage.AsInt64(row[0]); err != nil {
		return Page{}, fmt.Errorf("catalog: page id: %w", err)
	}
	p.Name = text(row[1])
	p.Type = PageType(text(row[2]))
	if p.SectionID, err = storage.AsInt64(row[3]); err != nil {
		return Page{}, fmt.Errorf("catalog: page %d section_id: %w", p.ID, err)
	}
	p.TableName = text(row[4])
	if cfg := text(row[5]); cfg != "" {
		p.Config = json.RawMessage(cfg)
	}
	if p.CreatedAt, err = storage.AsTime(row[6]); err != nil {
		return Page{}, fmt.Errorf("catalog: page %d created_at: %w", p.ID, err)
	}
	return p, nil
}

func text(v any) string {
	s, _ := storage.AsText(v).(string)
	return s
}
