package degraded

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"dashboard/internal/catalog"
	"dashboard/internal/outcome"
)

// Directory serves section and page operations from a catalog.Store and
// falls back to a Cache when the backend is unavailable. Every method
// reports whether the answer came from the fallback.
type Directory struct {
	store *catalog.Store
	cache *Cache
	log   *zap.Logger
}

// NewDirectory returns a Directory over store and cache.
func NewDirectory(store *catalog.Store, cache *Cache, log *zap.Logger) *Directory {
	if log == nil {
		log = zap.NewNop()
	}
	if cache == nil {
		cache = NewCache()
	}
	return &Directory{store: store, cache: cache, log: log}
}

// Cache returns the fallback cache.
func (d *Directory) Cache() *Cache { return d.cache }

func (d *Directory) fallback(op string, err error) bool {
	if !outcome.IsUnavailable(err) {
		return false
	}
	d.log.Warn("backend unavailable, using in-memory store", zap.String("op", op), zap.Error(err))
	return true
}

// CreateSection creates a section.
func (d *Directory) CreateSection(ctx context.Context, name string) (catalog.Section, bool, error) {
	s, err := d.store.CreateSection(ctx, name)
	if d.fallback("create_section", err) {
		return d.cache.AddSection(name), true, nil
	}
	return s, false, err
}

// Sections lists sections with their pages.
func (d *Directory) Sections(ctx context.Context) ([]catalog.Section, bool, error) {
	s, err := d.store.Sections(ctx)
	if d.fallback("list_sections", err) {
		return d.cache.Sections(), true, nil
	}
	return s, false, err
}

// DeleteSection deletes a section and its pages.
func (d *Directory) DeleteSection(ctx context.Context, id int64) (bool, error) {
	err := d.store.DeleteSection(ctx, id)
	if d.fallback("delete_section", err) {
		if !d.cache.DeleteSection(id) {
			return true, outcome.New(outcome.KindNotFound, "delete_section", "section %d", id)
		}
		return true, nil
	}
	return false, err
}

// CreatePage creates a page.
func (d *Directory) CreatePage(ctx context.Context, name string, typ catalog.PageType, sectionID int64, config json.RawMessage) (catalog.Page, bool, error) {
	p, err := d.store.CreatePage(ctx, name, typ, sectionID, config)
	if d.fallback("create_page", err) {
		return d.cache.AddPage(name, typ, sectionID, config), true, nil
	}
	return p, false, err
}

// Page resolves a page. The returned ref is a catalog.DegradedPage when it
// came from the fallback.
func (d *Directory) Page(ctx context.Context, id int64) (catalog.PageRef, error) {
	p, err := d.store.Page(ctx, id)
	if d.fallback("get_page", err) {
		cp, ok := d.cache.Page(id)
		if !ok {
			return nil, outcome.New(outcome.KindNotFound, "get_page", "page %d not in temporary storage", id)
		}
		return catalog.NewDegraded(cp), nil
	}
	if err != nil {
		return nil, err
	}
	return catalog.NewPersisted(p), nil
}

// DeletePage deletes a page.
func (d *Directory) DeletePage(ctx context.Context, id int64) (bool, error) {
	err := d.store.DeletePage(ctx, id)
	if d.fallback("delete_page", err) {
		if !d.cache.DeletePage(id) {
			return true, outcome.New(outcome.KindNotFound, "delete_page", "page %d", id)
		}
		return true, nil
	}
	return false, err
}
