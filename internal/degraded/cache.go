// Package degraded keeps sections and pages in memory while the relational
// backend is unreachable.
//
// Entries live for the life of the process. There is no eviction, no TTL and
// no reconciliation with the backend once it recovers; ids are sequential per
// kind starting at 1 and may overlap with stored ids.
package degraded

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"dashboard/internal/catalog"
)

// Cache is an in-memory mirror of sections and pages. It is safe for
// concurrent use.
type Cache struct {
	mu          sync.Mutex
	sections    []catalog.Section
	pages       []catalog.Page
	nextSection int64
	nextPage    int64
	now         func() time.Time
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{nextSection: 1, nextPage: 1, now: time.Now}
}

// AddSection stores a new section and returns it.
func (c *Cache) AddSection(name string) catalog.Section {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := catalog.Section{ID: c.nextSection, Name: name, CreatedAt: c.now().UTC()}
	c.nextSection++
	c.sections = append(c.sections, s)
	return s
}

// Sections returns copies of all sections with their pages attached.
func (c *Cache) Sections() []catalog.Section {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]catalog.Section, len(c.sections))
	for i, s := range c.sections {
		s.Pages = []catalog.Page{}
		for _, p := range c.pages {
			if p.SectionID == s.ID {
				s.Pages = append(s.Pages, clonePage(p))
			}
		}
		out[i] = s
	}
	return out
}

// DeleteSection removes a section and its pages. It reports whether the
// section existed.
func (c *Cache) DeleteSection(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	found := false
	kept := c.sections[:0]
	for _, s := range c.sections {
		if s.ID == id {
			found = true
			continue
		}
		kept = append(kept, s)
	}
	c.sections = kept

	pages := c.pages[:0]
	for _, p := range c.pages {
		if p.SectionID != id {
			pages = append(pages, p)
		}
	}
	c.pages = pages
	return found
}

// AddPage stores a new page. The section is not required to exist in the
// cache, since it may only exist in the backend.
func (c *Cache) AddPage(name string, typ catalog.PageType, sectionID int64, config json.RawMessage) catalog.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := catalog.Page{
		ID:        c.nextPage,
		Name:      name,
		Type:      typ,
		SectionID: sectionID,
		Config:    append(json.RawMessage(nil), config...),
		CreatedAt: c.now().UTC(),
	}
	if len(p.Config) == 0 {
		p.Config = nil
	}
	c.nextPage++
	c.pages = append(c.pages, p)
	return clonePage(p)
}

// Page returns the page with id.
func (c *Cache) Page(id int64) (catalog.Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.pages {
		if p.ID == id {
			return clonePage(p), true
		}
	}
	return catalog.Page{}, false
}

// DeletePage removes a page and reports whether it existed.
func (c *Cache) DeletePage(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.pages {
		if p.ID == id {
			c.pages = append(c.pages[:i], c.pages[i+1:]...)
			return true
		}
	}
	return false
}

// SetTableName binds table to a cached page. Like the stored binding it is
// write-once.
func (c *Cache) SetTableName(pageID int64, table string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.pages {
		if c.pages[i].ID != pageID {
			continue
		}
		switch c.pages[i].TableName {
		case table:
		case "":
			c.pages[i].TableName = table
		default:
			return fmt.Errorf("degraded: page %d is already bound to %s", pageID, c.pages[i].TableName)
		}
		return nil
	}
	return fmt.Errorf("degraded: page %d not found", pageID)
}

// Clear drops every entry. Id counters keep counting.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sections = nil
	c.pages = nil
}

func clonePage(p catalog.Page) catalog.Page {
	if p.Config != nil {
		p.Config = append(json.RawMessage(nil), p.Config...)
	}
	return p
}
