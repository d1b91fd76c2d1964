// Package catalog stores the dashboard's sections and pages.
//
// A page of type dataset is bound to at most one dynamic table; the binding
// is written once, by the first successful ingestion, and never changes.
package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PageType selects how a page is rendered and what it stores.
type PageType string

const (
	LinkOperations PageType = "link_operations"
	List           PageType = "list"
	Dataset        PageType = "dataset"
	Repository     PageType = "repository"
)

// ParsePageType validates a page type tag.
func ParsePageType(s string) (PageType, error) {
	switch t := PageType(strings.ToLower(strings.TrimSpace(s))); t {
	case LinkOperations, List, Dataset, Repository:
		return t, nil
	default:
		return "", fmt.Errorf("catalog: unknown page type %q", s)
	}
}

// Section groups pages in the sidebar.
type Section struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Pages     []Page    `json:"pages"`
}

// Page is one dashboard page. TableName is empty until the first ingestion.
type Page struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Type      PageType        `json:"page_type"`
	SectionID int64           `json:"section_id"`
	TableName string          `json:"table_name,omitempty"`
	Config    json.RawMessage `json:"config,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// PageRef is a page resolved either from the relational store or from the
// in-memory fallback. The set of implementations is closed.
type PageRef interface {
	Page() Page
	sealed()
}

// PersistedPage is a page read from the relational store.
type PersistedPage struct{ p Page }

// DegradedPage is a page that only exists in the in-memory fallback.
type DegradedPage struct{ p Page }

// NewPersisted wraps a stored page.
func NewPersisted(p Page) PersistedPage { return PersistedPage{p: p} }

// NewDegraded wraps a page from the in-memory fallback.
func NewDegraded(p Page) DegradedPage { return DegradedPage{p: p} }

func (r PersistedPage) Page() Page { return r.p }
func (PersistedPage) sealed()      {}

func (r DegradedPage) Page() Page { return r.p }
func (DegradedPage) sealed()      {}
