// Package naming turns arbitrary header text and page names into safe,
// deterministic SQL identifiers.
package naming

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxIdentLen is the longest identifier produced (the Postgres limit).
const MaxIdentLen = 63

// Fallback is returned when nothing usable survives normalization.
const Fallback = "col"

// System columns present on every dynamic table.
const (
	IDColumn        = "id"
	CreatedAtColumn = "created_at"
	UpdatedAtColumn = "updated_at"
)

// systemRename maps labels that would collide with system columns.
var systemRename = map[string]string{
	IDColumn:        "data_id",
	CreatedAtColumn: "data_created_at",
	UpdatedAtColumn: "data_updated_at",
}

// Normalize converts arbitrary header text into a lowercase ASCII identifier:
//  1. lowercase
//  2. strip accents (NFD → remove Mn → NFC)
//  3. keep [a-z0-9_]; convert space/tab/dash/dot to underscore; drop others
//  4. collapse runs of underscores and trim them at both ends
//  5. truncate to 63 bytes (first 10 + last 53)
//  6. fallback to "col" if empty
//
// Normalize is idempotent.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	// Decompose → remove nonspacing marks (accents) → recompose.
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, err := transform.String(t, s)
	if err != nil {
		ascii = s
	}

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == '-' || r == '.' || unicode.IsSpace(r):
			if !prevUnderscore {
				b.WriteByte('_')
				prevUnderscore = true
			}
		}
	}
	name := truncate(strings.Trim(b.String(), "_"))
	if name == "" {
		return Fallback
	}
	return name
}

// truncate keeps the first 10 and last 53 bytes of names over the limit. The
// join point may produce a double underscore, which is collapsed so that the
// result normalizes to itself.
func truncate(s string) string {
	if len(s) <= MaxIdentLen {
		return s
	}
	s = s[:10] + s[len(s)-53:]
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return s
}

// Column normalizes a header label and renames it away from the system
// columns id, created_at and updated_at. Column is idempotent.
func Column(raw string) string {
	n := Normalize(raw)
	if r, ok := systemRename[n]; ok {
		return r
	}
	return n
}

// IsSystem reports whether name is one of the storage-managed columns.
func IsSystem(name string) bool {
	_, ok := systemRename[name]
	return ok
}

// Valid reports whether name is already a normalized identifier, i.e. safe
// to splice (quoted) into SQL.
func Valid(name string) bool {
	if name == "" || len(name) > MaxIdentLen {
		return false
	}
	if name[0] == '_' || name[len(name)-1] == '_' || strings.Contains(name, "__") {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_') {
			return false
		}
	}
	return true
}

// TableName derives the physical table name for a page:
// page_<id>_<normalized name>, with "untitled" for blank names. The
// page_<id>_ prefix is never shortened; long names lose their tail.
func TableName(pageID int64, pageName string) string {
	base := "untitled"
	if strings.TrimSpace(pageName) != "" {
		base = Normalize(pageName)
	}
	prefix := "page_" + strconv.FormatInt(pageID, 10) + "_"
	return prefix + clip(base, MaxIdentLen-len(prefix))
}

// WithSuffix returns name with "_<n>" appended, shortening name so the
// result stays within MaxIdentLen.
func WithSuffix(name string, n int) string {
	suffix := "_" + strconv.Itoa(n)
	return clip(name, MaxIdentLen-len(suffix)) + suffix
}

// clip cuts s to at most n bytes without leaving a trailing underscore.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.TrimRight(s[:n], "_")
}

// Columns applies Column to each label, preserving order and duplicates.
func Columns(raw []string) []string {
	out := make([]string, len(raw))
	for i, r := range raw {
		out[i] = Column(r)
	}
	return out
}

// Dedup returns names with later duplicates removed, first-seen order kept.
func Dedup(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
