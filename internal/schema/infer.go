package schema

import (
	"strconv"
	"strings"
	"time"
)

// Advisory kinds reported by InferKinds.
const (
	KindText      = "text"
	KindInteger   = "integer"
	KindReal      = "real"
	KindBoolean   = "boolean"
	KindDate      = "date"
	KindTimestamp = "timestamp"
)

// dateLayouts are common date-only formats.
var dateLayouts = []string{
	"2006-01-02",  // ISO
	"02.01.2006",  // DMY dot
	"02/01/2006",  // DMY slash
	"01/02/2006",  // MDY slash
	"2 Jan 2006",  // DMY textual day
	"02-Jan-2006", // DMY dash textual month
	"2006/01/02",  // ISO slashy
}

// timestampLayouts are common timestamp formats (with time component).
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006/01/02 15:04:05",
	"02/01/2006 15:04:05",
	"01/02/2006 15:04:05",
	"2006-01-02T15:04:05",
}

// InferKinds classifies each column of rows for display purposes. values in
// rows are strings or nil; rows shorter than columns are treated as NULL
// padded. Storage always stays text; this never affects the DDL.
func InferKinds(columns []string, rows [][]any) []string {
	kinds := make([]string, len(columns))
	vals := make([]string, 0, len(rows))
	for i := range columns {
		vals = vals[:0]
		for _, r := range rows {
			if i >= len(r) {
				continue
			}
			if s, ok := r[i].(string); ok {
				vals = append(vals, s)
			}
		}
		kinds[i] = inferKind(vals)
	}
	return kinds
}

// inferKind guesses a kind among boolean, integer, real, date, timestamp and
// text. All non-empty values must satisfy a narrower kind for it to win.
func inferKind(values []string) string {
	nonEmpty := nonEmptyTrimmed(values)
	if len(nonEmpty) == 0 {
		return KindText
	}
	if allMatch(nonEmpty, isInt) {
		return KindInteger
	}
	if allMatch(nonEmpty, isBool) {
		return KindBoolean
	}
	if allMatch(nonEmpty, isFloat) {
		return KindReal
	}
	allDate, anyTime := true, false
	for _, v := range nonEmpty {
		ok, hasTime := parseDateOrTimestamp(v)
		if !ok {
			allDate = false
			break
		}
		anyTime = anyTime || hasTime
	}
	if allDate {
		if anyTime {
			return KindTimestamp
		}
		return KindDate
	}
	return KindText
}

func nonEmptyTrimmed(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func allMatch(vals []string, fn func(string) bool) bool {
	for _, v := range vals {
		if !fn(v) {
			return false
		}
	}
	return true
}

// isBool accepts common textual booleans. 1/0 are left to isInt.
func isBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "t", "f", "yes", "no", "y", "n":
		return true
	default:
		return false
	}
}

func isInt(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// isFloat accepts decimal or scientific notation; ints count as reals only in
// a column that also holds fractional values.
func isFloat(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func parseDateOrTimestamp(s string) (ok bool, hasTime bool) {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true, true
		}
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true, false
		}
	}
	return false, false
}
