package ingest

import (
	"dashboard/internal/naming"
	"dashboard/internal/storage"
)

// mergeLabels normalizes raw labels and folds rows onto the deduplicated
// column list. Labels that normalize to the same name are one column; for
// each row the last non-empty value among them wins.
func mergeLabels(raw []string, rows [][]any) ([]string, [][]any) {
	names := naming.Columns(raw)
	cols := naming.Dedup(names)
	if len(cols) == len(names) {
		for _, r := range rows {
			for i, v := range r {
				r[i] = cell(v)
			}
		}
		return cols, rows
	}

	pos := make(map[string]int, len(cols))
	for i, c := range cols {
		pos[c] = i
	}
	target := make([]int, len(names))
	for i, n := range names {
		target[i] = pos[n]
	}

	out := make([][]any, len(rows))
	for ri, r := range rows {
		merged := make([]any, len(cols))
		for i, v := range r {
			if i >= len(target) {
				break
			}
			if v = cell(v); v == nil {
				continue
			}
			merged[target[i]] = v
		}
		out[ri] = merged
	}
	return cols, out
}

// cell converts a parsed value to the text stored in the table. Empty
// strings become NULL.
func cell(v any) any {
	t := storage.AsText(v)
	if s, ok := t.(string); ok && s == "" {
		return nil
	}
	return t
}
