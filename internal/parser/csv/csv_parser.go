// Package csv parses delimited text uploads into a header and rectangular
// rows. The first record is always the header.
package csv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrEmpty is returned when the input has no header record.
var ErrEmpty = errors.New("csv parser: no header row")

// Options configures the CSV parser. All fields are optional.
type Options struct {
	// Comma specifies the field delimiter. When zero, ',' is used.
	Comma rune

	// TrimSpace trims leading/trailing spaces from each field value.
	TrimSpace bool

	// LazyQuotes relaxes quote handling for hand-edited exports.
	LazyQuotes bool
}

// Parser parses CSV input according to Options. It is safe to reuse across
// inputs, but Parser itself is not concurrency-safe.
type Parser struct{ opt Options }

// NewParser constructs a Parser with the provided Options.
func NewParser(opt Options) *Parser { return &Parser{opt: opt} }

// Parse reads the header and all data rows from r.
//
// Blank header cells are named column_<n> (1-based). Rows shorter than the
// header are padded with nil; rows longer than the header are an error
// naming the line. Empty cells become nil, everything else stays a string.
func (p *Parser) Parse(r io.Reader) ([]string, [][]any, error) {
	cr := csv.NewReader(r)
	if p.opt.Comma != 0 {
		cr.Comma = p.opt.Comma
	}
	cr.LazyQuotes = p.opt.LazyQuotes
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	h, err := cr.Read()
	if err == io.EOF {
		return nil, nil, ErrEmpty
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	headers := normalizeHeaders(StripHeaderBOM(h))

	var rows [][]any
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}
		if isBlank(rec) {
			continue
		}
		if len(rec) > len(headers) {
			line, _ := cr.FieldPos(0)
			return nil, nil, fmt.Errorf("csv line %d: %d fields, header has %d", line, len(rec), len(headers))
		}
		row := make([]any, len(headers))
		for i, val := range rec {
			if p.opt.TrimSpace {
				val = strings.TrimSpace(val)
			}
			row[i] = emptyToNil(val)
		}
		rows = append(rows, row)
	}
	return headers, rows, nil
}

// emptyToNil converts an empty string to nil; all other values are returned as-is.
func emptyToNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isBlank reports a record consisting of a single empty field, which is how
// encoding/csv returns a whitespace-only line.
func isBlank(rec []string) bool {
	return len(rec) == 1 && strings.TrimSpace(rec[0]) == ""
}

// normalizeHeaders trims header cells and names blank ones by position.
// Labels are otherwise kept verbatim; identifier folding happens later.
func normalizeHeaders(h []string) []string {
	res := make([]string, len(h))
	for i, col := range h {
		c := strings.TrimSpace(col)
		if c == "" {
			c = fmt.Sprintf("column_%d", i+1)
		}
		res[i] = c
	}
	return res
}
