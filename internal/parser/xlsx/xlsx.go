// Package xlsx reads the first (or a named) worksheet of a spreadsheet upload
// into a header and rectangular rows.
package xlsx

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrEmpty is returned when the selected sheet has no header row.
var ErrEmpty = errors.New("xlsx parser: sheet is empty")

// Options selects the worksheet. An empty Sheet means the first one.
type Options struct {
	Sheet string
}

// Decode reads one worksheet from r. Leading empty rows are skipped and the
// first non-empty row is the header. Blank header cells are named
// column_<n>, cells past the header width are an error, and empty cells
// become nil.
func Decode(r io.Reader, opt Options) ([]string, [][]any, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("xlsx parser: open: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := opt.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, nil, ErrEmpty
		}
		sheet = sheets[0]
	}
	iter, err := f.Rows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("xlsx parser: sheet %q: %w", sheet, err)
	}
	defer func() { _ = iter.Close() }()

	var (
		headers []string
		rows    [][]any
		line    int
	)
	for iter.Next() {
		line++
		cells, err := iter.Columns()
		if err != nil {
			return nil, nil, fmt.Errorf("xlsx parser: sheet %q row %d: %w", sheet, line, err)
		}
		cells = trimTrailing(cells)
		if headers == nil {
			if len(cells) == 0 {
				continue
			}
			headers = make([]string, len(cells))
			for i, c := range cells {
				c = strings.TrimSpace(c)
				if c == "" {
					c = fmt.Sprintf("column_%d", i+1)
				}
				headers[i] = c
			}
			continue
		}
		if len(cells) == 0 {
			continue
		}
		if len(cells) > len(headers) {
			return nil, nil, fmt.Errorf("xlsx parser: sheet %q row %d: %d cells, header has %d", sheet, line, len(cells), len(headers))
		}
		row := make([]any, len(headers))
		for i, c := range cells {
			if c != "" {
				row[i] = c
			}
		}
		rows = append(rows, row)
	}
	if err := iter.Error(); err != nil {
		return nil, nil, fmt.Errorf("xlsx parser: sheet %q: %w", sheet, err)
	}
	if headers == nil {
		return nil, nil, ErrEmpty
	}
	return headers, rows, nil
}

// trimTrailing drops empty cells at the end of a row; spreadsheets often carry
// formatting past the last value.
func trimTrailing(cells []string) []string {
	n := len(cells)
	for n > 0 && strings.TrimSpace(cells[n-1]) == "" {
		n--
	}
	return cells[:n]
}
