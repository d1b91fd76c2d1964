// Package parser turns an uploaded byte stream into a rectangular table of
// ordered column labels and rows. Uploads may be gzip, zstd or xz
// compressed; the format is declared by the caller or sniffed from the file
// name and content.
package parser

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	pcsv "dashboard/internal/parser/csv"
	pjson "dashboard/internal/parser/json"
	"dashboard/internal/parser/xlsx"
)

// Format tags an upload layout.
type Format string

const (
	FormatUnknown     Format = ""
	FormatDelimited   Format = "delimited-text"
	FormatSpreadsheet Format = "spreadsheet"
	FormatStructured  Format = "line-delimited-structured"
)

var (
	// ErrUnknownFormat is returned when neither the declared format nor
	// sniffing identifies the upload.
	ErrUnknownFormat = errors.New("parser: unrecognized format")
	// ErrEmpty is returned when the upload has no header or no data rows.
	ErrEmpty = errors.New("parser: no data rows")
)

// ParseFormat maps a user-supplied tag or common alias to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return FormatUnknown, nil
	case string(FormatDelimited), "csv", "tsv", "delimited":
		return FormatDelimited, nil
	case string(FormatSpreadsheet), "xlsx", "excel":
		return FormatSpreadsheet, nil
	case string(FormatStructured), "json", "ndjson", "jsonl":
		return FormatStructured, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Table is a parsed upload: every row has exactly len(Columns) values, each
// a string or nil.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Options tunes parsing. Zero values pick the defaults.
type Options struct {
	// Name is the upload file name, used for sniffing and decompression.
	Name string
	// Delimiter overrides the CSV field separator.
	Delimiter rune
	// Sheet selects a worksheet for spreadsheets.
	Sheet string
	// TrimSpace trims delimited-text cells.
	TrimSpace bool
}

// Parse decompresses r when needed, resolves the format and parses it.
// Empty tables (no header or zero data rows) yield ErrEmpty.
func Parse(r io.Reader, f Format, opt Options) (Table, error) {
	body, err := Decompress(r, opt.Name)
	if err != nil {
		return Table{}, err
	}
	br := bufio.NewReader(body)
	head, _ := br.Peek(512)

	name := TrimCompressionExt(opt.Name)
	if f == FormatUnknown {
		f = Detect(name, head)
	}

	var (
		cols []string
		rows [][]any
	)
	switch f {
	case FormatDelimited:
		delim := opt.Delimiter
		if delim == 0 {
			delim = sniffDelimiter(name, head)
		}
		cols, rows, err = pcsv.NewParser(pcsv.Options{Comma: delim, TrimSpace: opt.TrimSpace}).Parse(br)
		if errors.Is(err, pcsv.ErrEmpty) {
			err = ErrEmpty
		}
	case FormatStructured:
		cols, rows, err = pjson.Decode(br)
		if errors.Is(err, pjson.ErrEmpty) {
			err = ErrEmpty
		}
	case FormatSpreadsheet:
		cols, rows, err = xlsx.Decode(br, xlsx.Options{Sheet: opt.Sheet})
		if errors.Is(err, xlsx.ErrEmpty) {
			err = ErrEmpty
		}
	default:
		return Table{}, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
	if err != nil {
		if errors.Is(err, ErrEmpty) {
			return Table{}, err
		}
		return Table{}, fmt.Errorf("parser: %s: %w", f, err)
	}
	if len(cols) == 0 || len(rows) == 0 {
		return Table{}, ErrEmpty
	}
	return Table{Columns: cols, Rows: rows}, nil
}

// Detect picks a format from the file extension, falling back to the first
// bytes of the content.
func Detect(name string, head []byte) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv", ".txt":
		return FormatDelimited
	case ".json", ".ndjson", ".jsonl":
		return FormatStructured
	case ".xlsx", ".xlsm":
		return FormatSpreadsheet
	}

	if bytes.HasPrefix(head, []byte("PK\x03\x04")) {
		return FormatSpreadsheet
	}
	s := bytes.TrimSpace(bytes.TrimPrefix(head, []byte("\xef\xbb\xbf")))
	if len(s) == 0 {
		return FormatUnknown
	}
	if s[0] == '{' || s[0] == '[' {
		return FormatStructured
	}
	if bytes.IndexByte(s, 0) >= 0 {
		return FormatUnknown
	}
	return FormatDelimited
}

// sniffDelimiter chooses tab for .tsv files or for a first line that has
// tabs but no commas; otherwise ','. A first line with only semicolons picks
// ';'.
func sniffDelimiter(name string, head []byte) rune {
	if strings.EqualFold(filepath.Ext(name), ".tsv") {
		return '\t'
	}
	line := head
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	commas := bytes.Count(line, []byte(","))
	switch {
	case commas == 0 && bytes.Count(line, []byte("\t")) > 0:
		return '\t'
	case commas == 0 && bytes.Count(line, []byte(";")) > 0:
		return ';'
	default:
		return ','
	}
}

// Decompress wraps r in a decoder chosen by the extension of name
// (.gz, .zst, .xz). Other names are returned unchanged.
func Decompress(r io.Reader, name string) (io.Reader, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("parser: gzip reader: %w", err)
		}
		return zr, nil
	case ".zst":
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("parser: zstd reader: %w", err)
		}
		return dec.IOReadCloser(), nil
	case ".xz":
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("parser: xz reader: %w", err)
		}
		return xr, nil
	default:
		return r, nil
	}
}

// TrimCompressionExt strips one compression suffix: "a.csv.gz" -> "a.csv".
func TrimCompressionExt(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz", ".zst", ".xz":
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	return name
}
