package tabular

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/JonMunkholm/dqgate/internal/template"
)

// ErrUnsupportedFileType is returned when no parser is registered for a
// template's file type.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// ErrSheetNotFound is returned when a workbook has no sheet with the
// requested name.
var ErrSheetNotFound = errors.New("sheet not found")

// Options scopes a parse to one sheet.
type Options struct {
	// Sheet is the worksheet name. Ignored by single-table formats.
	Sheet string

	// HeaderRow is the 1-based row holding column names (default 1).
	HeaderRow int

	// Columns restricts materialized columns to this subset. Declared
	// columns missing from the source are left out rather than failing the
	// parse, so the structural check can report them.
	Columns []string
}

// Parser turns raw bytes into a Table.
type Parser interface {
	Parse(data []byte, opts Options) (*Table, error)
}

// Registry maps file types to parsers.
type Registry struct {
	parsers map[template.FileType]Parser
}

// NewRegistry returns a registry with the built-in CSV and Excel parsers.
func NewRegistry() *Registry {
	return &Registry{
		parsers: map[template.FileType]Parser{
			template.FileCSV:   CSVParser{},
			template.FileExcel: ExcelParser{},
		},
	}
}

// Register installs or replaces the parser for a file type.
func (r *Registry) Register(ft template.FileType, p Parser) {
	if r.parsers == nil {
		r.parsers = make(map[template.FileType]Parser)
	}
	r.parsers[ft] = p
}

// For returns the parser for a file type.
func (r *Registry) For(ft template.FileType) (Parser, error) {
	p, ok := r.parsers[ft]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFileType, ft)
	}
	return p, nil
}

// buildTable turns raw records into a Table using the header row and column
// subset from opts. Shared by every parser.
func buildTable(name string, records [][]string, opts Options) (*Table, error) {
	headerRow := opts.HeaderRow
	if headerRow <= 0 {
		headerRow = 1
	}

	if len(records) < headerRow {
		// No header at all: an empty table with no columns.
		return NewTable(name, nil, nil), nil
	}

	header := dedupeHeader(records[headerRow-1])

	// Decide which source positions to keep.
	keep := make([]int, 0, len(header))
	if len(opts.Columns) > 0 {
		pos := make(map[string]int, len(header))
		for i, h := range header {
			pos[h] = i
		}
		for _, c := range opts.Columns {
			if i, ok := pos[c]; ok {
				keep = append(keep, i)
			}
		}
	} else {
		for i := range header {
			keep = append(keep, i)
		}
	}

	columns := make([]string, len(keep))
	for j, i := range keep {
		columns[j] = header[i]
	}

	var rows [][]Cell
	for _, rec := range records[headerRow:] {
		// Only empty lines are skipped; a record of empty fields is a row
		// of nulls.
		if len(rec) == 0 {
			continue
		}
		row := make([]Cell, len(keep))
		for j, i := range keep {
			if i < len(rec) {
				row[j] = ParseCell(rec[i])
			}
		}
		rows = append(rows, row)
	}

	t := NewTable(name, columns, rows)
	t.Header = header
	return t, nil
}

// dedupeHeader cleans header names and suffixes repeats with ".1", ".2", ...
// Blank names become "Unnamed: N".
func dedupeHeader(raw []string) []string {
	out := make([]string, len(raw))
	counts := make(map[string]int, len(raw))
	for i, h := range raw {
		name := CleanHeader(h)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if n, ok := counts[name]; ok {
			counts[name] = n + 1
			name = name + "." + strconv.Itoa(n+1)
		} else {
			counts[name] = 0
		}
		out[i] = name
	}
	return out
}
