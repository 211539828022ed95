// Package tabular materializes dataset bytes into an in-memory table.
//
// A [Table] is a rectangular grid of [Cell] values addressed by column name.
// Parsers for each supported file type implement [Parser] and are looked up
// through a [Registry] keyed by the template's file type.
package tabular

import (
	"strings"
)

// Cell is a single table value. Valid is false for nulls, following the
// pgtype convention used for the persistence layer.
type Cell struct {
	Value string
	Valid bool
}

// Null is the zero Cell.
var Null = Cell{}

// Text returns a non-null cell.
func Text(s string) Cell {
	return Cell{Value: s, Valid: true}
}

// Row is one data row; its length always equals the table's column count.
type Row []Cell

// Table is a parsed sheet.
//
// Columns lists the materialized columns. Header lists every column found in
// the source header row, including ones dropped by a column subset; it is
// what structural checks compare against the template.
type Table struct {
	Name    string
	Columns []string
	Header  []string
	Rows    []Row

	index map[string]int
}

// NewTable builds a table, padding or truncating rows to the column count.
func NewTable(name string, columns []string, rows [][]Cell) *Table {
	t := &Table{
		Name:    name,
		Columns: columns,
		Header:  columns,
		Rows:    make([]Row, 0, len(rows)),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, fitRow(r, len(columns)))
	}
	t.buildIndex()
	return t
}

func fitRow(r []Cell, width int) Row {
	out := make(Row, width)
	copy(out, r)
	return out
}

func (t *Table) buildIndex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, dup := t.index[c]; !dup {
			t.index[c] = i
		}
	}
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int { return len(t.Rows) }

// NumCols returns the number of materialized columns.
func (t *Table) NumCols() int { return len(t.Columns) }

// Empty reports whether the table has no data rows.
func (t *Table) Empty() bool { return len(t.Rows) == 0 }

// CellCount returns rows × columns.
func (t *Table) CellCount() int { return len(t.Rows) * len(t.Columns) }

// ColumnIndex returns the position of a column by exact name.
func (t *Table) ColumnIndex(name string) (int, bool) {
	if t.index == nil {
		t.buildIndex()
	}
	i, ok := t.index[name]
	return i, ok
}

// HasColumn reports whether name is a materialized column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.ColumnIndex(name)
	return ok
}

// SourceColumns returns the columns present in the source header.
func (t *Table) SourceColumns() []string {
	if t.Header != nil {
		return t.Header
	}
	return t.Columns
}

// Column returns every cell of the named column in row order.
func (t *Table) Column(name string) ([]Cell, bool) {
	i, ok := t.ColumnIndex(name)
	if !ok {
		return nil, false
	}
	out := make([]Cell, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out, true
}

// NullCount returns the number of null cells across the table.
func (t *Table) NullCount() int {
	n := 0
	for _, row := range t.Rows {
		for _, c := range row {
			if !c.Valid {
				n++
			}
		}
	}
	return n
}

// DuplicateRowCount returns how many rows repeat an earlier row exactly.
// The first occurrence of each distinct row is not counted.
func (t *Table) DuplicateRowCount() int {
	seen := make(map[string]struct{}, len(t.Rows))
	dups := 0
	for _, row := range t.Rows {
		key := rowKey(row)
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}

// rowKey encodes a row so that nulls and empty strings stay distinct.
func rowKey(row Row) string {
	var b strings.Builder
	for _, c := range row {
		if c.Valid {
			b.WriteByte('v')
			b.WriteString(c.Value)
		} else {
			b.WriteByte('n')
		}
		b.WriteByte(0)
	}
	return b.String()
}

// naValues are the source strings read as nulls, matching the defaults
// dataframe tooling uses so metrics agree with what analysts see.
var naValues = map[string]bool{
	"":         true,
	"#N/A":     true,
	"#N/A N/A": true,
	"#NA":      true,
	"-1.#IND":  true,
	"-1.#QNAN": true,
	"-NaN":     true,
	"-nan":     true,
	"1.#IND":   true,
	"1.#QNAN":  true,
	"<NA>":     true,
	"N/A":      true,
	"NA":       true,
	"NULL":     true,
	"NaN":      true,
	"None":     true,
	"n/a":      true,
	"nan":      true,
	"null":     true,
}

// ParseCell converts a raw source string into a Cell.
func ParseCell(raw string) Cell {
	if naValues[strings.TrimSpace(raw)] {
		return Null
	}
	return Text(raw)
}

// CleanHeader removes common artifacts from a header cell: surrounding
// whitespace, a spreadsheet formula prefix (="...") and stray quotes.
func CleanHeader(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}
	return strings.Trim(s, `"'`)
}
