package tabular

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/dqgate/internal/template"
)

func TestParseCell(t *testing.T) {
	tests := []struct {
		raw  string
		want Cell
	}{
		{raw: "", want: Null},
		{raw: "   ", want: Null},
		{raw: "NA", want: Null},
		{raw: "null", want: Null},
		{raw: "NaN", want: Null},
		{raw: "0", want: Text("0")},
		{raw: " x ", want: Text(" x ")},
		{raw: "none", want: Text("none")},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCell(tt.raw))
		})
	}
}

func TestTable_Counts(t *testing.T) {
	tbl := NewTable("t", []string{"id", "name"}, [][]Cell{
		{Text("1"), Text("a")},
		{Text("2"), Null},
		{Text("1"), Text("a")},
		{Text("1"), Text("a")},
		{Text("3")}, // short row padded with null
	})

	assert.Equal(t, 5, tbl.NumRows())
	assert.Equal(t, 10, tbl.CellCount())
	assert.Equal(t, 2, tbl.NullCount())
	assert.Equal(t, 2, tbl.DuplicateRowCount())

	col, ok := tbl.Column("name")
	require.True(t, ok)
	assert.Len(t, col, 5)
	_, ok = tbl.Column("missing")
	assert.False(t, ok)
}

func TestTable_DuplicateDistinguishesNullFromEmpty(t *testing.T) {
	tbl := NewTable("t", []string{"a"}, [][]Cell{{Text("")}, {Null}})
	assert.Equal(t, 0, tbl.DuplicateRowCount())
}

func TestCSVParser(t *testing.T) {
	data := []byte("report generated 2024-01-01\n" +
		"id,name,extra\n" +
		"1,alice,x\n" +
		"\n" +
		"2,,y\n" +
		"3,carol\n")

	tbl, err := CSVParser{}.Parse(data, Options{Sheet: "customers", HeaderRow: 2})
	require.NoError(t, err)

	assert.Equal(t, "customers", tbl.Name)
	assert.Equal(t, []string{"id", "name", "extra"}, tbl.Columns)
	require.Equal(t, 3, tbl.NumRows(), "blank line skipped")
	assert.Equal(t, Null, tbl.Rows[1][1])
	assert.Equal(t, Null, tbl.Rows[2][2], "ragged row padded")
}

func TestCSVParser_EmptyFieldsAreANullRow(t *testing.T) {
	tbl, err := CSVParser{}.Parse([]byte("id,name\n1,a\n,\n"), Options{HeaderRow: 1})
	require.NoError(t, err)

	require.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, Row{Null, Null}, tbl.Rows[1])
	assert.Equal(t, 2, tbl.NullCount())
}

func TestCSVParser_ColumnSubset(t *testing.T) {
	data := []byte("id,name,extra\n1,a,b\n")

	tbl, err := CSVParser{}.Parse(data, Options{HeaderRow: 1, Columns: []string{"name", "id", "missing"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "id"}, tbl.Columns)
	assert.Equal(t, []string{"id", "name", "extra"}, tbl.SourceColumns())
	assert.Equal(t, Row{Text("a"), Text("1")}, tbl.Rows[0])
}

func TestCSVParser_BOMAndDuplicateHeaders(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("id,id,\n1,2,3\n")...)

	tbl, err := CSVParser{}.Parse(data, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "id.1", "Unnamed: 2"}, tbl.Columns)
}

func TestCSVParser_HeaderOnly(t *testing.T) {
	tbl, err := CSVParser{}.Parse([]byte("id,name\n"), Options{HeaderRow: 1})
	require.NoError(t, err)
	assert.True(t, tbl.Empty())
	assert.Equal(t, []string{"id", "name"}, tbl.Columns)
}

func TestCSVParser_EmptyInput(t *testing.T) {
	tbl, err := CSVParser{}.Parse(nil, Options{HeaderRow: 1})
	require.NoError(t, err)
	assert.True(t, tbl.Empty())
	assert.Empty(t, tbl.Columns)
}

func TestCSVParser_Delimiter(t *testing.T) {
	tbl, err := CSVParser{Delimiter: ';'}.Parse([]byte("a;b\n1;2\n"), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tbl.Columns)
}

func workbook(t *testing.T, sheet string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	_, err := f.NewSheet(sheet)
	require.NoError(t, err)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestExcelParser(t *testing.T) {
	data := workbook(t, "Orders", [][]any{
		{"order_id", "amount"},
		{"A1", 10},
		{"A2", nil},
	})

	tbl, err := ExcelParser{}.Parse(data, Options{Sheet: "Orders", HeaderRow: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"order_id", "amount"}, tbl.Columns)
	require.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, Text("10"), tbl.Rows[0][1])
	assert.Equal(t, Null, tbl.Rows[1][1])
}

func TestExcelParser_MissingSheet(t *testing.T) {
	data := workbook(t, "Orders", [][]any{{"a"}, {"1"}})

	_, err := ExcelParser{}.Parse(data, Options{Sheet: "Nope"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSheetNotFound))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	p, err := reg.For(template.FileCSV)
	require.NoError(t, err)
	assert.IsType(t, CSVParser{}, p)

	_, err = reg.For(template.FileType("parquet"))
	assert.ErrorIs(t, err, ErrUnsupportedFileType)

	reg.Register("parquet", CSVParser{})
	_, err = reg.For(template.FileType("parquet"))
	assert.NoError(t, err)
}

func TestSkipBOM(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{name: "file with BOM", input: append([]byte{0xEF, 0xBB, 0xBF}, "hello"...), expected: "hello"},
		{name: "file without BOM", input: []byte("hello"), expected: "hello"},
		{name: "empty file", input: []byte{}, expected: ""},
		{name: "only BOM", input: []byte{0xEF, 0xBB, 0xBF}, expected: ""},
		{name: "partial BOM", input: []byte{0xEF, 0xBB, 'a'}, expected: string([]byte{0xEF, 0xBB, 'a'})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(SkipBOM(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", string(got), tt.expected)
			}
		})
	}
}

func TestUTF8Sanitizer(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{name: "valid ASCII", input: []byte("hello,world"), expected: "hello,world"},
		{name: "valid multibyte", input: []byte("caf\xc3\xa9"), expected: "café"},
		{name: "invalid byte", input: []byte{'h', 'e', 0x80, 'l', 'o'}, expected: "he?lo"},
		{name: "truncated sequence at EOF", input: []byte{'a', 0xc3}, expected: "a?"},
		{name: "empty input", input: []byte{}, expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(NewUTF8Sanitizer(bytes.NewReader(tt.input)))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.expected {
				t.Errorf("got %q, want %q", string(got), tt.expected)
			}
		})
	}
}

// oneByteReader forces multi-byte runes to straddle Read calls.
type oneByteReader struct{ data []byte }

func (r *oneByteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestUTF8Sanitizer_SplitRune(t *testing.T) {
	got, err := io.ReadAll(NewUTF8Sanitizer(&oneByteReader{data: []byte("\xe4\xb8\x96x")}))
	require.NoError(t, err)
	assert.Equal(t, "世x", string(got))
}
