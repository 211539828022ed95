package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func csvTemplate(id string, version int, pattern string) TemplateDef {
	return TemplateDef{
		TemplateID:  id,
		Version:     version,
		FileType:    FileCSV,
		FilePattern: pattern,
		Sheets:      []SheetDef{{Name: "data", Required: true}},
	}
}

func TestDecode_PreservesColumnOrder(t *testing.T) {
	def, err := Decode([]byte(`
template_id: customers
version: 1
file_type: csv
file_pattern: "incoming/customers"
sheets:
  - name: customers
    required: true
    header_row: 2
    columns:
      zeta: {required: true}
      alpha: {required: false, type: integer}
      mid: {required: true}
    expectations: [customers_basic]
`))
	require.NoError(t, err)
	require.NoError(t, def.Validate())

	sheet := def.Sheets[0]
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, sheet.Columns.Names())
	assert.Equal(t, []string{"zeta", "mid"}, sheet.Columns.Required())
	assert.Equal(t, TypeInteger, sheet.Columns[1].Type)
	assert.Equal(t, 2, sheet.HeaderRow)
	assert.Equal(t, []string{"customers_basic"}, sheet.Expectations)
}

func TestDecode_DuplicateColumnRejected(t *testing.T) {
	_, err := Decode([]byte(`
template_id: t
version: 1
file_type: csv
file_pattern: x
sheets:
  - name: s
    columns:
      id: {required: true}
      id: {required: false}
`))
	require.Error(t, err)
}

func TestDecode_UnknownFieldRejected(t *testing.T) {
	_, err := Decode([]byte(`
template_id: t
version: 1
file_type: csv
file_pattern: x
header_rows: 3
sheets: [{name: s}]
`))
	require.Error(t, err)
}

func TestColumns_MarshalRoundTripKeepsOrder(t *testing.T) {
	cols := Columns{
		{Name: "b", ColumnDef: ColumnDef{Required: true}},
		{Name: "a", ColumnDef: ColumnDef{Type: TypeDate}},
	}
	out, err := yaml.Marshal(struct {
		Columns Columns `yaml:"columns"`
	}{cols})
	require.NoError(t, err)

	var back struct {
		Columns Columns `yaml:"columns"`
	}
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, cols, back.Columns)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TemplateDef)
		wantErr bool
	}{
		{name: "valid", mutate: func(*TemplateDef) {}},
		{name: "missing id", mutate: func(d *TemplateDef) { d.TemplateID = "" }, wantErr: true},
		{name: "zero version", mutate: func(d *TemplateDef) { d.Version = 0 }, wantErr: true},
		{name: "unknown file type", mutate: func(d *TemplateDef) { d.FileType = "parquet" }, wantErr: true},
		{name: "malformed pattern", mutate: func(d *TemplateDef) { d.FilePattern = "([a-z" }, wantErr: true},
		{name: "empty pattern", mutate: func(d *TemplateDef) { d.FilePattern = "" }, wantErr: true},
		{name: "no sheets", mutate: func(d *TemplateDef) { d.Sheets = nil }, wantErr: true},
		{name: "unnamed sheet", mutate: func(d *TemplateDef) { d.Sheets = []SheetDef{{}} }, wantErr: true},
		{
			name: "duplicate sheet",
			mutate: func(d *TemplateDef) {
				d.Sheets = []SheetDef{{Name: "a"}, {Name: "a"}}
			},
			wantErr: true,
		},
		{
			name: "negative header row",
			mutate: func(d *TemplateDef) {
				d.Sheets = []SheetDef{{Name: "a", HeaderRow: -1}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := csvTemplate("t", 1, "data/")
			tt.mutate(&def)
			err := def.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_DefaultsHeaderRow(t *testing.T) {
	def := csvTemplate("t", 1, "x")
	require.NoError(t, def.Validate())
	assert.Equal(t, 1, def.Sheets[0].HeaderRow)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "b.yaml", `
template_id: orders
version: 1
file_type: excel
file_pattern: "orders/"
sheets: [{name: Orders, required: true}]
`)
	writeTemplate(t, dir, "a.yml", `
template_id: customers
version: 3
file_type: csv
file_pattern: "customers/"
sheets: [{name: customers, required: true}]
`)
	writeTemplate(t, dir, "notes.txt", "not a template")

	reg, err := LoadDir(dir)
	require.NoError(t, err)
	require.Equal(t, 2, reg.Count())

	all := reg.All()
	assert.Equal(t, "customers", all[0].TemplateID, "lexical file order")
	assert.Equal(t, "orders", all[1].TemplateID)

	got, ok := reg.Get("orders")
	require.True(t, ok)
	assert.Equal(t, FileExcel, got.FileType)
}

func TestLoadDir_FailsFastOnInvalidTemplate(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "good.yaml", `
template_id: ok
version: 1
file_type: csv
file_pattern: "ok/"
sheets: [{name: s}]
`)
	writeTemplate(t, dir, "bad.yaml", `
template_id: bad
version: 1
file_type: csv
file_pattern: "(unclosed"
sheets: [{name: s}]
`)

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.yaml")
}

func TestLoadDir_MissingDir(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestResolve_HighestVersionWins(t *testing.T) {
	reg, err := NewRegistry(
		csvTemplate("sales", 1, `incoming/sales_.*\.csv`),
		csvTemplate("sales", 2, `incoming/sales_.*\.csv`),
		csvTemplate("other", 5, `incoming/other`),
	)
	require.NoError(t, err)

	got, ok := reg.Resolve("incoming/sales_2024.csv")
	require.True(t, ok)
	assert.Equal(t, 2, got.Version)
	assert.True(t, got.Matches("incoming/sales_2024.csv"))
}

func TestResolve_OrderIndependentOfRegistration(t *testing.T) {
	reg, err := NewRegistry(
		csvTemplate("sales", 2, `incoming/sales`),
		csvTemplate("sales", 1, `incoming/sales`),
	)
	require.NoError(t, err)

	got, ok := reg.Resolve("incoming/sales.csv")
	require.True(t, ok)
	assert.Equal(t, 2, got.Version)
}

func TestResolve_TieGoesToFirstRegistered(t *testing.T) {
	reg, err := NewRegistry(
		csvTemplate("first", 3, `data/`),
		csvTemplate("second", 3, `data/`),
	)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		got, ok := reg.Resolve("data/file.csv")
		require.True(t, ok)
		assert.Equal(t, "first", got.TemplateID)
	}
	assert.Len(t, reg.Matching("data/file.csv"), 2)
}

func TestResolve_AnchoredAtStart(t *testing.T) {
	reg, err := NewRegistry(csvTemplate("sales", 1, `sales_`))
	require.NoError(t, err)

	_, ok := reg.Resolve("incoming/sales_2024.csv")
	assert.False(t, ok, "pattern must match at the start of the filename")

	_, ok = reg.Resolve("sales_2024.csv")
	assert.True(t, ok)
}

func TestResolve_NoMatch(t *testing.T) {
	reg, err := NewRegistry(csvTemplate("sales", 1, `sales_`))
	require.NoError(t, err)

	got, ok := reg.Resolve("inventory.csv")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestResolve_EmptyRegistry(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)
	_, ok := reg.Resolve("anything")
	assert.False(t, ok)
}
