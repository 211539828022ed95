package structural

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/dqgate/internal/tabular"
	"github.com/JonMunkholm/dqgate/internal/template"
)

func sheetDef(cols ...template.Column) template.SheetDef {
	return template.SheetDef{Name: "data", Required: true, HeaderRow: 1, Columns: cols}
}

func required(name string) template.Column {
	return template.Column{Name: name, ColumnDef: template.ColumnDef{Required: true}}
}

func optional(name string) template.Column {
	return template.Column{Name: name}
}

func table(columns ...string) *tabular.Table {
	row := make([]tabular.Cell, len(columns))
	for i := range row {
		row[i] = tabular.Text("v")
	}
	return tabular.NewTable("data", columns, [][]tabular.Cell{row})
}

func TestCheck_ExtraColumnsOnlyWarn(t *testing.T) {
	res, err := Check(table("id", "name", "extra"), sheetDef(required("id"), required("name")))
	require.NoError(t, err)

	assert.True(t, res.Passed)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{"Unexpected columns present: ['extra']"}, res.Warnings)
}

func TestCheck_MissingRequiredColumn(t *testing.T) {
	res, err := Check(table("name"), sheetDef(required("id")))
	require.Error(t, err)

	var failure *Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, res, failure.Result)

	assert.False(t, res.Passed)
	assert.Equal(t, []string{"Missing required columns: ['id']"}, res.Errors)
	assert.Equal(t, []string{"Unexpected columns present: ['name']"}, res.Warnings)
}

func TestCheck_MissingColumnsSorted(t *testing.T) {
	res, _ := Check(table("other"), sheetDef(required("zeta"), required("alpha"), required("mid")))
	assert.Equal(t, []string{"Missing required columns: ['alpha', 'mid', 'zeta']"}, res.Errors)
}

func TestCheck_UnexpectedColumnsSorted(t *testing.T) {
	res, err := Check(table("id", "z", "b"), sheetDef(required("id")))
	require.NoError(t, err)
	assert.Equal(t, []string{"Unexpected columns present: ['b', 'z']"}, res.Warnings)
}

func TestCheck_OptionalColumnMayBeAbsent(t *testing.T) {
	res, err := Check(table("id"), sheetDef(required("id"), optional("email")))
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Empty(t, res.Warnings)
}

func TestCheck_EmptySheetStopsEarly(t *testing.T) {
	empty := tabular.NewTable("data", []string{"unrelated"}, nil)

	res, err := Check(empty, sheetDef(required("id")))
	require.Error(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, []string{MsgSheetEmpty}, res.Errors)
	assert.Empty(t, res.Warnings, "column checks must not run on an empty sheet")
}

func TestCheck_SheetOfEmptyFieldsIsNotEmpty(t *testing.T) {
	tbl, err := tabular.CSVParser{}.Parse([]byte("id,name\n,\n,\n"), tabular.Options{Sheet: "data", HeaderRow: 1})
	require.NoError(t, err)

	res, err := Check(tbl, sheetDef(required("id"), required("name")))
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.NotContains(t, res.Errors, MsgSheetEmpty)
	assert.Equal(t, 2, tbl.NumRows())
}

func TestCheck_NilTable(t *testing.T) {
	res, err := Check(nil, sheetDef())
	require.Error(t, err)
	assert.Equal(t, []string{MsgSheetEmpty}, res.Errors)
}

func TestCheck_NoDeclaredColumns(t *testing.T) {
	res, err := Check(table("anything", "goes"), sheetDef())
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Empty(t, res.Warnings)
}

func TestCheck_UsesSourceHeaderForWarnings(t *testing.T) {
	tbl, err := tabular.CSVParser{}.Parse([]byte("id,extra\n1,2\n"), tabular.Options{Columns: []string{"id"}})
	require.NoError(t, err)

	res, err := Check(tbl, sheetDef(required("id")))
	require.NoError(t, err)
	assert.Equal(t, []string{"Unexpected columns present: ['extra']"}, res.Warnings)
}

// Passed is false exactly when Errors is non-empty, whatever extras appear.
func TestCheck_PassedIffRequiredSubset(t *testing.T) {
	def := sheetDef(required("a"), required("b"), optional("c"))

	tests := []struct {
		columns []string
		passed  bool
	}{
		{[]string{"a", "b"}, true},
		{[]string{"a", "b", "c"}, true},
		{[]string{"a", "b", "x", "y"}, true},
		{[]string{"b", "a"}, true},
		{[]string{"a"}, false},
		{[]string{"a", "c", "x"}, false},
		{[]string{"x"}, false},
	}

	for _, tt := range tests {
		res, err := Check(table(tt.columns...), def)
		assert.Equal(t, tt.passed, res.Passed, "columns %v", tt.columns)
		assert.Equal(t, !tt.passed, len(res.Errors) > 0)
		assert.Equal(t, !tt.passed, err != nil)
	}
}

func TestFailure_Error(t *testing.T) {
	f := &Failure{Result: Result{SheetName: "s", Errors: []string{"a", "b"}}}
	assert.Equal(t, `structural validation failed for sheet "s": a; b`, f.Error())
}
