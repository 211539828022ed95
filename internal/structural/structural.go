// Package structural performs schema-shape checks on a parsed sheet before
// any semantic rule runs against it.
//
// Checks run in a fixed order:
//
//  1. Emptiness: a sheet with no data rows fails with "sheet is empty" and
//     nothing else is examined.
//  2. Column presence: when the template declares columns, every required
//     column must be present. Missing ones fail the sheet.
//
// Columns found in the data but not declared are reported as warnings and
// never fail the sheet.
package structural

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JonMunkholm/dqgate/internal/tabular"
	"github.com/JonMunkholm/dqgate/internal/template"
)

// MsgSheetEmpty is the error recorded for a sheet without data rows.
const MsgSheetEmpty = "sheet is empty"

// Result is the outcome of checking one sheet.
// Passed is false exactly when Errors is non-empty.
type Result struct {
	SheetName string   `json:"sheet_name"`
	Passed    bool     `json:"passed"`
	Errors    []string `json:"errors"`
	Warnings  []string `json:"warnings"`
}

// Failure is returned alongside a failed Result. It carries the same payload
// so a caller can persist the outcome before halting the sheet's pipeline.
type Failure struct {
	Result Result
}

func (f *Failure) Error() string {
	return fmt.Sprintf("structural validation failed for sheet %q: %s",
		f.Result.SheetName, strings.Join(f.Result.Errors, "; "))
}

// Check validates table against sheet.
//
// The returned Result is always populated. When the sheet fails, the error is
// a *Failure wrapping that same Result; callers that only need the data can
// ignore the error and branch on Result.Passed.
func Check(table *tabular.Table, sheet template.SheetDef) (Result, error) {
	res := Result{
		SheetName: sheet.Name,
		Passed:    true,
		Errors:    []string{},
		Warnings:  []string{},
	}

	if table == nil || table.Empty() {
		res.Errors = append(res.Errors, MsgSheetEmpty)
		return fail(res)
	}

	if sheet.HasColumns() {
		actual := toSet(table.SourceColumns())
		declared := toSet(sheet.Columns.Names())

		var missing []string
		for _, name := range sheet.Columns.Required() {
			if !actual[name] {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			res.Errors = append(res.Errors, "Missing required columns: "+formatList(missing))
		}

		var unexpected []string
		for name := range actual {
			if !declared[name] {
				unexpected = append(unexpected, name)
			}
		}
		if len(unexpected) > 0 {
			res.Warnings = append(res.Warnings, "Unexpected columns present: "+formatList(unexpected))
		}
	}

	if len(res.Errors) > 0 {
		return fail(res)
	}
	return res, nil
}

func fail(res Result) (Result, error) {
	res.Passed = false
	return res, &Failure{Result: res}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}

// formatList renders names sorted and quoted, e.g. ['a', 'b'], matching the
// format operators already grep for in existing audit records.
func formatList(names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	quoted := make([]string, len(sorted))
	for i, n := range sorted {
		quoted[i] = "'" + n + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
