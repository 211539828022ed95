package expectation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/JonMunkholm/dqgate/internal/tabular"
	"github.com/JonMunkholm/dqgate/internal/template"
)

// Supported expectation types.
const (
	ExpectColumnToExist                = "expect_column_to_exist"
	ExpectColumnValuesToNotBeNull      = "expect_column_values_to_not_be_null"
	ExpectColumnValuesToBeUnique       = "expect_column_values_to_be_unique"
	ExpectColumnValuesToBeInSet        = "expect_column_values_to_be_in_set"
	ExpectColumnValuesToMatchRegex     = "expect_column_values_to_match_regex"
	ExpectColumnValuesToBeOfType       = "expect_column_values_to_be_of_type"
	ExpectTableRowCountToBeBetween     = "expect_table_row_count_to_be_between"
	ExpectTableRowCountToBeGreaterThan = "expect_table_row_count_to_be_greater_than"
)

// PartialUnexpectedLimit caps partial_unexpected_list in results.
const PartialUnexpectedLimit = 20

type expectFunc func(t *tabular.Table, kw Kwargs) (bool, map[string]any, error)

var builtins = map[string]expectFunc{
	ExpectColumnToExist:                columnToExist,
	ExpectColumnValuesToNotBeNull:      valuesNotNull,
	ExpectColumnValuesToBeUnique:       valuesUnique,
	ExpectColumnValuesToBeInSet:        valuesInSet,
	ExpectColumnValuesToMatchRegex:     valuesMatchRegex,
	ExpectColumnValuesToBeOfType:       valuesOfType,
	ExpectTableRowCountToBeBetween:     rowCountBetween,
	ExpectTableRowCountToBeGreaterThan: rowCountGreaterThan,
}

// Supported returns whether typ is a known expectation type.
func Supported(typ string) bool {
	_, ok := builtins[typ]
	return ok
}

func columnToExist(t *tabular.Table, kw Kwargs) (bool, map[string]any, error) {
	col, err := kw.String("column")
	if err != nil {
		return false, nil, err
	}
	return t.HasColumn(col), map[string]any{}, nil
}

func valuesNotNull(t *tabular.Table, kw Kwargs) (bool, map[string]any, error) {
	return columnMap(t, kw, true, func(tabular.Cell) bool { return false })
}

func valuesUnique(t *tabular.Table, kw Kwargs) (bool, map[string]any, error) {
	col, err := kw.String("column")
	if err != nil {
		return false, nil, err
	}
	cells, ok := t.Column(col)
	if !ok {
		return false, nil, fmt.Errorf("column %q not found", col)
	}

	counts := make(map[string]int, len(cells))
	for _, c := range cells {
		if c.Valid {
			counts[c.Value]++
		}
	}
	return columnMap(t, kw, false, func(c tabular.Cell) bool {
		return counts[c.Value] > 1
	})
}

func valuesInSet(t *tabular.Table, kw Kwargs) (bool, map[string]any, error) {
	set, err := kw.StringSet("value_set")
	if err != nil {
		return false, nil, err
	}
	return columnMap(t, kw, false, func(c tabular.Cell) bool {
		return !set[c.Value]
	})
}

func valuesMatchRegex(t *tabular.Table, kw Kwargs) (bool, map[string]any, error) {
	pattern, err := kw.String("regex")
	if err != nil {
		return false, nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, nil, fmt.Errorf("regex: %w", err)
	}
	return columnMap(t, kw, false, func(c tabular.Cell) bool {
		return !re.MatchString(c.Value)
	})
}

// valuesOfType checks each non-null value against a template column type.
// Numbers, dates and booleans are recognized in the loose formats exports
// produce (see tabular.ParseNumber and friends).
func valuesOfType(t *tabular.Table, kw Kwargs) (bool, map[string]any, error) {
	typ, err := kw.String("type_")
	if err != nil {
		return false, nil, err
	}

	now := time.Now()
	var valid func(string) bool
	switch template.ColumnType(strings.ToLower(typ)) {
	case template.TypeString:
		valid = func(string) bool { return true }
	case template.TypeInteger:
		valid = func(s string) bool {
			_, ok := tabular.ParseInteger(s)
			return ok
		}
	case template.TypeNumber:
		valid = func(s string) bool {
			_, ok := tabular.ParseNumber(s)
			return ok
		}
	case template.TypeBoolean:
		valid = func(s string) bool {
			_, ok := tabular.ParseBool(s)
			return ok
		}
	case template.TypeDate:
		valid = func(s string) bool {
			_, ok := tabular.ParseDate(s, now)
			return ok
		}
	default:
		return false, nil, fmt.Errorf("unsupported type_ %q", typ)
	}

	return columnMap(t, kw, false, func(c tabular.Cell) bool {
		return !valid(c.Value)
	})
}

func rowCountBetween(t *tabular.Table, kw Kwargs) (bool, map[string]any, error) {
	lo, hasLo, err := kw.OptionalInt("min_value")
	if err != nil {
		return false, nil, err
	}
	hi, hasHi, err := kw.OptionalInt("max_value")
	if err != nil {
		return false, nil, err
	}
	if !hasLo && !hasHi {
		return false, nil, fmt.Errorf("min_value or max_value is required")
	}

	n := t.NumRows()
	ok := (!hasLo || n >= lo) && (!hasHi || n <= hi)
	return ok, map[string]any{"observed_value": n}, nil
}

func rowCountGreaterThan(t *tabular.Table, kw Kwargs) (bool, map[string]any, error) {
	v, has, err := kw.OptionalInt("value")
	if err != nil {
		return false, nil, err
	}
	if !has {
		v = 0
	}
	n := t.NumRows()
	return n > v, map[string]any{"observed_value": n}, nil
}

// columnMap evaluates a per-value predicate over one column and builds the
// standard row-level result block.
//
// Nulls are the unexpected values when nullsUnexpected is set; otherwise they
// are skipped and unexpected_percent is relative to non-null values. The
// optional "mostly" kwarg relaxes success to a minimum passing fraction.
func columnMap(t *tabular.Table, kw Kwargs, nullsUnexpected bool, unexpected func(tabular.Cell) bool) (bool, map[string]any, error) {
	col, err := kw.String("column")
	if err != nil {
		return false, nil, err
	}
	mostly, hasMostly, err := kw.OptionalFloat("mostly")
	if err != nil {
		return false, nil, err
	}
	if hasMostly && (mostly < 0 || mostly > 1) {
		return false, nil, fmt.Errorf("mostly (%v) must be between 0 and 1", mostly)
	}

	cells, ok := t.Column(col)
	if !ok {
		return false, nil, fmt.Errorf("column %q not found", col)
	}

	var missing, bad int
	partial := []any{}
	for _, c := range cells {
		if !c.Valid {
			missing++
			if nullsUnexpected {
				bad++
				if len(partial) < PartialUnexpectedLimit {
					partial = append(partial, nil)
				}
			}
			continue
		}
		if unexpected(c) {
			bad++
			if len(partial) < PartialUnexpectedLimit {
				partial = append(partial, c.Value)
			}
		}
	}

	total := len(cells)
	denom := total - missing
	if nullsUnexpected {
		denom = total
	}

	var pct float64
	if denom > 0 {
		pct = float64(bad) / float64(denom) * 100
	}

	success := bad == 0
	if hasMostly && denom > 0 {
		success = float64(denom-bad)/float64(denom) >= mostly
	}

	result := map[string]any{
		"element_count":           total,
		"unexpected_count":        bad,
		"unexpected_percent":      pct,
		"partial_unexpected_list": partial,
	}
	if !nullsUnexpected {
		result["missing_count"] = missing
	}
	return success, result, nil
}
