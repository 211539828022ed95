package tabular

// values.go recognizes typed values in the loose formats exports produce:
//   - Currency symbols, thousands separators and accounting negatives "(1.50)"
//   - US, EU and ISO dates, with a pivot for two-digit years
//   - yes/no, t/f and 1/0 booleans
//
// Each Parse* function trims its input and reports ok=false for empty or
// unrecognized values.

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericRegex matches integers, decimals and scientific notation after
// cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot bounds how far into the future a two-digit year may
// land before it is read as the previous century.
var TwoDigitYearPivot = 20

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"2006-01-02", "2006/01/02", "2006.01.02",
		time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

// cleanNumber strips currency and grouping and turns an accounting negative
// into a leading minus.
func cleanNumber(s string) string {
	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.NewReplacer("$", "", "€", "", "£", "", ",", "").Replace(s)
	s = strings.TrimSpace(s)

	if negative {
		s = "-" + s
	}
	return s
}

// ParseNumber parses a decimal such as "1,234.50", "$12" or "(3.5)".
func ParseNumber(s string) (float64, bool) {
	s = cleanNumber(s)
	if !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// ParseInteger parses a whole number, allowing grouping separators.
func ParseInteger(s string) (int64, bool) {
	i, err := strconv.ParseInt(cleanNumber(s), 10, 64)
	return i, err == nil
}

// ParseBool accepts true/false, yes/no, t/f, y/n and 1/0 in any case.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

// ParseDate parses s with the known layouts. Four-digit-year layouts are
// tried first since they are unambiguous; two-digit years later than
// now+TwoDigitYearPivot are moved back a century.
func ParseDate(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := now.Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}
