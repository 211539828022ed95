package routing

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/JonMunkholm/dqgate/internal/pipeline"
)

// PrintReport writes a human-readable per-rule report to w.
func PrintReport(w io.Writer, report *pipeline.Report) {
	fmt.Fprintf(w, "Run %s\n", report.RunID)
	fmt.Fprintf(w, "Dataset: %s\n", report.InputKey)
	if report.TemplateID != "" {
		fmt.Fprintf(w, "Template: %s v%d\n", report.TemplateID, report.TemplateVersion)
	}

	for _, s := range report.Structural {
		status := "PASS"
		if !s.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(w, "\nSheet %q structure: %s\n", s.SheetName, status)
		for _, e := range s.Errors {
			fmt.Fprintf(w, "   error  : %s\n", e)
		}
		for _, warn := range s.Warnings {
			fmt.Fprintf(w, "   warning: %s\n", warn)
		}
	}
	for _, name := range report.SkippedSheets {
		fmt.Fprintf(w, "\nSheet %q skipped (optional, not present)\n", name)
	}

	for _, suite := range report.Suites {
		header := "Suite " + suite.Meta.ExpectationSuite
		if suite.Meta.SheetName != "" {
			header += " on sheet " + suite.Meta.SheetName
		}
		fmt.Fprintf(w, "\n%s (score %.4f, %d/%d rules passed):\n\n",
			header, suite.Metrics.QualityScore, suite.Metrics.RulesPassed, suite.Metrics.RulesTotal)

		for i, o := range suite.Results {
			status := "PASS"
			if !o.Success {
				status = "FAIL"
			}
			fmt.Fprintf(w, "%d. %s\n", i+1, o.ExpectationType)
			fmt.Fprintf(w, "   Params : %s\n", formatMap(o.Kwargs))
			fmt.Fprintf(w, "   Result : %s\n", status)
			if !o.Success {
				fmt.Fprintf(w, "   Details: %s\n", formatMap(o.Result))
			}
			fmt.Fprintln(w)
		}

		if failed := suite.FailedRules(); len(failed) > 0 {
			fmt.Fprintf(w, "Failed rules (%d):\n", len(failed))
			for _, o := range failed {
				fmt.Fprintf(w, "  - %s %s\n", o.ExpectationType, formatMap(o.Kwargs))
			}
			fmt.Fprintln(w)
		}
	}

	switch {
	case report.Halted:
		fmt.Fprintf(w, "Dataset validation HALTED at sheet %q\n", report.HaltedSheet)
	case report.Success:
		fmt.Fprintln(w, "Dataset validation PASSED")
	default:
		fmt.Fprintln(w, "Dataset validation FAILED")
	}
}

// formatMap renders a map with sorted keys so output is stable.
func formatMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, m[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
