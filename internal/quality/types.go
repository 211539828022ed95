// Package quality evaluates an expectation suite against a sheet and derives
// the aggregate metrics recorded for every run.
//
// Rule execution itself is delegated to an [Evaluator]; this package only
// depends on the [RuleOutcome] shape the evaluator returns. A failing suite
// is a normal, fully reported result. Errors are reserved for suites that
// could not be evaluated at all.
package quality

import (
	"context"
	"time"

	"github.com/JonMunkholm/dqgate/internal/tabular"
)

// RuleOutcome is one evaluated expectation.
type RuleOutcome struct {
	ExpectationType string         `json:"expectation_type"`
	Kwargs          map[string]any `json:"kwargs"`
	Success         bool           `json:"success"`
	Result          map[string]any `json:"result"`
}

// Column returns the "column" kwarg, or "" for table-level rules.
func (o RuleOutcome) Column() string {
	s, _ := o.Kwargs["column"].(string)
	return s
}

// UnexpectedCount returns result.unexpected_count, or 0 when absent.
func (o RuleOutcome) UnexpectedCount() int {
	switch v := o.Result["unexpected_count"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Evaluation is what an Evaluator returns for one suite.
type Evaluation struct {
	Outcomes []RuleOutcome

	// Columns lists the column names referenced by the suite's rules.
	Columns []string
}

// Evaluator runs a named expectation suite against a table.
type Evaluator interface {
	Evaluate(ctx context.Context, table *tabular.Table, suite string) (Evaluation, error)
}

// Metrics are the aggregate quality figures derived from one evaluation.
type Metrics struct {
	ValidationDurationMs int64   `json:"validation_duration_ms"`
	RulesTotal           int     `json:"rules_total"`
	RulesPassed          int     `json:"rules_passed"`
	RulesFailed          int     `json:"rules_failed"`
	QualityScore         float64 `json:"quality_score"`
	NullRatio            float64 `json:"null_ratio"`
	DuplicateRatio       float64 `json:"duplicate_ratio"`
	SchemaChanged        bool    `json:"schema_changed"`

	// InvalidRowCount sums unexpected_count over failing rules. A row that
	// fails several rules is counted once per rule, so this is an upper
	// bound on distinct invalid rows.
	InvalidRowCount int `json:"invalid_row_count"`
}

// Meta identifies a run and the context it was evaluated in. The metrics
// block is embedded so serialized meta carries both.
type Meta struct {
	RunID            string    `json:"run_id"`
	ValidatedAt      time.Time `json:"validated_at"`
	InputKey         string    `json:"input_key"`
	TemplateID       string    `json:"template_id,omitempty"`
	TemplateVersion  int       `json:"template_version,omitempty"`
	SheetName        string    `json:"sheet_name,omitempty"`
	ExpectationSuite string    `json:"expectation_suite"`
	RowCount         int       `json:"row_count"`
	Metrics
}

// RunResult is the outcome of one (sheet, suite) evaluation.
type RunResult struct {
	Success bool          `json:"success"`
	Results []RuleOutcome `json:"results"`
	Metrics Metrics       `json:"metrics"`
	Meta    Meta          `json:"meta"`
}

// FailedRules returns the outcomes that did not succeed.
func (r RunResult) FailedRules() []RuleOutcome {
	var out []RuleOutcome
	for _, o := range r.Results {
		if !o.Success {
			out = append(out, o)
		}
	}
	return out
}
