package quality

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/JonMunkholm/dqgate/internal/tabular"
)

// Engine runs suites through an Evaluator and derives metrics.
type Engine struct {
	evaluator Evaluator
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used to time evaluations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine backed by evaluator.
func NewEngine(evaluator Evaluator, opts ...Option) *Engine {
	e := &Engine{evaluator: evaluator, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs suite against table.
//
// The returned RunResult has Success, Results and Metrics populated; Meta is
// left for the caller, which owns run identity. An error means the suite
// could not be evaluated; rule failures are reported in the result.
func (e *Engine) Evaluate(ctx context.Context, table *tabular.Table, suite string) (RunResult, error) {
	start := e.now()
	eval, err := e.evaluator.Evaluate(ctx, table, suite)
	if err != nil {
		return RunResult{}, fmt.Errorf("evaluate suite %q: %w", suite, err)
	}
	elapsed := e.now().Sub(start)

	m := ComputeMetrics(table, eval)
	m.ValidationDurationMs = elapsed.Milliseconds()

	success := true
	for _, o := range eval.Outcomes {
		if !o.Success {
			success = false
			break
		}
	}

	results := eval.Outcomes
	if results == nil {
		results = []RuleOutcome{}
	}

	return RunResult{
		Success: success,
		Results: results,
		Metrics: m,
	}, nil
}

// ComputeMetrics derives every metric except the duration.
func ComputeMetrics(table *tabular.Table, eval Evaluation) Metrics {
	var m Metrics

	m.RulesTotal = len(eval.Outcomes)
	for _, o := range eval.Outcomes {
		if o.Success {
			m.RulesPassed++
		} else {
			m.InvalidRowCount += o.UnexpectedCount()
		}
	}
	m.RulesFailed = m.RulesTotal - m.RulesPassed

	if m.RulesTotal == 0 {
		m.QualityScore = 1.0
	} else {
		m.QualityScore = Round4(float64(m.RulesPassed) / float64(m.RulesTotal))
	}

	if table != nil {
		if cells := table.CellCount(); cells > 0 {
			m.NullRatio = Round4(float64(table.NullCount()) / float64(cells))
		}
		if rows := table.NumRows(); rows > 0 {
			m.DuplicateRatio = Round4(float64(table.DuplicateRowCount()) / float64(rows))
		}
		m.SchemaChanged = !sameSet(eval.Columns, table.Columns)
	} else {
		m.SchemaChanged = len(eval.Columns) > 0
	}

	return m
}

// Round4 rounds x to four decimal places.
func Round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}

func sameSet(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, s := range a {
		as[s] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, s := range b {
		bs[s] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for s := range as {
		if _, ok := bs[s]; !ok {
			return false
		}
	}
	return true
}
