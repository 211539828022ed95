package expectation

import (
	"context"
	"fmt"

	"github.com/JonMunkholm/dqgate/internal/quality"
	"github.com/JonMunkholm/dqgate/internal/tabular"
)

// Source loads suites by name. *Store satisfies it.
type Source interface {
	Load(name string) (Suite, error)
}

// Engine evaluates stored suites. It implements quality.Evaluator.
type Engine struct {
	source Source
}

// NewEngine returns an engine reading suites from source.
func NewEngine(source Source) *Engine {
	return &Engine{source: source}
}

// Evaluate loads suite and runs every expectation in order.
//
// An expectation that cannot run (unknown type, missing column, bad kwargs)
// produces a failed outcome carrying exception_info instead of aborting the
// suite, so one misconfigured rule does not hide the others.
func (e *Engine) Evaluate(ctx context.Context, table *tabular.Table, suiteName string) (quality.Evaluation, error) {
	suite, err := e.source.Load(suiteName)
	if err != nil {
		return quality.Evaluation{}, err
	}
	return EvaluateSuite(ctx, table, suite)
}

// EvaluateSuite runs an in-memory suite against table.
func EvaluateSuite(ctx context.Context, table *tabular.Table, suite Suite) (quality.Evaluation, error) {
	outcomes := make([]quality.RuleOutcome, 0, len(suite.Expectations))
	for _, exp := range suite.Expectations {
		if err := ctx.Err(); err != nil {
			return quality.Evaluation{}, err
		}
		outcomes = append(outcomes, run(table, exp))
	}

	return quality.Evaluation{
		Outcomes: outcomes,
		Columns:  suite.Columns(),
	}, nil
}

func run(table *tabular.Table, exp Expectation) quality.RuleOutcome {
	kwargs := exp.Kwargs
	if kwargs == nil {
		kwargs = map[string]any{}
	}

	out := quality.RuleOutcome{
		ExpectationType: exp.Type,
		Kwargs:          kwargs,
		Result:          map[string]any{},
	}

	fn, ok := builtins[exp.Type]
	if !ok {
		out.Result["exception_info"] = exceptionInfo(fmt.Errorf("unknown expectation type %q", exp.Type))
		return out
	}

	success, result, err := fn(table, Kwargs(kwargs))
	if err != nil {
		out.Result["exception_info"] = exceptionInfo(err)
		return out
	}

	out.Success = success
	if result != nil {
		out.Result = result
	}
	return out
}

func exceptionInfo(err error) map[string]any {
	return map[string]any{
		"raised_exception":  true,
		"exception_message": err.Error(),
	}
}
