package quality

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/dqgate/internal/tabular"
)

// fakeEvaluator returns a canned evaluation and records calls.
type fakeEvaluator struct {
	eval  Evaluation
	err   error
	calls []string
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ *tabular.Table, suite string) (Evaluation, error) {
	f.calls = append(f.calls, suite)
	return f.eval, f.err
}

func outcome(column string, success bool, unexpected int) RuleOutcome {
	o := RuleOutcome{
		ExpectationType: "expect_column_values_to_not_be_null",
		Kwargs:          map[string]any{"column": column},
		Success:         success,
		Result:          map[string]any{},
	}
	if unexpected > 0 {
		o.Result["unexpected_count"] = unexpected
	}
	return o
}

func sampleTable() *tabular.Table {
	return tabular.NewTable("s", []string{"id", "name"}, [][]tabular.Cell{
		{tabular.Text("1"), tabular.Text("a")},
		{tabular.Text("2"), tabular.Null},
		{tabular.Text("1"), tabular.Text("a")},
		{tabular.Text("3"), tabular.Text("c")},
	})
}

// steppingClock advances by step on every call.
func steppingClock(step time.Duration) func() time.Time {
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		now := t
		t = t.Add(step)
		return now
	}
}

func TestEvaluate_ThreeOfFourPassing(t *testing.T) {
	ev := &fakeEvaluator{eval: Evaluation{
		Outcomes: []RuleOutcome{
			outcome("id", true, 0),
			outcome("name", true, 0),
			outcome("id", true, 0),
			outcome("name", false, 2),
		},
		Columns: []string{"id", "name"},
	}}
	eng := NewEngine(ev, WithClock(steppingClock(15*time.Millisecond)))

	res, err := eng.Evaluate(context.Background(), sampleTable(), "suite")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, 4, res.Metrics.RulesTotal)
	assert.Equal(t, 3, res.Metrics.RulesPassed)
	assert.Equal(t, 1, res.Metrics.RulesFailed)
	assert.Equal(t, 0.75, res.Metrics.QualityScore)
	assert.Equal(t, 2, res.Metrics.InvalidRowCount)
	assert.Equal(t, int64(15), res.Metrics.ValidationDurationMs)
	assert.False(t, res.Metrics.SchemaChanged)
	assert.Len(t, res.FailedRules(), 1)
	assert.Equal(t, []string{"suite"}, ev.calls)
}

func TestEvaluate_AllPassing(t *testing.T) {
	ev := &fakeEvaluator{eval: Evaluation{
		Outcomes: []RuleOutcome{outcome("id", true, 0)},
		Columns:  []string{"id"},
	}}

	res, err := NewEngine(ev).Evaluate(context.Background(), sampleTable(), "s")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1.0, res.Metrics.QualityScore)
	assert.True(t, res.Metrics.SchemaChanged, "suite references id only, table has id and name")
}

func TestEvaluate_NoRules(t *testing.T) {
	res, err := NewEngine(&fakeEvaluator{}).Evaluate(context.Background(), sampleTable(), "empty")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, 0, res.Metrics.RulesTotal)
	assert.Equal(t, 1.0, res.Metrics.QualityScore)
	assert.NotNil(t, res.Results)
}

func TestEvaluate_EvaluatorError(t *testing.T) {
	boom := errors.New("suite not found")
	_, err := NewEngine(&fakeEvaluator{err: boom}).Evaluate(context.Background(), sampleTable(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestEvaluate_FailingRuleWithoutUnexpectedCount(t *testing.T) {
	ev := &fakeEvaluator{eval: Evaluation{Outcomes: []RuleOutcome{
		{ExpectationType: "expect_table_row_count_to_be_between", Success: false},
		outcome("id", false, 3),
		outcome("id", true, 9), // passing rules never contribute
	}}}

	res, err := NewEngine(ev).Evaluate(context.Background(), sampleTable(), "s")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Metrics.InvalidRowCount)
}

func TestComputeMetrics_Ratios(t *testing.T) {
	m := ComputeMetrics(sampleTable(), Evaluation{Columns: []string{"name", "id"}})

	assert.Equal(t, 0.125, m.NullRatio)     // 1 of 8 cells
	assert.Equal(t, 0.25, m.DuplicateRatio) // 1 of 4 rows
	assert.False(t, m.SchemaChanged)
}

func TestComputeMetrics_CountsAllNullRecords(t *testing.T) {
	tbl, err := tabular.CSVParser{}.Parse([]byte("id,name\n1,a\n,\n"), tabular.Options{HeaderRow: 1})
	require.NoError(t, err)

	m := ComputeMetrics(tbl, Evaluation{Columns: []string{"id", "name"}})
	assert.Equal(t, 0.5, m.NullRatio)
	assert.Equal(t, 0.0, m.DuplicateRatio)
}

func TestComputeMetrics_EmptyTable(t *testing.T) {
	empty := tabular.NewTable("s", []string{"id"}, nil)
	m := ComputeMetrics(empty, Evaluation{Columns: []string{"id"}})

	assert.Equal(t, 0.0, m.NullRatio)
	assert.Equal(t, 0.0, m.DuplicateRatio)
	assert.Equal(t, 1.0, m.QualityScore)
}

func TestComputeMetrics_Rounding(t *testing.T) {
	outcomes := []RuleOutcome{outcome("a", true, 0), outcome("a", true, 0), outcome("a", false, 0)}
	m := ComputeMetrics(nil, Evaluation{Outcomes: outcomes})
	assert.Equal(t, 0.6667, m.QualityScore)
}

func TestComputeMetrics_Bounds(t *testing.T) {
	for passed := 0; passed <= 7; passed++ {
		var outcomes []RuleOutcome
		for i := 0; i < 7; i++ {
			outcomes = append(outcomes, outcome("c", i < passed, 1))
		}
		m := ComputeMetrics(sampleTable(), Evaluation{Outcomes: outcomes})
		assert.GreaterOrEqual(t, m.QualityScore, 0.0)
		assert.LessOrEqual(t, m.QualityScore, 1.0)
		assert.Equal(t, Round4(float64(passed)/7), m.QualityScore)
		assert.GreaterOrEqual(t, m.NullRatio, 0.0)
		assert.LessOrEqual(t, m.NullRatio, 1.0)
		assert.GreaterOrEqual(t, m.DuplicateRatio, 0.0)
		assert.LessOrEqual(t, m.DuplicateRatio, 1.0)
	}
}

func TestComputeMetrics_AllNullAllDuplicate(t *testing.T) {
	tbl := tabular.NewTable("s", []string{"a", "b"}, [][]tabular.Cell{{}, {}, {}})
	m := ComputeMetrics(tbl, Evaluation{})
	assert.Equal(t, 1.0, m.NullRatio)
	assert.Equal(t, 0.6667, m.DuplicateRatio)
}

func TestRuleOutcome_UnexpectedCountTypes(t *testing.T) {
	tests := []struct {
		name string
		val  any
		want int
	}{
		{"int", 4, 4},
		{"int64", int64(5), 5},
		{"float64 from JSON", float64(6), 6},
		{"absent", nil, 0},
		{"wrong type", "7", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := RuleOutcome{Result: map[string]any{}}
			if tt.val != nil {
				o.Result["unexpected_count"] = tt.val
			}
			assert.Equal(t, tt.want, o.UnexpectedCount())
		})
	}
}

func TestRuleOutcome_Column(t *testing.T) {
	assert.Equal(t, "id", outcome("id", true, 0).Column())
	assert.Equal(t, "", RuleOutcome{}.Column())
}
