package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const insertStructuralResult = `
INSERT INTO structural_validation_results (
    run_id, dataset, template_id, template_version, sheet_name,
    passed, error_count, warning_count, errors, warnings, validated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

type InsertStructuralResultParams struct {
	RunID           pgtype.UUID
	Dataset         string
	TemplateID      string
	TemplateVersion int32
	SheetName       string
	Passed          bool
	ErrorCount      int32
	WarningCount    int32
	Errors          []byte
	Warnings        []byte
	ValidatedAt     pgtype.Timestamptz
}

func (q *Queries) InsertStructuralResult(ctx context.Context, arg InsertStructuralResultParams) error {
	_, err := q.db.Exec(ctx, insertStructuralResult,
		arg.RunID,
		arg.Dataset,
		arg.TemplateID,
		arg.TemplateVersion,
		arg.SheetName,
		arg.Passed,
		arg.ErrorCount,
		arg.WarningCount,
		arg.Errors,
		arg.Warnings,
		arg.ValidatedAt,
	)
	return err
}

const insertValidationRun = `
INSERT INTO validation_runs (
    run_id, dataset, template_id, template_version, sheet_name, expectation_suite,
    success, validated_at, row_count, validation_duration_ms,
    rules_total, rules_passed, rules_failed, quality_score,
    null_ratio, duplicate_ratio, schema_changed, invalid_row_count
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

type InsertValidationRunParams struct {
	RunID                pgtype.UUID
	Dataset              string
	TemplateID           pgtype.Text
	TemplateVersion      pgtype.Int4
	SheetName            pgtype.Text
	ExpectationSuite     string
	Success              bool
	ValidatedAt          pgtype.Timestamptz
	RowCount             int32
	ValidationDurationMs int64
	RulesTotal           int32
	RulesPassed          int32
	RulesFailed          int32
	QualityScore         float64
	NullRatio            float64
	DuplicateRatio       float64
	SchemaChanged        bool
	InvalidRowCount      int32
}

func (q *Queries) InsertValidationRun(ctx context.Context, arg InsertValidationRunParams) error {
	_, err := q.db.Exec(ctx, insertValidationRun,
		arg.RunID,
		arg.Dataset,
		arg.TemplateID,
		arg.TemplateVersion,
		arg.SheetName,
		arg.ExpectationSuite,
		arg.Success,
		arg.ValidatedAt,
		arg.RowCount,
		arg.ValidationDurationMs,
		arg.RulesTotal,
		arg.RulesPassed,
		arg.RulesFailed,
		arg.QualityScore,
		arg.NullRatio,
		arg.DuplicateRatio,
		arg.SchemaChanged,
		arg.InvalidRowCount,
	)
	return err
}

const insertRuleResult = `
INSERT INTO validation_rule_results (
    run_id, validated_at, dataset, expectation_suite,
    expectation_type, column_name, success, unexpected_count
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

type InsertRuleResultParams struct {
	RunID            pgtype.UUID
	ValidatedAt      pgtype.Timestamptz
	Dataset          string
	ExpectationSuite string
	ExpectationType  string
	ColumnName       pgtype.Text
	Success          bool
	UnexpectedCount  int32
}

// InsertRuleResults queues every row into one batch round trip.
func (q *Queries) InsertRuleResults(ctx context.Context, args []InsertRuleResultParams) error {
	if len(args) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, arg := range args {
		batch.Queue(insertRuleResult,
			arg.RunID,
			arg.ValidatedAt,
			arg.Dataset,
			arg.ExpectationSuite,
			arg.ExpectationType,
			arg.ColumnName,
			arg.Success,
			arg.UnexpectedCount,
		)
	}

	br := q.db.SendBatch(ctx, batch)
	for i := range args {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("rule result %d: %w", i, err)
		}
	}
	return br.Close()
}
