package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/dqgate/internal/quality"
	"github.com/JonMunkholm/dqgate/internal/structural"
)

// ErrInvalidRunID is returned when a record's run id is not a UUID.
var ErrInvalidRunID = errors.New("run id is not a valid uuid")

// StructuralRecord is one sheet's structural outcome with its run context.
type StructuralRecord struct {
	RunID           string
	Dataset         string
	TemplateID      string
	TemplateVersion int
	ValidatedAt     time.Time
	Result          structural.Result
}

// Writer is the set of writes available inside a unit of work.
type Writer interface {
	InsertStructuralResult(ctx context.Context, rec StructuralRecord) error
	InsertValidationRun(ctx context.Context, res quality.RunResult) error
	InsertRuleOutcomes(ctx context.Context, res quality.RunResult) error
}

// Beginner starts transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store owns the connection pool and hands out units of work.
type Store struct {
	db Beginner
}

// NewStore returns a store over db.
func NewStore(db Beginner) *Store {
	return &Store{db: db}
}

// WithinUnitOfWork runs fn inside one transaction. The transaction commits
// when fn returns nil and rolls back on error or panic.
func (s *Store) WithinUnitOfWork(ctx context.Context, fn func(w Writer) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	if err := fn(&UnitOfWork{q: New(tx)}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UnitOfWork is the transaction-bound Writer.
type UnitOfWork struct {
	q *Queries
}

// InsertStructuralResult records one sheet's structural outcome.
func (u *UnitOfWork) InsertStructuralResult(ctx context.Context, rec StructuralRecord) error {
	runID := ToPgUUID(rec.RunID)
	if !runID.Valid {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, rec.RunID)
	}

	errs, err := jsonList(rec.Result.Errors)
	if err != nil {
		return err
	}
	warnings, err := jsonList(rec.Result.Warnings)
	if err != nil {
		return err
	}

	err = u.q.InsertStructuralResult(ctx, InsertStructuralResultParams{
		RunID:           runID,
		Dataset:         rec.Dataset,
		TemplateID:      rec.TemplateID,
		TemplateVersion: clampInt32(rec.TemplateVersion),
		SheetName:       rec.Result.SheetName,
		Passed:          rec.Result.Passed,
		ErrorCount:      clampInt32(len(rec.Result.Errors)),
		WarningCount:    clampInt32(len(rec.Result.Warnings)),
		Errors:          errs,
		Warnings:        warnings,
		ValidatedAt:     ToPgTimestamptz(rec.ValidatedAt),
	})
	if err != nil {
		return fmt.Errorf("insert structural result for sheet %q: %w", rec.Result.SheetName, err)
	}
	return nil
}

// InsertValidationRun records the run summary and metrics.
func (u *UnitOfWork) InsertValidationRun(ctx context.Context, res quality.RunResult) error {
	m := res.Meta
	runID := ToPgUUID(m.RunID)
	if !runID.Valid {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, m.RunID)
	}

	err := u.q.InsertValidationRun(ctx, InsertValidationRunParams{
		RunID:                runID,
		Dataset:              m.InputKey,
		TemplateID:           ToPgText(m.TemplateID),
		TemplateVersion:      ToPgInt4(m.TemplateVersion),
		SheetName:            ToPgText(m.SheetName),
		ExpectationSuite:     m.ExpectationSuite,
		Success:              res.Success,
		ValidatedAt:          ToPgTimestamptz(m.ValidatedAt),
		RowCount:             clampInt32(m.RowCount),
		ValidationDurationMs: res.Metrics.ValidationDurationMs,
		RulesTotal:           clampInt32(res.Metrics.RulesTotal),
		RulesPassed:          clampInt32(res.Metrics.RulesPassed),
		RulesFailed:          clampInt32(res.Metrics.RulesFailed),
		QualityScore:         res.Metrics.QualityScore,
		NullRatio:            res.Metrics.NullRatio,
		DuplicateRatio:       res.Metrics.DuplicateRatio,
		SchemaChanged:        res.Metrics.SchemaChanged,
		InvalidRowCount:      clampInt32(res.Metrics.InvalidRowCount),
	})
	if err != nil {
		return fmt.Errorf("insert validation run for suite %q: %w", m.ExpectationSuite, err)
	}
	return nil
}

// InsertRuleOutcomes records one row per rule outcome.
func (u *UnitOfWork) InsertRuleOutcomes(ctx context.Context, res quality.RunResult) error {
	m := res.Meta
	runID := ToPgUUID(m.RunID)
	if !runID.Valid {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, m.RunID)
	}

	args := make([]InsertRuleResultParams, 0, len(res.Results))
	for _, o := range res.Results {
		args = append(args, InsertRuleResultParams{
			RunID:            runID,
			ValidatedAt:      ToPgTimestamptz(m.ValidatedAt),
			Dataset:          m.InputKey,
			ExpectationSuite: m.ExpectationSuite,
			ExpectationType:  o.ExpectationType,
			ColumnName:       ToPgText(o.Column()),
			Success:          o.Success,
			UnexpectedCount:  clampInt32(o.UnexpectedCount()),
		})
	}

	if err := u.q.InsertRuleResults(ctx, args); err != nil {
		return fmt.Errorf("insert rule results for suite %q: %w", m.ExpectationSuite, err)
	}
	return nil
}

func jsonList(items []string) ([]byte, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode list: %w", err)
	}
	return b, nil
}
