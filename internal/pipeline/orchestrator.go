// Package pipeline drives one validation run end to end: resolve the
// template, fetch and parse each sheet, run the structural gate, evaluate
// the sheet's suites, and persist every outcome inside a single unit of
// work.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/dqgate/internal/logging"
	"github.com/JonMunkholm/dqgate/internal/quality"
	"github.com/JonMunkholm/dqgate/internal/repository"
	"github.com/JonMunkholm/dqgate/internal/storage"
	"github.com/JonMunkholm/dqgate/internal/structural"
	"github.com/JonMunkholm/dqgate/internal/tabular"
	"github.com/JonMunkholm/dqgate/internal/template"
)

var (
	// ErrNoTemplate is returned when no registered template matches the
	// dataset's filename. Nothing is persisted.
	ErrNoTemplate = errors.New("no template matches dataset")

	// ErrUnsupportedFileType is returned when the resolved template names a
	// file type with no parser. Nothing is persisted.
	ErrUnsupportedFileType = tabular.ErrUnsupportedFileType
)

// Resolver picks the template for a dataset key: the object key without the
// bucket, or the local path as given. *template.Registry satisfies it.
type Resolver interface {
	Resolve(key string) (*template.TemplateDef, bool)
}

// Parsers looks up the parser for a file type. *tabular.Registry satisfies it.
type Parsers interface {
	For(ft template.FileType) (tabular.Parser, error)
}

// Fetcher retrieves dataset bytes. *storage.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, loc storage.Locator) ([]byte, error)
}

// Evaluator runs one suite against a table. *quality.Engine satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, table *tabular.Table, suite string) (quality.RunResult, error)
}

// Persistence hands out units of work. *repository.Store satisfies it.
type Persistence interface {
	WithinUnitOfWork(ctx context.Context, fn func(w repository.Writer) error) error
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Resolver    Resolver
	Parsers     Parsers
	Fetcher     Fetcher
	Evaluator   Evaluator
	Persistence Persistence
}

// Orchestrator runs validations. It is safe for concurrent use when its
// dependencies are.
type Orchestrator struct {
	deps  Deps
	now   func() time.Time
	newID func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the clock that stamps validated_at.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator overrides run id generation.
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// New creates an Orchestrator.
func New(deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:  deps,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Report aggregates the outcome of one run.
type Report struct {
	RunID           string              `json:"run_id"`
	TemplateID      string              `json:"template_id,omitempty"`
	TemplateVersion int                 `json:"template_version,omitempty"`
	InputKey        string              `json:"input_key"`
	ValidatedAt     time.Time           `json:"validated_at"`
	Structural      []structural.Result `json:"structural"`
	Suites          []quality.RunResult `json:"suites"`
	SkippedSheets   []string            `json:"skipped_sheets,omitempty"`

	// Halted is set when a sheet failed its structural check; HaltedSheet
	// names it. Sheets after it were not attempted.
	Halted      bool   `json:"halted"`
	HaltedSheet string `json:"halted_sheet,omitempty"`

	// Success is true iff no sheet halted and every suite succeeded.
	Success bool `json:"success"`
}

// Run validates the dataset at locator against its resolved template.
//
// A structural failure is data, not an error: it is persisted, the run
// halts, and the Report comes back with Halted set and a nil error. Errors
// are returned for configuration problems (ErrNoTemplate,
// ErrUnsupportedFileType), fetch and parse failures, suite evaluation
// failures and persistence failures; in every error case the unit of work
// is rolled back.
func (o *Orchestrator) Run(ctx context.Context, locator string) (*Report, error) {
	loc, err := storage.ParseLocator(locator)
	if err != nil {
		return nil, err
	}

	tpl, ok := o.deps.Resolver.Resolve(loc.Key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoTemplate, loc.Key)
	}

	parser, err := o.deps.Parsers.For(tpl.FileType)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", tpl.Key(), err)
	}

	data, err := o.deps.Fetcher.Fetch(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset: %w", err)
	}

	report := &Report{
		RunID:           o.newID(),
		TemplateID:      tpl.TemplateID,
		TemplateVersion: tpl.Version,
		InputKey:        loc.String(),
		ValidatedAt:     o.now(),
		Structural:      []structural.Result{},
		Suites:          []quality.RunResult{},
	}

	ctx = logging.WithRunID(ctx, report.RunID)
	runLog := logging.WithFields(ctx, "template_id", tpl.TemplateID, "template_version", tpl.Version)
	runLog.Info("validation run started", "dataset", report.InputKey, "sheets", len(tpl.Sheets))

	err = o.deps.Persistence.WithinUnitOfWork(ctx, func(w repository.Writer) error {
		for _, sheet := range tpl.Sheets {
			halted, err := o.runSheet(ctx, w, report, parser, data, sheet)
			if err != nil {
				return err
			}
			if halted {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		runLog.Error("validation run failed", "error", err)
		return nil, err
	}

	report.Success = !report.Halted
	for _, s := range report.Suites {
		if !s.Success {
			report.Success = false
		}
	}

	runLog.Info("validation run finished",
		"success", report.Success,
		"halted", report.Halted,
		"suites", len(report.Suites),
	)
	return report, nil
}

// runSheet parses, gates and evaluates one sheet. It reports halted=true
// when the structural check failed and the run must stop.
func (o *Orchestrator) runSheet(
	ctx context.Context,
	w repository.Writer,
	report *Report,
	parser tabular.Parser,
	data []byte,
	sheet template.SheetDef,
) (bool, error) {
	sheetLog := logging.WithFields(ctx, "template_id", report.TemplateID, "sheet", sheet.Name)

	if err := ctx.Err(); err != nil {
		return false, err
	}

	table, err := parser.Parse(data, tabular.Options{
		Sheet:     sheet.Name,
		HeaderRow: sheet.HeaderRow,
		Columns:   sheet.Columns.Names(),
	})
	if errors.Is(err, tabular.ErrSheetNotFound) && !sheet.Required {
		sheetLog.Warn("optional sheet not present, skipping")
		report.SkippedSheets = append(report.SkippedSheets, sheet.Name)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("parse sheet %q: %w", sheet.Name, err)
	}

	result, checkErr := structural.Check(table, sheet)
	report.Structural = append(report.Structural, result)

	err = w.InsertStructuralResult(ctx, repository.StructuralRecord{
		RunID:           report.RunID,
		Dataset:         report.InputKey,
		TemplateID:      report.TemplateID,
		TemplateVersion: report.TemplateVersion,
		ValidatedAt:     report.ValidatedAt,
		Result:          result,
	})
	if err != nil {
		return false, err
	}

	var failure *structural.Failure
	if errors.As(checkErr, &failure) {
		sheetLog.Error("structural validation failed, halting run", "errors", result.Errors)
		report.Halted = true
		report.HaltedSheet = sheet.Name
		return true, nil
	}
	if checkErr != nil {
		return false, checkErr
	}
	sheetLog.Info("structural validation passed", "rows", table.NumRows(), "warnings", len(result.Warnings))

	for _, suite := range sheet.Expectations {
		res, err := o.evaluate(ctx, w, report, table, sheet.Name, suite)
		if err != nil {
			return false, err
		}
		logSuite(sheetLog, suite, res)
	}
	return false, nil
}

func (o *Orchestrator) evaluate(
	ctx context.Context,
	w repository.Writer,
	report *Report,
	table *tabular.Table,
	sheetName, suite string,
) (quality.RunResult, error) {
	res, err := o.deps.Evaluator.Evaluate(ctx, table, suite)
	if err != nil {
		return quality.RunResult{}, err
	}

	res.Meta = quality.Meta{
		RunID:            report.RunID,
		ValidatedAt:      report.ValidatedAt,
		InputKey:         report.InputKey,
		TemplateID:       report.TemplateID,
		TemplateVersion:  report.TemplateVersion,
		SheetName:        sheetName,
		ExpectationSuite: suite,
		RowCount:         table.NumRows(),
		Metrics:          res.Metrics,
	}

	if err := w.InsertValidationRun(ctx, res); err != nil {
		return quality.RunResult{}, err
	}
	if err := w.InsertRuleOutcomes(ctx, res); err != nil {
		return quality.RunResult{}, err
	}

	report.Suites = append(report.Suites, res)
	return res, nil
}

// RunSuite validates a whole dataset as a single table against one named
// suite, without template resolution or a structural gate. The file type is
// taken from the extension (.xlsx/.xls read the first sheet, anything else
// is CSV).
func (o *Orchestrator) RunSuite(ctx context.Context, locator, suite string) (*Report, error) {
	loc, err := storage.ParseLocator(locator)
	if err != nil {
		return nil, err
	}

	parser, err := o.deps.Parsers.For(FileTypeFor(loc.Name()))
	if err != nil {
		return nil, err
	}

	data, err := o.deps.Fetcher.Fetch(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("fetch dataset: %w", err)
	}

	table, err := parser.Parse(data, tabular.Options{})
	if err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}

	report := &Report{
		RunID:       o.newID(),
		InputKey:    loc.String(),
		ValidatedAt: o.now(),
		Structural:  []structural.Result{},
		Suites:      []quality.RunResult{},
	}
	ctx = logging.WithRunID(ctx, report.RunID)
	runLog := logging.WithFields(ctx, "dataset", report.InputKey)

	var res quality.RunResult
	err = o.deps.Persistence.WithinUnitOfWork(ctx, func(w repository.Writer) error {
		var err error
		res, err = o.evaluate(ctx, w, report, table, "", suite)
		return err
	})
	if err != nil {
		runLog.Error("validation run failed", "suite", suite, "error", err)
		return nil, err
	}

	logSuite(runLog, suite, res)
	report.Success = res.Success
	return report, nil
}

// FileTypeFor guesses a file type from a filename extension.
func FileTypeFor(name string) template.FileType {
	switch strings.ToLower(path.Ext(name)) {
	case ".xlsx", ".xlsm", ".xls":
		return template.FileExcel
	default:
		return template.FileCSV
	}
}

func logSuite(log *slog.Logger, suite string, res quality.RunResult) {
	attrs := []any{
		"suite", suite,
		"rules_total", res.Metrics.RulesTotal,
		"rules_failed", res.Metrics.RulesFailed,
		"quality_score", res.Metrics.QualityScore,
	}
	if res.Success {
		log.Info("suite passed", attrs...)
		return
	}
	log.Warn("suite failed", attrs...)
}
