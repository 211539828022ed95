package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dqgate/internal/expectation"
	"github.com/JonMunkholm/dqgate/internal/pipeline"
	"github.com/JonMunkholm/dqgate/internal/storage"
	"github.com/JonMunkholm/dqgate/internal/tabular"
)

// NewSuiteCommand creates the suite command group.
func NewSuiteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suite",
		Short: "Manage expectation suites",
	}
	cmd.AddCommand(newSuiteGenerateCommand(rootOpts))
	cmd.AddCommand(newSuiteListCommand(rootOpts))
	return cmd
}

// GenerateOptions holds flags for suite generate.
type GenerateOptions struct {
	Dataset    string
	TemplateID string
	SheetName  string
	SuiteName  string
	KeepFailed bool
}

func newSuiteGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a starter suite from a template sheet",
		Long: `Generate a suite from a template sheet and a sample dataset.

Every declared column must exist, required columns must not be null, and the
sheet must not be empty. The suite is checked against the sample and
expectations it fails are dropped unless --keep-failed is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuiteGenerate(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Dataset, "dataset", "d", "", "sample dataset locator")
	cmd.Flags().StringVar(&opts.TemplateID, "template-id", "", "template the dataset must resolve to")
	cmd.Flags().StringVar(&opts.SheetName, "sheet-name", "", "template sheet to generate for")
	cmd.Flags().StringVar(&opts.SuiteName, "suite-name", "", "name of the suite to write")
	cmd.Flags().BoolVar(&opts.KeepFailed, "keep-failed", false, "keep expectations the sample fails")
	for _, f := range []string{"dataset", "template-id", "sheet-name", "suite-name"} {
		_ = cmd.MarkFlagRequired(f)
	}

	return cmd
}

func runSuiteGenerate(cmd *cobra.Command, rootOpts *RootOptions, opts *GenerateOptions) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Config.Run.Timeout)
	defer cancel()

	svc, err := rootOpts.wire(ctx, wireOptions{templates: true, s3: isRemote(opts.Dataset)})
	if err != nil {
		return err
	}

	loc, err := storage.ParseLocator(opts.Dataset)
	if err != nil {
		return err
	}
	tpl, ok := svc.templates.Resolve(loc.Key)
	if !ok || tpl.TemplateID != opts.TemplateID {
		return fmt.Errorf("%w: %s does not resolve to template %q", pipeline.ErrNoTemplate, loc.Key, opts.TemplateID)
	}
	sheet, ok := tpl.Sheet(opts.SheetName)
	if !ok {
		return fmt.Errorf("template %s: %w: %q", tpl.Key(), tabular.ErrSheetNotFound, opts.SheetName)
	}

	parser, err := tabular.NewRegistry().For(tpl.FileType)
	if err != nil {
		return err
	}
	data, err := svc.fetcher.Fetch(ctx, loc)
	if err != nil {
		return fmt.Errorf("fetch dataset: %w", err)
	}
	table, err := parser.Parse(data, tabular.Options{
		Sheet:     sheet.Name,
		HeaderRow: sheet.HeaderRow,
		Columns:   sheet.Columns.Names(),
	})
	if err != nil {
		return fmt.Errorf("parse sheet %q: %w", sheet.Name, err)
	}

	suite := expectation.Generate(opts.SuiteName, sheet)
	if !opts.KeepFailed {
		ev, err := expectation.EvaluateSuite(ctx, table, suite)
		if err != nil {
			return err
		}
		var dropped []expectation.Expectation
		suite, dropped = expectation.Prune(suite, ev.Outcomes)
		for _, e := range dropped {
			slog.Warn("sample fails expectation, dropping", "type", e.Type, "column", e.Column())
		}
	}

	store := expectation.NewStore(rootOpts.Config.Templates.SuitesDir)
	if err := store.Save(suite); err != nil {
		return err
	}

	slog.Info("expectation suite created",
		"suite", suite.Name,
		"template", tpl.Key(),
		"sheet", sheet.Name,
		"expectations", len(suite.Expectations),
	)

	out := cmd.OutOrStdout()
	if rootOpts.Format == "json" {
		return writeJSON(out, suite)
	}
	fmt.Fprintf(out, "Expectation suite '%s' created with %d expectations\n", suite.Name, len(suite.Expectations))
	return nil
}

func newSuiteListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored suites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := expectation.NewStore(rootOpts.Config.Templates.SuitesDir).List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				if names == nil {
					names = []string{}
				}
				return writeJSON(out, names)
			}
			for _, n := range names {
				fmt.Fprintln(out, n)
			}
			return nil
		},
	}
}
