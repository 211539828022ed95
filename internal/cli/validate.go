package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dqgate/internal/pipeline"
	"github.com/JonMunkholm/dqgate/internal/routing"
	"github.com/JonMunkholm/dqgate/internal/storage"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	Dataset       string
	Expectations  string
	ResultsBucket string
	OutputDir     string
	NoRoute       bool
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a dataset and record the outcome",
		Long: `Validate a dataset against the template its filename resolves to, or,
with --expectations, against a single suite.

The per-rule report is printed regardless of outcome. Afterwards the raw
dataset is copied under passed/ or failed/ and the JSON result is written
under validation-results/, in --results-bucket when set and in --output-dir
otherwise. Exits non-zero when validation fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Dataset, "dataset", "d", "", "dataset locator (s3://bucket/key or local path)")
	cmd.Flags().StringVarP(&opts.Expectations, "expectations", "e", "", "validate the whole dataset against this suite only")
	cmd.Flags().StringVar(&opts.ResultsBucket, "results-bucket", rootOpts.Config.Storage.ResultsBucket, "bucket receiving routed artifacts")
	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", rootOpts.Config.Storage.OutputDir, "local directory for artifacts when no bucket is set")
	cmd.Flags().BoolVar(&opts.NoRoute, "no-route", false, "skip copying the dataset and writing the result file")
	_ = cmd.MarkFlagRequired("dataset")

	return cmd
}

func runValidate(cmd *cobra.Command, rootOpts *RootOptions, opts *ValidateOptions) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Config.Run.Timeout)
	defer cancel()

	routeToBucket := !opts.NoRoute && opts.ResultsBucket != ""
	svc, err := rootOpts.wire(ctx, wireOptions{
		templates: opts.Expectations == "",
		s3:        isRemote(opts.Dataset) || routeToBucket,
		database:  true,
	})
	if err != nil {
		return err
	}

	var report *pipeline.Report
	if opts.Expectations != "" {
		report, err = svc.orchestrator.RunSuite(ctx, opts.Dataset, opts.Expectations)
	} else {
		report, err = svc.orchestrator.Run(ctx, opts.Dataset)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if rootOpts.Format == "json" {
		if err := writeJSON(out, report); err != nil {
			return err
		}
	} else {
		routing.PrintReport(out, report)
	}

	if !opts.NoRoute {
		sink, err := outputSink(svc, opts, routeToBucket)
		if err != nil {
			return err
		}
		routed, err := routing.New(sink, svc.fetcher).Route(ctx, report)
		if err != nil {
			return fmt.Errorf("route results: %w", err)
		}
		slog.Info("results routed",
			"run_id", report.RunID,
			"sink", fmt.Sprint(sink),
			"dataset_key", routed.DatasetKey,
			"result_key", routed.ResultKey,
		)
	}

	if !report.Success {
		return ErrValidationFailed
	}
	return nil
}

func outputSink(svc *services, opts *ValidateOptions, toBucket bool) (storage.Sink, error) {
	if toBucket {
		return storage.NewS3Sink(svc.s3, opts.ResultsBucket), nil
	}
	dir, err := filepath.Abs(opts.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("output dir: %w", err)
	}
	out, err := svc.files.Chroot(dir)
	if err != nil {
		return nil, fmt.Errorf("output dir %s: %w", dir, err)
	}
	return storage.NewDirSink(out), nil
}
