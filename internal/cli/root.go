// Package cli implements the dqgate command tree.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dqgate/internal/config"
)

// ErrValidationFailed is returned by validate when the run completed but the
// data did not pass. The report has already been printed.
var ErrValidationFailed = errors.New("validation failed")

// RootOptions holds global state for all commands.
type RootOptions struct {
	Format  string // "text" | "json"
	Config  *config.Config
	Backend Backend
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command. backend supplies database and
// object store connections on demand.
func NewRootCommand(cfg *config.Config, backend Backend) *cobra.Command {
	opts := &RootOptions{Config: cfg, Backend: backend}

	cmd := &cobra.Command{
		Use:   "dqgate",
		Short: "dqgate - template-driven data quality gate",
		Long: `Validate tabular datasets against registered templates and expectation suites.

Each run resolves a template from the dataset filename, checks every sheet's
structure, evaluates its expectation suites, and records the outcome in
PostgreSQL under a single transaction.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSuiteCommand(opts))
	cmd.AddCommand(NewTemplatesCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
