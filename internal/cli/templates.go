package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/dqgate/internal/pipeline"
	"github.com/JonMunkholm/dqgate/internal/template"
)

// NewTemplatesCommand creates the templates command group.
func NewTemplatesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect registered templates",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List templates in TEMPLATES_DIR",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := template.LoadDir(rootOpts.Config.Templates.Dir)
			if err != nil {
				return err
			}
			all := reg.All()
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), all)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TEMPLATE\tVERSION\tTYPE\tPATTERN\tSHEETS")
			for _, t := range all {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", t.TemplateID, t.Version, t.FileType, t.FilePattern, sheetNames(t))
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "resolve <key>",
		Short: "Show which template a dataset key resolves to",
		Long: `Show every template whose file_pattern matches the key, marking the
one a run would use. The key is the object key without the bucket, or the
local path as given to validate.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := template.LoadDir(rootOpts.Config.Templates.Dir)
			if err != nil {
				return err
			}
			return printResolution(cmd.OutOrStdout(), rootOpts.Format, reg, args[0])
		},
	})

	return cmd
}

func sheetNames(t *template.TemplateDef) string {
	names := make([]string, 0, len(t.Sheets))
	for _, s := range t.Sheets {
		names = append(names, s.Name)
	}
	return strings.Join(names, ",")
}

// resolution is the JSON form of templates resolve.
type resolution struct {
	Key        string                  `json:"key"`
	Selected   *template.TemplateDef   `json:"selected"`
	Candidates []*template.TemplateDef `json:"candidates"`
}

func printResolution(w io.Writer, format string, reg *template.Registry, key string) error {
	selected, ok := reg.Resolve(key)
	if !ok {
		return fmt.Errorf("%w: %s", pipeline.ErrNoTemplate, key)
	}
	candidates := reg.Matching(key)

	if format == "json" {
		return writeJSON(w, resolution{Key: key, Selected: selected, Candidates: candidates})
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tTEMPLATE\tTYPE\tPATTERN\tSHEETS")
	for _, t := range candidates {
		mark := ""
		if t == selected {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, t.Key(), t.FileType, t.FilePattern, sheetNames(t))
	}
	return tw.Flush()
}
