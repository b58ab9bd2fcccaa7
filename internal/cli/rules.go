package cli

import (
	"github.com/spf13/cobra"

	"energodoc/internal/app"
)

func newRulesCmd(opts *RootOptions) *cobra.Command {
	var sections bool

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Print the active ruleset version and fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rs, err := app.LoadRules(opts.RulesPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			writeln(out, "version:     %s", rs.Version)
			writeln(out, "fingerprint: %s", rs.Fingerprint())
			writeln(out, "resources:   %d", len(rs.Resources))
			if sections {
				for _, s := range rs.Sections {
					writeln(out, "section %s (min %.2f): %v", s.Name, s.MinConfidence, s.Required)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&sections, "sections", false, "also list readiness sections")
	return cmd
}
