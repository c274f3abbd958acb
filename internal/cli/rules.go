package cli

import (
	"github.com/spf13/cobra"

	"github.com/okian/combatlink/internal/domain/spells"
	"github.com/okian/combatlink/internal/domain/types"
)

// NewRulesCommand creates the rules command.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the active attribution ruleset",
		Long: `Print the trigger -> effects rules the matcher runs with.

Text output is YAML in the layout --rules accepts, so the built-in table
can be dumped and edited into a custom ruleset.

Examples:
  combatlink rules > windwalker.yaml
  combatlink rules --rules custom.cue --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := spells.LoadTable(rootOpts.Rules)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load ruleset", err)
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), types.FromRules(table.Rules()))
			}
			out, err := spells.Marshal(table.Rules())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to render ruleset", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
