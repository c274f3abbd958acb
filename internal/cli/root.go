// Package cli implements the combatlink command line: offline replay of
// combat logs, ruleset inspection, synthetic log generation and load tests
// against a running service.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/okian/combatlink/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Rules   string // ruleset file; empty means the built-in Windwalker table
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the combatlink CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "combatlink",
		Short: "combatlink - combat log event attribution",
		Long:  "Links damage events in a combat log back to the casts that caused them.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			// Diagnostics go to stderr so JSON on stdout stays parseable.
			if err := logger.Setup(cmd.ErrOrStderr(), logger.FormatText); err != nil {
				return WrapExitError(ExitCommandError, "failed to set up logger", err)
			}
			level := "warn"
			if opts.Verbose {
				level = "debug"
			}
			return logger.SetLevelString(level)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Rules, "rules", "", "ruleset file (.yaml or .cue); defaults to the Windwalker table")

	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewRulesCommand(opts))
	cmd.AddCommand(NewGenerateCommand(opts))
	cmd.AddCommand(NewLoadTestCommand(opts))

	return cmd
}
