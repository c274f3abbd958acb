package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/combatlink/internal/domain/spells"
	"github.com/okian/combatlink/internal/domain/types"
	"github.com/okian/combatlink/internal/testevents"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	Seed   uint64
	Casts  int
	Actors int
	Lines  bool
	Output string
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a deterministic synthetic combat log",
		Long: `Generate a synthetic combat log from the active ruleset.

Every cast is followed by all of its effects, with some filler casts and a
few orphan effects that have no cast to match. The same seed always yields
the same log.

Examples:
  combatlink generate --seed 7 --casts 500 > fight.json
  combatlink generate --lines --output fight.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}

	cmd.Flags().Uint64Var(&opts.Seed, "seed", 1, "random seed")
	cmd.Flags().IntVar(&opts.Casts, "casts", 100, "number of rule casts to generate")
	cmd.Flags().IntVar(&opts.Actors, "actors", 3, "number of casting actors")
	cmd.Flags().BoolVar(&opts.Lines, "lines", false, "write one JSON event per line")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")

	return cmd
}

func runGenerate(cmd *cobra.Command, opts *GenerateOptions) error {
	if opts.Casts <= 0 {
		return NewExitError(ExitCommandError, "--casts must be positive")
	}
	table, err := spells.LoadTable(opts.Rules)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load ruleset", err)
	}

	gen := testevents.Generate(testevents.GenerateOptions{
		Seed:   opts.Seed,
		Casts:  opts.Casts,
		Actors: opts.Actors,
		Rules:  table.Rules(),
	})

	var w io.Writer = cmd.OutOrStdout()
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to create output file", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	if err := types.EncodeEvents(w, types.FromModels(gen.Events), opts.Lines); err != nil {
		return WrapExitError(ExitCommandError, "failed to write combat log", err)
	}
	return nil
}
