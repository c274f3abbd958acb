package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/okian/combatlink/internal/domain/attribution"
	"github.com/okian/combatlink/internal/domain/report"
	"github.com/okian/combatlink/internal/domain/spells"
	"github.com/okian/combatlink/internal/domain/types"
	"github.com/okian/combatlink/pkg/logger"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	WindowMs int64
	Session  string
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <file|->",
		Short: "Attribute a recorded combat log and print its report",
		Long: `Replay a combat log through the attribution matcher and print the
session report.

The log is a JSON array of events or one JSON event per line, in the same
shape the HTTP API accepts. Use "-" to read from stdin.

Exit codes:
  0 - Replay completed
  2 - Command error (unreadable log, invalid event, bad ruleset)

Examples:
  combatlink replay fight.json
  combatlink replay --window 3000 --format json fight.jsonl
  cat fight.jsonl | combatlink replay -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, opts, args[0])
		},
	}

	cmd.Flags().Int64Var(&opts.WindowMs, "window", 0, "attribution window in ms (0 = unlimited)")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session name shown in the report (defaults to the file name)")

	return cmd
}

func runReplay(cmd *cobra.Command, opts *ReplayOptions, path string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	in, name, closeFn, err := openInput(cmd, path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open combat log", err)
	}
	defer closeFn()

	decoded, err := types.DecodeEvents(in)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read combat log", err)
	}
	events, err := types.ToModels(decoded)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid combat log", err)
	}

	table, err := spells.LoadTable(opts.Rules)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load ruleset", err)
	}

	log := logger.Named("replay")
	m := attribution.NewMatcher(table,
		attribution.WithWindow(opts.WindowMs),
		attribution.WithLogger(log),
	)
	m.ObserveAll(ctx, events)
	m.Finish(ctx)

	if opts.Session != "" {
		name = opts.Session
	}
	r := report.Build(name, m.Finished(), m.Table(), m.Index(), m.Stats())
	log.Debug(ctx, "replay complete",
		logger.String("session", name),
		logger.Int("events", r.Events),
		logger.Int("attributed", r.Attributed),
	)

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), r)
	}
	return report.WriteText(cmd.OutOrStdout(), r)
}

// openInput resolves path to a reader and the session name it implies.
func openInput(cmd *cobra.Command, path string) (io.Reader, string, func(), error) {
	if path == "-" {
		return cmd.InOrStdin(), "stdin", func() {}, nil
	}
	f, err := os.Open(path) //nolint:gosec // user-supplied log path
	if err != nil {
		return nil, "", nil, err
	}
	return f, filepath.Base(path), func() { _ = f.Close() }, nil
}
