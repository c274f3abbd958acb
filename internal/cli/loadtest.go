package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/combatlink/internal/testevents"
)

// LoadTestOptions holds flags for the loadtest command.
type LoadTestOptions struct {
	*RootOptions
	Run testevents.Config
}

type loadTestResult struct {
	SessionsOpened   int     `json:"sessions_opened"`
	SessionsVerified int     `json:"sessions_verified"`
	SessionsFailed   int     `json:"sessions_failed"`
	EventsSubmitted  int     `json:"events_submitted"`
	BatchesAccepted  int     `json:"batches_accepted"`
	BatchesDuplicate int     `json:"batches_duplicate"`
	BatchesFailed    int     `json:"batches_failed"`
	CausesChecked    int     `json:"causes_checked"`
	DurationMs       int64   `json:"duration_ms"`
	EventsPerSecond  float64 `json:"events_per_second"`
}

func resultOf(s *testevents.Stats) loadTestResult {
	r := loadTestResult{
		SessionsOpened:   s.SessionsOpened,
		SessionsVerified: s.SessionsVerified,
		SessionsFailed:   s.SessionsFailed,
		EventsSubmitted:  s.EventsSubmitted,
		BatchesAccepted:  s.BatchesAccepted,
		BatchesDuplicate: s.BatchesDuplicate,
		BatchesFailed:    s.BatchesFailed,
		CausesChecked:    s.CausesChecked,
		DurationMs:       s.Duration.Milliseconds(),
	}
	if s.Duration > 0 {
		r.EventsPerSecond = float64(s.EventsSubmitted) / s.Duration.Seconds()
	}
	return r
}

// NewLoadTestCommand creates the loadtest command.
func NewLoadTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoadTestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Stream synthetic sessions into a running service and verify them",
		Long: `Open sessions on a running combatlink service, stream generated events
in batches, finish each session and check its report and sampled cause
queries against the generator's known answers.

Exit codes:
  0 - Every session verified
  1 - At least one session failed verification
  2 - Command error (service unreachable, bad flags)

Examples:
  combatlink loadtest --url http://localhost:9080
  combatlink loadtest --sessions 64 --workers 16 --casts 2000`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoadTest(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Run.BaseURL, "url", "http://localhost:9080", "base URL of the service")
	cmd.Flags().IntVar(&opts.Run.Sessions, "sessions", 8, "number of sessions to stream")
	cmd.Flags().IntVar(&opts.Run.Casts, "casts", 200, "casts generated per session")
	cmd.Flags().IntVar(&opts.Run.BatchSize, "batch", 50, "events per submitted batch")
	cmd.Flags().IntVar(&opts.Run.Workers, "workers", 4, "sessions streamed concurrently")
	cmd.Flags().DurationVar(&opts.Run.Timeout, "timeout", 30*time.Second, "HTTP request timeout")
	cmd.Flags().Uint64Var(&opts.Run.Seed, "seed", 1, "base seed; session i uses seed+i")
	cmd.Flags().IntVar(&opts.Run.Samples, "samples", 20, "cause queries checked per session")

	return cmd
}

func runLoadTest(cmd *cobra.Command, opts *LoadTestOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Run
	cfg.Verbose = opts.Verbose

	stats, runErr := testevents.Run(ctx, &cfg)
	if stats != nil {
		if err := printLoadTest(cmd, opts.Format, resultOf(stats)); err != nil {
			return err
		}
	}
	switch {
	case runErr == nil:
		return nil
	case errors.Is(runErr, testevents.ErrVerification):
		return WrapExitError(ExitFailure, "load test verification failed", runErr)
	default:
		return WrapExitError(ExitCommandError, "load test failed", runErr)
	}
}

func printLoadTest(cmd *cobra.Command, format string, r loadTestResult) error {
	if format == "json" {
		return writeJSON(cmd.OutOrStdout(), r)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "sessions  opened %d  verified %d  failed %d\n", r.SessionsOpened, r.SessionsVerified, r.SessionsFailed)
	fmt.Fprintf(w, "batches   accepted %d  duplicate %d  failed %d\n", r.BatchesAccepted, r.BatchesDuplicate, r.BatchesFailed)
	fmt.Fprintf(w, "events    %d submitted, %.0f/s over %dms\n", r.EventsSubmitted, r.EventsPerSecond, r.DurationMs)
	fmt.Fprintf(w, "causes    %d checked\n", r.CausesChecked)
	return nil
}
