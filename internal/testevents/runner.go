package testevents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/combatlink/internal/domain/types"
	"github.com/okian/combatlink/pkg/logger"
)

// Load test defaults.
const (
	defaultSessions  = 8
	defaultCasts     = 200
	defaultBatchSize = 50
	defaultWorkers   = 4
	defaultTimeout   = 30 * time.Second
	defaultSamples   = 20
)

// ErrVerification is returned when a session's report or cause queries
// disagree with the generated answers.
var ErrVerification = errors.New("attribution verification failed")

func (c *Config) withDefaults() Config {
	out := *c
	if out.Sessions <= 0 {
		out.Sessions = defaultSessions
	}
	if out.Casts <= 0 {
		out.Casts = defaultCasts
	}
	if out.BatchSize <= 0 {
		out.BatchSize = defaultBatchSize
	}
	if out.Workers <= 0 {
		out.Workers = defaultWorkers
	}
	if out.Timeout <= 0 {
		out.Timeout = defaultTimeout
	}
	if out.Samples < 0 {
		out.Samples = 0
	}
	return out
}

// Run streams synthetic sessions into the service at config.BaseURL and
// verifies every report against the generated answers.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	cfg := config.withDefaults()
	log := logger.Get().Named("loadtest")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting attribution load test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("sessions", cfg.Sessions),
		logger.Int("casts", cfg.Casts),
		logger.Int("batchSize", cfg.BatchSize),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout),
	)

	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	jobs := make(chan int)
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := runSession(ctx, client, &cfg, cfg.Seed+uint64(i))

				mu.Lock()
				stats.add(res)
				if err != nil {
					stats.SessionsFailed++
					errs = append(errs, fmt.Errorf("session %d: %w", i, err))
				} else {
					stats.SessionsVerified++
				}
				mu.Unlock()

				if err != nil {
					log.Warn(ctx, "session failed", logger.Int("session", i), logger.Error(err))
				} else if cfg.Verbose {
					log.Info(ctx, "session verified",
						logger.Int("session", i),
						logger.Int("events", res.events),
						logger.Int("causesChecked", res.causesChecked),
					)
				}
			}
		}()
	}

feed:
	for i := 0; i < cfg.Sessions; i++ {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return stats, errors.Join(errs...)
}

type sessionResult struct {
	opened        bool
	events        int
	accepted      int
	duplicate     int
	failed        int
	causesChecked int
}

func (s *Stats) add(r sessionResult) {
	if r.opened {
		s.SessionsOpened++
	}
	s.EventsSubmitted += r.events
	s.BatchesAccepted += r.accepted
	s.BatchesDuplicate += r.duplicate
	s.BatchesFailed += r.failed
	s.CausesChecked += r.causesChecked
}

// runSession streams one generated log. The first batch is sent twice to
// exercise batch deduplication.
func runSession(ctx context.Context, client *Client, cfg *Config, seed uint64) (sessionResult, error) {
	var res sessionResult
	gen := Generate(GenerateOptions{Seed: seed, Casts: cfg.Casts})

	id, err := client.OpenSession(ctx)
	if err != nil {
		return res, err
	}
	res.opened = true

	events := types.FromModels(gen.Events)
	first := ""
	for start := 0; start < len(events); start += cfg.BatchSize {
		end := min(start+cfg.BatchSize, len(events))
		batchID := uuid.NewString()
		if first == "" {
			first = batchID
		}
		dup, err := client.SubmitBatch(ctx, id, batchID, events[start:end])
		if err != nil {
			res.failed++
			return res, err
		}
		if dup {
			res.duplicate++
			continue
		}
		res.accepted++
		res.events += end - start
	}
	if first != "" {
		dup, err := client.SubmitBatch(ctx, id, first, events[:min(cfg.BatchSize, len(events))])
		if err != nil {
			res.failed++
			return res, err
		}
		if !dup {
			return res, fmt.Errorf("%w: resubmitted batch %s was accepted again", ErrVerification, first)
		}
		res.duplicate++
	}

	r, err := client.Finish(ctx, id)
	if err != nil {
		return res, err
	}
	if err := verifyReport(&gen, r.Events, r.Attributed, r.Unattributed, r.Unconsumed); err != nil {
		return res, err
	}

	checked, err := verifyCauses(ctx, client, id, &gen, cfg.Samples)
	res.causesChecked = checked
	return res, err
}

// displayFinalStats logs the final test statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var eventsPerSecond float64
	if stats.Duration > 0 {
		eventsPerSecond = float64(stats.EventsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("sessionsOpened", stats.SessionsOpened),
		logger.Int("sessionsVerified", stats.SessionsVerified),
		logger.Int("sessionsFailed", stats.SessionsFailed),
		logger.Int("eventsSubmitted", stats.EventsSubmitted),
		logger.Int("batchesAccepted", stats.BatchesAccepted),
		logger.Int("batchesDuplicate", stats.BatchesDuplicate),
		logger.Int("batchesFailed", stats.BatchesFailed),
		logger.Int("causesChecked", stats.CausesChecked),
		logger.Duration("duration", stats.Duration),
		logger.Float64("eventsPerSecond", eventsPerSecond))
}
