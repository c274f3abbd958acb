package repository

import (
	"context"
	"time"

	"github.com/okian/combatlink/internal/domain/session"
)

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithIdleTTL evicts sessions with no activity for longer than ttl.
// Zero disables eviction.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *MemoryStore) {
		if ttl >= 0 {
			s.idleTTL = ttl
		}
	}
}

// WithSweepInterval sets how often idle sessions are looked for.
func WithSweepInterval(interval time.Duration) Option {
	return func(s *MemoryStore) {
		if interval > 0 {
			s.sweepInterval = interval
		}
	}
}

// WithOnEvict registers a callback run for every evicted session, after it
// has been removed from the store.
func WithOnEvict(fn func(ctx context.Context, s *session.Session)) Option {
	return func(s *MemoryStore) {
		s.onEvict = fn
	}
}

// WithClock replaces time.Now for idle checks.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}
