// Package session binds one combat log to its attribution matcher.
//
// A Session has a single writer (the worker that owns its shard) and any
// number of readers (HTTP queries); the matcher itself is not thread-safe so
// every access goes through the session lock.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/combatlink/internal/domain/attribution"
	"github.com/okian/combatlink/internal/domain/model"
)

var (
	ErrFinished = errors.New("session already finished")
	ErrNoEvent  = errors.New("event not observed in session")
)

// Summary is a point-in-time view of a session.
type Summary struct {
	ID           string            `json:"session_id"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
	Finished     bool              `json:"finished"`
	Stats        attribution.Stats `json:"stats"`
}

// ApplyResult tallies the outcomes of one Apply call.
type ApplyResult struct {
	Outcomes map[attribution.Outcome]int
}

// Count returns how many events ended with outcome o.
func (r ApplyResult) Count(o attribution.Outcome) int { return r.Outcomes[o] }

type Session struct {
	mu        sync.RWMutex
	id        string
	matcher   *attribution.Matcher
	createdAt time.Time
	lastSeen  time.Time
	now       func() time.Time
}

// New creates a session over a sealed table.
func New(id string, table *attribution.Table, opts ...attribution.Option) *Session {
	s := &Session{
		id:      id,
		matcher: attribution.NewMatcher(table, opts...),
		now:     time.Now,
	}
	s.createdAt = s.now()
	s.lastSeen = s.createdAt
	return s
}

func (s *Session) ID() string { return s.id }

// Apply feeds events to the matcher in order.
func (s *Session) Apply(ctx context.Context, events []model.ObservedEvent) (ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.matcher.Finished() {
		return ApplyResult{}, ErrFinished
	}
	res := ApplyResult{Outcomes: make(map[attribution.Outcome]int, 4)}
	for _, e := range events {
		res.Outcomes[s.matcher.Observe(ctx, e)]++
	}
	s.lastSeen = s.now()
	return res, nil
}

// Finish closes the stream and returns the unconsumed causes. first is true
// only for the call that actually closed it; later calls return the same
// causes.
func (s *Session) Finish(ctx context.Context) (unconsumed []model.Unconsumed, first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = s.now()
	first = !s.matcher.Finished()
	return s.matcher.Finish(ctx), first
}

func (s *Session) Finished() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matcher.Finished()
}

// CauseOf returns the cause of the event with the given seq.
func (s *Session) CauseOf(seq int64) (model.ObservedEvent, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	effect, ok := s.matcher.Index().Event(seq)
	if !ok {
		return model.ObservedEvent{}, false, ErrNoEvent
	}
	cause, found := s.matcher.Index().CauseOf(effect)
	return cause, found, nil
}

// EffectsOf returns the effects attributed to the event with the given seq.
func (s *Session) EffectsOf(seq int64) ([]model.ObservedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cause, ok := s.matcher.Index().Event(seq)
	if !ok {
		return nil, ErrNoEvent
	}
	return s.matcher.Index().EffectsOf(cause), nil
}

func (s *Session) Annotated(seq int64) (model.AnnotatedEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.matcher.Index().Annotated(seq)
	if !ok {
		return model.AnnotatedEvent{}, ErrNoEvent
	}
	return e, nil
}

// View runs fn with the table, index and finished flag under the read lock.
// fn must not retain the index or call back into s: a second read lock
// blocks behind a waiting writer.
func (s *Session) View(fn func(table *attribution.Table, index *attribution.Index, stats attribution.Stats, finished bool)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.matcher.Table(), s.matcher.Index(), s.matcher.Stats(), s.matcher.Finished())
}

func (s *Session) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Summary{
		ID:           s.id,
		CreatedAt:    s.createdAt,
		LastActivity: s.lastSeen,
		Finished:     s.matcher.Finished(),
		Stats:        s.matcher.Stats(),
	}
}

// LastActivity is the time of the last Apply or Finish.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}
