package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/combatlink/internal/domain/session"
	"github.com/okian/combatlink/pkg/logger"
	"github.com/okian/combatlink/pkg/metrics"
)

// MemoryStore is a Store backed by a map, with a background sweep that
// evicts idle sessions.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session

	idleTTL       time.Duration
	sweepInterval time.Duration
	onEvict       func(ctx context.Context, s *session.Session)
	now           func() time.Time

	stopChan  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	logger    logger.Logger
}

// NewMemoryStore creates the store and starts the idle sweep when a TTL is
// configured. The sweep stops on ctx cancellation or Close.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		sessions:      make(map[string]*session.Session),
		idleTTL:       30 * time.Minute,
		sweepInterval: time.Minute,
		now:           time.Now,
		stopChan:      make(chan struct{}),
		logger:        logger.Get().Named("session-store"),
	}
	for _, opt := range opts {
		opt(s)
	}

	metrics.UpdateActiveSessions(0)
	if s.idleTTL > 0 {
		s.startSweeper(ctx)
	}
	return s
}

func (s *MemoryStore) Put(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID()]; exists {
		return ErrExists
	}
	s.sessions[sess.ID()] = sess
	metrics.UpdateActiveSessions(len(s.sessions))
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	metrics.UpdateActiveSessions(len(s.sessions))
}

func (s *MemoryStore) List(ctx context.Context) []session.Summary {
	s.mu.RLock()
	out := make([]session.Summary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Summary())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *MemoryStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep evicts every session idle for longer than the TTL and returns how
// many were evicted.
func (s *MemoryStore) Sweep(ctx context.Context) int {
	if s.idleTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	var evicted []*session.Session
	for id, sess := range s.sessions {
		if sess.LastActivity().Before(cutoff) {
			evicted = append(evicted, sess)
			delete(s.sessions, id)
		}
	}
	metrics.UpdateActiveSessions(len(s.sessions))
	s.mu.Unlock()

	for _, sess := range evicted {
		metrics.RecordSessionEvicted()
		s.logger.Info(ctx, "evicted idle session",
			logger.String("session", sess.ID()),
			logger.Bool("finished", sess.Finished()),
		)
		if s.onEvict != nil {
			s.onEvict(ctx, sess)
		}
	}
	return len(evicted)
}

func (s *MemoryStore) startSweeper(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Close stops the sweep goroutine. Sessions stay readable.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}
