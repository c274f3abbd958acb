// Package service wires the attribution engine into a running service:
// sessions, ingestion queue, workers and the report archive.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/combatlink/internal/adapters/archive"
	eventqueue "github.com/okian/combatlink/internal/adapters/mq/queue"
	workerpool "github.com/okian/combatlink/internal/adapters/mq/worker"
	"github.com/okian/combatlink/internal/adapters/repository"
	"github.com/okian/combatlink/internal/domain/attribution"
	"github.com/okian/combatlink/internal/domain/dedupe"
	"github.com/okian/combatlink/internal/domain/model"
	"github.com/okian/combatlink/internal/domain/report"
	"github.com/okian/combatlink/internal/domain/session"
	"github.com/okian/combatlink/internal/domain/spells"
	"github.com/okian/combatlink/pkg/logger"
	"github.com/okian/combatlink/pkg/metrics"
)

// Archive stores finished reports.
type Archive interface {
	Save(ctx context.Context, r report.Report) error
	Load(ctx context.Context, sessionID string) (report.Report, error)
	List(ctx context.Context, limit int) ([]archive.Entry, error)
	Close() error
}

// Service implements the API dependencies of the attribution service.
type Service struct {
	mu sync.RWMutex

	table    *attribution.Table
	store    *repository.MemoryStore
	deduper  dedupe.Deduper
	queue    *eventqueue.InMemoryQueue
	pool     *workerpool.Pool
	archive  Archive
	inflight *inflight

	workerCount    int
	queueSize      int
	dedupeSize     int
	maxBatchEvents int
	windowMs       int64
	idleTTL        time.Duration
	rulesPath      string
	archivePath    string

	started bool
	cancel  context.CancelFunc
	logger  logger.Logger
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:    runtime.NumCPU(),
		queueSize:      10000,
		dedupeSize:     100000,
		maxBatchEvents: 5000,
		idleTTL:        30 * time.Minute,
		inflight:       newInflight(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start loads the ruleset, opens the archive and starts the workers.
// A malformed ruleset is returned as an error and nothing is started.
// Canceling ctx does not stop the workers; Stop drains and stops them.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	if s.table == nil {
		table, err := spells.LoadTable(s.rulesPath)
		if err != nil {
			return fmt.Errorf("load attribution rules: %w", err)
		}
		s.table = table
	}
	s.table.Seal()

	if s.archive == nil && s.archivePath != "" {
		a, err := archive.Open(s.archivePath)
		if err != nil {
			return fmt.Errorf("open report archive: %w", err)
		}
		s.archive = a
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.store = repository.NewMemoryStore(runCtx,
		repository.WithIdleTTL(s.idleTTL),
		repository.WithOnEvict(s.onEvict),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s)
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "attribution service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
		logger.Int("rules", s.table.Len()),
		logger.Int64("window_ms", s.windowMs),
		logger.Bool("archive", s.archive != nil),
	)
	return nil
}

// Stop drains the queue and releases the store and archive.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	pool, store, arc, cancel := s.pool, s.store, s.archive, s.cancel
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping attribution service...")

	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	cancel()
	_ = store.Close()
	if arc != nil {
		if err := arc.Close(); err != nil {
			s.logger.Warn(ctx, "closing archive", logger.Error(err))
		}
	}
	s.logger.Info(ctx, "attribution service stopped")
}

func (s *Service) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// OpenSession creates an empty session and returns its id.
func (s *Service) OpenSession(ctx context.Context) (string, error) {
	if !s.running() {
		return "", ErrNotStarted
	}

	id := uuid.NewString()
	sess := session.New(id, s.table,
		attribution.WithWindow(s.windowMs),
		attribution.WithLogger(s.logger.Named("matcher")),
	)
	if err := s.store.Put(ctx, sess); err != nil {
		return "", fmt.Errorf("store session %s: %w", id, err)
	}
	metrics.RecordSessionOpened()
	s.logger.Info(ctx, "session opened", logger.String("session", id))
	return id, nil
}

// Submit queues a batch for a session. A batch id already accepted for the
// session is reported as duplicate and dropped.
func (s *Service) Submit(ctx context.Context, sessionID, batchID string, events []model.ObservedEvent) (duplicate bool, err error) {
	if !s.running() {
		return false, ErrNotStarted
	}
	if batchID == "" {
		return false, fmt.Errorf("%w: batch_id is required", ErrInvalidBatch)
	}
	if len(events) > s.maxBatchEvents {
		return false, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(events), s.maxBatchEvents)
	}

	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return false, err
	}
	// The slot is taken before the finished check so a concurrent finish
	// either refuses this batch or waits for it.
	if !s.inflight.add(sessionID) {
		return false, ErrSessionFinished
	}
	if sess.Finished() {
		s.inflight.done(sessionID)
		return false, ErrSessionFinished
	}

	key := dedupe.Key(sessionID, batchID)
	if s.deduper.SeenAndRecord(ctx, key) {
		s.inflight.done(sessionID)
		metrics.RecordBatchDuplicate()
		s.logger.Debug(ctx, "duplicate batch skipped",
			logger.String("session", sessionID),
			logger.String("batch", batchID),
		)
		return true, nil
	}

	batch := model.Batch{SessionID: sessionID, BatchID: batchID, Events: events}
	if !s.queue.Enqueue(ctx, batch) {
		s.inflight.done(sessionID)
		s.deduper.Unrecord(ctx, key)
		return false, ErrQueueFull
	}
	return false, nil
}

// Apply feeds a dequeued batch to its session. It is called by the workers.
func (s *Service) Apply(ctx context.Context, b eventqueue.Batch) error { //nolint:gocritic // hugeParam
	defer s.inflight.done(b.SessionID)

	// Workers keep draining during Stop, so this bypasses the started check.
	sess, err := s.store.Get(ctx, b.SessionID)
	if err != nil {
		return fmt.Errorf("session %s: %w", b.SessionID, ErrSessionNotFound)
	}
	res, err := sess.Apply(ctx, b.Events)
	if err != nil {
		if errors.Is(err, session.ErrFinished) {
			return ErrSessionFinished
		}
		return err
	}
	for outcome, n := range res.Outcomes {
		metrics.RecordEventOutcome(outcome.String(), n)
	}
	return nil
}

// FinishSession waits for the session's queued batches, closes its stream,
// archives and returns the report. Finishing twice returns the same report.
func (s *Service) FinishSession(ctx context.Context, sessionID string) (report.Report, error) {
	if !s.running() {
		return report.Report{}, ErrNotStarted
	}
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return report.Report{}, err
	}
	if err := s.inflight.close(ctx, sessionID); err != nil {
		s.inflight.reopen(sessionID)
		return report.Report{}, fmt.Errorf("wait for queued batches: %w", err)
	}

	r := s.finish(ctx, sess)
	return r, nil
}

func (s *Service) finish(ctx context.Context, sess *session.Session) report.Report {
	left, first := sess.Finish(ctx)
	r := buildReport(sess)
	if !first {
		return r
	}

	metrics.RecordSessionFinished()
	byReason := make(map[model.UnconsumedReason]int)
	for _, u := range left {
		byReason[u.Reason]++
	}
	for reason, n := range byReason {
		metrics.RecordUnconsumed(string(reason), n)
	}
	s.logger.Info(ctx, "session finished",
		logger.String("session", sess.ID()),
		logger.Int("events", r.Events),
		logger.Int("attributed", r.Attributed),
		logger.Int("unattributed", r.Unattributed),
		logger.Int("unconsumed", r.Unconsumed),
	)

	if s.archive != nil {
		if err := s.archive.Save(ctx, r); err != nil {
			metrics.RecordErrorByComponent("archive", "save_error")
			s.logger.Error(ctx, "archiving report failed",
				logger.String("session", sess.ID()),
				logger.Error(err),
			)
		}
	}
	return r
}

// onEvict finishes and archives sessions dropped by the idle sweep.
func (s *Service) onEvict(ctx context.Context, sess *session.Session) {
	if !sess.Finished() {
		s.finish(ctx, sess)
	}
	// Gone from the store, so Submit reports it as not found from now on.
	s.inflight.reopen(sess.ID())
}

func buildReport(sess *session.Session) report.Report {
	var r report.Report
	id := sess.ID()
	sess.View(func(table *attribution.Table, index *attribution.Index, stats attribution.Stats, finished bool) {
		r = report.Build(id, finished, table, index, stats)
	})
	return r
}

// Report returns the live report of a session, or the archived one once the
// session is no longer in memory.
func (s *Service) Report(ctx context.Context, sessionID string) (report.Report, error) {
	if !s.running() {
		return report.Report{}, ErrNotStarted
	}
	sess, err := s.store.Get(ctx, sessionID)
	if err == nil {
		return buildReport(sess), nil
	}
	if s.archive == nil {
		return report.Report{}, ErrSessionNotFound
	}
	r, err := s.archive.Load(ctx, sessionID)
	if errors.Is(err, archive.ErrNotFound) {
		return report.Report{}, ErrSessionNotFound
	}
	if err != nil {
		return report.Report{}, fmt.Errorf("load archived report: %w", err)
	}
	return r, nil
}

// Event returns one event of a session with its attribution links.
func (s *Service) Event(ctx context.Context, sessionID string, seq int64) (model.AnnotatedEvent, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return model.AnnotatedEvent{}, err
	}
	e, err := sess.Annotated(seq)
	if errors.Is(err, session.ErrNoEvent) {
		return model.AnnotatedEvent{}, ErrEventNotFound
	}
	return e, err
}

// CauseOf returns the cause of the effect with the given seq. found is false
// when the effect is unattributed.
func (s *Service) CauseOf(ctx context.Context, sessionID string, seq int64) (cause model.ObservedEvent, found bool, err error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return model.ObservedEvent{}, false, err
	}
	cause, found, err = sess.CauseOf(seq)
	if errors.Is(err, session.ErrNoEvent) {
		return model.ObservedEvent{}, false, ErrEventNotFound
	}
	return cause, found, err
}

// EffectsOf returns the effects attributed to the cause with the given seq.
func (s *Service) EffectsOf(ctx context.Context, sessionID string, seq int64) ([]model.ObservedEvent, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	effects, err := sess.EffectsOf(seq)
	if errors.Is(err, session.ErrNoEvent) {
		return nil, ErrEventNotFound
	}
	return effects, err
}

// Sessions lists live sessions.
func (s *Service) Sessions(ctx context.Context) []session.Summary {
	if !s.running() {
		return nil
	}
	return s.store.List(ctx)
}

// Archived lists archived reports, newest first.
func (s *Service) Archived(ctx context.Context, limit int) ([]archive.Entry, error) {
	if s.archive == nil {
		return nil, nil
	}
	return s.archive.List(ctx, limit)
}

// Rules returns the active ruleset.
func (s *Service) Rules() []attribution.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.table == nil {
		return nil
	}
	return s.table.Rules()
}

func (s *Service) session(ctx context.Context, id string) (*session.Session, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	sess, err := s.store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	return sess, err
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":        s.started,
		"workerCount":    s.workerCount,
		"queueSize":      s.queueSize,
		"dedupeSize":     s.dedupeSize,
		"windowMs":       s.windowMs,
		"archiveEnabled": s.archive != nil,
	}

	if s.started {
		queueLen := s.queue.Len(ctx)
		active := s.store.Count(ctx)

		stats["queueLength"] = queueLen
		stats["activeSessions"] = active
		stats["dedupeEntries"] = s.deduper.Size()
		stats["rules"] = s.table.Len()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateActiveSessions(active)
	}
	return stats
}
