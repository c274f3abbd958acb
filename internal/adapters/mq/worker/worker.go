// Package worker applies queued event batches to their sessions.
//
// A Pool runs one dispatcher and N workers. The dispatcher routes every batch
// to the worker chosen by hashing its session id, so all batches of a session
// are applied by the same goroutine in the order they were queued.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/okian/combatlink/internal/adapters/mq/queue"
	"github.com/okian/combatlink/pkg/logger"
	"github.com/okian/combatlink/pkg/metrics"
)

const (
	defaultInboxSize    = 64
	poolShutdownTimeout = 30 * time.Second
)

// Applier feeds one batch into its session.
type Applier interface {
	Apply(ctx context.Context, b queue.Batch) error
}

// Queue defines how the dispatcher receives batches.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Batch
}

// Shard maps a session id onto one of n workers.
func Shard(sessionID string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(sessionID) % uint64(n))
}

// InMemoryWorker applies the batches routed to its inbox.
type InMemoryWorker struct {
	inbox   chan queue.Batch
	applier Applier
	name    string
	logger  logger.Logger
	done    chan struct{}
}

// NewInMemoryWorker creates a worker with its own inbox.
func NewInMemoryWorker(applier Applier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		inbox:   make(chan queue.Batch, defaultInboxSize),
		applier: applier,
		name:    "worker",
		done:    make(chan struct{}),
		logger:  logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run processes the inbox until it is closed or ctx is canceled.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-w.inbox:
			if !ok {
				return
			}
			if err := w.process(ctx, b); err != nil {
				w.logger.Error(ctx, "error applying batch", logger.Error(err))
			}
		}
	}
}

// Done is closed once Run has returned.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, b queue.Batch) error { //nolint:gocritic // hugeParam: Batch is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerBatchLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if err := w.applier.Apply(ctx, b); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "apply_error")
		return fmt.Errorf("apply batch %s/%s: %w", b.SessionID, b.BatchID, err)
	}
	w.logger.Debug(ctx, "batch applied",
		logger.String("session", b.SessionID),
		logger.String("batch", b.BatchID),
		logger.Int("events", len(b.Events)),
	)
	return nil
}

// Pool manages the dispatcher and its workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	dispatched chan struct{}
	stopOnce   sync.Once
	logger     logger.Logger
}

// NewPool creates a pool. workerCount < 1 means one worker per CPU.
func NewPool(workerCount int, q Queue, applier Applier, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers:    make([]*InMemoryWorker, workerCount),
		queue:      q,
		dispatched: make(chan struct{}),
		logger:     logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(applier, workerOpts...)
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches the workers and the dispatcher.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.dispatch(ctx)
}

func (p *Pool) dispatch(ctx context.Context) {
	defer func() {
		for _, w := range p.workers {
			close(w.inbox)
		}
		close(p.dispatched)
	}()

	for b := range p.queue.Dequeue(ctx) {
		w := p.workers[Shard(b.SessionID, len(p.workers))]
		select {
		case w.inbox <- b:
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown closes the queue, lets queued batches drain and waits for the
// workers, bounded by ctx and an internal timeout.
func (p *Pool) Shutdown(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		if closer, ok := p.queue.(interface{ Close() error }); ok {
			if cerr := closer.Close(); cerr != nil {
				p.logger.Error(ctx, "error closing queue", logger.Error(cerr))
			}
		}

		shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
		defer cancel()

		select {
		case <-p.dispatched:
		case <-shutdownCtx.Done():
			err = fmt.Errorf("dispatcher shutdown: %w", shutdownCtx.Err())
			return
		}
		for i, w := range p.workers {
			select {
			case <-w.done:
			case <-shutdownCtx.Done():
				p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
				err = fmt.Errorf("worker shutdown: %w", shutdownCtx.Err())
				return
			}
		}
	})
	return err
}
