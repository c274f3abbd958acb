// Package queue carries event batches from the HTTP layer to the workers.
//
// The in-memory implementation is a bounded buffered channel; a full queue
// rejects the batch immediately so the API can answer with backpressure.
package queue

import (
	"context"
	"sync"

	"github.com/okian/combatlink/internal/domain/model"
	"github.com/okian/combatlink/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Batch is the payload flowing through the queue.
type Batch = model.Batch

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a batch. Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, b Batch) bool

	// Dequeue returns a channel of batches in enqueue order. The channel is
	// closed when the queue is closed and drained, or ctx is done.
	Dequeue(ctx context.Context) <-chan Batch

	Len(ctx context.Context) int
	Capacity() int

	// Close stops accepting batches; queued batches are still delivered.
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	batches  chan Batch
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.batches = make(chan Batch, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

func (q *InMemoryQueue) Enqueue(ctx context.Context, b Batch) bool { //nolint:gocritic // hugeParam: Batch is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.reject("closed")
		return false
	}
	if err := ctx.Err(); err != nil {
		q.reject("context_cancelled")
		return false
	}

	select {
	case q.batches <- b:
		metrics.RecordQueueEnqueue()
		metrics.UpdateQueueSize(len(q.batches))
		return true
	default:
		q.reject("queue_full")
		return false
	}
}

func (q *InMemoryQueue) reject(reason string) {
	metrics.RecordQueueEnqueueError(reason)
	metrics.RecordErrorByComponent("queue", reason)
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Batch {
	out := make(chan Batch)
	go func() {
		defer close(out)
		for {
			select {
			case b, ok := <-q.batches:
				if !ok {
					return
				}
				select {
				case out <- b:
					metrics.RecordQueueDequeue()
					metrics.UpdateQueueSize(len(q.batches))
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (q *InMemoryQueue) Len(ctx context.Context) int {
	size := len(q.batches)
	metrics.UpdateQueueSize(size)
	return size
}

func (q *InMemoryQueue) Capacity() int { return q.capacity }

func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.batches)
	q.closed = true
	return nil
}

func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
