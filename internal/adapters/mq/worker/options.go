package worker

import (
	"github.com/okian/combatlink/internal/adapters/mq/queue"
	"github.com/okian/combatlink/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithInboxSize sets how many batches may wait for a single worker.
func WithInboxSize(size int) Option {
	return func(w *InMemoryWorker) {
		if size > 0 {
			w.inbox = make(chan queue.Batch, size)
		}
	}
}
