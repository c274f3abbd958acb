package service

import (
	"time"

	"github.com/okian/combatlink/internal/domain/attribution"
	"github.com/okian/combatlink/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets how many batches may wait for the workers.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many batch keys are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTable uses a prebuilt attribution table instead of loading one.
func WithTable(t *attribution.Table) Option {
	return func(s *Service) {
		if t != nil {
			s.table = t
		}
	}
}

// WithRulesPath loads the ruleset from a YAML file at Start. Empty means the
// built-in Windwalker rules.
func WithRulesPath(path string) Option {
	return func(s *Service) {
		s.rulesPath = path
	}
}

// WithWindow sets the attribution window in ms for new sessions.
func WithWindow(ms int64) Option {
	return func(s *Service) {
		if ms >= 0 {
			s.windowMs = ms
		}
	}
}

// WithArchivePath enables the SQLite report archive.
func WithArchivePath(path string) Option {
	return func(s *Service) {
		s.archivePath = path
	}
}

// WithArchive uses an already opened archive.
func WithArchive(a Archive) Option {
	return func(s *Service) {
		if a != nil {
			s.archive = a
		}
	}
}

// WithIdleTTL evicts sessions idle for longer than ttl. Zero disables it.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl >= 0 {
			s.idleTTL = ttl
		}
	}
}

// WithMaxBatchEvents bounds the number of events in one submitted batch.
func WithMaxBatchEvents(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBatchEvents = n
		}
	}
}
