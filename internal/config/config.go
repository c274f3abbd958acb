// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load(ctx) layers a YAML file and COMBATLINK_* env vars on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the in-memory batch queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of matcher workers. Zero means one per CPU.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the batch id deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// AttributionWindowMS bounds how old a pending cause may be when its
	// effect arrives. Zero disables the window.
	AttributionWindowMS int64 `koanf:"attribution_window_ms"`

	// RulesPath points at a YAML ruleset; empty uses the built-in Windwalker table.
	RulesPath string `koanf:"rules_path"`

	// ArchivePath is the SQLite report archive; empty disables archiving.
	ArchivePath string `koanf:"archive_path"`

	// SessionIdleTTLSec evicts sessions without activity for this long.
	// Zero keeps sessions until shutdown.
	SessionIdleTTLSec int `koanf:"session_idle_ttl_sec"`

	// MaxBatchEvents caps the events accepted in one batch.
	MaxBatchEvents int `koanf:"max_batch_events"`
}

// New creates a Config with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "json",
		Addr:                ":9080",
		EventQueueSize:      10_000,
		WorkerCount:         runtime.NumCPU(),
		DedupeSize:          100_000,
		AttributionWindowMS: 0,
		SessionIdleTTLSec:   1800,
		MaxBatchEvents:      5000,
	}
}

// SessionIdleTTL returns SessionIdleTTLSec as a duration.
func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLSec) * time.Second
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.EventQueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive, got %d", ErrInvalidConfig, c.EventQueueSize)
	case c.WorkerCount < 0:
		return fmt.Errorf("%w: worker_count must not be negative, got %d", ErrInvalidConfig, c.WorkerCount)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive, got %d", ErrInvalidConfig, c.DedupeSize)
	case c.AttributionWindowMS < 0:
		return fmt.Errorf("%w: attribution_window_ms must not be negative, got %d", ErrInvalidConfig, c.AttributionWindowMS)
	case c.SessionIdleTTLSec < 0:
		return fmt.Errorf("%w: session_idle_ttl_sec must not be negative, got %d", ErrInvalidConfig, c.SessionIdleTTLSec)
	case c.MaxBatchEvents <= 0:
		return fmt.Errorf("%w: max_batch_events must be positive, got %d", ErrInvalidConfig, c.MaxBatchEvents)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
