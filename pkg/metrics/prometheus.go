// Package metrics provides Prometheus metrics for the combatlink service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Attribution
	eventsObserved   *prometheus.CounterVec
	unconsumedCauses *prometheus.CounterVec
	batchDuplicates  prometheus.Counter

	// Sessions
	sessionsOpened   prometheus.Counter
	sessionsFinished prometheus.Counter
	sessionsEvicted  prometheus.Counter
	sessionsActive   prometheus.Gauge

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueEnqueued      prometheus.Counter
	queueDequeued      prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Workers
	workerCount        prometheus.Gauge
	workerBatchLatency prometheus.Histogram
	workerErrors       prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors and storage
	errorsByComponent *prometheus.CounterVec
	archiveWrites     *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // process-wide metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "combatlink",
		subsystem:        "attribution",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.eventsObserved = auto.NewCounterVec(
		m.counterOpts("events_observed_total", "Combat log events observed by matchers, by outcome"),
		[]string{"outcome"},
	)
	m.unconsumedCauses = auto.NewCounterVec(
		m.counterOpts("unconsumed_causes_total", "Cause events whose expected effects were never observed, by reason"),
		[]string{"reason"},
	)
	m.batchDuplicates = auto.NewCounter(
		m.counterOpts("batch_duplicates_total", "Event batches rejected as already submitted"),
	)

	m.sessionsOpened = auto.NewCounter(m.counterOpts("sessions_opened_total", "Analysis sessions opened"))
	m.sessionsFinished = auto.NewCounter(m.counterOpts("sessions_finished_total", "Analysis sessions finished"))
	m.sessionsEvicted = auto.NewCounter(m.counterOpts("sessions_evicted_total", "Idle analysis sessions evicted"))
	m.sessionsActive = auto.NewGauge(m.gaugeOpts("sessions_active", "Analysis sessions currently held in memory"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Batches waiting in the ingest queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum ingest queue capacity"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Batches enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Batches dequeued"))
	m.queueEnqueueErrors = auto.NewCounterVec(
		m.counterOpts("queue_enqueue_errors_total", "Batches refused by the ingest queue, by reason"),
		[]string{"reason"},
	)

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Ingest workers running"))
	m.workerBatchLatency = auto.NewHistogram(
		m.histogramOpts("worker_batch_latency_milliseconds", "Time to apply one batch to its session", m.histogramBuckets),
	)
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Batches a worker failed to apply"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorsByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)
	m.archiveWrites = auto.NewCounterVec(
		m.counterOpts("archive_writes_total", "Report archive writes by status"),
		[]string{"status"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_time_milliseconds", "Average GC pause time in milliseconds",
			[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}),
	)
}

// RecordEventOutcome counts n observed events under their matcher outcome.
func (m *Manager) RecordEventOutcome(outcome string, n int) {
	if n > 0 {
		m.eventsObserved.WithLabelValues(outcome).Add(float64(n))
	}
}

// RecordUnconsumed counts n causes left without their effects.
func (m *Manager) RecordUnconsumed(reason string, n int) {
	if n > 0 {
		m.unconsumedCauses.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordBatchDuplicate counts a batch dropped by idempotency checks.
func (m *Manager) RecordBatchDuplicate() { m.batchDuplicates.Inc() }

// RecordSessionOpened counts a new session.
func (m *Manager) RecordSessionOpened() { m.sessionsOpened.Inc() }

// RecordSessionFinished counts a finished session.
func (m *Manager) RecordSessionFinished() { m.sessionsFinished.Inc() }

// RecordSessionEvicted counts an idle session removed by the store sweep.
func (m *Manager) RecordSessionEvicted() { m.sessionsEvicted.Inc() }

// UpdateActiveSessions sets the in-memory session gauge.
func (m *Manager) UpdateActiveSessions(n int) { m.sessionsActive.Set(float64(n)) }

// UpdateQueueSize sets the current queue size.
func (m *Manager) UpdateQueueSize(size int) { m.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the queue capacity.
func (m *Manager) UpdateQueueCapacity(capacity int) { m.queueCapacity.Set(float64(capacity)) }

// RecordQueueEnqueue counts an enqueued batch.
func (m *Manager) RecordQueueEnqueue() { m.queueEnqueued.Inc() }

// RecordQueueDequeue counts a dequeued batch.
func (m *Manager) RecordQueueDequeue() { m.queueDequeued.Inc() }

// RecordQueueEnqueueError counts a refused enqueue.
func (m *Manager) RecordQueueEnqueueError(reason string) {
	m.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the worker gauge.
func (m *Manager) UpdateWorkerCount(count int) { m.workerCount.Set(float64(count)) }

// RecordWorkerBatchLatency observes how long a batch took to apply.
func (m *Manager) RecordWorkerBatchLatency(latencyMs float64) { m.workerBatchLatency.Observe(latencyMs) }

// RecordWorkerError counts a failed batch.
func (m *Manager) RecordWorkerError() { m.workerErrors.Inc() }

// RecordHTTPRequest counts an HTTP request.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string) {
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes an HTTP request duration.
func (m *Manager) RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordErrorByComponent counts an error raised by a component.
func (m *Manager) RecordErrorByComponent(component, errorType string) {
	m.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordArchiveWrite counts an archive write attempt.
func (m *Manager) RecordArchiveWrite(status string) { m.archiveWrites.WithLabelValues(status).Inc() }

// UpdateSystemMemoryUsage sets heap usage in bytes.
func (m *Manager) UpdateSystemMemoryUsage(bytes uint64) { m.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine gauge.
func (m *Manager) UpdateSystemGoroutineCount(count int) { m.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime observes an average GC pause.
func (m *Manager) RecordSystemGCPauseTime(pauseMs float64) { m.systemGCPauseTime.Observe(pauseMs) }

// RecordEventOutcome counts observed events under their matcher outcome.
func RecordEventOutcome(outcome string, n int) {
	globalManager.RecordEventOutcome(outcome, n)
}

// RecordUnconsumed counts causes left without their effects.
func RecordUnconsumed(reason string, n int) {
	globalManager.RecordUnconsumed(reason, n)
}

// RecordBatchDuplicate counts a batch dropped as already submitted.
func RecordBatchDuplicate() {
	globalManager.RecordBatchDuplicate()
}

// RecordSessionOpened counts a new session.
func RecordSessionOpened() {
	globalManager.RecordSessionOpened()
}

// RecordSessionFinished counts a finished session.
func RecordSessionFinished() {
	globalManager.RecordSessionFinished()
}

// RecordSessionEvicted counts an evicted idle session.
func RecordSessionEvicted() {
	globalManager.RecordSessionEvicted()
}

// UpdateActiveSessions sets the in-memory session gauge.
func UpdateActiveSessions(n int) {
	globalManager.UpdateActiveSessions(n)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.UpdateQueueSize(size)
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.UpdateQueueCapacity(capacity)
}

// RecordQueueEnqueue counts an enqueued batch.
func RecordQueueEnqueue() {
	globalManager.RecordQueueEnqueue()
}

// RecordQueueDequeue counts a dequeued batch.
func RecordQueueDequeue() {
	globalManager.RecordQueueDequeue()
}

// RecordQueueEnqueueError counts a refused enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.RecordQueueEnqueueError(reason)
}

// UpdateWorkerCount sets the worker gauge.
func UpdateWorkerCount(count int) {
	globalManager.UpdateWorkerCount(count)
}

// RecordWorkerBatchLatency observes batch apply latency.
func RecordWorkerBatchLatency(latencyMs float64) {
	globalManager.RecordWorkerBatchLatency(latencyMs)
}

// RecordWorkerError counts a failed batch.
func RecordWorkerError() {
	globalManager.RecordWorkerError()
}

// RecordErrorByComponent counts an error raised by a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.RecordErrorByComponent(component, errorType)
}

// RecordArchiveWrite counts an archive write attempt.
func RecordArchiveWrite(status string) {
	globalManager.RecordArchiveWrite(status)
}

// UpdateSystemMemoryUsage sets heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.UpdateSystemMemoryUsage(bytes)
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.UpdateSystemGoroutineCount(count)
}

// RecordSystemGCPauseTime observes an average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.RecordSystemGCPauseTime(pauseMs)
}

// RecordHTTPRequest counts an HTTP request on the global manager.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode)
}

// RecordHTTPRequestDuration observes an HTTP request duration on the global manager.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.RecordHTTPRequestDuration(endpoint, method, statusCode, durationMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
