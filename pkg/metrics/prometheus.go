// Package metrics provides Prometheus metrics for the profile-image leaderboard service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// similarityBuckets spreads resolution around the tier cut-offs.
var similarityBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.45, 0.5, 0.6, 0.7, 0.8, 0.9, 0.925, 0.95, 1.0} //nolint:gochecknoglobals // static bucket layout

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Observation flow
	observationsAccepted  prometheus.Counter
	observationsDuplicate prometheus.Counter
	observationsProcessed prometheus.Counter
	trackingOutcomes      *prometheus.CounterVec

	// Classification and resolution
	similarityScore     prometheus.Histogram
	classificationTiers *prometheus.CounterVec
	resolutionDecisions *prometheus.CounterVec
	resolutionSkipped   *prometheus.CounterVec
	resolutionLatency   prometheus.Histogram

	// Profile image fetching
	fetchLatency   prometheus.Histogram
	fetchCacheHits prometheus.Counter
	fetchCacheMiss prometheus.Counter
	fetchRetries   prometheus.Counter
	fetchErrors    *prometheus.CounterVec
	breakerState   prometheus.Gauge

	// Operational health
	queueSize       prometheus.Gauge
	workerCount     prometheus.Gauge
	trackedEntities prometheus.Gauge

	// Snapshot metrics
	repositorySnapshotRebuildDuration prometheus.Histogram
	repositorySnapshotLastUnix        prometheus.Gauge
	repositorySnapshotCount           prometheus.Counter
	repositorySnapshotLastDurationMs  prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository
	repositoryRecordsTotal  prometheus.Gauge
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram
	repositoryRetries       prometheus.Counter

	// Queue
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker
	workerActiveCount       prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure replaces the global manager with one built from opts on a fresh
// registry. Call it at startup, before metrics are recorded or served.
func Configure(opts ...Option) *Manager {
	customRegistry = prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(customRegistry))...)
	return globalManager
}

// NewManager creates a new metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pfpboard",
		subsystem:        "leaderboard",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

// RefreshInterval reports how often gauge updaters should run.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// Enabled reports whether recording is active.
func (m *Manager) Enabled() bool { return m.enabled }

func (m *Manager) counter(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: m.metricPrefix + name, Help: help, ConstLabels: m.customLabels}
}

func (m *Manager) gauge(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: m.metricPrefix + name, Help: help, ConstLabels: m.customLabels}
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: m.metricPrefix + name, Help: help, Buckets: buckets, ConstLabels: m.customLabels}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.observationsAccepted = auto.NewCounter(m.counter("observations_accepted_total", "Observations accepted into the processing queue"))
	m.observationsDuplicate = auto.NewCounter(m.counter("observations_duplicate_total", "Observations rejected as duplicates"))
	m.observationsProcessed = auto.NewCounter(m.counter("observations_processed_total", "Observations fully processed by a worker"))
	m.trackingOutcomes = auto.NewCounterVec(m.counter("tracking_outcomes_total", "Tracked-entity outcomes by kind"), []string{"outcome"})

	m.similarityScore = auto.NewHistogram(m.histogram("similarity_score", "Distribution of SSIM scores", similarityBuckets))
	m.classificationTiers = auto.NewCounterVec(m.counter("classifications_total", "Classifications by collection and tier"), []string{"collection", "tier"})
	m.resolutionDecisions = auto.NewCounterVec(m.counter("membership_decisions_total", "Membership decisions by winning collection"), []string{"collection"})
	m.resolutionSkipped = auto.NewCounterVec(m.counter("membership_skipped_references_total", "Reference images skipped because classification failed"), []string{"collection"})
	m.resolutionLatency = auto.NewHistogram(m.histogram("membership_latency_milliseconds", "Membership resolution latency in milliseconds", m.histogramBuckets))

	m.fetchLatency = auto.NewHistogram(m.histogram("fetch_latency_milliseconds", "Profile image fetch latency in milliseconds", m.histogramBuckets))
	m.fetchCacheHits = auto.NewCounter(m.counter("fetch_cache_hits_total", "Profile image cache hits"))
	m.fetchCacheMiss = auto.NewCounter(m.counter("fetch_cache_misses_total", "Profile image cache misses"))
	m.fetchRetries = auto.NewCounter(m.counter("fetch_retries_total", "Profile image fetch retries"))
	m.fetchErrors = auto.NewCounterVec(m.counter("fetch_errors_total", "Profile image fetch errors by reason"), []string{"reason"})
	m.breakerState = auto.NewGauge(m.gauge("fetch_breaker_state", "Fetch circuit breaker state (0 closed, 1 half-open, 2 open)"))

	m.queueSize = auto.NewGauge(m.gauge("queue_size", "Current size of the observation queue"))
	m.workerCount = auto.NewGauge(m.gauge("worker_count", "Configured number of workers"))
	m.trackedEntities = auto.NewGauge(m.gauge("tracked_entities", "Number of tracked entities in the leaderboard"))

	m.repositorySnapshotRebuildDuration = auto.NewHistogram(m.histogram("repository_snapshot_rebuild_milliseconds", "Snapshot rebuild duration in milliseconds", m.histogramBuckets))
	m.repositorySnapshotLastUnix = auto.NewGauge(m.gauge("repository_snapshot_last_unix", "Unix time of the last snapshot"))
	m.repositorySnapshotCount = auto.NewCounter(m.counter("repository_snapshots_total", "Snapshots published"))
	m.repositorySnapshotLastDurationMs = auto.NewGauge(m.gauge("repository_snapshot_last_duration_milliseconds", "Duration of the last snapshot rebuild"))

	m.httpRequests = auto.NewCounterVec(m.counter("http_requests_total", "HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogram("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets), []string{"endpoint", "method", "status_code"})

	m.repositoryRecordsTotal = auto.NewGauge(m.gauge("repository_records_total", "Rows held by the repository"))
	m.repositoryUpdateLatency = auto.NewHistogram(m.histogram("repository_update_latency_milliseconds", "Repository write latency in milliseconds", m.histogramBuckets))
	m.repositoryQueryLatency = auto.NewHistogram(m.histogram("repository_query_latency_milliseconds", "Repository read latency in milliseconds", m.histogramBuckets))
	m.repositoryRetries = auto.NewCounter(m.counter("repository_retries_total", "Read-modify-write attempts replayed after a store error"))

	m.queueCapacity = auto.NewGauge(m.gauge("queue_capacity", "Maximum queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gauge("queue_utilization_ratio", "Queue utilization ratio"))
	m.queueEnqueueRate = auto.NewCounter(m.counter("queue_enqueue_total", "Observations enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counter("queue_dequeue_total", "Observations dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counter("queue_enqueue_errors_total", "Enqueue attempts rejected"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogram("queue_processing_latency_milliseconds", "Enqueue latency in milliseconds", m.histogramBuckets))

	m.workerActiveCount = auto.NewGauge(m.gauge("worker_active_count", "Running workers"))
	m.workerMessagesPerSecond = auto.NewGauge(m.gauge("worker_messages_per_second", "Observations processed per second"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogram("worker_processing_latency_milliseconds", "End-to-end processing latency per observation", m.histogramBuckets))
	m.workerErrorRate = auto.NewCounter(m.counter("worker_errors_total", "Observations that failed processing"))

	m.errorRateByComponent = auto.NewCounterVec(m.counter("errors_by_component_total", "Errors by component and type"), []string{"component", "error_type"})
	m.errorRateByType = auto.NewCounterVec(m.counter("errors_by_type_total", "Errors by type and severity"), []string{"error_type", "severity"})
	m.errorRateByEndpoint = auto.NewCounterVec(m.counter("errors_by_endpoint_total", "Errors by endpoint"), []string{"endpoint", "method", "error_type"})
	m.errorLatency = auto.NewHistogramVec(m.histogram("error_latency_milliseconds", "Latency of failed operations", m.histogramBuckets), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gauge("system_memory_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gauge("system_goroutines", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogram("system_gc_pause_milliseconds", "Average GC pause in milliseconds", m.histogramBuckets))
}

// Observation flow.

// RecordObservationAccepted increments the accepted observations counter.
func RecordObservationAccepted() {
	if globalManager.enabled {
		globalManager.observationsAccepted.Inc()
	}
}

// RecordObservationDuplicate increments the duplicate observations counter.
func RecordObservationDuplicate() {
	if globalManager.enabled {
		globalManager.observationsDuplicate.Inc()
	}
}

// RecordObservationProcessed increments the processed observations counter.
func RecordObservationProcessed() {
	if globalManager.enabled {
		globalManager.observationsProcessed.Inc()
	}
}

// RecordTrackingOutcome counts a tracker outcome (created, updated, unchanged, removed, absent).
func RecordTrackingOutcome(outcome string) {
	if globalManager.enabled {
		globalManager.trackingOutcomes.WithLabelValues(outcome).Inc()
	}
}

// Classification and resolution.

// RecordSimilarityScore observes one SSIM score.
func RecordSimilarityScore(score float64) {
	if globalManager.enabled {
		globalManager.similarityScore.Observe(score)
	}
}

// RecordClassification counts one classification for a collection.
func RecordClassification(collection, tier string) {
	if globalManager.enabled {
		globalManager.classificationTiers.WithLabelValues(collection, tier).Inc()
	}
}

// RecordMembershipDecision counts a resolver decision; collection is "none" on no match.
func RecordMembershipDecision(collection string) {
	if globalManager.enabled {
		globalManager.resolutionDecisions.WithLabelValues(collection).Inc()
	}
}

// RecordSkippedReference counts a reference image skipped after a classification error.
func RecordSkippedReference(collection string) {
	if globalManager.enabled {
		globalManager.resolutionSkipped.WithLabelValues(collection).Inc()
	}
}

// RecordMembershipLatency records resolution latency in milliseconds.
func RecordMembershipLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.resolutionLatency.Observe(latencyMs)
	}
}

// Profile image fetching.

// RecordFetchLatency records fetch latency in milliseconds.
func RecordFetchLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.fetchLatency.Observe(latencyMs)
	}
}

// RecordFetchCacheHit increments the fetch cache hit counter.
func RecordFetchCacheHit() {
	if globalManager.enabled {
		globalManager.fetchCacheHits.Inc()
	}
}

// RecordFetchCacheMiss increments the fetch cache miss counter.
func RecordFetchCacheMiss() {
	if globalManager.enabled {
		globalManager.fetchCacheMiss.Inc()
	}
}

// RecordFetchRetry increments the fetch retry counter.
func RecordFetchRetry() {
	if globalManager.enabled {
		globalManager.fetchRetries.Inc()
	}
}

// RecordFetchError counts a failed fetch by reason.
func RecordFetchError(reason string) {
	if globalManager.enabled {
		globalManager.fetchErrors.WithLabelValues(reason).Inc()
	}
}

// UpdateBreakerState sets the circuit breaker state gauge.
func UpdateBreakerState(state int) {
	globalManager.breakerState.Set(float64(state))
}

// Operational health.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateTrackedEntities sets the tracked entity count.
func UpdateTrackedEntities(count int) {
	globalManager.trackedEntities.Set(float64(count))
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Repository.

// UpdateRepositoryRecordsTotal sets the number of stored rows.
func UpdateRepositoryRecordsTotal(count int) {
	globalManager.repositoryRecordsTotal.Set(float64(count))
}

// RecordRepositoryUpdateLatency records repository write latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository read latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// RecordRepositoryRetry counts a replayed read-modify-write.
func RecordRepositoryRetry() {
	globalManager.repositoryRetries.Inc()
}

// RecordRepositorySnapshotRebuildDuration observes a snapshot rebuild.
func RecordRepositorySnapshotRebuildDuration(ms float64) {
	globalManager.repositorySnapshotRebuildDuration.Observe(ms)
}

// UpdateRepositorySnapshotLastDurationMs sets the last snapshot duration.
func UpdateRepositorySnapshotLastDurationMs(ms float64) {
	globalManager.repositorySnapshotLastDurationMs.Set(ms)
}

// UpdateRepositorySnapshotLastUnix sets the last snapshot time.
func UpdateRepositorySnapshotLastUnix(unix float64) {
	globalManager.repositorySnapshotLastUnix.Set(unix)
}

// IncrementRepositorySnapshotCount counts a published snapshot.
func IncrementRepositorySnapshotCount() {
	globalManager.repositorySnapshotCount.Inc()
}

// Queue.

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records enqueue latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker.

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the processing rate.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records per-observation processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System.

// UpdateSystemMemoryUsage sets the heap allocation in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
