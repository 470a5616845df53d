// Package metrics provides Prometheus metrics for the offerwise service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// scoreBuckets cover the 1..10 score scale in half steps at the upper end.
var scoreBuckets = []float64{1, 2, 3, 4, 5, 6, 6.5, 7, 7.5, 8, 8.5, 9, 9.5, 10} //nolint:gochecknoglobals // fixed bucket layout

// Manager manages all Prometheus metrics for the offerwise service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Scoring
	offersScored *prometheus.CounterVec
	scoreValue   prometheus.Histogram

	// Workflow
	transitions          *prometheus.CounterVec
	immediateSurveyQueue prometheus.Gauge
	pendingReminders     prometheus.Gauge
	remindersFired       *prometheus.CounterVec
	remindersExpired     *prometheus.CounterVec

	// Session
	sessionOrders   prometheus.Gauge
	sessionEarnings prometheus.Gauge
	sessionHours    prometheus.Gauge

	// Weights
	trainingRuns     prometheus.Counter
	trainingPoints   prometheus.Gauge
	trainingAccuracy prometheus.Gauge

	// Persistence
	pendingWrites       prometheus.Gauge
	persistCoalesced    prometheus.Counter
	persistFlushes      prometheus.Counter
	persistFlushedKeys  prometheus.Counter
	persistFlushLatency prometheus.Histogram

	// History and remote sync
	historyOrders     prometheus.Gauge
	repositoryLatency *prometheus.HistogramVec
	remoteSync        *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

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

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Init rebuilds the global manager from opts on a fresh registry, which
// GetRegistry returns from then on. Call it once at startup, before any
// metric is recorded or the registry is served.
func Init(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append([]Option{WithPrometheusRegistry(registry)}, opts...)...)
	customRegistry = registry
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "offerwise",
		subsystem:        "driver",
		histogramBuckets: prometheus.DefBuckets,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.customLabels, Buckets: buckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.offersScored = m.counterVec("offers_scored_total",
		"Total number of offers scored by algorithm and recommendation", "algorithm", "recommendation")
	m.scoreValue = m.histogram("offer_score", "Distribution of 1..10 offer scores", scoreBuckets)

	m.transitions = m.counterVec("workflow_transitions_total",
		"Total number of order lifecycle transitions by target step", "step")
	m.immediateSurveyQueue = m.gauge("immediate_survey_queue", "Orders waiting for the immediate survey")
	m.pendingReminders = m.gauge("pending_reminders", "Reminders scheduled but not yet fired or expired")
	m.remindersFired = m.counterVec("reminders_fired_total", "Reminders that reached their due time", "kind")
	m.remindersExpired = m.counterVec("reminders_expired_total", "Reminders dropped after their grace period", "kind")

	m.sessionOrders = m.gauge("session_orders", "Orders in the current session")
	m.sessionEarnings = m.gauge("session_earnings_dollars", "Earnings of the current session")
	m.sessionHours = m.gauge("session_hours", "Trip hours of the current session")

	m.trainingRuns = m.counter("training_runs_total", "Completed weight training passes")
	m.trainingPoints = m.gauge("training_points", "Orders used by the last training pass")
	m.trainingAccuracy = m.gauge("training_accuracy_percent", "Accuracy of the last training pass")

	m.pendingWrites = m.gauge("persist_pending_writes", "Keys waiting in the write-coalescing queue")
	m.persistCoalesced = m.counter("persist_coalesced_total", "Writes that replaced a pending write for the same key")
	m.persistFlushes = m.counter("persist_flushes_total", "Flushes of the write-coalescing queue")
	m.persistFlushedKeys = m.counter("persist_flushed_keys_total", "Keys written by flushes")
	m.persistFlushLatency = m.histogram("persist_flush_latency_milliseconds", "Flush latency in milliseconds", m.histogramBuckets)

	m.historyOrders = m.gauge("history_orders", "Orders stored in history")
	m.repositoryLatency = m.histogramVec("repository_latency_milliseconds",
		"History repository operation latency in milliseconds", m.histogramBuckets, "operation")
	m.remoteSync = m.counterVec("remote_sync_total", "Remote sync attempts by record kind and outcome", "kind", "outcome")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", m.histogramBuckets, "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total",
		"Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Total number of errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds",
		"Latency of operations that resulted in errors", m.histogramBuckets, "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Scoring.

// RecordOfferScored counts a scored offer and observes its score.
func RecordOfferScored(algorithm, recommendation string, score float64) {
	globalManager.offersScored.WithLabelValues(algorithm, recommendation).Inc()
	globalManager.scoreValue.Observe(score)
}

// Workflow.

// RecordTransition counts a lifecycle transition into step.
func RecordTransition(step string) {
	globalManager.transitions.WithLabelValues(step).Inc()
}

// UpdateImmediateSurveyQueue sets the immediate survey queue length.
func UpdateImmediateSurveyQueue(n int) {
	globalManager.immediateSurveyQueue.Set(float64(n))
}

// UpdatePendingReminders sets the number of scheduled reminders.
func UpdatePendingReminders(n int) {
	globalManager.pendingReminders.Set(float64(n))
}

// RecordReminderFired counts a reminder reaching its due time.
func RecordReminderFired(kind string) {
	globalManager.remindersFired.WithLabelValues(kind).Inc()
}

// RecordReminderExpired counts a reminder dropped after its grace period.
func RecordReminderExpired(kind string) {
	globalManager.remindersExpired.WithLabelValues(kind).Inc()
}

// Session.

// UpdateSessionTotals publishes the current session aggregates.
func UpdateSessionTotals(orders int, earnings, hours float64) {
	globalManager.sessionOrders.Set(float64(orders))
	globalManager.sessionEarnings.Set(earnings)
	globalManager.sessionHours.Set(hours)
}

// Weights.

// RecordTraining records a finished training pass.
func RecordTraining(points int, accuracy float64) {
	globalManager.trainingRuns.Inc()
	globalManager.trainingPoints.Set(float64(points))
	globalManager.trainingAccuracy.Set(accuracy)
}

// Persistence.

// UpdatePendingWrites sets the number of keys waiting to be flushed.
func UpdatePendingWrites(n int) {
	globalManager.pendingWrites.Set(float64(n))
}

// RecordPersistCoalesced counts a write that replaced a pending one.
func RecordPersistCoalesced() {
	globalManager.persistCoalesced.Inc()
}

// RecordPersistFlush records a flush of keys taking latencyMs.
func RecordPersistFlush(keys int, latencyMs float64) {
	globalManager.persistFlushes.Inc()
	globalManager.persistFlushedKeys.Add(float64(keys))
	globalManager.persistFlushLatency.Observe(latencyMs)
}

// History and remote sync.

// UpdateHistoryOrders sets the number of orders in history.
func UpdateHistoryOrders(n int) {
	globalManager.historyOrders.Set(float64(n))
}

// RecordRepositoryLatency records a history repository call.
func RecordRepositoryLatency(operation string, latencyMs float64) {
	globalManager.repositoryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordRemoteSync counts a remote sync attempt.
func RecordRemoteSync(kind, outcome string) {
	globalManager.remoteSync.WithLabelValues(kind, outcome).Inc()
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

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
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
