// Package metrics provides Prometheus metrics for the rollcall admission service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Admission
	admissionDecisions *prometheus.CounterVec
	admissionLatency   *prometheus.HistogramVec
	admissionErrors    *prometheus.CounterVec

	// Lifecycle
	lifecycleTransitions  *prometheus.CounterVec
	lifecycleFailures     *prometheus.CounterVec
	lifecycleTickDuration prometheus.Histogram
	auditPurged           prometheus.Counter

	// Notification queue and workers
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueDropped           *prometheus.CounterVec
	workerCount            prometheus.Gauge
	notificationsDelivered *prometheus.CounterVec
	notificationsFailed    *prometheus.CounterVec
	notificationLatency    prometheus.Histogram

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// Repository
	repositoryRecords       *prometheus.GaugeVec
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

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

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "rollcall",
		subsystem:        "admission",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.admissionDecisions = m.counterVec("decisions_total",
		"Admission decisions by operation and outcome", "op", "outcome")
	m.admissionLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "operation_latency_milliseconds",
		Help:        "Admission operation latency in milliseconds, lock wait included",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"op"})
	m.admissionErrors = m.counterVec("errors_total",
		"Admission operations that failed with an error, by kind", "op", "kind")

	m.lifecycleTransitions = m.counterVec("lifecycle_transitions_total",
		"Lifecycle transitions applied by the scheduler", "transition")
	m.lifecycleFailures = m.counterVec("lifecycle_failures_total",
		"Per-event lifecycle failures by check", "check")
	m.lifecycleTickDuration = m.histogram("lifecycle_tick_duration_milliseconds",
		"Duration of a full scheduler tick", []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 30000})
	m.auditPurged = m.counter("audit_purged_total", "Audit rows removed by log retention")

	m.queueSize = m.gauge("notify_queue_size", "Current notification backlog")
	m.queueCapacity = m.gauge("notify_queue_capacity", "Notification queue capacity")
	m.queueUtilization = m.gauge("notify_queue_utilization", "Notification queue utilization (0-1)")
	m.queueEnqueued = m.counter("notify_enqueued_total", "Notifications enqueued")
	m.queueDequeued = m.counter("notify_dequeued_total", "Notifications dequeued")
	m.queueDropped = m.counterVec("notify_dropped_total", "Notifications dropped before delivery", "reason")
	m.workerCount = m.gauge("notify_worker_count", "Notification workers running")
	m.notificationsDelivered = m.counterVec("notify_delivered_total", "Notifications delivered", "kind")
	m.notificationsFailed = m.counterVec("notify_failed_total", "Notifications that failed delivery", "kind")
	m.notificationLatency = m.histogram("notify_latency_milliseconds", "Notification delivery latency", m.histogramBuckets)

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.errorRateByEndpoint = m.counterVec("http_errors_total",
		"HTTP errors by endpoint", "endpoint", "method", "error_type")

	m.repositoryRecords = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "repository_records",
		Help:        "Records held by the repository, by kind",
		ConstLabels: m.constLabels,
	}, []string{"kind"})
	m.repositoryUpdateLatency = m.histogram("repository_update_latency_milliseconds",
		"Repository write latency", m.histogramBuckets)
	m.repositoryQueryLatency = m.histogram("repository_query_latency_milliseconds",
		"Repository read latency", m.histogramBuckets)

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordAdmissionDecision counts an admission outcome.
func RecordAdmissionDecision(op, outcome string) {
	globalManager.admissionDecisions.WithLabelValues(op, outcome).Inc()
}

// RecordAdmissionLatency records admission latency in milliseconds.
func RecordAdmissionLatency(op string, latencyMs float64) {
	globalManager.admissionLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordAdmissionError counts a failed admission operation.
func RecordAdmissionError(op, kind string) {
	globalManager.admissionErrors.WithLabelValues(op, kind).Inc()
}

// RecordLifecycleTransition counts an applied lifecycle transition.
func RecordLifecycleTransition(transition string) {
	globalManager.lifecycleTransitions.WithLabelValues(transition).Inc()
}

// RecordLifecycleFailure counts a per-event failure within a scheduler check.
func RecordLifecycleFailure(check string) {
	globalManager.lifecycleFailures.WithLabelValues(check).Inc()
}

// RecordLifecycleTickDuration records a scheduler tick duration in milliseconds.
func RecordLifecycleTickDuration(latencyMs float64) {
	globalManager.lifecycleTickDuration.Observe(latencyMs)
}

// RecordAuditPurged adds n purged audit rows.
func RecordAuditPurged(n int) {
	if n > 0 {
		globalManager.auditPurged.Add(float64(n))
	}
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets queue utilization (0-1).
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue counts an enqueued notification.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue counts a dequeued notification.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueDropped counts a notification that never reached a worker.
func RecordQueueDropped(reason string) {
	globalManager.queueDropped.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordNotificationDelivered counts a delivered notification.
func RecordNotificationDelivered(kind string) {
	globalManager.notificationsDelivered.WithLabelValues(kind).Inc()
}

// RecordNotificationFailed counts a failed notification.
func RecordNotificationFailed(kind string) {
	globalManager.notificationsFailed.WithLabelValues(kind).Inc()
}

// RecordNotificationLatency records delivery latency in milliseconds.
func RecordNotificationLatency(latencyMs float64) {
	globalManager.notificationLatency.Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint counts an HTTP error by endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateRepositoryRecordsTotal sets the number of records of one kind.
func UpdateRepositoryRecordsTotal(kind string, count int) {
	globalManager.repositoryRecords.WithLabelValues(kind).Set(float64(count))
}

// RecordRepositoryUpdateLatency records repository write latency in milliseconds.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository read latency in milliseconds.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// UpdateSystemMemoryUsage sets memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
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
