// Package metrics provides Prometheus metrics for the skillpulse service.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrNotInitialized is returned by Use when given no manager.
var ErrNotInitialized = errors.New("metrics manager not initialized")

// DefaultValueBuckets spans the 1..3 score scale in sixths; the level
// boundaries at 1.67 and 2.33 are bucket edges.
var DefaultValueBuckets = []float64{1, 1.33, 1.5, 1.67, 1.83, 2, 2.17, 2.33, 2.5, 2.67, 2.83, 3} //nolint:gochecknoglobals // fixed bucket layout

// Manager manages all Prometheus metrics for the skillpulse service.
type Manager struct {
	namespace        string
	subsystem        string
	latencyBuckets   []float64
	valueBuckets     []float64
	enabled          bool
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Intake
	submissions          *prometheus.CounterVec
	submissionsDuplicate prometheus.Counter
	submissionsRejected  *prometheus.CounterVec

	// Engine
	consolidations       prometheus.Counter
	consolidationErrors  prometheus.Counter
	consolidatedValue    prometheus.Histogram
	consolidationLatency prometheus.Histogram
	levels               *prometheus.CounterVec
	trends               *prometheus.CounterVec

	// Scale
	trackedStudents prometheus.Gauge
	trackedSkills   prometheus.Gauge

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRateLimited     prometheus.Counter

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram

	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "skillpulse",
		subsystem:        "engine",
		latencyBuckets:   prometheus.DefBuckets,
		valueBuckets:     DefaultValueBuckets,
		enabled:          true,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// Use replaces the global manager; the package-level Record/Update funcs
// report to it.
func Use(m *Manager) error {
	if m == nil {
		return ErrNotInitialized
	}
	globalManager = m
	return nil
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.latencyBuckets, ConstLabels: m.constLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.submissions = m.counterVec("submissions_total", "Accepted assessment records by source", "source")
	m.submissionsDuplicate = m.counter("submissions_duplicate_total", "Assessment records dropped as duplicates")
	m.submissionsRejected = m.counterVec("submissions_rejected_total", "Assessment records rejected before storage", "reason")

	m.consolidations = m.counter("consolidations_total", "Completed skill consolidations")
	m.consolidationErrors = m.counter("consolidation_errors_total", "Consolidations that failed")
	m.consolidatedValue = m.histogram("consolidated_value", "Distribution of consolidated skill values", m.valueBuckets)
	m.consolidationLatency = m.histogram("consolidation_latency_milliseconds", "Time to recompute one student skill", m.latencyBuckets)
	m.levels = m.counterVec("levels_total", "Consolidations by resulting level", "level")
	m.trends = m.counterVec("trends_total", "Trend classifications by method and outcome", "method", "trend")

	m.trackedStudents = m.gauge("tracked_students", "Students with at least one assessment")
	m.trackedSkills = m.gauge("catalog_skills", "Skills defined in the course catalog")

	m.queueSize = m.gauge("queue_size", "Current size of the recompute queue")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the recompute queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Recompute queue fill ratio (0-1)")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Recompute jobs enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Recompute jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Recompute jobs rejected by a full or closed queue")

	m.workerCount = m.gauge("worker_count", "Configured recompute workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Workers currently recomputing")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Time a worker spends on one job", m.latencyBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Jobs that failed in a worker")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Store operation latency", "op")
	m.storeErrors = m.counterVec("store_errors_total", "Store operations that failed", "op")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")
	m.httpRateLimited = m.counter("http_rate_limited_total", "HTTP requests rejected by the rate limiter")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Live goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause", m.latencyBuckets)

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "type")
}

func active() *Manager {
	if globalManager == nil || !globalManager.enabled {
		return nil
	}
	return globalManager
}

// RecordSubmission counts an accepted assessment record.
func RecordSubmission(source string) {
	if m := active(); m != nil {
		m.submissions.WithLabelValues(source).Inc()
	}
}

// RecordDuplicate counts a record dropped by the deduper.
func RecordDuplicate() {
	if m := active(); m != nil {
		m.submissionsDuplicate.Inc()
	}
}

// RecordRejected counts a record refused before storage.
func RecordRejected(reason string) {
	if m := active(); m != nil {
		m.submissionsRejected.WithLabelValues(reason).Inc()
	}
}

// RecordConsolidation records one completed consolidation.
func RecordConsolidation(value float64, level string, latencyMs float64) {
	if m := active(); m != nil {
		m.consolidations.Inc()
		m.consolidatedValue.Observe(value)
		m.consolidationLatency.Observe(latencyMs)
		m.levels.WithLabelValues(level).Inc()
	}
}

// RecordConsolidationError counts a failed consolidation.
func RecordConsolidationError() {
	if m := active(); m != nil {
		m.consolidationErrors.Inc()
	}
}

// RecordTrend counts a trend classification.
func RecordTrend(method, trend string) {
	if m := active(); m != nil {
		m.trends.WithLabelValues(method, trend).Inc()
	}
}

// UpdateTracked sets the student and skill gauges.
func UpdateTracked(students, skills int) {
	if m := active(); m != nil {
		m.trackedStudents.Set(float64(students))
		m.trackedSkills.Set(float64(skills))
	}
}

// UpdateQueueSize sets the queue size gauge.
func UpdateQueueSize(size int) {
	if m := active(); m != nil {
		m.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	if m := active(); m != nil {
		m.queueCapacity.Set(float64(capacity))
	}
}

// UpdateQueueUtilization sets the queue fill ratio.
func UpdateQueueUtilization(ratio float64) {
	if m := active(); m != nil {
		m.queueUtilization.Set(ratio)
	}
}

func RecordQueueEnqueue() {
	if m := active(); m != nil {
		m.queueEnqueue.Inc()
	}
}

func RecordQueueDequeue() {
	if m := active(); m != nil {
		m.queueDequeue.Inc()
	}
}

func RecordQueueEnqueueError() {
	if m := active(); m != nil {
		m.queueEnqueueErrors.Inc()
	}
}

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	if m := active(); m != nil {
		m.workerCount.Set(float64(count))
	}
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	if m := active(); m != nil {
		m.workerActiveCount.Set(float64(count))
	}
}

func RecordWorkerProcessingLatency(latencyMs float64) {
	if m := active(); m != nil {
		m.workerProcessingLatency.Observe(latencyMs)
	}
}

func RecordWorkerError() {
	if m := active(); m != nil {
		m.workerErrors.Inc()
	}
}

// RecordStoreOperation records the latency of a store call and whether it
// failed.
func RecordStoreOperation(op string, latencyMs float64, err error) {
	if m := active(); m != nil {
		m.storeLatency.WithLabelValues(op).Observe(latencyMs)
		if err != nil {
			m.storeErrors.WithLabelValues(op).Inc()
		}
	}
}

// RecordHTTPRequest records the request count metric.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if m := active(); m != nil {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records the request latency metric.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if m := active(); m != nil {
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

func RecordRateLimited() {
	if m := active(); m != nil {
		m.httpRateLimited.Inc()
	}
}

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) {
	if m := active(); m != nil {
		m.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(n int) {
	if m := active(); m != nil {
		m.systemGoroutineCount.Set(float64(n))
	}
}

// RecordSystemGCPauseTime observes the average GC pause.
func RecordSystemGCPauseTime(ms float64) {
	if m := active(); m != nil {
		m.systemGCPauseTime.Observe(ms)
	}
}

// RecordErrorByComponent counts an error raised by component.
func RecordErrorByComponent(component, errorType string) {
	if m := active(); m != nil {
		m.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// GetRegistry returns the custom registry backing the default manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
