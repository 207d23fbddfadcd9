// Package metrics provides Prometheus metrics for the pitchvision analytics service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

var (
	defaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000} //nolint:gochecknoglobals // defaults
	defaultQualityBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}           //nolint:gochecknoglobals // defaults
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	latencyBuckets  []float64
	qualityBuckets  []float64
	frameMetrics    bool
	refreshInterval time.Duration
	constLabels     map[string]string
	metricPrefix    string
	registry        prometheus.Registerer

	// Frame pipeline
	framesProcessed  prometheus.Counter
	framesFailed     *prometheus.CounterVec
	detectionLatency *prometheus.HistogramVec
	playersPerFrame  prometheus.Histogram
	teamAssignments  *prometheus.CounterVec
	ballOutcomes     *prometheus.CounterVec
	reorderDepth     prometheus.Gauge

	// Field mapping
	fieldMapQuality prometheus.Histogram
	fieldMapUpdates *prometheus.CounterVec

	// Jobs
	jobs       *prometheus.CounterVec
	activeJobs prometheus.Gauge

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "pitchvision",
		subsystem:        "analytics",
		latencyBuckets:   defaultLatencyBuckets,
		qualityBuckets:   defaultQualityBuckets,
		frameMetrics:     true,
		refreshInterval:  defaultRefreshInterval,
		constLabels:      make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	return m.metricPrefix + n
}

func (m *Manager) counter(n, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(n, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(n, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(n, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) histogramVec(n, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(n), Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	m.framesProcessed = m.counter("frames_processed_total", "Total number of frames that produced a detection result")
	m.framesFailed = m.counterVec("frames_failed_total", "Total number of frames skipped by a frame-local failure", "reason")
	m.detectionLatency = m.histogramVec("detection_latency_milliseconds", "Detector call latency in milliseconds", m.latencyBuckets, "task")
	m.playersPerFrame = m.histogram("players_per_frame", "Number of player candidates emitted per frame",
		[]float64{0, 1, 2, 4, 8, 12, 16, 22, 30})
	m.teamAssignments = m.counterVec("team_assignments_total", "Player candidates by assigned team", "team")
	m.ballOutcomes = m.counterVec("ball_outcomes_total", "Ball tracking outcomes per frame", "outcome")
	m.reorderDepth = m.gauge("reorder_buffer_depth", "Frames waiting in the reorder buffer")

	m.fieldMapQuality = m.histogram("field_map_quality", "Quality of computed field maps", m.qualityBuckets)
	m.fieldMapUpdates = m.counterVec("field_map_updates_total", "Field map recomputations by outcome", "outcome")

	m.jobs = m.counterVec("jobs_total", "Video jobs by terminal status", "status")
	m.activeJobs = m.gauge("jobs_active", "Video jobs currently running")

	m.queueSize = m.gauge("queue_size", "Current number of frames waiting for a detection worker")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum frame queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Frame queue utilization ratio (size / capacity)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of frames enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of frames dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of rejected enqueues")

	m.workerCount = m.gauge("worker_count", "Configured number of detection workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Number of detection workers currently processing a frame")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Per-frame worker processing latency in milliseconds", m.latencyBuckets)
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker frame failures")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		m.latencyBuckets, "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component",
		"component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint",
		"endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordFrameProcessed increments the processed frames counter and observes the player count.
func RecordFrameProcessed(players int) {
	if !globalManager.frameMetrics {
		return
	}
	globalManager.framesProcessed.Inc()
	globalManager.playersPerFrame.Observe(float64(players))
}

// RecordFrameFailed counts a frame-local failure.
func RecordFrameFailed(reason string) {
	if !globalManager.frameMetrics {
		return
	}
	globalManager.framesFailed.WithLabelValues(reason).Inc()
}

// RecordDetectionLatency records a detector call latency in milliseconds for task (players, ball, landmarks).
func RecordDetectionLatency(task string, latencyMs float64) {
	globalManager.detectionLatency.WithLabelValues(task).Observe(latencyMs)
}

// RecordTeamAssignment counts one candidate labeled with team ("1", "2" or "unknown").
func RecordTeamAssignment(team string) {
	globalManager.teamAssignments.WithLabelValues(team).Inc()
}

// RecordBallOutcome counts a ball tracking outcome: found, missing or rejected.
func RecordBallOutcome(outcome string) {
	globalManager.ballOutcomes.WithLabelValues(outcome).Inc()
}

// UpdateReorderDepth sets the number of frames held back for ordering.
func UpdateReorderDepth(depth int) {
	globalManager.reorderDepth.Set(float64(depth))
}

// RecordFieldMap observes the quality of a computed map and counts whether it was accepted.
func RecordFieldMap(quality float64, accepted bool) {
	globalManager.fieldMapQuality.Observe(quality)
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	globalManager.fieldMapUpdates.WithLabelValues(outcome).Inc()
}

// RecordJob counts a job reaching a terminal status.
func RecordJob(status string) {
	globalManager.jobs.WithLabelValues(status).Inc()
}

// UpdateActiveJobs sets the number of running jobs.
func UpdateActiveJobs(count int) {
	globalManager.activeJobs.Set(float64(count))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

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

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

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

// RefreshInterval reports how often periodic gauges should be refreshed.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
