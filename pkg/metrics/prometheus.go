// Package metrics provides Prometheus metrics for the sudea detection service.
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

// Manager manages all Prometheus metrics for the sudea service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Pipeline metrics
	submissions   *prometheus.CounterVec
	stageLatency  *prometheus.HistogramVec
	detections    prometheus.Histogram
	detectorExits *prometheus.CounterVec
	uploadLatency *prometheus.HistogramVec
	storedImages  prometheus.Counter
	scratchErrors *prometheus.CounterVec

	// Notification metrics
	notifications    *prometheus.CounterVec
	outboxSize       prometheus.Gauge
	outboxCapacity   prometheus.Gauge
	outboxEnqueueErr *prometheus.CounterVec
	senderLatency    prometheus.Histogram
	workerCount      prometheus.Gauge

	// Auth metrics
	authResolutions *prometheus.CounterVec
	tokensIssued    prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System Performance Metrics
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
// registry. Call it once at startup, before any handler or recorder runs.
func Configure(opts ...Option) {
	customRegistry = prometheus.NewRegistry()
	globalManager = NewManager(append([]Option{WithPrometheusRegistry(customRegistry)}, opts...)...)
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "sudea",
		subsystem:        "detection",
		histogramBuckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
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

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)

	m.submissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "submissions_total",
		Help:        "Pipeline submissions by terminal outcome",
		ConstLabels: constLabels,
	}, []string{"outcome"})

	m.stageLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "stage_latency_milliseconds",
		Help:        "Latency of each pipeline stage in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	}, []string{"stage", "result"})

	m.detections = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "detections_per_image",
		Help:        "Number of detections reported per processed image",
		Buckets:     []float64{0, 1, 2, 3, 5, 8, 13, 21},
		ConstLabels: constLabels,
	})

	m.detectorExits = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "detector_exits_total",
		Help:        "Detector process terminations by exit code",
		ConstLabels: constLabels,
	}, []string{"code"})

	m.uploadLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "archive_upload_latency_milliseconds",
		Help:        "Archive upload latency in milliseconds by driver",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	}, []string{"driver", "result"})

	m.storedImages = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "stored_images_total",
		Help:        "Images persisted by the metadata repository",
		ConstLabels: constLabels,
	})

	m.scratchErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "scratch_errors_total",
		Help:        "Scratch artifact errors by operation",
		ConstLabels: constLabels,
	}, []string{"op"})

	m.notifications = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "notifications_total",
		Help:        "Notification attempts by result (sent, skipped, failed)",
		ConstLabels: constLabels,
	}, []string{"result"})

	m.outboxSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "outbox_size",
		Help:        "Current number of queued notifications",
		ConstLabels: constLabels,
	})

	m.outboxCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "outbox_capacity",
		Help:        "Maximum number of queued notifications",
		ConstLabels: constLabels,
	})

	m.outboxEnqueueErr = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "outbox_enqueue_errors_total",
		Help:        "Notifications rejected by the outbox by reason",
		ConstLabels: constLabels,
	}, []string{"reason"})

	m.senderLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "sender_latency_milliseconds",
		Help:        "Latency of a single email delivery in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "notify_worker_count",
		Help:        "Number of notification workers",
		ConstLabels: constLabels,
	})

	m.authResolutions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "auth_resolutions_total",
		Help:        "Credential resolutions by scheme and result",
		ConstLabels: constLabels,
	}, []string{"scheme", "result"})

	m.tokensIssued = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "script_tokens_issued_total",
		Help:        "Script-scoped API tokens issued",
		ConstLabels: constLabels,
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_request_duration_milliseconds",
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_errors_total",
			Help:        "HTTP error responses by endpoint, method and error type",
			ConstLabels: constLabels,
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "system",
		Name:        "memory_usage_bytes",
		Help:        "Current memory usage in bytes",
		ConstLabels: constLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   "system",
		Name:        "goroutine_count",
		Help:        "Current number of goroutines",
		ConstLabels: constLabels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   "system",
		Name:        "gc_pause_milliseconds",
		Help:        "Average GC pause time in milliseconds",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		ConstLabels: constLabels,
	})
}

// Pipeline Metrics Functions.

// RecordSubmission increments the submissions counter for a terminal outcome.
func RecordSubmission(outcome string) {
	if globalManager.enabled {
		globalManager.submissions.WithLabelValues(outcome).Inc()
	}
}

// RecordStageLatency records how long a pipeline stage took.
func RecordStageLatency(stage, result string, latencyMs float64) {
	if globalManager.enabled {
		globalManager.stageLatency.WithLabelValues(stage, result).Observe(latencyMs)
	}
}

// RecordDetections records the number of detections for one image.
func RecordDetections(count int) {
	if globalManager.enabled {
		globalManager.detections.Observe(float64(count))
	}
}

// RecordDetectorExit counts a detector termination with the given exit code.
func RecordDetectorExit(code string) {
	if globalManager.enabled {
		globalManager.detectorExits.WithLabelValues(code).Inc()
	}
}

// RecordUploadLatency records archive upload latency.
func RecordUploadLatency(driver, result string, latencyMs float64) {
	if globalManager.enabled {
		globalManager.uploadLatency.WithLabelValues(driver, result).Observe(latencyMs)
	}
}

// RecordStoredImage increments the stored images counter.
func RecordStoredImage() {
	if globalManager.enabled {
		globalManager.storedImages.Inc()
	}
}

// RecordScratchError counts scratch artifact failures by operation (save, release).
func RecordScratchError(op string) {
	if globalManager.enabled {
		globalManager.scratchErrors.WithLabelValues(op).Inc()
	}
}

// Notification Metrics Functions.

// RecordNotification counts a notification attempt by result.
func RecordNotification(result string) {
	if globalManager.enabled {
		globalManager.notifications.WithLabelValues(result).Inc()
	}
}

// UpdateOutboxSize sets the current outbox size.
func UpdateOutboxSize(size int) {
	if globalManager.enabled {
		globalManager.outboxSize.Set(float64(size))
	}
}

// UpdateOutboxCapacity sets the outbox capacity.
func UpdateOutboxCapacity(capacity int) {
	if globalManager.enabled {
		globalManager.outboxCapacity.Set(float64(capacity))
	}
}

// RecordOutboxEnqueueError counts a rejected notification.
func RecordOutboxEnqueueError(reason string) {
	if globalManager.enabled {
		globalManager.outboxEnqueueErr.WithLabelValues(reason).Inc()
	}
}

// RecordSenderLatency records the latency of one delivery.
func RecordSenderLatency(latencyMs float64) {
	if globalManager.enabled {
		globalManager.senderLatency.Observe(latencyMs)
	}
}

// UpdateWorkerCount sets the current notification worker count.
func UpdateWorkerCount(count int) {
	if globalManager.enabled {
		globalManager.workerCount.Set(float64(count))
	}
}

// Auth Metrics Functions.

// RecordAuthResolution counts a credential resolution attempt.
func RecordAuthResolution(scheme, result string) {
	if globalManager.enabled {
		globalManager.authResolutions.WithLabelValues(scheme, result).Inc()
	}
}

// RecordTokenIssued counts an issued script token.
func RecordTokenIssued() {
	if globalManager.enabled {
		globalManager.tokensIssued.Inc()
	}
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if globalManager.enabled {
		globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if globalManager.enabled {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if globalManager.enabled {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if globalManager.enabled {
		globalManager.systemGCPauseTime.Observe(pauseMs)
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Since returns the elapsed milliseconds since start.
func Since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// RefreshInterval returns how often periodic gauges should be refreshed.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}
