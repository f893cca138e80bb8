// Package metrics provides Prometheus metrics for the cadence coaching service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultLatencyBuckets spans sub-millisecond timeline tasks up to slow
// database appends.
var DefaultLatencyBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000}

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	enabled        bool
	constLabels    prometheus.Labels
	registry       prometheus.Registerer

	// Step ingestion
	stepsAccepted  prometheus.Counter
	stepsRejected  prometheus.Counter
	stepsDuplicate prometheus.Counter
	stepsDropped   *prometheus.CounterVec

	// Core signal
	currentCadence  prometheus.Gauge
	baselineCadence prometheus.Gauge
	ticks           prometheus.Counter
	transitions     *prometheus.CounterVec
	cues            *prometheus.CounterVec
	sessionsStarted prometheus.Counter
	sessionsActive  prometheus.Gauge
	sensorAvailable prometheus.Gauge

	// Scheduler
	schedulerTasks  prometheus.Counter
	schedulerPanics prometheus.Counter
	taskLatency     prometheus.Histogram

	// Activity log
	logWrites       prometheus.Counter
	logErrors       prometheus.Counter
	logWriteLatency prometheus.Histogram

	// Queue
	queueSize        *prometheus.GaugeVec
	queueCapacity    *prometheus.GaugeVec
	queueUtilization *prometheus.GaugeVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:      "cadence",
		subsystem:      "coach",
		latencyBuckets: DefaultLatencyBuckets,
		enabled:        true,
		constLabels:    prometheus.Labels{},
		registry:       prometheus.DefaultRegisterer,
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
	constLabels := m.constLabels

	counter := func(name, help string) prometheus.Counter {
		return auto.NewCounter(prometheus.CounterOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: constLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return auto.NewGauge(prometheus.GaugeOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: constLabels,
		})
	}

	m.stepsAccepted = counter("steps_accepted_total", "Step events accepted by the cadence estimator")
	m.stepsRejected = counter("steps_rejected_total", "Step events rejected as sensor chatter (<200ms apart)")
	m.stepsDuplicate = counter("steps_duplicate_total", "Step envelopes dropped as redelivered duplicates")
	m.stepsDropped = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "steps_dropped_total",
		Help: "Step envelopes dropped before reaching the estimator", ConstLabels: constLabels,
	}, []string{"reason"})

	m.currentCadence = gauge("current_cadence_spm", "Most recent cadence observed by the monitoring tick")
	m.baselineCadence = gauge("baseline_cadence_spm", "Baseline cadence of the active session (0 when uncalculated)")
	m.ticks = counter("ticks_total", "Monitoring ticks evaluated")
	m.transitions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "state_transitions_total",
		Help: "Feedback state transitions by target state", ConstLabels: constLabels,
	}, []string{"state"})
	m.cues = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "cues_total",
		Help: "Audio cues emitted by class", ConstLabels: constLabels,
	}, []string{"cue"})
	m.sessionsStarted = counter("sessions_started_total", "Sessions started")
	m.sessionsActive = gauge("sessions_active", "1 while a session is running")
	m.sensorAvailable = gauge("sensor_available", "1 while a step source reports a signal")

	m.schedulerTasks = counter("scheduler_tasks_total", "Tasks executed on the session timeline")
	m.schedulerPanics = counter("scheduler_panics_total", "Timeline tasks that panicked and were recovered")
	m.taskLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "scheduler_task_latency_milliseconds",
		Help: "Execution time of timeline tasks", Buckets: m.latencyBuckets, ConstLabels: constLabels,
	})

	m.logWrites = counter("activity_log_writes_total", "Activity log rows written")
	m.logErrors = counter("activity_log_errors_total", "Activity log write failures")
	m.logWriteLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "activity_log_write_latency_milliseconds",
		Help: "Activity log append latency", Buckets: m.latencyBuckets, ConstLabels: constLabels,
	})

	m.queueSize = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "queue_size",
		Help: "Current number of queued items", ConstLabels: constLabels,
	}, []string{"queue"})
	m.queueCapacity = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "queue_capacity",
		Help: "Configured queue capacity", ConstLabels: constLabels,
	}, []string{"queue"})
	m.queueUtilization = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "queue_utilization_ratio",
		Help: "Queue size divided by capacity", ConstLabels: constLabels,
	}, []string{"queue"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "http_requests_total",
		Help: "Total number of HTTP requests by endpoint and method", ConstLabels: constLabels,
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "http_request_duration_milliseconds",
		Help: "HTTP request duration in milliseconds", Buckets: m.latencyBuckets, ConstLabels: constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: "errors_by_component_total",
		Help: "Total number of errors by component", ConstLabels: constLabels,
	}, []string{"component", "error_type"})
}

// Enabled reports whether recording is active.
func (m *Manager) Enabled() bool { return m.enabled }

// Step ingestion.

// RecordStepAccepted increments the accepted step counter.
func RecordStepAccepted() {
	if globalManager.enabled {
		globalManager.stepsAccepted.Inc()
	}
}

// RecordStepRejected increments the chatter rejection counter.
func RecordStepRejected() {
	if globalManager.enabled {
		globalManager.stepsRejected.Inc()
	}
}

// RecordStepDuplicate increments the duplicate envelope counter.
func RecordStepDuplicate() {
	if globalManager.enabled {
		globalManager.stepsDuplicate.Inc()
	}
}

// RecordStepDropped records a step envelope lost before the estimator.
func RecordStepDropped(reason string) {
	if globalManager.enabled {
		globalManager.stepsDropped.WithLabelValues(reason).Inc()
	}
}

// Core signal.

// UpdateCurrentCadence sets the cadence observed by the last tick.
func UpdateCurrentCadence(spm int) {
	if globalManager.enabled {
		globalManager.currentCadence.Set(float64(spm))
	}
}

// UpdateBaselineCadence sets the active baseline.
func UpdateBaselineCadence(spm int) {
	if globalManager.enabled {
		globalManager.baselineCadence.Set(float64(spm))
	}
}

// RecordTick increments the tick counter.
func RecordTick() {
	if globalManager.enabled {
		globalManager.ticks.Inc()
	}
}

// RecordTransition counts a state transition into state.
func RecordTransition(state string) {
	if globalManager.enabled {
		globalManager.transitions.WithLabelValues(state).Inc()
	}
}

// RecordCue counts an emitted audio cue.
func RecordCue(cue string) {
	if globalManager.enabled {
		globalManager.cues.WithLabelValues(cue).Inc()
	}
}

// RecordSessionStarted increments the started sessions counter and marks one active.
func RecordSessionStarted() {
	if globalManager.enabled {
		globalManager.sessionsStarted.Inc()
		globalManager.sessionsActive.Set(1)
	}
}

// RecordSessionStopped clears the active session gauge.
func RecordSessionStopped() {
	if globalManager.enabled {
		globalManager.sessionsActive.Set(0)
		globalManager.baselineCadence.Set(0)
	}
}

// UpdateSensorAvailable sets the sensor availability gauge.
func UpdateSensorAvailable(available bool) {
	if !globalManager.enabled {
		return
	}
	if available {
		globalManager.sensorAvailable.Set(1)
		return
	}
	globalManager.sensorAvailable.Set(0)
}

// Scheduler.

// RecordSchedulerTask records the execution time of a timeline task.
func RecordSchedulerTask(latencyMs float64) {
	if globalManager.enabled {
		globalManager.schedulerTasks.Inc()
		globalManager.taskLatency.Observe(latencyMs)
	}
}

// RecordSchedulerPanic counts a recovered task panic.
func RecordSchedulerPanic() {
	if globalManager.enabled {
		globalManager.schedulerPanics.Inc()
	}
}

// Activity log.

// RecordLogWrite records a successful activity log append.
func RecordLogWrite(latencyMs float64) {
	if globalManager.enabled {
		globalManager.logWrites.Inc()
		globalManager.logWriteLatency.Observe(latencyMs)
	}
}

// RecordLogError counts a failed activity log append.
func RecordLogError() {
	if globalManager.enabled {
		globalManager.logErrors.Inc()
	}
}

// Queue.

// UpdateQueueSize sets the current size of the named queue.
func UpdateQueueSize(queue string, size int) {
	if globalManager.enabled {
		globalManager.queueSize.WithLabelValues(queue).Set(float64(size))
	}
}

// UpdateQueueCapacity sets the capacity of the named queue.
func UpdateQueueCapacity(queue string, capacity int) {
	if globalManager.enabled {
		globalManager.queueCapacity.WithLabelValues(queue).Set(float64(capacity))
	}
}

// UpdateQueueUtilization sets the utilization ratio of the named queue.
func UpdateQueueUtilization(queue string, utilization float64) {
	if globalManager.enabled {
		globalManager.queueUtilization.WithLabelValues(queue).Set(utilization)
	}
}

// HTTP.

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

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if globalManager.enabled {
		globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
