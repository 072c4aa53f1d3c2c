package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for deploy sessions.
// All methods are safe to call on a nil or disabled instance.
type Metrics struct {
	config MetricsConfig

	// Session metrics
	sessionsStarted   prometheus.Counter
	sessionsCompleted *prometheus.CounterVec
	sessionDuration   prometheus.Histogram

	// Snapshot metrics
	snapshotDuration prometheus.Histogram
	targetReads      *prometheus.CounterVec
	phaseObserved    *prometheus.CounterVec

	// Action metrics
	actionsTotal   *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec

	// Script metrics
	scriptLines        *prometheus.CounterVec
	scriptLineDuration *prometheus.HistogramVec

	// Error metrics
	errorsByClass *prometheus.CounterVec

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		sessionsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_started_total",
				Help:      "Total number of deploy sessions started",
			},
		),
		sessionsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_completed_total",
				Help:      "Total number of deploy sessions completed",
			},
			[]string{"exit_code"},
		),
		sessionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Duration of deploy sessions in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),

		snapshotDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "snapshot_duration_seconds",
				Help:      "Duration of pipeline snapshot collection in seconds",
				Buckets:   buckets,
			},
		),
		targetReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "target_reads_total",
				Help:      "Total number of deployment target reads",
			},
			[]string{"role", "status"},
		),
		phaseObserved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phase_observed_total",
				Help:      "Number of times each release phase was classified",
			},
			[]string{"phase"},
		),

		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_total",
				Help:      "Total number of operator actions dispatched",
			},
			[]string{"action", "outcome"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "action_duration_seconds",
				Help:      "Duration of operator actions in seconds",
				Buckets:   buckets,
			},
			[]string{"action"},
		),

		scriptLines: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "script_lines_total",
				Help:      "Total number of script lines executed",
			},
			[]string{"mode", "status"},
		),
		scriptLineDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "script_line_duration_seconds",
				Help:      "Duration of script lines in seconds",
				Buckets:   buckets,
			},
			[]string{"mode"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
	}

	registry.MustRegister(
		m.sessionsStarted,
		m.sessionsCompleted,
		m.sessionDuration,
		m.snapshotDuration,
		m.targetReads,
		m.phaseObserved,
		m.actionsTotal,
		m.actionDuration,
		m.scriptLines,
		m.scriptLineDuration,
		m.errorsByClass,
	)

	return m, nil
}

func (m *Metrics) enabled() bool {
	return m != nil && m.registry != nil
}

// Session Metrics

// RecordSessionStarted increments the started session counter.
func (m *Metrics) RecordSessionStarted() {
	if !m.enabled() {
		return
	}
	m.sessionsStarted.Inc()
}

// RecordSessionCompleted records the exit code and duration of a session.
func (m *Metrics) RecordSessionCompleted(exitCode int, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.sessionsCompleted.WithLabelValues(strconv.Itoa(exitCode)).Inc()
	m.sessionDuration.Observe(duration.Seconds())
}

// Snapshot Metrics

// RecordSnapshot records how long a snapshot collection took.
func (m *Metrics) RecordSnapshot(duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.snapshotDuration.Observe(duration.Seconds())
}

// RecordTargetRead records the outcome of reading one deployment target.
func (m *Metrics) RecordTargetRead(role string, ok bool) {
	if !m.enabled() {
		return
	}
	status := "ok"
	if !ok {
		status = "failed"
	}
	m.targetReads.WithLabelValues(role, status).Inc()
}

// RecordPhase counts a classified phase.
func (m *Metrics) RecordPhase(phase string) {
	if !m.enabled() {
		return
	}
	m.phaseObserved.WithLabelValues(phase).Inc()
}

// Action Metrics

// RecordAction records a dispatched action with its outcome.
func (m *Metrics) RecordAction(action, outcome string, duration time.Duration) {
	if !m.enabled() {
		return
	}
	m.actionsTotal.WithLabelValues(action, outcome).Inc()
	m.actionDuration.WithLabelValues(action).Observe(duration.Seconds())
}

// Script Metrics

// RecordScriptLine records one executed script line.
func (m *Metrics) RecordScriptLine(mode string, exitCode int, duration time.Duration) {
	if !m.enabled() {
		return
	}
	status := "ok"
	if exitCode != 0 {
		status = "failed"
	}
	m.scriptLines.WithLabelValues(mode, status).Inc()
	m.scriptLineDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// Error Metrics

// RecordError records an error by class.
func (m *Metrics) RecordError(errorClass string) {
	if !m.enabled() {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Gather returns the current metric families. It is empty when disabled.
func (m *Metrics) Gather() (int, error) {
	if !m.enabled() {
		return 0, nil
	}
	mfs, err := m.registry.Gather()
	return len(mfs), err
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer exposes metrics over HTTP for the lifetime of the
// session. It returns once the listener is bound.
func (m *Metrics) StartMetricsServer() error {
	if !m.enabled() || m.config.ListenAddress == "" {
		return nil
	}

	ln, err := net.Listen("tcp", m.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.ListenAddress, err)
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	m.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		_ = m.server.Serve(ln)
	}()

	return nil
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile() error {
	if !m.enabled() || m.config.TextfilePath == "" {
		return nil
	}
	return prometheus.WriteToTextfile(m.config.TextfilePath, m.registry)
}

// Shutdown stops the metrics server and flushes the textfile.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if !m.enabled() {
		return nil
	}
	var errs []error
	if m.server != nil {
		if err := m.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}
	if err := m.WriteTextfile(); err != nil {
		errs = append(errs, fmt.Errorf("failed to write metrics textfile: %w", err))
	}
	return errors.Join(errs...)
}
