package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics provides Prometheus metrics for the deployment targets. A nil or
// disabled Metrics is safe to call; every recorder is a no-op then.
type Metrics struct {
	config MetricsConfig

	// Lifecycle operation metrics
	lifecycleOps      *prometheus.CounterVec
	lifecycleDuration *prometheus.HistogramVec

	// Provisioning metrics
	ensureCalls   *prometheus.CounterVec
	destroySteps  *prometheus.CounterVec
	operationWait *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		lifecycleOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lifecycle_operations_total",
				Help:      "Total lifecycle operations by target kind, operation and outcome",
			},
			[]string{"target", "operation", "outcome"},
		),
		lifecycleDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lifecycle_operation_duration_seconds",
				Help:      "Duration of lifecycle operations",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 600},
			},
			[]string{"target", "operation"},
		),
		ensureCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ensure_calls_total",
				Help:      "Ensure-or-create calls by resource type and outcome (hit, created, error)",
			},
			[]string{"resource_type", "outcome"},
		),
		destroySteps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "destroy_steps_total",
				Help:      "Teardown steps by target kind and outcome",
			},
			[]string{"target", "outcome"},
		),
		operationWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_wait_seconds",
				Help:      "Time spent awaiting asynchronous provider operations",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"op"},
		),
	}

	registry.MustRegister(
		m.lifecycleOps,
		m.lifecycleDuration,
		m.ensureCalls,
		m.destroySteps,
		m.operationWait,
	)

	return m, nil
}

// RecordLifecycleOp records one lifecycle operation with its outcome.
func (m *Metrics) RecordLifecycleOp(targetKind, operation, outcome string, duration time.Duration) {
	if m == nil || m.lifecycleOps == nil {
		return
	}
	m.lifecycleOps.WithLabelValues(targetKind, operation, outcome).Inc()
	m.lifecycleDuration.WithLabelValues(targetKind, operation).Observe(duration.Seconds())
}

// RecordEnsure records one ensure-or-create call.
func (m *Metrics) RecordEnsure(resourceType, outcome string) {
	if m == nil || m.ensureCalls == nil {
		return
	}
	m.ensureCalls.WithLabelValues(resourceType, outcome).Inc()
}

// RecordDestroyStep records one teardown step.
func (m *Metrics) RecordDestroyStep(targetKind, outcome string) {
	if m == nil || m.destroySteps == nil {
		return
	}
	m.destroySteps.WithLabelValues(targetKind, outcome).Inc()
}

// RecordOperationWait records how long an asynchronous operation took.
func (m *Metrics) RecordOperationWait(op string, duration time.Duration) {
	if m == nil || m.operationWait == nil {
		return
	}
	m.operationWait.WithLabelValues(op).Observe(duration.Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// StartMetricsServer exposes the metrics endpoint in the background.
func (m *Metrics) StartMetricsServer() {
	if !m.config.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
}
