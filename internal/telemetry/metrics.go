package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/landform-io/landform/internal/engine"
)

var _ engine.Metrics = (*Metrics)(nil)

// Metrics holds the Prometheus collectors for plan and apply activity.
type Metrics struct {
	planChanges   *prometheus.CounterVec
	applyOutcomes *prometheus.CounterVec
	applyDuration *prometheus.HistogramVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers the collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		planChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "landform",
				Name:      "plan_changes_total",
				Help:      "Total number of planned changes by action",
			},
			[]string{"action"},
		),
		applyOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "landform",
				Name:      "apply_outcomes_total",
				Help:      "Total number of applied changes by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		applyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "landform",
				Name:      "apply_duration_seconds",
				Help:      "Duration of per-resource provider operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "landform",
				Name:      "runs_completed_total",
				Help:      "Total number of completed runs by status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "landform",
				Name:      "run_duration_seconds",
				Help:      "Duration of whole runs in seconds",
				Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800},
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.planChanges,
		m.applyOutcomes,
		m.applyDuration,
		m.runsCompleted,
		m.runDuration,
	)
	return m
}

// RecordPlanChange counts one planned change.
func (m *Metrics) RecordPlanChange(action string) {
	m.planChanges.WithLabelValues(action).Inc()
}

// RecordApplyOutcome counts one apply outcome and its duration.
func (m *Metrics) RecordApplyOutcome(action, outcome string, d time.Duration) {
	m.applyOutcomes.WithLabelValues(action, outcome).Inc()
	if d > 0 {
		m.applyDuration.WithLabelValues(action).Observe(d.Seconds())
	}
}

// RecordRunCompleted counts one finished run.
func (m *Metrics) RecordRunCompleted(status string, d time.Duration) {
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(d.Seconds())
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve blocks serving /metrics on addr.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}
