// Package telemetry exposes training-run metrics as Prometheus collectors.
// A batch trainer has no scrape endpoint, so the collected families are
// written to a node-exporter textfile after each run.
package telemetry

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mlops-project/trainer/pkg/errors"
)

// Metrics holds the trainer collectors.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal    *prometheus.CounterVec   // runs by final status
	ModelTestR2  *prometheus.GaugeVec     // held-out R² per candidate model
	ModelFitTime *prometheus.HistogramVec // search + refit duration per model
	BestScore    prometheus.Gauge         // test R² of the selected model
	LastRun      prometheus.Gauge         // unix time of the last finished run
}

// New creates metrics on a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry creates and registers the collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trainer_runs_total",
			Help: "Total number of training runs by status",
		}, []string{"status"}),
		ModelTestR2: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trainer_model_test_r2",
			Help: "Test R2 score of each candidate model in the last run",
		}, []string{"model"}),
		ModelFitTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trainer_model_fit_seconds",
			Help:    "Time spent on grid search and refit per model",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"model"}),
		BestScore: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trainer_best_score",
			Help: "Test R2 score of the selected model in the last run",
		}),
		LastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "trainer_last_run_timestamp_seconds",
			Help: "Unix time at which the last run finished",
		}),
	}
}

// ObserveModel records the outcome of one candidate model.
func (m *Metrics) ObserveModel(name string, testR2 float64, fit time.Duration) {
	m.ModelTestR2.WithLabelValues(name).Set(testR2)
	m.ModelFitTime.WithLabelValues(name).Observe(fit.Seconds())
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(status string, bestScore float64, finished time.Time) {
	m.RunsTotal.WithLabelValues(status).Inc()
	if status == "succeeded" {
		m.BestScore.Set(bestScore)
	}
	m.LastRun.Set(float64(finished.Unix()))
}

// Gatherer returns the registry backing m.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes the current metric families in the text exposition
// format. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create metrics directory for %s", path)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.Wrapf(err, "write metrics textfile %s", path)
	}
	return nil
}
