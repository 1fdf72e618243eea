// Package metrics provides Prometheus metrics collection for the risk
// scoring service: prediction throughput and latency, score and confidence
// distributions, and training run outcomes, exposed via the metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the risk scoring service.
type Metrics struct {
	// Prediction metrics
	Predictions        prometheus.Counter   // Total number of risk predictions served
	PredictionFailures prometheus.Counter   // Total number of failed prediction requests
	PredictionLatency  prometheus.Histogram // End-to-end prediction latency in seconds
	RiskScores         prometheus.Histogram // Distribution of predicted risk scores
	Confidences        prometheus.Histogram // Distribution of prediction confidence values

	// Training metrics
	TrainingRuns     prometheus.Counter   // Total number of completed training runs
	TrainingFailures prometheus.Counter   // Total number of failed training runs
	TrainingDuration prometheus.Histogram // Training run duration in seconds
	ModelAge         prometheus.Gauge     // Age of the active model in seconds

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry, which keeps test
// runs isolated from the global Prometheus state.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_predictions_total",
			Help: "Total number of risk predictions served",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "risk_prediction_failures_total",
			Help: "Total number of failed prediction requests",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_prediction_latency_seconds",
			Help:    "End-to-end prediction latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}),
		RiskScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_scores",
			Help:    "Distribution of predicted risk scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		Confidences: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "risk_prediction_confidence",
			Help:    "Distribution of prediction confidence values",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		TrainingRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_runs_total",
			Help: "Total number of completed training runs",
		}),
		TrainingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "training_failures_total",
			Help: "Total number of failed training runs",
		}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "training_duration_seconds",
			Help:    "Training run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Age of the active model in seconds",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// The methods below satisfy the engine's MetricsInterface.

func (m *Metrics) PredictionsInc()                    { m.Predictions.Inc() }
func (m *Metrics) PredictionFailuresInc()             { m.PredictionFailures.Inc() }
func (m *Metrics) PredictionLatencyObserve(v float64) { m.PredictionLatency.Observe(v) }
func (m *Metrics) RiskScoreObserve(v float64)         { m.RiskScores.Observe(v) }
func (m *Metrics) ConfidenceObserve(v float64)        { m.Confidences.Observe(v) }
func (m *Metrics) TrainingRunsInc()                   { m.TrainingRuns.Inc() }
func (m *Metrics) TrainingFailuresInc()               { m.TrainingFailures.Inc() }
func (m *Metrics) TrainingDurationObserve(v float64)  { m.TrainingDuration.Observe(v) }
func (m *Metrics) ModelAgeSet(v float64)              { m.ModelAge.Set(v) }
