package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"oncorisk/internal/ml"
)

func TestMetricsSatisfyEngineInterface(t *testing.T) {
	var _ ml.MetricsInterface = NewWithRegistry(prometheus.NewRegistry())
}

func TestCounters(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.PredictionsInc()
	m.PredictionsInc()
	m.PredictionFailuresInc()
	m.TrainingRunsInc()
	m.TrainingFailuresInc()
	m.ModelAgeSet(120)

	if got := testutil.ToFloat64(m.Predictions); got != 2 {
		t.Errorf("predictions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.PredictionFailures); got != 1 {
		t.Errorf("prediction failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TrainingRuns); got != 1 {
		t.Errorf("training runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ModelAge); got != 120 {
		t.Errorf("model age = %v, want 120", got)
	}
}

func TestObservationsDoNotPanic(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	m.PredictionLatencyObserve(0.01)
	m.RiskScoreObserve(0.42)
	m.ConfidenceObserve(0.9)
	m.TrainingDurationObserve(3.5)
	m.ErrorsTotal.Inc()
}
