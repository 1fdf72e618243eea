package ml

import (
	"context"
	"math"
	"testing"
	"time"
)

// Every roster candidate should learn the planted linear signal, serialize
// losslessly, and respect cancellation. The assertions are shared so a new
// candidate picks them up by being added to the roster.
func TestRosterCandidates(t *testing.T) {
	x, y := genData(200, 11)

	for _, id := range DefaultRoster() {
		t.Run(id, func(t *testing.T) {
			candidates, err := Roster([]string{id}, 42)
			if err != nil {
				t.Fatal(err)
			}
			model, err := candidates[0].Fit(context.Background(), x, y, 1)
			if err != nil {
				t.Fatal(err)
			}
			if model.Algorithm() != id {
				t.Errorf("Algorithm() = %q, want %q", model.Algorithm(), id)
			}

			var correct int
			for i, vec := range x {
				p := model.PredictProba(vec)
				if p < 0 || p > 1 {
					t.Fatalf("PredictProba out of range: %v", p)
				}
				c := model.Confidence(vec)
				if c < 0 || c > 1 {
					t.Fatalf("Confidence out of range: %v", c)
				}
				if (p >= 0.5) == (y[i] == 1) {
					correct++
				}
			}
			if acc := float64(correct) / float64(len(x)); acc < 0.75 {
				t.Errorf("training accuracy %.3f, want at least 0.75", acc)
			}
		})
	}
}

func TestModelEncodeDecodeRoundTrip(t *testing.T) {
	x, y := genData(120, 5)

	for _, id := range DefaultRoster() {
		t.Run(id, func(t *testing.T) {
			candidates, err := Roster([]string{id}, 42)
			if err != nil {
				t.Fatal(err)
			}
			model, err := candidates[0].Fit(context.Background(), x, y, 1)
			if err != nil {
				t.Fatal(err)
			}

			envelope, err := EncodeModel(model, "fs1-test", time.Now().UTC())
			if err != nil {
				t.Fatal(err)
			}
			if envelope.Algorithm != id || envelope.SchemaVersion != "fs1-test" {
				t.Fatalf("envelope = %+v", envelope)
			}

			restored, err := DecodeModel(envelope)
			if err != nil {
				t.Fatal(err)
			}
			for i, vec := range x {
				if math.Abs(model.PredictProba(vec)-restored.PredictProba(vec)) > 1e-12 {
					t.Fatalf("row %d: restored model disagrees with original", i)
				}
			}
		})
	}
}

func TestCandidateFitHonorsCancellation(t *testing.T) {
	x, y := genData(120, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, id := range DefaultRoster() {
		t.Run(id, func(t *testing.T) {
			candidates, err := Roster([]string{id}, 42)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := candidates[0].Fit(ctx, x, y, 1); err == nil {
				t.Error("Fit with cancelled context returned no error")
			}
		})
	}
}

func TestRosterUnknownCandidate(t *testing.T) {
	if _, err := Roster([]string{"gradient-boost"}, 42); err == nil {
		t.Error("Roster accepted an unknown candidate id")
	}
}

func TestDecodeModelUnknownAlgorithm(t *testing.T) {
	if _, err := DecodeModel(TrainedModel{Algorithm: "nope", Weights: []byte("{}")}); err == nil {
		t.Error("DecodeModel accepted an unknown algorithm tag")
	}
}

func TestMarginConfidence(t *testing.T) {
	tests := []struct {
		p    float64
		want float64
	}{
		{0.5, 0},
		{0.75, 0.5},
		{1.0, 1},
		{0.0, 1},
		{0.25, 0.5},
	}
	for _, tt := range tests {
		if got := marginConfidence(tt.p); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("marginConfidence(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
}
