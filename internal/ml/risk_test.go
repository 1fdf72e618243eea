package ml

import (
	"strings"
	"testing"

	"oncorisk/internal/patient"
)

func TestRiskThresholdLevels(t *testing.T) {
	th := DefaultRiskThresholds()

	tests := []struct {
		score float64
		want  RiskLevel
	}{
		{0.0, RiskLow},
		{0.32, RiskLow},
		{0.3299, RiskLow},
		{0.33, RiskMedium}, // boundary belongs upward
		{0.5, RiskMedium},
		{0.6599, RiskMedium},
		{0.66, RiskHigh}, // boundary belongs upward
		{0.9, RiskHigh},
		{1.0, RiskHigh},
	}
	for _, tt := range tests {
		if got := th.Level(tt.score); got != tt.want {
			t.Errorf("Level(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestRiskThresholdsConfigurable(t *testing.T) {
	th := RiskThresholds{Medium: 0.2, High: 0.8}
	if th.Level(0.5) != RiskMedium {
		t.Error("custom thresholds not applied")
	}
	if th.Level(0.19) != RiskLow || th.Level(0.8) != RiskHigh {
		t.Error("custom boundaries misclassified")
	}
}

func TestRecommendationsBaseTexts(t *testing.T) {
	empty := patient.Record{}

	low := Recommendations(RiskLow, empty)
	if len(low) != 3 || low[0] != "Continue regular health checkups" {
		t.Errorf("low base recommendations = %v", low)
	}
	if got := Recommendations(RiskMedium, empty); len(got) != 4 {
		t.Errorf("medium base count = %d, want 4", len(got))
	}
	high := Recommendations(RiskHigh, empty)
	if len(high) != 4 || high[0] != "Immediate consultation with oncologist required" {
		t.Errorf("high base recommendations = %v", high)
	}
}

func TestRecommendationFactorRules(t *testing.T) {
	contains := func(list []string, sub string) bool {
		for _, s := range list {
			if strings.Contains(s, sub) {
				return true
			}
		}
		return false
	}

	smoker := patient.Record{Smoking: patient.IntPtr(patient.HabitCurrent)}
	if contains(Recommendations(RiskLow, smoker), "smoking cessation") {
		t.Error("smoking advice should not fire at low risk")
	}
	if !contains(Recommendations(RiskMedium, smoker), "smoking cessation") {
		t.Error("smoking advice missing at medium risk")
	}
	if !contains(Recommendations(RiskHigh, smoker), "smoking cessation") {
		t.Error("smoking advice missing at high risk")
	}

	former := patient.Record{Smoking: patient.IntPtr(patient.HabitFormer)}
	if contains(Recommendations(RiskHigh, former), "smoking cessation") {
		t.Error("smoking advice fires for former smokers")
	}

	history := patient.Record{FamilyHistory: patient.BoolPtr(true)}
	if contains(Recommendations(RiskMedium, history), "genetic counselor") {
		t.Error("family-history advice should fire at high risk only")
	}
	if !contains(Recommendations(RiskHigh, history), "genetic counselor") {
		t.Error("family-history advice missing at high risk")
	}

	// BMI 30 exactly triggers the weight rule at every level.
	obese := patient.Record{HeightCm: patient.FloatPtr(100), WeightKg: patient.FloatPtr(30)}
	for _, level := range []RiskLevel{RiskLow, RiskMedium, RiskHigh} {
		if !contains(Recommendations(level, obese), "weight management") {
			t.Errorf("weight advice missing at %s", level)
		}
	}

	sedentary := patient.Record{Exercise: patient.ExercisePtr(patient.ExerciseRarely)}
	if !contains(Recommendations(RiskMedium, sedentary), "physical activity") {
		t.Error("activity advice missing for sedentary medium-risk record")
	}
	active := patient.Record{Exercise: patient.ExercisePtr(patient.ExerciseOften)}
	if contains(Recommendations(RiskMedium, active), "physical activity") {
		t.Error("activity advice fires for active record")
	}
}

func TestRecommendationsOrderIsStable(t *testing.T) {
	rec := patient.Record{
		Smoking:       patient.IntPtr(patient.HabitCurrent),
		Drinking:      patient.IntPtr(patient.HabitCurrent),
		FamilyHistory: patient.BoolPtr(true),
	}
	first := Recommendations(RiskHigh, rec)
	second := Recommendations(RiskHigh, rec)
	if len(first) != len(second) {
		t.Fatal("repeated calls disagree on length")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("position %d differs: %q vs %q", i, first[i], second[i])
		}
	}
	// base texts first, then factor texts in table order
	if first[len(first)-1] != "Discuss family history with a genetic counselor" {
		t.Errorf("unexpected tail ordering: %v", first)
	}
}
