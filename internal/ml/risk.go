package ml

import (
	"time"

	"oncorisk/internal/patient"
)

// RiskLevel is the discretized risk bucket derived from the score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// RiskThresholds is the single named configuration mapping a continuous risk
// score onto levels. Scores below Medium are Low, scores at or above High are
// High, the rest are Medium.
type RiskThresholds struct {
	Medium float64 `yaml:"medium" json:"medium"`
	High   float64 `yaml:"high" json:"high"`
}

// DefaultRiskThresholds are the documented calibration constants.
func DefaultRiskThresholds() RiskThresholds {
	return RiskThresholds{Medium: 0.33, High: 0.66}
}

// Level buckets a risk score. The function is monotonic in the score with
// boundary values belonging to the upper bucket.
func (t RiskThresholds) Level(score float64) RiskLevel {
	switch {
	case score >= t.High:
		return RiskHigh
	case score >= t.Medium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RiskAssessment is the output of one prediction. It is created fresh per
// call and handed to the persistence collaborator; the engine keeps nothing.
type RiskAssessment struct {
	ID              string    `json:"id"`
	RiskScore       float64   `json:"riskScore"`
	RiskLevel       RiskLevel `json:"riskLevel"`
	Confidence      float64   `json:"confidence"`
	Recommendations []string  `json:"recommendations"`
	Algorithm       string    `json:"algorithm"`
	SchemaVersion   string    `json:"schemaVersion"`
	CreatedAt       time.Time `json:"createdAt"`
}

// baseRecommendations are the level-keyed advisory texts.
var baseRecommendations = map[RiskLevel][]string{
	RiskLow: {
		"Continue regular health checkups",
		"Maintain healthy lifestyle",
		"Annual screening recommended",
	},
	RiskMedium: {
		"Schedule consultation with oncologist",
		"Consider additional screening tests",
		"Monitor symptoms closely",
		"Lifestyle modifications recommended",
	},
	RiskHigh: {
		"Immediate consultation with oncologist required",
		"Comprehensive diagnostic workup needed",
		"Consider genetic counseling",
		"Frequent monitoring essential",
	},
}

// factorRule adds a recommendation when a record-level risk factor is present
// at one of the listed levels. The table is data; Recommendations folds over
// it without any factor logic of its own.
type factorRule struct {
	levels  []RiskLevel
	applies func(patient.Record) bool
	text    string
}

var factorRules = []factorRule{
	{
		levels:  []RiskLevel{RiskMedium, RiskHigh},
		applies: func(r patient.Record) bool { return r.Smoking != nil && *r.Smoking == patient.HabitCurrent },
		text:    "Enroll in a smoking cessation program",
	},
	{
		levels:  []RiskLevel{RiskMedium, RiskHigh},
		applies: func(r patient.Record) bool { return r.Drinking != nil && *r.Drinking == patient.HabitCurrent },
		text:    "Reduce alcohol consumption",
	},
	{
		levels:  []RiskLevel{RiskHigh},
		applies: func(r patient.Record) bool { return r.FamilyHistory != nil && *r.FamilyHistory },
		text:    "Discuss family history with a genetic counselor",
	},
	{
		levels: []RiskLevel{RiskLow, RiskMedium, RiskHigh},
		applies: func(r patient.Record) bool {
			bmi, ok := r.BMI()
			return ok && bmi >= 30
		},
		text: "Adopt a supervised weight management plan",
	},
	{
		levels: []RiskLevel{RiskMedium, RiskHigh},
		applies: func(r patient.Record) bool {
			return r.Exercise != nil && (*r.Exercise == patient.ExerciseNever || *r.Exercise == patient.ExerciseRarely)
		},
		text: "Increase physical activity to at least 150 minutes per week",
	},
}

// Recommendations assembles the ordered advisory list for a record at the
// given level: the level's base texts followed by matching factor rules, in
// table order.
func Recommendations(level RiskLevel, rec patient.Record) []string {
	out := append([]string(nil), baseRecommendations[level]...)
	for _, rule := range factorRules {
		if !rule.applies(rec) {
			continue
		}
		for _, l := range rule.levels {
			if l == level {
				out = append(out, rule.text)
				break
			}
		}
	}
	return out
}
