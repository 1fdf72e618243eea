// Package patient defines the raw patient record accepted by the risk
// scoring engine and its validation rules. Records are plain values; the
// API layer decodes them from JSON and the persistence collaborator stores
// them as-is.
package patient

import "fmt"

// Sex is the biological sex category.
type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
	SexOther  Sex = "other"
)

// Exercise is the self-reported exercise frequency.
type Exercise string

const (
	ExerciseNever     Exercise = "never"
	ExerciseRarely    Exercise = "rarely"
	ExerciseSometimes Exercise = "sometimes"
	ExerciseOften     Exercise = "often"
)

// Ordinal habit levels for smoking and drinking status.
const (
	HabitNever   = 0
	HabitFormer  = 1
	HabitCurrent = 2
)

// Physiologically plausible bounds. Values outside are rejected, never clamped.
const (
	MinAge      = 0
	MaxAge      = 120
	MinHeightCm = 50.0
	MaxHeightCm = 250.0
	MinWeightKg = 2.0
	MaxWeightKg = 500.0
)

// Record is a single patient observation. Age and Sex are required; the
// remaining fields are optional and, when absent, are imputed by the fitted
// feature transformer. Pointer fields distinguish "absent" from a genuine
// zero value (age 0 and smoking level 0 are both legal).
type Record struct {
	Age           *int      `json:"age"`
	Sex           Sex       `json:"sex"`
	Smoking       *int      `json:"smoking,omitempty"`
	Drinking      *int      `json:"drinking,omitempty"`
	FamilyHistory *bool     `json:"familyHistory,omitempty"`
	Exercise      *Exercise `json:"exerciseFrequency,omitempty"`
	HeightCm      *float64  `json:"height,omitempty"`
	WeightKg      *float64  `json:"weight,omitempty"`
}

// Validate checks that every present field is within its plausible range.
// It does not require optional fields to be present; schema completeness is
// the transformer's concern.
func (r Record) Validate() error {
	if r.Age != nil && (*r.Age < MinAge || *r.Age > MaxAge) {
		return fmt.Errorf("age must be between %d and %d, got %d", MinAge, MaxAge, *r.Age)
	}
	if r.Sex != "" && !validSex(r.Sex) {
		return fmt.Errorf("sex must be one of male, female, other, got %q", r.Sex)
	}
	if r.Smoking != nil && (*r.Smoking < HabitNever || *r.Smoking > HabitCurrent) {
		return fmt.Errorf("smoking must be between %d and %d, got %d", HabitNever, HabitCurrent, *r.Smoking)
	}
	if r.Drinking != nil && (*r.Drinking < HabitNever || *r.Drinking > HabitCurrent) {
		return fmt.Errorf("drinking must be between %d and %d, got %d", HabitNever, HabitCurrent, *r.Drinking)
	}
	if r.Exercise != nil && !validExercise(*r.Exercise) {
		return fmt.Errorf("exerciseFrequency must be one of never, rarely, sometimes, often, got %q", *r.Exercise)
	}
	if r.HeightCm != nil && (*r.HeightCm < MinHeightCm || *r.HeightCm > MaxHeightCm) {
		return fmt.Errorf("height must be between %.0f and %.0f cm, got %.1f", MinHeightCm, MaxHeightCm, *r.HeightCm)
	}
	if r.WeightKg != nil && (*r.WeightKg < MinWeightKg || *r.WeightKg > MaxWeightKg) {
		return fmt.Errorf("weight must be between %.0f and %.0f kg, got %.1f", MinWeightKg, MaxWeightKg, *r.WeightKg)
	}
	return nil
}

// BMI returns the derived body mass index when both height and weight are
// present. The second return reports availability.
func (r Record) BMI() (float64, bool) {
	if r.HeightCm == nil || r.WeightKg == nil || *r.HeightCm == 0 {
		return 0, false
	}
	m := *r.HeightCm / 100.0
	return *r.WeightKg / (m * m), true
}

func validSex(s Sex) bool {
	switch s {
	case SexMale, SexFemale, SexOther:
		return true
	}
	return false
}

func validExercise(e Exercise) bool {
	switch e {
	case ExerciseNever, ExerciseRarely, ExerciseSometimes, ExerciseOften:
		return true
	}
	return false
}

// ExerciseLevels lists the ordinal exercise categories from least to most
// active. The transformer encodes exercise by its index in this list.
func ExerciseLevels() []Exercise {
	return []Exercise{ExerciseNever, ExerciseRarely, ExerciseSometimes, ExerciseOften}
}

// Pointer helpers for building records in callers and tests.

func IntPtr(v int) *int              { return &v }
func BoolPtr(v bool) *bool           { return &v }
func FloatPtr(v float64) *float64    { return &v }
func ExercisePtr(v Exercise) *Exercise { return &v }
