// Package features converts raw patient records into fixed-length numeric
// feature vectors. A transformer is fitted once per training run; the fitted
// State captures category vocabularies, z-score statistics and imputation
// means, and is immutable afterwards so that transformation stays a pure
// function of (record, state).
package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"oncorisk/internal/patient"
)

var (
	// ErrInsufficientData indicates the training set is too small or a
	// required field is absent from every record.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrSchemaMismatch indicates a record is missing a field that has no
	// imputation rule and cannot be transformed.
	ErrSchemaMismatch = errors.New("record does not match feature schema")
)

// MinFitRecords is the minimum number of records required to fit a transformer.
const MinFitRecords = 10

// Names of the numeric features, in vector order. The one-hot sex block
// follows them, closed by a reserved unknown slot.
var numericNames = []string{"age", "bmi", "smoking", "drinking", "family_history", "exercise"}

// NumericStat holds the z-score parameters for one numeric feature. Mean
// doubles as the imputation value for optional fields.
type NumericStat struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// State is the fitted transformer state. It is created by Fit, serialized as
// an opaque blob by the storage collaborator, and consumed read-only by every
// subsequent Transform call.
type State struct {
	SchemaVersion string        `json:"schema_version"`
	FittedAt      time.Time     `json:"fitted_at"`
	RecordCount   int           `json:"record_count"`
	Numeric       []NumericStat `json:"numeric"` // aligned with numericNames
	SexVocab      []patient.Sex `json:"sex_vocab"`
}

// VectorLen returns the length of every vector produced under this state:
// the numeric block plus one-hot sex categories plus the unknown slot.
func (s *State) VectorLen() int {
	return len(numericNames) + len(s.SexVocab) + 1
}

// FeatureNames returns the ordered names of all vector positions.
func (s *State) FeatureNames() []string {
	names := append([]string(nil), numericNames...)
	for _, sex := range s.SexVocab {
		names = append(names, "sex_"+string(sex))
	}
	return append(names, "sex_unknown")
}

// Fit computes category vocabularies and per-feature scaling statistics from
// the training records. Every record must carry age and sex; optional fields
// contribute to their imputation means only when present.
func Fit(records []patient.Record) (*State, error) {
	if len(records) < MinFitRecords {
		return nil, fmt.Errorf("%w: need at least %d records, got %d", ErrInsufficientData, MinFitRecords, len(records))
	}

	vocabSet := make(map[patient.Sex]struct{})
	rawValues := make([][]float64, len(numericNames))

	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if rec.Age == nil {
			return nil, fmt.Errorf("%w: record %d is missing age", ErrSchemaMismatch, i)
		}
		if rec.Sex == "" {
			return nil, fmt.Errorf("%w: record %d is missing sex", ErrSchemaMismatch, i)
		}
		vocabSet[rec.Sex] = struct{}{}

		for fi, name := range numericNames {
			if v, ok := numericValue(rec, name); ok {
				rawValues[fi] = append(rawValues[fi], v)
			}
		}
	}

	stats := make([]NumericStat, len(numericNames))
	for fi, name := range numericNames {
		if len(rawValues[fi]) == 0 {
			return nil, fmt.Errorf("%w: field %s absent from every record", ErrInsufficientData, name)
		}
		stats[fi] = fitStat(rawValues[fi])
	}

	// Sorted vocabulary keeps the encoding stable across runs on the same data.
	vocab := make([]patient.Sex, 0, len(vocabSet))
	for sex := range vocabSet {
		vocab = append(vocab, sex)
	}
	sort.Slice(vocab, func(i, j int) bool { return vocab[i] < vocab[j] })

	fittedAt := time.Now().UTC()
	return &State{
		SchemaVersion: fmt.Sprintf("fs1-%s", fittedAt.Format("20060102-150405")),
		FittedAt:      fittedAt,
		RecordCount:   len(records),
		Numeric:       stats,
		SexVocab:      vocab,
	}, nil
}

// Transform encodes a record into a feature vector under the fitted state.
// Unknown sex categories map to the reserved unknown slot; missing optional
// numerics are imputed with the fitted mean. Missing age or sex has no
// imputation rule and fails with ErrSchemaMismatch.
func Transform(rec patient.Record, state *State) ([]float64, error) {
	if state == nil {
		return nil, fmt.Errorf("%w: no fitted transformer state", ErrSchemaMismatch)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if rec.Age == nil {
		return nil, fmt.Errorf("%w: missing required field age", ErrSchemaMismatch)
	}
	if rec.Sex == "" {
		return nil, fmt.Errorf("%w: missing required field sex", ErrSchemaMismatch)
	}

	vec := make([]float64, 0, state.VectorLen())
	for fi, name := range numericNames {
		stat := state.Numeric[fi]
		v, ok := numericValue(rec, name)
		if !ok {
			v = stat.Mean
		}
		vec = append(vec, (v-stat.Mean)/stat.Std)
	}

	oneHot := make([]float64, len(state.SexVocab)+1)
	idx := len(state.SexVocab) // reserved unknown slot
	for i, sex := range state.SexVocab {
		if sex == rec.Sex {
			idx = i
			break
		}
	}
	oneHot[idx] = 1
	return append(vec, oneHot...), nil
}

// TransformAll encodes a batch of records, failing on the first bad record.
func TransformAll(records []patient.Record, state *State) ([][]float64, error) {
	vecs := make([][]float64, len(records))
	for i, rec := range records {
		vec, err := Transform(rec, state)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// numericValue extracts the named numeric feature from a record, reporting
// whether it is present.
func numericValue(rec patient.Record, name string) (float64, bool) {
	switch name {
	case "age":
		if rec.Age != nil {
			return float64(*rec.Age), true
		}
	case "bmi":
		return rec.BMI()
	case "smoking":
		if rec.Smoking != nil {
			return float64(*rec.Smoking), true
		}
	case "drinking":
		if rec.Drinking != nil {
			return float64(*rec.Drinking), true
		}
	case "family_history":
		if rec.FamilyHistory != nil {
			if *rec.FamilyHistory {
				return 1, true
			}
			return 0, true
		}
	case "exercise":
		if rec.Exercise != nil {
			for i, level := range patient.ExerciseLevels() {
				if level == *rec.Exercise {
					return float64(i), true
				}
			}
		}
	}
	return 0, false
}

// fitStat computes mean and standard deviation for one feature. Constant
// features get a unit deviation so scaling never divides by zero.
func fitStat(values []float64) NumericStat {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	std := math.Sqrt(ss / float64(len(values)))
	if std < 1e-10 {
		std = 1.0
	}
	return NumericStat{Mean: mean, Std: std}
}
