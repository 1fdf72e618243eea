package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Candidate identifiers for the fixed algorithm roster.
const (
	CandidateLogistic = "logistic"
	CandidateForest   = "forest"
	CandidateSVM      = "svm"
	CandidateMLP      = "mlp"
)

// Model is a fitted classifier bound to one feature schema version. All
// implementations are immutable after Fit and safe for concurrent use.
type Model interface {
	// Algorithm returns the candidate identifier that produced this model.
	Algorithm() string

	// PredictProba returns the predicted probability of the positive class.
	PredictProba(vec []float64) float64

	// Confidence returns the model's internal certainty about a prediction,
	// in [0,1]. It is derived from the decision margin or ensemble agreement,
	// never from the probability alone being high or low.
	Confidence(vec []float64) float64

	// MarshalWeights serializes the model parameters.
	MarshalWeights() ([]byte, error)
}

// Candidate is one trainable classifier variant in the roster.
type Candidate interface {
	ID() string

	// Fit trains on the given matrix and {0,1} labels. posWeight scales the
	// loss contribution of positive samples (1 means unweighted). Fit checks
	// ctx between epochs or trees and returns ctx.Err() when cancelled.
	Fit(ctx context.Context, x [][]float64, y []int, posWeight float64) (Model, error)
}

type candidateMaker func(seed int64) Candidate

var candidateMakers = map[string]candidateMaker{
	CandidateLogistic: func(seed int64) Candidate { return newLogistic() },
	CandidateForest:   func(seed int64) Candidate { return newForest(seed) },
	CandidateSVM:      func(seed int64) Candidate { return newSVM(seed) },
	CandidateMLP:      func(seed int64) Candidate { return newMLP(seed) },
}

type weightsDecoder func([]byte) (Model, error)

var weightsDecoders = map[string]weightsDecoder{
	CandidateLogistic: decodeLogistic,
	CandidateForest:   decodeForest,
	CandidateSVM:      decodeSVM,
	CandidateMLP:      decodeMLP,
}

// DefaultRoster lists every known candidate id in deterministic order.
func DefaultRoster() []string {
	return []string{CandidateLogistic, CandidateForest, CandidateSVM, CandidateMLP}
}

// Roster builds candidate instances for the named algorithms. Stochastic
// candidates derive their randomness from seed so runs are reproducible.
func Roster(ids []string, seed int64) ([]Candidate, error) {
	if len(ids) == 0 {
		ids = DefaultRoster()
	}
	candidates := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		maker, ok := candidateMakers[id]
		if !ok {
			return nil, fmt.Errorf("unknown candidate %q", id)
		}
		candidates = append(candidates, maker(seed))
	}
	return candidates, nil
}

// TrainedModel is the serialized envelope around a fitted model: the weights
// blob tagged with its algorithm and the feature schema version it was
// fitted against, so mismatched reuse is detectable at load time.
type TrainedModel struct {
	Algorithm     string          `json:"algorithm"`
	SchemaVersion string          `json:"schema_version"`
	TrainedAt     time.Time       `json:"trained_at"`
	Weights       json.RawMessage `json:"weights"`
}

// EncodeModel wraps a fitted model into its portable envelope.
func EncodeModel(m Model, schemaVersion string, trainedAt time.Time) (TrainedModel, error) {
	weights, err := m.MarshalWeights()
	if err != nil {
		return TrainedModel{}, fmt.Errorf("marshal %s weights: %w", m.Algorithm(), err)
	}
	return TrainedModel{
		Algorithm:     m.Algorithm(),
		SchemaVersion: schemaVersion,
		TrainedAt:     trainedAt,
		Weights:       weights,
	}, nil
}

// DecodeModel restores a fitted model from its envelope.
func DecodeModel(tm TrainedModel) (Model, error) {
	decode, ok := weightsDecoders[tm.Algorithm]
	if !ok {
		return nil, fmt.Errorf("unknown algorithm %q in model blob", tm.Algorithm)
	}
	m, err := decode(tm.Weights)
	if err != nil {
		return nil, fmt.Errorf("decode %s weights: %w", tm.Algorithm, err)
	}
	return m, nil
}
