package ml

import (
	"context"
	"encoding/json"
	"math/rand"
)

// svmCandidate trains a linear soft-margin SVM with hinge-loss SGD
// (Pegasos-style shrinking step). The per-epoch sample order is drawn from
// the run seed, keeping the optimization reproducible.
type svmCandidate struct {
	lambda float64
	epochs int
	seed   int64
}

func newSVM(seed int64) *svmCandidate {
	return &svmCandidate{
		lambda: 1e-2,
		epochs: 200,
		seed:   seed,
	}
}

func (c *svmCandidate) ID() string { return CandidateSVM }

func (c *svmCandidate) Fit(ctx context.Context, x [][]float64, y []int, posWeight float64) (Model, error) {
	rng := rand.New(rand.NewSource(c.seed))
	dim := len(x[0])
	w := make([]float64, dim)
	var b float64
	step := 0

	for epoch := 0; epoch < c.epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, i := range rng.Perm(len(x)) {
			step++
			eta := 1.0 / (c.lambda * float64(step))

			// Labels in {-1,+1} for the hinge loss.
			yi := -1.0
			weight := 1.0
			if y[i] == 1 {
				yi = 1.0
				weight = posWeight
			}

			margin := yi * (dot(w, x[i]) + b)
			for j := range w {
				w[j] *= 1 - eta*c.lambda
			}
			if margin < 1 {
				for j, v := range x[i] {
					w[j] += eta * weight * yi * v
				}
				b += eta * weight * yi
			}
		}
	}

	return &svmModel{W: w, B: b}, nil
}

type svmModel struct {
	W []float64 `json:"w"`
	B float64   `json:"b"`
}

func (m *svmModel) Algorithm() string { return CandidateSVM }

// PredictProba squashes the signed decision margin through a sigmoid. This is
// an uncalibrated monotone mapping; ranking metrics such as ROC-AUC are
// unaffected by the choice of squashing function.
func (m *svmModel) PredictProba(vec []float64) float64 {
	return sigmoid(dot(m.W, vec) + m.B)
}

func (m *svmModel) Confidence(vec []float64) float64 {
	return marginConfidence(m.PredictProba(vec))
}

func (m *svmModel) MarshalWeights() ([]byte, error) { return json.Marshal(m) }

func decodeSVM(data []byte) (Model, error) {
	var m svmModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
