package ml

import (
	"context"
	"encoding/json"
	"math"
)

// logisticCandidate trains an L2-regularized logistic regression with
// full-batch gradient descent. Training is fully deterministic: no sampling,
// fixed iteration count, fixed initialization at zero.
type logisticCandidate struct {
	learningRate float64
	lambda       float64
	epochs       int
}

func newLogistic() *logisticCandidate {
	return &logisticCandidate{
		learningRate: 0.1,
		lambda:       1e-3,
		epochs:       500,
	}
}

func (c *logisticCandidate) ID() string { return CandidateLogistic }

func (c *logisticCandidate) Fit(ctx context.Context, x [][]float64, y []int, posWeight float64) (Model, error) {
	dim := len(x[0])
	w := make([]float64, dim)
	var b float64
	n := float64(len(x))

	grad := make([]float64, dim)
	for epoch := 0; epoch < c.epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range grad {
			grad[i] = 0
		}
		var gradB float64
		for i, xi := range x {
			p := sigmoid(dot(w, xi) + b)
			residual := p - float64(y[i])
			if y[i] == 1 {
				residual *= posWeight
			}
			for j, v := range xi {
				grad[j] += residual * v
			}
			gradB += residual
		}
		for j := range w {
			w[j] -= c.learningRate * (grad[j]/n + c.lambda*w[j])
		}
		b -= c.learningRate * gradB / n
	}

	return &logisticModel{W: w, B: b}, nil
}

type logisticModel struct {
	W []float64 `json:"w"`
	B float64   `json:"b"`
}

func (m *logisticModel) Algorithm() string { return CandidateLogistic }

func (m *logisticModel) PredictProba(vec []float64) float64 {
	return sigmoid(dot(m.W, vec) + m.B)
}

// Confidence is twice the distance of the predicted probability from the
// decision boundary at 0.5.
func (m *logisticModel) Confidence(vec []float64) float64 {
	return marginConfidence(m.PredictProba(vec))
}

func (m *logisticModel) MarshalWeights() ([]byte, error) { return json.Marshal(m) }

func decodeLogistic(data []byte) (Model, error) {
	var m logisticModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

func dot(a, b []float64) float64 {
	var s float64
	for i, v := range a {
		s += v * b[i]
	}
	return s
}

// marginConfidence maps a positive-class probability to certainty in [0,1]
// as twice its distance from 0.5.
func marginConfidence(p float64) float64 {
	c := 2 * math.Abs(p-0.5)
	if c > 1 {
		c = 1
	}
	return c
}
