package ml

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
)

// mlpCandidate trains a shallow feed-forward network: one tanh hidden layer
// and a sigmoid output, optimized with full-batch gradient descent. Weight
// initialization is the only stochastic part and is driven by the run seed.
type mlpCandidate struct {
	hidden       int
	learningRate float64
	epochs       int
	seed         int64
}

func newMLP(seed int64) *mlpCandidate {
	return &mlpCandidate{
		hidden:       8,
		learningRate: 0.05,
		epochs:       300,
		seed:         seed,
	}
}

func (c *mlpCandidate) ID() string { return CandidateMLP }

func (c *mlpCandidate) Fit(ctx context.Context, x [][]float64, y []int, posWeight float64) (Model, error) {
	rng := rand.New(rand.NewSource(c.seed))
	dim := len(x[0])

	m := &mlpModel{
		Hidden: c.hidden,
		W1:     make([][]float64, c.hidden),
		B1:     make([]float64, c.hidden),
		W2:     make([]float64, c.hidden),
	}
	scale := 1.0 / math.Sqrt(float64(dim))
	for h := 0; h < c.hidden; h++ {
		m.W1[h] = make([]float64, dim)
		for j := range m.W1[h] {
			m.W1[h][j] = rng.NormFloat64() * scale
		}
		m.W2[h] = rng.NormFloat64() * scale
	}

	n := float64(len(x))
	hiddenOut := make([]float64, c.hidden)

	for epoch := 0; epoch < c.epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		gradW1 := make([][]float64, c.hidden)
		gradB1 := make([]float64, c.hidden)
		gradW2 := make([]float64, c.hidden)
		var gradB2 float64
		for h := range gradW1 {
			gradW1[h] = make([]float64, dim)
		}

		for i, xi := range x {
			for h := 0; h < c.hidden; h++ {
				hiddenOut[h] = math.Tanh(dot(m.W1[h], xi) + m.B1[h])
			}
			p := sigmoid(dot(m.W2, hiddenOut) + m.B2)

			delta := p - float64(y[i])
			if y[i] == 1 {
				delta *= posWeight
			}

			for h := 0; h < c.hidden; h++ {
				gradW2[h] += delta * hiddenOut[h]
				dh := delta * m.W2[h] * (1 - hiddenOut[h]*hiddenOut[h])
				for j, v := range xi {
					gradW1[h][j] += dh * v
				}
				gradB1[h] += dh
			}
			gradB2 += delta
		}

		for h := 0; h < c.hidden; h++ {
			for j := range m.W1[h] {
				m.W1[h][j] -= c.learningRate * gradW1[h][j] / n
			}
			m.B1[h] -= c.learningRate * gradB1[h] / n
			m.W2[h] -= c.learningRate * gradW2[h] / n
		}
		m.B2 -= c.learningRate * gradB2 / n
	}

	return m, nil
}

type mlpModel struct {
	Hidden int         `json:"hidden"`
	W1     [][]float64 `json:"w1"`
	B1     []float64   `json:"b1"`
	W2     []float64   `json:"w2"`
	B2     float64     `json:"b2"`
}

func (m *mlpModel) Algorithm() string { return CandidateMLP }

func (m *mlpModel) PredictProba(vec []float64) float64 {
	var out float64
	for h := 0; h < m.Hidden; h++ {
		out += m.W2[h] * math.Tanh(dot(m.W1[h], vec)+m.B1[h])
	}
	return sigmoid(out + m.B2)
}

func (m *mlpModel) Confidence(vec []float64) float64 {
	return marginConfidence(m.PredictProba(vec))
}

func (m *mlpModel) MarshalWeights() ([]byte, error) { return json.Marshal(m) }

func decodeMLP(data []byte) (Model, error) {
	var m mlpModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
