package ml

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"sort"
)

// forestCandidate trains a random forest of CART trees on bootstrap samples
// with per-split feature subsampling. All randomness comes from the run seed,
// so identical inputs grow identical forests.
type forestCandidate struct {
	trees    int
	maxDepth int
	minLeaf  int
	seed     int64
}

func newForest(seed int64) *forestCandidate {
	return &forestCandidate{
		trees:    25,
		maxDepth: 5,
		minLeaf:  2,
		seed:     seed,
	}
}

func (c *forestCandidate) ID() string { return CandidateForest }

func (c *forestCandidate) Fit(ctx context.Context, x [][]float64, y []int, posWeight float64) (Model, error) {
	rng := rand.New(rand.NewSource(c.seed))
	n := len(x)
	mtry := int(math.Ceil(math.Sqrt(float64(len(x[0])))))

	trees := make([]*treeNode, 0, c.trees)
	for t := 0; t < c.trees; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Bootstrap sample with replacement.
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		trees = append(trees, c.grow(x, y, idx, 0, mtry, posWeight, rng))
	}

	return &forestModel{Trees: trees}, nil
}

// treeNode is one node of a CART tree. Leaves carry the weighted positive
// fraction of their training samples.
type treeNode struct {
	Feature  int       `json:"f,omitempty"`
	Split    float64   `json:"s,omitempty"`
	Left     *treeNode `json:"l,omitempty"`
	Right    *treeNode `json:"r,omitempty"`
	Leaf     bool      `json:"leaf,omitempty"`
	Positive float64   `json:"p,omitempty"`
}

func (c *forestCandidate) grow(x [][]float64, y, idx []int, depth, mtry int, posWeight float64, rng *rand.Rand) *treeNode {
	pos := weightedPositiveFraction(y, idx, posWeight)
	if depth >= c.maxDepth || len(idx) < 2*c.minLeaf || pos == 0 || pos == 1 {
		return &treeNode{Leaf: true, Positive: pos}
	}

	bestFeature, bestSplit, bestGain := -1, 0.0, 0.0
	parentImpurity := gini(pos)

	for _, f := range sampleFeatures(len(x[0]), mtry, rng) {
		values := make([]float64, len(idx))
		for i, id := range idx {
			values[i] = x[id][f]
		}
		sort.Float64s(values)
		for i := 1; i < len(values); i++ {
			if values[i] == values[i-1] {
				continue
			}
			split := (values[i] + values[i-1]) / 2
			gain := splitGain(x, y, idx, f, split, posWeight, parentImpurity)
			if gain > bestGain {
				bestFeature, bestSplit, bestGain = f, split, gain
			}
		}
	}

	if bestFeature < 0 {
		return &treeNode{Leaf: true, Positive: pos}
	}

	var left, right []int
	for _, id := range idx {
		if x[id][bestFeature] <= bestSplit {
			left = append(left, id)
		} else {
			right = append(right, id)
		}
	}
	if len(left) < c.minLeaf || len(right) < c.minLeaf {
		return &treeNode{Leaf: true, Positive: pos}
	}

	return &treeNode{
		Feature: bestFeature,
		Split:   bestSplit,
		Left:    c.grow(x, y, left, depth+1, mtry, posWeight, rng),
		Right:   c.grow(x, y, right, depth+1, mtry, posWeight, rng),
	}
}

func (n *treeNode) predict(vec []float64) float64 {
	if n.Leaf {
		return n.Positive
	}
	if vec[n.Feature] <= n.Split {
		return n.Left.predict(vec)
	}
	return n.Right.predict(vec)
}

type forestModel struct {
	Trees []*treeNode `json:"trees"`
}

func (m *forestModel) Algorithm() string { return CandidateForest }

func (m *forestModel) PredictProba(vec []float64) float64 {
	var sum float64
	for _, t := range m.Trees {
		sum += t.predict(vec)
	}
	return sum / float64(len(m.Trees))
}

// Confidence is the ensemble agreement rate: the fraction of trees whose
// individual vote matches the majority vote.
func (m *forestModel) Confidence(vec []float64) float64 {
	var positive int
	for _, t := range m.Trees {
		if t.predict(vec) >= 0.5 {
			positive++
		}
	}
	agree := float64(positive) / float64(len(m.Trees))
	if agree < 0.5 {
		agree = 1 - agree
	}
	return agree
}

func (m *forestModel) MarshalWeights() ([]byte, error) { return json.Marshal(m) }

func decodeForest(data []byte) (Model, error) {
	var m forestModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func gini(p float64) float64 {
	return 2 * p * (1 - p)
}

func weightedPositiveFraction(y, idx []int, posWeight float64) float64 {
	var pos, total float64
	for _, id := range idx {
		if y[id] == 1 {
			pos += posWeight
			total += posWeight
		} else {
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return pos / total
}

func splitGain(x [][]float64, y, idx []int, feature int, split, posWeight, parentImpurity float64) float64 {
	var left, right []int
	for _, id := range idx {
		if x[id][feature] <= split {
			left = append(left, id)
		} else {
			right = append(right, id)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return 0
	}
	nl, nr := float64(len(left)), float64(len(right))
	n := nl + nr
	childImpurity := nl/n*gini(weightedPositiveFraction(y, left, posWeight)) +
		nr/n*gini(weightedPositiveFraction(y, right, posWeight))
	return parentImpurity - childImpurity
}

// sampleFeatures draws mtry distinct feature indices.
func sampleFeatures(dim, mtry int, rng *rand.Rand) []int {
	if mtry >= dim {
		all := make([]int, dim)
		for i := range all {
			all[i] = i
		}
		return all
	}
	perm := rng.Perm(dim)
	picked := perm[:mtry]
	sort.Ints(picked)
	return picked
}
