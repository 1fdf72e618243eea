package ml

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"
)

// genData builds a linearly separable dataset with a planted signal: the
// label follows the sign of the first two coordinates' sum, with the
// remaining coordinates as noise.
func genData(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	y := make([]int, n)
	for i := range x {
		vec := []float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		x[i] = vec
		if vec[0]+vec[1] > 0 {
			y[i] = 1
		}
	}
	return x, y
}

type stubModel struct {
	Score float64 `json:"score"`
}

func (m *stubModel) Algorithm() string                  { return "stub" }
func (m *stubModel) PredictProba(vec []float64) float64 { return m.Score }
func (m *stubModel) Confidence(vec []float64) float64   { return 1 }
func (m *stubModel) MarshalWeights() ([]byte, error)    { return json.Marshal(m) }

type stubCandidate struct {
	id     string
	fitErr error
	delay  time.Duration
}

func (c *stubCandidate) ID() string { return c.id }

func (c *stubCandidate) Fit(ctx context.Context, x [][]float64, y []int, posWeight float64) (Model, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.fitErr != nil {
		return nil, c.fitErr
	}
	return &stubModel{Score: 0.9}, nil
}

func TestStratifiedSplitPreservesBalance(t *testing.T) {
	y := make([]int, 100)
	for i := 0; i < 30; i++ {
		y[i] = 1
	}

	trainIdx, valIdx := stratifiedSplit(y, 0.2, 42)
	if len(trainIdx)+len(valIdx) != len(y) {
		t.Fatalf("split loses rows: %d + %d != %d", len(trainIdx), len(valIdx), len(y))
	}

	countPos := func(idx []int) int {
		var pos int
		for _, i := range idx {
			if y[i] == 1 {
				pos++
			}
		}
		return pos
	}
	if got := countPos(valIdx); got != 6 {
		t.Errorf("validation positives = %d, want 6 (20%% of 30)", got)
	}
	if got := countPos(trainIdx); got != 24 {
		t.Errorf("train positives = %d, want 24", got)
	}
}

func TestStratifiedSplitIsSeeded(t *testing.T) {
	y := make([]int, 50)
	for i := range y {
		y[i] = i % 2
	}
	train1, val1 := stratifiedSplit(y, 0.2, 7)
	train2, val2 := stratifiedSplit(y, 0.2, 7)
	if len(train1) != len(train2) || len(val1) != len(val2) {
		t.Fatal("same seed produced different split sizes")
	}
	for i := range val1 {
		if val1[i] != val2[i] {
			t.Fatal("same seed produced different validation sets")
		}
	}
}

func TestStratifiedSplitTinyClassKeepsOneValidationRow(t *testing.T) {
	// 3 positives at 20%: the floor would be 0, but each class keeps at
	// least one validation row.
	y := []int{0, 0, 0, 0, 0, 0, 0, 1, 1, 1}
	_, valIdx := stratifiedSplit(y, 0.2, 1)
	var pos int
	for _, i := range valIdx {
		if y[i] == 1 {
			pos++
		}
	}
	if pos == 0 {
		t.Error("minority class absent from validation set")
	}
}

func TestCheckLabels(t *testing.T) {
	tests := []struct {
		name    string
		y       []int
		wantErr bool
	}{
		{name: "mixed labels", y: []int{0, 1, 0, 1}},
		{name: "all negative", y: []int{0, 0, 0}, wantErr: true},
		{name: "all positive", y: []int{1, 1, 1}, wantErr: true},
		{name: "non-binary value", y: []int{0, 1, 2}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkLabels(tt.y)
			if tt.wantErr {
				if !errors.Is(err, ErrInsufficientData) {
					t.Errorf("checkLabels() = %v, want ErrInsufficientData", err)
				}
			} else if err != nil {
				t.Errorf("checkLabels() = %v, want nil", err)
			}
		})
	}
}

func TestClassWeight(t *testing.T) {
	balanced := []int{0, 0, 1, 1}
	if w := classWeight(balanced, 0.10); w != 1 {
		t.Errorf("balanced weight = %v, want 1", w)
	}

	imbalanced := make([]int, 100)
	imbalanced[0] = 1
	imbalanced[1] = 1 // 2% positive
	if w := classWeight(imbalanced, 0.10); w != 49 {
		t.Errorf("imbalanced weight = %v, want 49 (98/2)", w)
	}
}

func TestTrainAllRecordsFailureWithoutAborting(t *testing.T) {
	x, y := genData(60, 3)
	candidates := []Candidate{
		&stubCandidate{id: "good-a"},
		&stubCandidate{id: "broken", fitErr: errors.New("singular matrix")},
		&stubCandidate{id: "good-b"},
	}

	results, err := TrainAll(context.Background(), candidates, x, y, TrainOptions{CVFolds: 2})
	if err != nil {
		t.Fatalf("TrainAll() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	byID := map[string]CandidateResult{}
	for _, res := range results {
		byID[res.CandidateID] = res
	}
	if byID["broken"].Err == nil {
		t.Error("broken candidate's failure was not recorded")
	}
	if byID["good-a"].Err != nil || byID["good-a"].Model == nil {
		t.Error("healthy candidate was affected by a sibling failure")
	}
	if byID["good-b"].Err != nil || byID["good-b"].Model == nil {
		t.Error("healthy candidate was affected by a sibling failure")
	}
}

func TestTrainAllCancelledBeforeDispatch(t *testing.T) {
	x, y := genData(60, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	candidates := []Candidate{&stubCandidate{id: "a"}, &stubCandidate{id: "b"}}
	results, err := TrainAll(ctx, candidates, x, y, TrainOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("TrainAll() error = %v, want context.Canceled", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want a slot per candidate", len(results))
	}
	for _, res := range results {
		if !errors.Is(res.Err, context.Canceled) {
			t.Errorf("candidate %s err = %v, want context.Canceled", res.CandidateID, res.Err)
		}
	}
}

func TestTrainAllCancelledMidRun(t *testing.T) {
	x, y := genData(60, 3)
	ctx, cancel := context.WithCancel(context.Background())

	// One worker: the first candidate finishes, cancellation lands before
	// the rest are dispatched.
	first := &stubCandidate{id: "first", delay: 10 * time.Millisecond}
	candidates := []Candidate{
		first,
		&stubCandidate{id: "second", delay: time.Second},
		&stubCandidate{id: "third", delay: time.Second},
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	results, err := TrainAll(ctx, candidates, x, y, TrainOptions{Workers: 1, CVFolds: 2})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("TrainAll() error = %v, want context.Canceled", err)
	}
	if results[0].Err != nil {
		t.Errorf("completed candidate carries err %v", results[0].Err)
	}
}

func TestTrainAllRejectsDegenerateDataset(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}}
	y := []int{1, 1, 1}
	_, err := TrainAll(context.Background(), []Candidate{&stubCandidate{id: "a"}}, x, y, TrainOptions{})
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("TrainAll() error = %v, want ErrInsufficientData", err)
	}
}

func TestTrainAllPerCandidateTimeout(t *testing.T) {
	x, y := genData(60, 3)
	candidates := []Candidate{
		&stubCandidate{id: "slow", delay: time.Second},
		&stubCandidate{id: "fast"},
	}

	results, err := TrainAll(context.Background(), candidates, x, y, TrainOptions{
		CandidateTimeout: 20 * time.Millisecond,
		CVFolds:          2,
	})
	if err != nil {
		t.Fatalf("TrainAll() error = %v", err)
	}

	byID := map[string]CandidateResult{}
	for _, res := range results {
		byID[res.CandidateID] = res
	}
	if !errors.Is(byID["slow"].Err, context.DeadlineExceeded) {
		t.Errorf("slow candidate err = %v, want DeadlineExceeded", byID["slow"].Err)
	}
	if byID["fast"].Err != nil {
		t.Errorf("fast candidate err = %v, want nil", byID["fast"].Err)
	}
}
