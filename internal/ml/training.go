package ml

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Defaults for the training pipeline. Callers override them through cfg.
const (
	DefaultSeed               = 42
	DefaultSplitRatio         = 0.2
	DefaultCVFolds            = 5
	DefaultImbalanceThreshold = 0.10
)

// TrainOptions control the shared training procedure. The same split, seed
// and imbalance strategy apply to every candidate so comparisons stay fair.
type TrainOptions struct {
	// SplitRatio is the held-out validation fraction of the dataset.
	SplitRatio float64
	// Seed drives the stratified shuffle and all stochastic candidates.
	Seed int64
	// CVFolds is the fold count for per-candidate cross-validation.
	CVFolds int
	// ImbalanceThreshold is the positive-label fraction below which class
	// weighting kicks in for every candidate.
	ImbalanceThreshold float64
	// CandidateTimeout bounds each candidate's training, zero means none.
	CandidateTimeout time.Duration
	// Workers bounds the training pool, zero means GOMAXPROCS-equivalent.
	Workers int
	// OnResult, when set, is invoked as each candidate finishes. It may be
	// called from several workers at once and must be goroutine-safe.
	OnResult func(CandidateResult)
}

func (o TrainOptions) withDefaults() TrainOptions {
	if o.SplitRatio <= 0 || o.SplitRatio >= 1 {
		o.SplitRatio = DefaultSplitRatio
	}
	if o.Seed == 0 {
		o.Seed = DefaultSeed
	}
	if o.CVFolds < 2 {
		o.CVFolds = DefaultCVFolds
	}
	if o.ImbalanceThreshold <= 0 {
		o.ImbalanceThreshold = DefaultImbalanceThreshold
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	return o
}

// CandidateResult is one candidate's slot in the training run: either a
// fitted model with its held-out predictions, or the recorded failure.
type CandidateResult struct {
	CandidateID string
	Model       Model
	ValProbs    []float64
	ValLabels   []int
	CVMean      float64
	CVStd       float64
	TrainTime   time.Duration
	Err         error
}

// TrainAll fits every candidate on an identical stratified train/validation
// split. Candidates run concurrently in a bounded pool; one candidate's
// failure is recorded in its slot without aborting the others. On
// cancellation the results for candidates already finished are returned
// together with the context error.
func TrainAll(ctx context.Context, candidates []Candidate, x [][]float64, y []int, opts TrainOptions) ([]CandidateResult, error) {
	opts = opts.withDefaults()
	if err := checkDataset(x, y); err != nil {
		return nil, err
	}

	trainIdx, valIdx := stratifiedSplit(y, opts.SplitRatio, opts.Seed)
	trainX, trainY := subset(x, y, trainIdx)
	valX, valY := subset(x, y, valIdx)
	posWeight := classWeight(trainY, opts.ImbalanceThreshold)

	log.Info().
		Int("train", len(trainIdx)).
		Int("validation", len(valIdx)).
		Float64("pos_weight", posWeight).
		Int("candidates", len(candidates)).
		Msg("training candidate roster")

	results := make([]CandidateResult, len(candidates))
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := opts.Workers
	if workers > len(candidates) {
		workers = len(candidates)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = trainOne(ctx, candidates[i], trainX, trainY, valX, valY, x, y, posWeight, opts)
				if opts.OnResult != nil {
					opts.OnResult(results[i])
				}
			}
		}()
	}

	var cancelled error
dispatch:
	for i := range candidates {
		// Cancellation happens between candidate units, never mid-candidate.
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			for j := i; j < len(candidates); j++ {
				results[j] = CandidateResult{CandidateID: candidates[j].ID(), Err: ctx.Err()}
			}
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled == nil && ctx.Err() != nil {
		cancelled = ctx.Err()
	}
	return results, cancelled
}

// trainOne fits a single candidate and runs its cross-validation under the
// same per-candidate timeout, converting any failure into a recorded result.
func trainOne(ctx context.Context, c Candidate, trainX [][]float64, trainY []int, valX [][]float64, valY []int, fullX [][]float64, fullY []int, posWeight float64, opts TrainOptions) CandidateResult {
	res := CandidateResult{CandidateID: c.ID(), ValLabels: valY}

	fitCtx := ctx
	if opts.CandidateTimeout > 0 {
		var cancel context.CancelFunc
		fitCtx, cancel = context.WithTimeout(ctx, opts.CandidateTimeout)
		defer cancel()
	}

	start := time.Now()
	model, err := c.Fit(fitCtx, trainX, trainY, posWeight)
	if err != nil {
		res.Err = fmt.Errorf("candidate %s: %w", c.ID(), err)
		log.Warn().Err(err).Str("candidate", c.ID()).Msg("candidate training failed")
		return res
	}

	res.Model = model
	res.ValProbs = make([]float64, len(valX))
	for i, vec := range valX {
		res.ValProbs[i] = model.PredictProba(vec)
	}

	mean, std, err := crossValidate(fitCtx, c, fullX, fullY, posWeight, opts)
	if err != nil {
		// The deployed model is intact; only the variance estimate is missing.
		log.Warn().Err(err).Str("candidate", c.ID()).Msg("cross-validation incomplete")
	} else {
		res.CVMean, res.CVStd = mean, std
	}

	res.TrainTime = time.Since(start)
	log.Info().
		Str("candidate", c.ID()).
		Dur("took", res.TrainTime).
		Float64("cv_mean", res.CVMean).
		Msg("candidate trained")
	return res
}

func checkDataset(x [][]float64, y []int) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("%w: %d feature rows for %d labels", ErrInsufficientData, len(x), len(y))
	}
	return checkLabels(y)
}

// checkLabels rejects non-binary label values and degenerate single-class
// datasets, which cannot produce a calibrated classifier.
func checkLabels(y []int) error {
	var pos int
	for _, label := range y {
		if label != 0 && label != 1 {
			return fmt.Errorf("%w: labels must be 0 or 1, got %d", ErrInsufficientData, label)
		}
		if label == 1 {
			pos++
		}
	}
	if pos == 0 || pos == len(y) {
		return fmt.Errorf("%w: labels are degenerate (%d positive of %d)", ErrInsufficientData, pos, len(y))
	}
	return nil
}

// stratifiedSplit shuffles each label class with the seeded source and takes
// the same validation fraction from both, preserving class balance.
func stratifiedSplit(y []int, valRatio float64, seed int64) (trainIdx, valIdx []int) {
	rng := rand.New(rand.NewSource(seed))
	byClass := [2][]int{}
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	for _, class := range byClass {
		rng.Shuffle(len(class), func(i, j int) { class[i], class[j] = class[j], class[i] })
		nVal := int(float64(len(class)) * valRatio)
		if nVal == 0 && len(class) > 1 {
			nVal = 1
		}
		valIdx = append(valIdx, class[:nVal]...)
		trainIdx = append(trainIdx, class[nVal:]...)
	}
	return trainIdx, valIdx
}

func subset(x [][]float64, y []int, idx []int) ([][]float64, []int) {
	sx := make([][]float64, len(idx))
	sy := make([]int, len(idx))
	for i, id := range idx {
		sx[i] = x[id]
		sy[i] = y[id]
	}
	return sx, sy
}

// classWeight returns the positive-class loss multiplier. Below the imbalance
// threshold positives are up-weighted to the negative/positive ratio;
// otherwise training is unweighted.
func classWeight(y []int, threshold float64) float64 {
	var pos int
	for _, label := range y {
		if label == 1 {
			pos++
		}
	}
	if pos == 0 {
		return 1
	}
	frac := float64(pos) / float64(len(y))
	if frac >= threshold {
		return 1
	}
	return float64(len(y)-pos) / float64(pos)
}
