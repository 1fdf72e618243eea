package ml

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"
)

// EvaluationReport holds the metric suite for one candidate in a training
// run. Reports are append-only: built once after evaluation and never
// mutated. Failed candidates carry their error tag and zeroed metrics.
type EvaluationReport struct {
	CandidateID string        `json:"candidate_id"`
	Accuracy    float64       `json:"accuracy"`
	Precision   float64       `json:"precision"`
	Recall      float64       `json:"recall"`
	F1          float64       `json:"f1"`
	ROCAUC      float64       `json:"roc_auc"`
	CVMean      float64       `json:"cv_mean"`
	CVStd       float64       `json:"cv_std"`
	TrainTime   time.Duration `json:"train_time_ns"`
	Failed      bool          `json:"failed"`
	Error       string        `json:"error,omitempty"`
}

// Evaluate computes the fixed metric suite from held-out predicted
// probabilities and true labels, classifying at the 0.5 boundary.
func Evaluate(candidateID string, probs []float64, labels []int) EvaluationReport {
	var tp, fp, tn, fn float64
	for i, p := range probs {
		predicted := p >= 0.5
		actual := labels[i] == 1
		switch {
		case predicted && actual:
			tp++
		case predicted && !actual:
			fp++
		case !predicted && !actual:
			tn++
		default:
			fn++
		}
	}

	report := EvaluationReport{CandidateID: candidateID}
	total := tp + fp + tn + fn
	if total > 0 {
		report.Accuracy = (tp + tn) / total
	}
	if tp+fp > 0 {
		report.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		report.Recall = tp / (tp + fn)
	}
	if report.Precision+report.Recall > 0 {
		report.F1 = 2 * report.Precision * report.Recall / (report.Precision + report.Recall)
	}
	report.ROCAUC = rocAUC(probs, labels)
	return report
}

// FailedReport records a candidate whose training did not produce a model.
func FailedReport(candidateID string, err error) EvaluationReport {
	return EvaluationReport{
		CandidateID: candidateID,
		Failed:      true,
		Error:       err.Error(),
	}
}

// BuildReports turns raw candidate results into the per-run report set,
// merging held-out metrics with the cross-validation estimates.
func BuildReports(results []CandidateResult) []EvaluationReport {
	reports := make([]EvaluationReport, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			reports = append(reports, FailedReport(res.CandidateID, res.Err))
			continue
		}
		report := Evaluate(res.CandidateID, res.ValProbs, res.ValLabels)
		report.CVMean = res.CVMean
		report.CVStd = res.CVStd
		report.TrainTime = res.TrainTime
		reports = append(reports, report)
	}
	return reports
}

// rocAUC computes the area under the ROC curve by the rank statistic
// (Mann-Whitney U), averaging ranks over tied scores.
func rocAUC(probs []float64, labels []int) float64 {
	n := len(probs)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return probs[order[a]] < probs[order[b]] })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && probs[order[j]] == probs[order[i]] {
			j++
		}
		avg := float64(i+j+1) / 2 // ranks are 1-based
		for k := i; k < j; k++ {
			ranks[order[k]] = avg
		}
		i = j
	}

	var pos, rankSum float64
	for i, label := range labels {
		if label == 1 {
			pos++
			rankSum += ranks[i]
		}
	}
	neg := float64(n) - pos
	if pos == 0 || neg == 0 {
		return 0.5
	}
	return (rankSum - pos*(pos+1)/2) / (pos * neg)
}

// crossValidate estimates per-candidate F1 variance with stratified k-fold
// cross-validation over the full dataset, using the same seed and class
// weighting as the main fit.
func crossValidate(ctx context.Context, c Candidate, x [][]float64, y []int, posWeight float64, opts TrainOptions) (mean, std float64, err error) {
	folds := stratifiedFolds(y, opts.CVFolds, opts.Seed)
	scores := make([]float64, 0, len(folds))

	for f, holdout := range folds {
		trainIdx := make([]int, 0, len(y)-len(holdout))
		inHoldout := make(map[int]bool, len(holdout))
		for _, id := range holdout {
			inHoldout[id] = true
		}
		for i := range y {
			if !inHoldout[i] {
				trainIdx = append(trainIdx, i)
			}
		}

		foldX, foldY := subset(x, y, trainIdx)
		model, fitErr := c.Fit(ctx, foldX, foldY, posWeight)
		if fitErr != nil {
			return 0, 0, fmt.Errorf("fold %d: %w", f, fitErr)
		}

		holdX, holdY := subset(x, y, holdout)
		probs := make([]float64, len(holdX))
		for i, vec := range holdX {
			probs[i] = model.PredictProba(vec)
		}
		scores = append(scores, Evaluate(c.ID(), probs, holdY).F1)
	}

	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))
	for _, s := range scores {
		d := s - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(scores)))
	return mean, std, nil
}

// stratifiedFolds deals each label class round-robin into k folds after a
// seeded shuffle, so every fold keeps the class balance.
func stratifiedFolds(y []int, k int, seed int64) [][]int {
	rng := rand.New(rand.NewSource(seed + 1)) // distinct stream from the main split
	folds := make([][]int, k)
	byClass := [2][]int{}
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	for _, class := range byClass {
		rng.Shuffle(len(class), func(i, j int) { class[i], class[j] = class[j], class[i] })
		for i, id := range class {
			folds[i%k] = append(folds[i%k], id)
		}
	}
	return folds
}
