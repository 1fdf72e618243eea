package ml

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// Select picks the deployed candidate from a run's reports. The ordering is
// a strict total order so two calls over identical reports always agree:
// highest F1, then highest ROC-AUC, then shortest training wall-clock, then
// lexicographic candidate id. Failed candidates are excluded; if none
// survive, ErrNoViableCandidate is returned.
func Select(reports []EvaluationReport) (string, error) {
	viable := make([]EvaluationReport, 0, len(reports))
	for _, r := range reports {
		if !r.Failed {
			viable = append(viable, r)
		}
	}
	if len(viable) == 0 {
		return "", fmt.Errorf("%w: all %d candidates failed", ErrNoViableCandidate, len(reports))
	}

	sort.Slice(viable, func(i, j int) bool {
		a, b := viable[i], viable[j]
		if a.F1 != b.F1 {
			return a.F1 > b.F1
		}
		if a.ROCAUC != b.ROCAUC {
			return a.ROCAUC > b.ROCAUC
		}
		if a.TrainTime != b.TrainTime {
			return a.TrainTime < b.TrainTime
		}
		return a.CandidateID < b.CandidateID
	})

	winner := viable[0]
	log.Info().
		Str("candidate", winner.CandidateID).
		Float64("f1", winner.F1).
		Float64("roc_auc", winner.ROCAUC).
		Msg("candidate selected")
	return winner.CandidateID, nil
}
