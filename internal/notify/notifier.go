// Package notify delivers completed assessments and training summaries to an
// external persistence collaborator over HTTP. Delivery is fire-and-forget:
// failures are logged and retried a bounded number of times, never surfaced
// to the prediction path.
package notify

import (
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"oncorisk/internal/ml"
	"oncorisk/internal/patient"
)

// Notifier posts engine outputs to the configured webhook base URL.
type Notifier struct {
	base string
	rest *resty.Client
}

// New builds a notifier for the given base URL. An empty URL yields nil,
// which every method tolerates.
func New(baseURL string, timeout time.Duration) *Notifier {
	if baseURL == "" {
		return nil
	}
	r := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond)
	return &Notifier{base: baseURL, rest: r}
}

type assessmentPayload struct {
	Patient    patient.Record    `json:"patient"`
	Assessment ml.RiskAssessment `json:"assessment"`
}

// AssessmentCreated delivers one prediction outcome.
func (n *Notifier) AssessmentCreated(rec patient.Record, assessment ml.RiskAssessment) {
	if n == nil {
		return
	}
	go n.post("/assessments", assessmentPayload{Patient: rec, Assessment: assessment})
}

// TrainingCompleted delivers a finished run's summary.
func (n *Notifier) TrainingCompleted(summary ml.TrainingSummary) {
	if n == nil {
		return
	}
	go n.post("/training-runs", summary)
}

func (n *Notifier) post(path string, body interface{}) {
	resp, err := n.rest.R().
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(n.base + path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("webhook delivery failed")
		return
	}
	if resp.IsError() {
		log.Warn().Int("status", resp.StatusCode()).Str("path", path).Msg("webhook rejected payload")
	}
}
