// Package ml implements the risk scoring engine: the candidate classifier
// roster, the shared training and evaluation pipeline, deterministic model
// selection, and the inference path from a raw patient record to a
// calibrated risk assessment.
package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"oncorisk/internal/features"
	"oncorisk/internal/patient"
)

// MetricsInterface defines the metrics hooks the engine needs. A nil
// implementation is allowed; the engine checks before every call.
type MetricsInterface interface {
	PredictionsInc()
	PredictionFailuresInc()
	PredictionLatencyObserve(float64)
	RiskScoreObserve(float64)
	ConfidenceObserve(float64)
	TrainingRunsInc()
	TrainingFailuresInc()
	TrainingDurationObserve(float64)
	ModelAgeSet(float64)
}

// ArtifactStore is the narrow persistence surface the engine depends on:
// opaque blobs keyed by schema version plus the per-run report sets. The
// engine never touches a database directly.
type ArtifactStore interface {
	SaveTransformerState(schemaVersion string, blob []byte) error
	SaveActiveModel(schemaVersion string, blob []byte) error
	SaveRun(runID string, startedAt time.Time, reports []EvaluationReport) error
	LoadActive() (stateBlob, modelBlob []byte, err error)
}

// ProgressEvent reports training progress for streaming consumers.
type ProgressEvent struct {
	RunID       string            `json:"run_id"`
	CandidateID string            `json:"candidate_id,omitempty"`
	Stage       string            `json:"stage"` // started, candidate_done, candidate_failed, selected
	Report      *EvaluationReport `json:"report,omitempty"`
}

// TrainingSummary is returned to the caller after a training run.
type TrainingSummary struct {
	RunID             string             `json:"run_id"`
	SelectedCandidate string             `json:"selected_candidate"`
	SchemaVersion     string             `json:"schema_version"`
	Reports           []EvaluationReport `json:"reports"`
	StartedAt         time.Time          `json:"started_at"`
	Duration          time.Duration      `json:"duration_ns"`
}

// deployment pairs a fitted transformer state with the model trained against
// it. The pair is always swapped as a unit so readers never observe a mixed
// old-transformer/new-model state.
type deployment struct {
	state   *features.State
	model   Model
	trained TrainedModel
}

// EngineConfig carries the engine's tunables from the configuration surface.
type EngineConfig struct {
	Thresholds RiskThresholds
	Roster     []string
	Train      TrainOptions
}

// Engine owns the single active (TransformerState, TrainedModel) pair and
// exposes the two inbound operations, Predict and Retrain. Predict is
// lock-free and safe for arbitrary concurrency; Retrain runs are serialized.
type Engine struct {
	cfg     EngineConfig
	store   ArtifactStore
	metrics MetricsInterface

	current atomic.Pointer[deployment]

	trainMu sync.Mutex

	progressMu sync.Mutex
	progress   func(ProgressEvent)
}

// NewEngine builds an engine. store and metrics may be nil, in which case
// artifacts are not persisted and no metrics are recorded.
func NewEngine(cfg EngineConfig, store ArtifactStore, metrics MetricsInterface) *Engine {
	if cfg.Thresholds == (RiskThresholds{}) {
		cfg.Thresholds = DefaultRiskThresholds()
	}
	if len(cfg.Roster) == 0 {
		cfg.Roster = DefaultRoster()
	}
	return &Engine{cfg: cfg, store: store, metrics: metrics}
}

// Ready reports whether an active model is deployed.
func (e *Engine) Ready() bool {
	return e.current.Load() != nil
}

// ActiveModel returns the envelope of the deployed model, or false when
// nothing is deployed.
func (e *Engine) ActiveModel() (TrainedModel, bool) {
	dep := e.current.Load()
	if dep == nil {
		return TrainedModel{}, false
	}
	return dep.trained, true
}

// SetProgressSink installs a callback receiving training progress events.
// Events are delivered serially.
func (e *Engine) SetProgressSink(sink func(ProgressEvent)) {
	e.progressMu.Lock()
	e.progress = sink
	e.progressMu.Unlock()
}

func (e *Engine) emit(ev ProgressEvent) {
	e.progressMu.Lock()
	sink := e.progress
	if sink != nil {
		sink(ev)
	}
	e.progressMu.Unlock()
}

// Predict transforms a record under the active deployment and produces a
// fresh RiskAssessment. It fails with ErrModelNotTrained before the first
// training or restore, and with a schema error when the record cannot be
// transformed; it never degrades to a fabricated score.
func (e *Engine) Predict(rec patient.Record) (RiskAssessment, error) {
	start := time.Now()
	dep := e.current.Load()
	if dep == nil {
		return RiskAssessment{}, ErrModelNotTrained
	}

	vec, err := features.Transform(rec, dep.state)
	if err != nil {
		if e.metrics != nil {
			e.metrics.PredictionFailuresInc()
		}
		return RiskAssessment{}, err
	}

	score := dep.model.PredictProba(vec)
	confidence := dep.model.Confidence(vec)
	level := e.cfg.Thresholds.Level(score)

	assessment := RiskAssessment{
		ID:              uuid.NewString(),
		RiskScore:       score,
		RiskLevel:       level,
		Confidence:      confidence,
		Recommendations: Recommendations(level, rec),
		Algorithm:       dep.model.Algorithm(),
		SchemaVersion:   dep.state.SchemaVersion,
		CreatedAt:       time.Now().UTC(),
	}

	if e.metrics != nil {
		e.metrics.PredictionsInc()
		e.metrics.PredictionLatencyObserve(time.Since(start).Seconds())
		e.metrics.RiskScoreObserve(score)
		e.metrics.ConfidenceObserve(confidence)
	}
	return assessment, nil
}

// Retrain runs the full pipeline: fit transformer, train every candidate,
// evaluate, select, atomically deploy, persist artifacts. On cancellation it
// returns the reports of candidates that finished together with the context
// error. Data and schema errors surface immediately.
func (e *Engine) Retrain(ctx context.Context, records []patient.Record, labels []int) (TrainingSummary, error) {
	e.trainMu.Lock()
	defer e.trainMu.Unlock()

	startedAt := time.Now().UTC()
	summary := TrainingSummary{
		RunID:     uuid.NewString(),
		StartedAt: startedAt,
	}

	if len(records) != len(labels) {
		return summary, fmt.Errorf("%w: %d records for %d labels", ErrInsufficientData, len(records), len(labels))
	}
	if err := checkLabels(labels); err != nil {
		return summary, err
	}

	state, err := features.Fit(records)
	if err != nil {
		e.trainingFailed()
		return summary, err
	}
	summary.SchemaVersion = state.SchemaVersion

	x, err := features.TransformAll(records, state)
	if err != nil {
		e.trainingFailed()
		return summary, err
	}

	candidates, err := Roster(e.cfg.Roster, e.cfg.Train.Seed)
	if err != nil {
		e.trainingFailed()
		return summary, err
	}

	e.emit(ProgressEvent{RunID: summary.RunID, Stage: "started"})

	opts := e.cfg.Train
	opts.OnResult = func(res CandidateResult) {
		ev := ProgressEvent{RunID: summary.RunID, CandidateID: res.CandidateID, Stage: "candidate_done"}
		if res.Err != nil {
			ev.Stage = "candidate_failed"
		}
		e.emit(ev)
	}

	results, trainErr := TrainAll(ctx, candidates, x, labels, opts)
	summary.Reports = BuildReports(results)
	summary.Duration = time.Since(startedAt)

	e.persistReports(summary)

	if trainErr != nil {
		// Cancelled between candidates: partial reports, no deployment swap.
		e.trainingFailed()
		return summary, trainErr
	}

	selected, err := Select(summary.Reports)
	if err != nil {
		e.trainingFailed()
		return summary, err
	}
	summary.SelectedCandidate = selected

	var winner Model
	for _, res := range results {
		if res.CandidateID == selected {
			winner = res.Model
			break
		}
	}

	trained, err := EncodeModel(winner, state.SchemaVersion, startedAt)
	if err != nil {
		e.trainingFailed()
		return summary, err
	}

	e.current.Store(&deployment{state: state, model: winner, trained: trained})
	e.persistDeployment(state, trained)

	if e.metrics != nil {
		e.metrics.TrainingRunsInc()
		e.metrics.TrainingDurationObserve(summary.Duration.Seconds())
		e.metrics.ModelAgeSet(0)
	}

	log.Info().
		Str("run_id", summary.RunID).
		Str("selected", selected).
		Str("schema_version", state.SchemaVersion).
		Dur("took", summary.Duration).
		Msg("training run complete")
	e.emit(ProgressEvent{RunID: summary.RunID, CandidateID: selected, Stage: "selected"})

	return summary, nil
}

// Restore loads the persisted transformer state and active model from the
// artifact store and deploys them, allowing the service to resume without
// retraining. The blobs must carry matching schema versions.
func (e *Engine) Restore() error {
	if e.store == nil {
		return fmt.Errorf("%w: no artifact store configured", ErrModelNotTrained)
	}
	stateBlob, modelBlob, err := e.store.LoadActive()
	if err != nil {
		return fmt.Errorf("load artifacts: %w", err)
	}
	return e.Deploy(stateBlob, modelBlob)
}

// Deploy decodes a (state, model) blob pair and swaps it in atomically.
func (e *Engine) Deploy(stateBlob, modelBlob []byte) error {
	var state features.State
	if err := json.Unmarshal(stateBlob, &state); err != nil {
		return fmt.Errorf("decode transformer state: %w", err)
	}

	var trained TrainedModel
	if err := json.Unmarshal(modelBlob, &trained); err != nil {
		return fmt.Errorf("decode model envelope: %w", err)
	}
	if trained.SchemaVersion != state.SchemaVersion {
		return fmt.Errorf("%w: model schema %q does not match transformer schema %q",
			features.ErrSchemaMismatch, trained.SchemaVersion, state.SchemaVersion)
	}

	model, err := DecodeModel(trained)
	if err != nil {
		return err
	}

	e.current.Store(&deployment{state: &state, model: model, trained: trained})
	if e.metrics != nil {
		e.metrics.ModelAgeSet(time.Since(trained.TrainedAt).Seconds())
	}
	log.Info().
		Str("algorithm", trained.Algorithm).
		Str("schema_version", trained.SchemaVersion).
		Time("trained_at", trained.TrainedAt).
		Msg("model deployed from persisted artifacts")
	return nil
}

func (e *Engine) persistReports(summary TrainingSummary) {
	if e.store == nil || len(summary.Reports) == 0 {
		return
	}
	if err := e.store.SaveRun(summary.RunID, summary.StartedAt, summary.Reports); err != nil {
		log.Error().Err(err).Str("run_id", summary.RunID).Msg("failed to persist evaluation reports")
	}
}

func (e *Engine) persistDeployment(state *features.State, trained TrainedModel) {
	if e.store == nil {
		return
	}
	stateBlob, err := json.Marshal(state)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal transformer state")
		return
	}
	modelBlob, err := json.Marshal(trained)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal model envelope")
		return
	}
	if err := e.store.SaveTransformerState(state.SchemaVersion, stateBlob); err != nil {
		log.Error().Err(err).Msg("failed to persist transformer state")
	}
	if err := e.store.SaveActiveModel(state.SchemaVersion, modelBlob); err != nil {
		log.Error().Err(err).Msg("failed to persist active model")
	}
}

func (e *Engine) trainingFailed() {
	if e.metrics != nil {
		e.metrics.TrainingFailuresInc()
	}
}
