// Package api exposes the risk engine over HTTP: prediction and retraining
// endpoints, the stored assessment history, and a websocket stream of
// training progress. Request validation and transport concerns live here;
// scoring semantics stay in the engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"oncorisk/internal/features"
	"oncorisk/internal/ml"
	"oncorisk/internal/notify"
	"oncorisk/internal/patient"
	"oncorisk/internal/storage"
)

// historyLimit caps the assessment history endpoint, matching the original
// system's most-recent-100 behavior.
const historyLimit = 100

// Server wires the engine, storage and notifier behind the HTTP surface.
type Server struct {
	engine   *ml.Engine
	store    *storage.Store
	notifier *notify.Notifier
	hub      *progressHub
	server   *http.Server
}

// TrainRequest is the retraining dataset payload.
type TrainRequest struct {
	Records []patient.Record `json:"records"`
	Labels  []int            `json:"labels"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New builds the API server. store and notifier may be nil.
func New(engine *ml.Engine, store *storage.Store, notifier *notify.Notifier, port int) *Server {
	s := &Server{
		engine:   engine,
		store:    store,
		notifier: notifier,
		hub:      newProgressHub(),
	}
	engine.SetProgressSink(s.hub.broadcast)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/predict", s.handlePredict)
	mux.HandleFunc("/api/train", s.handleTrain)
	mux.HandleFunc("/api/train/watch", s.hub.handleWatch)
	mux.HandleFunc("/api/patients", s.handlePatients)
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/model", s.handleModel)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute, // retraining responses can be slow
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server and the websocket hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.close()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Cancer Risk Scoring API",
		"status":  "running",
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var rec patient.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if err := rec.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	assessment, err := s.engine.Predict(rec)
	if err != nil {
		switch {
		case errors.Is(err, ml.ErrModelNotTrained):
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		case errors.Is(err, features.ErrSchemaMismatch):
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		default:
			log.Error().Err(err).Msg("prediction failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		}
		return
	}

	if s.store != nil {
		if err := s.store.StoreAssessment(rec, assessment); err != nil {
			log.Error().Err(err).Msg("failed to store assessment")
		}
	}
	s.notifier.AssessmentCreated(rec, assessment)

	writeJSON(w, http.StatusOK, assessment)
}

func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	summary, err := s.engine.Retrain(r.Context(), req.Records, req.Labels)
	if err != nil {
		switch {
		case errors.Is(err, ml.ErrInsufficientData), errors.Is(err, features.ErrInsufficientData),
			errors.Is(err, features.ErrSchemaMismatch):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// Client went away; partial reports were already persisted.
			log.Warn().Str("run_id", summary.RunID).Msg("training run cancelled")
		default:
			log.Error().Err(err).Str("run_id", summary.RunID).Msg("training run failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		}
		return
	}

	s.notifier.TrainingCompleted(summary)
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handlePatients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "assessment history is not configured"})
		return
	}
	records, err := s.store.RecentAssessments(historyLimit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list assessments")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	if records == nil {
		records = []storage.AssessmentRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "run history is not configured"})
		return
	}
	runs, err := s.store.ListRuns(historyLimit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list training runs")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	if runs == nil {
		runs = []storage.RunReports{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleModel(w http.ResponseWriter, r *http.Request) {
	trained, ok := s.engine.ActiveModel()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: ml.ErrModelNotTrained.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"algorithm":      trained.Algorithm,
		"schema_version": trained.SchemaVersion,
		"trained_at":     trained.TrainedAt,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if !s.engine.Ready() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]bool{"model_ready": s.engine.Ready()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
