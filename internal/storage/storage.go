// Package storage persists the risk engine's artifacts using BoltDB:
// versioned transformer-state and model blobs, per-run evaluation report
// sets, and the assessment history served by the API. The engine itself only
// sees the narrow save/load interface; everything here is a collaborator.
package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"oncorisk/internal/ml"
	"oncorisk/internal/patient"
)

const (
	statesBucket      = "transformer_state" // schema version -> state blob
	modelsBucket      = "models"            // schema version -> model envelope blob
	reportsBucket     = "reports"           // unixnano_runid -> report set
	assessmentsBucket = "assessments"       // unixnano_id -> assessment record
	metaBucket        = "meta"              // active schema version pointer
)

const activeSchemaKey = "active_schema"

// Store provides persistent storage for training artifacts and assessment
// history. All operations are safe for concurrent use.
type Store struct {
	db *bbolt.DB
}

// RunReports is one training run's persisted report set.
type RunReports struct {
	RunID     string                `json:"run_id"`
	StartedAt time.Time             `json:"started_at"`
	Reports   []ml.EvaluationReport `json:"reports"`
}

// AssessmentRecord pairs an assessment with the patient data it was derived
// from, mirroring what the original system kept per prediction.
type AssessmentRecord struct {
	Patient    patient.Record    `json:"patient"`
	Assessment ml.RiskAssessment `json:"assessment"`
}

// New opens the database under dataPath and creates the buckets.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "oncorisk-data.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{statesBucket, modelsBucket, reportsBucket, assessmentsBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveTransformerState stores a fitted transformer blob under its schema
// version and marks that version active.
func (s *Store) SaveTransformerState(schemaVersion string, blob []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(statesBucket)).Put([]byte(schemaVersion), blob); err != nil {
			return fmt.Errorf("put transformer state: %w", err)
		}
		return tx.Bucket([]byte(metaBucket)).Put([]byte(activeSchemaKey), []byte(schemaVersion))
	})
}

// SaveActiveModel stores the selected model envelope under its schema version.
func (s *Store) SaveActiveModel(schemaVersion string, blob []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(modelsBucket)).Put([]byte(schemaVersion), blob)
	})
}

// LoadActive returns the blob pair for the active schema version.
func (s *Store) LoadActive() (stateBlob, modelBlob []byte, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		version := tx.Bucket([]byte(metaBucket)).Get([]byte(activeSchemaKey))
		if version == nil {
			return fmt.Errorf("no active model recorded")
		}
		state := tx.Bucket([]byte(statesBucket)).Get(version)
		model := tx.Bucket([]byte(modelsBucket)).Get(version)
		if state == nil || model == nil {
			return fmt.Errorf("artifacts for schema %s are incomplete", version)
		}
		// Copies, since bbolt values are only valid inside the transaction.
		stateBlob = append([]byte(nil), state...)
		modelBlob = append([]byte(nil), model...)
		return nil
	})
	return stateBlob, modelBlob, err
}

// SaveRun appends a training run's report set, keyed by start time so runs
// list chronologically. Reports are never rewritten.
func (s *Store) SaveRun(runID string, startedAt time.Time, reports []ml.EvaluationReport) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(RunReports{RunID: runID, StartedAt: startedAt, Reports: reports})
		if err != nil {
			return fmt.Errorf("marshal run reports: %w", err)
		}
		key := fmt.Sprintf("%020d_%s", startedAt.UnixNano(), runID)
		return tx.Bucket([]byte(reportsBucket)).Put([]byte(key), data)
	})
}

// ListRuns returns up to limit most recent report sets, newest first.
func (s *Store) ListRuns(limit int) ([]RunReports, error) {
	var runs []RunReports
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(reportsBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(runs) < limit; k, v = c.Prev() {
			var run RunReports
			if err := json.Unmarshal(v, &run); err != nil {
				continue // skip malformed records
			}
			runs = append(runs, run)
		}
		return nil
	})
	return runs, err
}

// StoreAssessment appends one prediction to the history.
func (s *Store) StoreAssessment(rec patient.Record, assessment ml.RiskAssessment) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(AssessmentRecord{Patient: rec, Assessment: assessment})
		if err != nil {
			return fmt.Errorf("marshal assessment: %w", err)
		}
		key := fmt.Sprintf("%020d_%s", assessment.CreatedAt.UnixNano(), assessment.ID)
		return tx.Bucket([]byte(assessmentsBucket)).Put([]byte(key), data)
	})
}

// RecentAssessments returns up to limit stored assessments, newest first.
func (s *Store) RecentAssessments(limit int) ([]AssessmentRecord, error) {
	var records []AssessmentRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(assessmentsBucket)).Cursor()
		for k, v := c.Last(); k != nil && len(records) < limit; k, v = c.Prev() {
			var record AssessmentRecord
			if err := json.Unmarshal(v, &record); err != nil {
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}
