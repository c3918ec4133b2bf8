package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/i474232898/wanderguard/internal/patient"
)

// AlertLog holds the time-ordered alerts of a patient.
type AlertLog struct {
	Alerts []patient.Alert
}

// MemoryStore is a concurrency-safe in-memory implementation of patient.Store.
// Records are kept as JSON documents so reads behave like the remote store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: patient id
	records map[string][]byte
	alerts  map[string]*AlertLog

	// alert retention configuration
	maxAlerts int           // max alerts per patient
	maxAge    time.Duration // optional max age for alerts
}

// NewMemoryStore creates a new MemoryStore with optional alert retention.
// If maxAlerts is <= 0, it is treated as unlimited.
func NewMemoryStore(maxAlerts int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		records:   make(map[string][]byte),
		alerts:    make(map[string]*AlertLog),
		maxAlerts: maxAlerts,
		maxAge:    maxAge,
	}
}

// Seed stores rec as the patient's document, replacing any existing one.
func (s *MemoryStore) Seed(patientID string, rec *patient.Record) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[patientID] = doc
	return nil
}

// SeedRaw stores a raw JSON document, which need not be well formed.
func (s *MemoryStore) SeedRaw(patientID string, doc []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[patientID] = append([]byte(nil), doc...)
}

// Fetch returns a private copy of the patient's record.
func (s *MemoryStore) Fetch(_ context.Context, patientID string) (*patient.Record, error) {
	s.mu.RLock()
	doc, ok := s.records[patientID]
	s.mu.RUnlock()
	if !ok {
		return nil, patient.ErrNotFound
	}
	return patient.DecodeRecord(doc)
}

// Persist merges the update into the stored document, creating it if needed.
// Fields the update does not carry are left untouched.
func (s *MemoryStore) Persist(_ context.Context, patientID string, u patient.Update) error {
	return s.mutate(patientID, func(doc []byte) ([]byte, error) {
		return mergeDocument(doc, u)
	})
}

// AckFeedback clears the pending feedback when it still carries feedbackID.
func (s *MemoryStore) AckFeedback(_ context.Context, patientID, feedbackID string) error {
	return s.mutate(patientID, func(doc []byte) ([]byte, error) {
		if doc == nil || pendingFeedbackID(doc) != feedbackID {
			return nil, nil
		}
		return mergeDocument(doc, nil, "pendingFeedback")
	})
}

// SubmitFeedback stores fb as the patient's pending feedback.
func (s *MemoryStore) SubmitFeedback(_ context.Context, patientID string, fb patient.Feedback) error {
	return s.mutate(patientID, func(doc []byte) ([]byte, error) {
		return mergeDocument(doc, pendingFeedbackPatch{PendingFeedback: fb})
	})
}

// mutate rewrites the patient's document with the result of fn. A nil result
// leaves the document as it is.
func (s *MemoryStore) mutate(patientID string, fn func(doc []byte) ([]byte, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := fn(s.records[patientID])
	if err != nil {
		return err
	}
	if doc != nil {
		s.records[patientID] = doc
	}
	return nil
}

// Document returns a copy of the raw stored document.
func (s *MemoryStore) Document(patientID string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.records[patientID]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), doc...), true
}

// AppendAlert appends an alert for a patient and enforces retention.
func (s *MemoryStore) AppendAlert(_ context.Context, patientID string, a patient.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, ok := s.alerts[patientID]
	if !ok {
		log = &AlertLog{}
		s.alerts[patientID] = log
	}

	log.Alerts = append(log.Alerts, a)

	// Enforce retention by count.
	if s.maxAlerts > 0 && len(log.Alerts) > s.maxAlerts {
		over := len(log.Alerts) - s.maxAlerts
		log.Alerts = log.Alerts[over:]
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge).Unix()
		i := 0
		for ; i < len(log.Alerts); i++ {
			if log.Alerts[i].Timestamp >= cutoff {
				break
			}
		}
		log.Alerts = log.Alerts[i:]
	}
	return nil
}

// Alerts returns the retained alerts of a patient, oldest first.
func (s *MemoryStore) Alerts(patientID string) []patient.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, ok := s.alerts[patientID]
	if !ok {
		return nil
	}
	return append([]patient.Alert(nil), log.Alerts...)
}
