package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/i474232898/wanderguard/internal/patient"
)

var (
	bucketPatients = []byte("patients")
	bucketAlerts   = []byte("alerts")
)

// BoltStore is a file-backed patient.Store for single-node deployments.
// Alerts live in one nested bucket per patient, keyed by alert id.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens (or creates) the database file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketPatients, bucketAlerts} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Fetch returns the patient's record.
func (s *BoltStore) Fetch(ctx context.Context, patientID string) (*patient.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var doc []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketPatients).Get([]byte(patientID)); v != nil {
			doc = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, patient.ErrNotFound
	}
	return patient.DecodeRecord(doc)
}

// Seed stores rec as the patient's document, replacing any existing one.
func (s *BoltStore) Seed(patientID string, rec *patient.Record) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPatients).Put([]byte(patientID), doc)
	})
}

// Persist merges the update into the stored document, creating it if needed.
// Fields the update does not carry are left untouched.
func (s *BoltStore) Persist(ctx context.Context, patientID string, u patient.Update) error {
	return s.mutate(ctx, patientID, func(doc []byte) ([]byte, error) {
		return mergeDocument(doc, u)
	})
}

// AckFeedback clears the pending feedback when it still carries feedbackID.
func (s *BoltStore) AckFeedback(ctx context.Context, patientID, feedbackID string) error {
	return s.mutate(ctx, patientID, func(doc []byte) ([]byte, error) {
		if doc == nil || pendingFeedbackID(doc) != feedbackID {
			return nil, nil
		}
		return mergeDocument(doc, nil, "pendingFeedback")
	})
}

// SubmitFeedback stores fb as the patient's pending feedback.
func (s *BoltStore) SubmitFeedback(ctx context.Context, patientID string, fb patient.Feedback) error {
	return s.mutate(ctx, patientID, func(doc []byte) ([]byte, error) {
		return mergeDocument(doc, pendingFeedbackPatch{PendingFeedback: fb})
	})
}

// mutate rewrites the patient's document with the result of fn. A nil result
// leaves the document as it is.
func (s *BoltStore) mutate(ctx context.Context, patientID string, fn func(doc []byte) ([]byte, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketPatients)
		var doc []byte
		if v := b.Get([]byte(patientID)); v != nil {
			doc = append([]byte(nil), v...)
		}
		next, err := fn(doc)
		if err != nil || next == nil {
			return err
		}
		return b.Put([]byte(patientID), next)
	})
}

// SeedRaw stores a raw JSON document, which need not be well formed.
func (s *BoltStore) SeedRaw(patientID string, doc []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketPatients).Put([]byte(patientID), doc)
	})
}

// Document returns the raw stored document.
func (s *BoltStore) Document(patientID string) ([]byte, error) {
	var doc []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketPatients).Get([]byte(patientID)); v != nil {
			doc = append([]byte(nil), v...)
		}
		return nil
	})
	return doc, err
}

// AppendAlert writes the alert under the patient's alert bucket.
func (s *BoltStore) AppendAlert(ctx context.Context, patientID string, a patient.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketAlerts).CreateBucketIfNotExists([]byte(patientID))
		if err != nil {
			return err
		}
		return b.Put([]byte(a.ID), doc)
	})
}

// Alerts returns the patient's alerts ordered by timestamp.
func (s *BoltStore) Alerts(patientID string) ([]patient.Alert, error) {
	var out []patient.Alert
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAlerts).Bucket([]byte(patientID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var a patient.Alert
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("decode alert %s: %w", k, err)
			}
			a.ID = string(k)
			out = append(out, a)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortAlerts(out)
	return out, nil
}

func sortAlerts(alerts []patient.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool { return alerts[i].Timestamp < alerts[j].Timestamp })
}
