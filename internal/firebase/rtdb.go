package firebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/i474232898/wanderguard/internal/patient"
)

var errNoDatabaseURL = errors.New("firebase database url is not configured")

// RTDBConfig configures the Realtime Database REST client.
type RTDBConfig struct {
	// BaseURL is the database root, e.g. https://<project>.firebaseio.com.
	BaseURL string
	// AuthToken is sent as the ?auth= query parameter when set.
	AuthToken string
	HTTP      HTTPClientConfig
}

// RTDB implements patient.Store over the Firebase Realtime Database REST API.
// Patients live under /patients/{id}, alerts under /alerts/{id}/{alertId}.
type RTDB struct {
	baseURL string
	auth    string
	client  *restClient
}

// NewRTDB creates a new RTDB store.
func NewRTDB(cfg RTDBConfig) (*RTDB, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errNoDatabaseURL
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid firebase database url: %w", err)
	}
	return &RTDB{
		baseURL: base,
		auth:    cfg.AuthToken,
		client:  newRESTClient("firebase-rtdb", cfg.HTTP),
	}, nil
}

func (db *RTDB) url(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := db.baseURL + "/" + strings.Join(escaped, "/") + ".json"
	if db.auth != "" {
		u += "?" + url.Values{"auth": {db.auth}}.Encode()
	}
	return u
}

func jsonRequest(method, target string, body any) func() (*http.Request, error) {
	return func() (*http.Request, error) {
		var rd io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, err
			}
			rd = bytes.NewReader(data)
		}
		req, err := http.NewRequest(method, target, rd)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}
}

// Fetch reads /patients/{id}. A 404 or a null document is ErrNotFound.
func (db *RTDB) Fetch(ctx context.Context, patientID string) (*patient.Record, error) {
	resp, err := db.client.do(ctx, jsonRequest(http.MethodGet, db.url("patients", patientID), nil), http.StatusNotFound)
	if err != nil {
		return nil, fmt.Errorf("fetch patient: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, patient.ErrNotFound
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read patient: %w", err)
	}
	return patient.DecodeRecord(data)
}

// Persist PATCHes the learning, heatmap and history sections. Other fields of
// the patient document are left untouched.
func (db *RTDB) Persist(ctx context.Context, patientID string, u patient.Update) error {
	resp, err := db.client.do(ctx, jsonRequest(http.MethodPatch, db.url("patients", patientID), u))
	if err != nil {
		return fmt.Errorf("persist patient: %w", err)
	}
	drain(resp)
	return nil
}

// AppendAlert PUTs the alert at /alerts/{id}/{alertId}.
func (db *RTDB) AppendAlert(ctx context.Context, patientID string, a patient.Alert) error {
	if a.ID == "" {
		return errors.New("alert id is required")
	}
	resp, err := db.client.do(ctx, jsonRequest(http.MethodPut, db.url("alerts", patientID, a.ID), a))
	if err != nil {
		return fmt.Errorf("append alert: %w", err)
	}
	drain(resp)
	return nil
}

// SubmitFeedback PUTs the pending feedback of a patient.
func (db *RTDB) SubmitFeedback(ctx context.Context, patientID string, fb patient.Feedback) error {
	resp, err := db.client.do(ctx, jsonRequest(http.MethodPut, db.url("patients", patientID, "pendingFeedback"), fb))
	if err != nil {
		return fmt.Errorf("submit feedback: %w", err)
	}
	drain(resp)
	return nil
}

// AckFeedback deletes the pending feedback only while it still carries
// feedbackID. The delete is conditional on the ETag read alongside it, so a
// label submitted in between survives.
func (db *RTDB) AckFeedback(ctx context.Context, patientID, feedbackID string) error {
	target := db.url("patients", patientID, "pendingFeedback")

	resp, err := db.client.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Firebase-ETag", "true")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("read pending feedback: %w", err)
	}
	etag := resp.Header.Get("ETag")
	var current *patient.Feedback
	decodeErr := json.NewDecoder(resp.Body).Decode(&current)
	resp.Body.Close()
	if decodeErr != nil || current == nil || current.ID != feedbackID {
		return nil
	}

	resp, err = db.client.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodDelete, target, nil)
		if err != nil {
			return nil, err
		}
		if etag != "" {
			req.Header.Set("if-match", etag)
		}
		return req, nil
	}, http.StatusPreconditionFailed)
	if err != nil {
		return fmt.Errorf("delete pending feedback: %w", err)
	}
	drain(resp)
	return nil
}
