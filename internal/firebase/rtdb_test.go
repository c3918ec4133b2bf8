package firebase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/wanderguard/internal/patient"
	"github.com/i474232898/wanderguard/internal/risk"
)

var fastBackoff = BackoffConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

func newTestRTDB(t *testing.T, h http.HandlerFunc) *RTDB {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	db, err := NewRTDB(RTDBConfig{
		BaseURL:   srv.URL + "/",
		AuthToken: "secret",
		HTTP:      HTTPClientConfig{Client: srv.Client(), Backoff: fastBackoff},
	})
	require.NoError(t, err)
	return db
}

func TestNewRTDBRequiresURL(t *testing.T) {
	_, err := NewRTDB(RTDBConfig{})
	assert.ErrorIs(t, err, errNoDatabaseURL)
}

func TestRTDBFetch(t *testing.T) {
	db := newTestRTDB(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "secret", r.URL.Query().Get("auth"))
		switch r.URL.Path {
		case "/patients/p1.json":
			_, _ = io.WriteString(w, `{"safeRadius":150,"fcmToken":"tok","riskHistory":{"100":0.4}}`)
		case "/patients/empty.json":
			_, _ = io.WriteString(w, `null`)
		default:
			http.NotFound(w, r)
		}
	})

	rec, err := db.Fetch(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 150.0, rec.SafeRadiusOr(200))
	assert.Equal(t, "tok", rec.FCMToken)
	require.Len(t, rec.RiskHistory, 1)
	assert.Equal(t, 0.4, rec.RiskHistory[0].Score)

	_, err = db.Fetch(context.Background(), "empty")
	assert.ErrorIs(t, err, patient.ErrNotFound)

	_, err = db.Fetch(context.Background(), "missing")
	assert.ErrorIs(t, err, patient.ErrNotFound)
}

func TestRTDBFetchRetriesServerErrors(t *testing.T) {
	var calls int32
	db := newTestRTDB(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"fcmToken":"tok"}`)
	})

	rec, err := db.Fetch(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "tok", rec.FCMToken)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRTDBClientErrorsAreNotRetried(t *testing.T) {
	var calls int32
	db := newTestRTDB(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := db.Fetch(context.Background(), "p1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errUnexpected)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRTDBPersistPatchesSections(t *testing.T) {
	var body map[string]json.RawMessage
	db := newTestRTDB(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/patients/p1.json", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = io.WriteString(w, `{}`)
	})

	u := patient.Update{
		Learning:    risk.Learning{Weights: risk.Weights{Distance: 0.5, Time: 0.3, Speed: 0.2}, Samples: 3},
		ZoneHeatmap: risk.ZoneHeatmap{{Key: "12,972_77,595", Visits: 2}},
		RiskHistory: risk.RiskHistory{{At: 100, Score: 0.5}},
	}
	require.NoError(t, db.Persist(context.Background(), "p1", u))

	assert.Contains(t, body, "learning")
	assert.JSONEq(t, `{"12,972_77,595":2}`, string(body["zoneHeatmap"]))
	assert.JSONEq(t, `{"100":0.5}`, string(body["riskHistory"]))
}

func TestRTDBAppendAlert(t *testing.T) {
	var got patient.Alert
	db := newTestRTDB(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/alerts/p1/a-1.json", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{}`)
	})

	alert := patient.NewAlert("a-1", risk.Verdict{Score: 0.9, Level: risk.LevelAlert, TriggerAlert: true}, 1700)
	require.NoError(t, db.AppendAlert(context.Background(), "p1", alert))
	assert.Equal(t, 0.9, got.RiskScore)
	assert.True(t, got.Active)
	assert.False(t, got.Acknowledged)
	assert.Nil(t, got.SnoozedUntil)
}

func TestRTDBAckFeedback(t *testing.T) {
	tests := []struct {
		name       string
		stored     string
		ackID      string
		wantDelete bool
	}{
		{name: "matching id", stored: `{"id":"f1","label":"false_alarm","submittedAt":1}`, ackID: "f1", wantDelete: true},
		{name: "replaced meanwhile", stored: `{"id":"f2","label":"false_alarm","submittedAt":2}`, ackID: "f1"},
		{name: "already cleared", stored: `null`, ackID: "f1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var deleted bool
			db := newTestRTDB(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/patients/p1/pendingFeedback.json", r.URL.Path)
				switch r.Method {
				case http.MethodGet:
					assert.Equal(t, "true", r.Header.Get("X-Firebase-ETag"))
					w.Header().Set("ETag", "etag-1")
					_, _ = io.WriteString(w, tt.stored)
				case http.MethodDelete:
					assert.Equal(t, "etag-1", r.Header.Get("if-match"))
					deleted = true
					_, _ = io.WriteString(w, `null`)
				}
			})

			require.NoError(t, db.AckFeedback(context.Background(), "p1", tt.ackID))
			assert.Equal(t, tt.wantDelete, deleted)
		})
	}
}

func TestRTDBAckFeedbackPreconditionFailed(t *testing.T) {
	db := newTestRTDB(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("ETag", "etag-1")
			_, _ = io.WriteString(w, `{"id":"f1","label":"false_alarm"}`)
			return
		}
		w.WriteHeader(http.StatusPreconditionFailed)
	})

	assert.NoError(t, db.AckFeedback(context.Background(), "p1", "f1"))
}

func TestRTDBSubmitFeedback(t *testing.T) {
	var got patient.Feedback
	db := newTestRTDB(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/patients/p1/pendingFeedback.json", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{}`)
	})

	fb := patient.Feedback{ID: "f1", Label: risk.FeedbackCorrectAlert, SubmittedAt: 42}
	require.NoError(t, db.SubmitFeedback(context.Background(), "p1", fb))
	assert.Equal(t, fb, got)
}

func TestRTDBCancelledContext(t *testing.T) {
	db := newTestRTDB(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not be sent")
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := db.Fetch(ctx, "p1")
	assert.ErrorIs(t, err, context.Canceled)
}
