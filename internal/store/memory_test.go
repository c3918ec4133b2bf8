package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/wanderguard/internal/patient"
	"github.com/i474232898/wanderguard/internal/risk"
)

func sampleUpdate(at int64) patient.Update {
	return patient.Update{
		Learning: risk.Learning{
			Weights:     risk.Weights{Distance: 0.499, Time: 0.309, Speed: 0.192},
			AvgSpeed:    1.04,
			AvgDistance: 90,
			Samples:     5,
			LastUpdated: at,
		},
		ZoneHeatmap: risk.ZoneHeatmap{{Key: "12,972_77,595", Visits: 1}},
		RiskHistory: risk.RiskHistory{{At: at, Score: 1}},
	}
}

func TestMemoryStoreFetchMissing(t *testing.T) {
	s := NewMemoryStore(10, 0)
	_, err := s.Fetch(context.Background(), "ghost")
	assert.ErrorIs(t, err, patient.ErrNotFound)

	s.SeedRaw("empty", []byte(`{}`))
	_, err = s.Fetch(context.Background(), "empty")
	assert.ErrorIs(t, err, patient.ErrNotFound)
}

func TestMemoryStorePersistKeepsOtherFields(t *testing.T) {
	s := NewMemoryStore(10, 0)
	ctx := context.Background()
	radius := 150.0
	require.NoError(t, s.Seed("p1", &patient.Record{SafeRadius: &radius, FCMToken: "tok"}))

	require.NoError(t, s.Persist(ctx, "p1", sampleUpdate(100)))

	rec, err := s.Fetch(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 150.0, rec.SafeRadiusOr(200))
	assert.Equal(t, "tok", rec.FCMToken)
	require.NotNil(t, rec.Learning)
	assert.Equal(t, 5, *rec.Learning.Samples)
	assert.Equal(t, risk.RiskHistory{{At: 100, Score: 1}}, rec.RiskHistory)
	assert.Equal(t, risk.ZoneHeatmap{{Key: "12,972_77,595", Visits: 1}}, rec.ZoneHeatmap)
}

func TestMemoryStoreWritesKeepUnknownFields(t *testing.T) {
	s := NewMemoryStore(10, 0)
	ctx := context.Background()
	s.SeedRaw("p1", []byte(`{"name":"Ada","caretakerId":"c9","safeRadius":150}`))

	require.NoError(t, s.Persist(ctx, "p1", sampleUpdate(100)))
	fb := patient.Feedback{ID: "f1", Label: risk.FeedbackFalseAlarm, SubmittedAt: 1}
	require.NoError(t, s.SubmitFeedback(ctx, "p1", fb))
	require.NoError(t, s.AckFeedback(ctx, "p1", "f1"))

	doc, ok := s.Document("p1")
	require.True(t, ok)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(doc, &fields))
	assert.JSONEq(t, `"Ada"`, string(fields["name"]))
	assert.JSONEq(t, `"c9"`, string(fields["caretakerId"]))
	assert.JSONEq(t, `150`, string(fields["safeRadius"]))
	assert.Contains(t, fields, "learning")
	assert.Contains(t, fields, "zoneHeatmap")
	assert.Contains(t, fields, "riskHistory")
	assert.NotContains(t, fields, "pendingFeedback")
}

func TestMemoryStoreAckOnMissingPatientIsNoop(t *testing.T) {
	s := NewMemoryStore(10, 0)
	require.NoError(t, s.AckFeedback(context.Background(), "ghost", "f1"))
	_, ok := s.Document("ghost")
	assert.False(t, ok)
}

func TestMemoryStoreFetchReturnsCopy(t *testing.T) {
	s := NewMemoryStore(10, 0)
	ctx := context.Background()
	require.NoError(t, s.Persist(ctx, "p1", sampleUpdate(100)))

	rec, err := s.Fetch(ctx, "p1")
	require.NoError(t, err)
	rec.RiskHistory[0].Score = 0

	again, err := s.Fetch(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1.0, again.RiskHistory[0].Score)
}

func TestMemoryStoreFeedbackLifecycle(t *testing.T) {
	s := NewMemoryStore(10, 0)
	ctx := context.Background()
	require.NoError(t, s.Seed("p1", &patient.Record{FCMToken: "tok"}))

	fb := patient.Feedback{ID: "f1", Label: risk.FeedbackFalseAlarm, SubmittedAt: 1}
	require.NoError(t, s.SubmitFeedback(ctx, "p1", fb))

	// A stale ack leaves the newer label alone.
	require.NoError(t, s.AckFeedback(ctx, "p1", "f0"))
	rec, err := s.Fetch(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, rec.PendingFeedback)
	assert.Equal(t, fb, *rec.PendingFeedback)

	require.NoError(t, s.AckFeedback(ctx, "p1", "f1"))
	rec, err = s.Fetch(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, rec.PendingFeedback)
}

func TestMemoryStoreAlertRetention(t *testing.T) {
	s := NewMemoryStore(2, 0)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		a := patient.Alert{ID: string(rune('a' + i)), Timestamp: int64(i), Active: true}
		require.NoError(t, s.AppendAlert(ctx, "p1", a))
	}

	alerts := s.Alerts("p1")
	require.Len(t, alerts, 2)
	assert.Equal(t, int64(2), alerts[0].Timestamp)
	assert.Equal(t, int64(3), alerts[1].Timestamp)
	assert.Nil(t, s.Alerts("ghost"))
}

func TestMemoryStoreAlertAgeRetention(t *testing.T) {
	s := NewMemoryStore(0, time.Hour)
	ctx := context.Background()
	now := time.Now().Unix()

	require.NoError(t, s.AppendAlert(ctx, "p1", patient.Alert{ID: "old", Timestamp: now - 7200}))
	require.NoError(t, s.AppendAlert(ctx, "p1", patient.Alert{ID: "new", Timestamp: now}))

	alerts := s.Alerts("p1")
	require.Len(t, alerts, 1)
	assert.Equal(t, "new", alerts[0].ID)
}
