package patient

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/i474232898/wanderguard/internal/risk"
)

var (
	// ErrNotFound is returned when a patient record is absent or unusable.
	ErrNotFound = errors.New("patient record not found")
	// ErrInvalidFeedback is returned for labels the corrector does not know.
	ErrInvalidFeedback = errors.New("invalid feedback label")
)

// Record is the stored patient document as far as risk scoring is concerned.
type Record struct {
	SafeRadius      *float64         `json:"safeRadius,omitempty"`
	FCMToken        string           `json:"fcmToken,omitempty"`
	Learning        *LearningDoc     `json:"learning,omitempty"`
	ZoneHeatmap     risk.ZoneHeatmap `json:"zoneHeatmap,omitempty"`
	RiskHistory     risk.RiskHistory `json:"riskHistory,omitempty"`
	PendingFeedback *Feedback        `json:"pendingFeedback,omitempty"`

	// Malformed lists sections that could not be decoded and were reset.
	Malformed []string `json:"-"`
}

// LearningDoc is the stored learning section. Absent fields are nil so the
// first observation can seed them.
type LearningDoc struct {
	Weights        *risk.Weights `json:"weights,omitempty"`
	AvgSpeed       *float64      `json:"avgSpeed,omitempty"`
	AvgDistance    *float64      `json:"avgDistance,omitempty"`
	Samples        *int          `json:"samples,omitempty"`
	LastUpdated    int64         `json:"lastUpdated,omitempty"`
	LastFeedbackID string        `json:"lastFeedbackId,omitempty"`
}

// Feedback is a caretaker label waiting to be folded into the weights.
type Feedback struct {
	ID          string             `json:"id"`
	Label       risk.FeedbackLabel `json:"label"`
	SubmittedAt int64              `json:"submittedAt"`
}

// Update is the partial document written back after an evaluation.
type Update struct {
	Learning    risk.Learning    `json:"learning"`
	ZoneHeatmap risk.ZoneHeatmap `json:"zoneHeatmap"`
	RiskHistory risk.RiskHistory `json:"riskHistory"`
}

// Alert is the record appended when a patient transitions into alert.
type Alert struct {
	ID           string     `json:"-"`
	RiskScore    float64    `json:"riskScore"`
	RiskLevel    risk.Level `json:"riskLevel"`
	Timestamp    int64      `json:"timestamp"`
	Active       bool       `json:"active"`
	Acknowledged bool       `json:"acknowledged"`
	SnoozedUntil *int64     `json:"snoozedUntil"`
}

// NewAlert builds an active, unacknowledged alert for a verdict.
func NewAlert(id string, v risk.Verdict, at int64) Alert {
	return Alert{
		ID:        id,
		RiskScore: v.Score,
		RiskLevel: v.Level,
		Timestamp: at,
		Active:    true,
	}
}

// DecodeRecord parses a stored patient document. A missing, null, empty or
// non-object document is ErrNotFound. Sections that fail to decode are reset
// to "no prior state" and listed in Record.Malformed.
func DecodeRecord(data []byte) (*Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrNotFound
	}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &sections); err != nil || len(sections) == 0 {
		return nil, ErrNotFound
	}

	rec := &Record{}
	decode := func(name string, dst any) {
		raw, ok := sections[name]
		if !ok {
			return
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			rec.Malformed = append(rec.Malformed, name)
		}
	}
	decode("safeRadius", &rec.SafeRadius)
	decode("fcmToken", &rec.FCMToken)
	decode("learning", &rec.Learning)
	decode("zoneHeatmap", &rec.ZoneHeatmap)
	decode("riskHistory", &rec.RiskHistory)
	decode("pendingFeedback", &rec.PendingFeedback)

	for _, name := range rec.Malformed {
		switch name {
		case "safeRadius":
			rec.SafeRadius = nil
		case "learning":
			rec.Learning = nil
		case "zoneHeatmap":
			rec.ZoneHeatmap = nil
		case "riskHistory":
			rec.RiskHistory = nil
		case "pendingFeedback":
			rec.PendingFeedback = nil
		}
	}
	return rec, nil
}

// SafeRadiusOr returns the configured radius or def when none is stored.
func (r *Record) SafeRadiusOr(def float64) float64 {
	if r.SafeRadius == nil {
		return def
	}
	return *r.SafeRadius
}

// LearningFor converts the stored learning section into engine state, filling
// missing running means from the current observation. A record without
// learning yields nil.
func (r *Record) LearningFor(t risk.Telemetry) *risk.Learning {
	if r.Learning == nil {
		return nil
	}
	doc := r.Learning
	l := &risk.Learning{
		AvgSpeed:       t.Speed,
		AvgDistance:    t.Distance,
		LastUpdated:    doc.LastUpdated,
		LastFeedbackID: doc.LastFeedbackID,
	}
	if doc.Weights != nil {
		l.Weights = *doc.Weights
	}
	if doc.AvgSpeed != nil {
		l.AvgSpeed = *doc.AvgSpeed
	}
	if doc.AvgDistance != nil {
		l.AvgDistance = *doc.AvgDistance
	}
	if doc.Samples != nil {
		l.Samples = *doc.Samples
	}
	return l
}
