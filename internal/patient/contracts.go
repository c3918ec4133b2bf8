package patient

import (
	"context"
	"time"

	"github.com/i474232898/wanderguard/internal/risk"
)

// Store is the contract every patient store (remote or local) must satisfy.
type Store interface {
	// Fetch returns ErrNotFound when the patient is absent.
	Fetch(ctx context.Context, patientID string) (*Record, error)
	// Persist merges the update into the stored record.
	Persist(ctx context.Context, patientID string, u Update) error
	AppendAlert(ctx context.Context, patientID string, a Alert) error
	// AckFeedback clears the pending feedback if it still carries feedbackID.
	AckFeedback(ctx context.Context, patientID, feedbackID string) error
	SubmitFeedback(ctx context.Context, patientID string, fb Feedback) error
}

// Notifier delivers push notifications to a caretaker device.
type Notifier interface {
	SendPush(ctx context.Context, deviceToken, title, body string) error
}

// VerdictEvent is published after every scored observation.
type VerdictEvent struct {
	PatientID    string     `json:"patientId"`
	RiskScore    float64    `json:"riskScore"`
	RiskLevel    risk.Level `json:"riskLevel"`
	TriggerAlert bool       `json:"triggerAlert"`
	ZoneKey      string     `json:"zoneKey"`
	Timestamp    time.Time  `json:"timestamp"`
}

// Publisher streams verdict events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, ev VerdictEvent) error
}

// Recorder receives service-level measurements.
type Recorder interface {
	ObservePrediction(level risk.Level, score float64)
	AlertTriggered()
	CollaboratorFailure(op string)
	DefaultVerdict(reason string)
}

type noopNotifier struct{}

func (noopNotifier) SendPush(context.Context, string, string, string) error { return nil }

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, VerdictEvent) error { return nil }

type noopRecorder struct{}

func (noopRecorder) ObservePrediction(risk.Level, float64) {}
func (noopRecorder) AlertTriggered()                       {}
func (noopRecorder) CollaboratorFailure(string)            {}
func (noopRecorder) DefaultVerdict(string)                 {}
