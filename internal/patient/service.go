package patient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/wanderguard/internal/risk"
)

const (
	alertTitle = "🚨 Wandering Alert"

	reasonInvalidRequest = "invalid_request"
	reasonNotFound       = "not_found"
	reasonFetchFailed    = "fetch_failed"

	defaultDeliveryTimeout = 30 * time.Second
)

// Request is one scoring request for a patient.
type Request struct {
	PatientID  string
	Telemetry  risk.Telemetry
	PrevLevel  risk.Level
	Feedback   risk.FeedbackLabel
	FeedbackID string
}

// Service orchestrates the store, the risk engine and the outbound
// collaborators for a single request at a time.
type Service struct {
	store     Store
	engine    *risk.Engine
	notifier  Notifier
	publisher Publisher
	recorder  Recorder
	log       logrus.FieldLogger
	now       func() time.Time
	newID     func() string

	deliveryTimeout time.Duration
	deliveries      sync.WaitGroup
}

// Option customizes a Service.
type Option func(*Service)

// WithNotifier sets the push notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithPublisher sets the verdict event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides how alert and feedback IDs are generated.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// WithDeliveryTimeout bounds each background push or event publish.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.deliveryTimeout = d
		}
	}
}

// NewService creates a new Service.
func NewService(store Store, engine *risk.Engine, opts ...Option) *Service {
	s := &Service{
		store:     store,
		engine:    engine,
		notifier:  noopNotifier{},
		publisher: noopPublisher{},
		recorder:  noopRecorder{},
		log:       logrus.StandardLogger(),
		now:       time.Now,
		newID:     uuid.NewString,

		deliveryTimeout: defaultDeliveryTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Predict scores one observation. It never fails: an absent or unreadable
// patient yields the default verdict with no state change, and failures of
// the store writes are logged and do not alter the verdict. Push delivery and
// event publishing run in the background and never delay the verdict.
func (s *Service) Predict(ctx context.Context, req Request) risk.Verdict {
	log := s.log.WithField("patient", req.PatientID)
	if req.PatientID == "" {
		s.recorder.DefaultVerdict(reasonInvalidRequest)
		log.Info("default verdict: missing patient id")
		return risk.DefaultVerdict()
	}

	rec, err := s.store.Fetch(ctx, req.PatientID)
	if err != nil {
		reason := reasonFetchFailed
		if errors.Is(err, ErrNotFound) {
			reason = reasonNotFound
		} else {
			s.recorder.CollaboratorFailure("fetch")
		}
		s.recorder.DefaultVerdict(reason)
		log.WithError(err).WithField("reason", reason).Info("default verdict: no usable patient record")
		return risk.DefaultVerdict()
	}
	if len(rec.Malformed) > 0 {
		log.WithField("sections", rec.Malformed).Warn("malformed patient sections reset to defaults")
	}

	now := s.now()
	params := s.engine.Params()
	learning := rec.LearningFor(req.Telemetry)
	label, feedbackID, pending := s.resolveFeedback(req, rec, learning)

	out := s.engine.Evaluate(risk.Input{
		Telemetry:  req.Telemetry,
		Learning:   learning,
		History:    rec.RiskHistory,
		Heatmap:    rec.ZoneHeatmap,
		SafeRadius: rec.SafeRadiusOr(params.DefaultSafeRadius),
		PrevLevel:  req.PrevLevel,
		Feedback:   label,
		Now:        now,
	})
	if out.FeedbackApplied && feedbackID != "" {
		out.Learning.LastFeedbackID = feedbackID
	}

	update := Update{Learning: out.Learning, ZoneHeatmap: out.Heatmap, RiskHistory: out.History}
	if err := s.store.Persist(ctx, req.PatientID, update); err != nil {
		s.recorder.CollaboratorFailure("persist")
		log.WithError(err).Warn("failed to persist learning state")
	} else if pending != "" {
		if err := s.store.AckFeedback(ctx, req.PatientID, pending); err != nil {
			s.recorder.CollaboratorFailure("ack_feedback")
			log.WithError(err).WithField("feedback", pending).Warn("failed to acknowledge feedback")
		}
	}

	verdict := out.Verdict
	if verdict.TriggerAlert {
		s.recorder.AlertTriggered()
		s.raiseAlert(ctx, log, req.PatientID, rec.FCMToken, verdict, now)
	}

	ev := VerdictEvent{
		PatientID:    req.PatientID,
		RiskScore:    verdict.Score,
		RiskLevel:    verdict.Level,
		TriggerAlert: verdict.TriggerAlert,
		ZoneKey:      out.ZoneKey,
		Timestamp:    now.UTC(),
	}
	s.deliver(ctx, func(ctx context.Context) {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.recorder.CollaboratorFailure("publish")
			log.WithError(err).Warn("failed to publish verdict event")
		}
	})

	s.recorder.ObservePrediction(verdict.Level, verdict.Score)
	log.WithFields(logrus.Fields{
		"risk_level": verdict.Level,
		"risk":       verdict.Score,
		"trigger":    verdict.TriggerAlert,
		"feedback":   out.FeedbackApplied,
	}).Info("prediction completed")
	return verdict
}

// deliver runs fn in the background, detached from the request's
// cancellation and bounded by the delivery timeout.
func (s *Service) deliver(ctx context.Context, fn func(context.Context)) {
	ctx = context.WithoutCancel(ctx)
	s.deliveries.Add(1)
	go func() {
		defer s.deliveries.Done()
		ctx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until every background push and publish has finished.
func (s *Service) Wait() {
	s.deliveries.Wait()
}

// Reject answers a request that could not be parsed with the default verdict.
func (s *Service) Reject(reason string) risk.Verdict {
	s.recorder.DefaultVerdict(reasonInvalidRequest)
	s.log.WithField("reason", reason).Info("default verdict: invalid request")
	return risk.DefaultVerdict()
}

// resolveFeedback picks the feedback to apply: an inline label wins over the
// stored pending one. Feedback whose ID was already folded in is skipped. The
// returned pending ID is the stored feedback that must be acknowledged.
func (s *Service) resolveFeedback(req Request, rec *Record, learning *risk.Learning) (risk.FeedbackLabel, string, string) {
	var applied string
	if learning != nil {
		applied = learning.LastFeedbackID
	}

	var pending string
	if rec.PendingFeedback != nil {
		pending = rec.PendingFeedback.ID
	}

	if label, ok := risk.ParseFeedback(string(req.Feedback)); ok {
		if req.FeedbackID != "" && req.FeedbackID == applied {
			return risk.FeedbackNone, "", ""
		}
		if req.FeedbackID != "" && req.FeedbackID == pending {
			return label, req.FeedbackID, pending
		}
		return label, req.FeedbackID, ""
	}

	if rec.PendingFeedback == nil {
		return risk.FeedbackNone, "", ""
	}
	label, ok := risk.ParseFeedback(string(rec.PendingFeedback.Label))
	if !ok || pending == "" || pending == applied {
		// Nothing to apply, but the flag still has to be cleared.
		return risk.FeedbackNone, "", pending
	}
	return label, pending, pending
}

func (s *Service) raiseAlert(ctx context.Context, log logrus.FieldLogger, patientID, token string, v risk.Verdict, now time.Time) {
	alert := NewAlert(s.newID(), v, now.Unix())
	if err := s.store.AppendAlert(ctx, patientID, alert); err != nil {
		s.recorder.CollaboratorFailure("append_alert")
		log.WithError(err).Warn("failed to append alert record")
	}

	if token == "" {
		log.Info("alert raised without a registered device token")
		return
	}
	body := fmt.Sprintf("High risk detected (%.2f)", v.Score)
	s.deliver(ctx, func(ctx context.Context) {
		if err := s.notifier.SendPush(ctx, token, alertTitle, body); err != nil {
			s.recorder.CollaboratorFailure("push")
			log.WithError(err).Warn("push notification failed")
		}
	})
}

// SubmitFeedback stores a caretaker label so the next prediction folds it
// into the patient's weights.
func (s *Service) SubmitFeedback(ctx context.Context, patientID, label string) (Feedback, error) {
	parsed, ok := risk.ParseFeedback(label)
	if !ok {
		return Feedback{}, fmt.Errorf("%w: %q", ErrInvalidFeedback, label)
	}
	if _, err := s.store.Fetch(ctx, patientID); err != nil {
		return Feedback{}, err
	}

	fb := Feedback{ID: s.newID(), Label: parsed, SubmittedAt: s.now().Unix()}
	if err := s.store.SubmitFeedback(ctx, patientID, fb); err != nil {
		return Feedback{}, fmt.Errorf("store feedback: %w", err)
	}
	s.log.WithFields(logrus.Fields{"patient": patientID, "feedback": fb.ID, "label": fb.Label}).Info("feedback submitted")
	return fb, nil
}
