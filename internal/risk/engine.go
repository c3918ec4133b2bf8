// Package risk computes a bounded wandering-risk score from live telemetry and
// per-patient learned parameters, and rolls that learning state forward.
//
// Everything here is a pure computation over the values passed in: the caller
// loads the patient's state, hands it to Evaluate, and persists the returned
// state itself.
package risk

import (
	"time"

	"github.com/i474232898/wanderguard/internal/common"
)

// Engine evaluates observations under a fixed policy.
type Engine struct {
	params Params
	loc    *time.Location
}

// NewEngine creates an Engine. loc is the zone used to read the hour of day
// for the night boost; nil means UTC.
func NewEngine(p Params, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{params: p, loc: loc}
}

// Params returns the engine's policy.
func (e *Engine) Params() Params {
	return e.params
}

// Evaluate runs the full pipeline for one observation: weight adaptation,
// optional feedback correction, normalization, boosts, aggregation,
// classification and the state updates. Input is never mutated.
func (e *Engine) Evaluate(in Input) Output {
	p := e.params
	t := sanitizeTelemetry(in.Telemetry)

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.In(e.loc)

	learning := NewLearning(t, p)
	if in.Learning != nil {
		learning = *in.Learning
	}
	weights := sanitizeWeights(learning.Weights, p)
	radius := EffectiveSafeRadius(in.SafeRadius, p)

	weights = AdaptWeights(weights, t, p)
	feedbackApplied := false
	if in.Feedback == FeedbackFalseAlarm || in.Feedback == FeedbackCorrectAlert {
		weights = ApplyFeedback(weights, in.Feedback, p)
		feedbackApplied = true
	}

	features := Normalize(t, radius, learning.AvgSpeed, p)
	base := BaseRisk(weights, features)

	key := ZoneKey(t.Latitude, t.Longitude, p.ZonePrecision)
	boosts := Boosts{
		Night:    NightBoost(now, p),
		Context:  ContextBoost(t, p),
		Trend:    TrendBoost(in.History, base, p),
		Zone:     ZoneBoost(in.Heatmap, key, p),
		Geofence: GeofenceBoost(t.Distance, radius, p),
	}

	score := Aggregate(base, boosts, p)
	level := Classify(score, p)

	return Output{
		Verdict: Verdict{
			Score:        score,
			Level:        level,
			TriggerAlert: ShouldTriggerAlert(in.PrevLevel, level),
		},
		Learning:        learning.Observe(t, weights, now),
		History:         in.History.Record(now.Unix(), score, p.HistoryCap),
		Heatmap:         in.Heatmap.Visit(key, p.HeatmapCap, p.HeatmapEviction),
		ZoneKey:         key,
		BaseRisk:        base,
		Features:        features,
		Boosts:          boosts,
		FeedbackApplied: feedbackApplied,
	}
}

func sanitizeTelemetry(t Telemetry) Telemetry {
	t.Distance = common.NonNegative(t.Distance)
	t.Speed = common.NonNegative(t.Speed)
	if t.TimeOutside < 0 {
		t.TimeOutside = 0
	}
	t.Battery = common.NonNegative(t.Battery)
	if t.Battery > 100 {
		t.Battery = 100
	}
	return t
}
