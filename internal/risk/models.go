package risk

import (
	"strings"
	"time"
)

// Level is the three-tier classification derived from a risk score.
type Level string

const (
	LevelUnknown Level = ""
	LevelNormal  Level = "normal"
	LevelWarning Level = "warning"
	LevelAlert   Level = "alert"
)

// ParseLevel maps a caller-supplied label onto a Level. Unrecognized labels
// map to LevelUnknown, which is never treated as alert.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelNormal:
		return LevelNormal
	case LevelWarning:
		return LevelWarning
	case LevelAlert:
		return LevelAlert
	default:
		return LevelUnknown
	}
}

// LightLevel describes ambient light around the patient.
type LightLevel string

const (
	LightLow    LightLevel = "low"
	LightNormal LightLevel = "normal"
	LightHigh   LightLevel = "high"
)

// FeedbackLabel is a caretaker verdict on a previous alert.
type FeedbackLabel string

const (
	FeedbackNone         FeedbackLabel = ""
	FeedbackFalseAlarm   FeedbackLabel = "false_alarm"
	FeedbackCorrectAlert FeedbackLabel = "correct_alert"
)

// ParseFeedback returns the label and whether it is one the corrector understands.
func ParseFeedback(s string) (FeedbackLabel, bool) {
	switch FeedbackLabel(strings.ToLower(strings.TrimSpace(s))) {
	case FeedbackFalseAlarm:
		return FeedbackFalseAlarm, true
	case FeedbackCorrectAlert:
		return FeedbackCorrectAlert, true
	default:
		return FeedbackNone, false
	}
}

// Telemetry is a single observation reported by the patient's device.
type Telemetry struct {
	Distance    float64       // meters from the safe zone centre
	TimeOutside time.Duration // time spent outside the safe zone
	Speed       float64       // units per reporting interval
	Latitude    float64
	Longitude   float64
	Battery     float64 // percent, 0-100
	IsRaining   bool
	Light       LightLevel
}

// Weights is the per-patient feature weighting. After any adaptation the
// components sum to 1.
type Weights struct {
	Distance float64 `json:"distance"`
	Time     float64 `json:"time"`
	Speed    float64 `json:"speed"`
}

// Sum returns the total of all components.
func (w Weights) Sum() float64 {
	return w.Distance + w.Time + w.Speed
}

// Features are the normalized telemetry values fed to the aggregator.
type Features struct {
	Distance float64 `json:"distance"`
	Time     float64 `json:"time"`
	Speed    float64 `json:"speed"`
}

// Boosts are the additive, non-learned terms of a risk score.
type Boosts struct {
	Night    float64 `json:"night"`
	Context  float64 `json:"context"`
	Trend    float64 `json:"trend"`
	Zone     float64 `json:"zone"`
	Geofence float64 `json:"geofence"`
}

// Total sums every boost.
func (b Boosts) Total() float64 {
	return b.Night + b.Context + b.Trend + b.Zone + b.Geofence
}

// Learning holds the slowly adapting per-patient parameters.
type Learning struct {
	Weights        Weights `json:"weights"`
	AvgSpeed       float64 `json:"avgSpeed"`
	AvgDistance    float64 `json:"avgDistance"`
	Samples        int     `json:"samples"`
	LastUpdated    int64   `json:"lastUpdated,omitempty"`
	LastFeedbackID string  `json:"lastFeedbackId,omitempty"`
}

// Verdict is the risk outcome returned to callers.
type Verdict struct {
	Score        float64 `json:"riskScore"`
	Level        Level   `json:"riskLevel"`
	TriggerAlert bool    `json:"triggerAlert"`
}

// DefaultVerdict is returned whenever there is nothing to score.
func DefaultVerdict() Verdict {
	return Verdict{Score: 0, Level: LevelNormal, TriggerAlert: false}
}

// Input is everything one evaluation needs. Learning may be nil when the
// patient has no prior learning state.
type Input struct {
	Telemetry  Telemetry
	Learning   *Learning
	History    RiskHistory
	Heatmap    ZoneHeatmap
	SafeRadius float64
	PrevLevel  Level
	Feedback   FeedbackLabel
	Now        time.Time
}

// Output is the verdict plus the updated state to hand back for persistence.
type Output struct {
	Verdict         Verdict     `json:"verdict"`
	Learning        Learning    `json:"learning"`
	History         RiskHistory `json:"riskHistory"`
	Heatmap         ZoneHeatmap `json:"zoneHeatmap"`
	ZoneKey         string      `json:"zoneKey"`
	BaseRisk        float64     `json:"baseRisk"`
	Features        Features    `json:"features"`
	Boosts          Boosts      `json:"boosts"`
	FeedbackApplied bool        `json:"feedbackApplied"`
}
