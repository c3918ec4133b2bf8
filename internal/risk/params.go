package risk

import (
	"errors"
	"fmt"
	"time"
)

// ZoneMode selects how visit counts translate into a zone boost.
type ZoneMode string

const (
	// ZoneModeNovelty boosts unseen and rarely visited zones.
	ZoneModeNovelty ZoneMode = "novelty"
	// ZoneModeLinear adds a small boost proportional to the visit count.
	ZoneModeLinear ZoneMode = "linear"
)

// Eviction selects which heatmap entries are dropped once the cap is exceeded.
type Eviction string

const (
	// EvictLeastVisited keeps the most visited zones.
	EvictLeastVisited Eviction = "frequency"
	// EvictOldest keeps the most recently inserted zones.
	EvictOldest Eviction = "insertion"
)

// Step is one tier of a step function: a boost applied once a value crosses
// Threshold.
type Step struct {
	Threshold float64
	Boost     float64
}

// Params holds every policy constant of the risk engine. Deployments diverge
// only in these values.
type Params struct {
	// Normalizer.
	DistanceSaturation float64       // multiple of the safe radius at which distance saturates
	TimeSaturation     time.Duration // time outside at which the time feature saturates
	SpeedMultiple      float64       // multiple of the average speed at which speed reaches 1
	SpeedCap           float64
	SpeedNeutral       float64 // used when no average speed is known

	// Weight adapter and feedback corrector.
	LearningRate      float64
	DistanceDivisor   float64 // meters
	TimeDivisor       time.Duration
	SpeedDivisor      float64
	WeightFloor       float64
	WeightDecimals    int
	FeedbackDelta     float64
	DefaultWeights    Weights
	DefaultSafeRadius float64
	MinSafeRadius     float64

	// Night boost. Windows are [start, end) in local hours and may wrap midnight.
	NightStartHour int
	NightEndHour   int
	NightBoost     float64
	DuskStartHour  int
	DuskBoost      float64

	// Context boost.
	BatteryTiers  []Step // battery at or below Threshold, highest boost first
	RainBoost     float64
	LowLightBoost float64

	// Trend boost.
	TrendMinHistory int
	TrendTiers      []Step // delta above Threshold, largest threshold first

	// Zone boost.
	ZoneMode           ZoneMode
	ZonePrecision      int
	ZoneUnseenBoost    float64
	ZoneVisitTiers     []Step // visits strictly below Threshold, smallest threshold first
	ZoneLinearPerVisit float64
	ZoneLinearCap      float64

	// Geofence overshoot boost.
	GeofenceEnabled bool
	GeofenceTiers   []Step // distance/safeRadius above Threshold, largest first

	// State caps.
	HistoryCap      int
	HeatmapCap      int
	HeatmapEviction Eviction

	// Classifier.
	WarningThreshold float64
	AlertThreshold   float64
	ScoreDecimals    int
}

// DefaultParams returns the policy of the reference deployment.
func DefaultParams() Params {
	return Params{
		DistanceSaturation: 1.0,
		TimeSaturation:     5 * time.Minute,
		SpeedMultiple:      1.0,
		SpeedCap:           1.5,
		SpeedNeutral:       0.5,

		LearningRate:      0.02,
		DistanceDivisor:   100,
		TimeDivisor:       5 * time.Minute,
		SpeedDivisor:      2,
		WeightFloor:       0.05,
		WeightDecimals:    3,
		FeedbackDelta:     0.05,
		DefaultWeights:    Weights{Distance: 0.5, Time: 0.3, Speed: 0.2},
		DefaultSafeRadius: 200,
		MinSafeRadius:     1,

		NightStartHour: 22,
		NightEndHour:   5,
		NightBoost:     0.25,
		DuskStartHour:  20,
		DuskBoost:      0.15,

		BatteryTiers:  []Step{{Threshold: 20, Boost: 0.15}, {Threshold: 40, Boost: 0.08}},
		RainBoost:     0.12,
		LowLightBoost: 0.10,

		TrendMinHistory: 2,
		TrendTiers:      []Step{{Threshold: 0.25, Boost: 0.2}, {Threshold: 0.15, Boost: 0.1}},

		ZoneMode:           ZoneModeNovelty,
		ZonePrecision:      3,
		ZoneUnseenBoost:    0.2,
		ZoneVisitTiers:     []Step{{Threshold: 3, Boost: 0.15}, {Threshold: 10, Boost: 0.05}},
		ZoneLinearPerVisit: 0.01,
		ZoneLinearCap:      0.1,

		GeofenceEnabled: true,
		GeofenceTiers:   []Step{{Threshold: 1.5, Boost: 0.25}, {Threshold: 1.0, Boost: 0.15}},

		HistoryCap:      5,
		HeatmapCap:      50,
		HeatmapEviction: EvictLeastVisited,

		WarningThreshold: 0.6,
		AlertThreshold:   0.8,
		ScoreDecimals:    2,
	}
}

var errInvalidParams = errors.New("invalid risk params")

// Validate checks that the params describe a usable policy.
func (p Params) Validate() error {
	switch {
	case p.DistanceSaturation <= 0:
		return fmt.Errorf("%w: distance saturation must be positive", errInvalidParams)
	case p.TimeSaturation <= 0:
		return fmt.Errorf("%w: time saturation must be positive", errInvalidParams)
	case p.SpeedMultiple <= 0 || p.SpeedCap <= 0:
		return fmt.Errorf("%w: speed multiple and cap must be positive", errInvalidParams)
	case p.SpeedNeutral < 0:
		return fmt.Errorf("%w: speed neutral must not be negative", errInvalidParams)
	case p.LearningRate < 0:
		return fmt.Errorf("%w: learning rate must not be negative", errInvalidParams)
	case p.DistanceDivisor <= 0 || p.TimeDivisor <= 0 || p.SpeedDivisor <= 0:
		return fmt.Errorf("%w: weight divisors must be positive", errInvalidParams)
	case p.WeightFloor < 0 || 3*p.WeightFloor >= 1:
		return fmt.Errorf("%w: weight floor must be in [0, 1/3)", errInvalidParams)
	case p.WeightDecimals < 2 || p.ScoreDecimals < 0:
		return fmt.Errorf("%w: weights need at least 2 decimals", errInvalidParams)
	case p.DefaultSafeRadius <= 0 || p.MinSafeRadius <= 0:
		return fmt.Errorf("%w: safe radius defaults must be positive", errInvalidParams)
	case !validHour(p.NightStartHour) || !validHour(p.NightEndHour) || !validHour(p.DuskStartHour):
		return fmt.Errorf("%w: hours must be within 0-23", errInvalidParams)
	case p.HistoryCap <= 0 || p.HeatmapCap <= 0:
		return fmt.Errorf("%w: history and heatmap caps must be positive", errInvalidParams)
	case p.HeatmapEviction != EvictLeastVisited && p.HeatmapEviction != EvictOldest:
		return fmt.Errorf("%w: unknown heatmap eviction %q", errInvalidParams, p.HeatmapEviction)
	case p.ZoneMode != ZoneModeNovelty && p.ZoneMode != ZoneModeLinear:
		return fmt.Errorf("%w: unknown zone mode %q", errInvalidParams, p.ZoneMode)
	case p.ZonePrecision < 0:
		return fmt.Errorf("%w: zone precision must not be negative", errInvalidParams)
	case p.WarningThreshold <= 0 || p.AlertThreshold <= p.WarningThreshold || p.AlertThreshold > 1:
		return fmt.Errorf("%w: thresholds must satisfy 0 < warning < alert <= 1", errInvalidParams)
	}
	if !validWeights(p.DefaultWeights) {
		return fmt.Errorf("%w: default weights must be non-negative and sum to 1", errInvalidParams)
	}
	return nil
}

func validHour(h int) bool {
	return h >= 0 && h <= 23
}
