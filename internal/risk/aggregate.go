package risk

import (
	"math"

	"github.com/i474232898/wanderguard/internal/common"
)

// BaseRisk is the weighted sum of the normalized features.
func BaseRisk(w Weights, f Features) float64 {
	return w.Distance*f.Distance + w.Time*f.Time + w.Speed*f.Speed
}

// Aggregate adds the boosts to the base risk, saturates at 1 and rounds to
// ScoreDecimals.
func Aggregate(base float64, b Boosts, p Params) float64 {
	total := base + b.Total()
	if math.IsNaN(total) {
		return 0
	}
	total = math.Max(0, math.Min(total, 1.0))
	return common.Round(total, p.ScoreDecimals)
}

// Classify maps a score onto a risk level using strict thresholds.
func Classify(score float64, p Params) Level {
	switch {
	case score > p.AlertThreshold:
		return LevelAlert
	case score > p.WarningThreshold:
		return LevelWarning
	default:
		return LevelNormal
	}
}

// ShouldTriggerAlert reports a transition into alert.
func ShouldTriggerAlert(prev, next Level) bool {
	return prev != LevelAlert && next == LevelAlert
}
