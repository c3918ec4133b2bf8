package risk

import (
	"math"
	"time"

	"github.com/i474232898/wanderguard/internal/common"
)

// NormalizeDistance returns distance as a fraction of the saturation distance
// (DistanceSaturation × safeRadius), clamped to 1.
func NormalizeDistance(distance, safeRadius float64, p Params) float64 {
	if safeRadius <= 0 || p.DistanceSaturation <= 0 {
		return 0
	}
	return math.Min(common.NonNegative(distance)/(safeRadius*p.DistanceSaturation), 1.0)
}

// NormalizeTime returns time outside as a fraction of TimeSaturation, clamped to 1.
func NormalizeTime(timeOutside time.Duration, p Params) float64 {
	if p.TimeSaturation <= 0 || timeOutside <= 0 {
		return 0
	}
	return math.Min(float64(timeOutside)/float64(p.TimeSaturation), 1.0)
}

// NormalizeSpeed returns speed relative to SpeedMultiple × avgSpeed, clamped to
// SpeedCap. Without a usable average the neutral value is returned.
func NormalizeSpeed(speed, avgSpeed float64, p Params) float64 {
	if avgSpeed <= 0 || math.IsNaN(avgSpeed) || p.SpeedMultiple <= 0 {
		return p.SpeedNeutral
	}
	return math.Min(common.NonNegative(speed)/(avgSpeed*p.SpeedMultiple), p.SpeedCap)
}

// Normalize applies all three normalizers.
func Normalize(t Telemetry, safeRadius, avgSpeed float64, p Params) Features {
	return Features{
		Distance: NormalizeDistance(t.Distance, safeRadius, p),
		Time:     NormalizeTime(t.TimeOutside, p),
		Speed:    NormalizeSpeed(t.Speed, avgSpeed, p),
	}
}

// EffectiveSafeRadius floors a configured radius to the policy minimum.
func EffectiveSafeRadius(r float64, p Params) float64 {
	if math.IsNaN(r) || r < p.MinSafeRadius {
		return p.MinSafeRadius
	}
	return r
}
