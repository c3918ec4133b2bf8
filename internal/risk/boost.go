package risk

import (
	"math"
	"time"
)

// NightBoost is a step function of the local hour: NightBoost inside the
// nocturnal window, DuskBoost in the dusk window leading up to it.
func NightBoost(now time.Time, p Params) float64 {
	h := now.Hour()
	switch {
	case inWindow(h, p.NightStartHour, p.NightEndHour):
		return p.NightBoost
	case inWindow(h, p.DuskStartHour, p.NightStartHour):
		return p.DuskBoost
	}
	return 0
}

// inWindow reports whether hour h is in [start, end), wrapping past midnight
// when start > end.
func inWindow(h, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}

// ContextBoost sums the environmental contributions: low battery (tiered),
// rain and low ambient light.
func ContextBoost(t Telemetry, p Params) float64 {
	var boost float64
	for _, tier := range p.BatteryTiers {
		if t.Battery <= tier.Threshold {
			boost += tier.Boost
			break
		}
	}
	if t.IsRaining {
		boost += p.RainBoost
	}
	if t.Light == LightLow {
		boost += p.LowLightBoost
	}
	return boost
}

// TrendBoost compares the new base risk against the most recent recorded
// score and rewards sharp increases.
func TrendBoost(history RiskHistory, base float64, p Params) float64 {
	if len(history) == 0 || len(history) < p.TrendMinHistory {
		return 0
	}
	last, _ := history.Last()
	return stepAbove(base-last.Score, p.TrendTiers)
}

// ZoneBoost scores how familiar the quantized location is. In novelty mode
// unseen and rarely visited zones score highest; in linear mode the boost
// grows with visits up to ZoneLinearCap.
func ZoneBoost(heatmap ZoneHeatmap, key string, p Params) float64 {
	visits, seen := heatmap.Visits(key)
	if p.ZoneMode == ZoneModeLinear {
		return math.Min(float64(visits)*p.ZoneLinearPerVisit, p.ZoneLinearCap)
	}
	if !seen {
		return p.ZoneUnseenBoost
	}
	for _, tier := range p.ZoneVisitTiers {
		if float64(visits) < tier.Threshold {
			return tier.Boost
		}
	}
	return 0
}

// GeofenceBoost adds a boost when the raw distance overshoots the safe radius,
// independent of the saturated distance feature.
func GeofenceBoost(distance, safeRadius float64, p Params) float64 {
	if !p.GeofenceEnabled || safeRadius <= 0 {
		return 0
	}
	return stepAbove(distance/safeRadius, p.GeofenceTiers)
}

// stepAbove returns the boost of the first tier whose threshold v exceeds.
func stepAbove(v float64, tiers []Step) float64 {
	for _, tier := range tiers {
		if v > tier.Threshold {
			return tier.Boost
		}
	}
	return 0
}
