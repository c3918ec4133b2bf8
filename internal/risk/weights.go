package risk

import (
	"math"

	"github.com/i474232898/wanderguard/internal/common"
)

const weightTolerance = 1e-6

// AdaptWeights nudges each weight toward the magnitude of its feature in the
// latest observation, then floors and renormalizes the vector. It runs on
// every observation regardless of feedback.
func AdaptWeights(w Weights, t Telemetry, p Params) Weights {
	lr := p.LearningRate
	w.Distance += lr * common.NonNegative(t.Distance) / p.DistanceDivisor
	if t.TimeOutside > 0 {
		w.Time += lr * float64(t.TimeOutside) / float64(p.TimeDivisor)
	}
	w.Speed += lr * common.NonNegative(t.Speed) / p.SpeedDivisor
	return normalizeWeights(w, p)
}

// ApplyFeedback shifts the distance and time weights by FeedbackDelta: down on
// a false alarm, up on a confirmed alert. Unknown labels leave w untouched.
func ApplyFeedback(w Weights, label FeedbackLabel, p Params) Weights {
	var sign float64
	switch label {
	case FeedbackFalseAlarm:
		sign = -1
	case FeedbackCorrectAlert:
		sign = 1
	default:
		return w
	}
	w.Distance = math.Max(w.Distance+sign*p.FeedbackDelta, 0)
	w.Time = math.Max(w.Time+sign*p.FeedbackDelta, 0)
	return normalizeWeights(w, p)
}

// sanitizeWeights returns w if it is a usable vector and the defaults otherwise.
func sanitizeWeights(w Weights, p Params) Weights {
	if validWeights(w) {
		return w
	}
	for _, v := range []float64{w.Distance, w.Time, w.Speed} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return p.DefaultWeights
		}
	}
	if w.Sum() <= 0 {
		return p.DefaultWeights
	}
	// Positive but off-balance, e.g. written by an older client.
	return normalizeWeights(w, p)
}

func validWeights(w Weights) bool {
	for _, v := range []float64{w.Distance, w.Time, w.Speed} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return math.Abs(w.Sum()-1) <= weightTolerance
}

// normalizeWeights projects w onto the simplex with every component at least
// WeightFloor, then rounds to WeightDecimals while keeping the sum at 1.
func normalizeWeights(w Weights, p Params) Weights {
	v := [3]float64{
		common.NonNegative(w.Distance),
		common.NonNegative(w.Time),
		common.NonNegative(w.Speed),
	}
	floor := p.WeightFloor

	var fixed [3]bool
	for {
		nFixed, freeSum := 0, 0.0
		for i := range v {
			if fixed[i] {
				nFixed++
			} else {
				freeSum += v[i]
			}
		}
		budget := 1 - float64(nFixed)*floor
		nFree := len(v) - nFixed
		for i := range v {
			if fixed[i] {
				continue
			}
			if freeSum > 0 {
				v[i] = v[i] / freeSum * budget
			} else {
				v[i] = budget / float64(nFree)
			}
		}

		clamped := false
		for i := range v {
			if !fixed[i] && v[i] < floor {
				v[i] = floor
				fixed[i] = true
				clamped = true
			}
		}
		if !clamped {
			break
		}
	}

	largest := 0
	sum := 0.0
	for i := range v {
		v[i] = common.Round(v[i], p.WeightDecimals)
		sum += v[i]
		if v[i] > v[largest] {
			largest = i
		}
	}
	v[largest] = common.Round(v[largest]+(1-sum), p.WeightDecimals)

	return Weights{Distance: v[0], Time: v[1], Speed: v[2]}
}
