package common

import (
	"math"
	"strings"
	"time"
)

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	if places < 0 {
		return v
	}
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}

// NonNegative maps negative, NaN and infinite values to zero.
func NonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// EqualFoldAny reports whether s matches any of the candidates, ignoring case
// and surrounding whitespace.
func EqualFoldAny(s string, candidates ...string) bool {
	s = strings.TrimSpace(s)
	for _, c := range candidates {
		if strings.EqualFold(s, c) {
			return true
		}
	}
	return false
}

// ToDuration converts an amount of unit into a duration. Negative and NaN
// amounts become zero; amounts past the range of time.Duration saturate.
func ToDuration(v float64, unit time.Duration) time.Duration {
	v = NonNegative(v) * float64(unit)
	if v >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(v)
}
