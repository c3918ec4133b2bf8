package common

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToDuration(t *testing.T) {
	assert.Equal(t, 90*time.Second, ToDuration(1.5, time.Minute))
	assert.Equal(t, time.Duration(0), ToDuration(-4, time.Minute))
	assert.Equal(t, time.Duration(0), ToDuration(math.NaN(), time.Minute))
	assert.Equal(t, time.Duration(math.MaxInt64), ToDuration(1e300, time.Hour))
	assert.Equal(t, time.Duration(0), ToDuration(math.Inf(1), time.Hour))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.13, Round(0.125, 2))
	assert.Equal(t, 3.14159, Round(3.14159, -1))
}
