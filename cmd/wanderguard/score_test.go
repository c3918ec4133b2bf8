package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/wanderguard/internal/config"
	"github.com/i474232898/wanderguard/internal/risk"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Location:        time.UTC,
		TimeOutsideUnit: time.Minute,
		Risk:            risk.DefaultParams(),
	}
}

func TestScoreWanderingPatient(t *testing.T) {
	doc := `{
		"telemetry": {"speed": 1.2, "distance": 250, "time_outside": 10, "latitude": 12.9716, "longitude": 77.5946},
		"state": {
			"safeRadius": 200,
			"learning": {"weights": {"distance": 0.5, "time": 0.3, "speed": 0.2}, "avgSpeed": 1.0, "avgDistance": 50, "samples": 4}
		},
		"prevRiskLevel": "normal",
		"now": "2026-03-14T12:00:00Z"
	}`

	var out bytes.Buffer
	require.NoError(t, score(strings.NewReader(doc), &out, testConfig()))

	var got risk.Output
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, risk.Verdict{Score: 1, Level: risk.LevelAlert, TriggerAlert: true}, got.Verdict)
	assert.Equal(t, risk.Weights{Distance: 0.499, Time: 0.309, Speed: 0.192}, got.Learning.Weights)
	assert.Equal(t, 5, got.Learning.Samples)
	assert.Equal(t, "12,972_77,595", got.ZoneKey)
}

func TestScoreWithoutState(t *testing.T) {
	doc := `{"telemetry": {"speed": 0.5, "distance": 5, "latitude": 1, "longitude": 2}, "now": "2026-03-14T12:00:00Z"}`

	var out bytes.Buffer
	require.NoError(t, score(strings.NewReader(doc), &out, testConfig()))

	var got risk.Output
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 1, got.Learning.Samples)
	assert.Equal(t, risk.LevelNormal, got.Verdict.Level)
}

func TestScoreClampsHugeTimeOutside(t *testing.T) {
	doc := `{"telemetry": {"time_outside": 1e300, "latitude": 1, "longitude": 2}, "now": "2026-03-14T12:00:00Z"}`

	var out bytes.Buffer
	require.NoError(t, score(strings.NewReader(doc), &out, testConfig()))

	var got risk.Output
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 1.0, got.Features.Time)
}

func TestScoreRejectsMalformedInput(t *testing.T) {
	err := score(strings.NewReader("{"), &bytes.Buffer{}, testConfig())
	assert.Error(t, err)
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["score"])
}
