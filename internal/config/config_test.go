package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/wanderguard/internal/risk"
)

var keys = []string{
	"PORT", "LOG_LEVEL", "LOG_FORMAT", "HTTP_TIMEOUT", "STORE_BACKEND",
	"FIREBASE_DB_URL", "FIREBASE_AUTH_TOKEN", "FIREBASE_PROJECT_ID",
	"GOOGLE_APPLICATION_CREDENTIALS", "BOLT_PATH", "STORE_MAX_ALERTS", "STORE_MAX_AGE",
	"KAFKA_BROKERS", "KAFKA_TOPIC", "PUSH_RETRY_INTERVAL", "PUSH_RETRY_MAX_ATTEMPTS",
	"PUSH_OUTBOX_SIZE", "DELIVERY_TIMEOUT", "RISK_TIMEZONE", "TIME_OUTSIDE_UNIT", "STATIC_DIR",
	"RISK_DISTANCE_SATURATION", "RISK_TIME_SATURATION", "RISK_SPEED_MULTIPLE",
	"RISK_SPEED_CAP", "RISK_SPEED_NEUTRAL", "RISK_LEARNING_RATE",
	"RISK_WARNING_THRESHOLD", "RISK_ALERT_THRESHOLD",
	"RISK_ZONE_MODE", "RISK_HEATMAP_EVICTION", "RISK_GEOFENCE_BOOST",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 30*time.Second, cfg.DeliveryTimeout)
	assert.Equal(t, time.Minute, cfg.TimeOutsideUnit)
	assert.Equal(t, time.UTC, cfg.Location)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 3, cfg.PushRetryMaxAttempts)
	assert.Equal(t, risk.DefaultParams(), cfg.Risk)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_BACKEND", "Firebase")
	t.Setenv("FIREBASE_DB_URL", "https://demo.firebaseio.com")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("RISK_TIMEZONE", "Asia/Kolkata")
	t.Setenv("TIME_OUTSIDE_UNIT", "seconds")
	t.Setenv("RISK_DISTANCE_SATURATION", "2")
	t.Setenv("RISK_TIME_SATURATION", "30s")
	t.Setenv("RISK_ZONE_MODE", "linear")
	t.Setenv("RISK_HEATMAP_EVICTION", "insertion")
	t.Setenv("RISK_GEOFENCE_BOOST", "false")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, BackendFirebase, cfg.StoreBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "Asia/Kolkata", cfg.Location.String())
	assert.Equal(t, time.Second, cfg.TimeOutsideUnit)
	assert.Equal(t, 2.0, cfg.Risk.DistanceSaturation)
	assert.Equal(t, 30*time.Second, cfg.Risk.TimeSaturation)
	assert.Equal(t, 30*time.Second, cfg.Risk.TimeDivisor)
	assert.Equal(t, risk.ZoneModeLinear, cfg.Risk.ZoneMode)
	assert.Equal(t, risk.EvictOldest, cfg.Risk.HeatmapEviction)
	assert.False(t, cfg.Risk.GeofenceEnabled)
}

func TestFromEnvErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown backend", env: map[string]string{"STORE_BACKEND": "redis"}},
		{name: "firebase without url", env: map[string]string{"STORE_BACKEND": "firebase"}},
		{name: "bad duration", env: map[string]string{"HTTP_TIMEOUT": "soon"}},
		{name: "bad timezone", env: map[string]string{"RISK_TIMEZONE": "Mars/Olympus"}},
		{name: "bad unit", env: map[string]string{"TIME_OUTSIDE_UNIT": "fortnights"}},
		{name: "bad float", env: map[string]string{"RISK_LEARNING_RATE": "fast"}},
		{name: "bad bool", env: map[string]string{"RISK_GEOFENCE_BOOST": "maybe"}},
		{name: "bad zone mode", env: map[string]string{"RISK_ZONE_MODE": "random"}},
		{name: "inverted thresholds", env: map[string]string{"RISK_WARNING_THRESHOLD": "0.9"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestCredentialsJSON(t *testing.T) {
	cfg := &AppConfig{}
	data, err := cfg.CredentialsJSON()
	require.NoError(t, err)
	assert.Nil(t, data)

	cfg.GoogleCredentials = `{"type":"service_account"}`
	data, err = cfg.CredentialsJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"service_account"}`, string(data))

	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"project_id":"demo"}`), 0o600))
	cfg.GoogleCredentials = path
	data, err = cfg.CredentialsJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"project_id":"demo"}`, string(data))

	cfg.GoogleCredentials = filepath.Join(t.TempDir(), "missing.json")
	_, err = cfg.CredentialsJSON()
	assert.Error(t, err)
}
