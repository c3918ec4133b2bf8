package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/wanderguard/internal/risk"
)

// Store backends.
const (
	BackendFirebase = "firebase"
	BackendMemory   = "memory"
	BackendBolt     = "bolt"
)

type AppConfig struct {
	Port      string
	LogLevel  string
	LogFormat string

	// HTTPTimeout bounds every outbound call to Firebase and FCM.
	HTTPTimeout time.Duration

	StoreBackend string

	FirebaseDBURL     string
	FirebaseAuthToken string
	FirebaseProjectID string
	// GoogleCredentials is either the service-account JSON itself or a path to it.
	GoogleCredentials string

	BoltPath string

	// Local store alert retention.
	StoreMaxAlerts int           // max alerts per patient (0 = unlimited)
	StoreMaxAge    time.Duration // max age of alerts (0 = unlimited)

	KafkaBrokers []string
	KafkaTopic   string

	// DeliveryTimeout bounds each background push and event publish.
	DeliveryTimeout time.Duration

	PushRetryInterval    time.Duration
	PushRetryMaxAttempts int
	PushOutboxSize       int

	// Location is the timezone the night boost is evaluated in.
	Location *time.Location
	// TimeOutsideUnit is the unit of the numeric time_outside request field.
	TimeOutsideUnit time.Duration

	StaticDir string

	Risk risk.Params
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug("no .env file loaded")
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		Port:              getenvDefault("PORT", "8080"),
		LogLevel:          getenvDefault("LOG_LEVEL", "info"),
		LogFormat:         getenvDefault("LOG_FORMAT", "text"),
		StoreBackend:      strings.ToLower(getenvDefault("STORE_BACKEND", BackendMemory)),
		FirebaseDBURL:     os.Getenv("FIREBASE_DB_URL"),
		FirebaseAuthToken: os.Getenv("FIREBASE_AUTH_TOKEN"),
		FirebaseProjectID: os.Getenv("FIREBASE_PROJECT_ID"),
		GoogleCredentials: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		BoltPath:          getenvDefault("BOLT_PATH", "wanderguard.db"),
		StoreMaxAlerts:    getenvInt("STORE_MAX_ALERTS", 500),
		KafkaBrokers:      splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:        getenvDefault("KAFKA_TOPIC", "wanderguard.verdicts"),
		PushOutboxSize:    getenvInt("PUSH_OUTBOX_SIZE", 100),
		StaticDir:         getenvDefault("STATIC_DIR", "static"),
	}
	cfg.PushRetryMaxAttempts = getenvInt("PUSH_RETRY_MAX_ATTEMPTS", 3)

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.DeliveryTimeout, err = getenvDuration("DELIVERY_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.PushRetryInterval, err = getenvDuration("PUSH_RETRY_INTERVAL", time.Minute); err != nil {
		return nil, err
	}

	switch cfg.StoreBackend {
	case BackendMemory, BackendBolt:
	case BackendFirebase:
		if cfg.FirebaseDBURL == "" {
			return nil, fmt.Errorf("FIREBASE_DB_URL is required for the %s backend", BackendFirebase)
		}
	default:
		return nil, fmt.Errorf("invalid STORE_BACKEND %q", cfg.StoreBackend)
	}

	tz := getenvDefault("RISK_TIMEZONE", "UTC")
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid RISK_TIMEZONE: %w", err)
	}
	if cfg.TimeOutsideUnit, err = ParseTimeUnit(getenvDefault("TIME_OUTSIDE_UNIT", "minutes")); err != nil {
		return nil, fmt.Errorf("invalid TIME_OUTSIDE_UNIT: %w", err)
	}

	if cfg.Risk, err = riskParams(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// riskParams applies RISK_* overrides on top of the default policy.
func riskParams() (risk.Params, error) {
	p := risk.DefaultParams()

	floats := []struct {
		key string
		dst *float64
	}{
		{"RISK_DISTANCE_SATURATION", &p.DistanceSaturation},
		{"RISK_SPEED_MULTIPLE", &p.SpeedMultiple},
		{"RISK_SPEED_CAP", &p.SpeedCap},
		{"RISK_SPEED_NEUTRAL", &p.SpeedNeutral},
		{"RISK_LEARNING_RATE", &p.LearningRate},
		{"RISK_WARNING_THRESHOLD", &p.WarningThreshold},
		{"RISK_ALERT_THRESHOLD", &p.AlertThreshold},
	}
	for _, f := range floats {
		v, err := getenvFloat(f.key, *f.dst)
		if err != nil {
			return p, err
		}
		*f.dst = v
	}

	sat, err := getenvDuration("RISK_TIME_SATURATION", p.TimeSaturation)
	if err != nil {
		return p, err
	}
	p.TimeSaturation = sat
	p.TimeDivisor = sat

	if p.GeofenceEnabled, err = getenvBool("RISK_GEOFENCE_BOOST", p.GeofenceEnabled); err != nil {
		return p, err
	}
	if v := os.Getenv("RISK_ZONE_MODE"); v != "" {
		p.ZoneMode = risk.ZoneMode(strings.ToLower(v))
	}
	if v := os.Getenv("RISK_HEATMAP_EVICTION"); v != "" {
		p.HeatmapEviction = risk.Eviction(strings.ToLower(v))
	}

	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// ParseTimeUnit maps a unit name onto its duration.
func ParseTimeUnit(s string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s", "sec", "second", "seconds":
		return time.Second, nil
	case "m", "min", "minute", "minutes":
		return time.Minute, nil
	case "h", "hour", "hours":
		return time.Hour, nil
	}
	return 0, fmt.Errorf("unknown unit %q", s)
}

// CredentialsJSON returns the service-account JSON, reading it from disk when
// GoogleCredentials is a path. It returns nil when nothing is configured.
func (c *AppConfig) CredentialsJSON() ([]byte, error) {
	v := strings.TrimSpace(c.GoogleCredentials)
	if v == "" {
		return nil, nil
	}
	if strings.HasPrefix(v, "{") {
		return []byte(v), nil
	}
	data, err := os.ReadFile(v)
	if err != nil {
		return nil, fmt.Errorf("read GOOGLE_APPLICATION_CREDENTIALS: %w", err)
	}
	return data, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
