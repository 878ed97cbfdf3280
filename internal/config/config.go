// Package config loads vigil settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/andresmejia3/vigil/internal/types"
	"github.com/joho/godotenv"
)

type Config struct {
	DataDir         string
	CalibrationFile string
	SnapshotFile    string
	HistoryFile     string
	SessionDir      string

	SubjectID        string
	SubjectType      string
	SnapshotInterval time.Duration

	DatabaseURL string

	Redis RedisConfig
	MQTT  MQTTConfig

	BridgePollInterval time.Duration
	BridgeAlpha        float64

	LogLevel  string
	LogFormat string
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	SnapshotTTL time.Duration
}

// Enabled reports whether a redis address was configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	BridgeTopic string
	AlertTopic  string
}

func (m MQTTConfig) Enabled() bool {
	return m.Broker != ""
}

// Load reads .env (if present) and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:         getEnv("VIGIL_DATA_DIR", "JSON"),
		CalibrationFile: getEnv("VIGIL_CALIBRATION_FILE", "saved_thresholds.json"),
		SnapshotFile:    getEnv("VIGIL_SNAPSHOT_FILE", "sleep_detection_data.json"),
		HistoryFile:     getEnv("VIGIL_HISTORY_FILE", "state_history.json"),
		SessionDir:      getEnv("VIGIL_SESSION_DIR", "session"),

		SubjectID:        getEnv("VIGIL_SUBJECT_ID", "1"),
		SubjectType:      getEnv("VIGIL_SUBJECT_TYPE", "Driver"),
		SnapshotInterval: getEnvDuration("VIGIL_SNAPSHOT_INTERVAL", time.Second),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", ""),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvInt("REDIS_DB", 0),
			SnapshotTTL: getEnvDuration("VIGIL_SNAPSHOT_TTL", 30*time.Second),
		},
		MQTT: MQTTConfig{
			Broker:      getEnv("MQTT_BROKER", ""),
			ClientID:    getEnv("MQTT_CLIENT_ID", "vigil"),
			Username:    getEnv("MQTT_USERNAME", ""),
			Password:    getEnv("MQTT_PASSWORD", ""),
			BridgeTopic: getEnv("MQTT_BRIDGE_TOPIC", "vigil/bridge"),
			AlertTopic:  getEnv("MQTT_ALERT_TOPIC", "vigil/alerts"),
		},

		BridgePollInterval: getEnvDuration("BRIDGE_POLL_INTERVAL", 3*time.Second),
		BridgeAlpha:        getEnvFloat("BRIDGE_ALPHA", 0.7),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would break the frame loop or the bridge.
func (c *Config) Validate() error {
	if c.BridgeAlpha <= 0 || c.BridgeAlpha > 1 {
		return fmt.Errorf("BRIDGE_ALPHA must be in (0,1], got %v: %w", c.BridgeAlpha, types.ErrConfig)
	}
	if c.BridgePollInterval <= 0 {
		return fmt.Errorf("BRIDGE_POLL_INTERVAL must be positive: %w", types.ErrConfig)
	}
	if c.SnapshotInterval < 0 {
		return fmt.Errorf("VIGIL_SNAPSHOT_INTERVAL must not be negative: %w", types.ErrConfig)
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("VIGIL_DATA_DIR is empty: %w", types.ErrConfig)
	}
	return nil
}

// Path joins name onto the data dir unless name is already absolute.
func (c *Config) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

func (c *Config) CalibrationPath() string { return c.Path(c.CalibrationFile) }
func (c *Config) SnapshotPath() string    { return c.Path(c.SnapshotFile) }
func (c *Config) HistoryPath() string     { return c.Path(c.HistoryFile) }
func (c *Config) SessionPath() string     { return c.Path(c.SessionDir) }

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// getEnvDuration accepts a Go duration ("3s") or a bare number of seconds.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return defaultVal
}
