package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andresmejia3/vigil/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"VIGIL_DATA_DIR", "VIGIL_CALIBRATION_FILE", "VIGIL_SNAPSHOT_FILE", "VIGIL_HISTORY_FILE",
	"VIGIL_SESSION_DIR", "VIGIL_SUBJECT_ID", "VIGIL_SUBJECT_TYPE", "VIGIL_SNAPSHOT_INTERVAL",
	"DATABASE_URL", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "VIGIL_SNAPSHOT_TTL",
	"MQTT_BROKER", "MQTT_CLIENT_ID", "MQTT_USERNAME", "MQTT_PASSWORD", "MQTT_BRIDGE_TOPIC",
	"MQTT_ALERT_TOPIC", "BRIDGE_POLL_INTERVAL", "BRIDGE_ALPHA", "LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv blanks every key for the duration of the test. Empty values fall
// back to defaults, same as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	// keep a developer's .env out of the test
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("JSON", "saved_thresholds.json"), cfg.CalibrationPath())
	assert.Equal(t, filepath.Join("JSON", "sleep_detection_data.json"), cfg.SnapshotPath())
	assert.Equal(t, filepath.Join("JSON", "state_history.json"), cfg.HistoryPath())
	assert.Equal(t, filepath.Join("JSON", "session"), cfg.SessionPath())
	assert.Equal(t, time.Second, cfg.SnapshotInterval)
	assert.Equal(t, 3*time.Second, cfg.BridgePollInterval)
	assert.Equal(t, 0.7, cfg.BridgeAlpha)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.MQTT.Enabled())
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	clearEnv(t)
	t.Setenv("VIGIL_DATA_DIR", "/var/lib/vigil")
	t.Setenv("VIGIL_HISTORY_FILE", "/tmp/h.json")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("MQTT_BROKER", "tcp://localhost:1883")
	t.Setenv("BRIDGE_POLL_INTERVAL", "5")
	t.Setenv("BRIDGE_ALPHA", "0.5")
	t.Setenv("VIGIL_SNAPSHOT_INTERVAL", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/vigil/saved_thresholds.json", cfg.CalibrationPath())
	assert.Equal(t, "/tmp/h.json", cfg.HistoryPath())
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.True(t, cfg.MQTT.Enabled())
	assert.Equal(t, 5*time.Second, cfg.BridgePollInterval)
	assert.Equal(t, 0.5, cfg.BridgeAlpha)
	assert.Equal(t, 250*time.Millisecond, cfg.SnapshotInterval)
}

func TestLoad_InvalidAlpha(t *testing.T) {
	clearEnv(t)
	t.Setenv("BRIDGE_ALPHA", "1.5")

	_, err := Load()
	assert.True(t, errors.Is(err, types.ErrConfig))
}

func TestLoad_MalformedNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_DB", "two")
	t.Setenv("BRIDGE_POLL_INTERVAL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, 3*time.Second, cfg.BridgePollInterval)
}
