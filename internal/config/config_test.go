package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, time.Hour, cfg.Store.Retention)
	assert.Equal(t, 15, cfg.Scale.LowBatteryPct)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 300*time.Second, cfg.Alert.Cooldown)
	assert.InDelta(t, 1.0, cfg.Trace.SampleRatio, 1e-9)

	base := cfg.BaseParams()
	assert.InDelta(t, 0.05, base.TargetFlowRate, 1e-9)
	assert.InDelta(t, 0.008, base.Epsilon, 1e-9)
	assert.InDelta(t, 1337.0, base.TargetWeight, 1e-9)
	assert.InDelta(t, 229.0, base.VesselWeight, 1e-9)
	assert.Equal(t, 500*time.Millisecond, base.ScaleInterval)
	assert.Equal(t, time.Minute, base.ValveInterval)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("COLDBREW_LISTEN_ADDR", ":9090")
	t.Setenv("COLDBREW_TARGET_WEIGHT_GRAMS", "2000")
	t.Setenv("COLDBREW_VESSEL_WEIGHT_GRAMS", "500")
	t.Setenv("COLDBREW_SCALE_READ_INTERVAL", "0.25")
	t.Setenv("COLDBREW_VALVE_INTERVAL_SECONDS", "30")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	base := cfg.BaseParams()
	assert.InDelta(t, 2000.0, base.TargetWeight, 1e-9)
	assert.InDelta(t, 500.0, base.VesselWeight, 1e-9)
	assert.Equal(t, 250*time.Millisecond, base.ScaleInterval)
	assert.Equal(t, 30*time.Second, base.ValveInterval)
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
}

func TestLoad_InvalidBackend(t *testing.T) {
	t.Setenv("COLDBREW_STORE_BACKEND", "postgres")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COLDBREW_STORE_BACKEND")
}

func TestLoad_InfluxRequiresCredentials(t *testing.T) {
	t.Setenv("COLDBREW_STORE_BACKEND", "influx")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("COLDBREW_INFLUXDB_TOKEN", "token")
	t.Setenv("COLDBREW_INFLUXDB_ORG", "org")
	t.Setenv("COLDBREW_INFLUXDB_BUCKET", "coldbrew")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendInflux, cfg.Store.Backend)
	assert.Equal(t, "coldbrew", cfg.Store.Influx.Bucket)
}

func TestLoad_InvalidBrewParams(t *testing.T) {
	t.Setenv("COLDBREW_TARGET_WEIGHT_GRAMS", "100")
	t.Setenv("COLDBREW_VESSEL_WEIGHT_GRAMS", "200")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_InvalidSampleRatio(t *testing.T) {
	t.Setenv("COLDBREW_TRACE_SAMPLE_RATIO", "1.5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAMPLE_RATIO")
}

func TestLoad_DefaultsFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brew.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"target_flow_rate: 0.08\nvalve_interval_seconds: 45\n"), 0o644))
	t.Setenv("COLDBREW_DEFAULTS_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	base := cfg.BaseParams()
	assert.InDelta(t, 0.08, base.TargetFlowRate, 1e-9)
	assert.Equal(t, 45*time.Second, base.ValveInterval)
	// Keys absent from the file keep their built-in defaults.
	assert.InDelta(t, 0.008, base.Epsilon, 1e-9)
}

func TestLoad_EnvWinsOverDefaultsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brew.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target_flow_rate: 0.08\n"), 0o644))
	t.Setenv("COLDBREW_DEFAULTS_FILE", path)
	t.Setenv("COLDBREW_TARGET_FLOW_RATE", "0.12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.InDelta(t, 0.12, cfg.BaseParams().TargetFlowRate, 1e-9)
}

func TestLoad_MissingDefaultsFile(t *testing.T) {
	t.Setenv("COLDBREW_DEFAULTS_FILE", "/nonexistent/brew.yaml")

	_, err := Load()
	require.Error(t, err)
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LogConfig{Level: "debug"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "info"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LogConfig{Level: "WARNING"}.SlogLevel())
	assert.Equal(t, slog.LevelError, LogConfig{Level: "error"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LogConfig{Level: "bogus"}.SlogLevel())
}
