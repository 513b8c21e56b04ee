// Package config loads the rig configuration from COLDBREW_* environment
// variables, optionally layered over a YAML defaults file. Precedence:
// explicit env var > YAML file > built-in default.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tomnis/coldbrewer/internal/strategy"
	"github.com/tomnis/coldbrewer/internal/timeseries"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendInflux = "influx"
)

type Config struct {
	Server ServerConfig
	Store  StoreConfig
	Scale  ScaleConfig
	Brew   BrewConfig
	Alert  AlertConfig
	Trace  TraceConfig
	Log    LogConfig
}

type ServerConfig struct {
	Addr string
}

type StoreConfig struct {
	Backend  string
	RedisURL string
	Influx   timeseries.InfluxConfig
	// Retention bounds how much sample history the store keeps.
	Retention time.Duration
}

type ScaleConfig struct {
	// MACAddress identifies the physical scale; empty selects the mock.
	MACAddress string
	// MockDripRate simulates inflow (g/s) on the mock scale.
	MockDripRate  float64
	LowBatteryPct int
}

// BrewConfig holds the strategy base parameters brews start from.
type BrewConfig struct {
	TargetFlowRate float64
	Epsilon        float64
	TargetWeight   float64
	VesselWeight   float64
	ScaleInterval  time.Duration
	ValveInterval  time.Duration
	// DefaultsFile is an optional YAML overlay for these parameters.
	DefaultsFile string
}

type AlertConfig struct {
	SlackWebhookURL string
	WebhookURL      string
	Cooldown        time.Duration
}

type TraceConfig struct {
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

type LogConfig struct {
	Level string
}

// brewDefaultsFile is the YAML overlay shape. Pointer fields so absent keys
// leave the built-in defaults alone.
type brewDefaultsFile struct {
	TargetFlowRate *float64 `yaml:"target_flow_rate"`
	Epsilon        *float64 `yaml:"epsilon"`
	TargetWeight   *float64 `yaml:"target_weight_grams"`
	VesselWeight   *float64 `yaml:"vessel_weight_grams"`
	ScaleInterval  *float64 `yaml:"scale_interval_seconds"`
	ValveInterval  *float64 `yaml:"valve_interval_seconds"`
}

func Load() (*Config, error) {
	base := strategy.DefaultBaseParams()

	cfg := &Config{
		Server: ServerConfig{
			Addr: getEnv("COLDBREW_LISTEN_ADDR", ":8080"),
		},
		Store: StoreConfig{
			Backend:  getEnv("COLDBREW_STORE_BACKEND", BackendMemory),
			RedisURL: getEnv("COLDBREW_REDIS_URL", "redis://localhost:6379"),
			Influx: timeseries.InfluxConfig{
				URL:    getEnv("COLDBREW_INFLUXDB_URL", "http://localhost:8086"),
				Token:  getEnv("COLDBREW_INFLUXDB_TOKEN", ""),
				Org:    getEnv("COLDBREW_INFLUXDB_ORG", ""),
				Bucket: getEnv("COLDBREW_INFLUXDB_BUCKET", ""),
			},
			Retention: time.Duration(getEnvFloat("COLDBREW_RETENTION_SECONDS", timeseries.DefaultRetention.Seconds()) * float64(time.Second)),
		},
		Scale: ScaleConfig{
			MACAddress:    getEnv("COLDBREW_SCALE_MAC_ADDRESS", ""),
			MockDripRate:  getEnvFloat("COLDBREW_MOCK_DRIP_RATE", 0),
			LowBatteryPct: getEnvInt("COLDBREW_LOW_BATTERY_PCT", 15),
		},
		Brew: BrewConfig{
			TargetFlowRate: base.TargetFlowRate,
			Epsilon:        base.Epsilon,
			TargetWeight:   base.TargetWeight,
			VesselWeight:   base.VesselWeight,
			ScaleInterval:  base.ScaleInterval,
			ValveInterval:  base.ValveInterval,
			DefaultsFile:   getEnv("COLDBREW_DEFAULTS_FILE", ""),
		},
		Alert: AlertConfig{
			SlackWebhookURL: getEnv("COLDBREW_SLACK_WEBHOOK_URL", ""),
			WebhookURL:      getEnv("COLDBREW_ALERT_WEBHOOK_URL", ""),
			Cooldown:        time.Duration(getEnvInt("COLDBREW_ALERT_COOLDOWN_SEC", 300)) * time.Second,
		},
		Trace: TraceConfig{
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:    getEnvBool("COLDBREW_TRACE_INSECURE", true),
			SampleRatio: getEnvFloat("COLDBREW_TRACE_SAMPLE_RATIO", 1),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if cfg.Brew.DefaultsFile != "" {
		if err := cfg.applyDefaultsFile(cfg.Brew.DefaultsFile); err != nil {
			return nil, fmt.Errorf("load brew defaults file: %w", err)
		}
	}
	cfg.applyBrewEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaultsFile overlays the YAML file onto the built-in brew defaults.
func (c *Config) applyDefaultsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f brewDefaultsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return err
	}

	if f.TargetFlowRate != nil {
		c.Brew.TargetFlowRate = *f.TargetFlowRate
	}
	if f.Epsilon != nil {
		c.Brew.Epsilon = *f.Epsilon
	}
	if f.TargetWeight != nil {
		c.Brew.TargetWeight = *f.TargetWeight
	}
	if f.VesselWeight != nil {
		c.Brew.VesselWeight = *f.VesselWeight
	}
	if f.ScaleInterval != nil {
		c.Brew.ScaleInterval = secondsToDuration(*f.ScaleInterval)
	}
	if f.ValveInterval != nil {
		c.Brew.ValveInterval = secondsToDuration(*f.ValveInterval)
	}
	return nil
}

// applyBrewEnv lets explicit env vars win over the YAML overlay.
func (c *Config) applyBrewEnv() {
	if v, ok := lookupFloat("COLDBREW_TARGET_FLOW_RATE"); ok {
		c.Brew.TargetFlowRate = v
	}
	if v, ok := lookupFloat("COLDBREW_EPSILON"); ok {
		c.Brew.Epsilon = v
	}
	if v, ok := lookupFloat("COLDBREW_TARGET_WEIGHT_GRAMS"); ok {
		c.Brew.TargetWeight = v
	}
	if v, ok := lookupFloat("COLDBREW_VESSEL_WEIGHT_GRAMS"); ok {
		c.Brew.VesselWeight = v
	}
	if v, ok := lookupFloat("COLDBREW_SCALE_READ_INTERVAL"); ok {
		c.Brew.ScaleInterval = secondsToDuration(v)
	}
	if v, ok := lookupFloat("COLDBREW_VALVE_INTERVAL_SECONDS"); ok {
		c.Brew.ValveInterval = secondsToDuration(v)
	}
}

// BaseParams converts the brew section into the strategy parameter set.
func (c *Config) BaseParams() strategy.BaseParams {
	return strategy.BaseParams{
		TargetFlowRate: c.Brew.TargetFlowRate,
		Epsilon:        c.Brew.Epsilon,
		TargetWeight:   c.Brew.TargetWeight,
		VesselWeight:   c.Brew.VesselWeight,
		ScaleInterval:  c.Brew.ScaleInterval,
		ValveInterval:  c.Brew.ValveInterval,
	}
}

// SlogLevel maps the configured level string to a slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendRedis, BackendInflux:
	default:
		return fmt.Errorf("COLDBREW_STORE_BACKEND must be one of %s, %s, %s; got %q",
			BackendMemory, BackendRedis, BackendInflux, c.Store.Backend)
	}
	if c.Store.Backend == BackendRedis && c.Store.RedisURL == "" {
		return fmt.Errorf("COLDBREW_REDIS_URL is required for the redis backend")
	}
	if c.Store.Backend == BackendInflux {
		if c.Store.Influx.Token == "" || c.Store.Influx.Org == "" || c.Store.Influx.Bucket == "" {
			return fmt.Errorf("COLDBREW_INFLUXDB_TOKEN, _ORG and _BUCKET are required for the influx backend")
		}
	}
	if err := c.BaseParams().Validate(); err != nil {
		return err
	}
	if c.Trace.SampleRatio <= 0 || c.Trace.SampleRatio > 1 {
		return fmt.Errorf("COLDBREW_TRACE_SAMPLE_RATIO must be in (0, 1]; got %v", c.Trace.SampleRatio)
	}
	return nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := lookupFloat(key); ok {
		return v
	}
	return fallback
}

func lookupFloat(key string) (float64, bool) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
