// Package config loads wallet bridge configuration from defaults, an
// optional YAML file, and environment variable overrides, in that
// order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names recognized as overrides.
const (
	EnvPort      = "WALLET_BRIDGE_PORT"
	EnvStateFile = "WALLET_BRIDGE_STATE_FILE"
	EnvLogLevel  = "WALLET_BRIDGE_LOG_LEVEL"
)

// Config is the full bridge configuration.
type Config struct {
	// Port is the application HTTP port; the bridge WebSocket listens
	// one above it.
	Port int

	// StateFile persists the selected provider across restarts.
	StateFile string

	LogLevel string

	// Connection management.
	MaxRetries int
	RetryDelay time.Duration

	// Setup and call deadlines.
	ConnectTimeout time.Duration
	ListenTimeout  time.Duration
	CallTimeout    time.Duration

	HealthInterval time.Duration

	// Provider detection.
	DetectWindow  time.Duration
	DetectRetries int
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:           4242,
		StateFile:      defaultStateFile(),
		LogLevel:       "info",
		MaxRetries:     5,
		RetryDelay:     500 * time.Millisecond,
		ConnectTimeout: 30 * time.Second,
		ListenTimeout:  30 * time.Second,
		CallTimeout:    30 * time.Second,
		HealthInterval: 5 * time.Second,
		DetectWindow:   300 * time.Millisecond,
		DetectRetries:  3,
	}
}

func defaultStateFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".wallet-bridge", "state.json")
	}
	return filepath.Join(home, ".wallet-bridge", "state.json")
}

// fileConfig mirrors Config for the YAML layer. Durations are strings
// so config files can say "500ms" rather than nanosecond counts, and
// pointers distinguish "absent" from zero values.
type fileConfig struct {
	Port      *int    `yaml:"port"`
	StateFile *string `yaml:"state_file"`
	LogLevel  *string `yaml:"log_level"`

	MaxRetries *int    `yaml:"max_retries"`
	RetryDelay *string `yaml:"retry_delay"`

	ConnectTimeout *string `yaml:"connect_timeout"`
	ListenTimeout  *string `yaml:"listen_timeout"`
	CallTimeout    *string `yaml:"call_timeout"`

	HealthInterval *string `yaml:"health_interval"`

	DetectWindow  *string `yaml:"detect_window"`
	DetectRetries *int    `yaml:"detect_retries"`
}

func (f *fileConfig) apply(cfg *Config) error {
	if f.Port != nil {
		cfg.Port = *f.Port
	}
	if f.StateFile != nil {
		cfg.StateFile = *f.StateFile
	}
	if f.LogLevel != nil {
		cfg.LogLevel = *f.LogLevel
	}
	if f.MaxRetries != nil {
		cfg.MaxRetries = *f.MaxRetries
	}
	if f.DetectRetries != nil {
		cfg.DetectRetries = *f.DetectRetries
	}

	durations := []struct {
		key string
		raw *string
		dst *time.Duration
	}{
		{"retry_delay", f.RetryDelay, &cfg.RetryDelay},
		{"connect_timeout", f.ConnectTimeout, &cfg.ConnectTimeout},
		{"listen_timeout", f.ListenTimeout, &cfg.ListenTimeout},
		{"call_timeout", f.CallTimeout, &cfg.CallTimeout},
		{"health_interval", f.HealthInterval, &cfg.HealthInterval},
		{"detect_window", f.DetectWindow, &cfg.DetectWindow},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		v, err := time.ParseDuration(*d.raw)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.key, *d.raw, err)
		}
		*d.dst = v
	}
	return nil
}

// Load builds the configuration from defaults, an optional YAML file,
// and environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		var file fileConfig
		if err := yaml.Unmarshal(data, &file); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
		if err := file.apply(&cfg); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv(EnvStateFile); v != "" {
		cfg.StateFile = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
}

// Validate rejects configurations the bridge cannot run with.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65534 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65534", c.Port)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("invalid max_retries %d: must be positive", c.MaxRetries)
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("invalid retry_delay %s: must be positive", c.RetryDelay)
	}
	return nil
}
