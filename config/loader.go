package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with layered YAML files and
// environment overrides.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "STREAMPILOT",
		validation: true,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier
// ones field by field.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation enables or disables configuration validation.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load loads defaults, applies all layers, then environment overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range l.layers {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		// Unmarshal over the accumulated config so absent fields keep
		// their previous values.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	l.applyEnvOverrides(cfg)

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(l.envPrefix + "_NATS_URL"); val != "" {
		cfg.NATS.URL = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_USERNAME"); val != "" {
		cfg.NATS.Username = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_PASSWORD"); val != "" {
		cfg.NATS.Password = val
	}
	if val := os.Getenv(l.envPrefix + "_NATS_TOKEN"); val != "" {
		cfg.NATS.Token = val
	}
	if val := os.Getenv(l.envPrefix + "_MANAGEMENT_LISTEN"); val != "" {
		cfg.Management.Listen = val
	}
	if val := os.Getenv(l.envPrefix + "_MANAGEMENT_EXPOSURE"); val != "" {
		cfg.Management.Exposure = strings.Split(val, ",")
	}
	if val := os.Getenv(l.envPrefix + "_APPLICATION_SERVER"); val != "" {
		cfg.App.Server = val
	}
	if val := os.Getenv(l.envPrefix + "_NUM_STREAM_THREADS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.App.NumStreamThreads = n
		}
	}
	if val := os.Getenv(l.envPrefix + "_AUTOPILOT_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Autopilot.Enabled = b
		}
	}
	if val := os.Getenv(l.envPrefix + "_AUTOPILOT_LAG_THRESHOLD"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Autopilot.LagThreshold = n
		}
	}
	if val := os.Getenv(l.envPrefix + "_AUTOPILOT_BETWEEN_RUNS"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Autopilot.BetweenRuns = d
		}
	}
}
