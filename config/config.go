// Package config provides StreamPilot configuration: a YAML-backed
// structured Config for the wiring layer, and a flat Properties bag with
// typed accessors for runtime/consumer keys.
package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/c360/streampilot/errors"
)

// Config is the complete StreamPilot configuration.
type Config struct {
	NATS       NATSConfig       `yaml:"nats"`
	Management ManagementConfig `yaml:"management"`
	Autopilot  AutopilotConfig  `yaml:"autopilot"`
	App        AppConfig        `yaml:"application"`
}

// NATSConfig defines NATS connection settings.
type NATSConfig struct {
	URL           string        `yaml:"url"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	Username      string        `yaml:"username,omitempty"`
	Password      string        `yaml:"password,omitempty"`
	Token         string        `yaml:"token,omitempty"`
	ClientName    string        `yaml:"client_name,omitempty"`
}

// ManagementConfig defines the management HTTP surface.
type ManagementConfig struct {
	// Listen is the bind address of the management server.
	Listen string `yaml:"listen"`
	// Exposure lists the endpoint ids to register. An endpoint whose id is
	// not listed does not exist on the surface.
	Exposure []string `yaml:"exposure"`
}

// Exposes reports whether the endpoint id is in the exposure include-list.
func (m ManagementConfig) Exposes(id string) bool {
	for _, e := range m.Exposure {
		if e == id {
			return true
		}
	}
	return false
}

// AutopilotConfig coordinates the autopilot's automated runs.
type AutopilotConfig struct {
	Enabled          bool          `yaml:"enabled"`
	LagThreshold     int64         `yaml:"lag_threshold"`
	ThreadLimit      int           `yaml:"stream_thread_limit"`
	InitialDelay     time.Duration `yaml:"initial_delay"`
	BetweenRuns      time.Duration `yaml:"between_runs"`
	ExclusionPattern string        `yaml:"exclusion_pattern"`
}

// AppConfig identifies this instance within the application cluster.
type AppConfig struct {
	// Server is the advertised self endpoint (host:port). Without it this
	// instance cannot participate in federated routing.
	Server string `yaml:"server"`
	// NumStreamThreads is the worker baseline.
	NumStreamThreads int `yaml:"num_stream_threads"`
	// MaxPollIntervalMS and SessionTimeoutMS mirror the consumer settings
	// they are named after; the larger of the two caps every blocking call.
	MaxPollIntervalMS int `yaml:"max_poll_interval_ms"`
	SessionTimeoutMS  int `yaml:"session_timeout_ms"`
}

// Defaults returns the baseline configuration before any layer is applied.
func Defaults() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Management: ManagementConfig{
			Listen:   ":8080",
			Exposure: []string{"health", "metrics"},
		},
		Autopilot: AutopilotConfig{
			Enabled:          false,
			LagThreshold:     DefaultLagThreshold,
			ThreadLimit:      DefaultThreadLimit,
			InitialDelay:     DefaultInitialDelay,
			BetweenRuns:      DefaultBetweenRuns,
			ExclusionPattern: DefaultExclusionPattern,
		},
		App: AppConfig{
			NumStreamThreads:  DefaultNumStreamThreads,
			MaxPollIntervalMS: DefaultMaxPollInterval,
			SessionTimeoutMS:  DefaultSessionTimeout,
		},
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.WrapInvalid(
			fmt.Errorf("nats.url is required"),
			"Config", "Validate", "check NATS settings")
	}

	if c.App.Server != "" {
		if _, _, err := SplitEndpoint(c.App.Server); err != nil {
			return errors.WrapInvalid(err, "Config", "Validate", "parse application.server")
		}
	}

	if c.Autopilot.ThreadLimit < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("autopilot.stream_thread_limit must be >= 0, got %d", c.Autopilot.ThreadLimit),
			"Config", "Validate", "check autopilot settings")
	}
	if c.Autopilot.LagThreshold <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("autopilot.lag_threshold must be > 0, got %d", c.Autopilot.LagThreshold),
			"Config", "Validate", "check autopilot settings")
	}
	if c.Autopilot.BetweenRuns <= 0 {
		return errors.WrapInvalid(
			fmt.Errorf("autopilot.between_runs must be > 0"),
			"Config", "Validate", "check autopilot settings")
	}

	return nil
}

// Properties flattens the configuration into the runtime property bag
// consumed by the store, query, and autopilot constructors.
func (c *Config) Properties() Properties {
	p := Properties{
		NumStreamThreads:          strconv.Itoa(c.App.NumStreamThreads),
		MaxPollInterval:           strconv.Itoa(c.App.MaxPollIntervalMS),
		SessionTimeout:            strconv.Itoa(c.App.SessionTimeoutMS),
		AutopilotEnabled:          strconv.FormatBool(c.Autopilot.Enabled),
		AutopilotLagThreshold:     strconv.FormatInt(c.Autopilot.LagThreshold, 10),
		AutopilotThreadLimit:      strconv.Itoa(c.Autopilot.ThreadLimit),
		AutopilotInitialDelay:     c.Autopilot.InitialDelay.String(),
		AutopilotBetweenRuns:      c.Autopilot.BetweenRuns.String(),
		AutopilotExclusionPattern: c.Autopilot.ExclusionPattern,
	}
	if c.App.Server != "" {
		p[ApplicationServer] = c.App.Server
	}
	return p
}

// SplitEndpoint parses a host:port endpoint string.
func SplitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return "", 0, fmt.Errorf("invalid port %q in endpoint %q", portStr, endpoint)
	}
	return host, port, nil
}
