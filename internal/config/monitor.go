package config

import (
	"fmt"
	"net"
	"net/url"
	"time"
)

// MonitorConfig represents the monitor process configuration
type MonitorConfig struct {
	Bridge  BridgeConfig        `yaml:"bridge"`
	Metrics MonitorMetricsConfig `yaml:"metrics"`
	Logging LoggingConfig       `yaml:"logging"`
}

// MonitorMetricsConfig controls the monitor's Prometheus listener.
// An empty address disables both the listener and metric collection.
type MonitorMetricsConfig struct {
	Address string `yaml:"address"`
}

// BridgeConfig contains value bridge configuration
type BridgeConfig struct {
	URL              string           `yaml:"url"`
	ReconnectDelayMs int              `yaml:"reconnect_delay_ms"`
	Endpoints        []EndpointConfig `yaml:"endpoints"`
}

// EndpointConfig declares one bridged value. Nil pointers mean "not set".
type EndpointConfig struct {
	Path      string   `yaml:"path"`
	Key       string   `yaml:"key"`
	Initial   float64  `yaml:"initial"`
	Smoothing *float64 `yaml:"smoothing"`
	Min       *float64 `yaml:"min"`
	Max       *float64 `yaml:"max"`
}

// DefaultMonitor returns the monitor configuration used when no file overrides a field
func DefaultMonitor() *MonitorConfig {
	return &MonitorConfig{
		Bridge: BridgeConfig{
			URL:              "ws://127.0.0.1:8080",
			ReconnectDelayMs: 3000,
		},
		Metrics: MonitorMetricsConfig{Address: "127.0.0.1:9091"},
		Logging: defaultLogging(),
	}
}

var monitorEnv = map[string][]string{
	"bridge.url":                {"HYDRA_BRIDGE_URL"},
	"bridge.reconnect_delay_ms": {"HYDRA_RECONNECT_DELAY_MS"},
	"metrics.address":           {"HYDRA_MONITOR_METRICS_ADDR"},
	"logging.level":             {"HYDRA_LOG_LEVEL"},
}

// LoadMonitor reads the monitor configuration file, applies environment
// overrides and validates the result. An empty path skips the file.
func LoadMonitor(path string) (*MonitorConfig, error) {
	config := DefaultMonitor()

	if err := decodeFile(path, config); err != nil {
		return nil, err
	}

	if err := config.applyEnv(); err != nil {
		return nil, fmt.Errorf("environment override failed: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *MonitorConfig) applyEnv() error {
	v, err := newEnv(monitorEnv)
	if err != nil {
		return err
	}

	envString(v, "bridge.url", &c.Bridge.URL)
	if err := envInt(v, "bridge.reconnect_delay_ms", &c.Bridge.ReconnectDelayMs); err != nil {
		return err
	}
	envString(v, "metrics.address", &c.Metrics.Address)
	envString(v, "logging.level", &c.Logging.Level)
	return nil
}

// Validate performs validation of the monitor configuration
func (c *MonitorConfig) Validate() error {
	if err := c.Bridge.Validate(); err != nil {
		return fmt.Errorf("bridge config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Enabled reports whether the metrics listener should run
func (m *MonitorMetricsConfig) Enabled() bool {
	return m.Address != ""
}

// Validate validates the metrics listen address
func (m *MonitorMetricsConfig) Validate() error {
	if !m.Enabled() {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Address); err != nil {
		return fmt.Errorf("invalid address '%s': %w", m.Address, err)
	}
	return nil
}

// Validate validates bridge configuration
func (b *BridgeConfig) Validate() error {
	u, err := url.Parse(b.URL)
	if err != nil {
		return fmt.Errorf("invalid url '%s': %w", b.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("url scheme must be ws or wss, got '%s'", u.Scheme)
	}

	if b.ReconnectDelayMs < 1 {
		return fmt.Errorf("reconnect_delay_ms must be positive, got %d", b.ReconnectDelayMs)
	}

	if len(b.Endpoints) == 0 {
		return fmt.Errorf("at least one endpoint is required")
	}

	for i := range b.Endpoints {
		if err := b.Endpoints[i].Validate(); err != nil {
			return fmt.Errorf("endpoint %d: %w", i, err)
		}
	}

	return nil
}

// Validate validates one endpoint declaration
func (e *EndpointConfig) Validate() error {
	if e.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	if e.Smoothing != nil && (*e.Smoothing < 0 || *e.Smoothing > 1) {
		return fmt.Errorf("smoothing must be between 0 and 1, got %f", *e.Smoothing)
	}

	if e.Min != nil && e.Max != nil && *e.Min > *e.Max {
		return fmt.Errorf("min (%f) must not exceed max (%f)", *e.Min, *e.Max)
	}

	return nil
}

// GetReconnectDelay returns the reconnect delay as a time.Duration
func (b *BridgeConfig) GetReconnectDelay() time.Duration {
	return time.Duration(b.ReconnectDelayMs) * time.Millisecond
}
