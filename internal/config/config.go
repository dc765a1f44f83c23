package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the complete relay configuration
type Config struct {
	OSC     OSCConfig     `yaml:"osc"`
	HTTP    HTTPConfig    `yaml:"http"`
	Mirror  MirrorConfig  `yaml:"mirror"`
	Relay   RelayConfig   `yaml:"relay"`
	Logging LoggingConfig `yaml:"logging"`
}

// OSCConfig contains inbound OSC UDP listener configuration
type OSCConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	BufferSize int    `yaml:"buffer_size"` // bytes per datagram
	QueueSize  int    `yaml:"queue_size"`  // decoded packets awaiting routing
}

// HTTPConfig contains HTTP and WebSocket server configuration
type HTTPConfig struct {
	Address        string `yaml:"address"`
	Port           int    `yaml:"port"`
	WSPath         string `yaml:"ws_path"`
	SendQueueSize  int    `yaml:"send_queue_size"`  // frames per session
	WriteTimeoutMs int    `yaml:"write_timeout_ms"`
	PingInterval   int    `yaml:"ping_interval"` // seconds
	MaxSessions    int    `yaml:"max_sessions"`  // 0 = unlimited
}

// MirrorConfig contains the fixed OSC mirror peer configuration
type MirrorConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	WriteTimeoutMs int    `yaml:"write_timeout_ms"`
}

// RelayConfig contains routing configuration
type RelayConfig struct {
	Debug            bool     `yaml:"debug"`
	AllowedAddresses []string `yaml:"allowed_addresses"` // empty = allow all
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string         `yaml:"level"`
	Format   string         `yaml:"format"`
	Output   string         `yaml:"output"` // stdout, stderr or a file path
	Rotation RotationConfig `yaml:"rotation"`
}

// RotationConfig controls log file rotation for file outputs
type RotationConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// Default returns the relay configuration used when no file overrides a field
func Default() *Config {
	return &Config{
		OSC: OSCConfig{
			Host:       "0.0.0.0",
			Port:       57121,
			BufferSize: 65536,
			QueueSize:  1024,
		},
		HTTP: HTTPConfig{
			Address:        "0.0.0.0",
			Port:           8080,
			WSPath:         "/ws",
			SendQueueSize:  64,
			WriteTimeoutMs: 10000,
			PingInterval:   30,
		},
		Mirror: MirrorConfig{
			Enabled:        true,
			Host:           "127.0.0.1",
			Port:           12345,
			WriteTimeoutMs: 100,
		},
		Logging: defaultLogging(),
	}
}

func defaultLogging() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "stdout",
		Rotation: RotationConfig{
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}
}

// Load reads the configuration file, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	config := Default()

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

func decodeFile(path string, out any) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// relayEnv maps config keys to environment variables. Earlier names win.
var relayEnv = map[string][]string{
	"osc.host":                {"SC_OSC_HOST"},
	"osc.port":                {"SC_OSC_PORT", "OSC_PORT"},
	"http.port":               {"HYDRA_WS_PORT", "WS_PORT"},
	"relay.debug":             {"DEBUG"},
	"relay.allowed_addresses": {"ALLOWED_OSC_ADDRESSES"},
	"mirror.host":             {"OF_OSC_HOST"},
	"mirror.port":             {"OF_OSC_PORT"},
	"logging.level":           {"HYDRA_LOG_LEVEL"},
}

// newEnv returns a viper instance bound to the given environment variables
func newEnv(bindings map[string][]string) (*viper.Viper, error) {
	v := viper.New()
	for key, names := range bindings {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return v, nil
}

func envInt(v *viper.Viper, key string, dst *int) error {
	if !v.IsSet(key) {
		return nil
	}
	raw := strings.TrimSpace(v.GetString(key))
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, raw)
	}
	*dst = n
	return nil
}

func envString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = strings.TrimSpace(v.GetString(key))
	}
}

func (c *Config) applyEnv() error {
	v, err := newEnv(relayEnv)
	if err != nil {
		return err
	}

	envString(v, "osc.host", &c.OSC.Host)
	if err := envInt(v, "osc.port", &c.OSC.Port); err != nil {
		return err
	}
	if err := envInt(v, "http.port", &c.HTTP.Port); err != nil {
		return err
	}
	envString(v, "mirror.host", &c.Mirror.Host)
	if err := envInt(v, "mirror.port", &c.Mirror.Port); err != nil {
		return err
	}
	envString(v, "logging.level", &c.Logging.Level)

	if v.IsSet("relay.debug") {
		raw := strings.TrimSpace(v.GetString("relay.debug"))
		c.Relay.Debug = strings.EqualFold(raw, "true") || raw == "1"
	}

	if v.IsSet("relay.allowed_addresses") {
		c.Relay.AllowedAddresses = SplitList(v.GetString("relay.allowed_addresses"))
	}

	return nil
}

// SplitList splits a comma separated list, trimming entries and dropping blanks
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate performs validation of the relay configuration
func (c *Config) Validate() error {
	if err := c.OSC.Validate(); err != nil {
		return fmt.Errorf("osc config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Mirror.Validate(); err != nil {
		return fmt.Errorf("mirror config: %w", err)
	}

	if err := c.Relay.Validate(); err != nil {
		return fmt.Errorf("relay config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates OSC listener configuration
func (o *OSCConfig) Validate() error {
	if o.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}

	if err := validatePort("port", o.Port); err != nil {
		return err
	}

	if o.BufferSize < 512 {
		return fmt.Errorf("buffer_size must be at least 512 bytes, got %d", o.BufferSize)
	}

	if o.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", o.QueueSize)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if err := validatePort("port", h.Port); err != nil {
		return err
	}

	if !strings.HasPrefix(h.WSPath, "/") {
		return fmt.Errorf("ws_path must start with '/', got '%s'", h.WSPath)
	}

	if h.SendQueueSize < 1 {
		return fmt.Errorf("send_queue_size must be at least 1, got %d", h.SendQueueSize)
	}

	if h.WriteTimeoutMs < 1 {
		return fmt.Errorf("write_timeout_ms must be positive, got %d", h.WriteTimeoutMs)
	}

	if h.PingInterval < 1 {
		return fmt.Errorf("ping_interval must be at least 1 second, got %d", h.PingInterval)
	}

	if h.MaxSessions < 0 {
		return fmt.Errorf("max_sessions cannot be negative, got %d", h.MaxSessions)
	}

	return nil
}

// Validate validates mirror configuration. A disabled mirror is not checked.
func (m *MirrorConfig) Validate() error {
	if !m.Enabled {
		return nil
	}

	if m.Host == "" {
		return fmt.Errorf("host cannot be empty when the mirror is enabled")
	}

	if err := validatePort("port", m.Port); err != nil {
		return err
	}

	if m.WriteTimeoutMs < 1 {
		return fmt.Errorf("write_timeout_ms must be positive, got %d", m.WriteTimeoutMs)
	}

	return nil
}

// Validate validates routing configuration
func (r *RelayConfig) Validate() error {
	for _, addr := range r.AllowedAddresses {
		if !strings.HasPrefix(strings.TrimSpace(addr), "/") {
			return fmt.Errorf("allowed address must start with '/', got '%s'", addr)
		}
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	if l.Rotation.MaxSizeMB < 0 || l.Rotation.MaxBackups < 0 || l.Rotation.MaxAgeDays < 0 {
		return fmt.Errorf("rotation limits cannot be negative")
	}

	return nil
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

// GetWriteTimeout returns the socket write timeout as a time.Duration
func (h *HTTPConfig) GetWriteTimeout() time.Duration {
	return time.Duration(h.WriteTimeoutMs) * time.Millisecond
}

// GetPingInterval returns the socket ping interval as a time.Duration
func (h *HTTPConfig) GetPingInterval() time.Duration {
	return time.Duration(h.PingInterval) * time.Second
}

// GetWriteTimeout returns the mirror write timeout as a time.Duration
func (m *MirrorConfig) GetWriteTimeout() time.Duration {
	return time.Duration(m.WriteTimeoutMs) * time.Millisecond
}
