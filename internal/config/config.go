// Package config loads the driver configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	vlibvirt "github.com/jbweber/virtdriver/internal/libvirt"
	"github.com/jbweber/virtdriver/internal/retry"
)

// DefaultPath is read when no --config flag is given. A missing file at
// the default path is not an error.
const DefaultPath = "/etc/virtdriver/config.yaml"

// Config is the complete driver configuration.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Retry      retry.Config     `yaml:"retry"`
	Keys       KeysConfig       `yaml:"keys"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ConnectionConfig selects the libvirt daemon.
type ConnectionConfig struct {
	URI     string        `yaml:"uri,omitempty"`
	Socket  string        `yaml:"socket,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// KeysConfig tunes keystroke injection.
type KeysConfig struct {
	// Pause is the delay applied for each <wait> token.
	Pause time.Duration `yaml:"pause,omitempty"`
}

// StorageConfig describes the pools volumes are created in.
type StorageConfig struct {
	// Pools maps pool names to the directories they are rooted at. Pools
	// listed here are created on demand before a volume is defined in them.
	Pools map[string]string `yaml:"pools,omitempty"`
}

// LogConfig configures the logrus logger.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // "text" or "json"
}

// MetricsConfig exposes Prometheus metrics while a command runs.
type MetricsConfig struct {
	// Listen is the address of the metrics server. Empty disables it.
	Listen string `yaml:"listen,omitempty"`
	Path   string `yaml:"path,omitempty"`
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in defaults for unset fields.
func (c *Config) Normalize() {
	if c.Connection.URI == "" {
		c.Connection.URI = vlibvirt.DefaultURI
	}
	if c.Connection.Socket == "" {
		c.Connection.Socket = vlibvirt.DefaultSocket
	}
	if c.Connection.Timeout == 0 {
		c.Connection.Timeout = vlibvirt.DefaultTimeout
	}

	def := retry.DefaultConfig()
	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = def.Attempts
	}
	if c.Retry.Delay == 0 {
		c.Retry.Delay = def.Delay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = def.MaxDelay
	}
	if c.Retry.Backoff == "" {
		c.Retry.Backoff = def.Backoff
	}

	if c.Keys.Pause == 0 {
		c.Keys.Pause = time.Second
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if !strings.Contains(c.Connection.URI, "://") {
		return fmt.Errorf("connection.uri must be a libvirt URI, got %q", c.Connection.URI)
	}
	if c.Connection.Timeout < 0 {
		return fmt.Errorf("connection.timeout must not be negative")
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if c.Keys.Pause < 0 {
		return fmt.Errorf("keys.pause must not be negative")
	}
	for name, path := range c.Storage.Pools {
		if name == "" {
			return fmt.Errorf("storage.pools: empty pool name")
		}
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("storage.pools[%s]: path must be absolute, got %q", name, path)
		}
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}
	return nil
}

// LoadFromFile loads, normalizes and validates a configuration file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Load reads path, or returns the defaults when path is the default path
// and does not exist.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg, err := LoadFromFile(path)
	if err != nil && path == DefaultPath && errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse decodes YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewLogger builds a logger from the log settings.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetLevel(level)
	if c.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}
