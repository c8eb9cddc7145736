// Package config handles configuration file loading and parsing for regbusd.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/pelletier/go-toml/v2"

	"github.com/jmylchreest/regbus/internal/dbus"
	"github.com/jmylchreest/regbus/internal/registry"
)

// Default configuration values. Bus defaults come from the session itself.
const (
	DefaultBusName       = dbus.DefaultBusName
	DefaultBasePath      = dbus.DefaultBasePath
	DefaultPollInterval  = dbus.DefaultPollInterval
	DefaultDrainLimit    = dbus.DefaultDrainLimit
	DefaultCommandBuffer = 64
	DefaultLogLevel      = "info"
)

// Config is the regbusd configuration.
// Loaded from ~/.config/regbus/regbusd.toml
type Config struct {
	Bus     BusConfig     `toml:"bus"`
	Metrics MetricsConfig `toml:"metrics"`
	Log     LogConfig     `toml:"log"`

	// Seed holds the initial contents of categories, keyed by category name.
	Seed map[string]map[string]any `toml:"seed"`
}

// BusConfig contains D-Bus session settings.
type BusConfig struct {
	Name          string   `toml:"name"`           // Well-known bus name
	Path          string   `toml:"path"`           // Root object path
	PollInterval  Duration `toml:"poll_interval"`  // Bounded wait per loop iteration
	DrainLimit    int      `toml:"drain_limit"`    // Max commands applied per iteration
	CommandBuffer int      `toml:"command_buffer"` // Command channel capacity
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	Listen string `toml:"listen"` // host:port, empty disables
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Bus: BusConfig{
			Name:          DefaultBusName,
			Path:          DefaultBasePath,
			PollInterval:  Duration(DefaultPollInterval),
			DrainLimit:    DefaultDrainLimit,
			CommandBuffer: DefaultCommandBuffer,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
		Seed: make(map[string]map[string]any),
	}
}

// ConfigPath returns the path to the config file.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config.
func ConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "regbus", "regbusd.toml"), nil
}

// LoadConfig loads configuration from the specified path.
// If path is empty, uses the default config path.
// Returns the default config if the file doesn't exist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the specified path.
// Creates parent directories if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		var err error
		path, err = ConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write atomically via temp file
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Bus.Name == "" || !strings.Contains(c.Bus.Name, ".") {
		return fmt.Errorf("bus name %q must contain at least two dot-separated elements", c.Bus.Name)
	}
	if !godbus.ObjectPath(c.Bus.Path).IsValid() {
		return fmt.Errorf("invalid object path %q", c.Bus.Path)
	}

	if err := c.Bus.PollInterval.Within("poll_interval", time.Millisecond, time.Minute); err != nil {
		return err
	}
	if c.Bus.DrainLimit < 1 || c.Bus.DrainLimit > 65536 {
		return fmt.Errorf("drain_limit must be between 1 and 65536, got %d", c.Bus.DrainLimit)
	}
	if c.Bus.CommandBuffer < 0 {
		return fmt.Errorf("command_buffer must not be negative, got %d", c.Bus.CommandBuffer)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	if _, err := c.SeedValues(); err != nil {
		return err
	}

	return nil
}

// SeedValues converts the seed tables into registry values.
func (c *Config) SeedValues() (map[string]map[string]registry.Value, error) {
	out := make(map[string]map[string]registry.Value, len(c.Seed))
	for category, entries := range c.Seed {
		if category == "" {
			return nil, errors.New("seed category name is empty")
		}
		values := make(map[string]registry.Value, len(entries))
		for key, raw := range entries {
			v, err := registry.FromAny(raw)
			if err != nil {
				return nil, fmt.Errorf("seed %s.%s: %w", category, key, err)
			}
			values[key] = v
		}
		out[category] = values
	}
	return out, nil
}

// Level returns the configured slog level.
func (c *Config) Level() slog.Level {
	level, err := ParseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", name)
	}
}
