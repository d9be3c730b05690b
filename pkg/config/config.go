// Package config loads and validates the devhostd daemon configuration.
//
// Configuration comes from an optional YAML file layered over built-in
// defaults; command line flags are applied on top by the daemon itself.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/devhost-project/devhost-go/pkg/devnum"
	"github.com/devhost-project/devhost-go/pkg/modbus"
)

// DeviceConfig describes the device identity the daemon registers.
type DeviceConfig struct {
	// Name is the base device name. Node names append the minor number.
	Name string `yaml:"name"`
	// Class is the device class grouping the nodes.
	Class string `yaml:"class"`
	// FirstMinor is the first minor number of the requested region.
	FirstMinor uint32 `yaml:"first_minor"`
	// MinorCount is the number of minors, one node per minor.
	MinorCount uint32 `yaml:"minor_count"`
}

// Config holds the full daemon configuration.
type Config struct {
	Device DeviceConfig `yaml:"device"`

	// SessionCapacity bounds the number of live sessions. 0 means unlimited.
	SessionCapacity int `yaml:"session_capacity"`

	// StateFile persists allocated majors across restarts. Empty disables
	// persistence.
	StateFile string `yaml:"state_file"`

	// TraceFile receives the binary trace stream. Empty disables tracing.
	TraceFile string `yaml:"trace_file"`

	// ExportDir is where device nodes are exported as unix sockets. Empty
	// disables the exporter.
	ExportDir string `yaml:"export_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file or flag overrides it.
func Default() Config {
	return Config{
		Device: DeviceConfig{
			Name:       modbus.DeviceName,
			Class:      modbus.ClassName,
			FirstMinor: 0,
			MinorCount: 1,
		},
		SessionCapacity: 0,
		LogLevel:        "info",
	}
}

// Load reads a YAML configuration file and applies it over the defaults.
// Fields absent from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks for values the daemon cannot run with.
func (c Config) Validate() error {
	if c.Device.Name == "" {
		return fmt.Errorf("device name must not be empty")
	}
	if strings.Contains(c.Device.Name, "/") {
		return fmt.Errorf("device name %q must not contain '/'", c.Device.Name)
	}
	if c.Device.Class == "" {
		return fmt.Errorf("class name must not be empty")
	}
	if strings.Contains(c.Device.Class, "/") {
		return fmt.Errorf("class name %q must not contain '/'", c.Device.Class)
	}
	if c.Device.MinorCount == 0 {
		return fmt.Errorf("minor count must be at least 1")
	}
	if c.Device.FirstMinor > devnum.MaxMinor || c.Device.MinorCount-1 > devnum.MaxMinor-c.Device.FirstMinor {
		return fmt.Errorf("minor range %d+%d exceeds maximum minor %d",
			c.Device.FirstMinor, c.Device.MinorCount, uint32(devnum.MaxMinor))
	}
	if c.SessionCapacity < 0 {
		return fmt.Errorf("session capacity must not be negative, got %d", c.SessionCapacity)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q (want debug, info, warn or error)", c.LogLevel)
	}
	return nil
}

// SlogLevel maps the configured log level onto a slog.Level. Unknown
// values fall back to info; Validate rejects them beforehand.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
