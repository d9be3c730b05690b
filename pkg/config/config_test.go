package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devhost-project/devhost-go/pkg/modbus"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Device.Name != modbus.DeviceName {
		t.Errorf("default device name = %q, want %q", cfg.Device.Name, modbus.DeviceName)
	}
	if cfg.Device.Class != modbus.ClassName {
		t.Errorf("default class name = %q, want %q", cfg.Device.Class, modbus.ClassName)
	}
	if cfg.Device.MinorCount != 1 {
		t.Errorf("default minor count = %d, want 1", cfg.Device.MinorCount)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("default log level = %q, want info", cfg.LogLevel)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("FullFile", func(t *testing.T) {
		path := filepath.Join(dir, "full.yaml")
		content := `device:
  name: sensor_dev
  class: sensor_class
  first_minor: 4
  minor_count: 2
session_capacity: 16
state_file: /var/lib/devhost/state.json
trace_file: /var/log/devhost/devhost.dtrace
export_dir: /run/devhost
log_level: debug
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("write config: %v", err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if cfg.Device.Name != "sensor_dev" {
			t.Errorf("device name = %q, want sensor_dev", cfg.Device.Name)
		}
		if cfg.Device.Class != "sensor_class" {
			t.Errorf("class name = %q, want sensor_class", cfg.Device.Class)
		}
		if cfg.Device.FirstMinor != 4 {
			t.Errorf("first minor = %d, want 4", cfg.Device.FirstMinor)
		}
		if cfg.Device.MinorCount != 2 {
			t.Errorf("minor count = %d, want 2", cfg.Device.MinorCount)
		}
		if cfg.SessionCapacity != 16 {
			t.Errorf("session capacity = %d, want 16", cfg.SessionCapacity)
		}
		if cfg.StateFile != "/var/lib/devhost/state.json" {
			t.Errorf("state file = %q", cfg.StateFile)
		}
		if cfg.TraceFile != "/var/log/devhost/devhost.dtrace" {
			t.Errorf("trace file = %q", cfg.TraceFile)
		}
		if cfg.ExportDir != "/run/devhost" {
			t.Errorf("export dir = %q", cfg.ExportDir)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("log level = %q, want debug", cfg.LogLevel)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("loaded config should validate, got %v", err)
		}
	})

	t.Run("PartialFileKeepsDefaults", func(t *testing.T) {
		path := filepath.Join(dir, "partial.yaml")
		if err := os.WriteFile(path, []byte("log_level: warn\n"), 0644); err != nil {
			t.Fatalf("write config: %v", err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		if cfg.LogLevel != "warn" {
			t.Errorf("log level = %q, want warn", cfg.LogLevel)
		}
		if cfg.Device.Name != modbus.DeviceName {
			t.Errorf("device name = %q, want default %q", cfg.Device.Name, modbus.DeviceName)
		}
		if cfg.Device.MinorCount != 1 {
			t.Errorf("minor count = %d, want default 1", cfg.Device.MinorCount)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := Load(filepath.Join(dir, "nope.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("MalformedYAML", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("device: [not a mapping\n"), 0644); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Error("expected error for malformed YAML")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "Valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "EmptyDeviceName",
			mutate:  func(c *Config) { c.Device.Name = "" },
			wantErr: "device name",
		},
		{
			name:    "SlashInDeviceName",
			mutate:  func(c *Config) { c.Device.Name = "dev/null" },
			wantErr: "device name",
		},
		{
			name:    "EmptyClassName",
			mutate:  func(c *Config) { c.Device.Class = "" },
			wantErr: "class name",
		},
		{
			name:    "SlashInClassName",
			mutate:  func(c *Config) { c.Device.Class = "a/b" },
			wantErr: "class name",
		},
		{
			name:    "ZeroMinorCount",
			mutate:  func(c *Config) { c.Device.MinorCount = 0 },
			wantErr: "minor count",
		},
		{
			name: "MinorRangeTooLarge",
			mutate: func(c *Config) {
				c.Device.FirstMinor = 1 << 20
				c.Device.MinorCount = 1
			},
			wantErr: "minor range",
		},
		{
			name:    "NegativeSessionCapacity",
			mutate:  func(c *Config) { c.SessionCapacity = -1 },
			wantErr: "session capacity",
		},
		{
			name:    "UnknownLogLevel",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		cfg := Config{LogLevel: tt.level}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
