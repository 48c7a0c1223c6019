// Package config provides configuration parsing for hostpulse.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can use duration strings
// like "2s" or "500ms".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config represents the hostpulse daemon configuration.
type Config struct {
	// Interval is the sampling cadence.
	Interval Duration `yaml:"interval"`

	// Capacity is the number of samples retained in the ring buffer.
	Capacity int `yaml:"capacity"`

	// QueryTimeout bounds a single counter query cycle.
	QueryTimeout Duration `yaml:"query_timeout"`

	// SnapshotPath is where the published snapshot JSON is written.
	SnapshotPath string `yaml:"snapshot_path"`

	// HistoryFile, if set, enables an append-only JSONL log of samples.
	HistoryFile string `yaml:"history_file"`

	// Listen, if set, enables the websocket publisher on this address
	// (e.g. "127.0.0.1:9167").
	Listen string `yaml:"listen"`

	// LogLevel for daemon logging: debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// Alerts holds gauge alert thresholds.
	Alerts AlertsConfig `yaml:"alerts"`
}

// AlertsConfig holds gauge thresholds in percent, 0 to 100. A value of zero
// disables that alert.
type AlertsConfig struct {
	// CPUPercent flags samples whose CPU usage exceeds this value.
	CPUPercent float64 `yaml:"cpu_percent"`

	// MemoryPercent flags samples whose memory usage exceeds this value.
	MemoryPercent float64 `yaml:"memory_percent"`

	// DiskPercent flags samples whose disk usage exceeds this value.
	DiskPercent float64 `yaml:"disk_percent"`
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		Interval:     Duration{2 * time.Second},
		Capacity:     120,
		QueryTimeout: Duration{1 * time.Second},
		SnapshotPath: filepath.Join(home, ".cache", "hostpulse", "snapshot.json"),
		HistoryFile:  "",
		Listen:       "",
		LogLevel:     "info",
		Alerts: AlertsConfig{
			CPUPercent:    80,
			MemoryPercent: 80,
			DiskPercent:   90,
		},
	}
}

// LoadConfig loads configuration from a YAML file, merging with defaults.
// A missing file is not an error; the defaults apply.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	config.SnapshotPath = expandHome(config.SnapshotPath)
	config.HistoryFile = expandHome(config.HistoryFile)

	return config, nil
}

// Validate checks the configuration for required fields and logical
// consistency. Any error here is fatal at startup, before the loop runs.
func (c *Config) Validate() error {
	if c.Interval.Duration < 100*time.Millisecond {
		return fmt.Errorf("interval must be at least 100ms, got %s", c.Interval)
	}
	if c.Capacity < 1 || c.Capacity > 10000 {
		return fmt.Errorf("capacity must be between 1 and 10000, got %d", c.Capacity)
	}
	if c.QueryTimeout.Duration <= 0 {
		return fmt.Errorf("query_timeout must be positive, got %s", c.QueryTimeout)
	}
	if c.QueryTimeout.Duration >= c.Interval.Duration {
		return fmt.Errorf("query_timeout (%s) must be shorter than interval (%s)",
			c.QueryTimeout, c.Interval)
	}
	if c.SnapshotPath == "" {
		return fmt.Errorf("snapshot_path is required")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	for _, t := range []struct {
		name  string
		value float64
	}{
		{"alerts.cpu_percent", c.Alerts.CPUPercent},
		{"alerts.memory_percent", c.Alerts.MemoryPercent},
		{"alerts.disk_percent", c.Alerts.DiskPercent},
	} {
		if t.value < 0 || t.value > 100 {
			return fmt.Errorf("%s must be between 0 and 100, got %g", t.name, t.value)
		}
	}
	return nil
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
