// Package config loads collectord's configuration, recognizing the
// keys documented in SPEC_FULL.md and falling back to sane defaults
// when a key or the whole file is missing.
package config

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config mirrors the key table in spec.md §6. Durations are expressed
// in seconds in the file (matching the original single-file
// collector's config) and converted to time.Duration by the Duration
// helpers below.
type Config struct {
	LogPaths       []string `yaml:"log_paths" json:"LOG_PATHS"`
	BackendURL     string   `yaml:"backend_url" json:"BACKEND_URL"`
	APIToken       string   `yaml:"api_token" json:"API_TOKEN"`
	BatchSize      int      `yaml:"batch_size" json:"BATCH_SIZE"`
	FlushInterval  float64  `yaml:"flush_interval" json:"FLUSH_INTERVAL"`
	SpoolDir       string   `yaml:"spool_dir" json:"SPOOL_DIR"`
	MaxSpoolBytes  int64    `yaml:"max_spool_bytes" json:"MAX_SPOOL_BYTES"`
	ConnectTimeout float64  `yaml:"connect_timeout" json:"CONNECT_TIMEOUT"`
	RequestTimeout float64  `yaml:"request_timeout" json:"REQUEST_TIMEOUT"`
	LogFile        string   `yaml:"log_file" json:"LOG_FILE"`
	Hostname       string   `yaml:"hostname" json:"HOSTNAME"`

	// Dashboard configures the optional status/diagnostics endpoint
	// (SPEC_FULL.md's status module, adapted from the teacher's web
	// dashboard). Port 0 disables it.
	Dashboard DashboardConfig `yaml:"dashboard" json:"DASHBOARD"`

	// Monitor configures self-monitoring of the collector's own
	// pipeline health (SPEC_FULL.md's metrics-collection module,
	// adapted from the teacher's anomaly detector).
	Monitor MonitorConfig `yaml:"monitor" json:"MONITOR"`
}

// DashboardConfig contains status/diagnostics server settings.
type DashboardConfig struct {
	Port int    `yaml:"port" json:"PORT"`
	Host string `yaml:"host" json:"HOST"`
}

// MonitorConfig contains pipeline self-monitoring settings, carried
// over from the teacher's DetectorConfig with fields that described
// HTTP traffic anomalies renamed to describe collector health.
type MonitorConfig struct {
	WindowSize       int     `yaml:"window_size" json:"WINDOW_SIZE"`
	SensitivityLevel float64 `yaml:"sensitivity_level" json:"SENSITIVITY_LEVEL"`
	Algorithm        string  `yaml:"algorithm" json:"ALGORITHM"` // "moving_average", "cusum", or "stddev"
	SmoothingFactor  float64 `yaml:"smoothing_factor" json:"SMOOTHING_FACTOR"`
	CUSUMSlack       float64 `yaml:"cusum_slack" json:"CUSUM_SLACK"`
	CUSUMThreshold   float64 `yaml:"cusum_threshold" json:"CUSUM_THRESHOLD"`
}

// FlushIntervalDuration returns FlushInterval as a time.Duration.
func (c *Config) FlushIntervalDuration() time.Duration {
	return time.Duration(c.FlushInterval * float64(time.Second))
}

// ConnectTimeoutDuration returns ConnectTimeout as a time.Duration.
func (c *Config) ConnectTimeoutDuration() time.Duration {
	return time.Duration(c.ConnectTimeout * float64(time.Second))
}

// RequestTimeoutDuration returns RequestTimeout as a time.Duration.
func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout * float64(time.Second))
}

// Default returns the built-in defaults from spec.md §6.
func Default() *Config {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	return &Config{
		LogPaths: []string{
			"/var/log/auth.log",
			"/var/log/syslog",
			"/var/log/kern.log",
			"/var/log/nginx/access.log",
			"/var/log/nginx/error.log",
			"/var/log/mysql/error.log",
			"/var/log/ufw.log",
		},
		BackendURL:     "http://127.0.0.1:5050/ingest",
		BatchSize:      25,
		FlushInterval:  2.0,
		SpoolDir:       "/var/spool/log_collector",
		MaxSpoolBytes:  200 * 1024 * 1024,
		ConnectTimeout: 3.0,
		RequestTimeout: 5.0,
		LogFile:        "/var/log/log_collector.log",
		Hostname:       hostname,
		Dashboard: DashboardConfig{
			Port: 0, // disabled unless explicitly configured
			Host: "127.0.0.1",
		},
		Monitor: MonitorConfig{
			WindowSize:       100,
			SensitivityLevel: 3.0,
			Algorithm:        "stddev",
			SmoothingFactor:  0.3,
			CUSUMSlack:       0.5,
			CUSUMThreshold:   5.0,
		},
	}
}

// Load reads path (if non-empty) over top of Default(). Paths ending
// in ".json" are decoded as JSON (spec.md §6's CLI contract: "optional
// path to a configuration file (JSON object)"); any other extension is
// decoded as YAML, matching the teacher's own config format. A missing
// or unparsable file is logged and defaults are used — ConfigLoadError
// is never fatal (spec.md §7).
func Load(path string, logger *log.Logger) *Config {
	cfg := Default()
	if path == "" {
		return cfg
	}
	if logger == nil {
		logger = log.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Printf("config: failed to read %s: %v; using defaults", path, err)
		return cfg
	}

	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			logger.Printf("config: failed to parse JSON %s: %v; using defaults", path, err)
			return Default()
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		logger.Printf("config: failed to parse YAML %s: %v; using defaults", path, err)
		return Default()
	}

	logger.Printf("config: loaded %s", path)
	return cfg
}
