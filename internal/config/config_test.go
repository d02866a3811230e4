package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultMatchesSpec(t *testing.T) {
	cfg := Default()
	if cfg.BackendURL != "http://127.0.0.1:5050/ingest" {
		t.Errorf("BackendURL = %q", cfg.BackendURL)
	}
	if cfg.BatchSize != 25 {
		t.Errorf("BatchSize = %d, want 25", cfg.BatchSize)
	}
	if cfg.FlushInterval != 2.0 {
		t.Errorf("FlushInterval = %v, want 2.0", cfg.FlushInterval)
	}
	if cfg.MaxSpoolBytes != 200*1024*1024 {
		t.Errorf("MaxSpoolBytes = %d, want 200MiB", cfg.MaxSpoolBytes)
	}
	if len(cfg.LogPaths) == 0 {
		t.Error("expected non-empty default LogPaths")
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	if cfg.BatchSize != Default().BatchSize {
		t.Errorf("expected default BatchSize on missing file, got %d", cfg.BatchSize)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	content := []byte("batch_size: 99\nbackend_url: http://example.com/ingest\nlog_paths:\n  - /tmp/a.log\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path, nil)
	if cfg.BatchSize != 99 {
		t.Errorf("BatchSize = %d, want 99", cfg.BatchSize)
	}
	if cfg.BackendURL != "http://example.com/ingest" {
		t.Errorf("BackendURL = %q", cfg.BackendURL)
	}
	if len(cfg.LogPaths) != 1 || cfg.LogPaths[0] != "/tmp/a.log" {
		t.Errorf("LogPaths = %v", cfg.LogPaths)
	}
	// Unset keys keep their defaults.
	if cfg.SpoolDir != Default().SpoolDir {
		t.Errorf("SpoolDir = %q, want default preserved", cfg.SpoolDir)
	}
}

func TestLoadJSONOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.json")
	content := []byte(`{"BATCH_SIZE": 7, "API_TOKEN": "tok123"}`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path, nil)
	if cfg.BatchSize != 7 {
		t.Errorf("BatchSize = %d, want 7", cfg.BatchSize)
	}
	if cfg.APIToken != "tok123" {
		t.Errorf("APIToken = %q, want tok123", cfg.APIToken)
	}
}

func TestLoadUnknownKeysIgnored(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	content := []byte("batch_size: 5\nsome_unknown_key: true\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path, nil)
	if cfg.BatchSize != 5 {
		t.Errorf("BatchSize = %d, want 5", cfg.BatchSize)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := &Config{FlushInterval: 2.5, ConnectTimeout: 3, RequestTimeout: 5}
	if got := cfg.FlushIntervalDuration().Seconds(); got != 2.5 {
		t.Errorf("FlushIntervalDuration = %v, want 2.5s", got)
	}
	if got := cfg.ConnectTimeoutDuration().Seconds(); got != 3 {
		t.Errorf("ConnectTimeoutDuration = %v, want 3s", got)
	}
	if got := cfg.RequestTimeoutDuration().Seconds(); got != 5 {
		t.Errorf("RequestTimeoutDuration = %v, want 5s", got)
	}
}
