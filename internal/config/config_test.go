package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.DatabasePath = "/tmp/journal.db"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.QueryInterval != 1.0 {
		t.Errorf("expected query interval 1.0, got %v", cfg.QueryInterval)
	}
	if cfg.WindowSize != 60.0 {
		t.Errorf("expected window 60.0, got %v", cfg.WindowSize)
	}
	if cfg.HintBufferSize != 1000 {
		t.Errorf("expected hint buffer 1000, got %v", cfg.HintBufferSize)
	}
	if cfg.SchemaProbeInterval != 500*time.Millisecond {
		t.Errorf("expected 500ms probe interval, got %v", cfg.SchemaProbeInterval)
	}
	// Defaults alone must not validate: the database path is required.
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation failure without database path")
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty path", func(c *Config) { c.DatabasePath = "" }},
		{"zero interval", func(c *Config) { c.QueryInterval = 0 }},
		{"negative interval", func(c *Config) { c.QueryInterval = -1 }},
		{"zero window", func(c *Config) { c.WindowSize = 0 }},
		{"zero buffer", func(c *Config) { c.HintBufferSize = 0 }},
		{"zero probe", func(c *Config) { c.SchemaProbeInterval = 0 }},
		{"zero retry", func(c *Config) { c.SchemaRetryInterval = 0 }},
		{"bad expected count", func(c *Config) { c.ExpectedColumnCounts = map[string]int{"Vehicle": 1} }},
	}

	for _, tc := range cases {
		cfg := validConfig()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation failure", tc.name)
		}
	}
}

func TestClone_Isolated(t *testing.T) {
	cfg := validConfig()
	cfg.ExpectedColumnCounts = map[string]int{"Vehicle": 3}

	clone := cfg.Clone()
	clone.ExpectedColumnCounts["Vehicle"] = 99
	clone.DatabasePath = "elsewhere.db"

	if cfg.ExpectedColumnCounts["Vehicle"] != 3 {
		t.Error("clone shares the expected-counts map")
	}
	if cfg.DatabasePath != "/tmp/journal.db" {
		t.Error("clone shares scalar fields")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SIMSTREAM_DATABASE_PATH", "/data/run.db")
	t.Setenv("SIMSTREAM_QUERY_INTERVAL", "0.5")
	t.Setenv("SIMSTREAM_WINDOW_SIZE", "120")
	t.Setenv("SIMSTREAM_SCHEMA_PROBE_INTERVAL", "100ms")

	cfg := LoadFromEnv()

	if cfg.DatabasePath != "/data/run.db" {
		t.Errorf("unexpected path %q", cfg.DatabasePath)
	}
	if cfg.QueryInterval != 0.5 {
		t.Errorf("unexpected interval %v", cfg.QueryInterval)
	}
	if cfg.WindowSize != 120 {
		t.Errorf("unexpected window %v", cfg.WindowSize)
	}
	if cfg.SchemaProbeInterval != 100*time.Millisecond {
		t.Errorf("unexpected probe interval %v", cfg.SchemaProbeInterval)
	}
}

func TestLoadFromEnv_IgnoresUnparseable(t *testing.T) {
	t.Setenv("SIMSTREAM_QUERY_INTERVAL", "not-a-number")

	cfg := LoadFromEnv()
	if cfg.QueryInterval != 1.0 {
		t.Errorf("expected default to survive, got %v", cfg.QueryInterval)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"database_path": "/data/sim.db",
		"query_interval": 0.25,
		"window_size": 30,
		"expected_column_counts": {"Vehicle": 4},
		"schema_retry_interval": "250ms"
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DatabasePath != "/data/sim.db" {
		t.Errorf("unexpected path %q", cfg.DatabasePath)
	}
	if cfg.QueryInterval != 0.25 {
		t.Errorf("unexpected interval %v", cfg.QueryInterval)
	}
	if cfg.WindowSize != 30 {
		t.Errorf("unexpected window %v", cfg.WindowSize)
	}
	if cfg.ExpectedColumnCounts["Vehicle"] != 4 {
		t.Errorf("unexpected expected counts %v", cfg.ExpectedColumnCounts)
	}
	if cfg.SchemaRetryInterval != 250*time.Millisecond {
		t.Errorf("unexpected retry interval %v", cfg.SchemaRetryInterval)
	}
	// Untouched fields keep their defaults.
	if cfg.HintBufferSize != 1000 {
		t.Errorf("expected default buffer size, got %v", cfg.HintBufferSize)
	}
}

func TestLoadFromFile_Invalid(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"query_interval": 1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	// Parses but fails validation: no database path.
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected validation error without database path")
	}
}
