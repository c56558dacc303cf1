package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Config carries every tunable of the ingestion core. The zero value is
// not usable; start from DefaultConfig or one of the loaders.
type Config struct {
	// DatabasePath is the journal store file written by the simulator.
	DatabasePath string `json:"database_path"`

	// QueryInterval is the simulation-time distance, in seconds,
	// between published checkpoints.
	QueryInterval float64 `json:"query_interval"`

	// ExpectedColumnCounts optionally maps a logical object name to the
	// total physical column count (s_time included) that schema
	// validation must observe before the table is accepted.
	ExpectedColumnCounts map[string]int `json:"expected_column_counts,omitempty"`

	// WindowSize is the repository's sliding window in simulation
	// seconds; frames older than the latest time minus the window are
	// evicted.
	WindowSize float64 `json:"window_size"`

	// HintBufferSize bounds the time-hint buffer; offers beyond it are
	// dropped rather than blocking the producer.
	HintBufferSize int `json:"hint_buffer_size"`

	// SchemaProbeInterval is the wait between probes for the journal's
	// metadata tables; SchemaRetryInterval is the wait after a failed
	// validation pass.
	SchemaProbeInterval time.Duration `json:"schema_probe_interval"`
	SchemaRetryInterval time.Duration `json:"schema_retry_interval"`

	// RetryCount and RetryInterval are retained for compatibility with
	// earlier revisions of the reader. The independent-polling
	// algorithm does not consult them.
	RetryCount    int           `json:"retry_count,omitempty"`
	RetryInterval time.Duration `json:"retry_interval,omitempty"`
}

// DefaultConfig returns the production defaults. The database path is
// deliberately empty: it is the one field every caller must supply.
func DefaultConfig() *Config {
	return &Config{
		QueryInterval:       1.0,
		WindowSize:          60.0,
		HintBufferSize:      1000,
		SchemaProbeInterval: 500 * time.Millisecond,
		SchemaRetryInterval: time.Second,
	}
}

// Validate ensures the configuration can drive a session.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("database path cannot be empty")
	}
	if c.QueryInterval <= 0 {
		return errors.New("query interval must be positive")
	}
	if c.WindowSize <= 0 {
		return errors.New("window size must be positive")
	}
	if c.HintBufferSize <= 0 {
		return errors.New("hint buffer size must be positive")
	}
	if c.SchemaProbeInterval <= 0 {
		return errors.New("schema probe interval must be positive")
	}
	if c.SchemaRetryInterval <= 0 {
		return errors.New("schema retry interval must be positive")
	}
	for object, count := range c.ExpectedColumnCounts {
		if count < 2 {
			return errors.Errorf("expected column count for %q must cover s_time plus at least one column", object)
		}
	}
	return nil
}

// Clone returns a deep copy so a running session cannot observe later
// mutations of the caller's config.
func (c *Config) Clone() *Config {
	out := *c
	if c.ExpectedColumnCounts != nil {
		out.ExpectedColumnCounts = make(map[string]int, len(c.ExpectedColumnCounts))
		for k, v := range c.ExpectedColumnCounts {
			out.ExpectedColumnCounts[k] = v
		}
	}
	return &out
}

// LoadFromEnv builds a configuration from defaults overridden by
// SIMSTREAM_* environment variables. Unparseable values fall back.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if path := os.Getenv("SIMSTREAM_DATABASE_PATH"); path != "" {
		cfg.DatabasePath = path
	}

	if interval := os.Getenv("SIMSTREAM_QUERY_INTERVAL"); interval != "" {
		if v, err := strconv.ParseFloat(interval, 64); err == nil {
			cfg.QueryInterval = v
		}
	}

	if window := os.Getenv("SIMSTREAM_WINDOW_SIZE"); window != "" {
		if v, err := strconv.ParseFloat(window, 64); err == nil {
			cfg.WindowSize = v
		}
	}

	if size := os.Getenv("SIMSTREAM_HINT_BUFFER_SIZE"); size != "" {
		if v, err := strconv.Atoi(size); err == nil {
			cfg.HintBufferSize = v
		}
	}

	if probe := os.Getenv("SIMSTREAM_SCHEMA_PROBE_INTERVAL"); probe != "" {
		if v, err := time.ParseDuration(probe); err == nil {
			cfg.SchemaProbeInterval = v
		}
	}

	if retry := os.Getenv("SIMSTREAM_SCHEMA_RETRY_INTERVAL"); retry != "" {
		if v, err := time.ParseDuration(retry); err == nil {
			cfg.SchemaRetryInterval = v
		}
	}

	return cfg
}

// configFile mirrors Config for JSON parsing, with durations as strings.
type configFile struct {
	DatabasePath         string         `json:"database_path"`
	QueryInterval        float64        `json:"query_interval"`
	ExpectedColumnCounts map[string]int `json:"expected_column_counts"`
	WindowSize           float64        `json:"window_size"`
	HintBufferSize       int            `json:"hint_buffer_size"`
	SchemaProbeInterval  string         `json:"schema_probe_interval"`
	SchemaRetryInterval  string         `json:"schema_retry_interval"`
}

// LoadFromFile reads a JSON configuration file on top of the defaults
// and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config file %s", path)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "parse config file %s", path)
	}

	cfg := DefaultConfig()
	cfg.DatabasePath = file.DatabasePath
	if file.QueryInterval > 0 {
		cfg.QueryInterval = file.QueryInterval
	}
	if file.ExpectedColumnCounts != nil {
		cfg.ExpectedColumnCounts = file.ExpectedColumnCounts
	}
	if file.WindowSize > 0 {
		cfg.WindowSize = file.WindowSize
	}
	if file.HintBufferSize > 0 {
		cfg.HintBufferSize = file.HintBufferSize
	}
	if file.SchemaProbeInterval != "" {
		if v, err := time.ParseDuration(file.SchemaProbeInterval); err == nil {
			cfg.SchemaProbeInterval = v
		}
	}
	if file.SchemaRetryInterval != "" {
		if v, err := time.ParseDuration(file.SchemaRetryInterval); err == nil {
			cfg.SchemaRetryInterval = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid configuration in %s", path)
	}
	return cfg, nil
}
