// Package config provides unified configuration loading for simcore.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vsoverseer/simcore/internal/models"
	"gopkg.in/yaml.v3"
)

// Default run values, shared by the CLI flags and the HTTP/MCP entry points.
const (
	DefaultEpisodes = 10
	DefaultSeed     = uint64(1)
)

// SimcoreConfig contains all simcore configuration settings.
type SimcoreConfig struct {
	// Defaults are used when a run does not specify its own values.
	Defaults RunDefaults `json:"defaults" yaml:"defaults"`

	// Scoring weights the aggregate statistics into a single score.
	Scoring ScoringConfig `json:"scoring" yaml:"scoring"`

	// Tuning controls population search and canary promotion.
	Tuning TuningConfig `json:"tuning" yaml:"tuning"`

	// Store selects where run history and policies are persisted.
	Store StoreConfig `json:"store" yaml:"store"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Server configures the HTTP API.
	Server ServerConfig `json:"server" yaml:"server"`

	// Export configures the optional S3 destination for reports and backups.
	Export ExportConfig `json:"export" yaml:"export"`
}

// RunDefaults are the fallback values for a simulation run.
type RunDefaults struct {
	Episodes int                 `json:"episodes" yaml:"episodes"`
	Seed     uint64              `json:"seed" yaml:"seed"`
	Traits   models.TraitProfile `json:"traits" yaml:"traits"`
}

// ScoringConfig holds the weights applied to aggregate statistics.
type ScoringConfig struct {
	ObjectiveWeight float64 `json:"objective_completion_weight" yaml:"objective_completion_weight"`
	TimeWeight      float64 `json:"time_to_unlock_weight" yaml:"time_to_unlock_weight"`
	StabilityWeight float64 `json:"stability_weight" yaml:"stability_weight"`
}

// TuningConfig configures the population tuner.
type TuningConfig struct {
	// PopulationSize is the number of candidates per generation, baseline included.
	PopulationSize int `json:"population_size" yaml:"population_size"`

	// BatchEpisodes is the episode count used to score each candidate.
	BatchEpisodes int `json:"batch_episodes" yaml:"batch_episodes"`

	// CanaryEpisodes is the episode count for the baseline/champion comparison.
	CanaryEpisodes int `json:"canary_episodes" yaml:"canary_episodes"`

	// KeepTopK limits how many ranked candidates a generation summary keeps.
	KeepTopK int `json:"keep_top_k" yaml:"keep_top_k"`

	// RequiredImprovement is the minimum relative score gain for promotion.
	RequiredImprovement float64 `json:"required_improvement" yaml:"required_improvement"`

	// MaxStabilityRegression is the largest stability drop tolerated on promotion.
	MaxStabilityRegression float64 `json:"max_stability_regression" yaml:"max_stability_regression"`

	// Workers bounds how many candidates are evaluated concurrently.
	Workers int `json:"workers" yaml:"workers"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Kind is "sqlite" (default), "postgres", or "memory".
	Kind string `json:"kind" yaml:"kind"`

	// Path is the SQLite database file. Empty means <state dir>/simcore.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// DSN is the Postgres connection string. Supports ${VAR} syntax.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// LoggingConfig configures simcore's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to <state dir>/decisions.jsonl.
	Level string `json:"level" yaml:"level"`

	// File, when set, also writes logs to a size-rotated file.
	File string `json:"file,omitempty" yaml:"file,omitempty"`

	MaxSizeMB  int `json:"max_size_mb,omitempty" yaml:"max_size_mb,omitempty"`
	MaxBackups int `json:"max_backups,omitempty" yaml:"max_backups,omitempty"`
	MaxAgeDays int `json:"max_age_days,omitempty" yaml:"max_age_days,omitempty"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`

	// RateLimit is the per-client request rate (requests/second).
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit"`

	// RateBurst is the per-client burst size.
	RateBurst int `json:"rate_burst" yaml:"rate_burst"`

	// MaxEpisodes caps the episode count a single request may ask for.
	MaxEpisodes int `json:"max_episodes" yaml:"max_episodes"`
}

// ExportConfig configures S3 uploads. An empty bucket disables them.
type ExportConfig struct {
	S3Bucket    string `json:"s3_bucket,omitempty" yaml:"s3_bucket,omitempty"`
	S3Region    string `json:"s3_region,omitempty" yaml:"s3_region,omitempty"`
	S3Endpoint  string `json:"s3_endpoint,omitempty" yaml:"s3_endpoint,omitempty"`
	S3PathStyle bool   `json:"s3_path_style,omitempty" yaml:"s3_path_style,omitempty"`
	S3Prefix    string `json:"s3_prefix,omitempty" yaml:"s3_prefix,omitempty"`
}

// Default returns a SimcoreConfig with sensible defaults.
func Default() *SimcoreConfig {
	return &SimcoreConfig{
		Defaults: RunDefaults{
			Episodes: DefaultEpisodes,
			Seed:     DefaultSeed,
			Traits:   models.DefaultTraits(),
		},
		Scoring: ScoringConfig{
			ObjectiveWeight: 0.6,
			TimeWeight:      0.25,
			StabilityWeight: 0.15,
		},
		Tuning: TuningConfig{
			PopulationSize:         16,
			BatchEpisodes:          24,
			CanaryEpisodes:         50,
			KeepTopK:               8,
			RequiredImprovement:    0.03,
			MaxStabilityRegression: 0.02,
			Workers:                4,
		},
		Store: StoreConfig{
			Kind: "sqlite",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Server: ServerConfig{
			Addr:        "127.0.0.1:8787",
			RateLimit:   5,
			RateBurst:   20,
			MaxEpisodes: 100000,
		},
		Export: ExportConfig{
			S3Region: "us-east-1",
			S3Prefix: "simcore/",
		},
	}
}

// StateDir returns the directory simcore keeps its database, logs and
// config in: $SIMCORE_HOME if set, otherwise ~/.simcore.
func StateDir() (string, error) {
	if v := os.Getenv("SIMCORE_HOME"); v != "" {
		return v, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".simcore"), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from path, or from the default location when
// path is empty, then applies environment variables.
// Order: defaults -> config file -> environment variables.
// A missing default file is not an error; a missing explicit path is.
func Load(path string) (*SimcoreConfig, error) {
	config := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err == nil {
			path = p
		}
	}

	if path != "" {
		if _, statErr := os.Stat(path); statErr == nil || explicit {
			fileConfig, loadErr := LoadFromFile(path)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*SimcoreConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.DSN = expandEnvVars(config.Store.DSN)
	config.Defaults.Traits = config.Defaults.Traits.Clamp()

	return config, nil
}

// Save writes the configuration as YAML to path, creating parent directories.
func Save(config *SimcoreConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *SimcoreConfig) Validate() error {
	if c.Defaults.Episodes < 1 {
		return fmt.Errorf("defaults.episodes must be at least 1, got %d", c.Defaults.Episodes)
	}
	if !c.Defaults.Traits.Valid() {
		return fmt.Errorf("defaults.traits must be within [0, 1], got %s", c.Defaults.Traits)
	}

	weights := map[string]float64{
		"objective_completion_weight": c.Scoring.ObjectiveWeight,
		"time_to_unlock_weight":       c.Scoring.TimeWeight,
		"stability_weight":            c.Scoring.StabilityWeight,
	}
	for name, w := range weights {
		if w < 0 {
			return fmt.Errorf("scoring.%s must be non-negative, got %f", name, w)
		}
	}

	if c.Tuning.PopulationSize < 2 {
		return fmt.Errorf("tuning.population_size must be at least 2, got %d", c.Tuning.PopulationSize)
	}
	if c.Tuning.BatchEpisodes < 1 || c.Tuning.CanaryEpisodes < 1 {
		return fmt.Errorf("tuning episode counts must be at least 1 (batch %d, canary %d)",
			c.Tuning.BatchEpisodes, c.Tuning.CanaryEpisodes)
	}
	if c.Tuning.KeepTopK < 1 {
		return fmt.Errorf("tuning.keep_top_k must be at least 1, got %d", c.Tuning.KeepTopK)
	}
	if c.Tuning.Workers < 1 {
		return fmt.Errorf("tuning.workers must be at least 1, got %d", c.Tuning.Workers)
	}
	if c.Tuning.MaxStabilityRegression < 0 {
		return fmt.Errorf("tuning.max_stability_regression must be non-negative, got %f", c.Tuning.MaxStabilityRegression)
	}

	validKinds := map[string]bool{"sqlite": true, "postgres": true, "memory": true}
	if !validKinds[c.Store.Kind] {
		return fmt.Errorf("invalid store kind: %s (valid: sqlite, postgres, memory)", c.Store.Kind)
	}
	if c.Store.Kind == "postgres" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for the postgres store")
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if c.Server.RateLimit <= 0 || c.Server.RateBurst < 1 {
		return fmt.Errorf("server rate limit must be positive (rate %f, burst %d)", c.Server.RateLimit, c.Server.RateBurst)
	}
	if c.Server.MaxEpisodes < 1 {
		return fmt.Errorf("server.max_episodes must be at least 1, got %d", c.Server.MaxEpisodes)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *SimcoreConfig) {
	if v := os.Getenv("SIMCORE_EPISODES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Defaults.Episodes = n
		}
	}
	if v := os.Getenv("SIMCORE_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Defaults.Seed = n
		}
	}

	if v := os.Getenv("SIMCORE_STORE"); v != "" {
		config.Store.Kind = v
	}
	if v := os.Getenv("SIMCORE_DB_PATH"); v != "" {
		config.Store.Path = v
	}
	if v := os.Getenv("SIMCORE_POSTGRES_DSN"); v != "" {
		config.Store.DSN = v
	}

	if v := os.Getenv("SIMCORE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Tuning.Workers = n
		}
	}

	if v := os.Getenv("SIMCORE_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("SIMCORE_LOG_FILE"); v != "" {
		config.Logging.File = v
	}

	if v := os.Getenv("SIMCORE_ADDR"); v != "" {
		config.Server.Addr = v
	}

	if v := os.Getenv("SIMCORE_S3_BUCKET"); v != "" {
		config.Export.S3Bucket = v
	}
	if v := os.Getenv("SIMCORE_S3_REGION"); v != "" {
		config.Export.S3Region = v
	}
	if v := os.Getenv("SIMCORE_S3_ENDPOINT"); v != "" {
		config.Export.S3Endpoint = v
	}
	if v := os.Getenv("SIMCORE_S3_PATH_STYLE"); v != "" {
		config.Export.S3PathStyle = strings.EqualFold(v, "true") || v == "1"
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
