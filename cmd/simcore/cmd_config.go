package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vsoverseer/simcore/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage simcore configuration",
		Long: `View and modify simcore configuration settings.

Configuration is stored in ~/.simcore/config.yaml ($SIMCORE_HOME overrides
the directory, --config the file).

Examples:
  simcore config list                          # Show all settings
  simcore config get tuning.workers            # Get a specific setting
  simcore config set logging.level debug       # Set a setting
  simcore config set defaults.traits.focus 0.7`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			path, _ := cmd.Flags().GetString("config")

			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			redacted := *cfg
			redacted.Store.DSN = redact(cfg.Store.DSN)

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(redacted)
			}
			data, err := yaml.Marshal(&redacted)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			path, _ := cmd.Flags().GetString("config")
			key := args[0]
			out := cmd.OutOrStdout()

			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(out, "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, value := args[0], args[1]
			out := cmd.OutOrStdout()

			path, err := configFilePath(cmd)
			if err != nil {
				return err
			}

			// Environment overrides must not end up in the file.
			cfg := config.Default()
			if _, statErr := os.Stat(path); statErr == nil {
				if cfg, err = config.LoadFromFile(path); err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			}

			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(out).Encode(map[string]interface{}{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			}
			fmt.Fprintf(out, "Set %s = %s\n", key, value)
			return nil
		},
	}
}

func configFilePath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, nil
	}
	return config.DefaultPath()
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.SimcoreConfig, key string) (interface{}, bool) {
	switch key {
	case "defaults.episodes":
		return cfg.Defaults.Episodes, true
	case "defaults.seed":
		return cfg.Defaults.Seed, true
	case "defaults.traits.aggression":
		return cfg.Defaults.Traits.Aggression, true
	case "defaults.traits.greed":
		return cfg.Defaults.Traits.Greed, true
	case "defaults.traits.safety":
		return cfg.Defaults.Traits.Safety, true
	case "defaults.traits.focus":
		return cfg.Defaults.Traits.Focus, true
	case "scoring.objective_completion_weight":
		return cfg.Scoring.ObjectiveWeight, true
	case "scoring.time_to_unlock_weight":
		return cfg.Scoring.TimeWeight, true
	case "scoring.stability_weight":
		return cfg.Scoring.StabilityWeight, true
	case "tuning.population_size":
		return cfg.Tuning.PopulationSize, true
	case "tuning.batch_episodes":
		return cfg.Tuning.BatchEpisodes, true
	case "tuning.canary_episodes":
		return cfg.Tuning.CanaryEpisodes, true
	case "tuning.keep_top_k":
		return cfg.Tuning.KeepTopK, true
	case "tuning.required_improvement":
		return cfg.Tuning.RequiredImprovement, true
	case "tuning.max_stability_regression":
		return cfg.Tuning.MaxStabilityRegression, true
	case "tuning.workers":
		return cfg.Tuning.Workers, true
	case "store.kind":
		return cfg.Store.Kind, true
	case "store.path":
		return cfg.Store.Path, true
	case "store.dsn":
		return redact(cfg.Store.DSN), true
	case "logging.level":
		return cfg.Logging.Level, true
	case "logging.file":
		return cfg.Logging.File, true
	case "server.addr":
		return cfg.Server.Addr, true
	case "server.rate_limit":
		return cfg.Server.RateLimit, true
	case "server.rate_burst":
		return cfg.Server.RateBurst, true
	case "server.max_episodes":
		return cfg.Server.MaxEpisodes, true
	case "export.s3_bucket":
		return cfg.Export.S3Bucket, true
	case "export.s3_region":
		return cfg.Export.S3Region, true
	case "export.s3_endpoint":
		return cfg.Export.S3Endpoint, true
	case "export.s3_path_style":
		return cfg.Export.S3PathStyle, true
	case "export.s3_prefix":
		return cfg.Export.S3Prefix, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.SimcoreConfig, key, value string) error {
	var err error
	switch key {
	case "defaults.episodes":
		cfg.Defaults.Episodes, err = parseIntValue(value)
	case "defaults.seed":
		cfg.Defaults.Seed, err = strconv.ParseUint(value, 10, 64)
	case "defaults.traits.aggression":
		cfg.Defaults.Traits.Aggression, err = parseFloatValue(value)
	case "defaults.traits.greed":
		cfg.Defaults.Traits.Greed, err = parseFloatValue(value)
	case "defaults.traits.safety":
		cfg.Defaults.Traits.Safety, err = parseFloatValue(value)
	case "defaults.traits.focus":
		cfg.Defaults.Traits.Focus, err = parseFloatValue(value)
	case "scoring.objective_completion_weight":
		cfg.Scoring.ObjectiveWeight, err = parseFloatValue(value)
	case "scoring.time_to_unlock_weight":
		cfg.Scoring.TimeWeight, err = parseFloatValue(value)
	case "scoring.stability_weight":
		cfg.Scoring.StabilityWeight, err = parseFloatValue(value)
	case "tuning.population_size":
		cfg.Tuning.PopulationSize, err = parseIntValue(value)
	case "tuning.batch_episodes":
		cfg.Tuning.BatchEpisodes, err = parseIntValue(value)
	case "tuning.canary_episodes":
		cfg.Tuning.CanaryEpisodes, err = parseIntValue(value)
	case "tuning.keep_top_k":
		cfg.Tuning.KeepTopK, err = parseIntValue(value)
	case "tuning.required_improvement":
		cfg.Tuning.RequiredImprovement, err = parseFloatValue(value)
	case "tuning.max_stability_regression":
		cfg.Tuning.MaxStabilityRegression, err = parseFloatValue(value)
	case "tuning.workers":
		cfg.Tuning.Workers, err = parseIntValue(value)
	case "store.kind":
		cfg.Store.Kind = value
	case "store.path":
		cfg.Store.Path = value
	case "store.dsn":
		cfg.Store.DSN = value
	case "logging.level":
		cfg.Logging.Level = value
	case "logging.file":
		cfg.Logging.File = value
	case "server.addr":
		cfg.Server.Addr = value
	case "server.rate_limit":
		cfg.Server.RateLimit, err = parseFloatValue(value)
	case "server.rate_burst":
		cfg.Server.RateBurst, err = parseIntValue(value)
	case "server.max_episodes":
		cfg.Server.MaxEpisodes, err = parseIntValue(value)
	case "export.s3_bucket":
		cfg.Export.S3Bucket = value
	case "export.s3_region":
		cfg.Export.S3Region = value
	case "export.s3_endpoint":
		cfg.Export.S3Endpoint = value
	case "export.s3_path_style":
		cfg.Export.S3PathStyle = value == "true" || value == "1"
	case "export.s3_prefix":
		cfg.Export.S3Prefix = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %s", key, value)
	}
	return nil
}

func parseIntValue(s string) (int, error) { return strconv.Atoi(s) }

func parseFloatValue(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// redact hides a connection string that may carry a password.
func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
