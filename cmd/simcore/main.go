package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vsoverseer/simcore/internal/blob"
	"github.com/vsoverseer/simcore/internal/config"
	"github.com/vsoverseer/simcore/internal/logging"
	"github.com/vsoverseer/simcore/internal/metrics"
	"github.com/vsoverseer/simcore/internal/models"
	"github.com/vsoverseer/simcore/internal/report"
	"github.com/vsoverseer/simcore/internal/simulation"
	"github.com/vsoverseer/simcore/internal/store"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "simcore [flags]",
		Short: "Deterministic agent outcome simulator",
		Long: `simcore generates reproducible simulated episodes for a trait profile
and prints them with aggregate statistics as a JSON document.

Run flags never fail: a missing or unparsable value falls back to its
default and traits are clamped to [0, 1].

Examples:
  simcore --episodes 100 --seed 42
  simcore --aggression 0.8 --safety 0.2 --format text
  simcore --record --metrics-file /var/lib/node_exporter/simcore.prom
  simcore tune --generations 5
  simcore summarize run.json
  simcore serve --addr :8787

` + config.FlagUsage(),
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if wantsHelp(args) {
				return cmd.Help()
			}
			return runSimulate(cmd, args)
		},
	}

	// Global flags for subcommands. The root command reads its own flags
	// through config.ParseRunArgs.
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file path (default ~/.simcore/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newConfigCmd(),
		newTuneCmd(),
		newRunsCmd(),
		newServeCmd(),
		newMCPServerCmd(),
		newSummarizeCmd(),
	)

	return rootCmd
}

func wantsHelp(args []string) bool {
	for _, a := range args {
		if a == "--" {
			return false
		}
		if a == "-h" || a == "--help" {
			return true
		}
	}
	return false
}

// runSimulate is the default command: one run, one document on stdout.
func runSimulate(cmd *cobra.Command, args []string) error {
	configPath := config.ParseRunArgs(args, config.Default().Defaults).ConfigPath
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	opts := config.ParseRunArgs(args, cfg.Defaults)

	logger, closer := newLogger(cfg, cmd.ErrOrStderr())
	defer closer.Close()

	logger.Debug("run starting",
		"episodes", opts.Episodes, "seed", opts.Seed, "traits", opts.Traits.String())

	batch := simulation.Run(opts.Traits, opts.Seed, opts.Episodes, func(i int, ep models.Episode) {
		logger.Log(cmd.Context(), logging.LevelTrace, "episode",
			"index", i, "unlock_rate", ep.UnlockRate, "objective_complete", ep.ObjectiveComplete,
			"stability", ep.Stability, "elapsed_s", ep.ElapsedS)
	})

	out := cmd.OutOrStdout()
	if opts.Format == config.FormatText {
		if err := report.WriteText(out, batch, 50); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	} else {
		data, err := report.Encode(batch)
		if err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
		if _, err := out.Write(data); err != nil {
			return fmt.Errorf("failed to write document: %w", err)
		}
	}

	if opts.MetricsFile != "" {
		rec := metrics.NewRecorder()
		rec.ObserveBatch(models.SourceCLI, batch)
		if err := rec.WriteTextfile(opts.MetricsFile); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	if opts.Record {
		ctx := cmd.Context()
		s, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		run := models.RunRecord{
			ID:        uuid.NewString(),
			CreatedAt: time.Now().UTC(),
			Source:    models.SourceCLI,
			Seed:      opts.Seed,
			Traits:    opts.Traits,
			Aggregate: batch.Aggregate,
			Episodes:  batch.Episodes,
		}
		if err := s.SaveRun(ctx, run); err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		logger.Info("run recorded", "id", run.ID)
	}

	logger.Debug("run complete",
		"episodes", batch.Aggregate.Episodes, "objective_rate", batch.Aggregate.ObjectiveRate)
	return nil
}

// loadConfig loads and validates the config named by --config.
func loadConfig(cmd *cobra.Command) (*config.SimcoreConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.SimcoreConfig, w io.Writer) (*slog.Logger, io.Closer) {
	return logging.Setup(cfg.Logging.Level, w, logging.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
}

func newDecisionLogger(cfg *config.SimcoreConfig) *logging.DecisionLogger {
	dir, err := config.StateDir()
	if err != nil {
		return nil
	}
	return logging.NewDecisionLogger(dir, cfg.Logging.Level)
}

// openStore opens the configured history store. The SQLite file defaults
// to <state dir>/simcore.db.
func openStore(ctx context.Context, cfg *config.SimcoreConfig) (store.Store, error) {
	target := cfg.Store.DSN
	if cfg.Store.Kind != store.KindPostgres {
		target = cfg.Store.Path
		if target == "" {
			dir, err := config.StateDir()
			if err != nil {
				return nil, err
			}
			target = filepath.Join(dir, "simcore.db")
		}
		if cfg.Store.Kind != store.KindMemory {
			if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
				return nil, fmt.Errorf("creating store directory: %w", err)
			}
		}
	}

	s, err := store.New(ctx, cfg.Store.Kind, target)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return s, nil
}

// newUploader builds an S3 uploader from the export config, with bucket
// overriding the configured one when set.
func newUploader(ctx context.Context, cfg *config.SimcoreConfig, bucket string) (*blob.Uploader, error) {
	if bucket == "" {
		bucket = cfg.Export.S3Bucket
	}
	return blob.New(ctx, blob.Config{
		Bucket:    bucket,
		Region:    cfg.Export.S3Region,
		Endpoint:  cfg.Export.S3Endpoint,
		PathStyle: cfg.Export.S3PathStyle,
		Prefix:    cfg.Export.S3Prefix,
	})
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	notifySignals(ch)
	go func() {
		defer signal.Stop(ch)
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
