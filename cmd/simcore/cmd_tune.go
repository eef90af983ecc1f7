package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vsoverseer/simcore/internal/metrics"
	"github.com/vsoverseer/simcore/internal/tuning"
)

func newTuneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tune",
		Short: "Search for a better trait profile",
		Long: `Run tuning generations starting from the active policy.

Each generation scores a mutated population, compares the champion with
the active policy on fresh canary seeds, and promotes it only when the
score improves enough without hurting stability. Generation i uses seed
S+i. Policies are saved to the history store.

Examples:
  simcore tune                           # One generation, time-based seed
  simcore tune --generations 5 --seed 42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			generations, _ := cmd.Flags().GetInt("generations")
			seed, _ := cmd.Flags().GetUint64("seed")
			metricsFile, _ := cmd.Flags().GetString("metrics-file")
			if !cmd.Flags().Changed("seed") {
				seed = uint64(time.Now().UnixMilli())
			}
			if generations < 1 {
				return fmt.Errorf("--generations must be at least 1, got %d", generations)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, closer := newLogger(cfg, cmd.ErrOrStderr())
			defer closer.Close()
			decisions := newDecisionLogger(cfg)
			defer decisions.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			tuner := tuning.New(tuning.ConfigFrom(cfg), s, logger.With("component", "tuner"), decisions)
			rec := metrics.NewRecorder()
			tuner.OnEpisode = rec.CountEpisode

			summaries, err := tuner.Run(ctx, generations, seed)

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, summary := range summaries {
				if encErr := enc.Encode(summary); encErr != nil {
					return fmt.Errorf("failed to write summary: %w", encErr)
				}
			}
			if err != nil {
				return fmt.Errorf("tuning failed: %w", err)
			}

			if metricsFile != "" {
				if err := rec.WriteTextfile(metricsFile); err != nil {
					return fmt.Errorf("failed to write metrics: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().Int("generations", 1, "Number of generations to run")
	cmd.Flags().Uint64("seed", 0, "Seed of the first generation (default: current time in ms)")
	cmd.Flags().String("metrics-file", "", "Write episode counters to a Prometheus textfile")

	return cmd
}
