package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vsoverseer/simcore/internal/config"
	"github.com/vsoverseer/simcore/internal/mcp"
	"github.com/vsoverseer/simcore/internal/metrics"
	"github.com/vsoverseer/simcore/internal/tuning"
)

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run the MCP server over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout.

Tools: simcore_simulate, simcore_tune, simcore_runs.
Resource: simcore://runs/latest.

Logs go to stderr; tool calls are audited to ~/.simcore/audit.jsonl.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger, closer := newLogger(cfg, cmd.ErrOrStderr())
			defer closer.Close()
			decisions := newDecisionLogger(cfg)
			defer decisions.Close()

			stateDir, err := config.StateDir()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}

			srv, err := mcp.NewServer(&mcp.Config{
				Name:        "simcore",
				Version:     version,
				Store:       s,
				Tuning:      tuning.ConfigFrom(cfg),
				Defaults:    cfg.Defaults,
				MaxEpisodes: cfg.Server.MaxEpisodes,
				AuditDir:    stateDir,
				Decisions:   decisions,
				Metrics:     metrics.NewRecorder(),
				Logger:      logger,
			})
			if err != nil {
				s.Close()
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer srv.Close()

			logger.Info("mcp server starting", "version", version)
			if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("mcp server failed: %w", err)
			}
			return nil
		},
	}
}
