package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vsoverseer/simcore/internal/metrics"
	"github.com/vsoverseer/simcore/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the simulation HTTP API",
		Long: `Start the HTTP API.

Endpoints:
  GET  /health          liveness
  POST /api/simulate    JSON body with episodes, seed and traits; returns the run document
  GET  /api/stream      WebSocket; one message per episode, then the aggregate
  GET  /api/runs        recorded runs, newest first
  GET  /api/runs/{id}   one recorded run
  GET  /metrics         Prometheus metrics

Examples:
  simcore serve
  simcore serve --addr :8787 --record`,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			record, _ := cmd.Flags().GetBool("record")
			trustProxy, _ := cmd.Flags().GetBool("trust-proxy")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			logger, closer := newLogger(cfg, cmd.ErrOrStderr())
			defer closer.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			// History endpoints need a store even when runs are not recorded.
			s, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			srv := server.New(server.Options{
				Addr:        addr,
				Defaults:    cfg.Defaults,
				MaxEpisodes: cfg.Server.MaxEpisodes,
				RateLimit:   cfg.Server.RateLimit,
				RateBurst:   cfg.Server.RateBurst,
				TrustProxy:  trustProxy,
				Store:       s,
				Record:      record,
				Metrics:     metrics.NewRecorder(),
				Logger:      logger.With("component", "server"),
			})

			if err := srv.ListenAndServe(ctx); err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().String("addr", "", "Listen address (default: server.addr from config)")
	cmd.Flags().Bool("record", false, "Record every simulated run in the history store")
	cmd.Flags().Bool("trust-proxy", false, "Rate limit by X-Forwarded-For instead of the peer address")

	return cmd
}
