// Package mcp provides an MCP (Model Context Protocol) server exposing
// simulation, tuning and run history as tools.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vsoverseer/simcore/internal/config"
	"github.com/vsoverseer/simcore/internal/logging"
	"github.com/vsoverseer/simcore/internal/metrics"
	"github.com/vsoverseer/simcore/internal/ratelimit"
	"github.com/vsoverseer/simcore/internal/store"
	"github.com/vsoverseer/simcore/internal/tuning"
)

// Server wraps the MCP SDK server.
type Server struct {
	server       *sdk.Server
	store        store.Store
	tuner        *tuning.Tuner
	defaults     config.RunDefaults
	maxEpisodes  int
	toolLimiters ratelimit.ToolLimiters
	auditLogger  *AuditLogger
	metrics      *metrics.Recorder
	logger       *slog.Logger

	newID func() string
	now   func() time.Time
}

// Config holds server configuration.
type Config struct {
	Name    string
	Version string

	// Store holds run history and policies. The server takes ownership and
	// closes it on Close.
	Store store.Store

	Tuning      tuning.Config
	Defaults    config.RunDefaults
	MaxEpisodes int

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string

	// Decisions receives tuner decision events. It may be nil.
	Decisions *logging.DecisionLogger

	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// NewServer creates a new MCP server with simcore tools.
func NewServer(cfg *Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	def := config.Default()
	if cfg.Defaults.Episodes < 1 {
		cfg.Defaults = def.Defaults
	}
	if cfg.MaxEpisodes < 1 {
		cfg.MaxEpisodes = def.Server.MaxEpisodes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	var audit *AuditLogger
	if cfg.AuditDir != "" {
		audit = NewAuditLogger(cfg.AuditDir)
	}

	s := &Server{
		server:       mcpServer,
		store:        cfg.Store,
		tuner:        tuning.New(cfg.Tuning, cfg.Store, logger.With("component", "tuner"), cfg.Decisions),
		defaults:     cfg.Defaults,
		maxEpisodes:  cfg.MaxEpisodes,
		toolLimiters: ratelimit.NewToolLimiters(),
		auditLogger:  audit,
		metrics:      cfg.Metrics,
		logger:       logger.With("component", "mcp"),
		newID:        uuid.NewString,
		now:          func() time.Time { return time.Now().UTC() },
	}

	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &sdk.StdioTransport{})
}

// Close releases the store and the audit log.
func (s *Server) Close() error {
	auditErr := s.auditLogger.Close()
	if err := s.store.Close(); err != nil {
		return err
	}
	return auditErr
}
