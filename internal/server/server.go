// Package server exposes simulation runs over HTTP: one-shot documents,
// a WebSocket episode stream, run history and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vsoverseer/simcore/internal/config"
	"github.com/vsoverseer/simcore/internal/metrics"
	"github.com/vsoverseer/simcore/internal/ratelimit"
	"github.com/vsoverseer/simcore/internal/store"
)

// Options configures a Server.
type Options struct {
	Addr        string
	Defaults    config.RunDefaults
	MaxEpisodes int
	RateLimit   float64
	RateBurst   int

	// TrustProxy keys rate limits on X-Forwarded-For instead of the peer address.
	TrustProxy bool

	// Store receives recorded runs and serves /api/runs. It may be nil.
	Store store.Store

	// Record stores every simulated run in Store.
	Record bool

	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// Server serves the simulation API.
type Server struct {
	opts    Options
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	newID   func() string
	now     func() time.Time

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
}

// New creates a Server. Zero limits fall back to the config defaults.
func New(opts Options) *Server {
	def := config.Default()
	if opts.Addr == "" {
		opts.Addr = def.Server.Addr
	}
	if opts.MaxEpisodes < 1 {
		opts.MaxEpisodes = def.Server.MaxEpisodes
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = def.Server.RateLimit
	}
	if opts.RateBurst < 1 {
		opts.RateBurst = def.Server.RateBurst
	}
	if opts.Defaults.Episodes < 1 {
		opts.Defaults = def.Defaults
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewRecorder()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		opts:    opts,
		limiter: ratelimit.NewLimiter(opts.RateLimit, opts.RateBurst),
		logger:  logger.With("component", "server"),
		newID:   uuid.NewString,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.opts.Metrics.Handler())
	mux.Handle("POST /api/simulate", s.limit(http.HandlerFunc(s.handleSimulate)))
	mux.Handle("GET /api/stream", s.limit(http.HandlerFunc(s.handleStream)))
	mux.Handle("GET /api/runs", s.limit(http.HandlerFunc(s.handleListRuns)))
	mux.Handle("GET /api/runs/{id}", s.limit(http.HandlerFunc(s.handleGetRun)))
	return mux
}

// Addr returns the address the server is listening on, or "" before it starts.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// A clean shutdown returns nil.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	go s.sweepLimiter(ctx)

	s.logger.Info("listening", "addr", ln.Addr().String())
	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// sweepLimiter drops idle client buckets so the limiter does not grow
// with every address it has ever seen.
func (s *Server) sweepLimiter(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiter.Sweep(10 * time.Minute); n > 0 {
				s.logger.Debug("swept idle rate limit buckets", "count", n)
			}
		}
	}
}

func (s *Server) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := s.clientIP(r)
		if !s.limiter.Allow(key) {
			if wait := s.limiter.RetryAfter(key); wait > 0 {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(wait.Seconds())+1))
			}
			s.logger.Warn("rate limited", "client", key, "path", r.URL.Path)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again shortly")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the address used as the rate limit key.
func (s *Server) clientIP(r *http.Request) string {
	if s.opts.TrustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
