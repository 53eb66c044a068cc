// Package server exposes the feed over HTTP: JSON accessors, the liveness
// probe, Prometheus metrics and the WebSocket endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/livefeed/internal/server/handler"
	"github.com/alanyoungcy/livefeed/internal/server/middleware"
)

const defaultShutdownTimeout = 5 * time.Second

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigins     []string
	WSRatePerSecond float64 // per client IP; zero disables the limit
	WSBurst         int
	ShutdownTimeout time.Duration
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Info    *handler.InfoHandler
	Health  *handler.HealthHandler
	Feed    *handler.FeedHandler
	History *handler.HistoryHandler
	WS      http.HandlerFunc
	Metrics http.Handler

	// OnWSRejected is called for every upgrade refused by the rate limit.
	OnWSRejected func()
}

// Server is the HTTP + WebSocket front of the feed.
type Server struct {
	cfg        Config
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on a ServeMux and
// the middleware chain (CORS, then logging) applied.
func NewServer(cfg Config, h Handlers, logger *slog.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           routes(cfg, h, logger),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &Server{cfg: cfg, httpServer: srv, logger: logger}
}

func routes(cfg Config, h Handlers, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	if h.Info != nil {
		mux.HandleFunc("GET /{$}", h.Info.GetInfo)
	}

	mux.HandleFunc("GET /health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)

	mux.HandleFunc("GET /api/matches", h.Feed.ListMatches)
	mux.HandleFunc("GET /api/matches/{id}", h.Feed.GetMatch)
	mux.HandleFunc("GET /api/sports", h.Feed.ListSports)
	mux.HandleFunc("GET /api/live-matches", h.Feed.ListMatches)
	mux.HandleFunc("GET /api/match/{id}", h.Feed.GetMatch)

	if h.History != nil {
		mux.HandleFunc("GET /api/history", h.History.ListHistory)
		mux.HandleFunc("GET /api/historical-matches", h.History.ListHistory)
	}

	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}

	if h.WS != nil {
		var ws http.Handler = h.WS
		if cfg.WSRatePerSecond > 0 {
			limiter := middleware.NewIPRateLimiter(cfg.WSRatePerSecond, cfg.WSBurst, nil)
			ws = middleware.RateLimit(limiter, h.OnWSRejected)(ws)
		}
		mux.Handle("GET /ws", ws)
	}

	var root http.Handler = mux
	root = middleware.CORS(cfg.CORSOrigins)(root)
	root = middleware.Logging(logger, "/health", "/metrics")(root)
	return root
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run binds the listen address and serves until ctx is cancelled. Failing to
// bind is returned immediately.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully. Hijacked WebSocket connections are closed by their hub.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info("server: listening", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("server: shutting down")
	shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	<-errCh
	return nil
}
