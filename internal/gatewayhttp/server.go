// Package gatewayhttp is the gateway's REST control plane and canvas
// WebSocket endpoint: session listing and steering, health, metrics,
// and the web canvas transport.
package gatewayhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meridianlabs/agentgateway/internal/channels"
	"github.com/meridianlabs/agentgateway/internal/channels/canvas"
	"github.com/meridianlabs/agentgateway/internal/sessionmgr"
	"github.com/meridianlabs/agentgateway/internal/supervisor"
)

// Config configures the control-plane server.
type Config struct {
	Addr string

	Sessions *sessionmgr.Manager
	Channels *channels.Registry
	Health   *supervisor.HealthMonitor
	Canvas   *canvas.Adapter

	Logger *slog.Logger
}

// Server hosts the gateway's REST control plane and canvas WebSocket
// endpoint on a single stdlib http.Server, grounded on the teacher's
// startHTTPServer/stopHTTPServer pairing (net.Listen up front so the
// caller can detect a bind failure synchronously, Serve in a
// goroutine, graceful Shutdown on stop).
type Server struct {
	cfg      Config
	logger   *slog.Logger
	server   *http.Server
	listener net.Listener
	started  time.Time
}

// New builds a Server. Call Start to bind and begin serving.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: logger}
}

// Start binds the configured address and begins serving in the
// background. The returned error is only a bind failure; runtime
// errors after Start returns are logged, not returned.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.Addr == "" {
		return fmt.Errorf("gatewayhttp: Addr is required")
	}

	mux := http.NewServeMux()
	s.mountRoutes(mux)

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gatewayhttp: listen %s: %w", s.cfg.Addr, err)
	}

	s.started = time.Now()
	s.listener = listener
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gatewayhttp: server error", "error", err)
		}
	}()

	s.logger.Info("control plane listening", "addr", s.cfg.Addr)
	return nil
}

// Stop gracefully shuts the server down, waiting up to the deadline on
// ctx (or 5s if ctx carries none).
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) mountRoutes(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("POST /sessions/{id}/steer", s.handleSteerSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleEndSession)

	if s.cfg.Canvas != nil {
		mux.Handle("/ws/{sessionId}", s.cfg.Canvas.Handler(func(r *http.Request) string {
			return r.PathValue("sessionId")
		}))
	}
}
