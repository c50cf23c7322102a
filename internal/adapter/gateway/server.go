package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"dealdesk/internal/domain"
	"dealdesk/internal/infra/config"
	"dealdesk/internal/infra/middleware"
	"dealdesk/internal/usecase"
)

// Server exposes the agent and the cached dashboard data over HTTP.
type Server struct {
	agent     *usecase.Agent
	sessions  *usecase.SessionManager
	store     domain.CacheStore
	cfg       config.GatewayConfig
	logger    *slog.Logger
	httpSrv   *http.Server
	boundAddr string
}

// NewServer creates a gateway server.
func NewServer(cfg config.GatewayConfig, agent *usecase.Agent, sessions *usecase.SessionManager, store domain.CacheStore, logger *slog.Logger) *Server {
	return &Server{
		agent:    agent,
		sessions: sessions,
		store:    store,
		cfg:      cfg,
		logger:   logger,
	}
}

// Routes returns the gateway's handler with middleware applied.
func (s *Server) Routes(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat", s.handleChat)
	mux.HandleFunc("POST /api/v1/chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /api/v1/dashboard/summary", s.handleSummary)
	mux.HandleFunc("GET /api/v1/deals", s.handleDeals)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	limit := middleware.RateLimit(ctx, s.cfg.RequestsPerMin, s.cfg.Burst)
	return middleware.SecurityHeaders(limit(mux))
}

// Start begins serving HTTP requests. Blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()

	s.httpSrv = &http.Server{
		Handler:           s.Routes(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the gateway server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// BoundAddr returns the actual address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("gateway: write response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
