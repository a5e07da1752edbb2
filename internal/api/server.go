package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tradecore/internal/auth"
	"tradecore/internal/config"
	"tradecore/internal/coordinator"
	"tradecore/internal/eventlog"
	"tradecore/internal/position"
	"tradecore/internal/risk"
	"tradecore/pkg/types"
)

// Server runs the HTTP/WebSocket API for the trading control core.
//
// Role gates follow the hierarchy: order submission and read endpoints
// require TRADER, risk configuration requires RISK_MANAGER, and the audit
// endpoints require COMPLIANCE.
type Server struct {
	auth           *auth.Service
	limiter        *submitLimiter
	allowedOrigins []string
	hub            *Hub
	handlers       *Handlers
	log            *eventlog.Log
	server         *http.Server
	logger         *slog.Logger
}

// NewServer wires routes, middleware, and the event stream.
func NewServer(
	cfg config.ServerConfig,
	coord *coordinator.Coordinator,
	riskEngine *risk.Engine,
	log *eventlog.Log,
	positions *position.Store,
	authSvc *auth.Service,
	breaker BreakerStatus,
	tokenTTL time.Duration,
	logger *slog.Logger,
) *Server {
	hub := NewHub(logger)
	s := &Server{
		auth:           authSvc,
		limiter:        newSubmitLimiter(cfg.RateLimit, cfg.RateLimitBurst),
		allowedOrigins: cfg.AllowedOrigins,
		hub:            hub,
		log:            log,
		logger:         logger.With("component", "api-server"),
	}
	s.handlers = NewHandlers(coord, riskEngine, log, positions, authSvc, breaker, hub, tokenTTL, s.originAllowed, logger)

	mux := http.NewServeMux()
	h := s.handlers

	mux.HandleFunc("POST /api/v1/auth/login", h.HandleLogin)
	mux.HandleFunc("GET /api/v1/health", h.HandleHealth)

	mux.HandleFunc("POST /api/v1/orders",
		s.requireRole(types.RoleTrader, s.rateLimit(h.HandleSubmitOrder)))
	mux.HandleFunc("GET /api/v1/orders",
		s.requireRole(types.RoleTrader, h.HandleListOrders))
	mux.HandleFunc("GET /api/v1/orders/{id}",
		s.requireRole(types.RoleTrader, h.HandleGetOrder))

	mux.HandleFunc("GET /api/v1/risk/metrics",
		s.requireRole(types.RoleTrader, h.HandleRiskMetrics))
	mux.HandleFunc("GET /api/v1/risk/positions",
		s.requireRole(types.RoleTrader, h.HandlePositions))
	mux.HandleFunc("GET /api/v1/risk/limits",
		s.requireRole(types.RoleTrader, h.HandleGetLimits))
	mux.HandleFunc("PUT /api/v1/risk/limits",
		s.requireRole(types.RoleRiskManager, h.HandleUpdateLimits))
	mux.HandleFunc("POST /api/v1/risk/kill-switch",
		s.requireRole(types.RoleRiskManager, h.HandleKillSwitch))

	mux.HandleFunc("GET /api/v1/audit/events",
		s.requireRole(types.RoleCompliance, h.HandleEvents))
	mux.HandleFunc("GET /api/v1/audit/correlation/{id}",
		s.requireRole(types.RoleCompliance, h.HandleCorrelation))
	mux.HandleFunc("GET /api/v1/audit/orders/{id}/trail",
		s.requireRole(types.RoleCompliance, h.HandleOrderTrail))

	mux.HandleFunc("GET /api/v1/metrics",
		s.requireRole(types.RoleTrader, h.HandleSystemMetrics))
	mux.HandleFunc("GET /ws",
		s.authenticate(h.HandleWebSocket))

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.cors(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the API server and the event stream hub.
func (s *Server) Start() error {
	go s.hub.Run()

	// Every appended audit event is streamed to connected clients.
	s.log.Subscribe(s.hub.BroadcastEvent)

	s.logger.Info("api server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	s.logger.Info("stopping api server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}
