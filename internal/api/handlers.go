package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"tradecore/internal/auth"
	"tradecore/internal/coordinator"
	"tradecore/internal/eventlog"
	"tradecore/internal/position"
	"tradecore/internal/risk"
	"tradecore/pkg/types"
)

// BreakerStatus exposes the circuit breaker state for health and metrics.
type BreakerStatus interface {
	State() string
}

// Handlers implements the JSON API endpoints.
type Handlers struct {
	coord     *coordinator.Coordinator
	risk      *risk.Engine
	log       *eventlog.Log
	positions *position.Store
	auth      *auth.Service
	breaker   BreakerStatus
	hub       *Hub
	upgrader  websocket.Upgrader
	tokenTTL  time.Duration
	logger    *slog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(
	coord *coordinator.Coordinator,
	riskEngine *risk.Engine,
	log *eventlog.Log,
	positions *position.Store,
	authSvc *auth.Service,
	breaker BreakerStatus,
	hub *Hub,
	tokenTTL time.Duration,
	originAllowed func(string) bool,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		coord:     coord,
		risk:      riskEngine,
		log:       log,
		positions: positions,
		auth:      authSvc,
		breaker:   breaker,
		hub:       hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || originAllowed(origin)
			},
		},
		tokenTTL: tokenTTL,
		logger:   logger.With("component", "api"),
	}
}

// HandleLogin exchanges credentials for a bearer token.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	token, principal, err := h.auth.Authenticate(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		UserID:    principal.UserID,
		Username:  principal.Username,
		Role:      principal.Role,
		ExpiresIn: int64(h.tokenTTL.Seconds()),
	})
}

// HandleSubmitOrder runs the full submission path and returns the
// synchronous ack. A risk rejection is a 200 with status REJECTED; only
// malformed and duplicate submissions are error statuses.
func (h *Handlers) HandleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	ack, res, err := h.coord.Submit(coordinator.SubmitRequest{
		Symbol:        req.Symbol,
		Side:          req.Side,
		Quantity:      req.Quantity,
		LimitPrice:    req.Price,
		ClientOrderID: req.ClientOrderID,
		Strategy:      req.Strategy,
	}, principal)
	if err != nil {
		var (
			vErr   *types.ValidationError
			dupErr *types.DuplicateError
		)
		switch {
		case errors.As(err, &vErr):
			writeError(w, http.StatusBadRequest, vErr.Error())
		case errors.As(err, &dupErr):
			writeJSON(w, http.StatusConflict, duplicateResponse{
				Error:        "duplicate submission",
				PriorOrderID: dupErr.PriorOrderID,
				Order:        ack,
			})
		default:
			h.logger.Error("submit failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "order could not be recorded")
		}
		return
	}

	status := http.StatusCreated
	if ack.Status == types.StatusRejected {
		status = http.StatusOK
	}
	writeJSON(w, status, submitOrderResponse{
		Order:      ack,
		Violations: res.Violations,
		Message:    res.Message,
	})
}

// HandleListOrders returns orders newest first, optionally capped by ?limit.
func (h *Handlers) HandleListOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.coord.List()
	if limit := queryInt(r, "limit"); limit > 0 && limit < len(orders) {
		orders = orders[:limit]
	}
	writeJSON(w, http.StatusOK, orders)
}

// HandleGetOrder returns one order by ID.
func (h *Handlers) HandleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, ok := h.coord.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// HandleRiskMetrics returns aggregate risk state.
func (h *Handlers) HandleRiskMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.risk.Metrics())
}

// HandleGetLimits returns the active risk configuration.
func (h *Handlers) HandleGetLimits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.risk.Limits())
}

// HandleUpdateLimits atomically replaces the risk configuration.
func (h *Handlers) HandleUpdateLimits(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	var req updateLimitsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	err := h.risk.UpdateLimits(types.RiskLimits{
		MaxPositionSize:   req.MaxPositionSize,
		MaxDailyVolume:    req.MaxDailyVolume,
		MaxNetExposure:    req.MaxNetExposure,
		MaxGrossExposure:  req.MaxGrossExposure,
		KillSwitchEnabled: req.KillSwitch,
	}, principal.UserID)
	if err != nil {
		var cfgErr *types.ConfigError
		if errors.As(err, &cfgErr) {
			writeError(w, http.StatusBadRequest, cfgErr.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, "limit update could not be recorded")
		return
	}
	writeJSON(w, http.StatusOK, h.risk.Limits())
}

// HandleKillSwitch flips the kill switch.
func (h *Handlers) HandleKillSwitch(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFrom(r.Context())

	var req killSwitchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := h.risk.SetKillSwitch(req.Enabled, principal.UserID); err != nil {
		writeError(w, http.StatusServiceUnavailable, "kill switch could not be recorded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"kill_switch_enabled": req.Enabled})
}

// HandlePositions returns all positions sorted by symbol.
func (h *Handlers) HandlePositions(w http.ResponseWriter, r *http.Request) {
	snapshot := h.positions.Snapshot()
	out := make([]types.Position, 0, len(snapshot))
	for _, pos := range snapshot {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	writeJSON(w, http.StatusOK, out)
}

// HandleEvents queries the audit log. With ?type it filters by event kind
// and the optional ?since/?until RFC3339 window; otherwise it returns the
// most recent events, capped by ?limit (default 100).
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if kind := r.URL.Query().Get("type"); kind != "" {
		since, ok := queryTime(w, r, "since")
		if !ok {
			return
		}
		until, ok := queryTime(w, r, "until")
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, h.log.ByType(types.EventType(kind), since, until))
		return
	}

	limit := queryInt(r, "limit")
	if limit <= 0 {
		limit = 100
	}
	writeJSON(w, http.StatusOK, h.log.Recent(limit))
}

// HandleCorrelation returns the full causal chain for a correlation ID.
func (h *Handlers) HandleCorrelation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.log.ByCorrelation(r.PathValue("id")))
}

// HandleOrderTrail returns an order's events plus the state replayed from
// them, the independent reconstruction compliance compares against the
// order book.
func (h *Handlers) HandleOrderTrail(w http.ResponseWriter, r *http.Request) {
	events := h.log.ByOrder(r.PathValue("id"))
	if len(events) == 0 {
		writeError(w, http.StatusNotFound, "no events for order")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"replay": eventlog.Replay(events),
	})
}

// HandleHealth is unauthenticated and cheap.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:       "ok",
		BreakerState: h.breaker.State(),
		KillSwitch:   h.risk.Limits().KillSwitchEnabled,
		Events:       h.log.Len(),
	})
}

// HandleSystemMetrics returns an operational summary.
func (h *Handlers) HandleSystemMetrics(w http.ResponseWriter, r *http.Request) {
	byStatus := make(map[string]int)
	for _, order := range h.coord.List() {
		byStatus[string(order.Status)]++
	}
	writeJSON(w, http.StatusOK, systemMetricsResponse{
		Risk:         h.risk.Metrics(),
		Orders:       byStatus,
		Events:       h.log.Len(),
		BreakerState: h.breaker.State(),
	})
}

// HandleWebSocket upgrades the connection and registers it with the hub.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	NewClient(h.hub, conn)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

// queryTime parses an optional RFC3339 query parameter, writing a 400 on a
// malformed value.
func queryTime(w http.ResponseWriter, r *http.Request, key string) (time.Time, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, key+" must be RFC3339")
		return time.Time{}, false
	}
	return t, true
}
