package api

import (
	"github.com/shopspring/decimal"

	"tradecore/pkg/types"
)

// Request and response bodies for the JSON API. Decimal fields accept both
// JSON numbers and strings; responses always render them as strings.

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	UserID    string     `json:"user_id"`
	Username  string     `json:"username"`
	Role      types.Role `json:"role"`
	ExpiresIn int64      `json:"expires_in"` // seconds
}

type submitOrderRequest struct {
	Symbol        string          `json:"symbol"`
	Side          types.Side      `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
	Strategy      string          `json:"strategy,omitempty"`
}

type killSwitchRequest struct {
	Enabled bool `json:"enabled"`
}

type updateLimitsRequest struct {
	MaxPositionSize  decimal.Decimal `json:"max_position_size"`
	MaxDailyVolume   decimal.Decimal `json:"max_daily_volume"`
	MaxNetExposure   decimal.Decimal `json:"max_net_exposure"`
	MaxGrossExposure decimal.Decimal `json:"max_gross_exposure"`
	KillSwitch       bool            `json:"kill_switch_enabled"`
}

type submitOrderResponse struct {
	Order      types.Order       `json:"order"`
	Violations []types.Violation `json:"violations,omitempty"`
	Message    string            `json:"message,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type duplicateResponse struct {
	Error        string      `json:"error"`
	PriorOrderID string      `json:"prior_order_id"`
	Order        types.Order `json:"order"`
}

type healthResponse struct {
	Status       string `json:"status"`
	BreakerState string `json:"breaker_state"`
	KillSwitch   bool   `json:"kill_switch_active"`
	Events       int    `json:"events"`
}

type systemMetricsResponse struct {
	Risk         types.RiskMetrics `json:"risk"`
	Orders       map[string]int    `json:"orders_by_status"`
	Events       int               `json:"events"`
	BreakerState string            `json:"breaker_state"`
}
