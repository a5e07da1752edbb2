// Package types defines the shared vocabulary of the trading control core —
// orders, positions, events, risk limits, and the error taxonomy. It has no
// dependencies on internal packages, so it can be imported by any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: BUY or SELL.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == BUY || s == SELL
}

// OrderStatus is the order state machine. Transitions are linear and
// monotone: PENDING → RISK_CHECK → {APPROVED, REJECTED};
// APPROVED → EXECUTING → {EXECUTED, FAILED}. No backward transition is legal.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusRiskCheck OrderStatus = "RISK_CHECK"
	StatusApproved  OrderStatus = "APPROVED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusExecuting OrderStatus = "EXECUTING"
	StatusExecuted  OrderStatus = "EXECUTED"
	StatusFailed    OrderStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == StatusRejected || s == StatusExecuted || s == StatusFailed
}

// rank orders statuses along the lifecycle so transitions can be checked
// for monotonicity. Branch states (APPROVED vs REJECTED) share a tier.
func (s OrderStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRiskCheck:
		return 1
	case StatusApproved, StatusRejected:
		return 2
	case StatusExecuting:
		return 3
	case StatusExecuted, StatusFailed:
		return 4
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// step in the state machine.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.Terminal() {
		return false
	}
	return next.rank() == s.rank()+1
}

// Violation identifies a risk limit breached during a pre-trade check.
type Violation string

const (
	ViolationPositionLimit    Violation = "POSITION_LIMIT"
	ViolationDailyVolumeLimit Violation = "DAILY_VOLUME_LIMIT"
	ViolationNetExposureLimit Violation = "NET_EXPOSURE_LIMIT"
	ViolationGrossExposure    Violation = "GROSS_EXPOSURE_LIMIT"
	ViolationKillSwitch       Violation = "KILL_SWITCH_ACTIVE"
)

// Role is the access level of an authenticated principal. Roles form a
// strict hierarchy: TRADER < RISK_MANAGER < COMPLIANCE < ADMIN.
type Role string

const (
	RoleTrader      Role = "TRADER"
	RoleRiskManager Role = "RISK_MANAGER"
	RoleCompliance  Role = "COMPLIANCE"
	RoleAdmin       Role = "ADMIN"
)

// level maps a role to its position in the hierarchy; unknown roles rank
// below everything.
func (r Role) level() int {
	switch r {
	case RoleTrader:
		return 1
	case RoleRiskManager:
		return 2
	case RoleCompliance:
		return 3
	case RoleAdmin:
		return 4
	}
	return 0
}

// AtLeast reports whether the role carries the permissions of required.
func (r Role) AtLeast(required Role) bool {
	return r.level() >= required.level()
}

// Principal is an already-authenticated identity handed to the core by the
// outer auth layer.
type Principal struct {
	UserID   string
	Username string
	Role     Role
}

// ————————————————————————————————————————————————————————————————————————
// Orders and fills
// ————————————————————————————————————————————————————————————————————————

// Order is the core order entity. Orders are created once; after creation
// only Status, UpdatedAt, Reason, and the Filled* fields mutate.
type Order struct {
	OrderID       string          `json:"order_id"`
	ClientOrderID string          `json:"client_order_id,omitempty"` // caller-supplied, drives idempotency
	CorrelationID string          `json:"correlation_id"`
	Symbol        string          `json:"symbol"` // case-sensitive
	Side          Side            `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`    // always positive
	LimitPrice    decimal.Decimal `json:"limit_price"` // non-negative
	UserID        string          `json:"user_id"`
	Strategy      string          `json:"strategy"`
	Status        OrderStatus     `json:"status"`
	FilledQty     decimal.Decimal `json:"filled_quantity"`
	FilledPrice   decimal.Decimal `json:"filled_price"`
	Reason        string          `json:"reason,omitempty"` // rejection or failure reason
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Notional returns quantity × limit price.
func (o Order) Notional() decimal.Decimal {
	return o.Quantity.Mul(o.LimitPrice)
}

// SignedQuantity returns the quantity with BUY positive and SELL negative.
func (o Order) SignedQuantity() decimal.Decimal {
	if o.Side == SELL {
		return o.Quantity.Neg()
	}
	return o.Quantity
}

// Fill records a single downstream execution.
type Fill struct {
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}

// ————————————————————————————————————————————————————————————————————————
// Positions
// ————————————————————————————————————————————————————————————————————————

// Position is the materialized holding for one symbol. Quantity is signed:
// long positive, short negative. AveragePrice is weighted by absolute
// quantity on the same side. LastPrice is the most recent fill price and is
// the reference price used for exposure valuation.
type Position struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
	LastPrice    decimal.Decimal `json:"last_price"`
	LastUpdate   time.Time       `json:"last_update"`
}

// SignedNotional returns quantity × reference price; negative for shorts.
func (p Position) SignedNotional() decimal.Decimal {
	return p.Quantity.Mul(p.LastPrice)
}

// ————————————————————————————————————————————————————————————————————————
// Risk configuration and results
// ————————————————————————————————————————————————————————————————————————

// RiskLimits is the single process-wide risk configuration. All limit values
// are absolute notionals and must be non-negative.
type RiskLimits struct {
	MaxPositionSize   decimal.Decimal `json:"max_position_size"`  // per-symbol projected notional cap
	MaxDailyVolume    decimal.Decimal `json:"max_daily_volume"`   // sum of accepted-order notionals per UTC day
	MaxNetExposure    decimal.Decimal `json:"max_net_exposure"`   // abs(sum of signed notionals)
	MaxGrossExposure  decimal.Decimal `json:"max_gross_exposure"` // sum of abs(signed notionals)
	KillSwitchEnabled bool            `json:"kill_switch_enabled"`
}

// RiskResult is the outcome of one pre-trade check. When the kill switch is
// active, Violations contains KILL_SWITCH_ACTIVE alone; otherwise every
// breached limit is accumulated in evaluation order.
type RiskResult struct {
	Passed        bool            `json:"passed"`
	Violations    []Violation     `json:"violations,omitempty"`
	NetExposure   decimal.Decimal `json:"net_exposure"`   // projected
	GrossExposure decimal.Decimal `json:"gross_exposure"` // projected
	Message       string          `json:"message"`
}

// RiskMetrics is a point-in-time view of aggregate risk state.
type RiskMetrics struct {
	NetExposure      decimal.Decimal `json:"net_exposure"`
	GrossExposure    decimal.Decimal `json:"gross_exposure"`
	DailyVolume      decimal.Decimal `json:"daily_volume"`
	TotalPositions   int             `json:"total_positions"`
	LargestPosition  decimal.Decimal `json:"largest_position"`
	KillSwitchActive bool            `json:"kill_switch_active"`
}
