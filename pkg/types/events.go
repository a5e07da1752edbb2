package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType enumerates the closed set of audit event kinds.
type EventType string

const (
	EventOrderCreated      EventType = "ORDER_CREATED"
	EventRiskCheckStarted  EventType = "RISK_CHECK_STARTED"
	EventRiskCheckPassed   EventType = "RISK_CHECK_PASSED"
	EventRiskCheckFailed   EventType = "RISK_CHECK_FAILED"
	EventExecutionStarted  EventType = "EXECUTION_STARTED"
	EventExecutionComplete EventType = "EXECUTION_COMPLETED"
	EventExecutionFailed   EventType = "EXECUTION_FAILED"
	EventRiskConfigUpdated EventType = "RISK_CONFIG_UPDATED"
	EventKillSwitchToggled EventType = "KILL_SWITCH_TOGGLED"
	EventPositionUpdated   EventType = "POSITION_UPDATED"
)

// Event is an immutable audit record. Events are never mutated or deleted;
// append order establishes the canonical causal order within a correlation
// chain. Timestamps are assigned by the event log and are strictly
// increasing at microsecond precision.
type Event struct {
	EventID       string       `json:"event_id"`
	Type          EventType    `json:"event_type"`
	CorrelationID string       `json:"correlation_id"`
	OrderID       string       `json:"order_id,omitempty"` // empty for config/kill-switch events
	Timestamp     time.Time    `json:"timestamp"`
	UserID        string       `json:"user_id,omitempty"`
	Payload       EventPayload `json:"payload"`
}

// EventPayload is the sum type of per-kind event payloads. One variant per
// event kind; the log's query APIs stay polymorphic over the variant.
type EventPayload interface {
	Kind() EventType
}

// OrderCreated captures the immutable order parameters at submission.
type OrderCreated struct {
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Strategy string          `json:"strategy"`
}

func (OrderCreated) Kind() EventType { return EventOrderCreated }

// RiskCheckStarted marks entry into the pre-trade gate.
type RiskCheckStarted struct{}

func (RiskCheckStarted) Kind() EventType { return EventRiskCheckStarted }

// RiskCheckPassed carries the projected exposures that were approved.
type RiskCheckPassed struct {
	NetExposure   decimal.Decimal `json:"net_exposure"`
	GrossExposure decimal.Decimal `json:"gross_exposure"`
	DailyVolume   decimal.Decimal `json:"daily_volume"`
}

func (RiskCheckPassed) Kind() EventType { return EventRiskCheckPassed }

// RiskCheckFailed carries every violated limit.
type RiskCheckFailed struct {
	Violations    []Violation     `json:"violations"`
	NetExposure   decimal.Decimal `json:"net_exposure"`
	GrossExposure decimal.Decimal `json:"gross_exposure"`
	Message       string          `json:"message"`
}

func (RiskCheckFailed) Kind() EventType { return EventRiskCheckFailed }

// ExecutionStarted marks hand-off to the downstream execution attempt loop.
type ExecutionStarted struct{}

func (ExecutionStarted) Kind() EventType { return EventExecutionStarted }

// ExecutionCompleted carries the fill.
type ExecutionCompleted struct {
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Attempts int             `json:"attempts"`
	FilledAt time.Time       `json:"filled_at"`
}

func (ExecutionCompleted) Kind() EventType { return EventExecutionComplete }

// ExecutionFailed carries the final failure reason, including BREAKER_OPEN
// when the circuit breaker rejected admission.
type ExecutionFailed struct {
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`
}

func (ExecutionFailed) Kind() EventType { return EventExecutionFailed }

// RiskConfigUpdated records an atomic limit replacement and who made it.
type RiskConfigUpdated struct {
	Limits RiskLimits `json:"limits"`
	Actor  string     `json:"actor"`
}

func (RiskConfigUpdated) Kind() EventType { return EventRiskConfigUpdated }

// KillSwitchToggled records a kill switch flip. One event per call even when
// the logical state does not change.
type KillSwitchToggled struct {
	Enabled bool   `json:"enabled"`
	Actor   string `json:"actor"`
}

func (KillSwitchToggled) Kind() EventType { return EventKillSwitchToggled }

// PositionUpdated snapshots the position after a fill was applied.
type PositionUpdated struct {
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	AveragePrice decimal.Decimal `json:"average_price"`
	LastPrice    decimal.Decimal `json:"last_price"`
}

func (PositionUpdated) Kind() EventType { return EventPositionUpdated }
