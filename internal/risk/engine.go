// Package risk implements the pre-trade gate: every order is evaluated
// against configurable institutional limits before it may execute.
//
// Limits are evaluated in a fixed, documented order, accumulating ALL
// violations before returning. One exception: an active kill switch
// short-circuits with KILL_SWITCH_ACTIVE alone.
//
//  1. Kill switch
//  2. Position limit:  abs(projected symbol notional) vs max_position_size
//  3. Daily volume:    today's accepted notionals + order vs max_daily_volume
//  4. Net exposure:    abs(sum of signed notionals) of projected positions
//  5. Gross exposure:  sum of abs(signed notional) of projected positions
//
// Projection values the order at its limit price, an over-approximation the
// desk accepts pre-trade. The daily-volume check and the post-approval
// increment share one critical section, so two concurrent approvals can
// never both observe the pre-increment counter. The counter resets at
// 00:00 UTC, checked on entry.
package risk

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradecore/internal/eventlog"
	"tradecore/pkg/types"
)

// PositionSource provides consistent position snapshots for exposure
// projection. Satisfied by *position.Store.
type PositionSource interface {
	Snapshot() map[string]types.Position
}

// Engine evaluates pre-trade limits and owns the risk configuration and the
// kill switch. A single mutex guards the configuration, the kill switch,
// and the daily-volume counter; all reads copy the struct.
type Engine struct {
	mu          sync.Mutex
	limits      types.RiskLimits
	dailyVolume decimal.Decimal
	lastReset   time.Time

	positions PositionSource
	log       *eventlog.Log
	now       func() time.Time
	logger    *slog.Logger
}

// NewEngine creates a risk engine with the given starting limits.
func NewEngine(limits types.RiskLimits, positions PositionSource, log *eventlog.Log, logger *slog.Logger) *Engine {
	return &Engine{
		limits:    limits,
		lastReset: time.Now().UTC(),
		positions: positions,
		log:       log,
		now:       time.Now,
		logger:    logger.With("component", "risk"),
	}
}

// Check evaluates the order against all limits and, when it passes,
// accumulates the order's notional into the daily-volume counter within the
// same critical section.
func (e *Engine) Check(order types.Order) types.RiskResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rolloverLocked()

	if e.limits.KillSwitchEnabled {
		return types.RiskResult{
			Passed:     false,
			Violations: []types.Violation{types.ViolationKillSwitch},
			Message:    "kill switch is active - all trading halted",
		}
	}

	var violations []types.Violation
	notional := order.Notional()
	snapshot := e.positions.Snapshot()

	// Position limit: projected quantity for this symbol valued at the
	// order's limit price.
	projectedQty := snapshot[order.Symbol].Quantity.Add(order.SignedQuantity())
	if projectedQty.Mul(order.LimitPrice).Abs().GreaterThan(e.limits.MaxPositionSize) {
		violations = append(violations, types.ViolationPositionLimit)
	}

	if e.dailyVolume.Add(notional).GreaterThan(e.limits.MaxDailyVolume) {
		violations = append(violations, types.ViolationDailyVolumeLimit)
	}

	net, gross := projectExposures(snapshot, order)
	if net.Abs().GreaterThan(e.limits.MaxNetExposure) {
		violations = append(violations, types.ViolationNetExposureLimit)
	}
	if gross.GreaterThan(e.limits.MaxGrossExposure) {
		violations = append(violations, types.ViolationGrossExposure)
	}

	if len(violations) > 0 {
		return types.RiskResult{
			Passed:        false,
			Violations:    violations,
			NetExposure:   net,
			GrossExposure: gross,
			Message:       "risk violations: " + joinViolations(violations),
		}
	}

	e.dailyVolume = e.dailyVolume.Add(notional)
	return types.RiskResult{
		Passed:        true,
		NetExposure:   net,
		GrossExposure: gross,
		Message:       "risk check passed",
	}
}

// UpdateLimits validates and atomically replaces the risk configuration,
// recording RISK_CONFIG_UPDATED attributed to the actor.
func (e *Engine) UpdateLimits(limits types.RiskLimits, actor string) error {
	if actor == "" {
		return &types.ConfigError{Reason: "actor identity required"}
	}
	if err := validateLimits(limits); err != nil {
		return err
	}

	e.mu.Lock()
	e.limits = limits
	e.mu.Unlock()

	_, err := e.log.Append(types.Event{
		Type:          types.EventRiskConfigUpdated,
		CorrelationID: uuid.NewString(),
		UserID:        actor,
		Payload:       types.RiskConfigUpdated{Limits: limits, Actor: actor},
	})
	if err != nil {
		return fmt.Errorf("record limit update: %w", err)
	}

	e.logger.Info("risk limits updated", "actor", actor)
	return nil
}

// SetKillSwitch atomically flips the kill switch and records
// KILL_SWITCH_TOGGLED. One event per call, even when the logical state does
// not change.
func (e *Engine) SetKillSwitch(enabled bool, actor string) error {
	if actor == "" {
		return &types.ConfigError{Reason: "actor identity required"}
	}

	e.mu.Lock()
	e.limits.KillSwitchEnabled = enabled
	e.mu.Unlock()

	_, err := e.log.Append(types.Event{
		Type:          types.EventKillSwitchToggled,
		CorrelationID: uuid.NewString(),
		UserID:        actor,
		Payload:       types.KillSwitchToggled{Enabled: enabled, Actor: actor},
	})
	if err != nil {
		return fmt.Errorf("record kill switch: %w", err)
	}

	if enabled {
		e.logger.Warn("KILL SWITCH ENGAGED", "actor", actor)
	} else {
		e.logger.Warn("kill switch released", "actor", actor)
	}
	return nil
}

// Limits returns a copy of the current configuration.
func (e *Engine) Limits() types.RiskLimits {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.limits
}

// Metrics returns current aggregate risk state.
func (e *Engine) Metrics() types.RiskMetrics {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rolloverLocked()

	snapshot := e.positions.Snapshot()
	net := decimal.Zero
	gross := decimal.Zero
	largest := decimal.Zero
	for _, pos := range snapshot {
		sn := pos.SignedNotional()
		net = net.Add(sn)
		gross = gross.Add(sn.Abs())
		if sn.Abs().GreaterThan(largest) {
			largest = sn.Abs()
		}
	}

	return types.RiskMetrics{
		NetExposure:      net,
		GrossExposure:    gross,
		DailyVolume:      e.dailyVolume,
		TotalPositions:   len(snapshot),
		LargestPosition:  largest,
		KillSwitchActive: e.limits.KillSwitchEnabled,
	}
}

// rolloverLocked resets the daily-volume counter when the UTC date has
// changed since the last reset. Caller holds e.mu.
func (e *Engine) rolloverLocked() {
	now := e.now().UTC()
	y1, m1, d1 := e.lastReset.UTC().Date()
	y2, m2, d2 := now.Date()
	if y1 != y2 || m1 != m2 || d1 != d2 {
		e.dailyVolume = decimal.Zero
		e.lastReset = now
		e.logger.Info("daily volume counter reset")
	}
}

// projectExposures returns the net and gross exposure of the position
// snapshot with the order applied at its limit price.
func projectExposures(snapshot map[string]types.Position, order types.Order) (net, gross decimal.Decimal) {
	projected := snapshot[order.Symbol]
	projected.Quantity = projected.Quantity.Add(order.SignedQuantity())
	projected.LastPrice = order.LimitPrice

	net = projected.SignedNotional()
	gross = net.Abs()
	for sym, pos := range snapshot {
		if sym == order.Symbol {
			continue
		}
		sn := pos.SignedNotional()
		net = net.Add(sn)
		gross = gross.Add(sn.Abs())
	}
	return net, gross
}

func validateLimits(limits types.RiskLimits) error {
	checks := []struct {
		name  string
		value decimal.Decimal
	}{
		{"max_position_size", limits.MaxPositionSize},
		{"max_daily_volume", limits.MaxDailyVolume},
		{"max_net_exposure", limits.MaxNetExposure},
		{"max_gross_exposure", limits.MaxGrossExposure},
	}
	for _, c := range checks {
		if c.value.IsNegative() {
			return &types.ConfigError{Reason: c.name + " must be non-negative"}
		}
	}
	return nil
}

func joinViolations(violations []types.Violation) string {
	names := make([]string, len(violations))
	for i, v := range violations {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}
