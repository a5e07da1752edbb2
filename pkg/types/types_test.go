package types

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	legal := []struct{ from, to OrderStatus }{
		{StatusPending, StatusRiskCheck},
		{StatusRiskCheck, StatusApproved},
		{StatusRiskCheck, StatusRejected},
		{StatusApproved, StatusExecuting},
		{StatusExecuting, StatusExecuted},
		{StatusExecuting, StatusFailed},
	}
	for _, tc := range legal {
		if !tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be legal", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to OrderStatus }{
		{StatusPending, StatusApproved},   // skips the risk check
		{StatusApproved, StatusExecuted},  // skips EXECUTING
		{StatusRejected, StatusExecuting}, // terminal
		{StatusExecuted, StatusFailed},    // terminal
		{StatusExecuting, StatusApproved}, // backward
		{StatusRiskCheck, StatusPending},  // backward
	}
	for _, tc := range illegal {
		if tc.from.CanTransitionTo(tc.to) {
			t.Errorf("%s -> %s should be illegal", tc.from, tc.to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	t.Parallel()

	for _, s := range []OrderStatus{StatusRejected, StatusExecuted, StatusFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []OrderStatus{StatusPending, StatusRiskCheck, StatusApproved, StatusExecuting} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestRoleHierarchy(t *testing.T) {
	t.Parallel()

	if !RoleAdmin.AtLeast(RoleCompliance) || !RoleCompliance.AtLeast(RoleRiskManager) ||
		!RoleRiskManager.AtLeast(RoleTrader) {
		t.Error("role hierarchy broken")
	}
	if RoleTrader.AtLeast(RoleRiskManager) {
		t.Error("TRADER should not carry RISK_MANAGER permissions")
	}
	if Role("VIEWER").AtLeast(RoleTrader) {
		t.Error("unknown role should rank below TRADER")
	}
}

func TestSideValid(t *testing.T) {
	t.Parallel()

	if !BUY.Valid() || !SELL.Valid() {
		t.Error("BUY and SELL must be valid")
	}
	if Side("HOLD").Valid() {
		t.Error("unknown side accepted")
	}
}

func TestOrderNotionalAndSignedQuantity(t *testing.T) {
	t.Parallel()

	o := Order{
		Side:       SELL,
		Quantity:   decimal.NewFromInt(40),
		LimitPrice: decimal.RequireFromString("150.50"),
	}
	if !o.Notional().Equal(decimal.RequireFromString("6020")) {
		t.Errorf("notional = %s, want 6020", o.Notional())
	}
	if !o.SignedQuantity().Equal(decimal.NewFromInt(-40)) {
		t.Errorf("signed quantity = %s, want -40", o.SignedQuantity())
	}

	o.Side = BUY
	if !o.SignedQuantity().Equal(decimal.NewFromInt(40)) {
		t.Errorf("signed quantity = %s, want 40", o.SignedQuantity())
	}
}

func TestPositionSignedNotional(t *testing.T) {
	t.Parallel()

	p := Position{
		Quantity:  decimal.NewFromInt(-50),
		LastPrice: decimal.NewFromInt(200),
	}
	if !p.SignedNotional().Equal(decimal.NewFromInt(-10000)) {
		t.Errorf("signed notional = %s, want -10000", p.SignedNotional())
	}
}
