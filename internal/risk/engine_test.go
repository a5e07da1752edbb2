package risk

import (
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"tradecore/internal/eventlog"
	"tradecore/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// staticPositions is a PositionSource over a fixed map.
type staticPositions map[string]types.Position

func (s staticPositions) Snapshot() map[string]types.Position {
	out := make(map[string]types.Position, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func defaultLimits() types.RiskLimits {
	return types.RiskLimits{
		MaxPositionSize:  d("1000000"),
		MaxDailyVolume:   d("10000000"),
		MaxNetExposure:   d("5000000"),
		MaxGrossExposure: d("15000000"),
	}
}

func order(side types.Side, qty, price string) types.Order {
	return types.Order{
		OrderID:    "o1",
		Symbol:     "AAPL",
		Side:       side,
		Quantity:   d(qty),
		LimitPrice: d(price),
		UserID:     "trader1",
	}
}

func newEngine(t *testing.T, positions PositionSource) (*Engine, *eventlog.Log) {
	t.Helper()
	log := eventlog.New(testLogger())
	return NewEngine(defaultLimits(), positions, log, testLogger()), log
}

func TestCheckPassesWithinLimits(t *testing.T) {
	t.Parallel()
	e, _ := newEngine(t, staticPositions{})

	res := e.Check(order(types.BUY, "100", "150.50"))
	if !res.Passed {
		t.Fatalf("expected pass, got violations %v (%s)", res.Violations, res.Message)
	}
	if !res.NetExposure.Equal(d("15050")) {
		t.Errorf("net exposure = %s, want 15050", res.NetExposure)
	}
	if !res.GrossExposure.Equal(d("15050")) {
		t.Errorf("gross exposure = %s, want 15050", res.GrossExposure)
	}
}

func TestKillSwitchShortCircuits(t *testing.T) {
	t.Parallel()
	// Order also breaches the position limit; the kill switch must mask it.
	limits := defaultLimits()
	limits.KillSwitchEnabled = true
	log := eventlog.New(testLogger())
	e := NewEngine(limits, staticPositions{}, log, testLogger())

	res := e.Check(order(types.BUY, "100000", "200"))
	if res.Passed {
		t.Fatal("expected rejection while kill switch active")
	}
	if len(res.Violations) != 1 || res.Violations[0] != types.ViolationKillSwitch {
		t.Errorf("violations = %v, want [KILL_SWITCH_ACTIVE] only", res.Violations)
	}
}

func TestPositionLimitViolation(t *testing.T) {
	t.Parallel()
	e, _ := newEngine(t, staticPositions{})

	// 100000 · 200 = 20,000,000 > 1,000,000.
	res := e.Check(order(types.BUY, "100000", "200"))
	if res.Passed {
		t.Fatal("expected rejection")
	}
	if !hasViolation(res, types.ViolationPositionLimit) {
		t.Errorf("violations = %v, want POSITION_LIMIT", res.Violations)
	}
}

func TestPositionLimitUsesProjectedQuantity(t *testing.T) {
	t.Parallel()
	// Existing 4000 long; buying 2000 more at 200 projects 6000·200 = 1.2M.
	e, _ := newEngine(t, staticPositions{
		"AAPL": {Symbol: "AAPL", Quantity: d("4000"), AveragePrice: d("180"), LastPrice: d("180")},
	})

	res := e.Check(order(types.BUY, "2000", "200"))
	if !hasViolation(res, types.ViolationPositionLimit) {
		t.Errorf("violations = %v, want POSITION_LIMIT from projection", res.Violations)
	}

	// Selling the same quantity reduces the position and passes.
	res = e.Check(order(types.SELL, "2000", "200"))
	if hasViolation(res, types.ViolationPositionLimit) {
		t.Errorf("reducing order flagged POSITION_LIMIT: %v", res.Violations)
	}
}

func TestDailyVolumeAccumulatesOnPass(t *testing.T) {
	t.Parallel()
	limits := defaultLimits()
	limits.MaxDailyVolume = d("30000")
	log := eventlog.New(testLogger())
	e := NewEngine(limits, staticPositions{}, log, testLogger())

	// 15,000 notional each; two consume the limit exactly.
	if res := e.Check(order(types.BUY, "100", "150")); !res.Passed {
		t.Fatalf("first order rejected: %v", res.Violations)
	}
	if res := e.Check(order(types.SELL, "100", "150")); !res.Passed {
		t.Fatalf("second order rejected: %v", res.Violations)
	}
	// 30,000 consumed; any further notional breaches.
	res := e.Check(order(types.BUY, "1", "150"))
	if !hasViolation(res, types.ViolationDailyVolumeLimit) {
		t.Errorf("violations = %v, want DAILY_VOLUME_LIMIT", res.Violations)
	}
}

func TestRejectedOrderDoesNotConsumeDailyVolume(t *testing.T) {
	t.Parallel()
	e, _ := newEngine(t, staticPositions{})

	// Rejected by position limit.
	e.Check(order(types.BUY, "100000", "200"))
	if got := e.Metrics().DailyVolume; !got.IsZero() {
		t.Errorf("daily volume after rejection = %s, want 0", got)
	}
}

func TestDailyVolumeRollsOverAtUTCMidnight(t *testing.T) {
	t.Parallel()
	e, _ := newEngine(t, staticPositions{})

	current := time.Date(2026, 3, 1, 23, 50, 0, 0, time.UTC)
	e.now = func() time.Time { return current }
	e.lastReset = current

	e.Check(order(types.BUY, "100", "150"))
	if got := e.Metrics().DailyVolume; !got.Equal(d("15000")) {
		t.Fatalf("daily volume = %s, want 15000", got)
	}

	current = time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC)
	if got := e.Metrics().DailyVolume; !got.IsZero() {
		t.Errorf("daily volume after rollover = %s, want 0", got)
	}
}

func TestNetExposureIsSignAware(t *testing.T) {
	t.Parallel()
	// Large short offsets the projected long; net stays small, gross does not.
	e, _ := newEngine(t, staticPositions{
		"TSLA": {Symbol: "TSLA", Quantity: d("-20000"), AveragePrice: d("240"), LastPrice: d("240")},
	})

	res := e.Check(order(types.BUY, "4000", "200"))
	// net = 800,000 - 4,800,000 = -4,000,000 (abs within 5M); gross = 5.6M.
	if hasViolation(res, types.ViolationNetExposureLimit) {
		t.Errorf("net exposure flagged despite offset: %v", res.Violations)
	}
	if !res.GrossExposure.Equal(d("5600000")) {
		t.Errorf("gross exposure = %s, want 5600000", res.GrossExposure)
	}
}

func TestAccumulatesAllViolations(t *testing.T) {
	t.Parallel()
	limits := types.RiskLimits{
		MaxPositionSize:  d("1000"),
		MaxDailyVolume:   d("1000"),
		MaxNetExposure:   d("1000"),
		MaxGrossExposure: d("1000"),
	}
	log := eventlog.New(testLogger())
	e := NewEngine(limits, staticPositions{}, log, testLogger())

	res := e.Check(order(types.BUY, "100", "150"))
	if res.Passed {
		t.Fatal("expected rejection")
	}
	want := []types.Violation{
		types.ViolationPositionLimit,
		types.ViolationDailyVolumeLimit,
		types.ViolationNetExposureLimit,
		types.ViolationGrossExposure,
	}
	if len(res.Violations) != len(want) {
		t.Fatalf("violations = %v, want %v", res.Violations, want)
	}
	for i := range want {
		if res.Violations[i] != want[i] {
			t.Errorf("violation[%d] = %s, want %s", i, res.Violations[i], want[i])
		}
	}
}

func TestUpdateLimitsValidatesAndRecords(t *testing.T) {
	t.Parallel()
	e, log := newEngine(t, staticPositions{})

	bad := defaultLimits()
	bad.MaxNetExposure = d("-1")
	err := e.UpdateLimits(bad, "riskmgr")
	var cfgErr *types.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("negative limit error = %v, want ConfigError", err)
	}

	if err := e.UpdateLimits(defaultLimits(), ""); !errors.As(err, &cfgErr) {
		t.Fatalf("empty actor error = %v, want ConfigError", err)
	}

	good := defaultLimits()
	good.MaxPositionSize = d("2000000")
	if err := e.UpdateLimits(good, "riskmgr"); err != nil {
		t.Fatalf("UpdateLimits: %v", err)
	}
	if !e.Limits().MaxPositionSize.Equal(d("2000000")) {
		t.Error("limits not replaced")
	}

	events := log.ByType(types.EventRiskConfigUpdated, time.Time{}, time.Time{})
	if len(events) != 1 {
		t.Fatalf("RISK_CONFIG_UPDATED events = %d, want 1", len(events))
	}
	payload := events[0].Payload.(types.RiskConfigUpdated)
	if payload.Actor != "riskmgr" {
		t.Errorf("actor = %q, want riskmgr", payload.Actor)
	}
}

func TestKillSwitchTogglesAndRecordsEveryCall(t *testing.T) {
	t.Parallel()
	e, log := newEngine(t, staticPositions{})

	if err := e.SetKillSwitch(true, "riskmgr"); err != nil {
		t.Fatalf("SetKillSwitch: %v", err)
	}
	if err := e.SetKillSwitch(true, "riskmgr"); err != nil {
		t.Fatalf("SetKillSwitch repeat: %v", err)
	}
	if err := e.SetKillSwitch(false, "admin"); err != nil {
		t.Fatalf("SetKillSwitch off: %v", err)
	}

	events := log.ByType(types.EventKillSwitchToggled, time.Time{}, time.Time{})
	if len(events) != 3 {
		t.Fatalf("KILL_SWITCH_TOGGLED events = %d, want 3 (one per call)", len(events))
	}
	if e.Limits().KillSwitchEnabled {
		t.Error("kill switch still enabled after release")
	}

	var cfgErr *types.ConfigError
	if err := e.SetKillSwitch(true, ""); !errors.As(err, &cfgErr) {
		t.Errorf("empty actor error = %v, want ConfigError", err)
	}
}

func TestMetricsAggregatesPositions(t *testing.T) {
	t.Parallel()
	e, _ := newEngine(t, staticPositions{
		"AAPL": {Symbol: "AAPL", Quantity: d("100"), LastPrice: d("150")},
		"TSLA": {Symbol: "TSLA", Quantity: d("-50"), LastPrice: d("200")},
	})

	m := e.Metrics()
	if !m.NetExposure.Equal(d("5000")) {
		t.Errorf("net = %s, want 5000", m.NetExposure)
	}
	if !m.GrossExposure.Equal(d("25000")) {
		t.Errorf("gross = %s, want 25000", m.GrossExposure)
	}
	if !m.LargestPosition.Equal(d("15000")) {
		t.Errorf("largest = %s, want 15000", m.LargestPosition)
	}
	if m.TotalPositions != 2 {
		t.Errorf("total positions = %d, want 2", m.TotalPositions)
	}
}

func TestConcurrentChecksNeverOverrunDailyVolume(t *testing.T) {
	t.Parallel()
	limits := defaultLimits()
	limits.MaxDailyVolume = d("100000")
	log := eventlog.New(testLogger())
	e := NewEngine(limits, staticPositions{}, log, testLogger())

	// 40 concurrent orders of 15,000 notional; at most 6 can pass.
	var wg sync.WaitGroup
	var mu sync.Mutex
	passed := 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if e.Check(order(types.BUY, "100", "150")).Passed {
				mu.Lock()
				passed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if passed > 6 {
		t.Errorf("%d orders passed, limit admits at most 6", passed)
	}
	if got := e.Metrics().DailyVolume; got.GreaterThan(d("100000")) {
		t.Errorf("daily volume = %s exceeds limit", got)
	}
}

func hasViolation(res types.RiskResult, v types.Violation) bool {
	for _, got := range res.Violations {
		if got == v {
			return true
		}
	}
	return false
}
