package execution

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"tradecore/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBreakerClosedAdmits(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, OpenDuration: time.Minute}, testLogger())

	done, err := b.Allow()
	if err != nil {
		t.Fatalf("Allow in CLOSED: %v", err)
	}
	done(true)
	if b.State() != "closed" {
		t.Errorf("state = %s, want closed", b.State())
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, OpenDuration: time.Minute}, testLogger())

	for i := 0; i < 3; i++ {
		done, err := b.Allow()
		if err != nil {
			t.Fatalf("Allow %d: %v", i, err)
		}
		done(false)
	}

	if b.State() != "open" {
		t.Fatalf("state = %s, want open", b.State())
	}
	if _, err := b.Allow(); !errors.Is(err, types.ErrBreakerOpen) {
		t.Errorf("Allow in OPEN = %v, want ErrBreakerOpen", err)
	}
}

func TestBreakerSuccessResetsConsecutiveCount(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, OpenDuration: time.Minute}, testLogger())

	// Two failures, a success, two more failures: never trips.
	outcomes := []bool{false, false, true, false, false}
	for i, ok := range outcomes {
		done, err := b.Allow()
		if err != nil {
			t.Fatalf("Allow %d: %v", i, err)
		}
		done(ok)
	}
	if b.State() != "closed" {
		t.Errorf("state = %s, want closed", b.State())
	}
}

func TestBreakerHalfOpenProbeDecides(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, OpenDuration: 30 * time.Millisecond}, testLogger())

	for i := 0; i < 2; i++ {
		done, _ := b.Allow()
		done(false)
	}
	if b.State() != "open" {
		t.Fatalf("state = %s, want open", b.State())
	}

	time.Sleep(50 * time.Millisecond)

	// Single probe admitted; a concurrent second request is rejected.
	done, err := b.Allow()
	if err != nil {
		t.Fatalf("half-open probe rejected: %v", err)
	}
	if _, err := b.Allow(); !errors.Is(err, types.ErrBreakerOpen) {
		t.Errorf("second half-open request = %v, want ErrBreakerOpen", err)
	}

	done(true)
	if b.State() != "closed" {
		t.Errorf("state after successful probe = %s, want closed", b.State())
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	t.Parallel()
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, OpenDuration: 30 * time.Millisecond}, testLogger())

	for i := 0; i < 2; i++ {
		done, _ := b.Allow()
		done(false)
	}
	time.Sleep(50 * time.Millisecond)

	done, err := b.Allow()
	if err != nil {
		t.Fatalf("half-open probe rejected: %v", err)
	}
	done(false)

	if b.State() != "open" {
		t.Errorf("state after failed probe = %s, want open", b.State())
	}
}
