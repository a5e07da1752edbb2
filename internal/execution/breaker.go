package execution

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"tradecore/pkg/types"
)

// BreakerConfig tunes the execution circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32        // consecutive failures before opening
	OpenDuration     time.Duration // time in OPEN before a half-open probe
}

// Breaker guards the downstream venue with a three-state circuit breaker.
// CLOSED admits everything; after FailureThreshold consecutive failures it
// opens and rejects for OpenDuration; then a single probe is admitted and
// its outcome decides between re-closing and re-opening.
//
// The two-step form separates admission from outcome reporting, which fits
// the pipeline's retry loop: one admission covers the whole attempt
// sequence, and only the final outcome is reported.
type Breaker struct {
	cb     *gobreaker.TwoStepCircuitBreaker
	logger *slog.Logger
}

// NewBreaker creates a breaker with the given thresholds. Zero values fall
// back to 5 consecutive failures and a 60s open interval.
func NewBreaker(cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenDuration == 0 {
		cfg.OpenDuration = 60 * time.Second
	}

	log := logger.With("component", "breaker")
	settings := gobreaker.Settings{
		Name:        "execution",
		MaxRequests: 1, // single half-open probe
		Timeout:     cfg.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("breaker state change", "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{cb: gobreaker.NewTwoStepCircuitBreaker(settings), logger: log}
}

// Allow requests admission. On success the returned done func must be called
// exactly once with the final outcome of the admitted work. When the breaker
// rejects, the error is types.ErrBreakerOpen.
func (b *Breaker) Allow() (done func(success bool), err error) {
	done, err = b.cb.Allow()
	if err != nil {
		// gobreaker distinguishes ErrOpenState from ErrTooManyRequests
		// (half-open, probe already in flight); callers treat both as open.
		return nil, types.ErrBreakerOpen
	}
	return done, nil
}

// State returns the breaker state name: closed, half-open, or open.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
