package execution

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"tradecore/pkg/types"
)

// Executor submits an approved order downstream and reports the fill. An
// implementation must honor ctx cancellation; the pipeline applies a
// per-attempt deadline and classifies errors via types.IsTransient.
type Executor interface {
	Execute(ctx context.Context, order types.Order) (types.Fill, error)
}

// SimConfig tunes the simulated venue.
type SimConfig struct {
	MinLatency  time.Duration
	MaxLatency  time.Duration
	FailureRate float64 // probability of a transient failure per attempt
	RejectRate  float64 // probability of a permanent rejection per attempt
}

// SimExecutor is an in-process venue for development and testing: it sleeps
// a random latency, fails with the configured probabilities, and otherwise
// fills the full quantity at exactly the limit price.
type SimExecutor struct {
	cfg    SimConfig
	logger *slog.Logger
}

// NewSimExecutor creates a simulated executor. Zero latencies fill
// immediately.
func NewSimExecutor(cfg SimConfig, logger *slog.Logger) *SimExecutor {
	return &SimExecutor{cfg: cfg, logger: logger.With("component", "sim-executor")}
}

// Execute simulates one venue round trip.
func (s *SimExecutor) Execute(ctx context.Context, order types.Order) (types.Fill, error) {
	if lat := s.latency(); lat > 0 {
		timer := time.NewTimer(lat)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return types.Fill{}, ctx.Err()
		case <-timer.C:
		}
	}

	roll := rand.Float64()
	switch {
	case roll < s.cfg.RejectRate:
		return types.Fill{}, &types.PermanentError{Reason: "order rejected by venue"}
	case roll < s.cfg.RejectRate+s.cfg.FailureRate:
		return types.Fill{}, &types.TransientError{Reason: "venue temporarily unavailable"}
	}

	return types.Fill{
		OrderID:   order.OrderID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Quantity:  order.Quantity,
		Price:     order.LimitPrice,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (s *SimExecutor) latency() time.Duration {
	if s.cfg.MaxLatency <= s.cfg.MinLatency {
		return s.cfg.MinLatency
	}
	return s.cfg.MinLatency + time.Duration(rand.Int64N(int64(s.cfg.MaxLatency-s.cfg.MinLatency)))
}
