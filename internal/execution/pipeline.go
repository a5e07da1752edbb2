package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"tradecore/internal/eventlog"
	"tradecore/internal/position"
	"tradecore/pkg/types"
)

// ErrPipelineStopped is returned by Submit after Stop.
var ErrPipelineStopped = errors.New("execution pipeline stopped")

// StatusSink receives order status transitions from the pipeline. The
// coordinator implements it; the pipeline never touches order records
// directly.
type StatusSink interface {
	MarkExecuting(orderID string)
	MarkExecuted(orderID string, fill types.Fill)
	MarkFailed(orderID string, reason string)
}

// PipelineConfig tunes the worker pool and retry policy.
type PipelineConfig struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	AttemptTimeout time.Duration
	RetryMin       time.Duration
	RetryMax       time.Duration
}

func (c *PipelineConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	if c.RetryMin <= 0 {
		c.RetryMin = time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 30 * time.Second
	}
}

// Pipeline executes approved orders on a bounded worker pool. Each order is
// owned by exactly one worker from EXECUTION_STARTED to its terminal event,
// so an order's execution events are appended in causal order. No lock is
// held across a downstream call.
type Pipeline struct {
	cfg       PipelineConfig
	executor  Executor
	breaker   *Breaker
	log       *eventlog.Log
	positions *position.Store
	sink      StatusSink
	logger    *slog.Logger

	queue  chan types.Order
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewPipeline wires the pipeline. Call Start before Submit.
func NewPipeline(cfg PipelineConfig, executor Executor, breaker *Breaker, log *eventlog.Log, positions *position.Store, sink StatusSink, logger *slog.Logger) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{
		cfg:       cfg,
		executor:  executor,
		breaker:   breaker,
		log:       log,
		positions: positions,
		sink:      sink,
		logger:    logger.With("component", "pipeline"),
		queue:     make(chan types.Order, cfg.QueueSize),
	}
}

// Start launches the worker pool.
func (p *Pipeline) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	p.logger.Info("pipeline started", "workers", p.cfg.Workers, "queue", p.cfg.QueueSize)
}

// Stop drains nothing: queued orders not yet picked up are abandoned, and
// in-flight attempts are cancelled through their contexts.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("pipeline stopped")
}

// Submit enqueues an approved order. Blocks while the queue is full.
func (p *Pipeline) Submit(order types.Order) error {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return ErrPipelineStopped
	}
	p.queue <- order
	return nil
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case order := <-p.queue:
			p.process(ctx, order)
		}
	}
}

// process drives one order from EXECUTING to a terminal state.
func (p *Pipeline) process(ctx context.Context, order types.Order) {
	p.sink.MarkExecuting(order.OrderID)
	if err := p.append(order, types.ExecutionStarted{}); err != nil {
		// An order that cannot be audited must not reach the venue.
		p.sink.MarkFailed(order.OrderID, fmt.Sprintf("audit log unavailable: %v", err))
		return
	}

	done, err := p.breaker.Allow()
	if err != nil {
		p.logger.Warn("breaker rejected order", "order_id", order.OrderID, "state", p.breaker.State())
		p.append(order, types.ExecutionFailed{Reason: types.BreakerOpenReason})
		p.sink.MarkFailed(order.OrderID, types.BreakerOpenReason)
		return
	}

	fill, attempts, err := p.attempt(ctx, order)
	if err != nil {
		done(false)
		reason := fmt.Sprintf("execution failed after %d attempts: %v", attempts, err)
		p.logger.Error("execution failed", "order_id", order.OrderID, "attempts", attempts, "error", err)
		p.append(order, types.ExecutionFailed{Reason: reason, Attempts: attempts})
		p.sink.MarkFailed(order.OrderID, reason)
		return
	}
	done(true)

	// The fill event and the position update are appended back to back from
	// this worker, so they are adjacent for the order. A fill whose event
	// cannot be recorded must not change positions: replaying the log has to
	// reproduce every position contribution.
	if err := p.append(order, types.ExecutionCompleted{
		Quantity: fill.Quantity,
		Price:    fill.Price,
		Attempts: attempts,
		FilledAt: fill.Timestamp,
	}); err != nil {
		p.sink.MarkFailed(order.OrderID, fmt.Sprintf("fill could not be recorded: %v", err))
		return
	}
	pos := p.positions.ApplyFill(order.Symbol, order.Side, fill.Quantity, fill.Price)
	p.append(order, types.PositionUpdated{
		Symbol:       pos.Symbol,
		Quantity:     pos.Quantity,
		AveragePrice: pos.AveragePrice,
		LastPrice:    pos.LastPrice,
	})
	p.sink.MarkExecuted(order.OrderID, fill)
	p.logger.Info("order executed",
		"order_id", order.OrderID, "symbol", order.Symbol,
		"quantity", fill.Quantity, "price", fill.Price, "attempts", attempts)
}

// attempt runs the bounded retry loop: up to MaxAttempts tries with a
// per-attempt deadline, exponential backoff between transient failures, and
// an immediate stop on a permanent error.
func (p *Pipeline) attempt(ctx context.Context, order types.Order) (types.Fill, int, error) {
	delay := &backoff.Backoff{
		Min:    p.cfg.RetryMin,
		Max:    p.cfg.RetryMax,
		Factor: 2,
		Jitter: false,
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
		fill, err := p.executor.Execute(attemptCtx, order)
		cancel()
		if err == nil {
			return fill, attempt, nil
		}
		lastErr = err

		if !types.IsTransient(err) {
			return types.Fill{}, attempt, err
		}
		if attempt == p.cfg.MaxAttempts {
			return types.Fill{}, attempt, err
		}

		p.logger.Warn("transient execution failure, retrying",
			"order_id", order.OrderID, "attempt", attempt, "error", err)
		timer := time.NewTimer(delay.Duration())
		select {
		case <-ctx.Done():
			timer.Stop()
			return types.Fill{}, attempt, ctx.Err()
		case <-timer.C:
		}
	}
	return types.Fill{}, p.cfg.MaxAttempts, lastErr
}

// append writes one event for the order and returns the write error. Callers
// ahead of an irreversible step abort the order on failure; callers already
// on a terminal path ignore the error. Failures are logged either way.
func (p *Pipeline) append(order types.Order, payload types.EventPayload) error {
	_, err := p.log.Append(types.Event{
		Type:          payload.Kind(),
		CorrelationID: order.CorrelationID,
		OrderID:       order.OrderID,
		UserID:        order.UserID,
		Payload:       payload,
	})
	if err != nil {
		p.logger.Error("audit append failed",
			"order_id", order.OrderID, "event_type", payload.Kind(), "error", err)
	}
	return err
}
