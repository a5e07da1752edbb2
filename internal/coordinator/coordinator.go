// Package coordinator drives an order through its lifecycle: validation,
// duplicate detection, audit, the risk gate, and hand-off to the execution
// pipeline. It is the only writer of order state, and every transition is
// serialized per order, so the state machine can only move forward.
package coordinator

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradecore/internal/eventlog"
	"tradecore/internal/execution"
	"tradecore/internal/risk"
	"tradecore/pkg/types"
)

// Submitter hands approved orders to the execution pipeline.
type Submitter interface {
	Submit(order types.Order) error
}

// SubmitRequest is a validated-on-entry order submission.
type SubmitRequest struct {
	Symbol        string
	Side          types.Side
	Quantity      decimal.Decimal
	LimitPrice    decimal.Decimal
	ClientOrderID string
	Strategy      string
}

// Coordinator owns the order book and the submission path.
type Coordinator struct {
	mu     sync.RWMutex
	orders map[string]*record

	log      *eventlog.Log
	risk     *risk.Engine
	idem     *execution.Index
	pipeline Submitter
	logger   *slog.Logger
	now      func() time.Time
}

// record serializes transitions for one order.
type record struct {
	mu    sync.Mutex
	order types.Order
}

// New creates a coordinator.
func New(log *eventlog.Log, riskEngine *risk.Engine, idem *execution.Index, pipeline Submitter, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		orders:   make(map[string]*record),
		log:      log,
		risk:     riskEngine,
		idem:     idem,
		pipeline: pipeline,
		logger:   logger.With("component", "coordinator"),
		now:      time.Now,
	}
}

// Submit validates, deduplicates, records, and risk-checks one order, and
// hands it to the pipeline when approved. The returned order and risk
// result form the synchronous ack: REJECTED with violations is a normal
// outcome, not an error. A duplicate submission returns
// *types.DuplicateError and writes no events at all.
func (c *Coordinator) Submit(req SubmitRequest, principal types.Principal) (types.Order, types.RiskResult, error) {
	if err := validate(req); err != nil {
		return types.Order{}, types.RiskResult{}, err
	}

	// Claim the fingerprint before anything is recorded, so a duplicate
	// leaves no trace in the log or the order book.
	orderID := uuid.NewString()
	fp := execution.Fingerprint(principal.UserID, req.Symbol, req.Side, req.Quantity, req.LimitPrice, req.ClientOrderID)
	if prior, dup := c.idem.Claim(fp, orderID); dup {
		c.logger.Info("duplicate submission", "prior_order_id", prior, "user_id", principal.UserID)
		order, _ := c.Get(prior)
		return order, types.RiskResult{}, &types.DuplicateError{PriorOrderID: prior}
	}

	now := c.now().UTC()
	order := types.Order{
		OrderID:       orderID,
		ClientOrderID: req.ClientOrderID,
		CorrelationID: uuid.NewString(),
		Symbol:        req.Symbol,
		Side:          req.Side,
		Quantity:      req.Quantity,
		LimitPrice:    req.LimitPrice,
		UserID:        principal.UserID,
		Strategy:      req.Strategy,
		Status:        types.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	rec := &record{order: order}
	c.mu.Lock()
	c.orders[orderID] = rec
	c.mu.Unlock()

	if err := c.append(order, types.OrderCreated{
		Symbol:   order.Symbol,
		Side:     order.Side,
		Quantity: order.Quantity,
		Price:    order.LimitPrice,
		Strategy: order.Strategy,
	}); err != nil {
		// Without the creation record the order must not exist, and the
		// fingerprint must not outlive it: a retry of the same submission
		// is not a duplicate of an order that was never recorded.
		c.idem.Release(fp, orderID)
		c.mu.Lock()
		delete(c.orders, orderID)
		c.mu.Unlock()
		return types.Order{}, types.RiskResult{}, fmt.Errorf("record order: %w", err)
	}

	c.transition(rec, types.StatusRiskCheck, nil)
	c.appendBestEffort(order, types.RiskCheckStarted{})

	res := c.risk.Check(order)
	if !res.Passed {
		c.appendBestEffort(order, types.RiskCheckFailed{
			Violations:    res.Violations,
			NetExposure:   res.NetExposure,
			GrossExposure: res.GrossExposure,
			Message:       res.Message,
		})
		ack := c.transition(rec, types.StatusRejected, func(o *types.Order) {
			o.Reason = res.Message
		})
		c.logger.Info("order rejected",
			"order_id", orderID, "symbol", order.Symbol, "violations", res.Violations)
		return ack, res, nil
	}

	c.appendBestEffort(order, types.RiskCheckPassed{
		NetExposure:   res.NetExposure,
		GrossExposure: res.GrossExposure,
		DailyVolume:   c.risk.Metrics().DailyVolume,
	})
	ack := c.transition(rec, types.StatusApproved, nil)
	c.logger.Info("order approved", "order_id", orderID, "symbol", order.Symbol,
		"side", order.Side, "quantity", order.Quantity, "price", order.LimitPrice)

	if err := c.pipeline.Submit(ack); err != nil {
		c.logger.Error("pipeline submit failed", "order_id", orderID, "error", err)
	}
	return ack, res, nil
}

// Get returns a copy of the order.
func (c *Coordinator) Get(orderID string) (types.Order, bool) {
	c.mu.RLock()
	rec, ok := c.orders[orderID]
	c.mu.RUnlock()
	if !ok {
		return types.Order{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.order, true
}

// List returns copies of all orders, newest first.
func (c *Coordinator) List() []types.Order {
	c.mu.RLock()
	out := make([]types.Order, 0, len(c.orders))
	for _, rec := range c.orders {
		rec.mu.Lock()
		out = append(out, rec.order)
		rec.mu.Unlock()
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// MarkExecuting, MarkExecuted, and MarkFailed implement the pipeline's
// status sink.

func (c *Coordinator) MarkExecuting(orderID string) {
	if rec, ok := c.record(orderID); ok {
		c.transition(rec, types.StatusExecuting, nil)
	}
}

func (c *Coordinator) MarkExecuted(orderID string, fill types.Fill) {
	if rec, ok := c.record(orderID); ok {
		c.transition(rec, types.StatusExecuted, func(o *types.Order) {
			o.FilledQty = fill.Quantity
			o.FilledPrice = fill.Price
		})
	}
}

func (c *Coordinator) MarkFailed(orderID string, reason string) {
	rec, ok := c.record(orderID)
	if !ok {
		return
	}
	rec.mu.Lock()
	// A breaker rejection fails the order straight out of EXECUTING; any
	// earlier state steps through so the machine stays monotone.
	if rec.order.Status == types.StatusApproved {
		c.applyLocked(rec, types.StatusExecuting, nil)
	}
	c.applyLocked(rec, types.StatusFailed, func(o *types.Order) {
		o.Reason = reason
	})
	rec.mu.Unlock()
}

func (c *Coordinator) record(orderID string) (*record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.orders[orderID]
	return rec, ok
}

// transition applies one forward step under the record lock and returns the
// resulting copy. An illegal transition is a programming error: it is logged
// and the order is left untouched.
func (c *Coordinator) transition(rec *record, next types.OrderStatus, mutate func(*types.Order)) types.Order {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	c.applyLocked(rec, next, mutate)
	return rec.order
}

func (c *Coordinator) applyLocked(rec *record, next types.OrderStatus, mutate func(*types.Order)) {
	if !rec.order.Status.CanTransitionTo(next) {
		c.logger.Error("illegal status transition dropped",
			"order_id", rec.order.OrderID, "from", rec.order.Status, "to", next)
		return
	}
	rec.order.Status = next
	rec.order.UpdatedAt = c.now().UTC()
	if mutate != nil {
		mutate(&rec.order)
	}
}

func (c *Coordinator) append(order types.Order, payload types.EventPayload) error {
	_, err := c.log.Append(types.Event{
		Type:          payload.Kind(),
		CorrelationID: order.CorrelationID,
		OrderID:       order.OrderID,
		UserID:        order.UserID,
		Payload:       payload,
	})
	return err
}

// appendBestEffort logs and continues on audit failure; once ORDER_CREATED
// is durable the order proceeds even if a later event cannot be recorded.
func (c *Coordinator) appendBestEffort(order types.Order, payload types.EventPayload) {
	if err := c.append(order, payload); err != nil {
		c.logger.Error("audit append failed",
			"order_id", order.OrderID, "event_type", payload.Kind(), "error", err)
	}
}

func validate(req SubmitRequest) error {
	if req.Symbol == "" {
		return &types.ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	if !req.Side.Valid() {
		return &types.ValidationError{Field: "side", Reason: "must be BUY or SELL"}
	}
	if !req.Quantity.IsPositive() {
		return &types.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if req.LimitPrice.IsNegative() {
		return &types.ValidationError{Field: "limit_price", Reason: "must be non-negative"}
	}
	return nil
}
