package eventlog

import (
	"github.com/shopspring/decimal"

	"tradecore/pkg/types"
)

// ReplayResult is the state reconstructed by folding an order's event chain.
// Replaying all events for a correlation reproduces the final order status
// and the position contribution of that order.
type ReplayResult struct {
	OrderID       string            `json:"order_id"`
	Symbol        string            `json:"symbol"`
	Side          types.Side        `json:"side"`
	Status        types.OrderStatus `json:"status"`
	FilledQty     decimal.Decimal   `json:"filled_quantity"`
	FilledPrice   decimal.Decimal   `json:"filled_price"`
	PositionDelta decimal.Decimal   `json:"position_delta"` // signed quantity contribution
	Events        int               `json:"events"`
}

// Replay folds an ordered event chain (as returned by ByOrder or
// ByCorrelation for a single-order chain) back into the order's final state.
func Replay(events []types.Event) ReplayResult {
	res := ReplayResult{Events: len(events)}

	for _, e := range events {
		if res.OrderID == "" && e.OrderID != "" {
			res.OrderID = e.OrderID
		}
		switch p := e.Payload.(type) {
		case types.OrderCreated:
			res.Symbol = p.Symbol
			res.Side = p.Side
			res.Status = types.StatusPending
		case types.RiskCheckStarted:
			res.Status = types.StatusRiskCheck
		case types.RiskCheckPassed:
			res.Status = types.StatusApproved
		case types.RiskCheckFailed:
			res.Status = types.StatusRejected
		case types.ExecutionStarted:
			res.Status = types.StatusExecuting
		case types.ExecutionCompleted:
			res.Status = types.StatusExecuted
			res.FilledQty = p.Quantity
			res.FilledPrice = p.Price
			res.PositionDelta = p.Quantity
			if res.Side == types.SELL {
				res.PositionDelta = p.Quantity.Neg()
			}
		case types.ExecutionFailed:
			res.Status = types.StatusFailed
		}
	}
	return res
}
