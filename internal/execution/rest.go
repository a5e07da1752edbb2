package execution

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"tradecore/pkg/types"
)

// RESTConfig points the REST executor at a downstream order gateway.
type RESTConfig struct {
	BaseURL string
	APIKey  string
}

// RESTExecutor submits orders to an HTTP order gateway. Retries and
// per-attempt deadlines belong to the pipeline, so the client performs
// exactly one request per Execute call.
type RESTExecutor struct {
	client *resty.Client
	logger *slog.Logger
}

type orderRequest struct {
	OrderID  string          `json:"order_id"`
	Symbol   string          `json:"symbol"`
	Side     types.Side      `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type fillResponse struct {
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	FilledPrice    decimal.Decimal `json:"filled_price"`
	FilledAt       time.Time       `json:"filled_at"`
}

// NewRESTExecutor creates an executor for the gateway at cfg.BaseURL.
func NewRESTExecutor(cfg RESTConfig, logger *slog.Logger) *RESTExecutor {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(0) // the pipeline owns retry policy
	if cfg.APIKey != "" {
		client.SetHeader("X-API-Key", cfg.APIKey)
	}
	return &RESTExecutor{
		client: client,
		logger: logger.With("component", "rest-executor"),
	}
}

// Execute posts the order and maps the response onto the error taxonomy:
// timeouts, 408, 429 and 5xx are transient; any other 4xx is a permanent
// rejection.
func (r *RESTExecutor) Execute(ctx context.Context, order types.Order) (types.Fill, error) {
	var out fillResponse
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(orderRequest{
			OrderID:  order.OrderID,
			Symbol:   order.Symbol,
			Side:     order.Side,
			Quantity: order.Quantity,
			Price:    order.LimitPrice,
		}).
		SetResult(&out).
		Post("/orders")
	if err != nil {
		r.logger.Warn("gateway request failed", "order_id", order.OrderID, "error", err)
		return types.Fill{}, &types.TransientError{Reason: "gateway unreachable", Err: err}
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusRequestTimeout,
		code == http.StatusTooManyRequests,
		code >= http.StatusInternalServerError:
		r.logger.Warn("gateway returned transient status", "order_id", order.OrderID, "status", code)
		return types.Fill{}, &types.TransientError{
			Reason: fmt.Sprintf("gateway returned %d", code),
		}
	case code >= http.StatusBadRequest:
		return types.Fill{}, &types.PermanentError{
			Reason: fmt.Sprintf("gateway rejected order: %d %s", code, resp.String()),
		}
	}

	filledAt := out.FilledAt
	if filledAt.IsZero() {
		filledAt = time.Now().UTC()
	}
	return types.Fill{
		OrderID:   order.OrderID,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Quantity:  out.FilledQuantity,
		Price:     out.FilledPrice,
		Timestamp: filledAt,
	}, nil
}
