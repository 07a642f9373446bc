package hedge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/predictfi/venue/internal/domain"
)

// VenueClient is the executor's view of the external venue.
type VenueClient interface {
	PlaceOrder(ctx context.Context, q domain.Quote) (string, error)
	OrderStatus(ctx context.Context, orderID string) (domain.ExecutionResult, error)
}

// Executor places the hedge order and waits a bounded time for it to fill.
//
// The wait is the only intentionally blocking step of the pipeline: the
// order status is polled at a fixed interval until the fill-wait deadline.
// When the deadline lapses the executor returns whatever fill state exists
// and leaves the order resting on the venue; it never cancels.
type Executor struct {
	venue  VenueClient
	cfg    Config
	logger *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(venue VenueClient, cfg Config, logger *slog.Logger) *Executor {
	return &Executor{
		venue:  venue,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "hedge_executor")),
	}
}

// Execute submits the quote as a limit order and polls until it fills, the
// venue fails it, or the fill wait expires.
//
// Terminal results: Status filled with Filled true; Status failed when the
// venue rejected or cancelled the order; Status timeout-open when the wait
// expired, with FillSize > 0 for a partial fill and zero otherwise.
func (e *Executor) Execute(ctx context.Context, q domain.Quote) (domain.ExecutionResult, error) {
	orderID, err := e.venue.PlaceOrder(ctx, q)
	if err != nil {
		return domain.ExecutionResult{Status: domain.OrderStatusFailed},
			fmt.Errorf("hedge: execute: %w", err)
	}

	e.logger.Info("hedge order placed",
		slog.String("external_order_id", orderID),
		slog.String("token_id", q.TokenID),
		slog.String("side", string(q.Side)),
		slog.String("price", q.Price.String()),
		slog.String("shares", q.Shares.String()),
	)

	deadline := time.NewTimer(e.cfg.FillWait)
	defer deadline.Stop()
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	// Last successfully observed state; returned as-is on timeout.
	last := domain.ExecutionResult{
		ExternalOrderID: orderID,
		Status:          domain.OrderStatusOpen,
	}

	for {
		select {
		case <-ctx.Done():
			return e.timedOut(last), ctx.Err()

		case <-deadline.C:
			result := e.timedOut(last)
			e.logger.Info("hedge fill wait expired",
				slog.String("external_order_id", orderID),
				slog.String("fill_size", result.FillSize.String()),
			)
			return result, nil

		case <-ticker.C:
			status, err := e.venue.OrderStatus(ctx, orderID)
			if err != nil {
				// Transient venue errors don't abort the wait.
				e.logger.Warn("hedge status poll failed",
					slog.String("external_order_id", orderID),
					slog.String("error", err.Error()),
				)
				continue
			}
			last = status

			switch {
			case status.Filled:
				e.logger.Info("hedge order filled",
					slog.String("external_order_id", orderID),
					slog.String("fill_price", status.FillPrice.String()),
					slog.String("fill_size", status.FillSize.String()),
				)
				return status, nil

			case status.Status == domain.OrderStatusFailed:
				return status, fmt.Errorf("hedge: execute: order %s: %w", orderID, domain.ErrExecutionRejected)
			}
		}
	}
}

// timedOut converts the last observed state into the timeout-open terminal
// result. A partial fill keeps its fill figures; the unfilled remainder
// stays resting on the venue.
func (e *Executor) timedOut(last domain.ExecutionResult) domain.ExecutionResult {
	last.Filled = false
	last.Status = domain.OrderStatusTimeoutOpen
	return last
}
