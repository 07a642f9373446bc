// Package ledger persists the outcome of a trade as one atomic unit: the
// order record, the activity log entry, the hedge audit row, and the
// balance mutations all commit together or not at all.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/predictfi/venue/internal/domain"
)

// TradeChannel is the signal bus channel trade events publish to.
const TradeChannel = "venue.trades"

// TradeRecord is everything the ledger needs to persist one completed trade
// attempt. For hedged trades Execution carries the external fill; for AMM
// trades the service synthesizes it from the cost function and supplies the
// post-trade outcome state in UpdatedOutcomes.
type TradeRecord struct {
	Request   domain.TradeRequest
	Outcome   domain.Outcome
	Hedged    bool
	TokenID   string // external token, empty for AMM trades
	Execution domain.ExecutionResult

	// UpdatedOutcomes, when non-nil, is written back to the market inside
	// the same transaction (AMM path demand update).
	UpdatedOutcomes []domain.Outcome
}

// Ledger is the single writer of balances. It trusts the risk manager's
// pre-flight checks and does not re-validate; its own contract is
// atomicity.
type Ledger struct {
	tx     domain.TxManager
	bus    domain.SignalBus
	logger *slog.Logger
}

// New creates a Ledger. bus may be nil in tests; events are then dropped.
func New(tx domain.TxManager, bus domain.SignalBus, logger *slog.Logger) *Ledger {
	return &Ledger{
		tx:     tx,
		bus:    bus,
		logger: logger.With(slog.String("component", "ledger")),
	}
}

// PersistTrade writes the order, activity, hedge position, and balance
// mutations in one transaction and returns the created order.
//
// Balance shape by outcome:
//   - filled buy: cash debited by fill value plus fees, shares credited;
//   - filled sell: shares debited, cash credited net of fees;
//   - timeout-open buy: the unfilled remainder of the cash moves to the
//     locked-cash token so it cannot be double-spent while the order rests;
//     any filled portion is booked normally;
//   - failed: the order record alone, no balance changes.
func (l *Ledger) PersistTrade(ctx context.Context, rec TradeRecord) (domain.Order, error) {
	order := l.buildOrder(rec)

	err := l.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		if err := uow.Orders().Create(ctx, order); err != nil {
			return err
		}

		if err := uow.Activities().Append(ctx, l.buildActivity(rec, order)); err != nil {
			return err
		}

		if rec.Hedged && rec.Execution.ExternalOrderID != "" {
			if err := uow.HedgePositions().Create(ctx, l.buildHedgePosition(rec, order)); err != nil {
				return err
			}
		}

		if err := l.applyBalances(ctx, uow, rec, order); err != nil {
			return err
		}

		if rec.UpdatedOutcomes != nil {
			if err := uow.Markets().UpdateOutcomes(ctx, rec.Request.MarketID, rec.UpdatedOutcomes); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("ledger: persist trade: %w", err)
	}

	l.publish(ctx, order)
	return order, nil
}

func (l *Ledger) buildOrder(rec TradeRecord) domain.Order {
	return domain.Order{
		ID:            uuid.New().String(),
		UserID:        rec.Request.UserID,
		MarketID:      rec.Request.MarketID,
		OutcomeID:     rec.Outcome.ID,
		TokenID:       rec.TokenID,
		Side:          rec.Request.Side,
		RequestedSize: rec.Request.Amount,
		FillPrice:     rec.Execution.FillPrice,
		FillSize:      rec.Execution.FillSize,
		Fees:          rec.Execution.Fees,
		Status:        rec.Execution.Status,
		Hedged:        rec.Hedged,
		CreatedAt:     time.Now().UTC(),
	}
}

func (l *Ledger) buildActivity(rec TradeRecord, order domain.Order) domain.MarketActivity {
	kind := domain.ActivityTrade
	if order.Status == domain.OrderStatusTimeoutOpen {
		kind = domain.ActivityHedgeRest
	}
	return domain.MarketActivity{
		ID:        uuid.New().String(),
		MarketID:  order.MarketID,
		OutcomeID: order.OutcomeID,
		UserID:    order.UserID,
		Kind:      kind,
		Side:      order.Side,
		Shares:    order.FillSize,
		Value:     order.FillSize.Mul(order.FillPrice),
		Price:     order.FillPrice,
		CreatedAt: order.CreatedAt,
	}
}

func (l *Ledger) buildHedgePosition(rec TradeRecord, order domain.Order) domain.HedgePosition {
	return domain.HedgePosition{
		ID:              uuid.New().String(),
		OrderID:         order.ID,
		ExternalOrderID: rec.Execution.ExternalOrderID,
		MarketID:        order.MarketID,
		TokenID:         rec.TokenID,
		Side:            order.Side,
		Shares:          order.FillSize,
		SpreadCaptured:  decimal.Zero,
		FeesPaid:        order.Fees,
		CreatedAt:       order.CreatedAt,
	}
}

// applyBalances performs the balance mutations for one order.
func (l *Ledger) applyBalances(ctx context.Context, uow domain.UnitOfWork, rec TradeRecord, order domain.Order) error {
	balances := uow.Balances()
	userID := order.UserID
	shareKey := domain.ShareKey(userID, order.MarketID, order.OutcomeID)

	fillValue := order.FillSize.Mul(order.FillPrice)

	if order.FillSize.IsPositive() {
		if order.Side == domain.OrderSideBuy {
			debit := fillValue.Add(order.Fees)
			if _, err := balances.Add(ctx, domain.CashKey(userID), debit.Neg()); err != nil {
				return err
			}
			if _, err := balances.Add(ctx, shareKey, order.FillSize); err != nil {
				return err
			}
		} else {
			if _, err := balances.Add(ctx, shareKey, order.FillSize.Neg()); err != nil {
				return err
			}
			credit := fillValue.Sub(order.Fees)
			if _, err := balances.Add(ctx, domain.CashKey(userID), credit); err != nil {
				return err
			}
		}
	}

	// A resting buy keeps its unfilled cash reserved until the order is
	// reconciled off the venue.
	if order.Status == domain.OrderStatusTimeoutOpen && order.Side == domain.OrderSideBuy {
		remainder := order.RequestedSize.Sub(fillValue)
		if remainder.IsPositive() {
			if _, err := balances.Add(ctx, domain.CashKey(userID), remainder.Neg()); err != nil {
				return err
			}
			if _, err := balances.Add(ctx, domain.LockedCashKey(userID), remainder); err != nil {
				return err
			}
		}
	}

	return nil
}

// publish emits the trade event after commit. Best effort; the database is
// the source of truth.
func (l *Ledger) publish(ctx context.Context, order domain.Order) {
	if l.bus == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"order_id":   order.ID,
		"market_id":  order.MarketID,
		"outcome_id": order.OutcomeID,
		"side":       order.Side,
		"fill_price": order.FillPrice,
		"fill_size":  order.FillSize,
		"status":     order.Status,
	})
	if err != nil {
		return
	}
	if err := l.bus.Publish(ctx, TradeChannel, payload); err != nil {
		l.logger.Warn("trade event publish failed",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}
}
