// Package settle resolves markets: it pays out winning shares, clears the
// market's share balances, and transitions the market to its terminal
// state, all in one transaction.
package settle

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

// ResolutionChannel is the signal bus channel resolution events publish to.
const ResolutionChannel = "venue.resolutions"

// payoutPerShare is the settlement value of one winning share.
var payoutPerShare = decimal.NewFromInt(1)

// Archiver exports a resolved market's records to cold storage. Called
// after the settlement transaction commits; failures are logged, never
// propagated.
type Archiver interface {
	ArchiveMarket(ctx context.Context, marketID string) error
}

// Settler performs market resolution.
type Settler struct {
	tx       domain.TxManager
	bus      domain.SignalBus
	archiver Archiver
	logger   *slog.Logger
}

// New creates a Settler. bus and archiver may be nil.
func New(tx domain.TxManager, bus domain.SignalBus, archiver Archiver, logger *slog.Logger) *Settler {
	return &Settler{
		tx:       tx,
		bus:      bus,
		archiver: archiver,
		logger:   logger.With(slog.String("component", "settle")),
	}
}

// ResolveMarket settles a market on the winning outcome: every winning
// share pays exactly $1.00 of cash, all share balances for the market
// (winning and losing) are zeroed, and the market transitions to resolved.
//
// Resolving an already-resolved market fails with ErrAlreadyResolved, so
// callers may retry safely. The whole settlement is atomic: either every
// holder is paid and the market is closed, or nothing changes.
func (s *Settler) ResolveMarket(ctx context.Context, marketID string, winner domain.OutcomeRef) (domain.PayoutResult, error) {
	result := domain.PayoutResult{
		MarketID:    marketID,
		TotalPayout: decimal.Zero,
		TotalFees:   decimal.Zero,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow domain.UnitOfWork) error {
		market, err := uow.Markets().GetByID(ctx, marketID)
		if err != nil {
			return err
		}
		if market.Status == domain.MarketStatusResolved {
			return domain.ErrAlreadyResolved
		}

		winning, err := winner.Resolve(market)
		if err != nil {
			return err
		}

		shares, err := uow.Balances().SharesByMarket(ctx, marketID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		winningToken := domain.ShareToken(marketID, winning.ID)
		for _, b := range shares {
			if b.Key.Token != winningToken || !b.Amount.IsPositive() {
				continue
			}

			payout := b.Amount.Mul(payoutPerShare)
			if _, err := uow.Balances().Add(ctx, domain.CashKey(b.Key.UserID), payout); err != nil {
				return err
			}

			if err := uow.Activities().Append(ctx, domain.MarketActivity{
				ID:        uuid.New().String(),
				MarketID:  marketID,
				OutcomeID: winning.ID,
				UserID:    b.Key.UserID,
				Kind:      domain.ActivityPayout,
				Shares:    b.Amount,
				Value:     payout,
				Price:     payoutPerShare,
				CreatedAt: now,
			}); err != nil {
				return err
			}

			result.Winners++
			result.TotalPayout = result.TotalPayout.Add(payout)
		}

		if err := uow.Balances().ZeroSharesByMarket(ctx, marketID); err != nil {
			return err
		}

		if err := uow.Activities().Append(ctx, domain.MarketActivity{
			ID:        uuid.New().String(),
			MarketID:  marketID,
			OutcomeID: winning.ID,
			Kind:      domain.ActivityResolution,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		// Fee total is reported from the market's order history; settlement
		// itself charges nothing.
		orders, err := uow.Orders().ListByMarket(ctx, marketID, domain.ListOpts{})
		if err != nil {
			return err
		}
		for _, o := range orders {
			result.TotalFees = result.TotalFees.Add(o.Fees)
		}

		return uow.Markets().SetStatus(ctx, marketID, domain.MarketStatusResolved, winning.Name)
	})
	if err != nil {
		return domain.PayoutResult{}, fmt.Errorf("settle: resolve %s: %w", marketID, err)
	}

	s.logger.Info("market resolved",
		slog.String("market_id", marketID),
		slog.Int("winners", result.Winners),
		slog.String("total_payout", result.TotalPayout.String()),
	)

	s.publish(ctx, result, winner)
	s.archive(ctx, marketID)
	return result, nil
}

func (s *Settler) publish(ctx context.Context, result domain.PayoutResult, winner domain.OutcomeRef) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"market_id":    result.MarketID,
		"winner":       winner.String(),
		"winners":      result.Winners,
		"total_payout": result.TotalPayout,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, ResolutionChannel, payload); err != nil {
		s.logger.Warn("resolution event publish failed",
			slog.String("market_id", result.MarketID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Settler) archive(ctx context.Context, marketID string) {
	if s.archiver == nil {
		return
	}
	if err := s.archiver.ArchiveMarket(ctx, marketID); err != nil {
		s.logger.Warn("market archive failed",
			slog.String("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}
