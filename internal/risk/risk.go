// Package risk implements the pre-trade checks that gate every trade before
// the hedge pipeline runs: balance sufficiency, exposure caps, and price
// impact.
package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"

	"github.com/predictfi/venue/internal/config"
	"github.com/predictfi/venue/internal/domain"
)

// Rejection codes surfaced to the API.
const (
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeExposureExceeded    = "EXPOSURE_EXCEEDED"
	CodePriceImpactTooHigh  = "PRICE_IMPACT_TOO_HIGH"
)

// Manager validates trades pre-flight. Expected rejections come back as a
// *domain.Rejection, never as an infrastructure error; only store failures
// propagate as errors.
type Manager struct {
	balances domain.BalanceStore

	maxMarketExposure decimal.Decimal
	maxPriceImpactBps float64
	feeRate           decimal.Decimal
	logger            *slog.Logger
}

// NewManager creates a risk Manager from the configured limits. feeRateBps
// is the venue fee rate; buys must leave that much cash headroom on top of
// the trade amount, since the ledger debits fees alongside the fill.
func NewManager(balances domain.BalanceStore, cfg config.RiskConfig, feeRateBps int, logger *slog.Logger) *Manager {
	return &Manager{
		balances:          balances,
		maxMarketExposure: decimal.NewFromFloat(cfg.MaxMarketExposureUSD),
		maxPriceImpactBps: cfg.MaxPriceImpactBps,
		feeRate:           decimal.New(int64(feeRateBps), -4),
		logger:            logger.With(slog.String("component", "risk")),
	}
}

// ValidateTrade runs the pre-trade checks in order: spendable balance,
// per-user market exposure, then price impact. The first failed check
// produces the rejection; later checks are not evaluated.
//
// currentPrice and predictedPrice are the market's probability before and
// after the trade, used for the impact bound.
func (m *Manager) ValidateTrade(ctx context.Context, req domain.TradeRequest, outcome domain.Outcome, currentPrice, predictedPrice float64) (*domain.Rejection, error) {
	if rej, err := m.checkBalance(ctx, req, outcome); rej != nil || err != nil {
		return rej, err
	}
	if rej, err := m.checkExposure(ctx, req); rej != nil || err != nil {
		return rej, err
	}
	if rej := m.checkPriceImpact(currentPrice, predictedPrice); rej != nil {
		return rej, nil
	}
	return nil, nil
}

// checkBalance verifies the user holds enough of the token being spent:
// cash for a buy, shares of the traded outcome for a sell. A buy must cover
// the amount plus fees, otherwise a full fill would overdraw the account at
// settlement.
func (m *Manager) checkBalance(ctx context.Context, req domain.TradeRequest, outcome domain.Outcome) (*domain.Rejection, error) {
	var key domain.BalanceKey
	required := req.Amount
	if req.Side == domain.OrderSideBuy {
		key = domain.CashKey(req.UserID)
		required = req.Amount.Add(req.Amount.Mul(m.feeRate))
	} else {
		key = domain.ShareKey(req.UserID, req.MarketID, outcome.ID)
	}

	balance, err := m.balances.Get(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			balance = domain.Balance{Key: key, Amount: decimal.Zero}
		} else {
			return nil, fmt.Errorf("risk: check balance: %w", err)
		}
	}

	if balance.Amount.LessThan(required) {
		unit := "USD"
		if req.Side == domain.OrderSideSell {
			unit = "shares"
		}
		return &domain.Rejection{
			Code: CodeInsufficientBalance,
			Reason: fmt.Sprintf("requires %s %s, holds %s",
				required.StringFixed(2), unit, balance.Amount.StringFixed(2)),
		}, nil
	}
	return nil, nil
}

// checkExposure caps a user's total position value in one market. Exposure
// is approximated as share count held plus the incoming buy's cash amount;
// sells reduce exposure and always pass.
func (m *Manager) checkExposure(ctx context.Context, req domain.TradeRequest) (*domain.Rejection, error) {
	if req.Side == domain.OrderSideSell {
		return nil, nil
	}

	held, err := m.balances.UserShareTotal(ctx, req.UserID, req.MarketID)
	if err != nil {
		return nil, fmt.Errorf("risk: check exposure: %w", err)
	}

	// Shares pay out at most $1 each, so share count bounds position value.
	if held.Add(req.Amount).GreaterThan(m.maxMarketExposure) {
		return &domain.Rejection{
			Code: CodeExposureExceeded,
			Reason: fmt.Sprintf("market exposure %s + %s exceeds cap %s",
				held.StringFixed(2), req.Amount.StringFixed(2), m.maxMarketExposure.StringFixed(2)),
		}, nil
	}
	return nil, nil
}

// checkPriceImpact rejects trades that would move the quoted probability
// beyond the configured bound.
func (m *Manager) checkPriceImpact(currentPrice, predictedPrice float64) *domain.Rejection {
	if currentPrice <= 0 {
		return nil
	}

	impactBps := math.Abs(predictedPrice-currentPrice) / currentPrice * 10000
	if impactBps > m.maxPriceImpactBps {
		return &domain.Rejection{
			Code: CodePriceImpactTooHigh,
			Reason: fmt.Sprintf("price impact %.0f bps exceeds bound %.0f bps (%.4f -> %.4f)",
				impactBps, m.maxPriceImpactBps, currentPrice, predictedPrice),
		}
	}
	return nil
}
