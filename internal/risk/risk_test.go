package risk

import (
	"context"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictfi/venue/internal/config"
	"github.com/predictfi/venue/internal/domain"
)

type stubBalances struct {
	domain.BalanceStore

	balances   map[string]decimal.Decimal // keyed by userID+"/"+token
	shareTotal decimal.Decimal
}

func (s *stubBalances) Get(ctx context.Context, key domain.BalanceKey) (domain.Balance, error) {
	amount, ok := s.balances[key.UserID+"/"+key.Token]
	if !ok {
		return domain.Balance{}, domain.ErrNotFound
	}
	return domain.Balance{Key: key, Amount: amount}, nil
}

func (s *stubBalances) UserShareTotal(ctx context.Context, userID, marketID string) (decimal.Decimal, error) {
	return s.shareTotal, nil
}

func newManager(balances *stubBalances) *Manager {
	return newManagerWithFee(balances, 0)
}

func newManagerWithFee(balances *stubBalances, feeRateBps int) *Manager {
	cfg := config.RiskConfig{
		MaxMarketExposureUSD: 5000,
		MaxPriceImpactBps:    1500,
	}
	return NewManager(balances, cfg, feeRateBps, slog.Default())
}

func buyRequest(amount int64) domain.TradeRequest {
	return domain.TradeRequest{
		UserID:   "user-1",
		MarketID: "mkt-1",
		Side:     domain.OrderSideBuy,
		Outcome:  domain.OutcomeByIDRef("out-yes"),
		Amount:   decimal.NewFromInt(amount),
	}
}

func yesOutcome() domain.Outcome {
	return domain.Outcome{ID: "out-yes", MarketID: "mkt-1", Name: "Yes"}
}

func TestValidateTrade_Passes(t *testing.T) {
	balances := &stubBalances{balances: map[string]decimal.Decimal{
		"user-1/USDC": decimal.NewFromInt(500),
	}}
	m := newManager(balances)

	rej, err := m.ValidateTrade(context.Background(), buyRequest(100), yesOutcome(), 0.50, 0.52)
	require.NoError(t, err)
	assert.Nil(t, rej)
}

func TestValidateTrade_InsufficientCash(t *testing.T) {
	balances := &stubBalances{balances: map[string]decimal.Decimal{
		"user-1/USDC": decimal.NewFromInt(50),
	}}
	m := newManager(balances)

	rej, err := m.ValidateTrade(context.Background(), buyRequest(100), yesOutcome(), 0.50, 0.52)
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, CodeInsufficientBalance, rej.Code)
}

func TestValidateTrade_BuyReservesFeeHeadroom(t *testing.T) {
	balances := &stubBalances{balances: map[string]decimal.Decimal{
		"user-1/USDC": decimal.NewFromInt(100),
	}}
	m := newManagerWithFee(balances, 20) // 20 bps

	// $100 cash cannot cover a $100 buy plus $0.20 of fees.
	rej, err := m.ValidateTrade(context.Background(), buyRequest(100), yesOutcome(), 0.50, 0.52)
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, CodeInsufficientBalance, rej.Code)
	assert.Contains(t, rej.Reason, "100.20")

	balances.balances["user-1/USDC"] = decimal.RequireFromString("100.20")
	rej, err = m.ValidateTrade(context.Background(), buyRequest(100), yesOutcome(), 0.50, 0.52)
	require.NoError(t, err)
	assert.Nil(t, rej)
}

func TestValidateTrade_NoBalanceRowCountsAsZero(t *testing.T) {
	m := newManager(&stubBalances{balances: map[string]decimal.Decimal{}})

	rej, err := m.ValidateTrade(context.Background(), buyRequest(100), yesOutcome(), 0.50, 0.52)
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, CodeInsufficientBalance, rej.Code)
}

func TestValidateTrade_SellChecksShareBalance(t *testing.T) {
	balances := &stubBalances{balances: map[string]decimal.Decimal{
		"user-1/" + domain.ShareToken("mkt-1", "out-yes"): decimal.NewFromInt(20),
	}}
	m := newManager(balances)

	req := buyRequest(50)
	req.Side = domain.OrderSideSell

	rej, err := m.ValidateTrade(context.Background(), req, yesOutcome(), 0.50, 0.48)
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, CodeInsufficientBalance, rej.Code)

	req.Amount = decimal.NewFromInt(20)
	rej, err = m.ValidateTrade(context.Background(), req, yesOutcome(), 0.50, 0.48)
	require.NoError(t, err)
	assert.Nil(t, rej)
}

func TestValidateTrade_ExposureCap(t *testing.T) {
	balances := &stubBalances{
		balances: map[string]decimal.Decimal{
			"user-1/USDC": decimal.NewFromInt(10000),
		},
		shareTotal: decimal.NewFromInt(4950),
	}
	m := newManager(balances)

	rej, err := m.ValidateTrade(context.Background(), buyRequest(100), yesOutcome(), 0.50, 0.51)
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, CodeExposureExceeded, rej.Code)
}

func TestValidateTrade_PriceImpactBound(t *testing.T) {
	balances := &stubBalances{balances: map[string]decimal.Decimal{
		"user-1/USDC": decimal.NewFromInt(5000),
	}}
	m := newManager(balances)

	// 0.50 -> 0.60 is a 2000 bps move, over the 1500 bps bound.
	rej, err := m.ValidateTrade(context.Background(), buyRequest(100), yesOutcome(), 0.50, 0.60)
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, CodePriceImpactTooHigh, rej.Code)

	// 0.50 -> 0.55 is 1000 bps, inside the bound.
	rej, err = m.ValidateTrade(context.Background(), buyRequest(100), yesOutcome(), 0.50, 0.55)
	require.NoError(t, err)
	assert.Nil(t, rej)
}
