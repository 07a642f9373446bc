package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictfi/venue/internal/domain"
)

type stubTrades struct {
	req    domain.TradeRequest
	result domain.TradeResult
	err    error
}

func (s *stubTrades) ExecuteTrade(_ context.Context, req domain.TradeRequest) (domain.TradeResult, error) {
	s.req = req
	return s.result, s.err
}

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func postTrade(t *testing.T, h *TradeHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/trades", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.PlaceTrade(rec, req)
	return rec
}

func TestPlaceTrade_Success(t *testing.T) {
	trades := &stubTrades{result: domain.TradeResult{
		Success:   true,
		OrderID:   "ord-1",
		FillPrice: decimal.NewFromFloat(0.52),
		FillSize:  decimal.NewFromFloat(192.3),
		Fees:      decimal.NewFromFloat(0.4),
	}}
	h := NewTradeHandler(trades, nopLogger())

	rec := postTrade(t, h, `{
		"user_id": "alice",
		"market_id": "mkt-1",
		"side": "buy",
		"outcome_id": "out-yes",
		"amount": "100"
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"order_id":"ord-1"`)
	assert.Contains(t, rec.Body.String(), `"fill_price":"0.52"`)

	assert.Equal(t, "alice", trades.req.UserID)
	assert.Equal(t, domain.OrderSideBuy, trades.req.Side)
	assert.True(t, decimal.NewFromInt(100).Equal(trades.req.Amount))
}

func TestPlaceTrade_ValidatesBody(t *testing.T) {
	h := NewTradeHandler(&stubTrades{}, nopLogger())

	cases := []struct {
		name string
		body string
		want string
	}{
		{"missing user", `{"market_id":"m","side":"buy","outcome_id":"o","amount":"10"}`, "user_id is required"},
		{"bad side", `{"user_id":"u","market_id":"m","side":"hold","outcome_id":"o","amount":"10"}`, "side must be buy or sell"},
		{"no outcome", `{"user_id":"u","market_id":"m","side":"buy","amount":"10"}`, "outcome_id or outcome is required"},
		{"zero amount", `{"user_id":"u","market_id":"m","side":"buy","outcome_id":"o","amount":"0"}`, "amount must be a positive decimal"},
		{"bad limit", `{"user_id":"u","market_id":"m","side":"buy","outcome_id":"o","amount":"10","limit_price":"-1"}`, "limit_price must be a positive decimal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postTrade(t, h, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.want)
		})
	}
}

func TestPlaceTrade_OutcomeByName(t *testing.T) {
	trades := &stubTrades{result: domain.TradeResult{Success: true}}
	h := NewTradeHandler(trades, nopLogger())

	rec := postTrade(t, h, `{
		"user_id": "alice",
		"market_id": "mkt-1",
		"side": "sell",
		"outcome": "Yes",
		"amount": "50"
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	m := domain.Market{
		ID: "mkt-1",
		Outcomes: []domain.Outcome{
			{ID: "out-yes", MarketID: "mkt-1", Name: "Yes"},
			{ID: "out-no", MarketID: "mkt-1", Name: "No"},
		},
	}
	out, err := trades.req.Outcome.Resolve(m)
	require.NoError(t, err)
	assert.Equal(t, "out-yes", out.ID)
}

func TestPlaceTrade_RejectionReturns422(t *testing.T) {
	trades := &stubTrades{err: &domain.Rejection{
		Code:   "MARKET_EXPOSURE_EXCEEDED",
		Reason: "market exposure limit reached",
	}}
	h := NewTradeHandler(trades, nopLogger())

	rec := postTrade(t, h, `{"user_id":"u","market_id":"m","side":"buy","outcome_id":"o","amount":"10"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "MARKET_EXPOSURE_EXCEEDED")
}

func TestPlaceTrade_ErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"lock held", domain.ErrLockHeld, http.StatusConflict},
		{"market closed", domain.ErrMarketNotActive, http.StatusConflict},
		{"venue rejected", domain.ErrExecutionRejected, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewTradeHandler(&stubTrades{err: tc.err}, nopLogger())
			rec := postTrade(t, h, `{"user_id":"u","market_id":"m","side":"buy","outcome_id":"o","amount":"10"}`)
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}
