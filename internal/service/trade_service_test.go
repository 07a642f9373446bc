package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictfi/venue/internal/config"
	"github.com/predictfi/venue/internal/domain"
	"github.com/predictfi/venue/internal/ledger"
	"github.com/predictfi/venue/internal/risk"
)

type stubMarkets struct {
	domain.MarketStore
	market domain.Market
	err    error
}

func (s *stubMarkets) GetByID(ctx context.Context, id string) (domain.Market, error) {
	if s.err != nil {
		return domain.Market{}, s.err
	}
	return s.market, nil
}

type stubResolver struct {
	hctx domain.HedgeContext
	err  error
}

func (s *stubResolver) Resolve(ctx context.Context, market domain.Market, outcome domain.Outcome) (domain.HedgeContext, error) {
	return s.hctx, s.err
}

type stubQuoter struct {
	quote   domain.Quote
	err     error
	refProb *float64
}

func (s *stubQuoter) Quote(ctx context.Context, hctx domain.HedgeContext, side domain.OrderSide, amount decimal.Decimal, refProb *float64) (domain.Quote, error) {
	s.refProb = refProb
	if s.err != nil {
		return domain.Quote{}, s.err
	}
	return s.quote, nil
}

type stubExecutor struct {
	result domain.ExecutionResult
	err    error
	called bool
}

func (s *stubExecutor) Execute(ctx context.Context, q domain.Quote) (domain.ExecutionResult, error) {
	s.called = true
	return s.result, s.err
}

type stubLedger struct {
	records []ledger.TradeRecord
	err     error
}

func (s *stubLedger) PersistTrade(ctx context.Context, rec ledger.TradeRecord) (domain.Order, error) {
	if s.err != nil {
		return domain.Order{}, s.err
	}
	s.records = append(s.records, rec)
	return domain.Order{
		ID:        "ord-1",
		UserID:    rec.Request.UserID,
		MarketID:  rec.Request.MarketID,
		Side:      rec.Request.Side,
		FillPrice: rec.Execution.FillPrice,
		FillSize:  rec.Execution.FillSize,
		Fees:      rec.Execution.Fees,
		Status:    rec.Execution.Status,
		Hedged:    rec.Hedged,
	}, nil
}

type stubValidator struct {
	rejection *domain.Rejection
	err       error
	called    bool
	current   float64
	predicted float64
}

func (s *stubValidator) ValidateTrade(ctx context.Context, req domain.TradeRequest, outcome domain.Outcome, currentPrice, predictedPrice float64) (*domain.Rejection, error) {
	s.called = true
	s.current = currentPrice
	s.predicted = predictedPrice
	return s.rejection, s.err
}

type stubLimiter struct{ allowed bool }

func (s *stubLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return s.allowed, nil
}

type stubLocks struct {
	err      error
	unlocked bool
}

func (s *stubLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if s.err != nil {
		return nil, s.err
	}
	return func() { s.unlocked = true }, nil
}

type pipeline struct {
	markets   *stubMarkets
	resolver  *stubResolver
	quoter    *stubQuoter
	executor  *stubExecutor
	ledger    *stubLedger
	validator *stubValidator
	svc       *TradeService
}

func evenMarket() domain.Market {
	return domain.Market{
		ID:     "mkt-1",
		Type:   domain.MarketTypeBinary,
		B:      20000,
		Status: domain.MarketStatusActive,
		Outcomes: []domain.Outcome{
			{ID: "out-yes", MarketID: "mkt-1", Name: "Yes", Demand: 0, Probability: 0.5},
			{ID: "out-no", MarketID: "mkt-1", Name: "No", Demand: 0, Probability: 0.5},
		},
	}
}

func newPipeline(market domain.Market) *pipeline {
	p := &pipeline{
		markets:   &stubMarkets{market: market},
		resolver:  &stubResolver{hctx: domain.HedgeContext{MarketID: market.ID, OutcomeID: "out-yes", TokenID: "tok-1"}},
		quoter:    &stubQuoter{},
		executor:  &stubExecutor{},
		ledger:    &stubLedger{},
		validator: &stubValidator{},
	}
	cfg := config.RiskConfig{TradesPerMinute: 30, LockTTLSeconds: 30}
	p.svc = NewTradeService(p.markets, p.resolver, p.quoter, p.executor, p.ledger, p.validator, nil, nil, cfg, slog.Default())
	return p
}

func buyReq(amount string) domain.TradeRequest {
	return domain.TradeRequest{
		UserID:   "user-1",
		MarketID: "mkt-1",
		Side:     domain.OrderSideBuy,
		Outcome:  domain.OutcomeByNameRef("mkt-1", "Yes"),
		Amount:   decimal.RequireFromString(amount),
	}
}

func TestExecuteTrade_HedgedBuy(t *testing.T) {
	p := newPipeline(evenMarket())
	p.quoter.quote = domain.Quote{
		TokenID: "tok-1",
		Side:    domain.OrderSideBuy,
		Price:   decimal.RequireFromString("0.5025"),
		Shares:  decimal.RequireFromString("199"),
		Value:   decimal.RequireFromString("100"),
	}
	p.executor.result = domain.ExecutionResult{
		ExternalOrderID: "ext-1",
		FillPrice:       decimal.RequireFromString("0.5025"),
		FillSize:        decimal.RequireFromString("199"),
		Filled:          true,
		Status:          domain.OrderStatusFilled,
	}

	result, err := p.svc.ExecuteTrade(context.Background(), buyReq("100"))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "ord-1", result.OrderID)
	assert.Empty(t, result.Warning)

	require.Len(t, p.ledger.records, 1)
	rec := p.ledger.records[0]
	assert.True(t, rec.Hedged)
	assert.Equal(t, "tok-1", rec.TokenID)
	assert.Nil(t, rec.UpdatedOutcomes)

	// Reference probability comes from the live pricing function.
	require.NotNil(t, p.quoter.refProb)
	assert.InDelta(t, 0.5, *p.quoter.refProb, 1e-12)
}

func TestExecuteTrade_RiskRejectionStopsPipeline(t *testing.T) {
	p := newPipeline(evenMarket())
	p.validator.rejection = &domain.Rejection{Code: "INSUFFICIENT_BALANCE", Reason: "broke"}

	_, err := p.svc.ExecuteTrade(context.Background(), buyReq("100"))

	var rej *domain.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "INSUFFICIENT_BALANCE", rej.Code)
	assert.False(t, p.executor.called)
	assert.Empty(t, p.ledger.records)
}

func TestExecuteTrade_InternalFillWhenUnmapped(t *testing.T) {
	p := newPipeline(evenMarket())
	p.resolver.err = domain.ErrMappingNotFound

	result, err := p.svc.ExecuteTrade(context.Background(), buyReq("100"))
	require.NoError(t, err)

	// $100 at probability 0.5 buys 200 shares.
	assert.True(t, result.FillSize.Equal(decimal.RequireFromString("200")))
	assert.True(t, result.FillPrice.Equal(decimal.RequireFromString("0.5")))

	require.Len(t, p.ledger.records, 1)
	rec := p.ledger.records[0]
	assert.False(t, rec.Hedged)
	require.Len(t, rec.UpdatedOutcomes, 2)
	assert.Equal(t, 200.0, rec.UpdatedOutcomes[0].Demand)
	assert.Greater(t, rec.UpdatedOutcomes[0].Probability, 0.5)
	assert.False(t, p.executor.called)
}

func TestExecuteTrade_MarketNotActive(t *testing.T) {
	market := evenMarket()
	market.Status = domain.MarketStatusClosed
	p := newPipeline(market)

	_, err := p.svc.ExecuteTrade(context.Background(), buyReq("100"))
	require.ErrorIs(t, err, domain.ErrMarketNotActive)
	assert.False(t, p.validator.called)
}

func TestExecuteTrade_TimeoutReportsWarning(t *testing.T) {
	p := newPipeline(evenMarket())
	p.quoter.quote = domain.Quote{TokenID: "tok-1", Price: decimal.RequireFromString("0.5025")}
	p.executor.result = domain.ExecutionResult{
		ExternalOrderID: "ext-2",
		Status:          domain.OrderStatusTimeoutOpen,
	}

	result, err := p.svc.ExecuteTrade(context.Background(), buyReq("100"))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Warning, "resting")
}

func TestExecuteTrade_LimitPriceRejected(t *testing.T) {
	p := newPipeline(evenMarket())
	p.quoter.quote = domain.Quote{TokenID: "tok-1", Price: decimal.RequireFromString("0.7035")}

	req := buyReq("100")
	limit := decimal.RequireFromString("0.60")
	req.LimitPrice = &limit

	_, err := p.svc.ExecuteTrade(context.Background(), req)

	var rej *domain.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, CodeLimitPriceExceeded, rej.Code)
	assert.False(t, p.executor.called)
}

func TestExecuteTrade_RateLimited(t *testing.T) {
	p := newPipeline(evenMarket())
	cfg := config.RiskConfig{TradesPerMinute: 30, LockTTLSeconds: 30}
	svc := NewTradeService(p.markets, p.resolver, p.quoter, p.executor, p.ledger, p.validator, &stubLimiter{allowed: false}, nil, cfg, slog.Default())

	_, err := svc.ExecuteTrade(context.Background(), buyReq("100"))
	require.ErrorIs(t, err, domain.ErrRateLimited)
	assert.False(t, p.validator.called)
}

func TestExecuteTrade_LockHeld(t *testing.T) {
	p := newPipeline(evenMarket())
	cfg := config.RiskConfig{TradesPerMinute: 30, LockTTLSeconds: 30}
	svc := NewTradeService(p.markets, p.resolver, p.quoter, p.executor, p.ledger, p.validator, nil, &stubLocks{err: domain.ErrLockHeld}, cfg, slog.Default())

	_, err := svc.ExecuteTrade(context.Background(), buyReq("100"))
	require.ErrorIs(t, err, domain.ErrLockHeld)
}

func TestExecuteTrade_ReleasesLock(t *testing.T) {
	p := newPipeline(evenMarket())
	locks := &stubLocks{}
	cfg := config.RiskConfig{TradesPerMinute: 30, LockTTLSeconds: 30}
	svc := NewTradeService(p.markets, p.resolver, p.quoter, p.executor, p.ledger, p.validator, nil, locks, cfg, slog.Default())
	p.resolver.err = domain.ErrMappingNotFound

	_, err := svc.ExecuteTrade(context.Background(), buyReq("100"))
	require.NoError(t, err)
	assert.True(t, locks.unlocked)
}

func TestExecuteTrade_VenueFailurePersistsAudit(t *testing.T) {
	p := newPipeline(evenMarket())
	p.quoter.quote = domain.Quote{TokenID: "tok-1", Price: decimal.RequireFromString("0.5025")}
	p.executor.result = domain.ExecutionResult{
		ExternalOrderID: "ext-3",
		Status:          domain.OrderStatusFailed,
	}
	p.executor.err = errors.New("hedge: execute: order ext-3: order rejected by external venue")

	_, err := p.svc.ExecuteTrade(context.Background(), buyReq("100"))
	require.Error(t, err)

	// The failed order still left an audit record.
	require.Len(t, p.ledger.records, 1)
	assert.Equal(t, domain.OrderStatusFailed, p.ledger.records[0].Execution.Status)
}

// memBalances is a mutex-guarded balance store shared between the risk
// manager and the ledger in concurrency tests.
type memBalances struct {
	domain.BalanceStore

	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

func (s *memBalances) Get(ctx context.Context, key domain.BalanceKey) (domain.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	amount, ok := s.balances[key.UserID+"/"+key.Token]
	if !ok {
		return domain.Balance{}, domain.ErrNotFound
	}
	return domain.Balance{Key: key, Amount: amount}, nil
}

func (s *memBalances) Add(ctx context.Context, key domain.BalanceKey, delta decimal.Decimal) (domain.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key.UserID + "/" + key.Token
	s.balances[k] = s.balances[k].Add(delta)
	return domain.Balance{Key: key, Amount: s.balances[k]}, nil
}

// debitingLedger settles each sell against the shared store the way the real
// ledger debits share balances inside its transaction.
type debitingLedger struct {
	store *memBalances
}

func (l *debitingLedger) PersistTrade(ctx context.Context, rec ledger.TradeRecord) (domain.Order, error) {
	key := domain.ShareKey(rec.Request.UserID, rec.Request.MarketID, rec.Outcome.ID)
	if _, err := l.store.Add(ctx, key, rec.Execution.FillSize.Neg()); err != nil {
		return domain.Order{}, err
	}
	return domain.Order{
		ID:        "ord-" + rec.Outcome.ID,
		UserID:    rec.Request.UserID,
		MarketID:  rec.Request.MarketID,
		Side:      rec.Request.Side,
		FillPrice: rec.Execution.FillPrice,
		FillSize:  rec.Execution.FillSize,
		Status:    rec.Execution.Status,
	}, nil
}

// serialLocks serializes critical sections the way the distributed per-user
// lock does, instead of failing the second caller outright.
type serialLocks struct{ mu sync.Mutex }

func (l *serialLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	return l.mu.Unlock, nil
}

func TestExecuteTrade_ConcurrentOverdraftRejectedOnce(t *testing.T) {
	shareKey := "user-1/" + domain.ShareToken("mkt-1", "out-yes")
	store := &memBalances{balances: map[string]decimal.Decimal{
		shareKey: decimal.NewFromInt(100),
	}}
	validator := risk.NewManager(store, config.RiskConfig{
		MaxMarketExposureUSD: 5000,
		MaxPriceImpactBps:    1500,
	}, 0, slog.Default())

	markets := &stubMarkets{market: evenMarket()}
	resolver := &stubResolver{err: domain.ErrMappingNotFound}
	cfg := config.RiskConfig{TradesPerMinute: 1000, LockTTLSeconds: 30}
	svc := NewTradeService(markets, resolver, &stubQuoter{}, &stubExecutor{}, &debitingLedger{store: store},
		validator, nil, &serialLocks{}, cfg, slog.Default())

	// Two sells of 80 shares race against 100 held. Only one can settle.
	req := buyReq("80")
	req.Side = domain.OrderSideSell
	req.Outcome = domain.OutcomeByIDRef("out-yes")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.ExecuteTrade(context.Background(), req)
		}()
	}
	wg.Wait()

	var settled, rejected int
	for _, err := range errs {
		if err == nil {
			settled++
			continue
		}
		var rej *domain.Rejection
		require.ErrorAs(t, err, &rej)
		assert.Equal(t, risk.CodeInsufficientBalance, rej.Code)
		rejected++
	}
	assert.Equal(t, 1, settled)
	assert.Equal(t, 1, rejected)

	remaining, err := store.Get(context.Background(), domain.ShareKey("user-1", "mkt-1", "out-yes"))
	require.NoError(t, err)
	assert.True(t, remaining.Amount.Equal(decimal.NewFromInt(20)), "remaining %s", remaining.Amount)
}

func TestExecuteTrade_UnknownOutcome(t *testing.T) {
	p := newPipeline(evenMarket())

	req := buyReq("100")
	req.Outcome = domain.OutcomeByNameRef("mkt-1", "Maybe")

	_, err := p.svc.ExecuteTrade(context.Background(), req)
	require.ErrorIs(t, err, domain.ErrUnresolvedOutcome)
}
