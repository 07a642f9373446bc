package ledger

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictfi/venue/internal/domain"
)

// memState is the committed database state shared across a test.
type memState struct {
	orders        []domain.Order
	activities    []domain.MarketActivity
	hedges        []domain.HedgePosition
	balances      map[string]decimal.Decimal
	outcomeWrites [][]domain.Outcome
}

func newMemState() *memState {
	return &memState{balances: map[string]decimal.Decimal{}}
}

func (s *memState) clone() *memState {
	c := &memState{
		orders:        append([]domain.Order(nil), s.orders...),
		activities:    append([]domain.MarketActivity(nil), s.activities...),
		hedges:        append([]domain.HedgePosition(nil), s.hedges...),
		balances:      map[string]decimal.Decimal{},
		outcomeWrites: append([][]domain.Outcome(nil), s.outcomeWrites...),
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	return c
}

func balKey(userID, token string) string { return userID + "/" + token }

// memTx stages writes on a copy and promotes them only when fn succeeds,
// mirroring transactional visibility.
type memTx struct {
	state  *memState
	failOn string
}

func (m *memTx) WithinTx(ctx context.Context, fn func(ctx context.Context, uow domain.UnitOfWork) error) error {
	staged := m.state.clone()
	if err := fn(ctx, &memUOW{s: staged, failOn: m.failOn}); err != nil {
		return err
	}
	*m.state = *staged
	return nil
}

type memUOW struct {
	s      *memState
	failOn string
}

func (u *memUOW) Markets() domain.MarketStore               { return &memMarkets{u} }
func (u *memUOW) Orders() domain.OrderStore                 { return &memOrders{u} }
func (u *memUOW) Balances() domain.BalanceStore             { return &memBalances{u} }
func (u *memUOW) Activities() domain.ActivityStore          { return &memActivities{u} }
func (u *memUOW) HedgePositions() domain.HedgePositionStore { return &memHedges{u} }

type memOrders struct{ u *memUOW }

func (m *memOrders) Create(ctx context.Context, o domain.Order) error {
	if m.u.failOn == "order" {
		return errors.New("order insert failed")
	}
	m.u.s.orders = append(m.u.s.orders, o)
	return nil
}
func (m *memOrders) GetByID(ctx context.Context, id string) (domain.Order, error) {
	return domain.Order{}, domain.ErrNotFound
}
func (m *memOrders) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Order, error) {
	return nil, nil
}
func (m *memOrders) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Order, error) {
	return nil, nil
}

type memActivities struct{ u *memUOW }

func (m *memActivities) Append(ctx context.Context, a domain.MarketActivity) error {
	if m.u.failOn == "activity" {
		return errors.New("activity insert failed")
	}
	m.u.s.activities = append(m.u.s.activities, a)
	return nil
}
func (m *memActivities) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.MarketActivity, error) {
	return nil, nil
}

type memHedges struct{ u *memUOW }

func (m *memHedges) Create(ctx context.Context, p domain.HedgePosition) error {
	m.u.s.hedges = append(m.u.s.hedges, p)
	return nil
}
func (m *memHedges) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.HedgePosition, error) {
	return nil, nil
}

type memBalances struct{ u *memUOW }

func (m *memBalances) Get(ctx context.Context, key domain.BalanceKey) (domain.Balance, error) {
	amount, ok := m.u.s.balances[balKey(key.UserID, key.Token)]
	if !ok {
		return domain.Balance{}, domain.ErrNotFound
	}
	return domain.Balance{Key: key, Amount: amount}, nil
}
func (m *memBalances) Add(ctx context.Context, key domain.BalanceKey, delta decimal.Decimal) (domain.Balance, error) {
	k := balKey(key.UserID, key.Token)
	m.u.s.balances[k] = m.u.s.balances[k].Add(delta)
	return domain.Balance{Key: key, Amount: m.u.s.balances[k]}, nil
}
func (m *memBalances) SharesByMarket(ctx context.Context, marketID string) ([]domain.Balance, error) {
	return nil, nil
}
func (m *memBalances) ZeroSharesByMarket(ctx context.Context, marketID string) error { return nil }
func (m *memBalances) UserShareTotal(ctx context.Context, userID, marketID string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type memMarkets struct{ u *memUOW }

func (m *memMarkets) Create(ctx context.Context, mk domain.Market) error { return nil }
func (m *memMarkets) GetByID(ctx context.Context, id string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}
func (m *memMarkets) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	return nil, nil
}
func (m *memMarkets) UpdateOutcomes(ctx context.Context, marketID string, outcomes []domain.Outcome) error {
	m.u.s.outcomeWrites = append(m.u.s.outcomeWrites, outcomes)
	return nil
}
func (m *memMarkets) SetStatus(ctx context.Context, id string, status domain.MarketStatus, winningOutcome string) error {
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func buyRecord() TradeRecord {
	return TradeRecord{
		Request: domain.TradeRequest{
			UserID:   "user-1",
			MarketID: "mkt-1",
			Side:     domain.OrderSideBuy,
			Outcome:  domain.OutcomeByIDRef("out-yes"),
			Amount:   dec("100"),
		},
		Outcome: domain.Outcome{ID: "out-yes", MarketID: "mkt-1", Name: "Yes"},
		Hedged:  true,
		TokenID: "tok-1",
		Execution: domain.ExecutionResult{
			ExternalOrderID: "ext-1",
			FillPrice:       dec("0.7035"),
			FillSize:        dec("142"),
			Fees:            dec("0.10"),
			Filled:          true,
			Status:          domain.OrderStatusFilled,
		},
	}
}

func TestPersistTrade_BuyFilled(t *testing.T) {
	state := newMemState()
	state.balances[balKey("user-1", domain.CashToken)] = dec("500")
	l := New(&memTx{state: state}, nil, slog.Default())

	order, err := l.PersistTrade(context.Background(), buyRecord())
	require.NoError(t, err)

	require.Len(t, state.orders, 1)
	require.Len(t, state.activities, 1)
	require.Len(t, state.hedges, 1)
	assert.Equal(t, order.ID, state.hedges[0].OrderID)
	assert.Equal(t, "ext-1", state.hedges[0].ExternalOrderID)

	// Cash down by fill value plus fees, shares up by fill size.
	fillValue := dec("142").Mul(dec("0.7035"))
	wantCash := dec("500").Sub(fillValue).Sub(dec("0.10"))
	assert.True(t, state.balances[balKey("user-1", domain.CashToken)].Equal(wantCash))
	assert.True(t, state.balances[balKey("user-1", domain.ShareToken("mkt-1", "out-yes"))].Equal(dec("142")))
}

func TestPersistTrade_SellFilled(t *testing.T) {
	state := newMemState()
	shareToken := domain.ShareToken("mkt-1", "out-yes")
	state.balances[balKey("user-1", shareToken)] = dec("200")
	l := New(&memTx{state: state}, nil, slog.Default())

	rec := buyRecord()
	rec.Request.Side = domain.OrderSideSell
	rec.Request.Amount = dec("142")

	_, err := l.PersistTrade(context.Background(), rec)
	require.NoError(t, err)

	fillValue := dec("142").Mul(dec("0.7035"))
	assert.True(t, state.balances[balKey("user-1", shareToken)].Equal(dec("58")))
	assert.True(t, state.balances[balKey("user-1", domain.CashToken)].Equal(fillValue.Sub(dec("0.10"))))
}

func TestPersistTrade_TimeoutOpenLocksCash(t *testing.T) {
	state := newMemState()
	state.balances[balKey("user-1", domain.CashToken)] = dec("500")
	l := New(&memTx{state: state}, nil, slog.Default())

	rec := buyRecord()
	rec.Execution = domain.ExecutionResult{
		ExternalOrderID: "ext-2",
		Status:          domain.OrderStatusTimeoutOpen,
	}

	order, err := l.PersistTrade(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusTimeoutOpen, order.Status)

	// No shares move; the full requested cash is reserved.
	assert.True(t, state.balances[balKey("user-1", domain.CashToken)].Equal(dec("400")))
	assert.True(t, state.balances[balKey("user-1", domain.LockedCashToken)].Equal(dec("100")))
	_, hasShares := state.balances[balKey("user-1", domain.ShareToken("mkt-1", "out-yes"))]
	assert.False(t, hasShares)

	require.Len(t, state.activities, 1)
	assert.Equal(t, domain.ActivityHedgeRest, state.activities[0].Kind)
}

func TestPersistTrade_PartialFillAtTimeout(t *testing.T) {
	state := newMemState()
	state.balances[balKey("user-1", domain.CashToken)] = dec("500")
	l := New(&memTx{state: state}, nil, slog.Default())

	rec := buyRecord()
	rec.Execution = domain.ExecutionResult{
		ExternalOrderID: "ext-3",
		FillPrice:       dec("0.50"),
		FillSize:        dec("40"),
		Status:          domain.OrderStatusTimeoutOpen,
	}

	_, err := l.PersistTrade(context.Background(), rec)
	require.NoError(t, err)

	// $20 filled, $80 locked, rest of the $500 untouched.
	assert.True(t, state.balances[balKey("user-1", domain.ShareToken("mkt-1", "out-yes"))].Equal(dec("40")))
	assert.True(t, state.balances[balKey("user-1", domain.LockedCashToken)].Equal(dec("80")))
	assert.True(t, state.balances[balKey("user-1", domain.CashToken)].Equal(dec("400")))
}

func TestPersistTrade_RollsBackOnFailure(t *testing.T) {
	state := newMemState()
	state.balances[balKey("user-1", domain.CashToken)] = dec("500")
	l := New(&memTx{state: state, failOn: "activity"}, nil, slog.Default())

	_, err := l.PersistTrade(context.Background(), buyRecord())
	require.Error(t, err)

	// Nothing committed: no order, no balance movement.
	assert.Empty(t, state.orders)
	assert.True(t, state.balances[balKey("user-1", domain.CashToken)].Equal(dec("500")))
}

func TestPersistTrade_AMMPathWritesDemand(t *testing.T) {
	state := newMemState()
	state.balances[balKey("user-1", domain.CashToken)] = dec("500")
	l := New(&memTx{state: state}, nil, slog.Default())

	rec := buyRecord()
	rec.Hedged = false
	rec.TokenID = ""
	rec.Execution.ExternalOrderID = ""
	rec.UpdatedOutcomes = []domain.Outcome{
		{ID: "out-yes", MarketID: "mkt-1", Demand: 200, Probability: 0.51},
		{ID: "out-no", MarketID: "mkt-1", Demand: 0, Probability: 0.49},
	}

	_, err := l.PersistTrade(context.Background(), rec)
	require.NoError(t, err)

	assert.Empty(t, state.hedges)
	require.Len(t, state.outcomeWrites, 1)
	assert.Equal(t, 200.0, state.outcomeWrites[0][0].Demand)
}
