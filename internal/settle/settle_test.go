package settle

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

// fakeDB holds settlement-relevant state behind a staged-commit TxManager.
type fakeDB struct {
	market     domain.Market
	shares     []domain.Balance
	cash       map[string]decimal.Decimal
	activities []domain.MarketActivity
	orders     []domain.Order

	zeroed      bool
	finalStatus domain.MarketStatus
	winner      string

	failZero bool
}

func (db *fakeDB) WithinTx(ctx context.Context, fn func(ctx context.Context, uow domain.UnitOfWork) error) error {
	staged := *db
	staged.cash = map[string]decimal.Decimal{}
	for k, v := range db.cash {
		staged.cash[k] = v
	}
	staged.activities = append([]domain.MarketActivity(nil), db.activities...)

	if err := fn(ctx, &fakeUOW{db: &staged}); err != nil {
		return err
	}
	*db = staged
	return nil
}

type fakeUOW struct{ db *fakeDB }

func (u *fakeUOW) Markets() domain.MarketStore               { return &fakeMarkets{u.db} }
func (u *fakeUOW) Orders() domain.OrderStore                 { return &fakeOrders{u.db} }
func (u *fakeUOW) Balances() domain.BalanceStore             { return &fakeBalances{u.db} }
func (u *fakeUOW) Activities() domain.ActivityStore          { return &fakeActivities{u.db} }
func (u *fakeUOW) HedgePositions() domain.HedgePositionStore { return nil }

type fakeMarkets struct{ db *fakeDB }

func (f *fakeMarkets) Create(ctx context.Context, m domain.Market) error { return nil }
func (f *fakeMarkets) GetByID(ctx context.Context, id string) (domain.Market, error) {
	if f.db.market.ID != id {
		return domain.Market{}, domain.ErrNotFound
	}
	return f.db.market, nil
}
func (f *fakeMarkets) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	return nil, nil
}
func (f *fakeMarkets) UpdateOutcomes(ctx context.Context, marketID string, outcomes []domain.Outcome) error {
	return nil
}
func (f *fakeMarkets) SetStatus(ctx context.Context, id string, status domain.MarketStatus, winningOutcome string) error {
	f.db.finalStatus = status
	f.db.winner = winningOutcome
	return nil
}

type fakeOrders struct{ db *fakeDB }

func (f *fakeOrders) Create(ctx context.Context, o domain.Order) error { return nil }
func (f *fakeOrders) GetByID(ctx context.Context, id string) (domain.Order, error) {
	return domain.Order{}, domain.ErrNotFound
}
func (f *fakeOrders) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Order, error) {
	return f.db.orders, nil
}
func (f *fakeOrders) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Order, error) {
	return nil, nil
}

type fakeBalances struct{ db *fakeDB }

func (f *fakeBalances) Get(ctx context.Context, key domain.BalanceKey) (domain.Balance, error) {
	return domain.Balance{}, domain.ErrNotFound
}
func (f *fakeBalances) Add(ctx context.Context, key domain.BalanceKey, delta decimal.Decimal) (domain.Balance, error) {
	f.db.cash[key.UserID] = f.db.cash[key.UserID].Add(delta)
	return domain.Balance{Key: key, Amount: f.db.cash[key.UserID]}, nil
}
func (f *fakeBalances) SharesByMarket(ctx context.Context, marketID string) ([]domain.Balance, error) {
	return f.db.shares, nil
}
func (f *fakeBalances) ZeroSharesByMarket(ctx context.Context, marketID string) error {
	if f.db.failZero {
		return errors.New("zero failed")
	}
	f.db.zeroed = true
	return nil
}
func (f *fakeBalances) UserShareTotal(ctx context.Context, userID, marketID string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type fakeActivities struct{ db *fakeDB }

func (f *fakeActivities) Append(ctx context.Context, a domain.MarketActivity) error {
	f.db.activities = append(f.db.activities, a)
	return nil
}
func (f *fakeActivities) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.MarketActivity, error) {
	return f.db.activities, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func settledDB() *fakeDB {
	return &fakeDB{
		market: domain.Market{
			ID:     "mkt-1",
			Type:   domain.MarketTypeBinary,
			Status: domain.MarketStatusClosed,
			Outcomes: []domain.Outcome{
				{ID: "out-yes", MarketID: "mkt-1", Name: "Yes"},
				{ID: "out-no", MarketID: "mkt-1", Name: "No"},
			},
		},
		shares: []domain.Balance{
			{Key: domain.ShareKey("alice", "mkt-1", "out-yes"), Amount: dec("200")},
			{Key: domain.ShareKey("bob", "mkt-1", "out-yes"), Amount: dec("50")},
			{Key: domain.ShareKey("carol", "mkt-1", "out-no"), Amount: dec("300")},
		},
		cash: map[string]decimal.Decimal{},
	}
}

func TestResolveMarket_PaysWinnersOnly(t *testing.T) {
	db := settledDB()
	s := New(db, nil, nil, slog.Default())

	result, err := s.ResolveMarket(context.Background(), "mkt-1", domain.OutcomeByNameRef("mkt-1", "Yes"))
	require.NoError(t, err)

	assert.Equal(t, 2, result.Winners)
	assert.True(t, result.TotalPayout.Equal(dec("250")))

	// $1 per winning share; losers get nothing.
	assert.True(t, db.cash["alice"].Equal(dec("200")))
	assert.True(t, db.cash["bob"].Equal(dec("50")))
	_, carolPaid := db.cash["carol"]
	assert.False(t, carolPaid)

	assert.True(t, db.zeroed)
	assert.Equal(t, domain.MarketStatusResolved, db.finalStatus)
	assert.Equal(t, "Yes", db.winner)
}

func TestResolveMarket_AlreadyResolved(t *testing.T) {
	db := settledDB()
	db.market.Status = domain.MarketStatusResolved
	s := New(db, nil, nil, slog.Default())

	_, err := s.ResolveMarket(context.Background(), "mkt-1", domain.OutcomeByNameRef("mkt-1", "Yes"))
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestResolveMarket_UnknownWinner(t *testing.T) {
	db := settledDB()
	s := New(db, nil, nil, slog.Default())

	_, err := s.ResolveMarket(context.Background(), "mkt-1", domain.OutcomeByNameRef("mkt-1", "Maybe"))
	require.ErrorIs(t, err, domain.ErrUnresolvedOutcome)
}

func TestResolveMarket_AtomicOnFailure(t *testing.T) {
	db := settledDB()
	db.failZero = true
	s := New(db, nil, nil, slog.Default())

	_, err := s.ResolveMarket(context.Background(), "mkt-1", domain.OutcomeByNameRef("mkt-1", "Yes"))
	require.Error(t, err)

	// Rolled back: nobody was paid, market state unchanged.
	assert.Empty(t, db.cash)
	assert.Equal(t, domain.MarketStatus(""), db.finalStatus)
}

func TestResolveMarket_ReportsFeeTotal(t *testing.T) {
	db := settledDB()
	db.orders = []domain.Order{
		{ID: "o1", Fees: dec("0.25")},
		{ID: "o2", Fees: dec("0.75")},
	}
	s := New(db, nil, nil, slog.Default())

	result, err := s.ResolveMarket(context.Background(), "mkt-1", domain.OutcomeByNameRef("mkt-1", "Yes"))
	require.NoError(t, err)
	assert.True(t, result.TotalFees.Equal(dec("1.00")))
}

func TestResolveMarket_AppendsResolutionAndPayoutActivities(t *testing.T) {
	db := settledDB()
	s := New(db, nil, nil, slog.Default())

	_, err := s.ResolveMarket(context.Background(), "mkt-1", domain.OutcomeByNameRef("mkt-1", "Yes"))
	require.NoError(t, err)

	var payouts, resolutions int
	for _, a := range db.activities {
		switch a.Kind {
		case domain.ActivityPayout:
			payouts++
		case domain.ActivityResolution:
			resolutions++
		}
	}
	assert.Equal(t, 2, payouts)
	assert.Equal(t, 1, resolutions)
}
