package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists markets and their outcomes.
type MarketStore interface {
	Create(ctx context.Context, m Market) error
	// GetByID returns the market with its outcomes loaded.
	GetByID(ctx context.Context, id string) (Market, error)
	ListByStatus(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	// UpdateOutcomes writes back per-outcome demand and derived probability.
	UpdateOutcomes(ctx context.Context, marketID string, outcomes []Outcome) error
	// SetStatus transitions the market lifecycle; winningOutcome is recorded
	// only for the resolved transition.
	SetStatus(ctx context.Context, id string, status MarketStatus, winningOutcome string) error
}

// MappingStore provides read access to external market mappings.
type MappingStore interface {
	// GetActive returns the active mapping for a market, or
	// ErrMappingNotFound when no active mapping exists.
	GetActive(ctx context.Context, marketID string) (ExternalMarketMapping, error)
	Upsert(ctx context.Context, m ExternalMarketMapping) error
}

// OrderStore persists trade orders.
type OrderStore interface {
	Create(ctx context.Context, o Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]Order, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]Order, error)
}

// BalanceStore persists user token balances. Outside the ledger's unit of
// work it must be treated as read-only.
type BalanceStore interface {
	// Get returns ErrNotFound when no row exists for the key.
	Get(ctx context.Context, key BalanceKey) (Balance, error)
	// Add applies a signed delta with an upsert, returning the new balance.
	Add(ctx context.Context, key BalanceKey, delta decimal.Decimal) (Balance, error)
	// SharesByMarket returns every non-zero share balance for a market.
	SharesByMarket(ctx context.Context, marketID string) ([]Balance, error)
	// ZeroSharesByMarket zeroes all share balances for a market.
	ZeroSharesByMarket(ctx context.Context, marketID string) error
	// UserShareTotal sums a user's share holdings across one market.
	UserShareTotal(ctx context.Context, userID, marketID string) (decimal.Decimal, error)
}

// ActivityStore persists the append-only market activity log.
type ActivityStore interface {
	Append(ctx context.Context, a MarketActivity) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]MarketActivity, error)
}

// HedgePositionStore persists the append-only hedge audit trail.
type HedgePositionStore interface {
	Create(ctx context.Context, p HedgePosition) error
	ListByMarket(ctx context.Context, marketID string, opts ListOpts) ([]HedgePosition, error)
}

// UnitOfWork exposes the stores bound to one open transaction. Mutations
// made through it become visible atomically at commit.
type UnitOfWork interface {
	Markets() MarketStore
	Orders() OrderStore
	Balances() BalanceStore
	Activities() ActivityStore
	HedgePositions() HedgePositionStore
}

// TxManager runs a function inside a single database transaction: the
// transaction begins before fn, commits when fn returns nil, and rolls back
// entirely when fn returns an error. Only the ledger and settlement use it;
// every other component stays transaction-agnostic.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}
