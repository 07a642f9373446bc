package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/predictfi/venue/internal/domain"
)

// TxManager implements domain.TxManager over a pgx pool.
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager creates a TxManager backed by the given Client.
func NewTxManager(c *Client) *TxManager {
	return &TxManager{pool: c.Pool()}
}

// WithinTx begins a transaction, hands fn a UnitOfWork bound to it, and
// commits when fn returns nil. Any error (or panic) rolls the whole
// transaction back, so a mid-sequence failure leaves no partial writes.
func (tm *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, uow domain.UnitOfWork) error) error {
	tx, err := tm.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx, &unitOfWork{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// unitOfWork exposes stores bound to one open transaction.
type unitOfWork struct {
	db DB
}

func (u *unitOfWork) Markets() domain.MarketStore                 { return NewMarketStore(u.db) }
func (u *unitOfWork) Orders() domain.OrderStore                   { return NewOrderStore(u.db) }
func (u *unitOfWork) Balances() domain.BalanceStore               { return NewBalanceStore(u.db) }
func (u *unitOfWork) Activities() domain.ActivityStore            { return NewActivityStore(u.db) }
func (u *unitOfWork) HedgePositions() domain.HedgePositionStore   { return NewHedgePositionStore(u.db) }

var (
	_ domain.TxManager  = (*TxManager)(nil)
	_ domain.UnitOfWork = (*unitOfWork)(nil)
)
