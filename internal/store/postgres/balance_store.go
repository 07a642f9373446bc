package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/predictfi/venue/internal/domain"
)

// BalanceStore implements domain.BalanceStore. The (user_id, token) pair is
// the primary key; cash and share balances share the table, with market_id
// and outcome_id set only on share rows.
type BalanceStore struct {
	db DB
}

// NewBalanceStore creates a BalanceStore on the given query surface.
func NewBalanceStore(db DB) *BalanceStore {
	return &BalanceStore{db: db}
}

// Get returns the balance for a key, or domain.ErrNotFound when no row
// exists.
func (s *BalanceStore) Get(ctx context.Context, key domain.BalanceKey) (domain.Balance, error) {
	row := s.db.QueryRow(ctx, `
		SELECT amount, updated_at FROM balances
		WHERE user_id = $1 AND token = $2`, key.UserID, key.Token)

	b := domain.Balance{Key: key}
	if err := row.Scan(&b.Amount, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Balance{}, domain.ErrNotFound
		}
		return domain.Balance{}, fmt.Errorf("postgres: get balance %s/%s: %w", key.UserID, key.Token, err)
	}
	return b, nil
}

// Add applies a signed delta via upsert and returns the resulting balance.
// A missing row counts as zero, so the first credit creates it.
func (s *BalanceStore) Add(ctx context.Context, key domain.BalanceKey, delta decimal.Decimal) (domain.Balance, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO balances (user_id, token, market_id, outcome_id, amount, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id, token) DO UPDATE SET
			amount     = balances.amount + EXCLUDED.amount,
			updated_at = NOW()
		RETURNING amount, updated_at`,
		key.UserID, key.Token, key.MarketID, key.OutcomeID, delta)

	b := domain.Balance{Key: key}
	if err := row.Scan(&b.Amount, &b.UpdatedAt); err != nil {
		return domain.Balance{}, fmt.Errorf("postgres: add balance %s/%s: %w", key.UserID, key.Token, err)
	}
	return b, nil
}

// SharesByMarket returns every non-zero share balance held against a
// market. Settlement iterates this to pay winners.
func (s *BalanceStore) SharesByMarket(ctx context.Context, marketID string) ([]domain.Balance, error) {
	rows, err := s.db.Query(ctx, `
		SELECT user_id, token, market_id, outcome_id, amount, updated_at
		FROM balances
		WHERE market_id = $1 AND amount <> 0
		ORDER BY user_id, token`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: shares by market %s: %w", marketID, err)
	}
	defer rows.Close()

	var balances []domain.Balance
	for rows.Next() {
		var b domain.Balance
		if err := rows.Scan(
			&b.Key.UserID, &b.Key.Token, &b.Key.MarketID, &b.Key.OutcomeID,
			&b.Amount, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan share balance: %w", err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: shares by market rows: %w", err)
	}
	return balances, nil
}

// ZeroSharesByMarket zeroes all share balances for a market. Run inside the
// settlement transaction after payouts are credited.
func (s *BalanceStore) ZeroSharesByMarket(ctx context.Context, marketID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE balances SET amount = 0, updated_at = NOW()
		WHERE market_id = $1 AND amount <> 0`, marketID)
	if err != nil {
		return fmt.Errorf("postgres: zero shares for %s: %w", marketID, err)
	}
	return nil
}

// UserShareTotal sums one user's share holdings across a market.
func (s *BalanceStore) UserShareTotal(ctx context.Context, userID, marketID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM balances
		WHERE user_id = $1 AND market_id = $2`, userID, marketID).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: user %s share total for %s: %w", userID, marketID, err)
	}
	return total, nil
}

var _ domain.BalanceStore = (*BalanceStore)(nil)
