package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/predictfi/venue/internal/domain"
)

// OrderStore implements domain.OrderStore.
type OrderStore struct {
	db DB
}

// NewOrderStore creates an OrderStore on the given query surface.
func NewOrderStore(db DB) *OrderStore {
	return &OrderStore{db: db}
}

const orderCols = `id, user_id, market_id, outcome_id, token_id, side,
	requested_size, fill_price, fill_size, fees, status, hedged, created_at`

// Create inserts an order. Orders are written exactly once, inside the
// ledger's transaction, already in their terminal status.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO orders (
			id, user_id, market_id, outcome_id, token_id, side,
			requested_size, fill_price, fill_size, fees, status, hedged,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12,
			$13
		)`

	_, err := s.db.Exec(ctx, query,
		o.ID, o.UserID, o.MarketID, o.OutcomeID, o.TokenID, string(o.Side),
		o.RequestedSize, o.FillPrice, o.FillSize, o.Fees, string(o.Status), o.Hedged,
		o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// GetByID retrieves an order by its primary key.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListByMarket returns a market's orders, newest first.
func (s *OrderStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.Order, error) {
	return s.list(ctx, "market_id", marketID, opts)
}

// ListByUser returns a user's orders, newest first.
func (s *OrderStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Order, error) {
	return s.list(ctx, "user_id", userID, opts)
}

func (s *OrderStore) list(ctx context.Context, col, val string, opts domain.ListOpts) ([]domain.Order, error) {
	query := `SELECT ` + orderCols + ` FROM orders WHERE ` + col + ` = $1`
	args := []any{val}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by %s %s: %w", col, val, err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list orders rows: %w", err)
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var side, status string
	err := row.Scan(
		&o.ID, &o.UserID, &o.MarketID, &o.OutcomeID, &o.TokenID, &side,
		&o.RequestedSize, &o.FillPrice, &o.FillSize, &o.Fees, &status, &o.Hedged,
		&o.CreatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

var _ domain.OrderStore = (*OrderStore)(nil)
