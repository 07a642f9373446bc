package postgres

import (
	"context"
	"fmt"

	"github.com/predictfi/venue/internal/domain"
)

// HedgePositionStore implements domain.HedgePositionStore. Like the
// activity log, hedge positions are append-only.
type HedgePositionStore struct {
	db DB
}

// NewHedgePositionStore creates a HedgePositionStore on the given query
// surface.
func NewHedgePositionStore(db DB) *HedgePositionStore {
	return &HedgePositionStore{db: db}
}

// Create inserts one hedge position.
func (s *HedgePositionStore) Create(ctx context.Context, p domain.HedgePosition) error {
	const query = `
		INSERT INTO hedge_positions (
			id, order_id, external_order_id, market_id, token_id, side,
			shares, spread_captured, fees_paid, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.Exec(ctx, query,
		p.ID, p.OrderID, p.ExternalOrderID, p.MarketID, p.TokenID, string(p.Side),
		p.Shares, p.SpreadCaptured, p.FeesPaid, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create hedge position %s: %w", p.ID, err)
	}
	return nil
}

// ListByMarket returns a market's hedge positions, newest first.
func (s *HedgePositionStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.HedgePosition, error) {
	query := `
		SELECT id, order_id, external_order_id, market_id, token_id, side,
		       shares, spread_captured, fees_paid, created_at
		FROM hedge_positions WHERE market_id = $1
		ORDER BY created_at DESC`
	args := []any{marketID}

	if opts.Limit > 0 {
		query += " LIMIT $2"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET $3"
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list hedge positions for %s: %w", marketID, err)
	}
	defer rows.Close()

	var positions []domain.HedgePosition
	for rows.Next() {
		var p domain.HedgePosition
		var side string
		if err := rows.Scan(
			&p.ID, &p.OrderID, &p.ExternalOrderID, &p.MarketID, &p.TokenID, &side,
			&p.Shares, &p.SpreadCaptured, &p.FeesPaid, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan hedge position: %w", err)
		}
		p.Side = domain.OrderSide(side)
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list hedge positions rows: %w", err)
	}
	return positions, nil
}

var _ domain.HedgePositionStore = (*HedgePositionStore)(nil)
