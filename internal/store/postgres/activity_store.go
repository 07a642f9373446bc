package postgres

import (
	"context"
	"fmt"

	"github.com/predictfi/venue/internal/domain"
)

// ActivityStore implements domain.ActivityStore. The table is append-only;
// there are no update or delete paths.
type ActivityStore struct {
	db DB
}

// NewActivityStore creates an ActivityStore on the given query surface.
func NewActivityStore(db DB) *ActivityStore {
	return &ActivityStore{db: db}
}

// Append inserts one activity entry.
func (s *ActivityStore) Append(ctx context.Context, a domain.MarketActivity) error {
	const query = `
		INSERT INTO market_activities (
			id, market_id, outcome_id, user_id, kind, side,
			shares, value, price, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.db.Exec(ctx, query,
		a.ID, a.MarketID, a.OutcomeID, a.UserID, string(a.Kind), string(a.Side),
		a.Shares, a.Value, a.Price, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append activity %s: %w", a.ID, err)
	}
	return nil
}

// ListByMarket returns a market's activity log, newest first.
func (s *ActivityStore) ListByMarket(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.MarketActivity, error) {
	query := `
		SELECT id, market_id, outcome_id, user_id, kind, side,
		       shares, value, price, created_at
		FROM market_activities WHERE market_id = $1`
	args := []any{marketID}
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
		return nil, fmt.Errorf("postgres: list activities for %s: %w", marketID, err)
	}
	defer rows.Close()

	var activities []domain.MarketActivity
	for rows.Next() {
		var a domain.MarketActivity
		var kind, side string
		if err := rows.Scan(
			&a.ID, &a.MarketID, &a.OutcomeID, &a.UserID, &kind, &side,
			&a.Shares, &a.Value, &a.Price, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan activity: %w", err)
		}
		a.Kind = domain.ActivityKind(kind)
		a.Side = domain.OrderSide(side)
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list activities rows: %w", err)
	}
	return activities, nil
}

var _ domain.ActivityStore = (*ActivityStore)(nil)
