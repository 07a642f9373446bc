package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/predictfi/venue/internal/domain"
)

// MarketStore implements domain.MarketStore.
type MarketStore struct {
	db DB
}

// NewMarketStore creates a MarketStore on the given query surface.
func NewMarketStore(db DB) *MarketStore {
	return &MarketStore{db: db}
}

const marketCols = `id, question, slug, market_type, liquidity_b, status,
	winning_outcome, resolution_date, closed_at, resolved_at,
	created_at, updated_at`

// Create inserts a market together with its outcomes.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	const marketQuery = `
		INSERT INTO markets (
			id, question, slug, market_type, liquidity_b, status,
			winning_outcome, resolution_date, closed_at, resolved_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, NOW()
		)`

	_, err := s.db.Exec(ctx, marketQuery,
		m.ID, m.Question, m.Slug, string(m.Type), m.B, string(m.Status),
		m.WinningOutcome, m.ResolutionDate, m.ClosedAt, m.ResolvedAt,
		m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}

	const outcomeQuery = `
		INSERT INTO outcomes (id, market_id, name, demand, probability, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)`

	batch := &pgx.Batch{}
	for _, o := range m.Outcomes {
		batch.Queue(outcomeQuery, o.ID, m.ID, o.Name, o.Demand, o.Probability, o.SortOrder)
	}
	if err := s.sendBatch(ctx, batch, len(m.Outcomes)); err != nil {
		return fmt.Errorf("postgres: create outcomes for %s: %w", m.ID, err)
	}
	return nil
}

// GetByID retrieves a market with its outcomes loaded, ordered by
// sort_order.
func (s *MarketStore) GetByID(ctx context.Context, id string) (domain.Market, error) {
	row := s.db.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}

	outcomes, err := s.loadOutcomes(ctx, []string{id})
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	m.Outcomes = outcomes[id]
	return m, nil
}

// ListByStatus returns markets in the given lifecycle state, newest first,
// with their outcomes loaded.
func (s *MarketStore) ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketCols + ` FROM markets WHERE status = $1`
	args := []any{string(status)}
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
		return nil, fmt.Errorf("postgres: list markets by status %s: %w", status, err)
	}
	defer rows.Close()

	var markets []domain.Market
	var ids []string
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}

	outcomes, err := s.loadOutcomes(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets outcomes: %w", err)
	}
	for i := range markets {
		markets[i].Outcomes = outcomes[markets[i].ID]
	}
	return markets, nil
}

// UpdateOutcomes writes back per-outcome demand and probability.
func (s *MarketStore) UpdateOutcomes(ctx context.Context, marketID string, outcomes []domain.Outcome) error {
	const query = `
		UPDATE outcomes SET demand = $1, probability = $2
		WHERE id = $3 AND market_id = $4`

	batch := &pgx.Batch{}
	for _, o := range outcomes {
		batch.Queue(query, o.Demand, o.Probability, o.ID, marketID)
	}
	if err := s.sendBatch(ctx, batch, len(outcomes)); err != nil {
		return fmt.Errorf("postgres: update outcomes for %s: %w", marketID, err)
	}

	if _, err := s.db.Exec(ctx,
		`UPDATE markets SET updated_at = NOW() WHERE id = $1`, marketID); err != nil {
		return fmt.Errorf("postgres: touch market %s: %w", marketID, err)
	}
	return nil
}

// SetStatus transitions the market lifecycle, stamping the matching
// timestamp column. winningOutcome is persisted only on the resolved
// transition.
func (s *MarketStore) SetStatus(ctx context.Context, id string, status domain.MarketStatus, winningOutcome string) error {
	var query string
	var args []any

	switch status {
	case domain.MarketStatusClosed:
		query = `UPDATE markets SET status = $1, closed_at = NOW(), updated_at = NOW() WHERE id = $2`
		args = []any{string(status), id}
	case domain.MarketStatusResolved:
		query = `UPDATE markets SET status = $1, winning_outcome = $2, resolved_at = NOW(), updated_at = NOW() WHERE id = $3`
		args = []any{string(status), winningOutcome, id}
	default:
		query = `UPDATE markets SET status = $1, updated_at = NOW() WHERE id = $2`
		args = []any{string(status), id}
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: set market %s status %s: %w", id, status, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// loadOutcomes fetches the outcomes of multiple markets in one query,
// grouped by market ID and ordered by sort_order.
func (s *MarketStore) loadOutcomes(ctx context.Context, marketIDs []string) (map[string][]domain.Outcome, error) {
	result := make(map[string][]domain.Outcome, len(marketIDs))
	if len(marketIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, market_id, name, demand, probability, sort_order
		FROM outcomes
		WHERE market_id = ANY($1)
		ORDER BY market_id, sort_order`, marketIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var o domain.Outcome
		if err := rows.Scan(&o.ID, &o.MarketID, &o.Name, &o.Demand, &o.Probability, &o.SortOrder); err != nil {
			return nil, err
		}
		result[o.MarketID] = append(result[o.MarketID], o)
	}
	return result, rows.Err()
}

// sendBatch executes a batch when the DB is a pool or a transaction; both
// pgx surfaces expose SendBatch outside the DB interface.
func (s *MarketStore) sendBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	if n == 0 {
		return nil
	}

	sender, ok := s.db.(interface {
		SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	})
	if !ok {
		return fmt.Errorf("db does not support batches")
	}

	br := sender.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch item %d: %w", i, err)
		}
	}
	return nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var marketType, status string
	err := row.Scan(
		&m.ID, &m.Question, &m.Slug, &marketType, &m.B, &status,
		&m.WinningOutcome, &m.ResolutionDate, &m.ClosedAt, &m.ResolvedAt,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.Type = domain.MarketType(marketType)
	m.Status = domain.MarketStatus(status)
	return m, nil
}

var _ domain.MarketStore = (*MarketStore)(nil)
