package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/predictfi/venue/internal/domain"
)

// MappingStore implements domain.MappingStore. Per-outcome tokens are
// stored as a JSONB column rather than a child table; the resolver always
// reads the whole set.
type MappingStore struct {
	db DB
}

// NewMappingStore creates a MappingStore on the given query surface.
func NewMappingStore(db DB) *MappingStore {
	return &MappingStore{db: db}
}

// GetActive returns the active mapping for a market, or
// domain.ErrMappingNotFound when the market has none.
func (s *MappingStore) GetActive(ctx context.Context, marketID string) (domain.ExternalMarketMapping, error) {
	row := s.db.QueryRow(ctx, `
		SELECT market_id, external_market_id, condition_id,
		       yes_token_id, no_token_id, outcome_tokens, neg_risk, is_active,
		       created_at, updated_at
		FROM external_market_mappings
		WHERE market_id = $1 AND is_active`, marketID)

	var m domain.ExternalMarketMapping
	var tokensJSON []byte
	err := row.Scan(
		&m.MarketID, &m.ExternalMarketID, &m.ConditionID,
		&m.YesTokenID, &m.NoTokenID, &tokensJSON, &m.NegRisk, &m.IsActive,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExternalMarketMapping{}, domain.ErrMappingNotFound
		}
		return domain.ExternalMarketMapping{}, fmt.Errorf("postgres: get mapping %s: %w", marketID, err)
	}

	if len(tokensJSON) > 0 {
		if err := json.Unmarshal(tokensJSON, &m.OutcomeTokens); err != nil {
			return domain.ExternalMarketMapping{}, fmt.Errorf("postgres: decode outcome tokens for %s: %w", marketID, err)
		}
	}
	return m, nil
}

// ListActiveTokenIDs returns the distinct external token IDs across all
// active mappings. The order book feed subscribes to these at startup.
func (s *MappingStore) ListActiveTokenIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT yes_token_id, no_token_id, outcome_tokens
		FROM external_market_mappings
		WHERE is_active`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active token ids: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var ids []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}

	for rows.Next() {
		var yes, no string
		var tokensJSON []byte
		if err := rows.Scan(&yes, &no, &tokensJSON); err != nil {
			return nil, fmt.Errorf("postgres: scan active token ids: %w", err)
		}
		add(yes)
		add(no)
		if len(tokensJSON) > 0 {
			var tokens []domain.OutcomeToken
			if err := json.Unmarshal(tokensJSON, &tokens); err != nil {
				return nil, fmt.Errorf("postgres: decode outcome tokens: %w", err)
			}
			for _, t := range tokens {
				add(t.TokenID)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list active token ids: %w", err)
	}
	return ids, nil
}

// Upsert inserts or replaces the mapping for a market.
func (s *MappingStore) Upsert(ctx context.Context, m domain.ExternalMarketMapping) error {
	tokensJSON, err := json.Marshal(m.OutcomeTokens)
	if err != nil {
		return fmt.Errorf("postgres: encode outcome tokens for %s: %w", m.MarketID, err)
	}

	const query = `
		INSERT INTO external_market_mappings (
			market_id, external_market_id, condition_id,
			yes_token_id, no_token_id, outcome_tokens, neg_risk, is_active,
			created_at, updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8,
			NOW(), NOW()
		)
		ON CONFLICT (market_id) DO UPDATE SET
			external_market_id = EXCLUDED.external_market_id,
			condition_id       = EXCLUDED.condition_id,
			yes_token_id       = EXCLUDED.yes_token_id,
			no_token_id        = EXCLUDED.no_token_id,
			outcome_tokens     = EXCLUDED.outcome_tokens,
			neg_risk           = EXCLUDED.neg_risk,
			is_active          = EXCLUDED.is_active,
			updated_at         = NOW()`

	_, err = s.db.Exec(ctx, query,
		m.MarketID, m.ExternalMarketID, m.ConditionID,
		m.YesTokenID, m.NoTokenID, tokensJSON, m.NegRisk, m.IsActive,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert mapping %s: %w", m.MarketID, err)
	}
	return nil
}

var _ domain.MappingStore = (*MappingStore)(nil)
