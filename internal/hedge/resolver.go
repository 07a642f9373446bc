package hedge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/predictfi/venue/internal/domain"
)

// Resolver maps an internal (market, outcome) pair to its identity on the
// external venue. Pure lookup; no side effects.
type Resolver struct {
	mappings domain.MappingStore
	logger   *slog.Logger
}

// NewResolver creates a Resolver over the given mapping store.
func NewResolver(mappings domain.MappingStore, logger *slog.Logger) *Resolver {
	return &Resolver{
		mappings: mappings,
		logger:   logger.With(slog.String("component", "hedge_resolver")),
	}
}

// Resolve returns the hedge context for one outcome of a market.
//
// It fails with ErrMappingNotFound when the market has no active external
// mapping, with ErrMissingToken when the mapping exists but records no
// token for the outcome, and with ErrUnresolvedOutcome when a multi-outcome
// mapping has no row matching the outcome.
func (r *Resolver) Resolve(ctx context.Context, market domain.Market, outcome domain.Outcome) (domain.HedgeContext, error) {
	mapping, err := r.mappings.GetActive(ctx, market.ID)
	if err != nil {
		return domain.HedgeContext{}, fmt.Errorf("hedge: resolve %s: %w", market.ID, err)
	}

	tokenID, err := r.tokenFor(market, mapping, outcome)
	if err != nil {
		return domain.HedgeContext{}, fmt.Errorf("hedge: resolve %s/%s: %w", market.ID, outcome.Name, err)
	}

	r.logger.Debug("resolved hedge context",
		slog.String("market_id", market.ID),
		slog.String("outcome", outcome.Name),
		slog.String("token_id", tokenID),
	)

	return domain.HedgeContext{
		MarketID:         market.ID,
		OutcomeID:        outcome.ID,
		ExternalMarketID: mapping.ExternalMarketID,
		ConditionID:      mapping.ConditionID,
		TokenID:          tokenID,
		NegRisk:          mapping.NegRisk,
	}, nil
}

// tokenFor selects the external token. Binary markets use the stored
// yes/no token IDs keyed by outcome name; multi-outcome markets look up the
// mapping's outcome token table by internal ID, then by name.
func (r *Resolver) tokenFor(market domain.Market, mapping domain.ExternalMarketMapping, outcome domain.Outcome) (string, error) {
	if market.Type == domain.MarketTypeBinary {
		switch strings.ToLower(outcome.Name) {
		case "yes":
			if mapping.YesTokenID == "" {
				return "", domain.ErrMissingToken
			}
			return mapping.YesTokenID, nil
		case "no":
			if mapping.NoTokenID == "" {
				return "", domain.ErrMissingToken
			}
			return mapping.NoTokenID, nil
		}
		// A binary market with renamed outcomes falls through to the
		// outcome token table.
	}

	for _, t := range mapping.OutcomeTokens {
		if t.OutcomeID == outcome.ID {
			if t.TokenID == "" {
				return "", domain.ErrMissingToken
			}
			return t.TokenID, nil
		}
	}
	for _, t := range mapping.OutcomeTokens {
		if strings.EqualFold(t.Name, outcome.Name) {
			if t.TokenID == "" {
				return "", domain.ErrMissingToken
			}
			return t.TokenID, nil
		}
	}
	return "", domain.ErrUnresolvedOutcome
}
