package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/predictfi/venue/internal/domain"
	"github.com/predictfi/venue/internal/pricing"
)

// OutcomeSeed describes one outcome at market creation. Probability, when
// inside the seed band, sets the outcome's initial demand through the
// inverse LMSR mapping; outside the band the outcome starts at zero demand.
type OutcomeSeed struct {
	Name        string
	Probability float64
}

// CreateMarketParams carries everything needed to open a new market.
type CreateMarketParams struct {
	Question       string
	Slug           string
	Type           domain.MarketType
	B              float64
	Outcomes       []OutcomeSeed
	ResolutionDate *time.Time
}

// MarketService manages the market lifecycle and read paths: creation with
// probability seeding, LMSR price queries, closing, and the activity log.
type MarketService struct {
	markets    domain.MarketStore
	activities domain.ActivityStore
	logger     *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(markets domain.MarketStore, activities domain.ActivityStore, logger *slog.Logger) *MarketService {
	return &MarketService{
		markets:    markets,
		activities: activities,
		logger:     logger.With(slog.String("component", "market_service")),
	}
}

// CreateMarket opens a new active market. Binary markets need exactly two
// outcomes; multi markets at least two. Initial demand is seeded from the
// given probabilities and the stored probabilities are derived back from
// that demand, so prices always agree with the pricing engine.
func (s *MarketService) CreateMarket(ctx context.Context, p CreateMarketParams) (domain.Market, error) {
	engine, err := pricing.New(p.B)
	if err != nil {
		return domain.Market{}, fmt.Errorf("service: create market: %w", err)
	}
	if len(p.Outcomes) < 2 {
		return domain.Market{}, fmt.Errorf("service: create market: need at least 2 outcomes, got %d", len(p.Outcomes))
	}
	if p.Type == domain.MarketTypeBinary && len(p.Outcomes) != 2 {
		return domain.Market{}, fmt.Errorf("service: create market: binary market needs exactly 2 outcomes, got %d", len(p.Outcomes))
	}

	demand := seedDemand(engine, p.Type, p.Outcomes)
	probs, err := engine.Prices(demand)
	if err != nil {
		return domain.Market{}, fmt.Errorf("service: create market: %w", err)
	}

	now := time.Now().UTC()
	market := domain.Market{
		ID:             uuid.New().String(),
		Question:       p.Question,
		Slug:           p.Slug,
		Type:           p.Type,
		B:              p.B,
		Status:         domain.MarketStatusActive,
		ResolutionDate: p.ResolutionDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for i, seed := range p.Outcomes {
		market.Outcomes = append(market.Outcomes, domain.Outcome{
			ID:          uuid.New().String(),
			MarketID:    market.ID,
			Name:        seed.Name,
			Demand:      demand[i],
			Probability: probs[i],
			SortOrder:   i,
		})
	}

	if err := s.markets.Create(ctx, market); err != nil {
		return domain.Market{}, fmt.Errorf("service: create market: %w", err)
	}

	s.logger.Info("market created",
		slog.String("market_id", market.ID),
		slog.String("type", string(market.Type)),
		slog.Float64("b", market.B),
	)
	return market, nil
}

// Prices returns the market's outcomes with probabilities recomputed from
// stored demand, so the response reflects the live pricing function rather
// than the last persisted snapshot.
func (s *MarketService) Prices(ctx context.Context, marketID string) ([]domain.Outcome, error) {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("service: prices %s: %w", marketID, err)
	}

	engine, err := pricing.New(market.B)
	if err != nil {
		return nil, fmt.Errorf("service: prices %s: %w", marketID, err)
	}
	demand := make([]float64, len(market.Outcomes))
	for i, o := range market.Outcomes {
		demand[i] = o.Demand
	}
	probs, err := engine.Prices(demand)
	if err != nil {
		return nil, fmt.Errorf("service: prices %s: %w", marketID, err)
	}

	outcomes := make([]domain.Outcome, len(market.Outcomes))
	copy(outcomes, market.Outcomes)
	for i := range outcomes {
		outcomes[i].Probability = probs[i]
	}
	return outcomes, nil
}

// GetMarket returns one market with its outcomes.
func (s *MarketService) GetMarket(ctx context.Context, marketID string) (domain.Market, error) {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return domain.Market{}, fmt.Errorf("service: get market %s: %w", marketID, err)
	}
	return market, nil
}

// ListMarkets returns markets in the given lifecycle state.
func (s *MarketService) ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.ListByStatus(ctx, status, opts)
	if err != nil {
		return nil, fmt.Errorf("service: list markets: %w", err)
	}
	return markets, nil
}

// CloseMarket transitions an active market to closed, stopping trading
// ahead of resolution. Only the active -> closed transition is allowed.
func (s *MarketService) CloseMarket(ctx context.Context, marketID string) error {
	market, err := s.markets.GetByID(ctx, marketID)
	if err != nil {
		return fmt.Errorf("service: close market %s: %w", marketID, err)
	}
	if market.Status != domain.MarketStatusActive {
		return fmt.Errorf("service: close market %s: status %s: %w", marketID, market.Status, domain.ErrMarketNotActive)
	}

	if err := s.markets.SetStatus(ctx, marketID, domain.MarketStatusClosed, ""); err != nil {
		return fmt.Errorf("service: close market %s: %w", marketID, err)
	}

	s.logger.Info("market closed", slog.String("market_id", marketID))
	return nil
}

// Activity returns the market's activity log.
func (s *MarketService) Activity(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.MarketActivity, error) {
	entries, err := s.activities.ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("service: activity %s: %w", marketID, err)
	}
	return entries, nil
}

// seedDemand converts seed probabilities into an initial demand vector.
// Binary markets use the engine's logistic inverse against the first
// outcome; multi markets set q_i = b * ln(p_i), whose softmax reproduces the
// given distribution. Probabilities outside the seed band leave the outcome
// at zero demand.
func seedDemand(engine *pricing.Engine, typ domain.MarketType, seeds []OutcomeSeed) []float64 {
	demand := make([]float64, len(seeds))

	if typ == domain.MarketTypeBinary {
		if q, ok := engine.SeedDemand(seeds[0].Probability); ok {
			demand[0] = q
		}
		return demand
	}

	for i, seed := range seeds {
		if seed.Probability > pricing.SeedMinProbability && seed.Probability < pricing.SeedMaxProbability {
			demand[i] = engine.B() * math.Log(seed.Probability)
		}
	}
	return demand
}
