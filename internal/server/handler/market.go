package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/predictfi/venue/internal/domain"
	"github.com/predictfi/venue/internal/service"
)

// MarketService is the market handler's view of the service layer.
type MarketService interface {
	CreateMarket(ctx context.Context, p service.CreateMarketParams) (domain.Market, error)
	GetMarket(ctx context.Context, marketID string) (domain.Market, error)
	ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error)
	Prices(ctx context.Context, marketID string) ([]domain.Outcome, error)
	CloseMarket(ctx context.Context, marketID string) error
	Activity(ctx context.Context, marketID string, opts domain.ListOpts) ([]domain.MarketActivity, error)
}

// SettlementService resolves markets.
type SettlementService interface {
	ResolveMarket(ctx context.Context, marketID string, winner domain.OutcomeRef) (domain.PayoutResult, error)
}

// MarketHandler serves the market lifecycle and read endpoints.
type MarketHandler struct {
	markets MarketService
	settle  SettlementService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, settle SettlementService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		settle:  settle,
		logger:  logger.With(slog.String("handler", "market")),
	}
}

type createMarketRequest struct {
	Question       string  `json:"question"`
	Slug           string  `json:"slug"`
	Type           string  `json:"type"`
	B              float64 `json:"liquidity_b"`
	ResolutionDate string  `json:"resolution_date"`
	Outcomes       []struct {
		Name        string  `json:"name"`
		Probability float64 `json:"probability"`
	} `json:"outcomes"`
}

// CreateMarket opens a new market.
// POST /api/v1/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var body createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	typ := domain.MarketType(body.Type)
	if typ != domain.MarketTypeBinary && typ != domain.MarketTypeMulti {
		writeError(w, http.StatusBadRequest, "type must be binary or multi")
		return
	}

	params := service.CreateMarketParams{
		Question: body.Question,
		Slug:     body.Slug,
		Type:     typ,
		B:        body.B,
	}
	if body.ResolutionDate != "" {
		t, err := time.Parse(time.RFC3339, body.ResolutionDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "resolution_date must be RFC3339")
			return
		}
		params.ResolutionDate = &t
	}
	for _, o := range body.Outcomes {
		params.Outcomes = append(params.Outcomes, service.OutcomeSeed{
			Name:        o.Name,
			Probability: o.Probability,
		})
	}

	market, err := h.markets.CreateMarket(r.Context(), params)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, market)
}

// ListMarkets returns markets filtered by lifecycle status.
// GET /api/v1/markets?status=active&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	status := domain.MarketStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.MarketStatusActive
	}

	markets, err := h.markets.ListMarkets(r.Context(), status, parseListOpts(r))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": markets})
}

// GetMarket returns one market with its outcomes.
// GET /api/v1/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

// Prices returns live LMSR probabilities for the market's outcomes.
// GET /api/v1/markets/{id}/prices
func (h *MarketHandler) Prices(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	outcomes, err := h.markets.Prices(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "outcomes": outcomes})
}

// Activity returns the market's activity log.
// GET /api/v1/markets/{id}/activity
func (h *MarketHandler) Activity(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	entries, err := h.markets.Activity(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "activity": entries})
}

// CloseMarket stops trading on an active market.
// POST /api/v1/markets/{id}/close
func (h *MarketHandler) CloseMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := h.markets.CloseMarket(r.Context(), id); err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

type resolveRequest struct {
	WinningOutcomeID string `json:"winning_outcome_id"`
	WinningOutcome   string `json:"winning_outcome"`
}

// ResolveMarket settles a market on its winning outcome.
// POST /api/v1/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var body resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var winner domain.OutcomeRef
	switch {
	case body.WinningOutcomeID != "":
		winner = domain.OutcomeByIDRef(body.WinningOutcomeID)
	case body.WinningOutcome != "":
		winner = domain.OutcomeByNameRef(id, body.WinningOutcome)
	default:
		writeError(w, http.StatusBadRequest, "winning_outcome_id or winning_outcome is required")
		return
	}

	result, err := h.settle.ResolveMarket(r.Context(), id, winner)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":    result.MarketID,
		"winners":      result.Winners,
		"total_payout": result.TotalPayout.String(),
		"total_fees":   result.TotalFees.String(),
	})
}
