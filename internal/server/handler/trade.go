package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/predictfi/venue/internal/domain"
)

// TradeService is the trade handler's view of the service layer.
type TradeService interface {
	ExecuteTrade(ctx context.Context, req domain.TradeRequest) (domain.TradeResult, error)
}

// TradeHandler serves trade placement.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger.With(slog.String("handler", "trade")),
	}
}

// tradeRequest is the POST /api/v1/trades body. The outcome may be named by
// internal ID or by display name; amounts are decimal strings, cash for
// buys and shares for sells.
type tradeRequest struct {
	UserID     string `json:"user_id"`
	MarketID   string `json:"market_id"`
	Side       string `json:"side"`
	OutcomeID  string `json:"outcome_id"`
	Outcome    string `json:"outcome"`
	Amount     string `json:"amount"`
	LimitPrice string `json:"limit_price"`
}

type tradeResponse struct {
	Success   bool   `json:"success"`
	OrderID   string `json:"order_id"`
	FillPrice string `json:"fill_price"`
	FillSize  string `json:"fill_size"`
	Fees      string `json:"fees"`
	Warning   string `json:"warning,omitempty"`
}

// PlaceTrade executes a trade.
// POST /api/v1/trades
func (h *TradeHandler) PlaceTrade(w http.ResponseWriter, r *http.Request) {
	var body tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, msg := body.toDomain()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	result, execErr := h.trades.ExecuteTrade(r.Context(), req)
	if execErr != nil {
		writeDomainError(w, h.logger, execErr)
		return
	}

	writeJSON(w, http.StatusOK, tradeResponse{
		Success:   result.Success,
		OrderID:   result.OrderID,
		FillPrice: result.FillPrice.String(),
		FillSize:  result.FillSize.String(),
		Fees:      result.Fees.String(),
		Warning:   result.Warning,
	})
}

// toDomain validates the request body and converts it. The returned string
// is a client-facing validation message, empty on success.
func (b tradeRequest) toDomain() (domain.TradeRequest, string) {
	if b.UserID == "" {
		return domain.TradeRequest{}, "user_id is required"
	}
	if b.MarketID == "" {
		return domain.TradeRequest{}, "market_id is required"
	}

	side := domain.OrderSide(b.Side)
	if side != domain.OrderSideBuy && side != domain.OrderSideSell {
		return domain.TradeRequest{}, "side must be buy or sell"
	}

	var outcome domain.OutcomeRef
	switch {
	case b.OutcomeID != "":
		outcome = domain.OutcomeByIDRef(b.OutcomeID)
	case b.Outcome != "":
		outcome = domain.OutcomeByNameRef(b.MarketID, b.Outcome)
	default:
		return domain.TradeRequest{}, "outcome_id or outcome is required"
	}

	amount, err := decimal.NewFromString(b.Amount)
	if err != nil || !amount.IsPositive() {
		return domain.TradeRequest{}, "amount must be a positive decimal"
	}

	req := domain.TradeRequest{
		UserID:   b.UserID,
		MarketID: b.MarketID,
		Side:     side,
		Outcome:  outcome,
		Amount:   amount,
	}
	if b.LimitPrice != "" {
		limit, err := decimal.NewFromString(b.LimitPrice)
		if err != nil || !limit.IsPositive() {
			return domain.TradeRequest{}, "limit_price must be a positive decimal"
		}
		req.LimitPrice = &limit
	}
	return req, ""
}
