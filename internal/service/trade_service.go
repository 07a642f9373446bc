// Package service orchestrates the venue's inbound operations: trade
// execution over the hedge pipeline or the internal market maker, and
// market lifecycle management.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/predictfi/venue/internal/config"
	"github.com/predictfi/venue/internal/domain"
	"github.com/predictfi/venue/internal/hedge"
	"github.com/predictfi/venue/internal/ledger"
	"github.com/predictfi/venue/internal/pricing"
)

// CodeLimitPriceExceeded rejects trades whose executable price violates the
// caller's limit.
const CodeLimitPriceExceeded = "LIMIT_PRICE_EXCEEDED"

// ContextResolver maps an internal (market, outcome) pair to its external
// venue identity.
type ContextResolver interface {
	Resolve(ctx context.Context, market domain.Market, outcome domain.Outcome) (domain.HedgeContext, error)
}

// Quoter prices a hedge order.
type Quoter interface {
	Quote(ctx context.Context, hctx domain.HedgeContext, side domain.OrderSide, amount decimal.Decimal, refProb *float64) (domain.Quote, error)
}

// OrderExecutor places the hedge order and waits for its terminal state.
type OrderExecutor interface {
	Execute(ctx context.Context, q domain.Quote) (domain.ExecutionResult, error)
}

// TradeLedger atomically persists a completed trade attempt.
type TradeLedger interface {
	PersistTrade(ctx context.Context, rec ledger.TradeRecord) (domain.Order, error)
}

// TradeValidator runs the pre-flight risk checks.
type TradeValidator interface {
	ValidateTrade(ctx context.Context, req domain.TradeRequest, outcome domain.Outcome, currentPrice, predictedPrice float64) (*domain.Rejection, error)
}

// TradeService runs the full trade pipeline: throttle, serialize per user,
// validate, then either hedge on the external venue or fill against the
// internal market maker, and persist through the ledger.
type TradeService struct {
	markets   domain.MarketStore
	resolver  ContextResolver
	quoter    Quoter
	executor  OrderExecutor
	ledger    TradeLedger
	validator TradeValidator
	limiter   domain.RateLimiter
	locks     domain.LockManager

	tradesPerMinute int
	lockTTL         time.Duration
	logger          *slog.Logger
}

// NewTradeService creates a TradeService. limiter and locks may be nil, in
// which case throttling and per-user serialization are disabled.
func NewTradeService(
	markets domain.MarketStore,
	resolver ContextResolver,
	quoter Quoter,
	executor OrderExecutor,
	tradeLedger TradeLedger,
	validator TradeValidator,
	limiter domain.RateLimiter,
	locks domain.LockManager,
	cfg config.RiskConfig,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		markets:         markets,
		resolver:        resolver,
		quoter:          quoter,
		executor:        executor,
		ledger:          tradeLedger,
		validator:       validator,
		limiter:         limiter,
		locks:           locks,
		tradesPerMinute: cfg.TradesPerMinute,
		lockTTL:         time.Duration(cfg.LockTTLSeconds) * time.Second,
		logger:          logger.With(slog.String("component", "trade_service")),
	}
}

// ExecuteTrade runs one trade end to end.
//
// Pre-flight rejections (risk, limit price) come back as a *domain.Rejection
// error before any external side effect. Markets with an active external
// mapping are hedged on the external venue; markets without one fill against
// the internal LMSR book. A hedge that times out still persists whatever
// filled and reports a warning on the result.
func (s *TradeService) ExecuteTrade(ctx context.Context, req domain.TradeRequest) (domain.TradeResult, error) {
	if err := s.throttle(ctx, req.UserID); err != nil {
		return domain.TradeResult{}, err
	}

	// The per-user lock spans the risk-check to ledger-commit window so two
	// concurrent trades cannot both validate against a stale balance.
	unlock, err := s.lock(ctx, req.UserID)
	if err != nil {
		return domain.TradeResult{}, err
	}
	defer unlock()

	market, err := s.markets.GetByID(ctx, req.MarketID)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("service: trade: load market %s: %w", req.MarketID, err)
	}
	if market.Status != domain.MarketStatusActive {
		return domain.TradeResult{}, fmt.Errorf("service: trade: market %s: %w", req.MarketID, domain.ErrMarketNotActive)
	}

	outcome, err := req.Outcome.Resolve(market)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("service: trade: %s: %w", req.Outcome, err)
	}

	engine, err := pricing.New(market.B)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("service: trade: market %s: %w", req.MarketID, err)
	}
	demand, idx := demandVector(market, outcome.ID)
	prices, err := engine.Prices(demand)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("service: trade: market %s: %w", req.MarketID, err)
	}
	current := prices[idx]
	predicted := predictPrice(engine, demand, idx, req, current)

	rej, err := s.validator.ValidateTrade(ctx, req, outcome, current, predicted)
	if err != nil {
		return domain.TradeResult{}, err
	}
	if rej != nil {
		s.logger.Info("trade rejected",
			slog.String("user_id", req.UserID),
			slog.String("market_id", req.MarketID),
			slog.String("code", rej.Code),
		)
		return domain.TradeResult{}, rej
	}

	hctx, err := s.resolver.Resolve(ctx, market, outcome)
	switch {
	case err == nil:
		return s.executeHedged(ctx, req, outcome, hctx, current)
	case errors.Is(err, domain.ErrMappingNotFound):
		return s.executeInternal(ctx, req, market, outcome, engine, demand, idx, current)
	default:
		return domain.TradeResult{}, err
	}
}

// executeHedged prices, executes, and persists a trade hedged on the
// external venue.
func (s *TradeService) executeHedged(ctx context.Context, req domain.TradeRequest, outcome domain.Outcome, hctx domain.HedgeContext, current float64) (domain.TradeResult, error) {
	refProb := current
	quote, err := s.quoter.Quote(ctx, hctx, req.Side, req.Amount, &refProb)
	if err != nil {
		return domain.TradeResult{}, err
	}
	if rej := limitRejection(req, quote.Price); rej != nil {
		return domain.TradeResult{}, rej
	}

	exec, err := s.executor.Execute(ctx, quote)
	if err != nil {
		// An order the venue accepted and later failed still gets its audit
		// record; a placement failure left nothing behind to record.
		if exec.ExternalOrderID != "" {
			s.persistFailed(ctx, req, outcome, hctx, exec)
		}
		return domain.TradeResult{}, err
	}

	order, err := s.ledger.PersistTrade(ctx, ledger.TradeRecord{
		Request:   req,
		Outcome:   outcome,
		Hedged:    true,
		TokenID:   hctx.TokenID,
		Execution: exec,
	})
	if err != nil {
		return domain.TradeResult{}, err
	}

	s.logger.Info("hedged trade executed",
		slog.String("order_id", order.ID),
		slog.String("market_id", req.MarketID),
		slog.String("status", string(order.Status)),
		slog.String("fill_size", order.FillSize.String()),
	)
	return tradeResult(order), nil
}

// executeInternal fills the trade against the internal LMSR book: shares
// exchange at the current probability and the outcome's demand shifts
// accordingly, all inside the ledger transaction.
func (s *TradeService) executeInternal(ctx context.Context, req domain.TradeRequest, market domain.Market, outcome domain.Outcome, engine *pricing.Engine, demand []float64, idx int, current float64) (domain.TradeResult, error) {
	price := decimal.NewFromFloat(current)
	if rej := limitRejection(req, price); rej != nil {
		return domain.TradeResult{}, rej
	}

	var shares decimal.Decimal
	var delta float64
	if req.Side == domain.OrderSideBuy {
		shares = req.Amount.Div(price)
		delta = shares.InexactFloat64()
	} else {
		shares = req.Amount
		delta = -shares.InexactFloat64()
	}

	after := make([]float64, len(demand))
	copy(after, demand)
	after[idx] += delta
	newPrices, err := engine.Prices(after)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("service: trade: market %s: %w", req.MarketID, err)
	}

	updated := make([]domain.Outcome, len(market.Outcomes))
	copy(updated, market.Outcomes)
	for i := range updated {
		updated[i].Demand = after[i]
		updated[i].Probability = newPrices[i]
	}

	order, err := s.ledger.PersistTrade(ctx, ledger.TradeRecord{
		Request: req,
		Outcome: outcome,
		Hedged:  false,
		Execution: domain.ExecutionResult{
			FillPrice: price,
			FillSize:  shares,
			Fees:      decimal.Zero,
			Filled:    true,
			Status:    domain.OrderStatusFilled,
		},
		UpdatedOutcomes: updated,
	})
	if err != nil {
		return domain.TradeResult{}, err
	}

	s.logger.Info("internal trade filled",
		slog.String("order_id", order.ID),
		slog.String("market_id", req.MarketID),
		slog.String("fill_price", order.FillPrice.String()),
		slog.String("fill_size", order.FillSize.String()),
	)
	return tradeResult(order), nil
}

// persistFailed records a venue-failed order for the audit trail. Best
// effort; the failure reported to the caller is the executor's.
func (s *TradeService) persistFailed(ctx context.Context, req domain.TradeRequest, outcome domain.Outcome, hctx domain.HedgeContext, exec domain.ExecutionResult) {
	_, err := s.ledger.PersistTrade(ctx, ledger.TradeRecord{
		Request:   req,
		Outcome:   outcome,
		Hedged:    true,
		TokenID:   hctx.TokenID,
		Execution: exec,
	})
	if err != nil {
		s.logger.Warn("failed order record not persisted",
			slog.String("external_order_id", exec.ExternalOrderID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TradeService) throttle(ctx context.Context, userID string) error {
	if s.limiter == nil || s.tradesPerMinute <= 0 {
		return nil
	}
	allowed, err := s.limiter.Allow(ctx, "trade:"+userID, s.tradesPerMinute, time.Minute)
	if err != nil {
		// A broken limiter must not take trading down with it.
		s.logger.Warn("rate limiter unavailable", slog.String("error", err.Error()))
		return nil
	}
	if !allowed {
		return fmt.Errorf("service: trade: user %s: %w", userID, domain.ErrRateLimited)
	}
	return nil
}

func (s *TradeService) lock(ctx context.Context, userID string) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	unlock, err := s.locks.Acquire(ctx, "trade:"+userID, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("service: trade: user %s: %w", userID, err)
	}
	return unlock, nil
}

func tradeResult(order domain.Order) domain.TradeResult {
	result := domain.TradeResult{
		Success:   true,
		OrderID:   order.ID,
		FillPrice: order.FillPrice,
		FillSize:  order.FillSize,
		Fees:      order.Fees,
	}
	if order.Status == domain.OrderStatusTimeoutOpen {
		if order.FillSize.IsPositive() {
			result.Warning = "hedge order partially filled; remainder resting on external venue"
		} else {
			result.Warning = "hedge order unfilled; order resting on external venue"
		}
	}
	return result
}

// limitRejection enforces the caller's limit price: a cap for buys, a floor
// for sells.
func limitRejection(req domain.TradeRequest, price decimal.Decimal) *domain.Rejection {
	if req.LimitPrice == nil {
		return nil
	}
	limit := *req.LimitPrice
	if req.Side == domain.OrderSideBuy && price.GreaterThan(limit) {
		return &domain.Rejection{
			Code:   CodeLimitPriceExceeded,
			Reason: fmt.Sprintf("executable price %s above limit %s", price, limit),
		}
	}
	if req.Side == domain.OrderSideSell && price.LessThan(limit) {
		return &domain.Rejection{
			Code:   CodeLimitPriceExceeded,
			Reason: fmt.Sprintf("executable price %s below limit %s", price, limit),
		}
	}
	return nil
}

// demandVector extracts the market's demand vector and the index of the
// traded outcome within it.
func demandVector(m domain.Market, outcomeID string) ([]float64, int) {
	demand := make([]float64, len(m.Outcomes))
	idx := 0
	for i, o := range m.Outcomes {
		demand[i] = o.Demand
		if o.ID == outcomeID {
			idx = i
		}
	}
	return demand, idx
}

// predictPrice estimates the post-trade probability of the traded outcome
// for the risk manager's price-impact bound. Buy size is approximated at the
// current price.
func predictPrice(engine *pricing.Engine, demand []float64, idx int, req domain.TradeRequest, current float64) float64 {
	amount := req.Amount.InexactFloat64()
	var delta float64
	if req.Side == domain.OrderSideBuy {
		if current <= 0 {
			return current
		}
		delta = amount / current
	} else {
		delta = -amount
	}

	after := make([]float64, len(demand))
	copy(after, demand)
	after[idx] += delta
	prices, err := engine.Prices(after)
	if err != nil {
		return current
	}
	return prices[idx]
}

// Interface satisfaction for the production wiring.
var (
	_ ContextResolver = (*hedge.Resolver)(nil)
	_ Quoter          = (*hedge.QuoteEngine)(nil)
	_ OrderExecutor   = (*hedge.Executor)(nil)
	_ TradeLedger     = (*ledger.Ledger)(nil)
)
