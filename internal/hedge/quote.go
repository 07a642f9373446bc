package hedge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/predictfi/venue/internal/domain"
)

// Quote price bounds. A prediction-market token can never be quoted at or
// beyond certainty.
var (
	priceFloor = decimal.RequireFromString("0.01")
	priceCeil  = decimal.RequireFromString("0.99")
)

// BookSource reads the external venue's live top of book.
type BookSource interface {
	OrderBook(ctx context.Context, tokenID string) (domain.BookSnapshot, error)
}

// QuoteEngine prices a hedge order. Given a reference probability from the
// pricing engine it quotes p·(1 ± spread); without one it falls back to the
// best executable book price. Pure computation aside from the book read.
type QuoteEngine struct {
	books  BookSource
	cfg    Config
	logger *slog.Logger
}

// NewQuoteEngine creates a QuoteEngine.
func NewQuoteEngine(books BookSource, cfg Config, logger *slog.Logger) *QuoteEngine {
	return &QuoteEngine{
		books:  books,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "quote_engine")),
	}
}

// Quote computes an executable quote for the resolved hedge context.
//
// amount is contextual: cash for a buy (shares = amount/price), shares for
// a sell (value = amount·price). refProb, when non-nil, is the internal
// probability the spread is applied around; the spread is added when the
// platform buys on the external venue and subtracted when it sells.
//
// Failure modes: ErrBelowMinimumSize when the resulting share count is
// under the venue minimum (the error reports the cash needed),
// ErrInsufficientLiquidity when the fallback book cannot fill even the
// minimum size, and ErrUnprofitable when the captured spread does not
// clear fees plus the minimum profit threshold.
func (q *QuoteEngine) Quote(ctx context.Context, hctx domain.HedgeContext, side domain.OrderSide, amount decimal.Decimal, refProb *float64) (domain.Quote, error) {
	book, err := q.books.OrderBook(ctx, hctx.TokenID)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("hedge: quote %s: %w", hctx.TokenID, err)
	}
	tick := book.TickSize

	// Tick rounding always moves away from the reference so the grid can
	// widen the captured spread but never erase it; an unknown tick skips
	// rounding and lets the venue reject an off-grid price.
	var price decimal.Decimal
	if refProb != nil {
		price = decimal.NewFromFloat(*refProb).Mul(q.cfg.spreadFactor(side == domain.OrderSideBuy))
		if !tick.IsZero() {
			price = roundToTick(price, tick, side == domain.OrderSideBuy)
		}
	} else {
		price, err = q.executablePrice(book, side)
		if err != nil {
			return domain.Quote{}, fmt.Errorf("hedge: quote %s: %w", hctx.TokenID, err)
		}
	}
	price = clampPrice(price)

	var shares, value decimal.Decimal
	if side == domain.OrderSideBuy {
		shares = amount.Div(price)
		value = amount
	} else {
		shares = amount
		value = amount.Mul(price)
	}

	if shares.LessThan(q.cfg.MinShares) {
		minCash := q.cfg.MinShares.Mul(price)
		return domain.Quote{}, fmt.Errorf("hedge: %w: minimum is %s shares (%s USD at %s)",
			domain.ErrBelowMinimumSize, q.cfg.MinShares, minCash.StringFixed(2), price)
	}

	// The viability check uses the margin actually priced in, not the
	// configured bps: clamping or rounding may have changed it.
	var estSpread decimal.Decimal
	if refProb != nil {
		estSpread = price.Sub(decimal.NewFromFloat(*refProb)).Abs().Mul(shares)
	} else {
		estSpread = value.Mul(decimal.New(q.cfg.SpreadBps, -4))
	}
	estFees := q.cfg.FeeRate.Mul(shares).Mul(price)
	if estSpread.Sub(estFees).LessThan(q.cfg.MinProfit) {
		return domain.Quote{}, fmt.Errorf("hedge: %w: spread %s - fees %s below threshold %s",
			domain.ErrUnprofitable, estSpread.StringFixed(4), estFees.StringFixed(4), q.cfg.MinProfit)
	}

	q.logger.Debug("quote computed",
		slog.String("token_id", hctx.TokenID),
		slog.String("side", string(side)),
		slog.String("price", price.String()),
		slog.String("shares", shares.String()),
	)

	return domain.Quote{
		TokenID:   hctx.TokenID,
		Side:      side,
		Price:     price,
		Shares:    shares,
		Value:     value,
		TickSize:  tick,
		NegRisk:   hctx.NegRisk,
		EstSpread: estSpread,
		EstFees:   estFees,
	}, nil
}

// executablePrice is the no-reference fallback: the best book price on the
// side the platform will execute, probed against the minimum tradable size
// so a one-lot phantom level cannot price the quote.
func (q *QuoteEngine) executablePrice(book domain.BookSnapshot, side domain.OrderSide) (decimal.Decimal, error) {
	if side == domain.OrderSideBuy {
		if book.BestAsk.IsZero() || book.AskSize.LessThan(q.cfg.MinShares) {
			return decimal.Zero, domain.ErrInsufficientLiquidity
		}
		return book.BestAsk, nil
	}
	if book.BestBid.IsZero() || book.BidSize.LessThan(q.cfg.MinShares) {
		return decimal.Zero, domain.ErrInsufficientLiquidity
	}
	return book.BestBid, nil
}

// roundToTick snaps the price onto the venue's grid, rounding up when the
// platform buys and down when it sells.
func roundToTick(price, tick decimal.Decimal, up bool) decimal.Decimal {
	steps := price.Div(tick)
	if up {
		steps = steps.Ceil()
	} else {
		steps = steps.Floor()
	}
	return steps.Mul(tick)
}

func clampPrice(price decimal.Decimal) decimal.Decimal {
	if price.LessThan(priceFloor) {
		return priceFloor
	}
	if price.GreaterThan(priceCeil) {
		return priceCeil
	}
	return price
}
