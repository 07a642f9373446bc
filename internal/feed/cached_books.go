package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/predictfi/venue/internal/domain"
)

// DefaultMaxQuoteAge bounds how stale a cached top of book may be before a
// quote falls through to a direct venue read.
const DefaultMaxQuoteAge = 3 * time.Second

// DirectBooks reads the external venue's order book over HTTP.
type DirectBooks interface {
	OrderBook(ctx context.Context, tokenID string) (domain.BookSnapshot, error)
}

// CachedBooks serves top-of-book snapshots from the price cache kept warm
// by the book feed, falling through to the direct client when the cached
// entry is missing or stale. Cached snapshots carry best bid/ask only;
// depth and tick size come back zero and are resolved by the consumer's
// defaults.
type CachedBooks struct {
	cache  domain.PriceCache
	direct DirectBooks
	maxAge time.Duration
	logger *slog.Logger
}

// NewCachedBooks creates a CachedBooks. maxAge <= 0 selects
// DefaultMaxQuoteAge.
func NewCachedBooks(cache domain.PriceCache, direct DirectBooks, maxAge time.Duration, logger *slog.Logger) *CachedBooks {
	if maxAge <= 0 {
		maxAge = DefaultMaxQuoteAge
	}
	return &CachedBooks{
		cache:  cache,
		direct: direct,
		maxAge: maxAge,
		logger: logger.With(slog.String("component", "cached_books")),
	}
}

// OrderBook returns the freshest available snapshot for the token.
func (c *CachedBooks) OrderBook(ctx context.Context, tokenID string) (domain.BookSnapshot, error) {
	bid, ask, ts, err := c.cache.GetBBO(ctx, tokenID)
	if err == nil && bid > 0 && ask > 0 && time.Since(ts) <= c.maxAge {
		return domain.BookSnapshot{
			TokenID:   tokenID,
			BestBid:   decimal.NewFromFloat(bid),
			BestAsk:   decimal.NewFromFloat(ask),
			Timestamp: ts,
		}, nil
	}
	if err != nil {
		c.logger.DebugContext(ctx, "cached book miss",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
	}
	return c.direct.OrderBook(ctx, tokenID)
}
