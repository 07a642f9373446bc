// Package feed keeps the price cache warm with live top-of-book data from
// the external venue's market websocket.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/predictfi/venue/internal/domain"
	"github.com/predictfi/venue/internal/platform/polymarket"
)

// setBBOTimeout bounds a single cache write; the feed must never back up
// behind a slow cache.
const setBBOTimeout = 2 * time.Second

// BookFeed subscribes to book snapshots for the hedgeable tokens and writes
// the best bid/ask into the price cache. The websocket client handles
// reconnects; the feed only owns subscription and fan-in to the cache.
type BookFeed struct {
	wsURL  string
	tokens []string
	cache  domain.PriceCache
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewBookFeed creates a feed for the given token IDs. The token list is
// fixed at startup; mappings added later need a restart to be watched.
func NewBookFeed(wsURL string, tokens []string, cache domain.PriceCache, logger *slog.Logger) *BookFeed {
	return &BookFeed{
		wsURL:  wsURL,
		tokens: tokens,
		cache:  cache,
		logger: logger.With(slog.String("component", "book_feed")),
		done:   make(chan struct{}),
	}
}

// Run connects, subscribes, and blocks until ctx is cancelled or the feed
// is closed.
func (f *BookFeed) Run(ctx context.Context) error {
	if len(f.tokens) == 0 {
		f.logger.Info("no hedgeable tokens, book feed idle")
		return nil
	}

	client := polymarket.NewWSClient(f.wsURL)
	defer client.Close()

	client.OnSnapshot(f.handleSnapshot)

	if err := client.Connect(ctx); err != nil {
		return err
	}
	if err := client.Subscribe(f.tokens); err != nil {
		return err
	}
	f.logger.Info("book feed subscribed", slog.Int("tokens", len(f.tokens)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return nil
	}
}

// Close stops the feed.
func (f *BookFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

// handleSnapshot runs on the websocket read loop; the cache write gets its
// own short-lived context so a stalled cache cannot block reads.
func (f *BookFeed) handleSnapshot(snap domain.BookSnapshot) {
	if snap.TokenID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), setBBOTimeout)
	defer cancel()

	err := f.cache.SetBBO(ctx, snap.TokenID,
		snap.BestBid.InexactFloat64(),
		snap.BestAsk.InexactFloat64(),
		snap.Timestamp,
	)
	if err != nil {
		f.logger.Warn("price cache update failed",
			slog.String("token_id", snap.TokenID),
			slog.String("error", err.Error()),
		)
	}
}
