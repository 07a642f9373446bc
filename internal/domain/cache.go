package domain

import (
	"context"
	"io"
	"time"
)

// PriceCache provides fast access to the latest external best bid/ask per
// token, kept warm by the book feed.
type PriceCache interface {
	SetBBO(ctx context.Context, tokenID string, bestBid, bestAsk float64, ts time.Time) error
	GetBBO(ctx context.Context, tokenID string) (bestBid, bestAsk float64, ts time.Time, err error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking. The trade pipeline holds a
// per-user lock across the risk-check -> ledger-commit window so two
// concurrent trades cannot both validate against a stale balance.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus publishes trade and settlement events for out-of-scope UI
// consumers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// BlobWriter uploads archive objects to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
