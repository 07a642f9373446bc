package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/predictfi/venue/internal/domain"
)

// bboTTL expires stale quotes so the pipeline falls back to a REST book
// read rather than hedging against a dead feed.
const bboTTL = 2 * time.Minute

// PriceCache implements domain.PriceCache with one Redis hash per token at
// "bbo:{tokenID}", holding fields "bid", "ask", and "ts" (Unix
// nanoseconds).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func bboKey(tokenID string) string {
	return "bbo:" + tokenID
}

// SetBBO stores the latest best bid/ask for a token.
func (pc *PriceCache) SetBBO(ctx context.Context, tokenID string, bestBid, bestAsk float64, ts time.Time) error {
	key := bboKey(tokenID)
	fields := map[string]interface{}{
		"bid": strconv.FormatFloat(bestBid, 'f', -1, 64),
		"ask": strconv.FormatFloat(bestAsk, 'f', -1, 64),
		"ts":  strconv.FormatInt(ts.UnixNano(), 10),
	}

	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, bboTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set bbo %s: %w", tokenID, err)
	}
	return nil
}

// GetBBO retrieves the latest best bid/ask for a token. It returns
// domain.ErrNotFound when nothing has been cached or the entry has expired.
func (pc *PriceCache) GetBBO(ctx context.Context, tokenID string) (float64, float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, bboKey(tokenID)).Result()
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: get bbo %s: %w", tokenID, err)
	}
	if len(vals) == 0 {
		return 0, 0, time.Time{}, domain.ErrNotFound
	}

	bid, err := parseField(vals, "bid")
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: bbo %s: %w", tokenID, err)
	}
	ask, err := parseField(vals, "ask")
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: bbo %s: %w", tokenID, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, 0, time.Time{}, fmt.Errorf("redis: bbo %s: parse ts: %w", tokenID, err)
	}

	return bid, ask, time.Unix(0, tsNano), nil
}

func parseField(vals map[string]string, field string) (float64, error) {
	s, ok := vals[field]
	if !ok {
		return 0, domain.ErrNotFound
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return v, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
