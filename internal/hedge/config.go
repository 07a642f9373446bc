// Package hedge implements the hedged-trade pipeline: resolving a market's
// external venue identity, pricing an executable quote, and executing the
// hedge order with a bounded fill wait.
package hedge

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/predictfi/venue/internal/config"
)

// Config carries the hedge tunables in the units the pipeline computes
// with. Built once from the TOML config at startup.
type Config struct {
	SpreadBps    int64
	MinProfit    decimal.Decimal
	FeeRate      decimal.Decimal // fraction, e.g. 0.002 for 20 bps
	MinShares    decimal.Decimal
	FillWait     time.Duration
	PollInterval time.Duration
}

// ConfigFrom converts the TOML-level hedge section.
func ConfigFrom(hc config.HedgeConfig) Config {
	return Config{
		SpreadBps:    int64(hc.SpreadBps),
		MinProfit:    decimal.NewFromFloat(hc.MinProfitUSD),
		FeeRate:      decimal.New(int64(hc.FeeRateBps), -4),
		MinShares:    decimal.NewFromFloat(hc.MinOrderShares),
		FillWait:     hc.FillWait(),
		PollInterval: hc.PollInterval(),
	}
}

// spreadFactor returns 1 ± spread as a decimal multiplier.
func (c Config) spreadFactor(add bool) decimal.Decimal {
	spread := decimal.New(c.SpreadBps, -4)
	if add {
		return decimal.NewFromInt(1).Add(spread)
	}
	return decimal.NewFromInt(1).Sub(spread)
}
