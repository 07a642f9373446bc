// Package pricing implements the Logarithmic Market Scoring Rule (LMSR)
// automated market maker that converts accumulated per-outcome demand into
// probabilities.
//
// The LMSR (Hanson, 2003) provides bounded market-maker loss (b * ln(n)),
// continuous pricing, and a path-independent cost function. All
// transcendental math uses the log-sum-exp trick: exp(x) overflows float64
// past x ≈ 709, so the maximum exponent is subtracted before summing.
package pricing

import (
	"errors"
	"math"
)

var (
	// ErrInvalidLiquidity is returned when the liquidity parameter b <= 0.
	ErrInvalidLiquidity = errors.New("pricing: liquidity parameter b must be positive")

	// ErrNoOutcomes is returned for an empty demand vector.
	ErrNoOutcomes = errors.New("pricing: demand vector must not be empty")
)

// Seed band: the inverse mapping p -> q is computed only for probabilities
// strictly inside (SeedMinProbability, SeedMaxProbability). Outside the band
// the engine leaves demand unchanged rather than producing an extreme q.
const (
	SeedMinProbability = 0.01
	SeedMaxProbability = 0.99
)

// Engine is a stateless LMSR market maker for a fixed liquidity parameter b.
// Demand vectors are passed as arguments, never stored.
type Engine struct {
	b float64
}

// New creates an Engine with the given liquidity parameter. Higher b means
// more liquidity and lower price impact per trade.
func New(b float64) (*Engine, error) {
	if b <= 0 {
		return nil, ErrInvalidLiquidity
	}
	return &Engine{b: b}, nil
}

// B returns the liquidity parameter.
func (e *Engine) B() float64 {
	return e.b
}

// logSumExp computes ln(Σ exp(x_i)) with the max-subtraction trick:
// LSE(x) = max(x) + ln(Σ exp(x_i - max(x))), so every exp argument is <= 0.
func logSumExp(xs []float64) float64 {
	if len(xs) == 0 {
		return math.Inf(-1)
	}
	maxVal := xs[0]
	for _, x := range xs[1:] {
		if x > maxVal {
			maxVal = x
		}
	}
	if math.IsInf(maxVal, -1) {
		return math.Inf(-1)
	}
	var sum float64
	for _, x := range xs {
		sum += math.Exp(x - maxVal)
	}
	return maxVal + math.Log(sum)
}

// Prices maps a demand vector to outcome probabilities:
//
//	price_i = exp(q_i/b) / Σ_j exp(q_j/b)
//
// All prices are in (0,1) and sum to 1 within floating tolerance. Stable for
// arbitrarily large |q_i/b|.
func (e *Engine) Prices(demand []float64) ([]float64, error) {
	if len(demand) == 0 {
		return nil, ErrNoOutcomes
	}

	scaled := make([]float64, len(demand))
	maxVal := math.Inf(-1)
	for i, q := range demand {
		scaled[i] = q / e.b
		if scaled[i] > maxVal {
			maxVal = scaled[i]
		}
	}

	exps := make([]float64, len(scaled))
	var denom float64
	for i, x := range scaled {
		exps[i] = math.Exp(x - maxVal)
		denom += exps[i]
	}

	prices := make([]float64, len(exps))
	for i, v := range exps {
		prices[i] = v / denom
	}
	return prices, nil
}

// PriceYes returns the YES probability of a binary market. The NO price is
// exactly 1 - PriceYes, so binary prices always sum to 1 exactly.
func (e *Engine) PriceYes(qYes, qNo float64) float64 {
	// Two-outcome softmax collapses to a logistic function.
	return 1 / (1 + math.Exp((qNo-qYes)/e.b))
}

// Cost computes the LMSR cost function C(q) = b * ln(Σ exp(q_i/b)).
func (e *Engine) Cost(demand []float64) float64 {
	scaled := make([]float64, len(demand))
	for i, q := range demand {
		scaled[i] = q / e.b
	}
	return e.b * logSumExp(scaled)
}

// TradeCost computes the cash cost of changing outcome i's demand by delta
// shares: C(q + delta·e_i) - C(q). Positive for buys, negative for sells.
func (e *Engine) TradeCost(demand []float64, i int, delta float64) float64 {
	before := e.Cost(demand)
	after := make([]float64, len(demand))
	copy(after, demand)
	after[i] += delta
	return e.Cost(after) - before
}

// FillPrice returns the average execution price per share for a trade of
// delta shares on outcome i. For delta == 0 it degenerates to the
// instantaneous price.
func (e *Engine) FillPrice(demand []float64, i int, delta float64) float64 {
	if delta == 0 {
		prices, err := e.Prices(demand)
		if err != nil {
			return 0
		}
		return prices[i]
	}
	return e.TradeCost(demand, i, delta) / delta
}

// SeedDemand inverts the binary pricing function, returning the demand that
// prices an outcome at probability p:
//
//	q = b * ln(p / (1-p))
//
// Defined only for p strictly inside the seed band; outside it the second
// return is false and the caller must keep the previous demand. Extreme
// probabilities are skipped, not saturated.
func (e *Engine) SeedDemand(p float64) (float64, bool) {
	if p <= SeedMinProbability || p >= SeedMaxProbability {
		return 0, false
	}
	return e.b * math.Log(p/(1-p)), true
}

// MaxLoss returns the market maker's worst-case loss, b * ln(n).
func (e *Engine) MaxLoss(outcomes int) float64 {
	if outcomes < 2 {
		outcomes = 2
	}
	return e.b * math.Log(float64(outcomes))
}
