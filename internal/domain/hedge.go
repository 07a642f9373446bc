package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// HedgeContext is the resolved external-venue identity for one
// (market, outcome) pair, produced by the resolver and consumed by the quote
// engine and the executor. Purely derived; no side effects.
type HedgeContext struct {
	MarketID         string
	OutcomeID        string
	ExternalMarketID string
	ConditionID      string
	TokenID          string
	NegRisk          bool
}

// BookSnapshot is a read-only view of the external venue's top of book for
// one token.
type BookSnapshot struct {
	TokenID   string
	BestBid   decimal.Decimal
	BestAsk   decimal.Decimal
	BidSize   decimal.Decimal
	AskSize   decimal.Decimal
	TickSize  decimal.Decimal
	NegRisk   bool
	Timestamp time.Time
}

// Quote is an executable hedge quote: the price and size the platform is
// willing to execute on the external venue, plus the profitability estimate
// that justified it.
type Quote struct {
	TokenID   string
	Side      OrderSide // side of the platform's external order
	Price     decimal.Decimal
	Shares    decimal.Decimal
	Value     decimal.Decimal
	TickSize  decimal.Decimal
	NegRisk   bool
	EstSpread decimal.Decimal // captured spread value estimate
	EstFees   decimal.Decimal // external venue fee estimate
}

// ExecutionResult is the terminal outcome of one external order attempt.
type ExecutionResult struct {
	ExternalOrderID string
	FillPrice       decimal.Decimal
	FillSize        decimal.Decimal
	Fees            decimal.Decimal
	Filled          bool
	Status          OrderStatus
}

// HedgePosition links an internal order to the external order that hedged
// it. Append-only audit trail; created once, never mutated.
type HedgePosition struct {
	ID              string
	OrderID         string
	ExternalOrderID string
	MarketID        string
	TokenID         string
	Side            OrderSide
	Shares          decimal.Decimal
	SpreadCaptured  decimal.Decimal
	FeesPaid        decimal.Decimal
	CreatedAt       time.Time
}
