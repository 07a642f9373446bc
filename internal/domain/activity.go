package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActivityKind classifies market activity entries.
type ActivityKind string

const (
	ActivityTrade      ActivityKind = "trade"
	ActivityHedgeRest  ActivityKind = "hedge_resting"
	ActivityResolution ActivityKind = "resolution"
	ActivityPayout     ActivityKind = "payout"
)

// MarketActivity is an append-only event log of trades and settlement events
// for UI/analytics consumption. Not authoritative for balances.
type MarketActivity struct {
	ID        string
	MarketID  string
	OutcomeID string
	UserID    string
	Kind      ActivityKind
	Side      OrderSide
	Shares    decimal.Decimal
	Value     decimal.Decimal
	Price     decimal.Decimal
	CreatedAt time.Time
}
