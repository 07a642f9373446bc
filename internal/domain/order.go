package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether the user is buying or selling outcome shares.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks the order lifecycle. An order is immutable once
// persisted except for status transitions applied by the hedge executor
// before the ledger commit.
type OrderStatus string

const (
	// OrderStatusOpen means the external hedge order is resting unfilled.
	OrderStatusOpen OrderStatus = "open"
	// OrderStatusFilled means the hedge order matched in full.
	OrderStatusFilled OrderStatus = "filled"
	// OrderStatusTimeoutOpen means the fill wait expired with the order
	// still resting on the external venue. Not an error state; normal for
	// illiquid limit orders.
	OrderStatusTimeoutOpen OrderStatus = "timeout-open"
	// OrderStatusFailed means the external venue reported a failure.
	OrderStatusFailed OrderStatus = "failed"
)

// Order records a single trade attempt. RequestedSize is in shares for sells
// and in cash for buys (mirroring the contextual amount of the trade
// request); FillSize is always shares.
type Order struct {
	ID            string
	UserID        string
	MarketID      string
	OutcomeID     string
	TokenID       string // external venue token, empty for unhedged trades
	Side          OrderSide
	RequestedSize decimal.Decimal
	FillPrice     decimal.Decimal
	FillSize      decimal.Decimal
	Fees          decimal.Decimal
	Status        OrderStatus
	Hedged        bool
	CreatedAt     time.Time
}
