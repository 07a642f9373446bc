package domain

import "github.com/shopspring/decimal"

// TradeRequest is the inbound "place a trade" operation. Amount is
// contextual: cash for a buy, shares for a sell. LimitPrice, when set, caps
// (buy) or floors (sell) the executable price.
type TradeRequest struct {
	UserID     string
	MarketID   string
	Side       OrderSide
	Outcome    OutcomeRef
	Amount     decimal.Decimal
	LimitPrice *decimal.Decimal
}

// TradeResult reports the outcome of an accepted trade. Warning is set for
// non-fatal execution outcomes (timeout, partial fill) that still persisted.
type TradeResult struct {
	Success   bool
	OrderID   string
	FillPrice decimal.Decimal
	FillSize  decimal.Decimal
	Fees      decimal.Decimal
	Warning   string
}

// PayoutResult summarizes a market resolution.
type PayoutResult struct {
	MarketID    string
	Winners     int
	TotalPayout decimal.Decimal
	TotalFees   decimal.Decimal
}

// Rejection is a structured pre-flight rejection: a trade turned away before
// any external side effect. It is data, not an infrastructure error; callers
// branch on Code rather than parsing Reason.
type Rejection struct {
	Code   string
	Reason string
}

// Error implements the error interface so rejections can flow through error
// returns while remaining distinguishable via errors.As.
func (r *Rejection) Error() string {
	return r.Code + ": " + r.Reason
}
