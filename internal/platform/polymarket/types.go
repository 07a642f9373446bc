package polymarket

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/predictfi/venue/internal/domain"
)

// PriceLevel is one level of the external order book. Prices and sizes
// arrive as decimal strings and stay strings until converted at the edge.
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BookResponse is the CLOB GET /book payload for a single token.
type BookResponse struct {
	Market       string       `json:"market"`
	AssetID      string       `json:"asset_id"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
	TickSize     string       `json:"tick_size"`
	MinOrderSize string       `json:"min_order_size"`
	NegRisk      bool         `json:"neg_risk"`
	Timestamp    string       `json:"timestamp"`
	Hash         string       `json:"hash"`
}

// ToSnapshot reduces the full book to the best-bid/best-ask view the quote
// engine consumes. Levels are sorted by the venue (bids descending, asks
// ascending), so the first entry on each side is the top of book.
func (b *BookResponse) ToSnapshot() domain.BookSnapshot {
	snap := domain.BookSnapshot{
		TokenID:   b.AssetID,
		TickSize:  parseDecimal(b.TickSize),
		NegRisk:   b.NegRisk,
		Timestamp: time.Now().UTC(),
	}
	if len(b.Bids) > 0 {
		snap.BestBid = parseDecimal(b.Bids[0].Price)
		snap.BidSize = parseDecimal(b.Bids[0].Size)
	}
	if len(b.Asks) > 0 {
		snap.BestAsk = parseDecimal(b.Asks[0].Price)
		snap.AskSize = parseDecimal(b.Asks[0].Size)
	}
	return snap
}

// PlaceOrderResponse is the CLOB POST /order payload.
type PlaceOrderResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}

// OrderStatusResponse is the CLOB GET /data/order/{id} payload.
type OrderStatusResponse struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	Price        string `json:"price"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
}

// Venue order status values. Anything else (notably "LIVE") means the
// order is still resting.
const (
	venueStatusMatched  = "MATCHED"
	venueStatusCanceled = "CANCELED"
)

// ToExecution maps a venue order snapshot onto the execution result shape
// the executor polls against. Filled is set only when the whole original
// size has matched.
func (o *OrderStatusResponse) ToExecution(feeRate decimal.Decimal) domain.ExecutionResult {
	matched := parseDecimal(o.SizeMatched)
	price := parseDecimal(o.Price)
	filled := matched.GreaterThanOrEqual(parseDecimal(o.OriginalSize)) && matched.IsPositive()

	status := domain.OrderStatusOpen
	switch strings.ToUpper(o.Status) {
	case venueStatusMatched:
		if filled {
			status = domain.OrderStatusFilled
		}
	case venueStatusCanceled:
		status = domain.OrderStatusFailed
	}

	return domain.ExecutionResult{
		ExternalOrderID: o.ID,
		FillPrice:       price,
		FillSize:        matched,
		Fees:            matched.Mul(price).Mul(feeRate),
		Filled:          filled,
		Status:          status,
	}
}

// normalizeVenueError maps the venue's rejection strings onto domain
// sentinels so callers can errors.Is against them regardless of the exact
// wording the venue returns.
func normalizeVenueError(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "minimum"):
		return domain.ErrBelowMinimumSize
	case strings.Contains(lower, "balance") || strings.Contains(lower, "allowance"):
		return domain.ErrInsufficientBalance
	case strings.Contains(lower, "liquidity") || strings.Contains(lower, "no match"):
		return domain.ErrInsufficientLiquidity
	default:
		return domain.ErrExecutionRejected
	}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
