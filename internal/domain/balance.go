package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CashToken is the platform's stable accounting unit. Every other token is a
// per-(market, outcome) share token.
const CashToken = "USDC"

// LockedCashToken holds cash reserved against hedge orders that are still
// resting on the external venue (timeout-open). Funds move back to CashToken
// when the order fills or is reconciled.
const LockedCashToken = "USDC.LOCKED"

// ShareToken builds the token symbol for one outcome's shares.
func ShareToken(marketID, outcomeID string) string {
	return "SHARE:" + marketID + ":" + outcomeID
}

// BalanceKey identifies a single balance row. MarketID and OutcomeID are nil
// for cash balances and set for share balances.
type BalanceKey struct {
	UserID    string
	Token     string
	MarketID  *string
	OutcomeID *string
}

// CashKey returns the key for a user's cash balance.
func CashKey(userID string) BalanceKey {
	return BalanceKey{UserID: userID, Token: CashToken}
}

// LockedCashKey returns the key for a user's reserved-cash balance.
func LockedCashKey(userID string) BalanceKey {
	return BalanceKey{UserID: userID, Token: LockedCashToken}
}

// ShareKey returns the key for a user's share balance in one outcome.
func ShareKey(userID, marketID, outcomeID string) BalanceKey {
	return BalanceKey{
		UserID:    userID,
		Token:     ShareToken(marketID, outcomeID),
		MarketID:  &marketID,
		OutcomeID: &outcomeID,
	}
}

// Balance is a signed token amount owned by a user. The ledger is the only
// writer; a single balance must never go negative as the result of a trade.
type Balance struct {
	Key       BalanceKey
	Amount    decimal.Decimal
	UpdatedAt time.Time
}
