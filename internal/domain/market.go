package domain

import (
	"strings"
	"time"
)

// MarketType distinguishes two-outcome markets from multi-outcome markets.
type MarketType string

const (
	MarketTypeBinary MarketType = "binary"
	MarketTypeMulti  MarketType = "multi"
)

// MarketStatus represents the lifecycle state of a market.
// The lifecycle is strictly ACTIVE -> CLOSED -> RESOLVED; RESOLVED is
// terminal and no trades or further resolutions are accepted against it.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "active"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusResolved MarketStatus = "resolved"
)

// Market is an internally quoted prediction market. Prices are derived from
// the accumulated per-outcome demand through the LMSR pricing engine using
// the liquidity parameter B.
type Market struct {
	ID              string
	Question        string
	Slug            string
	Type            MarketType
	B               float64 // LMSR liquidity parameter
	Status          MarketStatus
	Outcomes        []Outcome
	WinningOutcome  string // set at resolution
	ResolutionDate  *time.Time
	ClosedAt        *time.Time
	ResolvedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Outcome is a single tradable outcome of a market. Demand is the LMSR q_i
// accumulated by trades; Probability is the derived price, stored redundantly
// so read paths never need to recompute.
type Outcome struct {
	ID          string
	MarketID    string
	Name        string
	Demand      float64
	Probability float64
	SortOrder   int
}

// OutcomeByName returns the outcome with the given name, matched
// case-insensitively against the stored name, or false if absent.
func (m Market) OutcomeByName(name string) (Outcome, bool) {
	for _, o := range m.Outcomes {
		if strings.EqualFold(o.Name, name) {
			return o, true
		}
	}
	return Outcome{}, false
}

// OutcomeByID returns the outcome with the given internal ID, or false.
func (m Market) OutcomeByID(id string) (Outcome, bool) {
	for _, o := range m.Outcomes {
		if o.ID == id {
			return o, true
		}
	}
	return Outcome{}, false
}
