package domain

import "time"

// OutcomeToken links one internal outcome to its token on the external venue.
type OutcomeToken struct {
	OutcomeID string
	Name      string
	TokenID   string
}

// ExternalMarketMapping links an internal market to its counterpart on the
// external venue. Created by the out-of-scope sync job; consumed read-only
// by the hedge resolver.
type ExternalMarketMapping struct {
	MarketID         string
	ExternalMarketID string
	ConditionID      string
	YesTokenID       string
	NoTokenID        string // empty when the venue recorded no NO token
	OutcomeTokens    []OutcomeToken
	NegRisk          bool
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// outcomeRefKind tags the OutcomeRef variant.
type outcomeRefKind int

const (
	outcomeRefByID outcomeRefKind = iota
	outcomeRefByName
)

// OutcomeRef names an outcome either by its internal ID or by
// (marketID, name). It replaces the loosely-typed outcome records of the
// upstream data with a single tagged variant resolved through one lookup.
type OutcomeRef struct {
	kind     outcomeRefKind
	id       string
	marketID string
	name     string
}

// OutcomeByIDRef references an outcome by internal ID.
func OutcomeByIDRef(id string) OutcomeRef {
	return OutcomeRef{kind: outcomeRefByID, id: id}
}

// OutcomeByNameRef references an outcome by market and display name.
func OutcomeByNameRef(marketID, name string) OutcomeRef {
	return OutcomeRef{kind: outcomeRefByName, marketID: marketID, name: name}
}

// ByID reports whether the reference carries an internal ID, returning it.
func (r OutcomeRef) ByID() (string, bool) {
	return r.id, r.kind == outcomeRefByID
}

// ByName reports whether the reference carries (marketID, name).
func (r OutcomeRef) ByName() (marketID, name string, ok bool) {
	return r.marketID, r.name, r.kind == outcomeRefByName
}

// String returns a loggable form of the reference.
func (r OutcomeRef) String() string {
	if r.kind == outcomeRefByID {
		return "outcome#" + r.id
	}
	return r.marketID + "/" + r.name
}

// Resolve finds the referenced outcome inside the given market.
// It returns ErrUnresolvedOutcome when no match exists.
func (r OutcomeRef) Resolve(m Market) (Outcome, error) {
	if id, ok := r.ByID(); ok {
		if o, found := m.OutcomeByID(id); found {
			return o, nil
		}
		return Outcome{}, ErrUnresolvedOutcome
	}
	_, name, _ := r.ByName()
	if o, found := m.OutcomeByName(name); found {
		return o, nil
	}
	return Outcome{}, ErrUnresolvedOutcome
}
