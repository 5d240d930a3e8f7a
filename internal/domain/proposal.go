package domain

import (
	"math/big"
	"time"
)

// Proposal is a binary dispute proposal tied to exactly one resolved market.
// Created once, mutated by voting and execution, never deleted.
type Proposal struct {
	ID          uint64 `json:"id"`
	MarketID    uint64 `json:"market_id"`
	Description string `json:"description"`

	// ExecuteYes is the outcome the dispute proposes to set. It must
	// disagree with the market's resolved outcome at creation time.
	ExecuteYes bool `json:"execute_yes"`

	// SnapshotBlock is copied from the market's snapshot taken at
	// resolution, not from proposal creation. Voting power is fixed to
	// holdings at resolution so a disputer cannot buy votes after seeing
	// the reported outcome.
	SnapshotBlock uint64    `json:"snapshot_block"`
	Deadline      time.Time `json:"deadline"`

	VotesFor     *big.Int `json:"votes_for"`
	VotesAgainst *big.Int `json:"votes_against"`
	Executed     bool     `json:"executed"`

	CreatedAt time.Time `json:"created_at"`
}

// Passed reports whether the dispute carries: strictly more FOR than
// AGAINST. A tie keeps the original outcome.
func (p *Proposal) Passed() bool {
	return p.VotesFor.Cmp(p.VotesAgainst) > 0
}

// Clone returns a deep copy safe to hand outside the engine's lock.
func (p *Proposal) Clone() *Proposal {
	out := *p
	out.VotesFor = new(big.Int).Set(p.VotesFor)
	out.VotesAgainst = new(big.Int).Set(p.VotesAgainst)
	return &out
}
