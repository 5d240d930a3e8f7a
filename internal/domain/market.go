package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MarketStatus is the derived lifecycle state of a market. It is computed
// from the stored flags and the clock, never stored directly.
type MarketStatus string

const (
	MarketStatusOpen               MarketStatus = "open"
	MarketStatusAwaitingResolution MarketStatus = "awaiting_resolution"
	MarketStatusDisputeWindow      MarketStatus = "dispute_window"
	MarketStatusDisputed           MarketStatus = "disputed"
	MarketStatusFinalized          MarketStatus = "finalized"
)

// Market is a binary-outcome prediction market. Created once, mutated
// through its lifecycle, never deleted.
type Market struct {
	ID          uint64         `json:"id"`
	Question    string         `json:"question"`
	Creator     common.Address `json:"creator"`
	CreatorBond *big.Int       `json:"creator_bond"`

	EndTime       time.Time `json:"end_time"`
	SnapshotBlock uint64    `json:"snapshot_block"` // 0 until betting closes

	PoolYes *big.Int `json:"pool_yes"`
	PoolNo  *big.Int `json:"pool_no"`

	BettingClosed bool           `json:"betting_closed"`
	Resolved      bool           `json:"resolved"`
	Outcome       bool           `json:"outcome"`
	ResolvedAt    time.Time      `json:"resolved_at"`
	Resolver      common.Address `json:"resolver"`
	ResolverBond  *big.Int       `json:"resolver_bond"`
	ResolverPaid  bool           `json:"resolver_paid"`
	BondReturned  bool           `json:"bond_returned"`

	// RelatedProposal is nil while no dispute is linked. A non-nil value
	// points at the pending proposal; it is reset to nil on execution.
	RelatedProposal *uint64 `json:"related_proposal,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Status derives the lifecycle state at the given instant and dispute window.
func (m *Market) Status(now time.Time, disputeWindow time.Duration) MarketStatus {
	switch {
	case m.ResolverPaid:
		return MarketStatusFinalized
	case m.RelatedProposal != nil:
		return MarketStatusDisputed
	case m.Resolved:
		return MarketStatusDisputeWindow
	case now.Before(m.EndTime):
		return MarketStatusOpen
	default:
		return MarketStatusAwaitingResolution
	}
}

// TotalPool returns poolYES + poolNO.
func (m *Market) TotalPool() *big.Int {
	return new(big.Int).Add(m.PoolYes, m.PoolNo)
}

// Clone returns a deep copy safe to hand outside the engine's lock.
func (m *Market) Clone() *Market {
	out := *m
	out.CreatorBond = new(big.Int).Set(m.CreatorBond)
	out.PoolYes = new(big.Int).Set(m.PoolYes)
	out.PoolNo = new(big.Int).Set(m.PoolNo)
	out.ResolverBond = new(big.Int).Set(m.ResolverBond)
	if m.RelatedProposal != nil {
		p := *m.RelatedProposal
		out.RelatedProposal = &p
	}
	return &out
}

// ResolverStatus is the view tuple exposed for external consumers.
type ResolverStatus struct {
	Resolver      common.Address `json:"resolver"`
	Bond          *big.Int       `json:"bond"`
	Paid          bool           `json:"paid"`
	PendingReward *big.Int       `json:"pending_reward"`
}
