package engine

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/predictiondao/internal/domain"
	"github.com/openpredict/predictiondao/internal/token"
)

// GetMarket returns a copy of the market by id.
func (e *Engine) GetMarket(id uint64) (*domain.Market, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, err := e.marketLocked(id)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

// GetProposal returns a copy of the proposal by id.
func (e *Engine) GetProposal(id uint64) (*domain.Proposal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, err := e.proposalLocked(id)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// ListMarkets returns copies of markets [offset, offset+limit).
func (e *Engine) ListMarkets(offset, limit int) []*domain.Market {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if offset < 0 || offset >= len(e.markets) {
		return nil
	}
	end := len(e.markets)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]*domain.Market, 0, end-offset)
	for _, m := range e.markets[offset:end] {
		out = append(out, m.Clone())
	}
	return out
}

// ListProposals returns copies of the proposals filed against a market.
func (e *Engine) ListProposals(marketID uint64) []*domain.Proposal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*domain.Proposal
	for _, p := range e.proposals {
		if p.MarketID == marketID {
			out = append(out, p.Clone())
		}
	}
	return out
}

// MarketsCount returns the number of markets ever created.
func (e *Engine) MarketsCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint64(len(e.markets))
}

// ProposalsCount returns the number of disputes ever filed.
func (e *Engine) ProposalsCount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint64(len(e.proposals))
}

// TotalPool returns poolYES + poolNO for a market.
func (e *Engine) TotalPool(marketID uint64) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, err := e.marketLocked(marketID)
	if err != nil {
		return nil, err
	}
	return m.TotalPool(), nil
}

// BetOf returns the caller's live stakes on both sides of a market. Settled
// stakes read as zero.
func (e *Engine) BetOf(marketID uint64, addr common.Address) (yes, no *big.Int, err error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, err := e.marketLocked(marketID); err != nil {
		return nil, nil, err
	}
	return stakeOf(e.betsYes[marketID], addr), stakeOf(e.betsNo[marketID], addr), nil
}

// IsFinalized reports whether the market's resolution has been paid out.
func (e *Engine) IsFinalized(marketID uint64) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, err := e.marketLocked(marketID)
	if err != nil {
		return false, err
	}
	return m.ResolverPaid, nil
}

// CanWithdraw reports whether addr holds an unsettled stake on a resolved
// market with no dispute pending against it.
func (e *Engine) CanWithdraw(marketID uint64, addr common.Address) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, err := e.marketLocked(marketID)
	if err != nil {
		return false, err
	}
	if !m.Resolved || m.RelatedProposal != nil {
		return false, nil
	}
	yes := stakeOf(e.betsYes[marketID], addr)
	no := stakeOf(e.betsNo[marketID], addr)
	return yes.Sign() > 0 || no.Sign() > 0, nil
}

// ResolverStatus returns the resolver view tuple: who resolved, the bond at
// stake, whether settlement already happened, and the pending reward.
func (e *Engine) ResolverStatus(marketID uint64) (*domain.ResolverStatus, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, err := e.marketLocked(marketID)
	if err != nil {
		return nil, err
	}
	st := &domain.ResolverStatus{
		Resolver:      m.Resolver,
		Bond:          new(big.Int).Set(m.ResolverBond),
		Paid:          m.ResolverPaid,
		PendingReward: new(big.Int),
	}
	if m.Resolved && !m.ResolverPaid {
		st.PendingReward = mulBps(m.TotalPool(), e.resolverRewardBps)
	}
	return st, nil
}

// MarketStatus derives the lifecycle state of a market at the current time.
func (e *Engine) MarketStatus(marketID uint64) (domain.MarketStatus, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, err := e.marketLocked(marketID)
	if err != nil {
		return "", err
	}
	return m.Status(e.clock.Now(), e.disputeWindow), nil
}

// UsedVotingPower returns how much of the voter's snapshot power is already
// spent on a proposal.
func (e *Engine) UsedVotingPower(proposalID uint64, voter common.Address) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, err := e.proposalLocked(proposalID); err != nil {
		return nil, err
	}
	if u, ok := e.usedVotingPower[proposalID][voter]; ok {
		return new(big.Int).Set(u), nil
	}
	return new(big.Int), nil
}

// IsExecutor reports membership of the executor allow-list. The owner is
// always authorized.
func (e *Engine) IsExecutor(addr common.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.isAuthorizedExecutorLocked(addr)
}

// VaultBalance returns the native vault accumulator.
func (e *Engine) VaultBalance() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return new(big.Int).Set(e.vaultBalance)
}

// VaultGov returns the slashed governance-token accumulator.
func (e *Engine) VaultGov() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return new(big.Int).Set(e.vaultGov)
}

// Gov returns the governance token, for snapshot power lookups.
func (e *Engine) Gov() *token.Token { return e.gov }

// DisputeWindow returns the configured dispute window.
func (e *Engine) DisputeWindow() time.Duration { return e.disputeWindow }

// VotingPeriod returns the configured dispute voting period.
func (e *Engine) VotingPeriod() time.Duration { return e.votingPeriod }

// CreatorBond returns the configured market-creation bond.
func (e *Engine) CreatorBond() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return new(big.Int).Set(e.creatorBond)
}

// ResolverBondAmount returns the configured resolution bond.
func (e *Engine) ResolverBondAmount() *big.Int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return new(big.Int).Set(e.resolverBond)
}
