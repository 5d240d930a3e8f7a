package engine

import (
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/predictiondao/internal/domain"
)

// CreateDisputeProposal opens a dispute against a resolved market inside
// its dispute window. The proposed outcome must disagree with the reported
// one; only one dispute may exist per resolution.
func (e *Engine) CreateDisputeProposal(caller common.Address, marketID uint64, description string, proposedOutcome bool) (*domain.Proposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.head.Advance()

	m, err := e.marketLocked(marketID)
	if err != nil {
		return nil, err
	}
	if !m.Resolved {
		return nil, domain.ErrMarketNotResolved
	}
	now := e.clock.Now()
	if m.ResolverPaid || !now.Before(m.ResolvedAt.Add(e.disputeWindow)) {
		return nil, domain.ErrDisputeWindowClosed
	}
	if proposedOutcome == m.Outcome {
		return nil, domain.ErrMustDisagree
	}
	if m.RelatedProposal != nil {
		return nil, domain.ErrMarketAlreadyDisputed
	}

	p := &domain.Proposal{
		ID:          uint64(len(e.proposals)),
		MarketID:    marketID,
		Description: description,
		ExecuteYes:  proposedOutcome,
		// Votes are weighed at the market's resolution snapshot, so power
		// acquired after seeing the reported outcome counts for nothing.
		SnapshotBlock: m.SnapshotBlock,
		Deadline:      now.Add(e.votingPeriod),
		VotesFor:      new(big.Int),
		VotesAgainst:  new(big.Int),
		CreatedAt:     now,
	}
	e.proposals = append(e.proposals, p)
	e.usedVotingPower[p.ID] = make(map[common.Address]*big.Int)
	m.RelatedProposal = u64ptr(p.ID)

	e.emitLocked(domain.EventProposalCreated, u64ptr(marketID), u64ptr(p.ID), &domain.ProposalCreatedData{
		ProposalID:    p.ID,
		MarketID:      marketID,
		Description:   description,
		ExecuteYes:    proposedOutcome,
		Deadline:      p.Deadline,
		SnapshotBlock: p.SnapshotBlock,
	})

	e.logger.Info("dispute opened",
		slog.Uint64("proposal_id", p.ID),
		slog.Uint64("market_id", marketID),
		slog.Bool("proposed_outcome", proposedOutcome),
	)
	return p.Clone(), nil
}

// Vote spends part of the caller's snapshot voting power on a dispute.
// Power can be split across multiple calls and across both sides, but the
// total spent can never exceed the snapshot balance.
func (e *Engine) Vote(caller common.Address, proposalID uint64, support bool, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.head.Advance()

	p, err := e.proposalLocked(proposalID)
	if err != nil {
		return err
	}
	if p.Executed || !e.clock.Now().Before(p.Deadline) {
		return domain.ErrVotingClosed
	}

	power := e.gov.PastVotes(caller, p.SnapshotBlock)
	used := e.usedVotingPower[proposalID][caller]
	if used == nil {
		used = new(big.Int)
	}
	if new(big.Int).Add(used, amount).Cmp(power) > 0 {
		return domain.ErrInvalidAmount
	}

	if u, ok := e.usedVotingPower[proposalID][caller]; ok {
		u.Add(u, amount)
	} else {
		e.usedVotingPower[proposalID][caller] = new(big.Int).Set(amount)
	}
	if support {
		p.VotesFor.Add(p.VotesFor, amount)
	} else {
		p.VotesAgainst.Add(p.VotesAgainst, amount)
	}

	e.emitLocked(domain.EventVoted, u64ptr(p.MarketID), u64ptr(proposalID), &domain.VotedData{
		ProposalID: proposalID,
		Voter:      caller,
		Support:    support,
		Amount:     new(big.Int).Set(amount),
	})
	return nil
}

// ExecuteProposal tallies a dispute after its deadline. A passing dispute
// flips the market outcome and slashes the resolver bond half-and-half
// between the resolver and the governance vault. A failing dispute returns
// the bond whole and pays the resolver reward. Either way the market
// finalizes and the creator bond goes home.
func (e *Engine) ExecuteProposal(caller common.Address, proposalID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.head.Advance()

	p, err := e.proposalLocked(proposalID)
	if err != nil {
		return err
	}
	if !e.isAuthorizedExecutorLocked(caller) {
		return domain.ErrNotAuthorizedExecutor
	}
	if e.clock.Now().Before(p.Deadline) {
		return domain.ErrVotingNotFinished
	}
	if p.Executed {
		return domain.ErrAlreadyExecuted
	}

	m, err := e.marketLocked(p.MarketID)
	if err != nil {
		return err
	}

	passed := p.Passed()
	if passed {
		m.Outcome = p.ExecuteYes
		e.slashResolverLocked(m)
	} else {
		e.rewardResolverLocked(m)
	}
	e.returnCreatorBondLocked(m)

	p.Executed = true
	m.ResolverPaid = true
	m.RelatedProposal = nil

	e.emitLocked(domain.EventProposalExecuted, u64ptr(p.MarketID), u64ptr(proposalID), &domain.ProposalExecutedData{
		ProposalID: proposalID,
		MarketID:   p.MarketID,
		Passed:     passed,
		Outcome:    m.Outcome,
	})

	e.logger.Info("dispute executed",
		slog.Uint64("proposal_id", proposalID),
		slog.Uint64("market_id", p.MarketID),
		slog.Bool("passed", passed),
		slog.Bool("outcome", m.Outcome),
	)
	return nil
}

// slashResolverLocked splits the resolver bond: half back to the resolver,
// the remainder into the governance vault.
func (e *Engine) slashResolverLocked(m *domain.Market) {
	bond := m.ResolverBond
	if bond.Sign() == 0 {
		e.emitLocked(domain.EventResolverSlashed, u64ptr(m.ID), nil, &domain.ResolverSlashedData{
			MarketID: m.ID,
			Resolver: m.Resolver,
			Returned: new(big.Int),
			Slashed:  new(big.Int),
		})
		return
	}
	half := new(big.Int).Div(bond, big.NewInt(2))
	slashed := new(big.Int).Sub(bond, half)

	if half.Sign() > 0 {
		// The bond sits in the engine's token account; a failure here would
		// mean the engine lost custody of it, which cannot happen.
		if err := e.gov.Transfer(e.account, m.Resolver, half); err != nil {
			e.logger.Error("resolver bond return failed",
				slog.Uint64("market_id", m.ID), slog.String("error", err.Error()))
		}
	}
	e.vaultGov.Add(e.vaultGov, slashed)

	e.emitLocked(domain.EventResolverSlashed, u64ptr(m.ID), nil, &domain.ResolverSlashedData{
		MarketID: m.ID,
		Resolver: m.Resolver,
		Returned: half,
		Slashed:  slashed,
	})
}

// rewardResolverLocked returns the resolver bond whole and pays the reward
// cut of the total pool in native value.
func (e *Engine) rewardResolverLocked(m *domain.Market) {
	if m.ResolverBond.Sign() > 0 {
		if err := e.gov.Transfer(e.account, m.Resolver, m.ResolverBond); err != nil {
			e.logger.Error("resolver bond return failed",
				slog.Uint64("market_id", m.ID), slog.String("error", err.Error()))
		}
	}
	reward := mulBps(m.TotalPool(), e.resolverRewardBps)
	if reward.Sign() > 0 {
		if err := e.bank.Transfer(e.account, m.Resolver, reward); err != nil {
			e.logger.Error("resolver reward payment failed",
				slog.Uint64("market_id", m.ID), slog.String("error", err.Error()))
			reward = new(big.Int)
		}
	}
	e.emitLocked(domain.EventResolverRewarded, u64ptr(m.ID), nil, &domain.ResolverRewardedData{
		MarketID:     m.ID,
		Resolver:     m.Resolver,
		Reward:       reward,
		BondReturned: new(big.Int).Set(m.ResolverBond),
	})
}

// returnCreatorBondLocked sends the creator bond home exactly once.
func (e *Engine) returnCreatorBondLocked(m *domain.Market) {
	if m.BondReturned {
		return
	}
	m.BondReturned = true
	if m.CreatorBond.Sign() > 0 {
		if err := e.gov.Transfer(e.account, m.Creator, m.CreatorBond); err != nil {
			e.logger.Error("creator bond return failed",
				slog.Uint64("market_id", m.ID), slog.String("error", err.Error()))
			return
		}
	}
	e.emitLocked(domain.EventCreatorBondReturned, u64ptr(m.ID), nil, &domain.CreatorBondReturnedData{
		MarketID: m.ID,
		Creator:  m.Creator,
		Bond:     new(big.Int).Set(m.CreatorBond),
	})
}
