package engine

import (
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/predictiondao/internal/domain"
)

// FinalizeResolve closes out an undisputed resolution once the dispute
// window has elapsed: the resolver gets the reward cut and both bonds go
// home. Anyone may call it; the payees are fixed by the market record.
func (e *Engine) FinalizeResolve(caller common.Address, marketID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.head.Advance()

	m, err := e.marketLocked(marketID)
	if err != nil {
		return err
	}
	return e.finalizeLocked(m)
}

// finalizeLocked performs the undisputed-path finalization checks and
// payouts. Shared by FinalizeResolve and the withdraw-time auto-finalize.
func (e *Engine) finalizeLocked(m *domain.Market) error {
	if !m.Resolved {
		return domain.ErrNotResolvedYet
	}
	if m.ResolverPaid {
		return domain.ErrAlreadyPaid
	}
	if m.RelatedProposal != nil {
		return domain.ErrHasActiveDispute
	}
	if e.clock.Now().Before(m.ResolvedAt.Add(e.disputeWindow)) {
		return domain.ErrDisputeWindowOpen
	}

	e.rewardResolverLocked(m)
	e.returnCreatorBondLocked(m)
	m.ResolverPaid = true

	e.logger.Info("market finalized",
		slog.Uint64("market_id", m.ID),
		slog.Bool("outcome", m.Outcome),
	)
	return nil
}

// WithdrawWinnings settles the caller's position on a resolved market and
// pays it out in native value. Winning stakes collect a pro-rata share of
// the losing pool less the settlement fee; when nobody bet against the
// outcome, the fee applies to the stake and the vault pays a solo bonus.
// Losing stakes get the partial refund, remainder to the vault.
//
// A pending dispute blocks withdrawal entirely: the outcome may still flip,
// and paying out on the provisional one would let both sides collect the
// same losing pool. If the dispute window has elapsed with no dispute
// pending, the market is finalized as a side effect before the payout is
// computed.
func (e *Engine) WithdrawWinnings(caller common.Address, marketID uint64) (*big.Int, error) {
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
	if m.RelatedProposal != nil {
		return nil, domain.ErrHasActiveDispute
	}

	// Opportunistic finalize. Only the fully-eligible case fires; an open
	// window leaves finalization for later.
	if !m.ResolverPaid && !e.clock.Now().Before(m.ResolvedAt.Add(e.disputeWindow)) {
		if err := e.finalizeLocked(m); err != nil {
			return nil, err
		}
	}

	winBets, loseBets := e.betsYes[marketID], e.betsNo[marketID]
	winPool, losePool := m.PoolYes, m.PoolNo
	if !m.Outcome {
		winBets, loseBets = loseBets, winBets
		winPool, losePool = losePool, winPool
	}

	wStake := stakeOf(winBets, caller)
	lStake := stakeOf(loseBets, caller)
	if wStake.Sign() == 0 && lStake.Sign() == 0 {
		return nil, domain.ErrNoBetsInMarket
	}

	payout := new(big.Int)
	if wStake.Sign() > 0 {
		if losePool.Sign() > 0 {
			// Versus case: stake back plus a share of the losing pool,
			// settlement fee on the gross.
			share := new(big.Int).Mul(wStake, losePool)
			share.Div(share, winPool)
			gross := new(big.Int).Add(wStake, share)
			fee := mulBps(gross, e.feeBps)
			e.vaultBalance.Add(e.vaultBalance, fee)
			payout.Add(payout, new(big.Int).Sub(gross, fee))
		} else {
			// Solo case: nothing to win from, so the fee comes off the
			// stake and the vault sweetens the return.
			fee := mulBps(wStake, e.feeBps)
			bonus := mulBps(e.vaultBalance, e.soloBonusBps)
			share := new(big.Int).Mul(wStake, bonus)
			share.Div(share, winPool)
			e.vaultBalance.Add(e.vaultBalance, fee)
			e.vaultBalance.Sub(e.vaultBalance, share)
			payout.Add(payout, new(big.Int).Sub(wStake, fee))
			payout.Add(payout, share)
		}
		delete(winBets, caller)
	}
	if lStake.Sign() > 0 {
		refund := mulBps(lStake, e.returnFeeBps)
		e.vaultBalance.Add(e.vaultBalance, new(big.Int).Sub(lStake, refund))
		payout.Add(payout, refund)
		delete(loseBets, caller)
	}

	if payout.Sign() > 0 {
		if err := e.bank.Transfer(e.account, caller, payout); err != nil {
			return nil, err
		}
	}

	e.emitLocked(domain.EventWithdrawn, u64ptr(marketID), nil, &domain.WithdrawnData{
		MarketID: marketID,
		Account:  caller,
		Amount:   new(big.Int).Set(payout),
	})

	e.logger.Info("winnings withdrawn",
		slog.Uint64("market_id", marketID),
		slog.String("account", caller.Hex()),
		slog.String("amount", payout.String()),
	)
	return payout, nil
}

func stakeOf(bets map[common.Address]*big.Int, addr common.Address) *big.Int {
	if s, ok := bets[addr]; ok {
		return new(big.Int).Set(s)
	}
	return new(big.Int)
}
