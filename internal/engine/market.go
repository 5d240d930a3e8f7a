package engine

import (
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/predictiondao/internal/domain"
)

// CreateMarket opens a new binary market. The creator bond is pulled in
// governance tokens via an existing approval; it is returned at
// finalization.
func (e *Engine) CreateMarket(caller common.Address, question string, duration time.Duration) (*domain.Market, error) {
	if question == "" {
		return nil, domain.ErrInvalidMarket
	}
	if duration <= 0 {
		return nil, domain.ErrInvalidDuration
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.head.Advance()

	if e.creatorBond.Sign() > 0 {
		if err := e.gov.TransferFrom(e.account, caller, e.account, e.creatorBond); err != nil {
			return nil, domain.ErrInsufficientBond
		}
	}

	now := e.clock.Now()
	m := &domain.Market{
		ID:           uint64(len(e.markets)),
		Question:     question,
		Creator:      caller,
		CreatorBond:  new(big.Int).Set(e.creatorBond),
		PoolYes:      new(big.Int),
		PoolNo:       new(big.Int),
		ResolverBond: new(big.Int),
		EndTime:      now.Add(duration),
		CreatedAt:    now,
	}
	e.markets = append(e.markets, m)
	e.betsYes[m.ID] = make(map[common.Address]*big.Int)
	e.betsNo[m.ID] = make(map[common.Address]*big.Int)

	e.emitLocked(domain.EventMarketCreated, u64ptr(m.ID), nil, &domain.MarketCreatedData{
		MarketID: m.ID,
		Question: question,
		EndTime:  m.EndTime,
		Creator:  caller,
		Bond:     new(big.Int).Set(m.CreatorBond),
	})

	e.logger.Info("market created",
		slog.Uint64("market_id", m.ID),
		slog.String("creator", caller.Hex()),
		slog.Time("end_time", m.EndTime),
	)
	return m.Clone(), nil
}

// PlaceBet stakes native value on one side of an open market.
func (e *Engine) PlaceBet(caller common.Address, marketID uint64, side bool, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.head.Advance()

	m, err := e.marketLocked(marketID)
	if err != nil {
		return err
	}
	if m.BettingClosed || !e.clock.Now().Before(m.EndTime) {
		return domain.ErrMarketClosed
	}

	if err := e.bank.Transfer(caller, e.account, amount); err != nil {
		return err
	}

	if side {
		m.PoolYes.Add(m.PoolYes, amount)
	} else {
		m.PoolNo.Add(m.PoolNo, amount)
	}
	bets := e.betsYes[marketID]
	if !side {
		bets = e.betsNo[marketID]
	}
	if s, ok := bets[caller]; ok {
		s.Add(s, amount)
	} else {
		bets[caller] = new(big.Int).Set(amount)
	}

	e.emitLocked(domain.EventPlaceBet, u64ptr(marketID), nil, &domain.PlaceBetData{
		MarketID: marketID,
		Bettor:   caller,
		Yes:      side,
		Amount:   new(big.Int).Set(amount),
	})
	return nil
}

// ResolveMarket posts the resolver bond and declares the outcome of a
// market whose betting period has ended. The resolution snapshot height is
// captured here; dispute votes are weighed against it.
func (e *Engine) ResolveMarket(caller common.Address, marketID uint64, outcome bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.head.Advance()

	m, err := e.marketLocked(marketID)
	if err != nil {
		return err
	}
	now := e.clock.Now()
	if now.Before(m.EndTime) {
		return domain.ErrBettingNotClosed
	}
	if m.Resolved {
		return domain.ErrAlreadyResolved
	}

	if e.resolverBond.Sign() > 0 {
		if err := e.gov.TransferFrom(e.account, caller, e.account, e.resolverBond); err != nil {
			return domain.ErrInsufficientBond
		}
	}

	m.Resolved = true
	m.Outcome = outcome
	m.Resolver = caller
	m.ResolverBond = new(big.Int).Set(e.resolverBond)
	m.ResolvedAt = now
	m.SnapshotBlock = e.head.Height()

	if !m.BettingClosed {
		m.BettingClosed = true
		e.emitLocked(domain.EventMarketBettingClosed, u64ptr(marketID), nil, &domain.MarketBettingClosedData{
			MarketID:      marketID,
			SnapshotBlock: m.SnapshotBlock,
		})
	}

	e.emitLocked(domain.EventMarketResolved, u64ptr(marketID), nil, &domain.MarketResolvedData{
		MarketID: marketID,
		Outcome:  outcome,
		Resolver: caller,
		Bond:     new(big.Int).Set(m.ResolverBond),
	})

	e.logger.Info("market resolved",
		slog.Uint64("market_id", marketID),
		slog.Bool("outcome", outcome),
		slog.String("resolver", caller.Hex()),
		slog.Uint64("snapshot", m.SnapshotBlock),
	)
	return nil
}
