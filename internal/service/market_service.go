package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/predictiondao/internal/domain"
	"github.com/openpredict/predictiondao/internal/engine"
)

// lockTTL bounds how long a state-changing call may hold its distributed
// lock before it expires on its own.
const lockTTL = 10 * time.Second

// MarketService fronts the engine's market, dispute, and settlement calls.
// It serializes mutations per market across replicas, writes snapshots
// through to Postgres, and keeps the cache coherent.
type MarketService struct {
	engine    *engine.Engine
	markets   domain.MarketStore
	proposals domain.ProposalStore
	events    domain.EventStore
	cache     domain.MarketCache
	locks     domain.LockManager
	logger    *slog.Logger
}

// NewMarketService creates a MarketService. locks may be nil in
// single-replica deployments; cache and the stores may be nil in tests.
func NewMarketService(
	eng *engine.Engine,
	markets domain.MarketStore,
	proposals domain.ProposalStore,
	events domain.EventStore,
	cache domain.MarketCache,
	locks domain.LockManager,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		engine:    eng,
		markets:   markets,
		proposals: proposals,
		events:    events,
		cache:     cache,
		locks:     locks,
		logger:    logger,
	}
}

// CreateMarket opens a new market. The creator bond is pulled from the
// caller's governance token allowance inside the engine call.
func (s *MarketService) CreateMarket(ctx context.Context, caller common.Address, question string, duration time.Duration) (*domain.Market, error) {
	unlock, err := s.acquire(ctx, "engine:create")
	if err != nil {
		return nil, err
	}
	defer unlock()

	m, err := s.engine.CreateMarket(caller, question, duration)
	if err != nil {
		return nil, err
	}

	s.persistMarket(ctx, m)
	s.logger.InfoContext(ctx, "market created",
		slog.Uint64("market_id", m.ID),
		slog.String("creator", caller.Hex()),
	)
	return m, nil
}

// PlaceBet stakes native funds on one side of an open market.
func (s *MarketService) PlaceBet(ctx context.Context, caller common.Address, marketID uint64, yes bool, amount *big.Int) error {
	unlock, err := s.acquireMarket(ctx, marketID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.engine.PlaceBet(caller, marketID, yes, amount); err != nil {
		return err
	}

	s.syncMarket(ctx, marketID)
	return nil
}

// ResolveMarket posts an outcome for a market whose betting period ended.
// The resolver bond is pulled inside the engine call.
func (s *MarketService) ResolveMarket(ctx context.Context, caller common.Address, marketID uint64, outcome bool) error {
	unlock, err := s.acquireMarket(ctx, marketID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.engine.ResolveMarket(caller, marketID, outcome); err != nil {
		return err
	}

	s.syncMarket(ctx, marketID)
	s.logger.InfoContext(ctx, "market resolved",
		slog.Uint64("market_id", marketID),
		slog.Bool("outcome", outcome),
		slog.String("resolver", caller.Hex()),
	)
	return nil
}

// CreateDispute opens a dispute proposal against a resolved market.
func (s *MarketService) CreateDispute(ctx context.Context, caller common.Address, marketID uint64, description string, proposedOutcome bool) (*domain.Proposal, error) {
	unlock, err := s.acquireMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := s.engine.CreateDisputeProposal(caller, marketID, description, proposedOutcome)
	if err != nil {
		return nil, err
	}

	s.persistProposal(ctx, p)
	s.syncMarket(ctx, marketID)
	s.logger.InfoContext(ctx, "dispute opened",
		slog.Uint64("market_id", marketID),
		slog.Uint64("proposal_id", p.ID),
	)
	return p, nil
}

// Vote casts snapshot-weighted voting power on a dispute proposal.
func (s *MarketService) Vote(ctx context.Context, caller common.Address, proposalID uint64, support bool, amount *big.Int) error {
	unlock, err := s.acquire(ctx, fmt.Sprintf("proposal:%d", proposalID))
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.engine.Vote(caller, proposalID, support, amount); err != nil {
		return err
	}

	s.syncProposal(ctx, proposalID)
	return nil
}

// ExecuteProposal tallies a finished dispute and settles the resolver bond.
func (s *MarketService) ExecuteProposal(ctx context.Context, caller common.Address, proposalID uint64) error {
	unlock, err := s.acquire(ctx, fmt.Sprintf("proposal:%d", proposalID))
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.engine.ExecuteProposal(caller, proposalID); err != nil {
		return err
	}

	s.syncProposal(ctx, proposalID)
	if p, err := s.engine.GetProposal(proposalID); err == nil {
		s.syncMarket(ctx, p.MarketID)
	}
	s.logger.InfoContext(ctx, "proposal executed", slog.Uint64("proposal_id", proposalID))
	return nil
}

// FinalizeResolve pays the resolver and returns the creator bond once the
// dispute window has passed without a standing dispute.
func (s *MarketService) FinalizeResolve(ctx context.Context, caller common.Address, marketID uint64) error {
	unlock, err := s.acquireMarket(ctx, marketID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.engine.FinalizeResolve(caller, marketID); err != nil {
		return err
	}

	s.syncMarket(ctx, marketID)
	return nil
}

// WithdrawWinnings pays out the caller's stake for a settled market and
// returns the amount transferred.
func (s *MarketService) WithdrawWinnings(ctx context.Context, caller common.Address, marketID uint64) (*big.Int, error) {
	unlock, err := s.acquireMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	amount, err := s.engine.WithdrawWinnings(caller, marketID)
	if err != nil {
		return nil, err
	}

	s.syncMarket(ctx, marketID)
	s.logger.InfoContext(ctx, "winnings withdrawn",
		slog.Uint64("market_id", marketID),
		slog.String("account", caller.Hex()),
		slog.String("amount", amount.String()),
	)
	return amount, nil
}

// CreditNative credits native value to an account. Owner only; the entry
// point for value arriving from outside the ledger.
func (s *MarketService) CreditNative(ctx context.Context, caller, to common.Address, amount *big.Int) error {
	if err := s.engine.CreditAccount(caller, to, amount); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "native balance credited",
		slog.String("to", to.Hex()),
		slog.String("amount", amount.String()),
	)
	return nil
}

// FundVault moves native funds from the caller into the engine vault.
func (s *MarketService) FundVault(ctx context.Context, from common.Address, amount *big.Int) error {
	return s.engine.Receive(from, amount)
}

// WithdrawVault moves native vault funds out. Owner only.
func (s *MarketService) WithdrawVault(ctx context.Context, caller common.Address, amount *big.Int, to common.Address) error {
	if err := s.engine.WithdrawVault(caller, amount, to); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "vault withdrawn",
		slog.String("to", to.Hex()),
		slog.String("amount", amount.String()),
	)
	return nil
}

// SetExecutor grants dispute-execution rights. Owner only.
func (s *MarketService) SetExecutor(ctx context.Context, caller, executor common.Address) error {
	return s.engine.SetExecutor(caller, executor)
}

// RemoveExecutor revokes dispute-execution rights. Owner only.
func (s *MarketService) RemoveExecutor(ctx context.Context, caller, executor common.Address) error {
	return s.engine.RemoveExecutor(caller, executor)
}

// SetPayoutParams updates the settlement fee schedule. Owner only.
func (s *MarketService) SetPayoutParams(ctx context.Context, caller common.Address, feeBps, returnFeeBps, soloBonusBps, resolverRewardBps uint64) error {
	return s.engine.SetPayoutParams(caller, feeBps, returnFeeBps, soloBonusBps, resolverRewardBps)
}

// GetMarket reads one market, cache first, engine on a miss.
func (s *MarketService) GetMarket(ctx context.Context, id uint64) (*domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return &m, nil
		}
	}

	m, err := s.engine.GetMarket(id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, *m); cacheErr != nil {
			s.logger.WarnContext(ctx, "market cache set failed",
				slog.Uint64("market_id", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	return m, nil
}

// ListMarkets pages through markets in creation order.
func (s *MarketService) ListMarkets(ctx context.Context, opts domain.ListOpts) []*domain.Market {
	return s.engine.ListMarkets(opts.Offset, opts.Limit)
}

// GetProposal reads one dispute proposal.
func (s *MarketService) GetProposal(ctx context.Context, id uint64) (*domain.Proposal, error) {
	return s.engine.GetProposal(id)
}

// ListProposals returns the dispute proposals raised against a market.
func (s *MarketService) ListProposals(ctx context.Context, marketID uint64) []*domain.Proposal {
	return s.engine.ListProposals(marketID)
}

// MarketEvents pages through a market's event history from the store.
func (s *MarketService) MarketEvents(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Event, error) {
	if s.events == nil {
		return nil, nil
	}
	return s.events.ListByMarket(ctx, marketID, opts)
}

// RecentEvents returns the newest events across all markets.
func (s *MarketService) RecentEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if s.events == nil {
		return nil, nil
	}
	return s.events.ListRecent(ctx, limit)
}

// Engine exposes read-only views for handlers that need derived state
// (status, resolver standing, vault balances).
func (s *MarketService) Engine() *engine.Engine {
	return s.engine
}

// ---------------------------------------------------------------------------
// Internal plumbing
// ---------------------------------------------------------------------------

func (s *MarketService) acquireMarket(ctx context.Context, marketID uint64) (func(), error) {
	return s.acquire(ctx, fmt.Sprintf("market:%d", marketID))
}

func (s *MarketService) acquire(ctx context.Context, key string) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	unlock, err := s.locks.Acquire(ctx, key, lockTTL)
	if err != nil {
		return nil, fmt.Errorf("market_service: acquire %s: %w", key, err)
	}
	return unlock, nil
}

// syncMarket re-reads a market from the engine and writes it through.
func (s *MarketService) syncMarket(ctx context.Context, marketID uint64) {
	m, err := s.engine.GetMarket(marketID)
	if err != nil {
		return
	}
	s.persistMarket(ctx, m)
}

func (s *MarketService) persistMarket(ctx context.Context, m *domain.Market) {
	if s.markets != nil {
		if err := s.markets.Upsert(ctx, *m); err != nil {
			s.logger.ErrorContext(ctx, "market upsert failed",
				slog.Uint64("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, m.ID); err != nil {
			s.logger.WarnContext(ctx, "market cache invalidate failed",
				slog.Uint64("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *MarketService) syncProposal(ctx context.Context, proposalID uint64) {
	p, err := s.engine.GetProposal(proposalID)
	if err != nil {
		return
	}
	s.persistProposal(ctx, p)
}

func (s *MarketService) persistProposal(ctx context.Context, p *domain.Proposal) {
	if s.proposals == nil {
		return
	}
	if err := s.proposals.Upsert(ctx, *p); err != nil {
		s.logger.ErrorContext(ctx, "proposal upsert failed",
			slog.Uint64("proposal_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
}
