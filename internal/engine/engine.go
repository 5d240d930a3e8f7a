// Package engine implements the prediction-market state machine: market
// lifecycle, resolver bonding, snapshot-weighted dispute voting, and the
// settlement/payout arithmetic.
//
// Every public operation takes the caller address explicitly, runs under a
// single mutex (the atomic call boundary), and either completes fully or
// rejects with a categorical error leaving state untouched. Value leaves
// the engine only after all internal ledger state for the call is final.
package engine

import (
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/openpredict/predictiondao/internal/bank"
	"github.com/openpredict/predictiondao/internal/chain"
	"github.com/openpredict/predictiondao/internal/domain"
	"github.com/openpredict/predictiondao/internal/token"
)

// bpsDenom is the basis-point denominator shared by every payout formula.
const bpsDenom = 10_000

// Config carries the construction parameters of the engine.
type Config struct {
	Owner   common.Address
	Account common.Address // the engine's own ledger account

	CreatorBond  *big.Int // GOV pulled at createMarket
	ResolverBond *big.Int // GOV pulled at resolveMarket

	FeeBps            uint64 // settlement fee on winner payouts
	ReturnFeeBps      uint64 // fraction of a losing stake refunded
	SoloBonusBps      uint64 // vault share distributed to solo winners
	ResolverRewardBps uint64 // resolver reward on the total pool

	DisputeWindow time.Duration
	VotingPeriod  time.Duration

	Executors []common.Address
}

// Engine is the market, dispute, and settlement state machine.
type Engine struct {
	mu sync.RWMutex

	owner   common.Address
	account common.Address

	creatorBond  *big.Int
	resolverBond *big.Int

	feeBps            uint64
	returnFeeBps      uint64
	soloBonusBps      uint64
	resolverRewardBps uint64

	disputeWindow time.Duration
	votingPeriod  time.Duration

	gov    *token.Token
	bank   *bank.Ledger
	head   *chain.Head
	clock  chain.Clock
	sink   domain.EventSink
	logger *slog.Logger

	markets   []*domain.Market
	proposals []*domain.Proposal

	betsYes map[uint64]map[common.Address]*big.Int
	betsNo  map[uint64]map[common.Address]*big.Int

	// usedVotingPower[proposalID][voter] accumulates spent snapshot power.
	usedVotingPower map[uint64]map[common.Address]*big.Int

	executors map[common.Address]bool

	vaultBalance *big.Int // native: fees, loser remainders, direct transfers
	vaultGov     *big.Int // governance: slashed bond halves
}

// New creates an Engine wired to the governance token and the native
// ledger.
func New(cfg Config, gov *token.Token, ledger *bank.Ledger, head *chain.Head, clock chain.Clock, sink domain.EventSink, logger *slog.Logger) *Engine {
	executors := make(map[common.Address]bool, len(cfg.Executors))
	for _, a := range cfg.Executors {
		executors[a] = true
	}
	return &Engine{
		owner:             cfg.Owner,
		account:           cfg.Account,
		creatorBond:       bigOrZero(cfg.CreatorBond),
		resolverBond:      bigOrZero(cfg.ResolverBond),
		feeBps:            cfg.FeeBps,
		returnFeeBps:      cfg.ReturnFeeBps,
		soloBonusBps:      cfg.SoloBonusBps,
		resolverRewardBps: cfg.ResolverRewardBps,
		disputeWindow:     cfg.DisputeWindow,
		votingPeriod:      cfg.VotingPeriod,
		gov:               gov,
		bank:              ledger,
		head:              head,
		clock:             clock,
		sink:              sink,
		logger:            logger.With(slog.String("component", "engine")),
		betsYes:           make(map[uint64]map[common.Address]*big.Int),
		betsNo:            make(map[uint64]map[common.Address]*big.Int),
		usedVotingPower:   make(map[uint64]map[common.Address]*big.Int),
		executors:         executors,
		vaultBalance:      new(big.Int),
		vaultGov:          new(big.Int),
	}
}

// Account returns the engine's own ledger account.
func (e *Engine) Account() common.Address { return e.account }

// Owner returns the admin address.
func (e *Engine) Owner() common.Address { return e.owner }

// Receive credits a direct value transfer into the vault.
func (e *Engine) Receive(from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.head.Advance()

	if err := e.bank.Transfer(from, e.account, amount); err != nil {
		return err
	}
	e.vaultBalance.Add(e.vaultBalance, amount)
	e.emitLocked(domain.EventReceived, nil, nil, &domain.ReceivedData{
		From:   from,
		Amount: new(big.Int).Set(amount),
	})
	return nil
}

// CreditAccount credits native value to an account. Owner only. This is
// the boundary through which external value enters the closed ledger.
func (e *Engine) CreditAccount(caller, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.owner {
		return domain.ErrNotOwner
	}
	e.head.Advance()
	return e.bank.Deposit(to, amount)
}

// WithdrawVault moves native vault funds to the given address. Owner only.
func (e *Engine) WithdrawVault(caller common.Address, amount *big.Int, to common.Address) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.owner {
		return domain.ErrNotOwner
	}
	if e.vaultBalance.Cmp(amount) < 0 {
		return domain.ErrInsufficientFunds
	}
	e.head.Advance()

	e.vaultBalance.Sub(e.vaultBalance, amount)
	if err := e.bank.Transfer(e.account, to, amount); err != nil {
		// Roll the accumulator back; the ledger rejected with no change.
		e.vaultBalance.Add(e.vaultBalance, amount)
		return err
	}
	e.emitLocked(domain.EventVaultWithdrawn, nil, nil, &domain.VaultWithdrawnData{
		To:     to,
		Amount: new(big.Int).Set(amount),
	})
	return nil
}

// SetExecutor adds an address to the executor allow-list. Owner only.
func (e *Engine) SetExecutor(caller, executor common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.owner {
		return domain.ErrNotOwner
	}
	e.executors[executor] = true
	return nil
}

// RemoveExecutor removes an address from the executor allow-list. Owner only.
func (e *Engine) RemoveExecutor(caller, executor common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.owner {
		return domain.ErrNotOwner
	}
	delete(e.executors, executor)
	return nil
}

// SetPayoutParams updates the settlement fee/bonus parameters. Owner only.
func (e *Engine) SetPayoutParams(caller common.Address, feeBps, returnFeeBps, soloBonusBps, resolverRewardBps uint64) error {
	if feeBps > bpsDenom || returnFeeBps > bpsDenom || soloBonusBps > bpsDenom || resolverRewardBps > bpsDenom {
		return domain.ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.owner {
		return domain.ErrNotOwner
	}
	e.feeBps = feeBps
	e.returnFeeBps = returnFeeBps
	e.soloBonusBps = soloBonusBps
	e.resolverRewardBps = resolverRewardBps
	return nil
}

// isAuthorizedExecutorLocked checks the {Owner, Executor} capability set.
func (e *Engine) isAuthorizedExecutorLocked(caller common.Address) bool {
	return caller == e.owner || e.executors[caller]
}

// marketLocked returns the market by id or domain.ErrInvalidMarket.
func (e *Engine) marketLocked(id uint64) (*domain.Market, error) {
	if id >= uint64(len(e.markets)) {
		return nil, domain.ErrInvalidMarket
	}
	return e.markets[id], nil
}

// proposalLocked returns the proposal by id or domain.ErrInvalidProposal.
func (e *Engine) proposalLocked(id uint64) (*domain.Proposal, error) {
	if id >= uint64(len(e.proposals)) {
		return nil, domain.ErrInvalidProposal
	}
	return e.proposals[id], nil
}

// emitLocked wraps a payload in an event envelope and hands it to the sink.
func (e *Engine) emitLocked(typ domain.EventType, marketID, proposalID *uint64, data any) {
	if e.sink == nil {
		return
	}
	e.sink.Emit(domain.Event{
		ID:         uuid.New().String(),
		Type:       typ,
		At:         e.clock.Now(),
		Height:     e.head.Height(),
		MarketID:   marketID,
		ProposalID: proposalID,
		Data:       data,
	})
}

// mulBps returns v * bps / 10000, floor-rounded.
func mulBps(v *big.Int, bps uint64) *big.Int {
	out := new(big.Int).Mul(v, new(big.Int).SetUint64(bps))
	return out.Div(out, big.NewInt(bpsDenom))
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func u64ptr(v uint64) *uint64 { return &v }
