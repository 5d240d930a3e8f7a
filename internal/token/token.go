// Package token implements the governance token: a delegatable balance
// ledger with per-block voting-power checkpoints, plus a bonded buy/sell
// exchange against the ledger's native reserve.
package token

import (
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/predictiondao/internal/bank"
	"github.com/openpredict/predictiondao/internal/chain"
	"github.com/openpredict/predictiondao/internal/domain"
)

// bpsDenom is the basis-point denominator used by every fee computation.
const bpsDenom = 10_000

// checkpoint records a delegate's voting power as of a block height.
type checkpoint struct {
	height uint64
	votes  *big.Int
}

// Config carries the construction parameters of the token component.
type Config struct {
	Owner   common.Address
	Account common.Address // the component's own ledger account

	InitialSupply *big.Int // minted to Owner

	Rate             *big.Int // tokens per unit of reserve
	BuyFeeBps        uint64
	SellFeeBps       uint64
	MaxBuyPerTx      *big.Int // zero disables the limit
	MaxSellPerTx     *big.Int
	MaxBuyPerAddress *big.Int
	FeeRecipient     common.Address
}

// Token is the governance token ledger and exchange. Every public
// state-changing method advances the shared head and runs under one mutex;
// a failing precondition leaves no partial state behind.
type Token struct {
	mu sync.RWMutex

	owner   common.Address
	account common.Address

	bank   *bank.Ledger
	head   *chain.Head
	clock  chain.Clock
	sink   domain.EventSink
	logger *slog.Logger

	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int

	delegates   map[common.Address]common.Address
	checkpoints map[common.Address][]checkpoint

	rate             *big.Int
	buyFeeBps        uint64
	sellFeeBps       uint64
	maxBuyPerTx      *big.Int
	maxSellPerTx     *big.Int
	maxBuyPerAddress *big.Int
	feeRecipient     common.Address
	totalBought      map[common.Address]*big.Int
}

// New creates a Token, minting the initial supply to the configured owner.
func New(cfg Config, ledger *bank.Ledger, head *chain.Head, clock chain.Clock, sink domain.EventSink, logger *slog.Logger) *Token {
	t := &Token{
		owner:            cfg.Owner,
		account:          cfg.Account,
		bank:             ledger,
		head:             head,
		clock:            clock,
		sink:             sink,
		logger:           logger.With(slog.String("component", "token")),
		totalSupply:      new(big.Int),
		balances:         make(map[common.Address]*big.Int),
		allowances:       make(map[common.Address]map[common.Address]*big.Int),
		delegates:        make(map[common.Address]common.Address),
		checkpoints:      make(map[common.Address][]checkpoint),
		rate:             bigOrZero(cfg.Rate),
		buyFeeBps:        cfg.BuyFeeBps,
		sellFeeBps:       cfg.SellFeeBps,
		maxBuyPerTx:      bigOrZero(cfg.MaxBuyPerTx),
		maxSellPerTx:     bigOrZero(cfg.MaxSellPerTx),
		maxBuyPerAddress: bigOrZero(cfg.MaxBuyPerAddress),
		feeRecipient:     cfg.FeeRecipient,
		totalBought:      make(map[common.Address]*big.Int),
	}
	if cfg.InitialSupply != nil && cfg.InitialSupply.Sign() > 0 {
		t.totalSupply = new(big.Int).Set(cfg.InitialSupply)
		t.balances[cfg.Owner] = new(big.Int).Set(cfg.InitialSupply)
	}
	return t
}

// Account returns the token component's own ledger account.
func (t *Token) Account() common.Address { return t.account }

// Owner returns the admin address.
func (t *Token) Owner() common.Address { return t.owner }

// TotalSupply returns the minted supply.
func (t *Token) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.totalSupply)
}

// BalanceOf returns addr's live token balance.
func (t *Token) BalanceOf(addr common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balanceLocked(addr)
}

// Reserve returns the native value held by the token component.
func (t *Token) Reserve() *big.Int {
	return t.bank.BalanceOf(t.account)
}

// Transfer moves tokens from the caller to another address.
func (t *Token) Transfer(caller, to common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.head.Advance()
	return t.transferLocked(caller, to, amount)
}

// Approve sets the allowance of spender over the caller's tokens.
func (t *Token) Approve(caller, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return domain.ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.head.Advance()
	inner, ok := t.allowances[caller]
	if !ok {
		inner = make(map[common.Address]*big.Int)
		t.allowances[caller] = inner
	}
	inner[spender] = new(big.Int).Set(amount)
	return nil
}

// Allowance returns how much spender may move on behalf of owner.
func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if inner, ok := t.allowances[owner]; ok {
		if a, ok := inner[spender]; ok {
			return new(big.Int).Set(a)
		}
	}
	return new(big.Int)
}

// TransferFrom moves tokens from one address to another, spending the
// caller's allowance. The bond pulls of the market engine go through here.
func (t *Token) TransferFrom(caller, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.head.Advance()

	inner := t.allowances[from]
	allowance, ok := inner[caller]
	if !ok || allowance.Cmp(amount) < 0 {
		return domain.ErrInsufficientAllowance
	}
	if err := t.transferLocked(from, to, amount); err != nil {
		return err
	}
	allowance.Sub(allowance, amount)
	return nil
}

// Delegate assigns the caller's voting units to delegatee. Voting power
// only exists once delegated; self-delegation is the common case.
func (t *Token) Delegate(caller, delegatee common.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.head.Advance()

	prev := t.delegates[caller]
	t.delegates[caller] = delegatee
	t.moveVotesLocked(prev, delegatee, t.balanceLocked(caller))
}

// Votes returns delegatee's live voting power.
func (t *Token) Votes(addr common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cps := t.checkpoints[addr]
	if len(cps) == 0 {
		return new(big.Int)
	}
	return new(big.Int).Set(cps[len(cps)-1].votes)
}

// PastVotes returns addr's voting power as of the given block height. The
// answer is immutable once the height has passed: later transfers or
// delegations never change it.
func (t *Token) PastVotes(addr common.Address, height uint64) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cps := t.checkpoints[addr]
	// Find the last checkpoint at or before height.
	i := sort.Search(len(cps), func(i int) bool { return cps[i].height > height })
	if i == 0 {
		return new(big.Int)
	}
	return new(big.Int).Set(cps[i-1].votes)
}

// ---------------------------------------------------------------------------
// Internal ledger plumbing. Callers must hold the write lock.
// ---------------------------------------------------------------------------

func (t *Token) balanceLocked(addr common.Address) *big.Int {
	if b, ok := t.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (t *Token) transferLocked(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	b, ok := t.balances[from]
	if !ok || b.Cmp(amount) < 0 {
		return domain.ErrInsufficientFunds
	}
	b.Sub(b, amount)
	if dst, ok := t.balances[to]; ok {
		dst.Add(dst, amount)
	} else {
		t.balances[to] = new(big.Int).Set(amount)
	}
	t.moveVotesLocked(t.delegates[from], t.delegates[to], amount)
	return nil
}

// moveVotesLocked shifts voting units between delegates, writing a
// checkpoint at the current height for each side that changed.
func (t *Token) moveVotesLocked(from, to common.Address, amount *big.Int) {
	if amount.Sign() == 0 || from == to {
		return
	}
	zero := common.Address{}
	if from != zero {
		cur := t.lastVotesLocked(from)
		t.writeCheckpointLocked(from, new(big.Int).Sub(cur, amount))
	}
	if to != zero {
		cur := t.lastVotesLocked(to)
		t.writeCheckpointLocked(to, new(big.Int).Add(cur, amount))
	}
}

func (t *Token) lastVotesLocked(addr common.Address) *big.Int {
	cps := t.checkpoints[addr]
	if len(cps) == 0 {
		return new(big.Int)
	}
	return cps[len(cps)-1].votes
}

func (t *Token) writeCheckpointLocked(addr common.Address, votes *big.Int) {
	h := t.head.Height()
	cps := t.checkpoints[addr]
	if n := len(cps); n > 0 && cps[n-1].height == h {
		cps[n-1].votes = votes
		return
	}
	t.checkpoints[addr] = append(cps, checkpoint{height: h, votes: votes})
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
