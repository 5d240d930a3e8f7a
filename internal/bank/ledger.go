// Package bank implements the native-value ledger: a single authoritative
// map from address to balance. Both the market engine and the token
// exchange own an account here, so conservation of pooled value can be
// checked against one source of truth.
package bank

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/predictiondao/internal/domain"
)

// Ledger tracks native-asset balances per address. All mutations are
// all-or-nothing under one mutex.
type Ledger struct {
	mu       sync.RWMutex
	balances map[common.Address]*big.Int
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[common.Address]*big.Int),
	}
}

// BalanceOf returns the balance of addr. Unknown addresses hold zero.
func (l *Ledger) BalanceOf(addr common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if b, ok := l.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Deposit credits addr with amount. This is the boundary through which
// external value enters the ledger (the wallet layer's relay).
func (l *Ledger) Deposit(addr common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(addr, amount)
	return nil
}

// Transfer moves amount from one address to another. It fails with
// domain.ErrInsufficientFunds and no state change when the source balance
// is too small.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return domain.ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.balances[from]
	if !ok || b.Cmp(amount) < 0 {
		return domain.ErrInsufficientFunds
	}
	b.Sub(b, amount)
	l.credit(to, amount)
	return nil
}

// TotalSupply sums every balance; used by conservation checks.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := new(big.Int)
	for _, b := range l.balances {
		total.Add(total, b)
	}
	return total
}

// credit adds amount to addr. Caller must hold the write lock.
func (l *Ledger) credit(addr common.Address, amount *big.Int) {
	if b, ok := l.balances[addr]; ok {
		b.Add(b, amount)
		return
	}
	l.balances[addr] = new(big.Int).Set(amount)
}
