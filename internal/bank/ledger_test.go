package bank

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/predictiondao/internal/domain"
)

func TestLedger(t *testing.T) {
	a := common.Address{19: 0x0a}
	b := common.Address{19: 0x0b}
	l := NewLedger()

	if got := l.BalanceOf(a); got.Sign() != 0 {
		t.Fatalf("fresh balance = %s", got)
	}
	if err := l.Deposit(a, big.NewInt(0)); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("want ErrInvalidAmount, got %v", err)
	}
	if err := l.Deposit(a, big.NewInt(100)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := l.Transfer(a, b, big.NewInt(150)); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	// The failed transfer left both sides untouched.
	if got := l.BalanceOf(a); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("balance after failed transfer = %s", got)
	}

	if err := l.Transfer(a, b, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := l.BalanceOf(a); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("a = %s", got)
	}
	if got := l.BalanceOf(b); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("b = %s", got)
	}
	if got := l.TotalSupply(); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("supply = %s", got)
	}
}
