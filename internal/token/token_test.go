package token

import (
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/predictiondao/internal/bank"
	"github.com/openpredict/predictiondao/internal/chain"
	"github.com/openpredict/predictiondao/internal/domain"
)

type staticClock struct{ now time.Time }

func (c *staticClock) Now() time.Time { return c.now }

func addr(b byte) common.Address { return common.Address{19: b} }

var (
	owner     = addr(0x01)
	tokenAcct = addr(0x02)
	feeAcct   = addr(0x03)
	alice     = addr(0x0a)
	bob       = addr(0x0b)
)

func newTestToken(t *testing.T, cfg Config) (*Token, *bank.Ledger, *chain.Head) {
	t.Helper()
	ledger := bank.NewLedger()
	head := chain.NewHead()
	clock := &staticClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tok := New(cfg, ledger, head, clock, nil, logger)
	return tok, ledger, head
}

func defaultConfig() Config {
	return Config{
		Owner:         owner,
		Account:       tokenAcct,
		InitialSupply: big.NewInt(1_000_000),
		Rate:          big.NewInt(100), // 100 tokens per native unit
		BuyFeeBps:     100,             // 1%
		SellFeeBps:    100,
		FeeRecipient:  feeAcct,
	}
}

// seedExchange moves half the supply into the exchange account so buys have
// liquidity, and gives alice native funds.
func seedExchange(t *testing.T, tok *Token, ledger *bank.Ledger) {
	t.Helper()
	if err := tok.Transfer(owner, tokenAcct, big.NewInt(500_000)); err != nil {
		t.Fatalf("seed liquidity: %v", err)
	}
	if err := ledger.Deposit(alice, big.NewInt(10_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

func TestTransferAndAllowance(t *testing.T) {
	tok, _, _ := newTestToken(t, defaultConfig())

	if err := tok.Transfer(owner, alice, big.NewInt(1_000)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := tok.BalanceOf(alice); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("alice balance = %s", got)
	}
	if err := tok.Transfer(alice, bob, big.NewInt(2_000)); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}

	// Spending requires an allowance, which decreases as it is used.
	if err := tok.TransferFrom(bob, alice, bob, big.NewInt(100)); !errors.Is(err, domain.ErrInsufficientAllowance) {
		t.Fatalf("want ErrInsufficientAllowance, got %v", err)
	}
	if err := tok.Approve(alice, bob, big.NewInt(300)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := tok.TransferFrom(bob, alice, bob, big.NewInt(200)); err != nil {
		t.Fatalf("transferFrom: %v", err)
	}
	if got := tok.Allowance(alice, bob); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("remaining allowance = %s", got)
	}
	if err := tok.TransferFrom(bob, alice, bob, big.NewInt(200)); !errors.Is(err, domain.ErrInsufficientAllowance) {
		t.Fatalf("want ErrInsufficientAllowance after spend, got %v", err)
	}
}

func TestDelegationCheckpoints(t *testing.T) {
	tok, _, head := newTestToken(t, defaultConfig())

	if err := tok.Transfer(owner, alice, big.NewInt(1_000)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	// Balance alone is not voting power.
	if got := tok.Votes(alice); got.Sign() != 0 {
		t.Fatalf("undelegated votes = %s", got)
	}

	tok.Delegate(alice, alice)
	if got := tok.Votes(alice); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("votes = %s", got)
	}

	snapshot := head.Height()

	// Later transfers move live power but never the snapshot.
	if err := tok.Transfer(alice, bob, big.NewInt(400)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := tok.Votes(alice); got.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("live votes = %s", got)
	}
	if got := tok.PastVotes(alice, snapshot); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("past votes = %s, want 1000", got)
	}
	// Before any checkpoint the answer is zero.
	if got := tok.PastVotes(alice, 0); got.Sign() != 0 {
		t.Fatalf("past votes at genesis = %s", got)
	}
}

func TestDelegateSwitch(t *testing.T) {
	tok, _, _ := newTestToken(t, defaultConfig())
	if err := tok.Transfer(owner, alice, big.NewInt(500)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	tok.Delegate(alice, alice)
	tok.Delegate(alice, bob)

	if got := tok.Votes(alice); got.Sign() != 0 {
		t.Fatalf("old delegate keeps votes: %s", got)
	}
	if got := tok.Votes(bob); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("new delegate votes = %s", got)
	}
}

func TestBuyTokens(t *testing.T) {
	tok, ledger, _ := newTestToken(t, defaultConfig())
	seedExchange(t, tok, ledger)

	// 10 native at rate 100: gross 1000, fee 1% = 10, net 990.
	data, err := tok.BuyTokens(alice, big.NewInt(10))
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if data.Gross.Cmp(big.NewInt(1_000)) != 0 || data.Net.Cmp(big.NewInt(990)) != 0 || data.Fee.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("buy math: %+v", data)
	}
	if got := tok.BalanceOf(alice); got.Cmp(big.NewInt(990)) != 0 {
		t.Fatalf("alice tokens = %s", got)
	}
	if got := tok.BalanceOf(feeAcct); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("fee recipient tokens = %s", got)
	}
	if got := tok.Reserve(); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("reserve = %s", got)
	}
	if got := tok.TotalBought(alice); got.Cmp(big.NewInt(990)) != 0 {
		t.Fatalf("total bought = %s", got)
	}
}

func TestBuyTokensGuards(t *testing.T) {
	tok, ledger, _ := newTestToken(t, defaultConfig())
	seedExchange(t, tok, ledger)

	if _, err := tok.BuyTokens(alice, big.NewInt(0)); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("want ErrInvalidAmount, got %v", err)
	}
	// Bob has no native funds.
	if _, err := tok.BuyTokens(bob, big.NewInt(10)); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	// Exchange only holds 500000 tokens.
	if err := ledger.Deposit(alice, big.NewInt(100_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := tok.BuyTokens(alice, big.NewInt(10_000)); !errors.Is(err, domain.ErrInsufficientTokenLiquidity) {
		t.Fatalf("want ErrInsufficientTokenLiquidity, got %v", err)
	}
}

func TestBuyNetZero(t *testing.T) {
	cfg := defaultConfig()
	cfg.Rate = big.NewInt(1)
	cfg.BuyFeeBps = bpsDenom // 100% fee eats the whole purchase
	tok, ledger, _ := newTestToken(t, cfg)
	seedExchange(t, tok, ledger)

	if _, err := tok.BuyTokens(alice, big.NewInt(5)); !errors.Is(err, domain.ErrNetZero) {
		t.Fatalf("want ErrNetZero, got %v", err)
	}
}

func TestBuyLimits(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxBuyPerTx = big.NewInt(500)
	cfg.MaxBuyPerAddress = big.NewInt(1_200)
	tok, ledger, _ := newTestToken(t, cfg)
	seedExchange(t, tok, ledger)

	// net = 990 > per-tx 500.
	if _, err := tok.BuyTokens(alice, big.NewInt(10)); !errors.Is(err, domain.ErrExceedsMaxBuyPerTx) {
		t.Fatalf("want ErrExceedsMaxBuyPerTx, got %v", err)
	}
	// net = 495 fits; three of them breach the per-address cap.
	for i := 0; i < 2; i++ {
		if _, err := tok.BuyTokens(alice, big.NewInt(5)); err != nil {
			t.Fatalf("buy %d: %v", i, err)
		}
	}
	if _, err := tok.BuyTokens(alice, big.NewInt(5)); !errors.Is(err, domain.ErrExceedsMaxBuyPerAddress) {
		t.Fatalf("want ErrExceedsMaxBuyPerAddress, got %v", err)
	}

	// Zeroing the limits disables them.
	if err := tok.SetLimits(owner, big.NewInt(0), big.NewInt(0), big.NewInt(0)); err != nil {
		t.Fatalf("set limits: %v", err)
	}
	if _, err := tok.BuyTokens(alice, big.NewInt(10)); err != nil {
		t.Fatalf("buy after disabling limits: %v", err)
	}
}

func TestSellTokens(t *testing.T) {
	tok, ledger, _ := newTestToken(t, defaultConfig())
	seedExchange(t, tok, ledger)
	if _, err := tok.BuyTokens(alice, big.NewInt(10)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	nativeBefore := ledger.BalanceOf(alice)

	// 500 tokens at rate 100: gross 5 native, fee 1% floors to 0, net 5.
	data, err := tok.SellTokens(alice, big.NewInt(500))
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if data.Gross.Cmp(big.NewInt(5)) != 0 || data.Net.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("sell math: %+v", data)
	}
	if got := new(big.Int).Sub(ledger.BalanceOf(alice), nativeBefore); got.Cmp(data.Net) != 0 {
		t.Fatalf("native credited = %s", got)
	}
	if got := tok.BalanceOf(alice); got.Cmp(big.NewInt(490)) != 0 {
		t.Fatalf("alice tokens = %s", got)
	}
}

func TestSellTooSmall(t *testing.T) {
	tok, ledger, _ := newTestToken(t, defaultConfig())
	seedExchange(t, tok, ledger)
	if _, err := tok.BuyTokens(alice, big.NewInt(10)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	// 50 tokens at rate 100 floors to zero native.
	if _, err := tok.SellTokens(alice, big.NewInt(50)); !errors.Is(err, domain.ErrTooSmall) {
		t.Fatalf("want ErrTooSmall, got %v", err)
	}
}

func TestSellReserveGuard(t *testing.T) {
	tok, _, _ := newTestToken(t, defaultConfig())
	// Alice gets tokens without the exchange ever collecting native reserve.
	if err := tok.Transfer(owner, alice, big.NewInt(10_000)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := tok.SellTokens(alice, big.NewInt(10_000)); !errors.Is(err, domain.ErrInsufficientReserve) {
		t.Fatalf("want ErrInsufficientReserve, got %v", err)
	}
}

func TestSellPerTxLimit(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxSellPerTx = big.NewInt(3)
	tok, ledger, _ := newTestToken(t, cfg)
	seedExchange(t, tok, ledger)
	if _, err := tok.BuyTokens(alice, big.NewInt(10)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	// net proceeds 5 exceed the 3 cap.
	if _, err := tok.SellTokens(alice, big.NewInt(500)); !errors.Is(err, domain.ErrExceedsMaxSellPerTx) {
		t.Fatalf("want ErrExceedsMaxSellPerTx, got %v", err)
	}
	if _, err := tok.SellTokens(alice, big.NewInt(300)); err != nil {
		t.Fatalf("sell under cap: %v", err)
	}
}

func TestOwnerAdministration(t *testing.T) {
	tok, _, _ := newTestToken(t, defaultConfig())

	if err := tok.SetRate(alice, big.NewInt(50)); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("want ErrNotOwner, got %v", err)
	}
	if err := tok.SetRate(owner, big.NewInt(50)); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if got := tok.Rate(); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("rate = %s", got)
	}
	if err := tok.SetFees(owner, bpsDenom+1, 0); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("want ErrInvalidAmount, got %v", err)
	}
	if err := tok.SetFees(owner, 200, 300); err != nil {
		t.Fatalf("set fees: %v", err)
	}
	if err := tok.SetFeeRecipient(alice, bob); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("want ErrNotOwner, got %v", err)
	}
	if err := tok.SetFeeRecipient(owner, bob); err != nil {
		t.Fatalf("set fee recipient: %v", err)
	}
}

func TestOwnerWithdrawals(t *testing.T) {
	tok, ledger, _ := newTestToken(t, defaultConfig())
	seedExchange(t, tok, ledger)
	if _, err := tok.BuyTokens(alice, big.NewInt(10)); err != nil {
		t.Fatalf("buy: %v", err)
	}

	if err := tok.WithdrawEther(alice, big.NewInt(1), alice); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("want ErrNotOwner, got %v", err)
	}
	if err := tok.WithdrawEther(owner, big.NewInt(5), bob); err != nil {
		t.Fatalf("withdraw ether: %v", err)
	}
	if got := ledger.BalanceOf(bob); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("bob native = %s", got)
	}
	if err := tok.WithdrawEther(owner, big.NewInt(1_000), bob); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	if err := tok.WithdrawTokens(owner, big.NewInt(1_000), bob); err != nil {
		t.Fatalf("withdraw tokens: %v", err)
	}
	if got := tok.BalanceOf(bob); got.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("bob tokens = %s", got)
	}
}
