package engine

import (
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/predictiondao/internal/bank"
	"github.com/openpredict/predictiondao/internal/chain"
	"github.com/openpredict/predictiondao/internal/domain"
	"github.com/openpredict/predictiondao/internal/token"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *memSink) Emit(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *memSink) byType(t domain.EventType) []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type testEnv struct {
	eng    *Engine
	gov    *token.Token
	ledger *bank.Ledger
	clock  *fakeClock
	sink   *memSink

	owner, engineAcct, tokenAcct common.Address
	alice, bob, carol, dave      common.Address
}

func addr(b byte) common.Address { return common.Address{19: b} }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		clock:      &fakeClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		sink:       &memSink{},
		owner:      addr(0x01),
		engineAcct: addr(0x02),
		tokenAcct:  addr(0x03),
		alice:      addr(0x0a),
		bob:        addr(0x0b),
		carol:      addr(0x0c),
		dave:       addr(0x0d),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.ledger = bank.NewLedger()
	head := chain.NewHead()

	env.gov = token.New(token.Config{
		Owner:         env.owner,
		Account:       env.tokenAcct,
		InitialSupply: big.NewInt(1_000_000),
		Rate:          big.NewInt(100),
		BuyFeeBps:     100,
		SellFeeBps:    100,
		FeeRecipient:  env.owner,
	}, env.ledger, head, env.clock, env.sink, logger)

	env.eng = New(Config{
		Owner:             env.owner,
		Account:           env.engineAcct,
		CreatorBond:       big.NewInt(100),
		ResolverBond:      big.NewInt(50),
		FeeBps:            200,
		ReturnFeeBps:      8000,
		SoloBonusBps:      500,
		ResolverRewardBps: 100,
		DisputeWindow:     24 * time.Hour,
		VotingPeriod:      48 * time.Hour,
	}, env.gov, env.ledger, head, env.clock, env.sink, logger)

	// Native funds for the actors and a solvency cushion for the engine,
	// mirroring a funded deployment.
	for _, a := range []common.Address{env.alice, env.bob, env.carol, env.dave} {
		if err := env.ledger.Deposit(a, big.NewInt(1_000_000)); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	if err := env.ledger.Deposit(env.owner, big.NewInt(10_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := env.eng.Receive(env.owner, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("seed vault: %v", err)
	}
	return env
}

// fundBond hands addr governance tokens and approves the engine to pull the
// bond.
func (env *testEnv) fundBond(t *testing.T, a common.Address, amount int64) {
	t.Helper()
	if err := env.gov.Transfer(env.owner, a, big.NewInt(amount)); err != nil {
		t.Fatalf("gov transfer: %v", err)
	}
	if err := env.gov.Approve(a, env.engineAcct, big.NewInt(amount)); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

// openMarket creates a 1h market by alice with the standard bond.
func (env *testEnv) openMarket(t *testing.T) *domain.Market {
	t.Helper()
	env.fundBond(t, env.alice, 100)
	m, err := env.eng.CreateMarket(env.alice, "will it rain tomorrow", time.Hour)
	if err != nil {
		t.Fatalf("create market: %v", err)
	}
	return m
}

// resolveBy moves past end time and has a resolve the market.
func (env *testEnv) resolveBy(t *testing.T, a common.Address, marketID uint64, outcome bool) {
	t.Helper()
	env.clock.Advance(2 * time.Hour)
	env.fundBond(t, a, 50)
	if err := env.eng.ResolveMarket(a, marketID, outcome); err != nil {
		t.Fatalf("resolve: %v", err)
	}
}

func TestCreateMarketValidation(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.eng.CreateMarket(env.alice, "q", 0); !errors.Is(err, domain.ErrInvalidDuration) {
		t.Fatalf("want ErrInvalidDuration, got %v", err)
	}
	// No tokens approved yet.
	if _, err := env.eng.CreateMarket(env.alice, "q", time.Hour); !errors.Is(err, domain.ErrInsufficientBond) {
		t.Fatalf("want ErrInsufficientBond, got %v", err)
	}

	m := env.openMarket(t)
	if m.ID != 0 {
		t.Fatalf("first market id = %d", m.ID)
	}
	if got := env.gov.BalanceOf(env.engineAcct); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("engine should hold the creator bond, has %s", got)
	}
	if env.eng.MarketsCount() != 1 {
		t.Fatalf("markets count = %d", env.eng.MarketsCount())
	}
	if len(env.sink.byType(domain.EventMarketCreated)) != 1 {
		t.Fatal("missing MarketCreated event")
	}
}

func TestPlaceBetLifecycle(t *testing.T) {
	env := newTestEnv(t)
	m := env.openMarket(t)

	if err := env.eng.PlaceBet(env.bob, m.ID, true, big.NewInt(0)); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("want ErrInvalidAmount, got %v", err)
	}
	if err := env.eng.PlaceBet(env.bob, 99, true, big.NewInt(10)); !errors.Is(err, domain.ErrInvalidMarket) {
		t.Fatalf("want ErrInvalidMarket, got %v", err)
	}
	if err := env.eng.PlaceBet(env.bob, m.ID, true, big.NewInt(10_000)); err != nil {
		t.Fatalf("bet: %v", err)
	}
	if err := env.eng.PlaceBet(env.carol, m.ID, false, big.NewInt(5_000)); err != nil {
		t.Fatalf("bet: %v", err)
	}

	total, err := env.eng.TotalPool(m.ID)
	if err != nil || total.Cmp(big.NewInt(15_000)) != 0 {
		t.Fatalf("total pool = %s, err %v", total, err)
	}

	// Betting closes at end time.
	env.clock.Advance(2 * time.Hour)
	if err := env.eng.PlaceBet(env.bob, m.ID, true, big.NewInt(10)); !errors.Is(err, domain.ErrMarketClosed) {
		t.Fatalf("want ErrMarketClosed, got %v", err)
	}
}

func TestResolveMarketGuards(t *testing.T) {
	env := newTestEnv(t)
	m := env.openMarket(t)
	env.fundBond(t, env.carol, 50)

	if err := env.eng.ResolveMarket(env.carol, m.ID, true); !errors.Is(err, domain.ErrBettingNotClosed) {
		t.Fatalf("want ErrBettingNotClosed, got %v", err)
	}
	env.clock.Advance(2 * time.Hour)
	if err := env.eng.ResolveMarket(env.carol, m.ID, true); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	env.fundBond(t, env.dave, 50)
	if err := env.eng.ResolveMarket(env.dave, m.ID, false); !errors.Is(err, domain.ErrAlreadyResolved) {
		t.Fatalf("want ErrAlreadyResolved, got %v", err)
	}

	got, err := env.eng.GetMarket(m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Resolved || !got.Outcome || got.Resolver != env.carol {
		t.Fatalf("bad resolution state: %+v", got)
	}
	if got.SnapshotBlock == 0 {
		t.Fatal("snapshot height not captured")
	}
}

func TestWithdrawVersusCase(t *testing.T) {
	env := newTestEnv(t)
	m := env.openMarket(t)

	if err := env.eng.PlaceBet(env.bob, m.ID, true, big.NewInt(10_000)); err != nil {
		t.Fatalf("bet: %v", err)
	}
	if err := env.eng.PlaceBet(env.carol, m.ID, false, big.NewInt(5_000)); err != nil {
		t.Fatalf("bet: %v", err)
	}
	env.resolveBy(t, env.dave, m.ID, true)

	// Inside the dispute window the market is not finalized but winners can
	// already settle.
	vaultBefore := env.eng.VaultBalance()
	bobBefore := env.ledger.BalanceOf(env.bob)

	// share = 10000 * 5000 / 10000, gross = 15000, fee = 2% = 300.
	payout, err := env.eng.WithdrawWinnings(env.bob, m.ID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if payout.Cmp(big.NewInt(14_700)) != 0 {
		t.Fatalf("winner payout = %s, want 14700", payout)
	}
	if got := env.ledger.BalanceOf(env.bob); new(big.Int).Sub(got, bobBefore).Cmp(payout) != 0 {
		t.Fatal("payout not credited to winner")
	}

	// Loser refund: 80% back, remainder to the vault.
	payout, err = env.eng.WithdrawWinnings(env.carol, m.ID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if payout.Cmp(big.NewInt(4_000)) != 0 {
		t.Fatalf("loser refund = %s, want 4000", payout)
	}

	// Vault gained the 300 settlement fee and the 1000 loser remainder.
	gain := new(big.Int).Sub(env.eng.VaultBalance(), vaultBefore)
	if gain.Cmp(big.NewInt(1_300)) != 0 {
		t.Fatalf("vault gain = %s, want 1300", gain)
	}
}

func TestWithdrawSoloCase(t *testing.T) {
	env := newTestEnv(t)
	m := env.openMarket(t)

	if err := env.eng.PlaceBet(env.bob, m.ID, true, big.NewInt(10_000)); err != nil {
		t.Fatalf("bet: %v", err)
	}
	env.resolveBy(t, env.dave, m.ID, true)
	env.clock.Advance(25 * time.Hour)

	// Finalization at withdraw time pays the resolver first: 1% of 10000.
	vaultAtSettle := env.eng.VaultBalance()

	payout, err := env.eng.WithdrawWinnings(env.bob, m.ID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	// fee = 2% of stake = 200, bonus pool = 5% of vault, sole winner takes
	// all of it.
	bonus := mulBps(vaultAtSettle, 500)
	want := new(big.Int).Add(big.NewInt(9_800), bonus)
	if payout.Cmp(want) != 0 {
		t.Fatalf("solo payout = %s, want %s", payout, want)
	}

	wantVault := new(big.Int).Add(vaultAtSettle, big.NewInt(200))
	wantVault.Sub(wantVault, bonus)
	if env.eng.VaultBalance().Cmp(wantVault) != 0 {
		t.Fatalf("vault = %s, want %s", env.eng.VaultBalance(), wantVault)
	}
}

func TestWithdrawGuards(t *testing.T) {
	env := newTestEnv(t)
	m := env.openMarket(t)

	if _, err := env.eng.WithdrawWinnings(env.bob, m.ID); !errors.Is(err, domain.ErrMarketNotResolved) {
		t.Fatalf("want ErrMarketNotResolved, got %v", err)
	}

	if err := env.eng.PlaceBet(env.bob, m.ID, true, big.NewInt(1_000)); err != nil {
		t.Fatalf("bet: %v", err)
	}
	env.resolveBy(t, env.dave, m.ID, true)

	// No stake at all.
	if _, err := env.eng.WithdrawWinnings(env.carol, m.ID); !errors.Is(err, domain.ErrNoBetsInMarket) {
		t.Fatalf("want ErrNoBetsInMarket, got %v", err)
	}

	if _, err := env.eng.WithdrawWinnings(env.bob, m.ID); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	// Second settlement finds nothing left.
	if _, err := env.eng.WithdrawWinnings(env.bob, m.ID); !errors.Is(err, domain.ErrNoBetsInMarket) {
		t.Fatalf("want ErrNoBetsInMarket on double withdraw, got %v", err)
	}
}

func TestFinalizeResolve(t *testing.T) {
	env := newTestEnv(t)
	m := env.openMarket(t)
	if err := env.eng.PlaceBet(env.bob, m.ID, true, big.NewInt(10_000)); err != nil {
		t.Fatalf("bet: %v", err)
	}
	env.resolveBy(t, env.dave, m.ID, true)

	if err := env.eng.FinalizeResolve(env.bob, m.ID); !errors.Is(err, domain.ErrDisputeWindowOpen) {
		t.Fatalf("want ErrDisputeWindowOpen, got %v", err)
	}

	env.clock.Advance(25 * time.Hour)
	daveGov := env.gov.BalanceOf(env.dave)
	daveNative := env.ledger.BalanceOf(env.dave)
	aliceGov := env.gov.BalanceOf(env.alice)

	// Anyone may trigger finalization; payees come from the record.
	if err := env.eng.FinalizeResolve(env.carol, m.ID); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	// Resolver bond back plus 1% of the 10000 pool.
	if got := new(big.Int).Sub(env.gov.BalanceOf(env.dave), daveGov); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("resolver bond return = %s", got)
	}
	if got := new(big.Int).Sub(env.ledger.BalanceOf(env.dave), daveNative); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("resolver reward = %s, want 100", got)
	}
	// Creator bond home.
	if got := new(big.Int).Sub(env.gov.BalanceOf(env.alice), aliceGov); got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("creator bond return = %s", got)
	}

	ok, err := env.eng.IsFinalized(m.ID)
	if err != nil || !ok {
		t.Fatalf("finalized = %v, err %v", ok, err)
	}
	if err := env.eng.FinalizeResolve(env.carol, m.ID); !errors.Is(err, domain.ErrAlreadyPaid) {
		t.Fatalf("want ErrAlreadyPaid, got %v", err)
	}
}

func TestFinalizeUnresolved(t *testing.T) {
	env := newTestEnv(t)
	m := env.openMarket(t)
	if err := env.eng.FinalizeResolve(env.bob, m.ID); !errors.Is(err, domain.ErrNotResolvedYet) {
		t.Fatalf("want ErrNotResolvedYet, got %v", err)
	}
}

// disputeSetup resolves a 10000-vs-5000 market YES by dave and gives bob
// delegated voting power before resolution.
func disputeSetup(t *testing.T, env *testEnv) *domain.Market {
	t.Helper()
	m := env.openMarket(t)
	if err := env.eng.PlaceBet(env.bob, m.ID, false, big.NewInt(5_000)); err != nil {
		t.Fatalf("bet: %v", err)
	}
	if err := env.eng.PlaceBet(env.carol, m.ID, true, big.NewInt(10_000)); err != nil {
		t.Fatalf("bet: %v", err)
	}
	if err := env.gov.Transfer(env.owner, env.bob, big.NewInt(1_000)); err != nil {
		t.Fatalf("gov transfer: %v", err)
	}
	env.gov.Delegate(env.bob, env.bob)
	env.resolveBy(t, env.dave, m.ID, true)
	return m
}

func TestDisputeLifecycle(t *testing.T) {
	env := newTestEnv(t)
	m := disputeSetup(t, env)

	if _, err := env.eng.CreateDisputeProposal(env.bob, m.ID, "resolved wrong", true); !errors.Is(err, domain.ErrMustDisagree) {
		t.Fatalf("want ErrMustDisagree, got %v", err)
	}
	p, err := env.eng.CreateDisputeProposal(env.bob, m.ID, "resolved wrong", false)
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if _, err := env.eng.CreateDisputeProposal(env.carol, m.ID, "me too", false); !errors.Is(err, domain.ErrMarketAlreadyDisputed) {
		t.Fatalf("want ErrMarketAlreadyDisputed, got %v", err)
	}

	st, err := env.eng.MarketStatus(m.ID)
	if err != nil || st != domain.MarketStatusDisputed {
		t.Fatalf("status = %s, err %v", st, err)
	}

	// A pending dispute blocks finalization even after the window.
	env.clock.Advance(25 * time.Hour)
	if err := env.eng.FinalizeResolve(env.bob, m.ID); !errors.Is(err, domain.ErrHasActiveDispute) {
		t.Fatalf("want ErrHasActiveDispute, got %v", err)
	}

	// Voting power is capped by the snapshot balance.
	if err := env.eng.Vote(env.bob, p.ID, true, big.NewInt(2_000)); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("want ErrInvalidAmount over snapshot power, got %v", err)
	}
	if err := env.eng.Vote(env.bob, p.ID, true, big.NewInt(600)); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := env.eng.Vote(env.bob, p.ID, true, big.NewInt(500)); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("want ErrInvalidAmount on exhausted power, got %v", err)
	}

	used, err := env.eng.UsedVotingPower(p.ID, env.bob)
	if err != nil || used.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("used power = %s, err %v", used, err)
	}

	// Executor gating and deadline.
	if err := env.eng.ExecuteProposal(env.bob, p.ID); !errors.Is(err, domain.ErrNotAuthorizedExecutor) {
		t.Fatalf("want ErrNotAuthorizedExecutor, got %v", err)
	}
	if err := env.eng.ExecuteProposal(env.owner, p.ID); !errors.Is(err, domain.ErrVotingNotFinished) {
		t.Fatalf("want ErrVotingNotFinished, got %v", err)
	}

	env.clock.Advance(48 * time.Hour)
	daveGov := env.gov.BalanceOf(env.dave)
	if err := env.eng.ExecuteProposal(env.owner, p.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if err := env.eng.ExecuteProposal(env.owner, p.ID); !errors.Is(err, domain.ErrAlreadyExecuted) {
		t.Fatalf("want ErrAlreadyExecuted, got %v", err)
	}

	// Passed: outcome flipped and the resolver bond slashed 50/50.
	got, err := env.eng.GetMarket(m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Outcome {
		t.Fatal("outcome should have flipped to NO")
	}
	if got.RelatedProposal != nil {
		t.Fatal("dispute link should clear on execution")
	}
	if ret := new(big.Int).Sub(env.gov.BalanceOf(env.dave), daveGov); ret.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("slashed resolver got %s back, want 25", ret)
	}
	if env.eng.VaultGov().Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("vault gov = %s, want 25", env.eng.VaultGov())
	}

	// Bob's NO bet now wins the whole YES pool.
	payout, err := env.eng.WithdrawWinnings(env.bob, m.ID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if payout.Cmp(big.NewInt(14_700)) != 0 {
		t.Fatalf("payout after flip = %s, want 14700", payout)
	}
}

func TestDisputeFailsAndTieKeepsOutcome(t *testing.T) {
	for _, tc := range []struct {
		name         string
		votesFor     int64
		votesAgainst int64
	}{
		{"against wins", 200, 400},
		{"tie", 300, 300},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			m := disputeSetup(t, env)

			// Bob splits his snapshot power across both sides to shape the
			// tally.
			p, err := env.eng.CreateDisputeProposal(env.bob, m.ID, "wrong", false)
			if err != nil {
				t.Fatalf("dispute: %v", err)
			}
			if err := env.eng.Vote(env.bob, p.ID, true, big.NewInt(tc.votesFor)); err != nil {
				t.Fatalf("vote: %v", err)
			}
			if err := env.eng.Vote(env.bob, p.ID, false, big.NewInt(tc.votesAgainst)); err != nil {
				t.Fatalf("vote: %v", err)
			}

			env.clock.Advance(73 * time.Hour)
			daveGov := env.gov.BalanceOf(env.dave)
			daveNative := env.ledger.BalanceOf(env.dave)
			if err := env.eng.ExecuteProposal(env.owner, p.ID); err != nil {
				t.Fatalf("execute: %v", err)
			}

			got, err := env.eng.GetMarket(m.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !got.Outcome {
				t.Fatal("outcome should stand")
			}
			// Bond whole plus 1% of the 15000 pool.
			if ret := new(big.Int).Sub(env.gov.BalanceOf(env.dave), daveGov); ret.Cmp(big.NewInt(50)) != 0 {
				t.Fatalf("bond return = %s, want 50", ret)
			}
			if rw := new(big.Int).Sub(env.ledger.BalanceOf(env.dave), daveNative); rw.Cmp(big.NewInt(150)) != 0 {
				t.Fatalf("reward = %s, want 150", rw)
			}
			if env.eng.VaultGov().Sign() != 0 {
				t.Fatalf("nothing should be slashed, vault gov = %s", env.eng.VaultGov())
			}
		})
	}
}

func TestWithdrawBlockedByPendingDispute(t *testing.T) {
	env := newTestEnv(t)
	m := disputeSetup(t, env)

	p, err := env.eng.CreateDisputeProposal(env.bob, m.ID, "resolved wrong", false)
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}

	// The provisional outcome must not pay out while a flip is still
	// possible; otherwise both sides could drain the same losing pool.
	if _, err := env.eng.WithdrawWinnings(env.carol, m.ID); !errors.Is(err, domain.ErrHasActiveDispute) {
		t.Fatalf("want ErrHasActiveDispute, got %v", err)
	}
	if ok, err := env.eng.CanWithdraw(m.ID, env.carol); err != nil || ok {
		t.Fatalf("can withdraw = %v, err %v, want false under pending dispute", ok, err)
	}

	if err := env.eng.Vote(env.bob, p.ID, true, big.NewInt(600)); err != nil {
		t.Fatalf("vote: %v", err)
	}
	env.clock.Advance(73 * time.Hour)
	if err := env.eng.ExecuteProposal(env.owner, p.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	// The flip held: only bob settles as the winner, carol as the loser.
	payout, err := env.eng.WithdrawWinnings(env.bob, m.ID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if payout.Cmp(big.NewInt(14_700)) != 0 {
		t.Fatalf("winner payout = %s, want 14700", payout)
	}
	refund, err := env.eng.WithdrawWinnings(env.carol, m.ID)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if refund.Cmp(big.NewInt(8_000)) != 0 {
		t.Fatalf("loser refund = %s, want 8000", refund)
	}
}

func TestDisputeWindowGuards(t *testing.T) {
	env := newTestEnv(t)
	m := disputeSetup(t, env)

	env.clock.Advance(25 * time.Hour)
	if _, err := env.eng.CreateDisputeProposal(env.bob, m.ID, "late", false); !errors.Is(err, domain.ErrDisputeWindowClosed) {
		t.Fatalf("want ErrDisputeWindowClosed, got %v", err)
	}
}

func TestVoteAfterDeadline(t *testing.T) {
	env := newTestEnv(t)
	m := disputeSetup(t, env)
	p, err := env.eng.CreateDisputeProposal(env.bob, m.ID, "wrong", false)
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	env.clock.Advance(49 * time.Hour)
	if err := env.eng.Vote(env.bob, p.ID, true, big.NewInt(10)); !errors.Is(err, domain.ErrVotingClosed) {
		t.Fatalf("want ErrVotingClosed, got %v", err)
	}
}

func TestSnapshotPowerIsImmutable(t *testing.T) {
	env := newTestEnv(t)
	m := disputeSetup(t, env)
	p, err := env.eng.CreateDisputeProposal(env.bob, m.ID, "wrong", false)
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}

	// Tokens acquired after resolution carry no weight on this dispute.
	if err := env.gov.Transfer(env.owner, env.bob, big.NewInt(5_000)); err != nil {
		t.Fatalf("gov transfer: %v", err)
	}
	if err := env.eng.Vote(env.bob, p.ID, true, big.NewInt(1_001)); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("post-snapshot tokens must not count, got %v", err)
	}
	if err := env.eng.Vote(env.bob, p.ID, true, big.NewInt(1_000)); err != nil {
		t.Fatalf("snapshot power should still work: %v", err)
	}
}

func TestExecutorAdministration(t *testing.T) {
	env := newTestEnv(t)

	if err := env.eng.SetExecutor(env.bob, env.bob); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("want ErrNotOwner, got %v", err)
	}
	if err := env.eng.SetExecutor(env.owner, env.dave); err != nil {
		t.Fatalf("set executor: %v", err)
	}
	if !env.eng.IsExecutor(env.dave) {
		t.Fatal("dave should be an executor")
	}
	if err := env.eng.RemoveExecutor(env.owner, env.dave); err != nil {
		t.Fatalf("remove executor: %v", err)
	}
	if env.eng.IsExecutor(env.dave) {
		t.Fatal("dave should be removed")
	}
	if !env.eng.IsExecutor(env.owner) {
		t.Fatal("owner is always authorized")
	}
}

func TestVaultWithdraw(t *testing.T) {
	env := newTestEnv(t)
	before := env.eng.VaultBalance()

	if err := env.eng.WithdrawVault(env.bob, big.NewInt(10), env.bob); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("want ErrNotOwner, got %v", err)
	}
	over := new(big.Int).Add(before, big.NewInt(1))
	if err := env.eng.WithdrawVault(env.owner, over, env.owner); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("want ErrInsufficientFunds, got %v", err)
	}
	if err := env.eng.WithdrawVault(env.owner, big.NewInt(500), env.dave); err != nil {
		t.Fatalf("withdraw vault: %v", err)
	}
	want := new(big.Int).Sub(before, big.NewInt(500))
	if env.eng.VaultBalance().Cmp(want) != 0 {
		t.Fatalf("vault = %s, want %s", env.eng.VaultBalance(), want)
	}
}

func TestLedgerConservation(t *testing.T) {
	env := newTestEnv(t)
	supply := env.ledger.TotalSupply()

	m := env.openMarket(t)
	if err := env.eng.PlaceBet(env.bob, m.ID, true, big.NewInt(10_000)); err != nil {
		t.Fatalf("bet: %v", err)
	}
	if err := env.eng.PlaceBet(env.carol, m.ID, false, big.NewInt(5_000)); err != nil {
		t.Fatalf("bet: %v", err)
	}
	env.resolveBy(t, env.dave, m.ID, true)
	env.clock.Advance(25 * time.Hour)
	if _, err := env.eng.WithdrawWinnings(env.bob, m.ID); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if _, err := env.eng.WithdrawWinnings(env.carol, m.ID); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	// Transfers only move value; the native supply never changes.
	if env.ledger.TotalSupply().Cmp(supply) != 0 {
		t.Fatalf("supply drifted: %s -> %s", supply, env.ledger.TotalSupply())
	}
}

func TestMarketStatusDerivation(t *testing.T) {
	env := newTestEnv(t)
	m := env.openMarket(t)

	st, _ := env.eng.MarketStatus(m.ID)
	if st != domain.MarketStatusOpen {
		t.Fatalf("status = %s, want open", st)
	}
	env.clock.Advance(2 * time.Hour)
	st, _ = env.eng.MarketStatus(m.ID)
	if st != domain.MarketStatusAwaitingResolution {
		t.Fatalf("status = %s, want awaiting_resolution", st)
	}
	env.fundBond(t, env.dave, 50)
	if err := env.eng.ResolveMarket(env.dave, m.ID, true); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	st, _ = env.eng.MarketStatus(m.ID)
	if st != domain.MarketStatusDisputeWindow {
		t.Fatalf("status = %s, want dispute_window", st)
	}
	env.clock.Advance(25 * time.Hour)
	if err := env.eng.FinalizeResolve(env.bob, m.ID); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	st, _ = env.eng.MarketStatus(m.ID)
	if st != domain.MarketStatusFinalized {
		t.Fatalf("status = %s, want finalized", st)
	}
}

func TestResolverStatusView(t *testing.T) {
	env := newTestEnv(t)
	m := env.openMarket(t)
	if err := env.eng.PlaceBet(env.bob, m.ID, true, big.NewInt(10_000)); err != nil {
		t.Fatalf("bet: %v", err)
	}
	env.resolveBy(t, env.dave, m.ID, true)

	st, err := env.eng.ResolverStatus(m.ID)
	if err != nil {
		t.Fatalf("resolver status: %v", err)
	}
	if st.Resolver != env.dave || st.Paid {
		t.Fatalf("bad status: %+v", st)
	}
	if st.PendingReward.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("pending reward = %s, want 100", st.PendingReward)
	}
}
