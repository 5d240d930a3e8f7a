package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/predictiondao/internal/bank"
	"github.com/openpredict/predictiondao/internal/chain"
	"github.com/openpredict/predictiondao/internal/engine"
	"github.com/openpredict/predictiondao/internal/service"
	"github.com/openpredict/predictiondao/internal/token"
)

var (
	owner      = common.Address{19: 0x01}
	engineAcct = common.Address{19: 0x02}
	tokenAcct  = common.Address{19: 0x03}
	alice      = common.Address{19: 0x0a}
)

type staticClock struct{ now time.Time }

func (c *staticClock) Now() time.Time { return c.now }

func newHandlers(t *testing.T) (*MarketHandler, *TokenHandler, *AdminHandler) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &staticClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	head := chain.NewHead()
	ledger := bank.NewLedger()

	gov := token.New(token.Config{
		Owner:         owner,
		Account:       tokenAcct,
		InitialSupply: big.NewInt(1_000_000),
		Rate:          big.NewInt(100),
	}, ledger, head, clock, nil, logger)

	eng := engine.New(engine.Config{
		Owner:         owner,
		Account:       engineAcct,
		CreatorBond:   big.NewInt(100),
		ResolverBond:  big.NewInt(50),
		FeeBps:        200,
		ReturnFeeBps:  8000,
		DisputeWindow: 24 * time.Hour,
		VotingPeriod:  48 * time.Hour,
	}, gov, ledger, head, clock, nil, logger)

	if err := ledger.Deposit(alice, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := gov.Transfer(owner, alice, big.NewInt(1000)); err != nil {
		t.Fatalf("gov transfer: %v", err)
	}
	// Stock the exchange with sellable inventory.
	if err := gov.Transfer(owner, tokenAcct, big.NewInt(500_000)); err != nil {
		t.Fatalf("gov transfer: %v", err)
	}
	if err := gov.Approve(alice, engineAcct, big.NewInt(1000)); err != nil {
		t.Fatalf("approve: %v", err)
	}

	markets := service.NewMarketService(eng, nil, nil, nil, nil, nil, logger)
	tokens := service.NewTokenService(gov, nil, logger)

	return NewMarketHandler(markets, logger),
		NewTokenHandler(tokens, logger),
		NewAdminHandler(markets, tokens, logger)
}

func doJSON(t *testing.T, fn http.HandlerFunc, method, path, caller, body string, pathVals map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	r := httptest.NewRequest(method, path, strings.NewReader(body))
	if caller != "" {
		r.Header.Set("X-Caller", caller)
	}
	for k, v := range pathVals {
		r.SetPathValue(k, v)
	}

	rec := httptest.NewRecorder()
	fn(rec, r)

	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("response not JSON: %v: %s", err, rec.Body.String())
		}
	}
	return rec, out
}

func TestCreateAndGetMarket(t *testing.T) {
	mh, _, _ := newHandlers(t)

	rec, body := doJSON(t, mh.CreateMarket, http.MethodPost, "/api/markets",
		alice.Hex(), `{"question":"will it rain tomorrow","duration_seconds":3600}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d, body %v", rec.Code, body)
	}
	if body["status"] != "open" {
		t.Fatalf("new market status %v, want open", body["status"])
	}

	rec, body = doJSON(t, mh.GetMarket, http.MethodGet, "/api/markets/0", "", "", map[string]string{"id": "0"})
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}
	if body["question"] != "will it rain tomorrow" {
		t.Fatalf("question = %v", body["question"])
	}

	rec, _ = doJSON(t, mh.GetMarket, http.MethodGet, "/api/markets/99", "", "", map[string]string{"id": "99"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing market: status %d, want 404", rec.Code)
	}
}

func TestPlaceBetEndpoint(t *testing.T) {
	mh, _, _ := newHandlers(t)

	doJSON(t, mh.CreateMarket, http.MethodPost, "/api/markets",
		alice.Hex(), `{"question":"q","duration_seconds":3600}`, nil)

	rec, _ := doJSON(t, mh.PlaceBet, http.MethodPost, "/api/markets/0/bets",
		alice.Hex(), `{"yes":true,"amount":"5000"}`, map[string]string{"id": "0"})
	if rec.Code != http.StatusOK {
		t.Fatalf("bet: status %d", rec.Code)
	}

	rec, body := doJSON(t, mh.GetBet, http.MethodGet, "/api/markets/0/bets/"+alice.Hex(),
		"", "", map[string]string{"id": "0", "address": alice.Hex()})
	if rec.Code != http.StatusOK {
		t.Fatalf("get bet: status %d", rec.Code)
	}
	if body["yes"] != "5000" {
		t.Fatalf("yes stake = %v, want 5000", body["yes"])
	}

	// Missing caller header is a 400.
	rec, _ = doJSON(t, mh.PlaceBet, http.MethodPost, "/api/markets/0/bets",
		"", `{"yes":true,"amount":"1"}`, map[string]string{"id": "0"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("caller-less bet: status %d, want 400", rec.Code)
	}

	// Non-numeric amount is a 400.
	rec, _ = doJSON(t, mh.PlaceBet, http.MethodPost, "/api/markets/0/bets",
		alice.Hex(), `{"yes":true,"amount":"lots"}`, map[string]string{"id": "0"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad amount: status %d, want 400", rec.Code)
	}
}

func TestTokenEndpoints(t *testing.T) {
	_, th, _ := newHandlers(t)

	rec, body := doJSON(t, th.GetTokenInfo, http.MethodGet, "/api/token", "", "", nil)
	if rec.Code != http.StatusOK || body["rate"] != "100" {
		t.Fatalf("token info: status %d, body %v", rec.Code, body)
	}

	rec, body = doJSON(t, th.BuyTokens, http.MethodPost, "/api/token/buy",
		alice.Hex(), `{"amount":"10"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("buy: status %d, body %v", rec.Code, body)
	}

	rec, body = doJSON(t, th.GetBalance, http.MethodGet, "/api/token/balances/"+alice.Hex(),
		"", "", map[string]string{"address": alice.Hex()})
	if rec.Code != http.StatusOK {
		t.Fatalf("balance: status %d", rec.Code)
	}
	// 10 native at rate 100 with no fee configured mints 1000 tokens on top
	// of the funded 1000.
	if body["balance"] != "2000" {
		t.Fatalf("balance = %v, want 2000", body["balance"])
	}

	// Buying beyond the native balance is an economic failure.
	rec, _ = doJSON(t, th.BuyTokens, http.MethodPost, "/api/token/buy",
		alice.Hex(), `{"amount":"99999999"}`, nil)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("overdraft buy: status %d, want 402", rec.Code)
	}
}

func TestAdminAuthorization(t *testing.T) {
	_, _, ah := newHandlers(t)

	// Non-owner callers are rejected by the engine.
	rec, _ := doJSON(t, ah.AddExecutor, http.MethodPost, "/api/admin/executors",
		alice.Hex(), `{"address":"`+alice.Hex()+`"}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-owner add executor: status %d, want 403", rec.Code)
	}

	rec, _ = doJSON(t, ah.AddExecutor, http.MethodPost, "/api/admin/executors",
		owner.Hex(), `{"address":"`+alice.Hex()+`"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner add executor: status %d", rec.Code)
	}

	rec, body := doJSON(t, ah.GetVault, http.MethodGet, "/api/vault", "", "", nil)
	if rec.Code != http.StatusOK || body["creator_bond"] != "100" {
		t.Fatalf("vault view: status %d, body %v", rec.Code, body)
	}
}

func TestCreditAccountEndpoint(t *testing.T) {
	_, _, ah := newHandlers(t)
	bob := common.Address{19: 0x0b}

	rec, _ := doJSON(t, ah.CreditAccount, http.MethodPost, "/api/bank/deposit",
		alice.Hex(), `{"address":"`+bob.Hex()+`","amount":"500"}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-owner credit: status %d, want 403", rec.Code)
	}

	rec, body := doJSON(t, ah.CreditAccount, http.MethodPost, "/api/bank/deposit",
		owner.Hex(), `{"address":"`+bob.Hex()+`","amount":"500"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner credit: status %d, body %v", rec.Code, body)
	}
	if body["amount"] != "500" {
		t.Fatalf("credited amount = %v, want 500", body["amount"])
	}
}
