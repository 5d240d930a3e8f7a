package handler

import (
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/predictiondao/internal/service"
)

// AdminHandler serves vault and owner-only administration endpoints. The
// engine enforces authorization; these handlers only shape requests.
type AdminHandler struct {
	markets *service.MarketService
	tokens  *service.TokenService
	logger  *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(markets *service.MarketService, tokens *service.TokenService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{markets: markets, tokens: tokens, logger: logger}
}

// GetVault reports the vault accumulators and bond parameters.
// GET /api/vault
func (h *AdminHandler) GetVault(w http.ResponseWriter, r *http.Request) {
	eng := h.markets.Engine()
	writeJSON(w, http.StatusOK, map[string]any{
		"native":        eng.VaultBalance().String(),
		"governance":    eng.VaultGov().String(),
		"creator_bond":  eng.CreatorBond().String(),
		"resolver_bond": eng.ResolverBondAmount().String(),
	})
}

// DepositVault moves native funds from the caller into the vault.
// POST /api/vault/deposit
func (h *AdminHandler) DepositVault(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.markets.FundVault(r.Context(), caller, amount); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"amount": amount.String()})
}

// depositRequest is the body of POST /api/bank/deposit.
type depositRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

// CreditAccount credits native value to an address. Owner only; this is
// how value enters the ledger from outside.
// POST /api/bank/deposit
func (h *AdminHandler) CreditAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.Address) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.markets.CreditNative(r.Context(), caller, common.HexToAddress(req.Address), amount); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"address": req.Address, "amount": amount.String()})
}

// withdrawRequest is the body of the vault and token withdrawal endpoints.
type withdrawRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (h *AdminHandler) parseWithdraw(w http.ResponseWriter, r *http.Request) (common.Address, *withdrawRequest, bool) {
	var req withdrawRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return common.Address{}, nil, false
	}
	if !common.IsHexAddress(req.To) {
		writeError(w, http.StatusBadRequest, "invalid recipient address")
		return common.Address{}, nil, false
	}
	return common.HexToAddress(req.To), &req, true
}

// WithdrawVault moves native vault funds out. Owner only.
// POST /api/vault/withdraw
func (h *AdminHandler) WithdrawVault(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	to, req, ok := h.parseWithdraw(w, r)
	if !ok {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.markets.WithdrawVault(r.Context(), caller, amount, to); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"to": to.Hex(), "amount": amount.String()})
}

// executorRequest is the body of POST /api/admin/executors.
type executorRequest struct {
	Address string `json:"address"`
}

// AddExecutor grants dispute-execution rights. Owner only.
// POST /api/admin/executors
func (h *AdminHandler) AddExecutor(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req executorRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.Address) {
		writeError(w, http.StatusBadRequest, "invalid executor address")
		return
	}

	if err := h.markets.SetExecutor(r.Context(), caller, common.HexToAddress(req.Address)); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"address": req.Address, "executor": true})
}

// RemoveExecutor revokes dispute-execution rights. Owner only.
// DELETE /api/admin/executors/{address}
func (h *AdminHandler) RemoveExecutor(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	addr, ok := pathAddress(r, "address")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	if err := h.markets.RemoveExecutor(r.Context(), caller, addr); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"address": addr.Hex(), "executor": false})
}

// payoutParamsRequest is the body of PUT /api/admin/payout-params.
type payoutParamsRequest struct {
	FeeBps            uint64 `json:"fee_bps"`
	ReturnFeeBps      uint64 `json:"return_fee_bps"`
	SoloBonusBps      uint64 `json:"solo_bonus_bps"`
	ResolverRewardBps uint64 `json:"resolver_reward_bps"`
}

// SetPayoutParams updates the settlement fee schedule. Owner only.
// PUT /api/admin/payout-params
func (h *AdminHandler) SetPayoutParams(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req payoutParamsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.markets.SetPayoutParams(r.Context(), caller, req.FeeBps, req.ReturnFeeBps, req.SoloBonusBps, req.ResolverRewardBps); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// rateRequest is the body of PUT /api/admin/token/rate.
type rateRequest struct {
	Rate string `json:"rate"`
}

// SetTokenRate updates the exchange rate. Owner only.
// PUT /api/admin/token/rate
func (h *AdminHandler) SetTokenRate(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req rateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rate, err := parseAmount(req.Rate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.tokens.SetRate(r.Context(), caller, rate); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"rate": rate.String()})
}

// feesRequest is the body of PUT /api/admin/token/fees.
type feesRequest struct {
	BuyFeeBps  uint64 `json:"buy_fee_bps"`
	SellFeeBps uint64 `json:"sell_fee_bps"`
}

// SetTokenFees updates buy and sell fees. Owner only.
// PUT /api/admin/token/fees
func (h *AdminHandler) SetTokenFees(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req feesRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.tokens.SetFees(r.Context(), caller, req.BuyFeeBps, req.SellFeeBps); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// limitsRequest is the body of PUT /api/admin/token/limits. A zero or empty
// value disables the corresponding cap.
type limitsRequest struct {
	MaxBuyPerTx      string `json:"max_buy_per_tx"`
	MaxSellPerTx     string `json:"max_sell_per_tx"`
	MaxBuyPerAddress string `json:"max_buy_per_address"`
}

// SetTokenLimits updates the purchase and sale caps. Owner only.
// PUT /api/admin/token/limits
func (h *AdminHandler) SetTokenLimits(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req limitsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	parseLimit := func(raw string) (*big.Int, bool) {
		if raw == "" {
			return new(big.Int), true
		}
		n, err := parseAmount(raw)
		if err != nil {
			return nil, false
		}
		return n, true
	}

	buyTx, ok1 := parseLimit(req.MaxBuyPerTx)
	sellTx, ok2 := parseLimit(req.MaxSellPerTx)
	buyAddr, ok3 := parseLimit(req.MaxBuyPerAddress)
	if !ok1 || !ok2 || !ok3 {
		writeError(w, http.StatusBadRequest, "invalid limit amount")
		return
	}

	if err := h.tokens.SetLimits(r.Context(), caller, buyTx, sellTx, buyAddr); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// feeRecipientRequest is the body of PUT /api/admin/token/fee-recipient.
type feeRecipientRequest struct {
	Recipient string `json:"recipient"`
}

// SetFeeRecipient updates where exchange fees accrue. Owner only.
// PUT /api/admin/token/fee-recipient
func (h *AdminHandler) SetFeeRecipient(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req feeRecipientRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.Recipient) {
		writeError(w, http.StatusBadRequest, "invalid recipient address")
		return
	}

	if err := h.tokens.SetFeeRecipient(r.Context(), caller, common.HexToAddress(req.Recipient)); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"recipient": req.Recipient})
}

// WithdrawEther moves accumulated native reserve out of the exchange.
// Owner only.
// POST /api/admin/token/withdraw-ether
func (h *AdminHandler) WithdrawEther(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	to, req, ok := h.parseWithdraw(w, r)
	if !ok {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.tokens.WithdrawEther(r.Context(), caller, amount, to); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"to": to.Hex(), "amount": amount.String()})
}

// WithdrawTokens moves unsold exchange inventory out. Owner only.
// POST /api/admin/token/withdraw-tokens
func (h *AdminHandler) WithdrawTokens(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	to, req, ok := h.parseWithdraw(w, r)
	if !ok {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.tokens.WithdrawTokens(r.Context(), caller, amount, to); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"to": to.Hex(), "amount": amount.String()})
}
