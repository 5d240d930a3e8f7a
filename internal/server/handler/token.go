package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/predictiondao/internal/service"
)

// TokenHandler serves governance-token and exchange endpoints.
type TokenHandler struct {
	svc    *service.TokenService
	logger *slog.Logger
}

// NewTokenHandler creates a TokenHandler.
func NewTokenHandler(svc *service.TokenService, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{svc: svc, logger: logger}
}

// GetTokenInfo returns the exchange parameters and supply figures.
// GET /api/token
func (h *TokenHandler) GetTokenInfo(w http.ResponseWriter, r *http.Request) {
	tok := h.svc.Token()
	writeJSON(w, http.StatusOK, map[string]any{
		"total_supply": tok.TotalSupply().String(),
		"rate":         tok.Rate().String(),
		"reserve":      tok.Reserve().String(),
	})
}

// amountRequest carries a single decimal amount.
type amountRequest struct {
	Amount string `json:"amount"`
}

// BuyTokens exchanges native value for governance tokens.
// POST /api/token/buy
func (h *TokenHandler) BuyTokens(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	value, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.svc.Buy(r.Context(), caller, value)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// SellTokens exchanges governance tokens back for native value.
// POST /api/token/sell
func (h *TokenHandler) SellTokens(w http.ResponseWriter, r *http.Request) {
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

	res, err := h.svc.Sell(r.Context(), caller, amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// transferRequest is the body of POST /api/token/transfer and approve.
type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// Transfer moves governance tokens to another address.
// POST /api/token/transfer
func (h *TokenHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req transferRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.To) {
		writeError(w, http.StatusBadRequest, "invalid recipient address")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Transfer(r.Context(), caller, common.HexToAddress(req.To), amount); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"to": req.To, "amount": amount.String()})
}

// approveRequest is the body of POST /api/token/approve.
type approveRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// Approve sets a spender allowance, typically for the engine account so it
// can pull bonds.
// POST /api/token/approve
func (h *TokenHandler) Approve(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req approveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.Spender) {
		writeError(w, http.StatusBadRequest, "invalid spender address")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Approve(r.Context(), caller, common.HexToAddress(req.Spender), amount); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"spender": req.Spender, "amount": amount.String()})
}

// delegateRequest is the body of POST /api/token/delegate.
type delegateRequest struct {
	Delegatee string `json:"delegatee"`
}

// Delegate assigns the caller's voting power. Self-delegation activates a
// holder's own power.
// POST /api/token/delegate
func (h *TokenHandler) Delegate(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var req delegateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.Delegatee) {
		writeError(w, http.StatusBadRequest, "invalid delegatee address")
		return
	}

	h.svc.Delegate(r.Context(), caller, common.HexToAddress(req.Delegatee))

	writeJSON(w, http.StatusOK, map[string]any{"delegatee": req.Delegatee})
}

// GetBalance returns an address's token balance and bought total.
// GET /api/token/balances/{address}
func (h *TokenHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(r, "address")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	tok := h.svc.Token()
	writeJSON(w, http.StatusOK, map[string]any{
		"address":      addr.Hex(),
		"balance":      tok.BalanceOf(addr).String(),
		"total_bought": tok.TotalBought(addr).String(),
	})
}

// GetVotes returns an address's current voting power, or its power at a
// past height when ?height= is given.
// GET /api/token/votes/{address}?height=42
func (h *TokenHandler) GetVotes(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(r, "address")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	tok := h.svc.Token()
	resp := map[string]any{"address": addr.Hex()}

	if raw := r.URL.Query().Get("height"); raw != "" {
		height, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid height")
			return
		}
		resp["height"] = height
		resp["votes"] = tok.PastVotes(addr, height).String()
	} else {
		resp["votes"] = tok.Votes(addr).String()
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetAllowance returns a spender's remaining allowance on an owner balance.
// GET /api/token/allowance?owner=0x..&spender=0x..
func (h *TokenHandler) GetAllowance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ownerRaw, spenderRaw := q.Get("owner"), q.Get("spender")
	if !common.IsHexAddress(ownerRaw) || !common.IsHexAddress(spenderRaw) {
		writeError(w, http.StatusBadRequest, "owner and spender must be addresses")
		return
	}

	allowance := h.svc.Token().Allowance(common.HexToAddress(ownerRaw), common.HexToAddress(spenderRaw))
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":     common.HexToAddress(ownerRaw).Hex(),
		"spender":   common.HexToAddress(spenderRaw).Hex(),
		"allowance": allowance.String(),
	})
}
