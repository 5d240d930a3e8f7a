// Package handler implements the HTTP endpoints of the API server. Handlers
// parse and validate requests, delegate to the service layer, and map
// engine errors to HTTP status codes.
package handler

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/predictiondao/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps a categorical engine error onto an HTTP status and
// forwards the error text to the client. Engine errors carry no internal
// detail, so exposing the message is safe.
func writeEngineError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

// statusFor classifies engine and store errors into HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidMarket),
		errors.Is(err, domain.ErrInvalidProposal):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrNotOwner),
		errors.Is(err, domain.ErrNotAuthorizedExecutor),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden

	case errors.Is(err, domain.ErrAlreadyResolved),
		errors.Is(err, domain.ErrAlreadyExecuted),
		errors.Is(err, domain.ErrAlreadyPaid),
		errors.Is(err, domain.ErrMarketAlreadyDisputed),
		errors.Is(err, domain.ErrHasActiveDispute),
		errors.Is(err, domain.ErrMarketClosed),
		errors.Is(err, domain.ErrBettingNotClosed),
		errors.Is(err, domain.ErrVotingClosed),
		errors.Is(err, domain.ErrVotingNotFinished),
		errors.Is(err, domain.ErrDisputeWindowOpen),
		errors.Is(err, domain.ErrDisputeWindowClosed),
		errors.Is(err, domain.ErrMarketNotResolved),
		errors.Is(err, domain.ErrNotResolvedYet),
		errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict

	case errors.Is(err, domain.ErrInsufficientBond),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientAllowance),
		errors.Is(err, domain.ErrInsufficientTokenLiquidity),
		errors.Is(err, domain.ErrInsufficientReserve),
		errors.Is(err, domain.ErrExceedsMaxBuyPerTx),
		errors.Is(err, domain.ErrExceedsMaxBuyPerAddress),
		errors.Is(err, domain.ErrExceedsMaxSellPerTx):
		return http.StatusPaymentRequired

	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrMustDisagree),
		errors.Is(err, domain.ErrNoBetsInMarket),
		errors.Is(err, domain.ErrNetZero),
		errors.Is(err, domain.ErrTooSmall):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// parseListOpts extracts standard pagination parameters from the query
// string. Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathID extracts a numeric path parameter using Go 1.22+ routing.
func pathID(r *http.Request, name string) (uint64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}

// pathAddress extracts an address path parameter.
func pathAddress(r *http.Request, name string) (common.Address, bool) {
	raw := r.PathValue(name)
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// callerAddr reads the authenticated caller from the X-Caller header. The
// auth middleware has already verified the signature when signatures are
// required, so the handler only validates the format.
func callerAddr(r *http.Request) (common.Address, bool) {
	raw := strings.TrimSpace(r.Header.Get("X-Caller"))
	if !common.IsHexAddress(raw) {
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// requireCaller is callerAddr plus the 400 response on failure.
func requireCaller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, ok := callerAddr(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid X-Caller header")
		return common.Address{}, false
	}
	return caller, true
}

// parseAmount parses a decimal string into a positive big integer. Amounts
// travel as strings because they routinely exceed 64 bits.
func parseAmount(raw string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, errors.New("invalid amount")
	}
	return n, nil
}

// decodeBody unmarshals a JSON request body into dst, capped at 1 MiB.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
