package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/predictiondao/internal/crypto"
)

// maxClockSkew bounds how stale a signed request timestamp may be. Replays
// outside the window are rejected outright.
const maxClockSkew = 5 * time.Minute

// maxSignedBody caps how much request body the verifier will buffer.
const maxSignedBody = 1 << 20

// Auth returns middleware that authenticates state-changing requests by
// recovering the caller address from a secp256k1 signature.
//
// Clients send three headers:
//
//	X-Caller:    the address acting in the call
//	X-Timestamp: Unix seconds, must be within maxClockSkew of server time
//	X-Signature: hex signature over the call digest (method, path, body, ts)
//
// GET requests only need X-Caller when an endpoint wants one. When require
// is false the signature headers are optional and X-Caller is trusted as
// sent, which is only acceptable behind an authenticating proxy.
func Auth(require bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !require || r.Method == http.MethodGet || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			callerHex := strings.TrimSpace(r.Header.Get("X-Caller"))
			sigHex := strings.TrimSpace(r.Header.Get("X-Signature"))
			tsRaw := strings.TrimSpace(r.Header.Get("X-Timestamp"))
			if callerHex == "" || sigHex == "" || tsRaw == "" {
				writeUnauthorized(w, "missing signature headers")
				return
			}
			if !common.IsHexAddress(callerHex) {
				writeUnauthorized(w, "invalid caller address")
				return
			}

			ts, err := strconv.ParseInt(tsRaw, 10, 64)
			if err != nil {
				writeUnauthorized(w, "invalid timestamp")
				return
			}
			skew := time.Since(time.Unix(ts, 0))
			if skew < -maxClockSkew || skew > maxClockSkew {
				writeUnauthorized(w, "timestamp outside allowed window")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
			if err != nil {
				writeUnauthorized(w, "unreadable request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			recovered, err := crypto.RecoverCaller(r.Method, r.URL.Path, body, ts, sigHex)
			if err != nil {
				writeUnauthorized(w, "signature verification failed")
				return
			}
			if recovered != common.HexToAddress(callerHex) {
				writeUnauthorized(w, "signature does not match caller")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeUnauthorized sends a 401 response with a JSON error body.
func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
