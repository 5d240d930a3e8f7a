package domain

import "errors"

// Validation failures. Always the caller's fault; state is untouched.
var (
	ErrInvalidMarket   = errors.New("invalid market")
	ErrInvalidProposal = errors.New("invalid proposal")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDuration = errors.New("duration must be > 0")
	ErrNoBetsInMarket  = errors.New("no bets in market")
	ErrNotFound        = errors.New("not found")
)

// Temporal failures. The call is too early or too late relative to a
// market or proposal deadline; the caller may retry once time has passed.
var (
	ErrMarketClosed        = errors.New("market closed")
	ErrBettingNotClosed    = errors.New("betting not closed yet")
	ErrVotingClosed        = errors.New("voting closed")
	ErrVotingNotFinished   = errors.New("voting not finished")
	ErrDisputeWindowOpen   = errors.New("dispute window still open")
	ErrDisputeWindowClosed = errors.New("dispute window closed")
)

// Authorization failures. Permanent for the calling address.
var (
	ErrNotOwner              = errors.New("caller is not the owner")
	ErrNotAuthorizedExecutor = errors.New("caller is not an authorized executor")
	ErrUnauthorized          = errors.New("unauthorized")
)

// Economic failures. The caller must adjust the amount or acquire funds.
var (
	ErrInsufficientBond           = errors.New("insufficient governance bond")
	ErrInsufficientFunds          = errors.New("insufficient funds")
	ErrInsufficientAllowance      = errors.New("insufficient allowance")
	ErrInsufficientTokenLiquidity = errors.New("insufficient token liquidity")
	ErrInsufficientReserve        = errors.New("insufficient reserve liquidity")
	ErrExceedsMaxBuyPerTx         = errors.New("exceeds max buy per tx")
	ErrExceedsMaxBuyPerAddress    = errors.New("exceeds max buy per address")
	ErrExceedsMaxSellPerTx        = errors.New("exceeds max sell per tx")
	ErrNetZero                    = errors.New("net token amount is zero")
	ErrTooSmall                   = errors.New("token amount too small")
)

// State-conflict failures. Idempotency guards: the requested transition
// already happened, or a conflicting one is pending.
var (
	ErrAlreadyResolved       = errors.New("market already resolved")
	ErrMarketNotResolved     = errors.New("market not resolved")
	ErrNotResolvedYet        = errors.New("market not resolved yet")
	ErrMustDisagree          = errors.New("proposed outcome must disagree with resolution")
	ErrMarketAlreadyDisputed = errors.New("market already disputed")
	ErrAlreadyExecuted       = errors.New("proposal already executed")
	ErrHasActiveDispute      = errors.New("market has an active dispute")
	ErrAlreadyPaid           = errors.New("resolver already paid")
)

// Infrastructure failures surfaced by the cache layer.
var ErrLockHeld = errors.New("lock already held")
