package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openpredict/predictiondao/internal/domain"
	"github.com/openpredict/predictiondao/internal/token"
)

// TokenService fronts the governance token and its bonded exchange. The
// token guards its own state; the service adds cross-replica serialization
// for exchange calls plus structured logging.
type TokenService struct {
	token  *token.Token
	locks  domain.LockManager
	logger *slog.Logger
}

// NewTokenService creates a TokenService. locks may be nil in
// single-replica deployments.
func NewTokenService(tok *token.Token, locks domain.LockManager, logger *slog.Logger) *TokenService {
	return &TokenService{token: tok, locks: locks, logger: logger}
}

// Buy exchanges native value for governance tokens at the current rate.
func (s *TokenService) Buy(ctx context.Context, caller common.Address, value *big.Int) (*domain.TokensPurchasedData, error) {
	unlock, err := s.acquire(ctx, "token:exchange")
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err := s.token.BuyTokens(caller, value)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tokens purchased",
		slog.String("buyer", caller.Hex()),
		slog.String("value", value.String()),
		slog.String("net", res.Net.String()),
	)
	return res, nil
}

// Sell exchanges governance tokens back for native value.
func (s *TokenService) Sell(ctx context.Context, caller common.Address, tokenAmount *big.Int) (*domain.TokensSoldData, error) {
	unlock, err := s.acquire(ctx, "token:exchange")
	if err != nil {
		return nil, err
	}
	defer unlock()

	res, err := s.token.SellTokens(caller, tokenAmount)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tokens sold",
		slog.String("seller", caller.Hex()),
		slog.String("tokens", tokenAmount.String()),
		slog.String("net", res.Net.String()),
	)
	return res, nil
}

// Transfer moves governance tokens between accounts.
func (s *TokenService) Transfer(ctx context.Context, caller, to common.Address, amount *big.Int) error {
	return s.token.Transfer(caller, to, amount)
}

// Approve sets a spender allowance on the caller's balance.
func (s *TokenService) Approve(ctx context.Context, caller, spender common.Address, amount *big.Int) error {
	return s.token.Approve(caller, spender, amount)
}

// Delegate assigns the caller's voting power to delegatee.
func (s *TokenService) Delegate(ctx context.Context, caller, delegatee common.Address) {
	s.token.Delegate(caller, delegatee)
}

// SetRate updates the exchange rate. Owner only.
func (s *TokenService) SetRate(ctx context.Context, caller common.Address, rate *big.Int) error {
	return s.token.SetRate(caller, rate)
}

// SetFees updates buy and sell fees. Owner only.
func (s *TokenService) SetFees(ctx context.Context, caller common.Address, buyFeeBps, sellFeeBps uint64) error {
	return s.token.SetFees(caller, buyFeeBps, sellFeeBps)
}

// SetLimits updates the purchase and sale caps. Owner only.
func (s *TokenService) SetLimits(ctx context.Context, caller common.Address, maxBuyPerTx, maxSellPerTx, maxBuyPerAddress *big.Int) error {
	return s.token.SetLimits(caller, maxBuyPerTx, maxSellPerTx, maxBuyPerAddress)
}

// SetFeeRecipient updates where exchange fees accrue. Owner only.
func (s *TokenService) SetFeeRecipient(ctx context.Context, caller, recipient common.Address) error {
	return s.token.SetFeeRecipient(caller, recipient)
}

// WithdrawEther moves accumulated native reserve out. Owner only.
func (s *TokenService) WithdrawEther(ctx context.Context, caller common.Address, amount *big.Int, to common.Address) error {
	return s.token.WithdrawEther(caller, amount, to)
}

// WithdrawTokens moves unsold exchange inventory out. Owner only.
func (s *TokenService) WithdrawTokens(ctx context.Context, caller common.Address, amount *big.Int, to common.Address) error {
	return s.token.WithdrawTokens(caller, amount, to)
}

// Token exposes read-only views (balances, votes, allowances, rate).
func (s *TokenService) Token() *token.Token {
	return s.token
}

func (s *TokenService) acquire(ctx context.Context, key string) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	unlock, err := s.locks.Acquire(ctx, key, lockTTL)
	if err != nil {
		return nil, fmt.Errorf("token_service: acquire %s: %w", key, err)
	}
	return unlock, nil
}
