package token

import (
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/openpredict/predictiondao/internal/domain"
)

// BuyTokens exchanges native value for tokens at the configured rate,
// extracting the buy fee in tokens. Every precondition is checked before
// any balance moves so a rejection leaves no partial state.
func (t *Token) BuyTokens(caller common.Address, value *big.Int) (*domain.TokensPurchasedData, error) {
	if value == nil || value.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.head.Advance()

	gross := new(big.Int).Mul(value, t.rate)
	fee := mulBps(gross, t.buyFeeBps)
	net := new(big.Int).Sub(gross, fee)

	if net.Sign() <= 0 {
		return nil, domain.ErrNetZero
	}
	if t.maxBuyPerTx.Sign() > 0 && net.Cmp(t.maxBuyPerTx) > 0 {
		return nil, domain.ErrExceedsMaxBuyPerTx
	}
	if t.maxBuyPerAddress.Sign() > 0 {
		bought := t.totalBought[caller]
		if bought == nil {
			bought = new(big.Int)
		}
		if new(big.Int).Add(bought, net).Cmp(t.maxBuyPerAddress) > 0 {
			return nil, domain.ErrExceedsMaxBuyPerAddress
		}
	}

	needed := new(big.Int).Add(net, fee)
	if t.balanceLocked(t.account).Cmp(needed) < 0 {
		return nil, domain.ErrInsufficientTokenLiquidity
	}

	// Pull the native value into the reserve. Fails without state change
	// when the caller cannot cover it.
	if err := t.bank.Transfer(caller, t.account, value); err != nil {
		return nil, err
	}

	if err := t.transferLocked(t.account, caller, net); err != nil {
		return nil, err
	}
	if fee.Sign() > 0 {
		if err := t.transferLocked(t.account, t.feeRecipient, fee); err != nil {
			return nil, err
		}
	}

	if bought, ok := t.totalBought[caller]; ok {
		bought.Add(bought, net)
	} else {
		t.totalBought[caller] = new(big.Int).Set(net)
	}

	data := &domain.TokensPurchasedData{
		Buyer: caller,
		Value: new(big.Int).Set(value),
		Gross: gross,
		Net:   net,
		Fee:   fee,
	}
	t.emitLocked(domain.EventTokensPurchased, data)

	t.logger.Info("tokens purchased",
		slog.String("buyer", caller.Hex()),
		slog.String("value", value.String()),
		slog.String("net", net.String()),
	)
	return data, nil
}

// SellTokens exchanges tokens back into native value at the configured
// rate, extracting the sell fee in native value. The fee stays in the
// reserve.
func (t *Token) SellTokens(caller common.Address, tokenAmount *big.Int) (*domain.TokensSoldData, error) {
	if tokenAmount == nil || tokenAmount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.head.Advance()

	if t.rate.Sign() <= 0 {
		return nil, domain.ErrTooSmall
	}
	gross := new(big.Int).Div(tokenAmount, t.rate)
	if gross.Sign() <= 0 {
		return nil, domain.ErrTooSmall
	}
	fee := mulBps(gross, t.sellFeeBps)
	net := new(big.Int).Sub(gross, fee)

	if t.maxSellPerTx.Sign() > 0 && net.Cmp(t.maxSellPerTx) > 0 {
		return nil, domain.ErrExceedsMaxSellPerTx
	}
	if t.bank.BalanceOf(t.account).Cmp(net) < 0 {
		return nil, domain.ErrInsufficientReserve
	}

	if err := t.transferLocked(caller, t.account, tokenAmount); err != nil {
		return nil, err
	}
	if err := t.bank.Transfer(t.account, caller, net); err != nil {
		return nil, err
	}

	data := &domain.TokensSoldData{
		Seller:      caller,
		TokenAmount: new(big.Int).Set(tokenAmount),
		Gross:       gross,
		Net:         net,
		Fee:         fee,
	}
	t.emitLocked(domain.EventTokensSold, data)

	t.logger.Info("tokens sold",
		slog.String("seller", caller.Hex()),
		slog.String("token_amount", tokenAmount.String()),
		slog.String("net", net.String()),
	)
	return data, nil
}

// TotalBought returns the cumulative net tokens bought by addr.
func (t *Token) TotalBought(addr common.Address) *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if b, ok := t.totalBought[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// ---------------------------------------------------------------------------
// Owner administration
// ---------------------------------------------------------------------------

// SetRate updates the exchange rate (tokens per unit of reserve).
func (t *Token) SetRate(caller common.Address, rate *big.Int) error {
	if rate == nil || rate.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller != t.owner {
		return domain.ErrNotOwner
	}
	t.head.Advance()
	old := t.rate
	t.rate = new(big.Int).Set(rate)
	t.emitLocked(domain.EventRateUpdated, &domain.RateUpdatedData{
		OldRate: old,
		NewRate: new(big.Int).Set(rate),
	})
	return nil
}

// SetFees updates both exchange fees in basis points.
func (t *Token) SetFees(caller common.Address, buyFeeBps, sellFeeBps uint64) error {
	if buyFeeBps > bpsDenom || sellFeeBps > bpsDenom {
		return domain.ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller != t.owner {
		return domain.ErrNotOwner
	}
	t.head.Advance()
	oldBuy, oldSell := t.buyFeeBps, t.sellFeeBps
	t.buyFeeBps, t.sellFeeBps = buyFeeBps, sellFeeBps
	t.emitLocked(domain.EventFeesUpdated, &domain.FeesUpdatedData{
		OldBuyFeeBps:  oldBuy,
		OldSellFeeBps: oldSell,
		NewBuyFeeBps:  buyFeeBps,
		NewSellFeeBps: sellFeeBps,
	})
	return nil
}

// SetLimits updates the per-transaction and per-address caps. A zero limit
// disables that cap.
func (t *Token) SetLimits(caller common.Address, maxBuyPerTx, maxSellPerTx, maxBuyPerAddress *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller != t.owner {
		return domain.ErrNotOwner
	}
	t.head.Advance()
	t.maxBuyPerTx = bigOrZero(maxBuyPerTx)
	t.maxSellPerTx = bigOrZero(maxSellPerTx)
	t.maxBuyPerAddress = bigOrZero(maxBuyPerAddress)
	t.emitLocked(domain.EventLimitsUpdated, &domain.LimitsUpdatedData{
		MaxBuyPerTx:      new(big.Int).Set(t.maxBuyPerTx),
		MaxSellPerTx:     new(big.Int).Set(t.maxSellPerTx),
		MaxBuyPerAddress: new(big.Int).Set(t.maxBuyPerAddress),
	})
	return nil
}

// SetFeeRecipient updates where buy fees are credited.
func (t *Token) SetFeeRecipient(caller, recipient common.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller != t.owner {
		return domain.ErrNotOwner
	}
	t.head.Advance()
	old := t.feeRecipient
	t.feeRecipient = recipient
	t.emitLocked(domain.EventFeeRecipientUpdated, &domain.FeeRecipientUpdatedData{
		OldRecipient: old,
		NewRecipient: recipient,
	})
	return nil
}

// WithdrawEther moves native reserve out of the component to the given
// address.
func (t *Token) WithdrawEther(caller common.Address, amount *big.Int, to common.Address) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller != t.owner {
		return domain.ErrNotOwner
	}
	t.head.Advance()
	if err := t.bank.Transfer(t.account, to, amount); err != nil {
		return err
	}
	t.emitLocked(domain.EventEtherWithdrawn, &domain.EtherWithdrawnData{
		To:     to,
		Amount: new(big.Int).Set(amount),
	})
	return nil
}

// WithdrawTokens moves token liquidity out of the component to the given
// address.
func (t *Token) WithdrawTokens(caller common.Address, amount *big.Int, to common.Address) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if caller != t.owner {
		return domain.ErrNotOwner
	}
	t.head.Advance()
	if err := t.transferLocked(t.account, to, amount); err != nil {
		return err
	}
	t.emitLocked(domain.EventTokensWithdrawn, &domain.TokensWithdrawnData{
		To:     to,
		Amount: new(big.Int).Set(amount),
	})
	return nil
}

// Rate returns the current exchange rate.
func (t *Token) Rate() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.rate)
}

// emitLocked wraps a payload in an event envelope and hands it to the sink.
func (t *Token) emitLocked(typ domain.EventType, data any) {
	if t.sink == nil {
		return
	}
	t.sink.Emit(domain.Event{
		ID:     uuid.New().String(),
		Type:   typ,
		At:     t.clock.Now(),
		Height: t.head.Height(),
		Data:   data,
	})
}

// mulBps returns v * bps / 10000, floor-rounded.
func mulBps(v *big.Int, bps uint64) *big.Int {
	out := new(big.Int).Mul(v, new(big.Int).SetUint64(bps))
	return out.Div(out, big.NewInt(bpsDenom))
}
