package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType identifies one entry in the engine's event log. The names and
// payload fields are part of the external contract consumed by the wallet
// and presentation layers; they are not free to change.
type EventType string

const (
	EventMarketCreated       EventType = "MarketCreated"
	EventPlaceBet            EventType = "PlaceBet"
	EventMarketBettingClosed EventType = "MarketBettingClosed"
	EventMarketResolved      EventType = "MarketResolved"
	EventProposalCreated     EventType = "ProposalCreated"
	EventVoted               EventType = "Voted"
	EventProposalExecuted    EventType = "ProposalExecuted"
	EventResolverRewarded    EventType = "ResolverRewarded"
	EventResolverSlashed     EventType = "ResolverSlashed"
	EventCreatorBondReturned EventType = "CreatorBondReturned"
	EventWithdrawn           EventType = "Withdrawn"
	EventVaultWithdrawn      EventType = "VaultWithdrawn"
	EventReceived            EventType = "Received"

	EventTokensPurchased     EventType = "TokensPurchased"
	EventTokensSold          EventType = "TokensSold"
	EventRateUpdated         EventType = "RateUpdated"
	EventFeesUpdated         EventType = "FeesUpdated"
	EventLimitsUpdated       EventType = "LimitsUpdated"
	EventFeeRecipientUpdated EventType = "FeeRecipientUpdated"
	EventEtherWithdrawn      EventType = "EtherWithdrawn"
	EventTokensWithdrawn     EventType = "TokensWithdrawn"
)

// Event is the envelope appended to the event log after every successful
// state-changing call. MarketID/ProposalID are set when the event concerns
// one, so consumers and stores can index without unpacking the payload.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	At         time.Time `json:"at"`
	Height     uint64    `json:"height"`
	MarketID   *uint64   `json:"market_id,omitempty"`
	ProposalID *uint64   `json:"proposal_id,omitempty"`
	Data       any       `json:"data"`
}

// EventSink receives events emitted by the engine and token components.
// Emit is called only after all ledger state for the call is final.
type EventSink interface {
	Emit(ev Event)
}

// Typed event payloads. Field order matches the original call surface.

type MarketCreatedData struct {
	MarketID uint64         `json:"market_id"`
	Question string         `json:"question"`
	EndTime  time.Time      `json:"end_time"`
	Creator  common.Address `json:"creator"`
	Bond     *big.Int       `json:"bond"`
}

type PlaceBetData struct {
	MarketID uint64         `json:"market_id"`
	Bettor   common.Address `json:"bettor"`
	Yes      bool           `json:"yes"`
	Amount   *big.Int       `json:"amount"`
}

type MarketBettingClosedData struct {
	MarketID      uint64 `json:"market_id"`
	SnapshotBlock uint64 `json:"snapshot_block"`
}

type MarketResolvedData struct {
	MarketID uint64         `json:"market_id"`
	Outcome  bool           `json:"outcome"`
	Resolver common.Address `json:"resolver"`
	Bond     *big.Int       `json:"bond"`
}

type ProposalCreatedData struct {
	ProposalID    uint64    `json:"proposal_id"`
	MarketID      uint64    `json:"market_id"`
	Description   string    `json:"description"`
	ExecuteYes    bool      `json:"execute_yes"`
	Deadline      time.Time `json:"deadline"`
	SnapshotBlock uint64    `json:"snapshot_block"`
}

type VotedData struct {
	ProposalID uint64         `json:"proposal_id"`
	Voter      common.Address `json:"voter"`
	Support    bool           `json:"support"`
	Amount     *big.Int       `json:"amount"`
}

type ProposalExecutedData struct {
	ProposalID uint64 `json:"proposal_id"`
	MarketID   uint64 `json:"market_id"`
	Passed     bool   `json:"passed"`
	Outcome    bool   `json:"outcome"`
}

type ResolverRewardedData struct {
	MarketID     uint64         `json:"market_id"`
	Resolver     common.Address `json:"resolver"`
	Reward       *big.Int       `json:"reward"`
	BondReturned *big.Int       `json:"bond_returned"`
}

type ResolverSlashedData struct {
	MarketID uint64         `json:"market_id"`
	Resolver common.Address `json:"resolver"`
	Returned *big.Int       `json:"returned"`
	Slashed  *big.Int       `json:"slashed"`
}

type CreatorBondReturnedData struct {
	MarketID uint64         `json:"market_id"`
	Creator  common.Address `json:"creator"`
	Bond     *big.Int       `json:"bond"`
}

type WithdrawnData struct {
	MarketID uint64         `json:"market_id"`
	Account  common.Address `json:"account"`
	Amount   *big.Int       `json:"amount"`
}

type VaultWithdrawnData struct {
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

type ReceivedData struct {
	From   common.Address `json:"from"`
	Amount *big.Int       `json:"amount"`
}

type TokensPurchasedData struct {
	Buyer common.Address `json:"buyer"`
	Value *big.Int       `json:"value"`
	Gross *big.Int       `json:"gross"`
	Net   *big.Int       `json:"net"`
	Fee   *big.Int       `json:"fee"`
}

type TokensSoldData struct {
	Seller      common.Address `json:"seller"`
	TokenAmount *big.Int       `json:"token_amount"`
	Gross       *big.Int       `json:"gross"`
	Net         *big.Int       `json:"net"`
	Fee         *big.Int       `json:"fee"`
}

type RateUpdatedData struct {
	OldRate *big.Int `json:"old_rate"`
	NewRate *big.Int `json:"new_rate"`
}

type FeesUpdatedData struct {
	OldBuyFeeBps  uint64 `json:"old_buy_fee_bps"`
	OldSellFeeBps uint64 `json:"old_sell_fee_bps"`
	NewBuyFeeBps  uint64 `json:"new_buy_fee_bps"`
	NewSellFeeBps uint64 `json:"new_sell_fee_bps"`
}

type LimitsUpdatedData struct {
	MaxBuyPerTx      *big.Int `json:"max_buy_per_tx"`
	MaxSellPerTx     *big.Int `json:"max_sell_per_tx"`
	MaxBuyPerAddress *big.Int `json:"max_buy_per_address"`
}

type FeeRecipientUpdatedData struct {
	OldRecipient common.Address `json:"old_recipient"`
	NewRecipient common.Address `json:"new_recipient"`
}

type EtherWithdrawnData struct {
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}

type TokensWithdrawnData struct {
	To     common.Address `json:"to"`
	Amount *big.Int       `json:"amount"`
}
