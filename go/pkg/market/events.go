// Package market defines the domain types of the OTC exchange indexer:
// the chain event envelope and its typed payloads, the pair/time aggregate,
// and the open offer side-table row.
//
// Amounts are carried as shopspring decimals so sums stay exact no matter
// how many events are folded in; asset identifiers are opaque hex addresses.
package market

import (
	"encoding/json"
	"strconv"

	"github.com/shopspring/decimal"
)

// EventType enumerates the exchange contract's log events.
type EventType string

const (
	EventTrade        EventType = "LogTrade"
	EventMake         EventType = "LogMake"
	EventTake         EventType = "LogTake"
	EventKill         EventType = "LogKill"
	EventOrderFilled  EventType = "LogOrderFilled"
	EventOrderStatus  EventType = "LogOrderStatus"
	EventDeposit      EventType = "LogDeposit"
	EventWithdraw     EventType = "LogWithdraw"
	EventItemUpdate   EventType = "LogItemUpdate"
	EventMinSell      EventType = "LogMinSell"
	EventOfferType    EventType = "LogOfferType"
	EventSetAuthority EventType = "LogSetAuthority"
	EventSetOwner     EventType = "LogSetOwner"
	EventSortedOffer  EventType = "LogSortedOffer"
)

// Envelope is the wire shape of one chain event as delivered by the upstream
// log extractor. Params is decoded per Type.
type Envelope struct {
	TxHash    string          `json:"tx_hash"`
	LogIndex  uint32          `json:"log_index"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Params    json.RawMessage `json:"params"`
}

// EventID is the globally unique, order-preserving event identifier:
// transaction hash plus log index.
func (e Envelope) EventID() string {
	return e.TxHash + "-" + strconv.FormatUint(uint64(e.LogIndex), 10)
}

// TradeParams carries a LogTrade payload.
type TradeParams struct {
	PayGem    string          `json:"pay_gem"`
	PayAmt    decimal.Decimal `json:"pay_amt"`
	BuyGem    string          `json:"buy_gem"`
	BuyAmt    decimal.Decimal `json:"buy_amt"`
	Timestamp int64           `json:"timestamp"`
}

// MakeParams carries a LogMake payload (a new offer entering the book).
type MakeParams struct {
	ID        uint64          `json:"id"`
	Pair      string          `json:"pair"`
	Maker     string          `json:"maker"`
	PayGem    string          `json:"pay_gem"`
	BuyGem    string          `json:"buy_gem"`
	PayAmt    decimal.Decimal `json:"pay_amt"`
	BuyAmt    decimal.Decimal `json:"buy_amt"`
	Timestamp int64           `json:"timestamp"`
	OfferType string          `json:"offer_type"`
}

// TakeParams carries a LogTake payload (a partial or full fill).
type TakeParams struct {
	ID        uint64          `json:"id"`
	Pair      string          `json:"pair"`
	Maker     string          `json:"maker"`
	Taker     string          `json:"taker"`
	PayGem    string          `json:"pay_gem"`
	BuyGem    string          `json:"buy_gem"`
	TakeAmt   decimal.Decimal `json:"take_amt"`
	GiveAmt   decimal.Decimal `json:"give_amt"`
	Timestamp int64           `json:"timestamp"`
	OfferType string          `json:"offer_type"`
}

// KillParams carries a LogKill payload (an offer cancelled by its maker).
type KillParams struct {
	ID        uint64          `json:"id"`
	Pair      string          `json:"pair"`
	Maker     string          `json:"maker"`
	PayGem    string          `json:"pay_gem"`
	BuyGem    string          `json:"buy_gem"`
	PayAmt    decimal.Decimal `json:"pay_amt"`
	BuyAmt    decimal.Decimal `json:"buy_amt"`
	Timestamp int64           `json:"timestamp"`
}

// OrderFilledParams carries a LogOrderFilled payload.
type OrderFilledParams struct {
	ID uint64 `json:"id"`
}

// OrderStatusParams carries a LogOrderStatus payload.
type OrderStatusParams struct {
	ID           uint64          `json:"id"`
	Pair         string          `json:"pair"`
	PayGem       string          `json:"pay_gem"`
	PayAmt       decimal.Decimal `json:"pay_amt"`
	FilledPayAmt decimal.Decimal `json:"filled_pay_amt"`
	BuyGem       string          `json:"buy_gem"`
	BuyAmt       decimal.Decimal `json:"buy_amt"`
	FilledBuyAmt decimal.Decimal `json:"filled_buy_amt"`
	Owner        string          `json:"owner"`
	Timestamp    int64           `json:"timestamp"`
	Cancelled    bool            `json:"cancelled"`
	Filled       bool            `json:"filled"`
}

// DepositParams carries a LogDeposit payload.
type DepositParams struct {
	Token   string          `json:"token"`
	User    string          `json:"user"`
	Amount  decimal.Decimal `json:"amount"`
	Balance decimal.Decimal `json:"balance"`
}

// WithdrawParams carries a LogWithdraw payload.
type WithdrawParams struct {
	Token   string          `json:"token"`
	User    string          `json:"user"`
	Amount  decimal.Decimal `json:"amount"`
	Balance decimal.Decimal `json:"balance"`
}

// ItemUpdateParams carries a LogItemUpdate payload.
type ItemUpdateParams struct {
	ID uint64 `json:"id"`
}

// MinSellParams carries a LogMinSell payload.
type MinSellParams struct {
	PayGem    string          `json:"pay_gem"`
	MinAmount decimal.Decimal `json:"min_amount"`
	Caller    string          `json:"caller"`
}

// OfferTypeParams carries a LogOfferType payload.
type OfferTypeParams struct {
	OfferType string `json:"offer_type"`
	State     bool   `json:"state"`
}

// SetAuthorityParams carries a LogSetAuthority payload.
type SetAuthorityParams struct {
	Authority string `json:"authority"`
}

// SetOwnerParams carries a LogSetOwner payload.
type SetOwnerParams struct {
	Owner string `json:"owner"`
}

// SortedOfferParams carries a LogSortedOffer payload.
type SortedOfferParams struct {
	ID uint64 `json:"id"`
}
