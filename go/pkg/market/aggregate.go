package market

import (
	"github.com/shopspring/decimal"
)

// PairTimeBucket is the windowed aggregate for one (pay-asset, buy-asset,
// granularity, bucket) key: cumulative amounts plus OHLC over the per-trade
// ratio samples in both directions. Buckets are append-only; they are created
// by the first trade that maps into them and never deleted.
type PairTimeBucket struct {
	Key         string `json:"key"`
	PayGem      string `json:"pay_gem"`
	BuyGem      string `json:"buy_gem"`
	Granularity string `json:"granularity"`
	BucketStart int64  `json:"bucket_start"`

	PayAmt decimal.Decimal `json:"pay_amt"`
	BuyAmt decimal.Decimal `json:"buy_amt"`

	OpenPayOverBuy  decimal.Decimal `json:"open_pay_over_buy"`
	ClosePayOverBuy decimal.Decimal `json:"close_pay_over_buy"`
	MinPayOverBuy   decimal.Decimal `json:"min_pay_over_buy"`
	MaxPayOverBuy   decimal.Decimal `json:"max_pay_over_buy"`

	OpenBuyOverPay  decimal.Decimal `json:"open_buy_over_pay"`
	CloseBuyOverPay decimal.Decimal `json:"close_buy_over_pay"`
	MinBuyOverPay   decimal.Decimal `json:"min_buy_over_pay"`
	MaxBuyOverPay   decimal.Decimal `json:"max_buy_over_pay"`

	TradeCount int64 `json:"trade_count"`

	// LastEventID is the id of the trade folded in most recently. Delivery
	// is strictly sequential, so a redelivered trade can only be the last
	// one folded; matching against it makes Fold safe to reapply.
	LastEventID string `json:"last_event_id"`
}

// NewPairTimeBucket seeds a bucket from its first trade: both OHLC families
// collapse to the trade's ratio samples and the sums are the trade amounts.
func NewPairTimeBucket(key, granularity string, bucketStart int64, t Trade, payOverBuy, buyOverPay decimal.Decimal) PairTimeBucket {
	return PairTimeBucket{
		Key:         key,
		PayGem:      t.PayGem,
		BuyGem:      t.BuyGem,
		Granularity: granularity,
		BucketStart: bucketStart,

		PayAmt: t.PayAmt,
		BuyAmt: t.BuyAmt,

		OpenPayOverBuy:  payOverBuy,
		ClosePayOverBuy: payOverBuy,
		MinPayOverBuy:   payOverBuy,
		MaxPayOverBuy:   payOverBuy,

		OpenBuyOverPay:  buyOverPay,
		CloseBuyOverPay: buyOverPay,
		MinBuyOverPay:   buyOverPay,
		MaxBuyOverPay:   buyOverPay,

		TradeCount:  1,
		LastEventID: t.EventID,
	}
}

// Fold merges one more trade into the bucket. Sums accumulate, min/max fold
// against the new samples, close is overwritten; open and bucket start are
// never touched once set.
func (b *PairTimeBucket) Fold(t Trade, payOverBuy, buyOverPay decimal.Decimal) {
	b.PayAmt = b.PayAmt.Add(t.PayAmt)
	b.BuyAmt = b.BuyAmt.Add(t.BuyAmt)

	if payOverBuy.LessThan(b.MinPayOverBuy) {
		b.MinPayOverBuy = payOverBuy
	}
	if payOverBuy.GreaterThan(b.MaxPayOverBuy) {
		b.MaxPayOverBuy = payOverBuy
	}
	if buyOverPay.LessThan(b.MinBuyOverPay) {
		b.MinBuyOverPay = buyOverPay
	}
	if buyOverPay.GreaterThan(b.MaxBuyOverPay) {
		b.MaxBuyOverPay = buyOverPay
	}

	b.ClosePayOverBuy = payOverBuy
	b.CloseBuyOverPay = buyOverPay
	b.TradeCount++
	b.LastEventID = t.EventID
}
