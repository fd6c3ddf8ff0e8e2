package market

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// OpenOffer is one row of the currently-open offer side-table, keyed by the
// exchange-assigned numeric offer id. Absence of a row is meaningful: the
// offer does not exist or has been fully resolved.
type OpenOffer struct {
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

// OfferKey renders an offer id as a store key.
func OfferKey(id uint64) string {
	return strconv.FormatUint(id, 10)
}
