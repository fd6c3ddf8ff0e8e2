package market

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RatioPrecision is the number of decimal digits kept when dividing trade
// amounts into ratio samples. Additions and comparisons stay exact; only the
// division itself rounds, at well beyond asset-native precision.
const RatioPrecision = 32

// MalformedEventError reports an event that cannot be applied safely, such as
// a trade whose ratio would need a zero denominator. The event must be
// rejected whole; no derived state may be touched.
type MalformedEventError struct {
	EventID string
	Reason  string
}

func (e *MalformedEventError) Error() string {
	return fmt.Sprintf("malformed event %s: %s", e.EventID, e.Reason)
}

// Trade is the aggregation engine's input: one executed trade in canonical
// chain order.
type Trade struct {
	EventID   string
	PayGem    string
	BuyGem    string
	PayAmt    decimal.Decimal
	BuyAmt    decimal.Decimal
	Timestamp int64
}

// Ratios returns the trade's instantaneous price samples, payAmt/buyAmt and
// its reciprocal. A missing asset, a non-positive amount, or a negative
// timestamp makes the trade malformed.
func (t Trade) Ratios() (payOverBuy, buyOverPay decimal.Decimal, err error) {
	switch {
	case t.PayGem == "" || t.BuyGem == "":
		err = &MalformedEventError{EventID: t.EventID, Reason: "missing asset identifier"}
	case t.Timestamp < 0:
		err = &MalformedEventError{EventID: t.EventID, Reason: "negative timestamp"}
	case t.PayAmt.Sign() <= 0:
		err = &MalformedEventError{EventID: t.EventID, Reason: "non-positive pay amount"}
	case t.BuyAmt.Sign() <= 0:
		err = &MalformedEventError{EventID: t.EventID, Reason: "non-positive buy amount"}
	}
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	payOverBuy = t.PayAmt.DivRound(t.BuyAmt, RatioPrecision)
	buyOverPay = t.BuyAmt.DivRound(t.PayAmt, RatioPrecision)
	return payOverBuy, buyOverPay, nil
}
