package market

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestEventID(t *testing.T) {
	env := Envelope{TxHash: "0xdeadbeef", LogIndex: 7}
	assert.Equal(t, "0xdeadbeef-7", env.EventID())
}

func TestRatios(t *testing.T) {
	trade := Trade{
		EventID:   "0x1-0",
		PayGem:    "0xaaa",
		BuyGem:    "0xbbb",
		PayAmt:    dec("100"),
		BuyAmt:    dec("50"),
		Timestamp: 3600,
	}
	payOverBuy, buyOverPay, err := trade.Ratios()
	require.NoError(t, err)
	assert.True(t, payOverBuy.Equal(dec("2")), "got %s", payOverBuy)
	assert.True(t, buyOverPay.Equal(dec("0.5")), "got %s", buyOverPay)
}

func TestRatiosReciprocal(t *testing.T) {
	trade := Trade{
		EventID: "0x1-0",
		PayGem:  "0xaaa", BuyGem: "0xbbb",
		PayAmt: dec("3"), BuyAmt: dec("7"),
	}
	payOverBuy, buyOverPay, err := trade.Ratios()
	require.NoError(t, err)
	// Non-terminating division rounds at RatioPrecision digits.
	assert.Equal(t, int32(-RatioPrecision), payOverBuy.Exponent())
	assert.True(t, buyOverPay.GreaterThan(dec("2.33")))
	assert.True(t, buyOverPay.LessThan(dec("2.34")))
}

func TestRatiosMalformed(t *testing.T) {
	base := Trade{
		EventID: "0x1-0",
		PayGem:  "0xaaa", BuyGem: "0xbbb",
		PayAmt: dec("100"), BuyAmt: dec("50"),
	}

	tests := []struct {
		name   string
		mutate func(*Trade)
	}{
		{"zero buy amount", func(tr *Trade) { tr.BuyAmt = decimal.Zero }},
		{"zero pay amount", func(tr *Trade) { tr.PayAmt = decimal.Zero }},
		{"negative buy amount", func(tr *Trade) { tr.BuyAmt = dec("-1") }},
		{"missing pay asset", func(tr *Trade) { tr.PayGem = "" }},
		{"missing buy asset", func(tr *Trade) { tr.BuyGem = "" }},
		{"negative timestamp", func(tr *Trade) { tr.Timestamp = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := base
			tt.mutate(&tr)
			_, _, err := tr.Ratios()
			var malformed *MalformedEventError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, "0x1-0", malformed.EventID)
		})
	}
}

func TestEnvelopeDecodesWireShape(t *testing.T) {
	raw := `{
		"tx_hash": "0xfeed",
		"log_index": 3,
		"type": "LogTrade",
		"timestamp": 3650,
		"params": {"pay_gem":"0xaaa","pay_amt":"100","buy_gem":"0xbbb","buy_amt":50}
	}`
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, EventTrade, env.Type)

	var p TradeParams
	require.NoError(t, json.Unmarshal(env.Params, &p))
	// Amounts decode from both string and number forms.
	assert.True(t, p.PayAmt.Equal(dec("100")))
	assert.True(t, p.BuyAmt.Equal(dec("50")))
}
