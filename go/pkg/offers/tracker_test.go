package offers

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-indexer/go/pkg/market"
	"otc-indexer/go/pkg/store"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestTracker() (*Tracker, *store.Memory[market.OpenOffer]) {
	st := store.NewMemory[market.OpenOffer]()
	return NewTracker(st, zerolog.Nop()), st
}

func makeOffer(id uint64) market.OpenOffer {
	return market.OpenOffer{
		ID:        id,
		Pair:      "0xpair",
		Maker:     "0xmaker",
		PayGem:    "0xaaa",
		BuyGem:    "0xbbb",
		PayAmt:    dec("100"),
		BuyAmt:    dec("200"),
		Timestamp: 3600,
		OfferType: "limit",
	}
}

func TestOfferLifecycle(t *testing.T) {
	tracker, st := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tracker.OnPlace(ctx, makeOffer(42)))

	// Partial fill leaves the row with decremented remainders.
	require.NoError(t, tracker.OnPartialFill(ctx, 42, dec("30"), dec("60")))
	offer, err := st.Load(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, offer)
	assert.True(t, offer.PayAmt.Equal(dec("70")))
	assert.True(t, offer.BuyAmt.Equal(dec("140")))

	// Full fill removes the row entirely.
	require.NoError(t, tracker.OnFullFillOrCancel(ctx, 42))
	offer, err = st.Load(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, offer)

	// A fill for the already-removed offer is a quiet no-op.
	require.NoError(t, tracker.OnPartialFill(ctx, 42, dec("1"), dec("1")))
	assert.Equal(t, 0, st.Len())

	// So is removing it again.
	require.NoError(t, tracker.OnFullFillOrCancel(ctx, 42))
}

func TestOnPlaceReplacesExistingRow(t *testing.T) {
	tracker, st := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tracker.OnPlace(ctx, makeOffer(7)))

	replacement := makeOffer(7)
	replacement.PayAmt = dec("5")
	replacement.Maker = "0xother"
	require.NoError(t, tracker.OnPlace(ctx, replacement))

	offer, err := st.Load(ctx, "7")
	require.NoError(t, err)
	require.NotNil(t, offer)
	assert.True(t, offer.PayAmt.Equal(dec("5")))
	assert.Equal(t, "0xother", offer.Maker)
	assert.Equal(t, 1, st.Len())
}

func TestNegativeRemainderIsReportedNotClamped(t *testing.T) {
	tracker, st := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tracker.OnPlace(ctx, makeOffer(9)))

	err := tracker.OnPartialFill(ctx, 9, dec("150"), dec("60"))
	var remainder *NegativeRemainderError
	require.ErrorAs(t, err, &remainder)
	assert.Equal(t, uint64(9), remainder.OfferID)
	assert.Equal(t, "pay_amt", remainder.Field)

	// The row is left exactly as it was.
	offer, loadErr := st.Load(ctx, "9")
	require.NoError(t, loadErr)
	require.NotNil(t, offer)
	assert.True(t, offer.PayAmt.Equal(dec("100")))
	assert.True(t, offer.BuyAmt.Equal(dec("200")))
}

func TestFillToExactlyZeroKeepsRow(t *testing.T) {
	tracker, st := newTestTracker()
	ctx := context.Background()

	require.NoError(t, tracker.OnPlace(ctx, makeOffer(11)))
	require.NoError(t, tracker.OnPartialFill(ctx, 11, dec("100"), dec("200")))

	// Row removal is driven by LogOrderFilled/LogKill, not by hitting zero.
	offer, err := st.Load(ctx, "11")
	require.NoError(t, err)
	require.NotNil(t, offer)
	assert.True(t, offer.PayAmt.IsZero())
	assert.True(t, offer.BuyAmt.IsZero())
}
