package agg

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otc-indexer/go/pkg/bucket"
	"otc-indexer/go/pkg/market"
	"otc-indexer/go/pkg/store"
)

var testGrans = []bucket.Granularity{
	{Label: "hour", Seconds: 3600},
	{Label: "day", Seconds: 86400},
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func trade(id string, pay, buy string, ts int64) market.Trade {
	return market.Trade{
		EventID:   id,
		PayGem:    "0xaaa",
		BuyGem:    "0xbbb",
		PayAmt:    dec(pay),
		BuyAmt:    dec(buy),
		Timestamp: ts,
	}
}

func newTestEngine() (*Engine, *store.Memory[market.PairTimeBucket]) {
	st := store.NewMemory[market.PairTimeBucket]()
	return New(testGrans, st, zerolog.Nop()), st
}

func TestApplyTradeCreatesBucket(t *testing.T) {
	engine, st := newTestEngine()
	ctx := context.Background()

	updated, err := engine.ApplyTrade(ctx, trade("0x1-0", "100", "50", 3600))
	require.NoError(t, err)
	require.Len(t, updated, 2)

	hour, err := st.Load(ctx, "0xaaa-0xbbb-hour-1")
	require.NoError(t, err)
	require.NotNil(t, hour)
	assert.Equal(t, int64(3600), hour.BucketStart)
	assert.Equal(t, "hour", hour.Granularity)
	assert.True(t, hour.PayAmt.Equal(dec("100")))
	assert.True(t, hour.BuyAmt.Equal(dec("50")))
	assert.Equal(t, int64(1), hour.TradeCount)
	for _, r := range []decimal.Decimal{hour.OpenPayOverBuy, hour.ClosePayOverBuy, hour.MinPayOverBuy, hour.MaxPayOverBuy} {
		assert.True(t, r.Equal(dec("2")), "pay/buy sample should be 2, got %s", r)
	}
	for _, r := range []decimal.Decimal{hour.OpenBuyOverPay, hour.CloseBuyOverPay, hour.MinBuyOverPay, hour.MaxBuyOverPay} {
		assert.True(t, r.Equal(dec("0.5")), "buy/pay sample should be 0.5, got %s", r)
	}

	day, err := st.Load(ctx, "0xaaa-0xbbb-day-0")
	require.NoError(t, err)
	require.NotNil(t, day)
	assert.Equal(t, int64(0), day.BucketStart)
}

func TestApplyTradeFoldsIntoBucket(t *testing.T) {
	engine, st := newTestEngine()
	ctx := context.Background()

	_, err := engine.ApplyTrade(ctx, trade("0x1-0", "100", "50", 3600))
	require.NoError(t, err)
	_, err = engine.ApplyTrade(ctx, trade("0x2-0", "50", "50", 3650))
	require.NoError(t, err)

	hour, err := st.Load(ctx, "0xaaa-0xbbb-hour-1")
	require.NoError(t, err)
	require.NotNil(t, hour)
	assert.True(t, hour.PayAmt.Equal(dec("150")))
	assert.True(t, hour.BuyAmt.Equal(dec("100")))
	assert.Equal(t, int64(2), hour.TradeCount)
	assert.True(t, hour.OpenPayOverBuy.Equal(dec("2")), "open never moves")
	assert.True(t, hour.ClosePayOverBuy.Equal(dec("1")), "close follows last trade")
	assert.True(t, hour.MinPayOverBuy.Equal(dec("1")))
	assert.True(t, hour.MaxPayOverBuy.Equal(dec("2")))
	assert.Equal(t, int64(3600), hour.BucketStart, "bucket start is constant once created")
}

func TestBoundaryTradesLandInDistinctBuckets(t *testing.T) {
	engine, st := newTestEngine()
	ctx := context.Background()

	_, err := engine.ApplyTrade(ctx, trade("0x1-0", "10", "10", 3599))
	require.NoError(t, err)
	_, err = engine.ApplyTrade(ctx, trade("0x2-0", "10", "10", 3600))
	require.NoError(t, err)

	first, err := st.Load(ctx, "0xaaa-0xbbb-hour-0")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, int64(0), first.BucketStart)
	assert.Equal(t, int64(1), first.TradeCount)

	second, err := st.Load(ctx, "0xaaa-0xbbb-hour-1")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, int64(3600), second.BucketStart)
	assert.Equal(t, int64(1), second.TradeCount)
}

func TestMalformedTradeLeavesStoreUntouched(t *testing.T) {
	engine, st := newTestEngine()
	ctx := context.Background()

	_, err := engine.ApplyTrade(ctx, trade("0x1-0", "100", "0", 3600))
	var malformed *market.MalformedEventError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 0, st.Len(), "no bucket may be created for a rejected trade")
}

func TestOHLCInvariantsHoldAfterEveryFold(t *testing.T) {
	engine, st := newTestEngine()
	ctx := context.Background()

	// A fixed pseudo-random walk inside one hour bucket.
	pays := []string{"100", "37", "512", "7", "9000", "250", "1", "64"}
	buys := []string{"50", "111", "4", "7", "3", "249", "1000", "64"}

	var paySum, buySum decimal.Decimal
	for i := range pays {
		_, err := engine.ApplyTrade(ctx, trade(fmt.Sprintf("0x%d-0", i), pays[i], buys[i], 7200+int64(i)))
		require.NoError(t, err)
		paySum = paySum.Add(dec(pays[i]))
		buySum = buySum.Add(dec(buys[i]))

		b, err := st.Load(ctx, "0xaaa-0xbbb-hour-2")
		require.NoError(t, err)
		require.NotNil(t, b)

		assert.True(t, b.MinPayOverBuy.LessThanOrEqual(b.OpenPayOverBuy))
		assert.True(t, b.MinPayOverBuy.LessThanOrEqual(b.ClosePayOverBuy))
		assert.True(t, b.OpenPayOverBuy.LessThanOrEqual(b.MaxPayOverBuy))
		assert.True(t, b.ClosePayOverBuy.LessThanOrEqual(b.MaxPayOverBuy))
		assert.True(t, b.MinBuyOverPay.LessThanOrEqual(b.OpenBuyOverPay))
		assert.True(t, b.MinBuyOverPay.LessThanOrEqual(b.CloseBuyOverPay))
		assert.True(t, b.OpenBuyOverPay.LessThanOrEqual(b.MaxBuyOverPay))
		assert.True(t, b.CloseBuyOverPay.LessThanOrEqual(b.MaxBuyOverPay))

		assert.Equal(t, int64(i+1), b.TradeCount)
		assert.True(t, b.PayAmt.Equal(paySum), "cumulative pay amount must be the exact sum")
		assert.True(t, b.BuyAmt.Equal(buySum), "cumulative buy amount must be the exact sum")
	}
}

func TestTradeCountIsolatedPerPairAndBucket(t *testing.T) {
	engine, st := newTestEngine()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := engine.ApplyTrade(ctx, trade(fmt.Sprintf("0xa%d-0", i), "10", "10", 3600))
		require.NoError(t, err)

		other := trade(fmt.Sprintf("0xb%d-0", i), "10", "10", 3600)
		other.PayGem, other.BuyGem = "0xccc", "0xddd"
		_, err = engine.ApplyTrade(ctx, other)
		require.NoError(t, err)
	}

	b1, err := st.Load(ctx, "0xaaa-0xbbb-hour-1")
	require.NoError(t, err)
	require.NotNil(t, b1)
	assert.Equal(t, int64(5), b1.TradeCount)

	b2, err := st.Load(ctx, "0xccc-0xddd-hour-1")
	require.NoError(t, err)
	require.NotNil(t, b2)
	assert.Equal(t, int64(5), b2.TradeCount)
}

// saveFailingStore fails every save after the first n.
type saveFailingStore struct {
	*store.Memory[market.PairTimeBucket]
	allowed int
	saves   int
}

func (s *saveFailingStore) Save(ctx context.Context, key string, rec *market.PairTimeBucket) error {
	s.saves++
	if s.saves > s.allowed {
		return fmt.Errorf("%w: injected failure", store.ErrUnavailable)
	}
	return s.Memory.Save(ctx, key, rec)
}

func TestStoreFailurePropagatesAndLeavesPartialGranularities(t *testing.T) {
	mem := store.NewMemory[market.PairTimeBucket]()
	failing := &saveFailingStore{Memory: mem, allowed: 1}
	engine := New(testGrans, failing, zerolog.Nop())
	ctx := context.Background()

	updated, err := engine.ApplyTrade(ctx, trade("0x1-0", "100", "50", 3600))
	require.ErrorIs(t, err, store.ErrUnavailable)

	// The first granularity committed, the second did not; redelivery of the
	// same event is the dispatcher's job.
	assert.Len(t, updated, 1)
	assert.Equal(t, 1, mem.Len())
}

func TestRetryAfterPartialSaveDoesNotDoubleCount(t *testing.T) {
	mem := store.NewMemory[market.PairTimeBucket]()
	failing := &saveFailingStore{Memory: mem, allowed: 1}
	engine := New(testGrans, failing, zerolog.Nop())
	ctx := context.Background()

	_, err := engine.ApplyTrade(ctx, trade("0x1-0", "100", "50", 3600))
	require.ErrorIs(t, err, store.ErrUnavailable)

	// Redelivery with the store healthy again: the hour bucket already holds
	// the trade and must not fold it a second time.
	failing.allowed = failing.saves + 2
	updated, err := engine.ApplyTrade(ctx, trade("0x1-0", "100", "50", 3600))
	require.NoError(t, err)
	require.Len(t, updated, 2)

	hour, err := mem.Load(ctx, "0xaaa-0xbbb-hour-1")
	require.NoError(t, err)
	require.NotNil(t, hour)
	assert.Equal(t, int64(1), hour.TradeCount)
	assert.True(t, hour.PayAmt.Equal(dec("100")))
	assert.True(t, hour.ClosePayOverBuy.Equal(dec("2")))
	assert.Equal(t, "0x1-0", hour.LastEventID)

	day, err := mem.Load(ctx, "0xaaa-0xbbb-day-0")
	require.NoError(t, err)
	require.NotNil(t, day)
	assert.Equal(t, int64(1), day.TradeCount)
}

func TestDefaultGranularitiesWhenUnset(t *testing.T) {
	engine := New(nil, store.NewMemory[market.PairTimeBucket](), zerolog.Nop())
	assert.Equal(t, bucket.Default, engine.Granularities())
}
