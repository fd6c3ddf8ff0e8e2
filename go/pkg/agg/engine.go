// Package agg holds the windowed aggregation engine: for every trade it
// locates or creates the pair/time bucket at each configured granularity and
// folds the trade in.
package agg

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"otc-indexer/go/pkg/bucket"
	"otc-indexer/go/pkg/market"
	"otc-indexer/go/pkg/store"
)

// Engine applies trades to pair/time buckets. It is strictly sequential:
// callers deliver one event at a time in canonical chain order.
type Engine struct {
	grans []bucket.Granularity
	store store.Store[market.PairTimeBucket]
	log   zerolog.Logger
}

func New(grans []bucket.Granularity, st store.Store[market.PairTimeBucket], log zerolog.Logger) *Engine {
	if len(grans) == 0 {
		grans = bucket.Default
	}
	return &Engine{grans: grans, store: st, log: log}
}

// ApplyTrade folds one trade into every configured granularity's bucket and
// returns the updated snapshots in granularity order.
//
// A malformed trade (zero amount, missing asset) is rejected before any
// bucket is touched. A store failure aborts the remaining granularities;
// already-saved buckets stay saved. Each bucket records the last event id
// folded in, so redelivering the trade skips buckets that already hold it
// and at-least-once delivery converges.
func (e *Engine) ApplyTrade(ctx context.Context, t market.Trade) ([]market.PairTimeBucket, error) {
	payOverBuy, buyOverPay, err := t.Ratios()
	if err != nil {
		return nil, err
	}

	updated := make([]market.PairTimeBucket, 0, len(e.grans))
	for _, g := range e.grans {
		index, start := g.Bucket(t.Timestamp)
		key := bucket.Key(t.PayGem, t.BuyGem, g, index)

		cur, err := e.store.Load(ctx, key)
		if err != nil {
			return updated, fmt.Errorf("apply trade %s: %w", t.EventID, err)
		}

		var next market.PairTimeBucket
		switch {
		case cur == nil:
			next = market.NewPairTimeBucket(key, g.Label, start, t, payOverBuy, buyOverPay)
		case cur.LastEventID == t.EventID:
			// Redelivery after a partial failure: this bucket already holds
			// the trade. Report the current state, fold nothing.
			updated = append(updated, *cur)
			e.log.Debug().Str("key", key).Str("event_id", t.EventID).Msg("trade already folded")
			continue
		default:
			next = *cur
			next.Fold(t, payOverBuy, buyOverPay)
		}

		if err := e.store.Save(ctx, key, &next); err != nil {
			return updated, fmt.Errorf("apply trade %s: %w", t.EventID, err)
		}
		updated = append(updated, next)

		e.log.Debug().
			Str("key", key).
			Int64("trade_count", next.TradeCount).
			Str("close", next.ClosePayOverBuy.String()).
			Msg("bucket updated")
	}
	return updated, nil
}

// Granularities exposes the configured set, in order.
func (e *Engine) Granularities() []bucket.Granularity {
	return e.grans
}
