// Package offers maintains the materialized view of currently-open offers.
// It is rebuilt purely from event side effects, so duplicate or out-of-order
// deliveries land as quiet no-ops rather than failures.
package offers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"otc-indexer/go/pkg/market"
	"otc-indexer/go/pkg/store"
)

// NegativeRemainderError reports a fill that would drive an open offer's
// remaining amount below zero. The row is left untouched; the inconsistency
// is the caller's to investigate, not this package's to paper over.
type NegativeRemainderError struct {
	OfferID   uint64
	Field     string
	Remaining decimal.Decimal
	Fill      decimal.Decimal
}

func (e *NegativeRemainderError) Error() string {
	return fmt.Sprintf("offer %d: fill %s of %s exceeds remaining %s",
		e.OfferID, e.Fill, e.Field, e.Remaining)
}

// Tracker applies offer lifecycle events to the open-offer store.
type Tracker struct {
	store store.Store[market.OpenOffer]
	log   zerolog.Logger
}

func NewTracker(st store.Store[market.OpenOffer], log zerolog.Logger) *Tracker {
	return &Tracker{store: st, log: log}
}

// OnPlace records a newly made offer. Offer ids are unique upstream, but a
// duplicate id is still safe: the row is replaced whole.
func (t *Tracker) OnPlace(ctx context.Context, offer market.OpenOffer) error {
	if err := t.store.Save(ctx, market.OfferKey(offer.ID), &offer); err != nil {
		return fmt.Errorf("place offer %d: %w", offer.ID, err)
	}
	return nil
}

// OnPartialFill subtracts the filled amounts from the offer's remainder.
// An absent row is a valid quiescent state (the offer was already resolved,
// or was never seen) and is a no-op.
func (t *Tracker) OnPartialFill(ctx context.Context, id uint64, filledPay, filledBuy decimal.Decimal) error {
	key := market.OfferKey(id)
	offer, err := t.store.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("fill offer %d: %w", id, err)
	}
	if offer == nil {
		t.log.Debug().Uint64("offer_id", id).Msg("fill for unknown offer ignored")
		return nil
	}
	if filledPay.GreaterThan(offer.PayAmt) {
		return &NegativeRemainderError{OfferID: id, Field: "pay_amt", Remaining: offer.PayAmt, Fill: filledPay}
	}
	if filledBuy.GreaterThan(offer.BuyAmt) {
		return &NegativeRemainderError{OfferID: id, Field: "buy_amt", Remaining: offer.BuyAmt, Fill: filledBuy}
	}
	offer.PayAmt = offer.PayAmt.Sub(filledPay)
	offer.BuyAmt = offer.BuyAmt.Sub(filledBuy)
	if err := t.store.Save(ctx, key, offer); err != nil {
		return fmt.Errorf("fill offer %d: %w", id, err)
	}
	return nil
}

// OnFullFillOrCancel drops the offer's row. Removing an absent row is a
// no-op.
func (t *Tracker) OnFullFillOrCancel(ctx context.Context, id uint64) error {
	if err := t.store.Remove(ctx, market.OfferKey(id)); err != nil {
		return fmt.Errorf("resolve offer %d: %w", id, err)
	}
	return nil
}
