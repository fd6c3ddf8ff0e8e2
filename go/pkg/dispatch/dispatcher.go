// Package dispatch routes decoded chain events, one at a time and in
// canonical order, to the raw-event sink, the aggregation engine, and the
// offer tracker.
package dispatch

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/rs/zerolog"

	"otc-indexer/go/pkg/agg"
	"otc-indexer/go/pkg/market"
	"otc-indexer/go/pkg/offers"
	"otc-indexer/go/pkg/sink"
)

// Dispatcher is the single entry point for the event stream. Every event is
// fully processed before the next; an event id seen before is skipped, which
// makes at-least-once delivery converge.
type Dispatcher struct {
	engine  *agg.Engine
	tracker *offers.Tracker
	sink    sink.Sink
	log     zerolog.Logger

	// OnAggregates, when set, receives the bucket snapshots a trade updated.
	OnAggregates func(ctx context.Context, buckets []market.PairTimeBucket) error

	seen *seenSet
}

func New(engine *agg.Engine, tracker *offers.Tracker, sk sink.Sink, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		engine:  engine,
		tracker: tracker,
		sink:    sk,
		log:     log,
		seen:    newSeenSet(defaultSeenCapacity),
	}
}

// Handle processes one event envelope. Errors surface synchronously:
// a *market.MalformedEventError means the event is permanently bad and was
// not applied; anything else means the event should be redelivered.
func (d *Dispatcher) Handle(ctx context.Context, env market.Envelope) error {
	if env.TxHash == "" || env.Type == "" {
		return &market.MalformedEventError{EventID: env.EventID(), Reason: "missing tx hash or type"}
	}
	id := env.EventID()
	if d.seen.Has(id) {
		d.log.Debug().Str("event_id", id).Msg("duplicate event skipped")
		return nil
	}
	if err := d.route(ctx, id, env); err != nil {
		return err
	}
	// Marked only after full success so a failed event is retried whole.
	d.seen.Mark(id)
	return nil
}

func (d *Dispatcher) route(ctx context.Context, id string, env market.Envelope) error {
	switch env.Type {
	case market.EventTrade:
		return d.onTrade(ctx, id, env)
	case market.EventMake:
		return d.onMake(ctx, id, env)
	case market.EventTake:
		return d.onTake(ctx, id, env)
	case market.EventKill:
		return d.onKill(ctx, id, env)
	case market.EventOrderFilled:
		return d.onOrderFilled(ctx, id, env)
	case market.EventOrderStatus:
		return d.onOrderStatus(ctx, id, env)
	case market.EventDeposit:
		return d.onDeposit(ctx, id, env)
	case market.EventWithdraw:
		return d.onWithdraw(ctx, id, env)
	case market.EventItemUpdate:
		return d.onItemUpdate(ctx, id, env)
	case market.EventSortedOffer:
		return d.onSortedOffer(ctx, id, env)
	case market.EventMinSell:
		return d.onMinSell(ctx, id, env)
	case market.EventOfferType:
		return d.onOfferType(ctx, id, env)
	case market.EventSetAuthority:
		return d.onSetAuthority(ctx, id, env)
	case market.EventSetOwner:
		return d.onSetOwner(ctx, id, env)
	default:
		return &market.MalformedEventError{EventID: id, Reason: "unknown event type " + string(env.Type)}
	}
}

func (d *Dispatcher) onTrade(ctx context.Context, id string, env market.Envelope) error {
	var p market.TradeParams
	if err := decode(id, env.Params, &p); err != nil {
		return err
	}
	ts := p.Timestamp
	if ts == 0 {
		ts = env.Timestamp
	}
	if err := d.append(ctx, env, id, map[string]string{
		"pay_gem": p.PayGem,
		"pay_amt": p.PayAmt.String(),
		"buy_gem": p.BuyGem,
		"buy_amt": p.BuyAmt.String(),
	}); err != nil {
		return err
	}
	trade := market.Trade{
		EventID:   id,
		PayGem:    p.PayGem,
		BuyGem:    p.BuyGem,
		PayAmt:    p.PayAmt,
		BuyAmt:    p.BuyAmt,
		Timestamp: ts,
	}
	buckets, err := d.engine.ApplyTrade(ctx, trade)
	if err != nil {
		return err
	}
	if d.OnAggregates != nil && len(buckets) > 0 {
		return d.OnAggregates(ctx, buckets)
	}
	return nil
}

func (d *Dispatcher) onMake(ctx context.Context, id string, env market.Envelope) error {
	var p market.MakeParams
	if err := decode(id, env.Params, &p); err != nil {
		return err
	}
	if err := d.append(ctx, env, id, map[string]string{
		"id":         strconv.FormatUint(p.ID, 10),
		"pair":       p.Pair,
		"maker":      p.Maker,
		"pay_gem":    p.PayGem,
		"buy_gem":    p.BuyGem,
		"pay_amt":    p.PayAmt.String(),
		"buy_amt":    p.BuyAmt.String(),
		"offer_type": p.OfferType,
	}); err != nil {
		return err
	}
	return d.tracker.OnPlace(ctx, market.OpenOffer{
		ID:        p.ID,
		Pair:      p.Pair,
		Maker:     p.Maker,
		PayGem:    p.PayGem,
		BuyGem:    p.BuyGem,
		PayAmt:    p.PayAmt,
		BuyAmt:    p.BuyAmt,
		Timestamp: p.Timestamp,
		OfferType: p.OfferType,
	})
}

func (d *Dispatcher) onTake(ctx context.Context, id string, env market.Envelope) error {
	var p market.TakeParams
	if err := decode(id, env.Params, &p); err != nil {
		return err
	}
	if err := d.append(ctx, env, id, map[string]string{
		"id":       strconv.FormatUint(p.ID, 10),
		"pair":     p.Pair,
		"maker":    p.Maker,
		"taker":    p.Taker,
		"pay_gem":  p.PayGem,
		"buy_gem":  p.BuyGem,
		"take_amt": p.TakeAmt.String(),
		"give_amt": p.GiveAmt.String(),
	}); err != nil {
		return err
	}
	return d.tracker.OnPartialFill(ctx, p.ID, p.TakeAmt, p.GiveAmt)
}

func (d *Dispatcher) onKill(ctx context.Context, id string, env market.Envelope) error {
	var p market.KillParams
	if err := decode(id, env.Params, &p); err != nil {
		return err
	}
	if err := d.append(ctx, env, id, map[string]string{
		"id":      strconv.FormatUint(p.ID, 10),
		"pair":    p.Pair,
		"maker":   p.Maker,
		"pay_gem": p.PayGem,
		"buy_gem": p.BuyGem,
		"pay_amt": p.PayAmt.String(),
		"buy_amt": p.BuyAmt.String(),
	}); err != nil {
		return err
	}
	return d.tracker.OnFullFillOrCancel(ctx, p.ID)
}

func (d *Dispatcher) onOrderFilled(ctx context.Context, id string, env market.Envelope) error {
	var p market.OrderFilledParams
	if err := decode(id, env.Params, &p); err != nil {
		return err
	}
	if err := d.append(ctx, env, id, map[string]string{
		"id": strconv.FormatUint(p.ID, 10),
	}); err != nil {
		return err
	}
	return d.tracker.OnFullFillOrCancel(ctx, p.ID)
}

func (d *Dispatcher) onOrderStatus(ctx context.Context, id string, env market.Envelope) error {
	var p market.OrderStatusParams
	if err := decode(id, env.Params, &p); err != nil {
		return err
	}
	return d.append(ctx, env, id, map[string]string{
		"id":             strconv.FormatUint(p.ID, 10),
		"pair":           p.Pair,
		"pay_gem":        p.PayGem,
		"pay_amt":        p.PayAmt.String(),
		"filled_pay_amt": p.FilledPayAmt.String(),
		"buy_gem":        p.BuyGem,
		"buy_amt":        p.BuyAmt.String(),
		"filled_buy_amt": p.FilledBuyAmt.String(),
		"owner":          p.Owner,
		"cancelled":      strconv.FormatBool(p.Cancelled),
		"filled":         strconv.FormatBool(p.Filled),
	})
}

func (d *Dispatcher) onDeposit(ctx context.Context, id string, env market.Envelope) error {
	var p market.DepositParams
	if err := decode(id, env.Params, &p); err != nil {
		return err
	}
	return d.append(ctx, env, id, map[string]string{
		"token":   p.Token,
		"user":    p.User,
		"amount":  p.Amount.String(),
		"balance": p.Balance.String(),
	})
}

func (d *Dispatcher) onWithdraw(ctx context.Context, id string, env market.Envelope) error {
	var p market.WithdrawParams
	if err := decode(id, env.Params, &p); err != nil {
		return err
	}
	return d.append(ctx, env, id, map[string]string{
		"token":   p.Token,
		"user":    p.User,
		"amount":  p.Amount.String(),
		"balance": p.Balance.String(),
	})
}

func (d *Dispatcher) onItemUpdate(ctx context.Context, id string, env market.Envelope) error {
	var p market.ItemUpdateParams
	if err := decode(id, env.Params, &p); err != nil {
		return err
	}
	return d.append(ctx, env, id, map[string]string{
		"id": strconv.FormatUint(p.ID, 10),
	})
}

func (d *Dispatcher) onSortedOffer(ctx context.Context, id string, env market.Envelope) error {
	var p market.SortedOfferParams
	if err := decode(id, env.Params, &p); err != nil {
		return err
	}
	return d.append(ctx, env, id, map[string]string{
		"id": strconv.FormatUint(p.ID, 10),
	})
}

func (d *Dispatcher) onMinSell(ctx context.Context, id string, env market.Envelope) error {
	var p market.MinSellParams
	if err := decode(id, env.Params, &p); err != nil {
		return err
	}
	return d.append(ctx, env, id, map[string]string{
		"pay_gem":    p.PayGem,
		"min_amount": p.MinAmount.String(),
		"caller":     p.Caller,
	})
}

func (d *Dispatcher) onOfferType(ctx context.Context, id string, env market.Envelope) error {
	var p market.OfferTypeParams
	if err := decode(id, env.Params, &p); err != nil {
		return err
	}
	return d.append(ctx, env, id, map[string]string{
		"offer_type": p.OfferType,
		"state":      strconv.FormatBool(p.State),
	})
}

func (d *Dispatcher) onSetAuthority(ctx context.Context, id string, env market.Envelope) error {
	var p market.SetAuthorityParams
	if err := decode(id, env.Params, &p); err != nil {
		return err
	}
	return d.append(ctx, env, id, map[string]string{"authority": p.Authority})
}

func (d *Dispatcher) onSetOwner(ctx context.Context, id string, env market.Envelope) error {
	var p market.SetOwnerParams
	if err := decode(id, env.Params, &p); err != nil {
		return err
	}
	return d.append(ctx, env, id, map[string]string{"owner": p.Owner})
}

func (d *Dispatcher) append(ctx context.Context, env market.Envelope, id string, fields map[string]string) error {
	return d.sink.Append(ctx, sink.RawRecord{
		EventID:   id,
		Type:      env.Type,
		Timestamp: env.Timestamp,
		Fields:    fields,
	})
}

func decode(id string, raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return &market.MalformedEventError{EventID: id, Reason: "missing params"}
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return &market.MalformedEventError{EventID: id, Reason: "bad params: " + err.Error()}
	}
	return nil
}
