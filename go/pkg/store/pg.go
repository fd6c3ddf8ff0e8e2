package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"otc-indexer/go/pkg/market"
	"otc-indexer/go/pkg/shared"
)

// Schema for the durable stores. Amounts and ratios are NUMERIC so nothing
// is lost between process restarts.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS pair_time_buckets (
    key TEXT PRIMARY KEY,
    pay_gem TEXT NOT NULL,
    buy_gem TEXT NOT NULL,
    granularity TEXT NOT NULL,
    bucket_start BIGINT NOT NULL,
    pay_amt NUMERIC NOT NULL,
    buy_amt NUMERIC NOT NULL,
    open_pay_over_buy NUMERIC NOT NULL,
    close_pay_over_buy NUMERIC NOT NULL,
    min_pay_over_buy NUMERIC NOT NULL,
    max_pay_over_buy NUMERIC NOT NULL,
    open_buy_over_pay NUMERIC NOT NULL,
    close_buy_over_pay NUMERIC NOT NULL,
    min_buy_over_pay NUMERIC NOT NULL,
    max_buy_over_pay NUMERIC NOT NULL,
    trade_count BIGINT NOT NULL,
    last_event_id TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS open_offers (
    key TEXT PRIMARY KEY,
    id TEXT NOT NULL,
    pair TEXT NOT NULL,
    maker TEXT NOT NULL,
    pay_gem TEXT NOT NULL,
    buy_gem TEXT NOT NULL,
    pay_amt NUMERIC NOT NULL,
    buy_amt NUMERIC NOT NULL,
    ts BIGINT NOT NULL,
    offer_type TEXT NOT NULL
);
`

const bucketUpsertSQL = `
INSERT INTO pair_time_buckets (
    key, pay_gem, buy_gem, granularity, bucket_start,
    pay_amt, buy_amt,
    open_pay_over_buy, close_pay_over_buy, min_pay_over_buy, max_pay_over_buy,
    open_buy_over_pay, close_buy_over_pay, min_buy_over_pay, max_buy_over_pay,
    trade_count, last_event_id
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
ON CONFLICT (key) DO UPDATE SET
    pay_amt = EXCLUDED.pay_amt,
    buy_amt = EXCLUDED.buy_amt,
    open_pay_over_buy = EXCLUDED.open_pay_over_buy,
    close_pay_over_buy = EXCLUDED.close_pay_over_buy,
    min_pay_over_buy = EXCLUDED.min_pay_over_buy,
    max_pay_over_buy = EXCLUDED.max_pay_over_buy,
    open_buy_over_pay = EXCLUDED.open_buy_over_pay,
    close_buy_over_pay = EXCLUDED.close_buy_over_pay,
    min_buy_over_pay = EXCLUDED.min_buy_over_pay,
    max_buy_over_pay = EXCLUDED.max_buy_over_pay,
    trade_count = EXCLUDED.trade_count,
    last_event_id = EXCLUDED.last_event_id;
`

const bucketSelectSQL = `
SELECT pay_gem, buy_gem, granularity, bucket_start,
    pay_amt::text, buy_amt::text,
    open_pay_over_buy::text, close_pay_over_buy::text, min_pay_over_buy::text, max_pay_over_buy::text,
    open_buy_over_pay::text, close_buy_over_pay::text, min_buy_over_pay::text, max_buy_over_pay::text,
    trade_count, last_event_id
FROM pair_time_buckets WHERE key = $1;
`

// PgBucketStore persists pair/time aggregates in Postgres.
type PgBucketStore struct {
	db shared.DB
}

func NewPgBucketStore(db shared.DB) *PgBucketStore {
	return &PgBucketStore{db: db}
}

var _ Store[market.PairTimeBucket] = (*PgBucketStore)(nil)

func (s *PgBucketStore) Load(ctx context.Context, key string) (*market.PairTimeBucket, error) {
	var (
		b    market.PairTimeBucket
		nums [10]string
	)
	b.Key = key
	err := s.db.QueryRow(ctx, bucketSelectSQL, key).Scan(
		&b.PayGem, &b.BuyGem, &b.Granularity, &b.BucketStart,
		&nums[0], &nums[1], &nums[2], &nums[3], &nums[4], &nums[5],
		&nums[6], &nums[7], &nums[8], &nums[9],
		&b.TradeCount, &b.LastEventID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load bucket %s: %v", ErrUnavailable, key, err)
	}
	fields := []*decimal.Decimal{
		&b.PayAmt, &b.BuyAmt,
		&b.OpenPayOverBuy, &b.ClosePayOverBuy, &b.MinPayOverBuy, &b.MaxPayOverBuy,
		&b.OpenBuyOverPay, &b.CloseBuyOverPay, &b.MinBuyOverPay, &b.MaxBuyOverPay,
	}
	for i, dst := range fields {
		d, perr := decimal.NewFromString(nums[i])
		if perr != nil {
			return nil, fmt.Errorf("%w: bucket %s: bad numeric %q", ErrUnavailable, key, nums[i])
		}
		*dst = d
	}
	return &b, nil
}

func (s *PgBucketStore) Save(ctx context.Context, key string, b *market.PairTimeBucket) error {
	err := s.db.Exec(ctx, bucketUpsertSQL,
		key, b.PayGem, b.BuyGem, b.Granularity, b.BucketStart,
		b.PayAmt.String(), b.BuyAmt.String(),
		b.OpenPayOverBuy.String(), b.ClosePayOverBuy.String(), b.MinPayOverBuy.String(), b.MaxPayOverBuy.String(),
		b.OpenBuyOverPay.String(), b.CloseBuyOverPay.String(), b.MinBuyOverPay.String(), b.MaxBuyOverPay.String(),
		b.TradeCount, b.LastEventID,
	)
	if err != nil {
		return fmt.Errorf("%w: save bucket %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *PgBucketStore) Remove(ctx context.Context, key string) error {
	if err := s.db.Exec(ctx, `DELETE FROM pair_time_buckets WHERE key = $1;`, key); err != nil {
		return fmt.Errorf("%w: remove bucket %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

const offerUpsertSQL = `
INSERT INTO open_offers (key, id, pair, maker, pay_gem, buy_gem, pay_amt, buy_amt, ts, offer_type)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (key) DO UPDATE SET
    pair = EXCLUDED.pair,
    maker = EXCLUDED.maker,
    pay_gem = EXCLUDED.pay_gem,
    buy_gem = EXCLUDED.buy_gem,
    pay_amt = EXCLUDED.pay_amt,
    buy_amt = EXCLUDED.buy_amt,
    ts = EXCLUDED.ts,
    offer_type = EXCLUDED.offer_type;
`

const offerSelectSQL = `
SELECT id, pair, maker, pay_gem, buy_gem, pay_amt::text, buy_amt::text, ts, offer_type
FROM open_offers WHERE key = $1;
`

// PgOfferStore persists the open-offer side-table in Postgres.
type PgOfferStore struct {
	db shared.DB
}

func NewPgOfferStore(db shared.DB) *PgOfferStore {
	return &PgOfferStore{db: db}
}

var _ Store[market.OpenOffer] = (*PgOfferStore)(nil)

func (s *PgOfferStore) Load(ctx context.Context, key string) (*market.OpenOffer, error) {
	var (
		o              market.OpenOffer
		id             string
		payAmt, buyAmt string
	)
	err := s.db.QueryRow(ctx, offerSelectSQL, key).Scan(
		&id, &o.Pair, &o.Maker, &o.PayGem, &o.BuyGem, &payAmt, &buyAmt, &o.Timestamp, &o.OfferType,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load offer %s: %v", ErrUnavailable, key, err)
	}
	if o.ID, err = strconv.ParseUint(id, 10, 64); err != nil {
		return nil, fmt.Errorf("%w: offer %s: bad id %q", ErrUnavailable, key, id)
	}
	if o.PayAmt, err = decimal.NewFromString(payAmt); err != nil {
		return nil, fmt.Errorf("%w: offer %s: bad numeric %q", ErrUnavailable, key, payAmt)
	}
	if o.BuyAmt, err = decimal.NewFromString(buyAmt); err != nil {
		return nil, fmt.Errorf("%w: offer %s: bad numeric %q", ErrUnavailable, key, buyAmt)
	}
	return &o, nil
}

func (s *PgOfferStore) Save(ctx context.Context, key string, o *market.OpenOffer) error {
	err := s.db.Exec(ctx, offerUpsertSQL,
		key, market.OfferKey(o.ID), o.Pair, o.Maker, o.PayGem, o.BuyGem,
		o.PayAmt.String(), o.BuyAmt.String(), o.Timestamp, o.OfferType,
	)
	if err != nil {
		return fmt.Errorf("%w: save offer %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (s *PgOfferStore) Remove(ctx context.Context, key string) error {
	if err := s.db.Exec(ctx, `DELETE FROM open_offers WHERE key = $1;`, key); err != nil {
		return fmt.Errorf("%w: remove offer %s: %v", ErrUnavailable, key, err)
	}
	return nil
}
