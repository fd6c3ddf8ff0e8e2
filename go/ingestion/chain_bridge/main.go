package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"otc-indexer/go/pkg/agg"
	"otc-indexer/go/pkg/bucket"
	"otc-indexer/go/pkg/dispatch"
	"otc-indexer/go/pkg/market"
	"otc-indexer/go/pkg/offers"
	"otc-indexer/go/pkg/shared"
	"otc-indexer/go/pkg/sink"
	"otc-indexer/go/pkg/store"
)

// Config for the chain bridge.
type Config struct {
	Kafka      shared.KafkaConfig
	PG         shared.PostgresConfig
	Redis      shared.RedisConfig
	ClickHouse shared.ClickHouseConfig
	Metrics    shared.MetricsConfig

	InTopic        string `envconfig:"IN_TOPIC" default:"chain.events"`
	AggTopicPrefix string `envconfig:"AGG_TOPIC_PREFIX" default:"aggregates"`
	PublishAggs    bool   `envconfig:"PUBLISH_AGGREGATES" default:"true"`
	Granularities  string `envconfig:"GRANULARITIES" default:"hour:3600,day:86400"`
	StoreBackend   string `envconfig:"STORE_BACKEND" default:"postgres" validate:"oneof=postgres redis memory"`
	ArchiveBackend string `envconfig:"ARCHIVE_BACKEND" default:"clickhouse" validate:"oneof=clickhouse none"`
}

// Metrics bundle.
type metrics struct {
	eventsIn  *prometheus.CounterVec
	malformed prometheus.Counter
	conflicts prometheus.Counter
	retried   prometheus.Counter
	handleDur prometheus.Histogram
}

func newMetrics() metrics {
	return metrics{
		eventsIn:  shared.NewCounterVec(prometheus.CounterOpts{Name: "bridge_events_total", Help: "Events processed"}, []string{"type"}),
		malformed: shared.NewCounter(prometheus.CounterOpts{Name: "bridge_malformed_total", Help: "Events rejected as malformed"}),
		conflicts: shared.NewCounter(prometheus.CounterOpts{Name: "bridge_negative_remainder_total", Help: "Fills exceeding an offer remainder"}),
		retried:   shared.NewCounter(prometheus.CounterOpts{Name: "bridge_redeliveries_total", Help: "Events left uncommitted for redelivery"}),
		handleDur: shared.NewHist(prometheus.HistogramOpts{Name: "bridge_handle_seconds", Help: "Per-event handling duration", Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}}),
	}
}

func main() {
	_ = godotenv.Load()
	cfg := shared.MustLoad[Config]("")
	logger := shared.NewLogger("chain_bridge")

	grans, err := bucket.ParseSet(cfg.Granularities)
	if err != nil {
		logger.Fatal().Err(err).Msg("bad granularity config")
	}

	m := newMetrics()
	shared.NewMetricsServer(cfg.Metrics.Port).Start()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var (
		bucketStore store.Store[market.PairTimeBucket]
		offerStore  store.Store[market.OpenOffer]
	)
	switch cfg.StoreBackend {
	case "postgres":
		db := connectPG(ctx, cfg.PG, logger)
		defer db.Close()
		if err := db.Exec(ctx, store.SchemaSQL); err != nil {
			logger.Fatal().Err(err).Msg("schema init")
		}
		bucketStore = store.NewPgBucketStore(db)
		offerStore = store.NewPgOfferStore(db)
	case "redis":
		bucketStore = store.NewRedis[market.PairTimeBucket](cfg.Redis, "bucket")
		offerStore = store.NewRedis[market.OpenOffer](cfg.Redis, "offer")
	default:
		bucketStore = store.NewMemory[market.PairTimeBucket]()
		offerStore = store.NewMemory[market.OpenOffer]()
	}

	var archive sink.Sink = sink.Discard{}
	if cfg.ArchiveBackend == "clickhouse" {
		archive = connectClickHouse(ctx, cfg.ClickHouse, logger)
	}

	engine := agg.New(grans, bucketStore, logger)
	tracker := offers.NewTracker(offerStore, logger)
	dispatcher := dispatch.New(engine, tracker, archive, logger)

	consumer, err := shared.NewConsumer(cfg.Kafka, cfg.InTopic)
	if err != nil {
		logger.Fatal().Err(err).Msg("consumer init")
	}
	defer consumer.Close()

	if cfg.PublishAggs {
		producer, err := shared.NewProducer(cfg.Kafka)
		if err != nil {
			logger.Fatal().Err(err).Msg("producer init")
		}
		defer producer.Close()
		dispatcher.OnAggregates = func(ctx context.Context, buckets []market.PairTimeBucket) error {
			for _, b := range buckets {
				topic := cfg.AggTopicPrefix + "." + b.Granularity
				if err := producer.ProduceJSON(ctx, topic, []byte(b.Key), b); err != nil {
					return err
				}
			}
			return nil
		}
	}

	logger.Info().
		Str("topic", cfg.InTopic).
		Str("store", cfg.StoreBackend).
		Str("archive", cfg.ArchiveBackend).
		Msg("chain bridge started")

	run(ctx, consumer, dispatcher, m, logger)
}

// run is the sequential delivery loop: fetch, handle, commit. An event is
// committed when it was applied, skipped as a duplicate, or rejected as
// permanently bad; transient failures leave it uncommitted for redelivery.
func run(ctx context.Context, consumer shared.Consumer, dispatcher *dispatch.Dispatcher, m metrics, logger zerolog.Logger) {
	var malformed *market.MalformedEventError
	var conflict *offers.NegativeRemainderError

	for {
		msg, err := consumer.Poll(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info().Msg("chain bridge stopped")
				return
			}
			logger.Warn().Err(err).Msg("poll failed")
			continue
		}

		var env market.Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			// Undecodable payloads can never succeed; skip past them.
			logger.Error().Err(err).Int64("offset", msg.Offset).Msg("undecodable envelope")
			m.malformed.Inc()
			_ = consumer.Commit(msg)
			continue
		}

		start := time.Now()
		err = dispatcher.Handle(ctx, env)
		m.handleDur.Observe(time.Since(start).Seconds())
		m.eventsIn.WithLabelValues(string(env.Type)).Inc()

		switch {
		case err == nil:
			_ = consumer.Commit(msg)
		case errors.As(err, &malformed):
			logger.Error().Err(err).Str("event_id", env.EventID()).Msg("malformed event rejected")
			m.malformed.Inc()
			_ = consumer.Commit(msg)
		case errors.As(err, &conflict):
			// Data integrity problem upstream; recorded loudly, stream continues.
			logger.Error().Err(err).Str("event_id", env.EventID()).Msg("negative remainder")
			m.conflicts.Inc()
			_ = consumer.Commit(msg)
		default:
			logger.Warn().Err(err).Str("event_id", env.EventID()).Msg("event left for redelivery")
			m.retried.Inc()
		}
	}
}

func connectPG(ctx context.Context, cfg shared.PostgresConfig, logger zerolog.Logger) *shared.PgxDB {
	var db *shared.PgxDB
	err := backoff.Retry(func() error {
		var err error
		db, err = shared.NewPgxPool(ctx, cfg)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 8), ctx))
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect")
	}
	return db
}

func connectClickHouse(ctx context.Context, cfg shared.ClickHouseConfig, logger zerolog.Logger) sink.Sink {
	var ch *sink.ClickHouse
	err := backoff.Retry(func() error {
		var err error
		ch, err = sink.NewClickHouse(ctx, cfg)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 8), ctx))
	if err != nil {
		logger.Fatal().Err(err).Msg("clickhouse connect")
	}
	return ch
}
