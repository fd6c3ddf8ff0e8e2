package shared

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// KafkaConfig holds broker and topic details.
type KafkaConfig struct {
	Brokers      string `envconfig:"KAFKA_BROKER" default:"localhost:9092"`
	GroupID      string `envconfig:"KAFKA_GROUP" default:"otc-indexer"`
	InTopic      string `envconfig:"IN_TOPIC"`
	OutTopic     string `envconfig:"OUT_TOPIC"`
	ProducerAcks string `envconfig:"KAFKA_ACKS" default:"all"`
	LingerMS     int    `envconfig:"KAFKA_LINGER_MS" default:"5"`
	BatchBytes   int    `envconfig:"KAFKA_BATCH_BYTES" default:"1048576"` // 1MB
}

func (k KafkaConfig) BrokerList() []string {
	parts := strings.Split(k.Brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"localhost:9092"}
	}
	return out
}

// PostgresConfig holds DB connection details.
type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432" validate:"gt=0"`
	Database string `envconfig:"POSTGRES_DB" default:"otc"`
	User     string `envconfig:"POSTGRES_USER" default:"indexer"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"indexer"`
	PoolMax  int    `envconfig:"PG_POOL_MAX" default:"8" validate:"gt=0"`
}

// RedisConfig holds the optional hot-store connection details.
type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0" validate:"gte=0"`
}

// ClickHouseConfig holds the raw-event archive connection details.
type ClickHouseConfig struct {
	Addr     string `envconfig:"CLICKHOUSE_ADDR" default:"localhost:9000"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"default"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD" default:""`
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Port int `envconfig:"METRICS_PORT" default:"9000" validate:"gt=0"`
}

var validate = validator.New()

// Load fills the given struct from environment and validates it.
func Load[T any](prefix string) (T, error) {
	var cfg T
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return cfg, err
	}
	if err := validate.Struct(&cfg); err != nil {
		return cfg, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// MustLoad is Load for main() wiring; panics on a bad environment.
func MustLoad[T any](prefix string) T {
	cfg, err := Load[T](prefix)
	if err != nil {
		panic(err)
	}
	return cfg
}
