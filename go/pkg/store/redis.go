package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"otc-indexer/go/pkg/shared"
)

// Redis is a Store keeping full-record JSON snapshots in Redis. It fits
// deployments where the aggregate tables are rebuildable from the event log
// and read latency matters more than durability.
type Redis[T any] struct {
	client *redis.Client
	prefix string
}

func NewRedis[T any](cfg shared.RedisConfig, prefix string) *Redis[T] {
	return &Redis[T]{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		prefix: prefix,
	}
}

func (r *Redis[T]) key(key string) string {
	return r.prefix + ":" + key
}

func (r *Redis[T]) Load(ctx context.Context, key string) (*T, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrUnavailable, key, err)
	}
	var rec T
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("%w: load %s: bad snapshot: %v", ErrUnavailable, key, err)
	}
	return &rec, nil
}

func (r *Redis[T]) Save(ctx context.Context, key string, rec *T) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: save %s: %v", ErrUnavailable, key, err)
	}
	if err := r.client.Set(ctx, r.key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: save %s: %v", ErrUnavailable, key, err)
	}
	return nil
}

func (r *Redis[T]) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: remove %s: %v", ErrUnavailable, key, err)
	}
	return nil
}
