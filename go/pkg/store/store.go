// Package store is the persistence seam of the indexer: key-value style
// load/save/remove of full-record snapshots, polymorphic over the backing
// technology. No merge logic lives here.
package store

import (
	"context"
	"errors"
)

// ErrUnavailable marks a storage-layer failure. The engine propagates it
// without retrying; redelivery is the dispatcher's job.
var ErrUnavailable = errors.New("store unavailable")

// Store persists one record family. Load returns (nil, nil) when the key is
// absent — absence is a valid state, not an error. Save writes the full
// snapshot and is idempotent; Remove of a missing key is a no-op.
type Store[T any] interface {
	Load(ctx context.Context, key string) (*T, error)
	Save(ctx context.Context, key string, rec *T) error
	Remove(ctx context.Context, key string) error
}
