// Package sink archives one immutable record per chain event. The indexer
// core never reads these back; they exist for audit and analytics.
package sink

import (
	"context"

	"otc-indexer/go/pkg/market"
)

// RawRecord is the flattened mirror of a single event.
type RawRecord struct {
	EventID   string
	Type      market.EventType
	Timestamp int64
	Fields    map[string]string
}

// Sink appends records durably, in delivery order. Append must be idempotent
// per event id so redelivered events do not duplicate history.
type Sink interface {
	Append(ctx context.Context, rec RawRecord) error
}

// Discard drops every record. Used when no archive is configured and in
// tests that don't care about the mirror.
type Discard struct{}

func (Discard) Append(ctx context.Context, rec RawRecord) error { return nil }
