package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"otc-indexer/go/pkg/shared"
)

// ClickHouse appends raw event records to a wide events table. The
// ReplacingMergeTree key on event_id makes redelivered events collapse to a
// single row.
type ClickHouse struct {
	conn driver.Conn
}

func NewClickHouse(ctx context.Context, cfg shared.ClickHouseConfig) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chain_events (
			event_id String,
			type String,
			ts DateTime,
			fields String,
			ingested_at DateTime DEFAULT now()
		) ENGINE = ReplacingMergeTree()
		ORDER BY (event_id)
	`); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return &ClickHouse{conn: conn}, nil
}

func (c *ClickHouse) Append(ctx context.Context, rec RawRecord) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("append %s: %w", rec.EventID, err)
	}
	err = c.conn.Exec(ctx,
		`INSERT INTO chain_events (event_id, type, ts, fields) VALUES (?, ?, ?, ?)`,
		rec.EventID, string(rec.Type), time.Unix(rec.Timestamp, 0).UTC(), string(fields),
	)
	if err != nil {
		return fmt.Errorf("append %s: %w", rec.EventID, err)
	}
	return nil
}

func (c *ClickHouse) Close() error { return c.conn.Close() }
