package snapshot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseSink writes snapshot rows through a native-protocol
// ClickHouse connection. The target table schema:
//
//	event_time DateTime, guild_id String, token_hash String,
//	route String, status UInt16, payload String
type ClickHouseSink struct {
	conn driver.Conn
}

// NewClickHouseSink wraps an established ClickHouse connection.
func NewClickHouseSink(conn driver.Conn) *ClickHouseSink {
	return &ClickHouseSink{conn: conn}
}

// Insert appends one batch. Partial-batch failure surfaces as an error
// from Send; the caller decides whether to retry (duplicates are
// tolerated downstream).
func (s *ClickHouseSink) Insert(ctx context.Context, table string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(
		"INSERT INTO %s (event_time, guild_id, token_hash, route, status, payload)", table))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, r := range rows {
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			// Normalize guarantees JSON-safe payloads; this is a bug guard
			payload = []byte(fmt.Sprintf(`{"value":%q}`, err.Error()))
		}
		if err := batch.Append(r.EventTime, r.GuildID, r.TokenHash, r.Route, r.Status, string(payload)); err != nil {
			return fmt.Errorf("append row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}
