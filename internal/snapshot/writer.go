// Package snapshot turns per-route fetch outcomes into normalized,
// audit-safe rows and batches them into the analytical sink.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
)

// DefaultTable is the append-only snapshot table.
const DefaultTable = "api_snapshots"

// Outcome is the result of one remote call, success or failure. The
// payload holds the decoded response on success or an error description
// on failure.
type Outcome struct {
	Route   string
	OK      bool
	Payload any
}

// Row is one durable snapshot record. Rows are immutable once written;
// the sink is append-only.
type Row struct {
	EventTime time.Time
	GuildID   string
	TokenHash string
	Route     string
	Status    uint16
	Payload   map[string]any
}

// Sink accepts batched row inserts. Rows are never updated or deleted.
type Sink interface {
	Insert(ctx context.Context, table string, rows []Row) error
}

// HashToken returns the sha256 hex digest of a server key. Only the
// hash ever leaves the process; it is deterministic so one tenant's
// rows remain correlatable.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Writer builds rows from outcomes and inserts them into the sink.
type Writer struct {
	sink   Sink
	table  string
	logger *slog.Logger
	now    func() time.Time
}

// NewWriter creates a Writer targeting table (DefaultTable if empty).
func NewWriter(sink Sink, table string, logger *slog.Logger) *Writer {
	if table == "" {
		table = DefaultTable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{sink: sink, table: table, logger: logger, now: time.Now}
}

// Rows maps outcomes to snapshot rows: status 200 for success, 500 for
// failure, payload normalized, server key replaced by its hash.
func (w *Writer) Rows(guildID, serverKey string, outcomes []Outcome) []Row {
	tokenHash := HashToken(serverKey)
	eventTime := w.now().UTC().Truncate(time.Second)
	rows := make([]Row, 0, len(outcomes))
	for _, o := range outcomes {
		status := uint16(500)
		if o.OK {
			status = 200
		}
		rows = append(rows, Row{
			EventTime: eventTime,
			GuildID:   guildID,
			TokenHash: tokenHash,
			Route:     o.Route,
			Status:    status,
			Payload:   Normalize(o.Payload),
		})
	}
	return rows
}

// Write persists outcomes as one batch. A failed insert is retried once
// before the error is returned; losing a full tenant pass is a real
// data gap, so callers must observe it.
func (w *Writer) Write(ctx context.Context, guildID, serverKey string, outcomes []Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	rows := w.Rows(guildID, serverKey, outcomes)
	if err := w.sink.Insert(ctx, w.table, rows); err != nil {
		w.logger.Warn("snapshot insert failed, retrying once",
			"guild", guildID, "rows", len(rows), "err", err)
		if err := w.sink.Insert(ctx, w.table, rows); err != nil {
			return fmt.Errorf("insert %d snapshot rows for %s: %w", len(rows), guildID, err)
		}
	}
	return nil
}

// WriteBestEffort persists diagnostic outcomes, logging and swallowing
// any insert failure. Loss here is tolerated: these rows exist for
// visibility, not correctness.
func (w *Writer) WriteBestEffort(ctx context.Context, guildID, serverKey string, outcomes []Outcome) {
	if len(outcomes) == 0 {
		return
	}
	rows := w.Rows(guildID, serverKey, outcomes)
	if err := w.sink.Insert(ctx, w.table, rows); err != nil {
		w.logger.Warn("best-effort snapshot insert dropped",
			"guild", guildID, "rows", len(rows), "err", err)
	}
}
