// Package sqlite persists store events to a SQLite journal so state
// survives restarts.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/boddenberg/crm-leads-bfa-go/internal/domain"
)

var tracer = otel.Tracer("infra/sqlite")

const schema = `
CREATE TABLE IF NOT EXISTS events (
    seq       INTEGER PRIMARY KEY,
    kind      TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    entity_id TEXT NOT NULL DEFAULT '',
    payload   TEXT NOT NULL,
    ts        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_tenant ON events(tenant_id);
`

// Journal is an append-only event log. It implements port.EventSink.
type Journal struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates or opens the journal at path. ":memory:" keeps it in RAM.
func Open(path string, logger *zap.Logger) (*Journal, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// one writer keeps seq order and lets :memory: share a single connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating journal: %w", err)
	}

	return &Journal{db: db, logger: logger}, nil
}

// Close releases the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Handle appends one event. Re-delivered sequence numbers are ignored.
func (j *Journal) Handle(ctx context.Context, ev domain.Event) error {
	ctx, span := tracer.Start(ctx, "Journal.Handle")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.kind", string(ev.Kind)),
		attribute.Int64("event.seq", ev.Seq),
	)

	_, err := j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (seq, kind, tenant_id, entity_id, payload, ts) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.Seq, string(ev.Kind), ev.TenantID, ev.EntityID, string(ev.Payload), ev.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal append %d: %w", ev.Seq, err)
	}
	return nil
}

// Load returns every event in sequence order.
func (j *Journal) Load(ctx context.Context) ([]domain.Event, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, kind, tenant_id, entity_id, payload, ts FROM events ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("journal load: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			ev      domain.Event
			kind    string
			payload string
			ts      string
		)
		if err := rows.Scan(&ev.Seq, &kind, &ev.TenantID, &ev.EntityID, &payload, &ts); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		ev.Kind = domain.EventKind(kind)
		ev.Payload = []byte(payload)
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			ev.Timestamp = t
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Count reports how many events are journaled.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

// Ping checks the database for readiness probes.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}
