package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Audit event statuses. An "attempt" is recorded before validation of a
// write; it is always paired with exactly one of the terminal statuses so
// rejected writes stay traceable.
const (
	AuditAttempt  = "attempt"
	AuditUpdated  = "updated"
	AuditRejected = "rejected"
	AuditError    = "error"
)

// AuditEvent is a structured record of one write attempt against an
// allowlisted table.
type AuditEvent struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Status    string                 `json:"status"`
	Schema    string                 `json:"schema"`
	Table     string                 `json:"table"`
	PK        map[string]interface{} `json:"pk,omitempty"`
	Set       map[string]interface{} `json:"set,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
	Updated   int64                  `json:"updated,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// AuditSink accepts audit events. Recording is fire-and-forget from the
// engine's point of view: sink failures are logged by the caller and never
// fail the request being audited.
type AuditSink interface {
	Record(ctx context.Context, ev AuditEvent) error
}

// NopAuditSink discards all events. Useful in tests and when no audit
// store is configured.
type NopAuditSink struct{}

func (NopAuditSink) Record(context.Context, AuditEvent) error { return nil }

// PGAuditSink persists audit events to the row_audit_events table.
type PGAuditSink struct {
	db DBTX
}

// NewPGAuditSink creates an audit sink writing to the given database.
func NewPGAuditSink(db DBTX) *PGAuditSink {
	return &PGAuditSink{db: db}
}

const auditTableDDL = `CREATE TABLE IF NOT EXISTS row_audit_events (
	id uuid PRIMARY KEY,
	created_at timestamptz NOT NULL,
	status text NOT NULL,
	schema_name text NOT NULL,
	table_name text NOT NULL,
	pk jsonb,
	set_fields jsonb,
	reason text NOT NULL DEFAULT '',
	rows_updated bigint NOT NULL DEFAULT 0,
	error text NOT NULL DEFAULT ''
)`

// EnsureSchema creates the audit table if it does not exist yet.
func (a *PGAuditSink) EnsureSchema(ctx context.Context) error {
	_, err := a.db.Exec(ctx, auditTableDDL)
	return err
}

const insertAuditEventSQL = `INSERT INTO row_audit_events
(id, created_at, status, schema_name, table_name, pk, set_fields, reason, rows_updated, error)
VALUES (@id, @created_at, @status, @schema_name, @table_name, @pk, @set_fields, @reason, @rows_updated, @error)`

// Record inserts one audit event. pk and set are stored as jsonb.
func (a *PGAuditSink) Record(ctx context.Context, ev AuditEvent) error {
	pkJSON, err := json.Marshal(ev.PK)
	if err != nil {
		pkJSON = nil
	}
	setJSON, err := json.Marshal(ev.Set)
	if err != nil {
		setJSON = nil
	}

	_, err = a.db.Exec(ctx, insertAuditEventSQL, pgx.NamedArgs{
		"id":           ev.ID,
		"created_at":   ev.Timestamp,
		"status":       ev.Status,
		"schema_name":  ev.Schema,
		"table_name":   ev.Table,
		"pk":           pkJSON,
		"set_fields":   setJSON,
		"reason":       ev.Reason,
		"rows_updated": ev.Updated,
		"error":        ev.Error,
	})
	return err
}

const recentAuditEventsSQL = `SELECT id, created_at, status, schema_name, table_name, pk, set_fields, reason, rows_updated, error
FROM row_audit_events
ORDER BY created_at DESC
LIMIT @limit_rows`

// Recent returns the most recent audit events, newest first.
func (a *PGAuditSink) Recent(ctx context.Context, limit int) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := a.db.Query(ctx, recentAuditEventsSQL, pgx.NamedArgs{"limit_rows": limit})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]AuditEvent, 0, limit)
	for rows.Next() {
		var ev AuditEvent
		var pkJSON, setJSON []byte
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.Status, &ev.Schema, &ev.Table,
			&pkJSON, &setJSON, &ev.Reason, &ev.Updated, &ev.Error); err != nil {
			return nil, err
		}
		if pkJSON != nil {
			_ = json.Unmarshal(pkJSON, &ev.PK)
		}
		if setJSON != nil {
			_ = json.Unmarshal(setJSON, &ev.Set)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// newAuditEvent stamps a fresh event with an ID and timestamp.
func newAuditEvent(status, schema, table string) AuditEvent {
	return AuditEvent{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Status:    status,
		Schema:    schema,
		Table:     table,
	}
}
