package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Lifecycle event types written by the dispatch queue.
const (
	TypeSubmitted = "submitted"
	TypeRejected  = "rejected"
	TypeClaimed   = "claimed"
	TypeGenerated = "generated"
	TypeExtracted = "extracted"
	TypeGate      = "gate"
	TypeValidated = "validated"
	TypeCompleted = "completed"
	TypeFailed    = "failed"
)

// Log appends events to the events table.
type Log struct {
	db *sql.DB
}

// NewLog returns a Log writing to db. The schema must already be applied.
func NewLog(db *sql.DB) *Log {
	return &Log{db: db}
}

// Append writes one event. payload is JSON-encoded unless it is already a
// string; nil stores an empty payload.
func (l *Log) Append(ctx context.Context, typ, source, packageID string, payload any) error {
	var body string
	switch p := payload.(type) {
	case nil:
	case string:
		body = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("event payload: %w", err)
		}
		body = string(b)
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO events (type, source, package_id, payload) VALUES (?, ?, ?, ?)`,
		typ, source, packageID, body)
	if err != nil {
		return fmt.Errorf("event insert: %w", err)
	}
	return nil
}

// Query reads events through the writer's connection.
func (l *Log) Query(ctx context.Context, opts QueryOpts) ([]Event, error) {
	return query(ctx, l.db, opts)
}
