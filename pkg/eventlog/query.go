// Package eventlog records pipeline lifecycle events in the SQLite state
// database and provides read-only queries over them for the CLI.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Event represents a single event from the pipeline log.
type Event struct {
	ID        int64
	Type      string
	Source    string
	PackageID string
	Payload   string
	CreatedAt time.Time
}

// QueryOpts specifies filter criteria for querying events.
type QueryOpts struct {
	// PackageID filters events to one work package.
	PackageID string

	// EventType filters to a specific event type (e.g., "claimed", "failed").
	EventType string

	// After filters events created after this time (inclusive)
	After *time.Time

	// Before filters events created before this time (inclusive)
	Before *time.Time

	// Limit restricts the number of results (0 = no limit)
	Limit int
}

// Reader provides read-only access to the event log.
type Reader struct {
	db *sql.DB
}

// NewReader opens the state database in read-only mode with WAL.
// Returns an error if the database doesn't exist or cannot be opened.
func NewReader(dbPath string) (*Reader, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}

	// Read-only with WAL so a running pipeline is never blocked.
	dsn := fmt.Sprintf("file:%s?mode=ro&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Reader{db: db}, nil
}

// Close releases the database connection.
// Safe to call multiple times.
func (r *Reader) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Query retrieves events matching the given filter criteria, newest first.
// Returns an empty slice if no events match.
func (r *Reader) Query(ctx context.Context, opts QueryOpts) ([]Event, error) {
	return query(ctx, r.db, opts)
}

func query(ctx context.Context, db *sql.DB, opts QueryOpts) ([]Event, error) {
	q, args := buildQuery(opts)

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var createdAtStr string

		err := rows.Scan(
			&e.ID,
			&e.Type,
			&e.Source,
			&e.PackageID,
			&e.Payload,
			&createdAtStr,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		if createdAtStr != "" {
			parsedTime, err := time.Parse(time.DateTime, createdAtStr)
			if err != nil {
				parsedTime, err = time.Parse(time.RFC3339, createdAtStr)
				if err != nil {
					return nil, fmt.Errorf("parse created_at: %w", err)
				}
			}
			e.CreatedAt = parsedTime
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// buildQuery constructs the SQL query and arguments from QueryOpts.
func buildQuery(opts QueryOpts) (string, []any) {
	var conditions []string
	var args []any

	q := "SELECT id, type, source, COALESCE(package_id, ''), COALESCE(payload, ''), created_at FROM events WHERE 1=1"

	if opts.PackageID != "" {
		conditions = append(conditions, "package_id = ?")
		args = append(args, opts.PackageID)
	}

	if opts.EventType != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, opts.EventType)
	}

	if opts.After != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, opts.After.UTC().Format(time.DateTime))
	}

	if opts.Before != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, opts.Before.UTC().Format(time.DateTime))
	}

	if len(conditions) > 0 {
		q += " AND " + strings.Join(conditions, " AND ")
	}

	q += " ORDER BY id DESC"

	if opts.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	return q, args
}
