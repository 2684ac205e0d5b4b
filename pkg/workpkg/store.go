package workpkg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"offload/pkg/protocol"
)

// SQLStore persists work packages in the packages table of the state
// database.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a SQLStore backed by db. The schema must already be
// applied (protocol.SchemaDDL).
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// SavePackage inserts p. Package IDs are unique; saving the same ID twice
// is an error.
func (s *SQLStore) SavePackage(ctx context.Context, p protocol.WorkPackage) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("package marshal: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO packages (id, task_type, description, command, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, string(p.TaskType), p.Description, p.Command, string(payload),
		p.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("package insert %s: %w", p.ID, err)
	}
	return nil
}

// GetPackage loads the package with the given id. A missing package yields
// a *protocol.PackageNotFoundError.
func (s *SQLStore) GetPackage(ctx context.Context, id string) (protocol.WorkPackage, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM packages WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.WorkPackage{}, &protocol.PackageNotFoundError{PackageID: id}
	}
	if err != nil {
		return protocol.WorkPackage{}, fmt.Errorf("package get %s: %w", id, err)
	}
	var p protocol.WorkPackage
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return protocol.WorkPackage{}, fmt.Errorf("package unmarshal %s: %w", id, err)
	}
	return p, nil
}

// ListPackages returns up to limit packages, newest first. limit <= 0
// means 50.
func (s *SQLStore) ListPackages(ctx context.Context, limit int) ([]protocol.WorkPackage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM packages ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("package list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []protocol.WorkPackage
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("package scan: %w", err)
		}
		var p protocol.WorkPackage
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("package unmarshal: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("package rows: %w", err)
	}
	return out, nil
}
