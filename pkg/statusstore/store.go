// Package statusstore persists one JSON status record per work package.
// Records are replaced whole via temp file and rename, so pollers never
// observe a partial write.
package statusstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"offload/pkg/protocol"
)

const fileExt = ".json"

// Store reads and writes status records under one directory. Writers in
// the same process are serialized; readers never block.
type Store struct {
	dir string
	now func() time.Time

	mu sync.Mutex
}

// New returns a Store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("status store: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

// Dir returns the directory holding the records.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("status store: invalid package id %q", id)
	}
	return filepath.Join(s.dir, id+fileExt), nil
}

// Put replaces the record for rec.PackageID. CreatedAt is kept from the
// existing record when rec leaves it zero; UpdatedAt is always stamped.
func (s *Store) Put(rec protocol.StatusRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		if prev, err := s.read(rec.PackageID); err == nil {
			rec.CreatedAt = prev.CreatedAt
		}
	}
	return s.write(rec)
}

// Get returns the record for id, or *protocol.PackageNotFoundError.
func (s *Store) Get(id string) (protocol.StatusRecord, error) {
	return s.read(id)
}

// Update applies fn to the current record for id and writes the result.
// A status change must satisfy protocol.Status.CanTransition, and terminal
// records cannot be modified; violations return *protocol.TransitionError
// and leave the record untouched.
func (s *Store) Update(id string, fn func(*protocol.StatusRecord)) (protocol.StatusRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.read(id)
	if err != nil {
		return protocol.StatusRecord{}, err
	}
	next := cur
	fn(&next)
	next.PackageID = cur.PackageID
	next.CreatedAt = cur.CreatedAt

	if cur.Status.Terminal() || (next.Status != cur.Status && !cur.Status.CanTransition(next.Status)) {
		return cur, &protocol.TransitionError{PackageID: id, From: cur.Status, To: next.Status}
	}
	if next.Status != protocol.StatusQueued {
		next.QueuePosition = 0
	}
	if err := s.write(next); err != nil {
		return cur, err
	}
	return s.read(id)
}

func (s *Store) read(id string) (protocol.StatusRecord, error) {
	p, err := s.path(id)
	if err != nil {
		return protocol.StatusRecord{}, err
	}
	//nolint:gosec // path is built from a validated package id
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return protocol.StatusRecord{}, &protocol.PackageNotFoundError{PackageID: id}
	}
	if err != nil {
		return protocol.StatusRecord{}, fmt.Errorf("status read %s: %w", id, err)
	}
	var rec protocol.StatusRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return protocol.StatusRecord{}, fmt.Errorf("status decode %s: %w", id, err)
	}
	return rec, nil
}

func (s *Store) write(rec protocol.StatusRecord) error {
	p, err := s.path(rec.PackageID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("status encode %s: %w", rec.PackageID, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+rec.PackageID+".*.tmp")
	if err != nil {
		return fmt.Errorf("status write %s: %w", rec.PackageID, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("status write %s: %w", rec.PackageID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("status write %s: %w", rec.PackageID, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("status write %s: %w", rec.PackageID, err)
	}
	return nil
}

// List returns every record, oldest first. Unreadable files are skipped.
func (s *Store) List() ([]protocol.StatusRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("status list: %w", err)
	}
	var out []protocol.StatusRecord
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		rec, err := s.read(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].PackageID < out[j].PackageID
	})
	return out, nil
}

// Active returns queued and processing records, oldest first.
func (s *Store) Active() ([]protocol.StatusRecord, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, r := range all {
		if !r.Status.Terminal() {
			out = append(out, r)
		}
	}
	return out, nil
}
