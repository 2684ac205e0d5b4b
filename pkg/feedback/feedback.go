// Package feedback stores the append-only record of which (task type,
// model) pairs produced accepted artifacts, and derives the per-pair
// success counters that model selection reads.
package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"offload/pkg/protocol"
)

// Store manages the feedback table in SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a new Store backed by the given SQLite database. The
// schema in protocol.SchemaDDL must already be applied.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record appends one feedback entry. The entry's ID and CreatedAt are
// assigned by the database; Decision must be approved or rejected.
func (s *Store) Record(ctx context.Context, e protocol.FeedbackEntry) (int64, error) {
	if e.Decision != protocol.DecisionApproved && e.Decision != protocol.DecisionRejected {
		return 0, fmt.Errorf("feedback record: unknown decision %q", e.Decision)
	}
	if e.Model == "" {
		return 0, fmt.Errorf("feedback record: model is required")
	}
	improvements, err := json.Marshal(nonNil(e.Improvements))
	if err != nil {
		return 0, fmt.Errorf("feedback record: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (package_id, task_type, model, decision, improvements)
		 VALUES (?, ?, ?, ?, ?)`,
		e.PackageID, string(e.TaskType), e.Model, e.Decision, string(improvements),
	)
	if err != nil {
		return 0, fmt.Errorf("feedback insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("feedback last insert id: %w", err)
	}
	return id, nil
}

const statsQuery = `SELECT task_type, model, COUNT(*),
	COALESCE(SUM(CASE WHEN decision = 'approved' THEN 1 ELSE 0 END), 0)
	FROM feedback`

// Stats returns the aggregated counters for every model tried on taskType,
// ordered by model name.
func (s *Store) Stats(ctx context.Context, taskType protocol.TaskType) ([]protocol.ModelStats, error) {
	return s.queryStats(ctx, statsQuery+` WHERE task_type = ? GROUP BY task_type, model ORDER BY model`, string(taskType))
}

// AllStats returns the counters for every (task type, model) pair.
func (s *Store) AllStats(ctx context.Context) ([]protocol.ModelStats, error) {
	return s.queryStats(ctx, statsQuery+` GROUP BY task_type, model ORDER BY task_type, model`)
}

func (s *Store) queryStats(ctx context.Context, query string, args ...any) ([]protocol.ModelStats, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("feedback stats: %w", err)
	}
	defer rows.Close()

	var out []protocol.ModelStats
	for rows.Next() {
		var (
			st       protocol.ModelStats
			taskType string
		)
		if err := rows.Scan(&taskType, &st.Model, &st.Attempts, &st.Successes); err != nil {
			return nil, fmt.Errorf("feedback stats scan: %w", err)
		}
		st.TaskType = protocol.TaskType(taskType)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("feedback stats rows: %w", err)
	}
	return out, nil
}

// SuccessRate returns the approval rate for (taskType, model). ok is false
// when the pair has no attempts.
func (s *Store) SuccessRate(ctx context.Context, taskType protocol.TaskType, model string) (rate float64, ok bool, err error) {
	var attempts, successes int
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN decision = 'approved' THEN 1 ELSE 0 END), 0)
		 FROM feedback WHERE task_type = ? AND model = ?`,
		string(taskType), model)
	if err := row.Scan(&attempts, &successes); err != nil {
		return 0, false, fmt.Errorf("feedback success rate: %w", err)
	}
	if attempts == 0 {
		return 0, false, nil
	}
	return float64(successes) / float64(attempts), true, nil
}

// Entries returns the most recent entries, newest first. limit <= 0
// defaults to 50.
func (s *Store) Entries(ctx context.Context, limit int) ([]protocol.FeedbackEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(package_id, ''), task_type, model, decision, COALESCE(improvements, '[]'), created_at
		 FROM feedback ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("feedback entries: %w", err)
	}
	defer rows.Close()

	var out []protocol.FeedbackEntry
	for rows.Next() {
		var e protocol.FeedbackEntry
		var taskType, imps, created string
		if err := rows.Scan(&e.ID, &e.PackageID, &taskType, &e.Model, &e.Decision, &imps, &created); err != nil {
			return nil, fmt.Errorf("feedback entries scan: %w", err)
		}
		e.TaskType = protocol.TaskType(taskType)
		_ = json.Unmarshal([]byte(imps), &e.Improvements)
		e.CreatedAt, _ = time.Parse(time.DateTime, created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("feedback entries rows: %w", err)
	}
	return out, nil
}

// ImprovementCount is how often an improvement was observed for a task type.
type ImprovementCount struct {
	Improvement string
	Count       int
}

// Improvements tallies observed improvements for taskType, most frequent
// first. limit <= 0 returns all.
func (s *Store) Improvements(ctx context.Context, taskType protocol.TaskType, limit int) ([]ImprovementCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT COALESCE(improvements, '[]') FROM feedback WHERE task_type = ?`, string(taskType))
	if err != nil {
		return nil, fmt.Errorf("feedback improvements: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("feedback improvements scan: %w", err)
		}
		var imps []string
		if json.Unmarshal([]byte(raw), &imps) != nil {
			continue
		}
		for _, imp := range imps {
			counts[imp]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("feedback improvements rows: %w", err)
	}

	out := make([]ImprovementCount, 0, len(counts))
	for imp, n := range counts {
		out = append(out, ImprovementCount{Improvement: imp, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Improvement < out[j].Improvement
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Hints renders the most common reviewer improvements for taskType as a
// prompt addendum, or "" when there are none.
func (s *Store) Hints(ctx context.Context, taskType protocol.TaskType) (string, error) {
	imps, err := s.Improvements(ctx, taskType, 5)
	if err != nil || len(imps) == 0 {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Based on previous feedback, make sure to:")
	for _, imp := range imps {
		b.WriteString("\n- ")
		b.WriteString(imp.Improvement)
	}
	return b.String(), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
