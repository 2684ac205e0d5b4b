package feedback_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"offload/pkg/feedback"
	"offload/pkg/modelselect"
	"offload/pkg/protocol"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(protocol.SchemaDDL)
	require.NoError(t, err)
	return db
}

func record(t *testing.T, s *feedback.Store, tt protocol.TaskType, model string, approved, rejected int) {
	t.Helper()
	ctx := context.Background()
	for range approved {
		_, err := s.Record(ctx, protocol.FeedbackEntry{TaskType: tt, Model: model, Decision: protocol.DecisionApproved})
		require.NoError(t, err)
	}
	for range rejected {
		_, err := s.Record(ctx, protocol.FeedbackEntry{TaskType: tt, Model: model, Decision: protocol.DecisionRejected})
		require.NoError(t, err)
	}
}

func TestStore_StatsAndSuccessRate(t *testing.T) {
	ctx := context.Background()
	s := feedback.NewStore(openTestDB(t))

	record(t, s, protocol.TaskBugFix, "modelX", 7, 3)
	record(t, s, protocol.TaskBugFix, "modelY", 3, 0)
	record(t, s, protocol.TaskRefactoring, "modelX", 0, 2)

	stats, err := s.Stats(ctx, protocol.TaskBugFix)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, protocol.ModelStats{TaskType: protocol.TaskBugFix, Model: "modelX", Attempts: 10, Successes: 7}, stats[0])
	assert.Equal(t, protocol.ModelStats{TaskType: protocol.TaskBugFix, Model: "modelY", Attempts: 3, Successes: 3}, stats[1])

	rate, ok, err := s.SuccessRate(ctx, protocol.TaskBugFix, "modelX")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 0.7, rate, 1e-9)

	_, ok, err = s.SuccessRate(ctx, protocol.TaskDocumentation, "modelX")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := s.AllStats(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_FeedsModelSelection(t *testing.T) {
	s := feedback.NewStore(openTestDB(t))
	record(t, s, protocol.TaskBugFix, "modelX", 7, 3)
	record(t, s, protocol.TaskBugFix, "modelY", 3, 0)

	stats, err := s.Stats(context.Background(), protocol.TaskBugFix)
	require.NoError(t, err)

	got := modelselect.Select(protocol.TaskBugFix, []string{"modelX", "modelY"}, stats)
	assert.Equal(t, "modelY", got)
}

func TestStore_CountersNeverDecrease(t *testing.T) {
	ctx := context.Background()
	s := feedback.NewStore(openTestDB(t))

	prev := 0
	for i := range 5 {
		decision := protocol.DecisionApproved
		if i%2 == 1 {
			decision = protocol.DecisionRejected
		}
		_, err := s.Record(ctx, protocol.FeedbackEntry{TaskType: protocol.TaskGeneral, Model: "m", Decision: decision})
		require.NoError(t, err)

		stats, err := s.Stats(ctx, protocol.TaskGeneral)
		require.NoError(t, err)
		require.Len(t, stats, 1)
		assert.Greater(t, stats[0].Attempts, prev)
		prev = stats[0].Attempts
	}
}

func TestStore_AppendOnly(t *testing.T) {
	db := openTestDB(t)
	s := feedback.NewStore(db)
	id, err := s.Record(context.Background(), protocol.FeedbackEntry{TaskType: protocol.TaskBugFix, Model: "m", Decision: protocol.DecisionApproved})
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE feedback SET decision = 'rejected' WHERE id = ?`, id)
	require.Error(t, err)
	_, err = db.Exec(`DELETE FROM feedback WHERE id = ?`, id)
	require.Error(t, err)
}

func TestStore_RecordValidation(t *testing.T) {
	s := feedback.NewStore(openTestDB(t))
	_, err := s.Record(context.Background(), protocol.FeedbackEntry{TaskType: protocol.TaskBugFix, Model: "m", Decision: "maybe"})
	require.Error(t, err)
	_, err = s.Record(context.Background(), protocol.FeedbackEntry{TaskType: protocol.TaskBugFix, Decision: protocol.DecisionApproved})
	require.Error(t, err)
}

func TestStore_ImprovementsHintsAndReport(t *testing.T) {
	ctx := context.Background()
	s := feedback.NewStore(openTestDB(t))

	for _, imps := range [][]string{
		{"Added docstrings", "Added logging"},
		{"Added docstrings"},
		nil,
	} {
		_, err := s.Record(ctx, protocol.FeedbackEntry{
			PackageID:    "p",
			TaskType:     protocol.TaskFunctionImplementation,
			Model:        "qwen2.5-coder:7b",
			Decision:     protocol.DecisionApproved,
			Improvements: imps,
		})
		require.NoError(t, err)
	}

	imps, err := s.Improvements(ctx, protocol.TaskFunctionImplementation, 0)
	require.NoError(t, err)
	assert.Equal(t, []feedback.ImprovementCount{
		{Improvement: "Added docstrings", Count: 2},
		{Improvement: "Added logging", Count: 1},
	}, imps)

	hints, err := s.Hints(ctx, protocol.TaskFunctionImplementation)
	require.NoError(t, err)
	assert.Equal(t, "Based on previous feedback, make sure to:\n- Added docstrings\n- Added logging", hints)

	hints, err = s.Hints(ctx, protocol.TaskBugFix)
	require.NoError(t, err)
	assert.Empty(t, hints)

	report, err := s.Report(ctx)
	require.NoError(t, err)
	assert.Contains(t, report, "### function_implementation")
	assert.Contains(t, report, "- **qwen2.5-coder:7b**: 100.0% success (3/3)")
	assert.Contains(t, report, "- Added docstrings: 2 times")

	entries, err := s.Entries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Greater(t, entries[0].ID, entries[1].ID)
	assert.False(t, entries[0].CreatedAt.IsZero())
}

func TestReport_Empty(t *testing.T) {
	report, err := feedback.NewStore(openTestDB(t)).Report(context.Background())
	require.NoError(t, err)
	assert.Contains(t, report, "No feedback recorded yet.")
}

func TestAnalyzeImprovements(t *testing.T) {
	original := "def add(a, b):\n    return a + b\n"
	improved := `from typing import Union
import logging

logger = logging.getLogger(__name__)


def add(a: int, b: int) -> int:
    """Add two numbers."""
    try:
        validate(a, b)
        return a + b
    except TypeError:
        logger.error("bad input")
        raise
`
	got := feedback.AnalyzeImprovements(original, improved)
	assert.Equal(t, []string{
		"Added docstrings",
		"Added error handling",
		"Added type hints",
		"Expanded implementation",
		"Added logging",
		"Added validation",
	}, got)

	assert.Empty(t, feedback.AnalyzeImprovements(original, original))
}
