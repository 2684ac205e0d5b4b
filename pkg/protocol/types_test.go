package protocol_test

import (
	"database/sql"
	"errors"
	"testing"

	"offload/pkg/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestParseTaskType(t *testing.T) {
	tests := []struct {
		in   string
		want protocol.TaskType
	}{
		{"bug_fix", protocol.TaskBugFix},
		{"  Test_Generation ", protocol.TaskTestGeneration},
		{"claude_overlord_command", protocol.TaskGeneral},
		{"", protocol.TaskGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, protocol.ParseTaskType(tt.in))
		})
	}
}

func TestAllTaskTypesAreValid(t *testing.T) {
	types := protocol.AllTaskTypes()
	require.Len(t, types, 10)
	for _, tt := range types {
		assert.True(t, tt.Valid(), tt)
	}
	assert.False(t, protocol.TaskType("overlord").Valid())
}

func TestStatusCanTransition(t *testing.T) {
	tests := []struct {
		from, to protocol.Status
		want     bool
	}{
		{"", protocol.StatusQueued, true},
		{protocol.StatusQueued, protocol.StatusProcessing, true},
		{protocol.StatusQueued, protocol.StatusError, true},
		{protocol.StatusProcessing, protocol.StatusCompleted, true},
		{protocol.StatusProcessing, protocol.StatusError, true},
		{protocol.StatusProcessing, protocol.StatusQueued, false},
		{protocol.StatusQueued, protocol.StatusQueued, false},
		{protocol.StatusCompleted, protocol.StatusError, false},
		{protocol.StatusError, protocol.StatusProcessing, false},
		{protocol.StatusQueued, protocol.Status("paused"), false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestWorkPackageValidate(t *testing.T) {
	valid := protocol.WorkPackage{
		ID:          "0123456789abcdef",
		TaskType:    protocol.TaskBugFix,
		Description: "fix the off-by-one in pager",
		Context:     protocol.PackageContext{Language: "go"},
	}
	require.NoError(t, valid.Validate())
	assert.Equal(t, "01234567", valid.ShortID())

	missingLang := valid
	missingLang.Context.Language = ""
	assert.Error(t, missingLang.Validate())

	blank := valid
	blank.Description = "   "
	assert.Error(t, blank.Validate())

	unknown := valid
	unknown.TaskType = "overlord"
	assert.Error(t, unknown.Validate())
}

func TestModelStatsSuccessRate(t *testing.T) {
	assert.InDelta(t, 0.7, protocol.ModelStats{Attempts: 10, Successes: 7}.SuccessRate(), 1e-9)
	assert.Zero(t, protocol.ModelStats{}.SuccessRate())
}

func TestPackageNotFoundError_ErrorsAs(t *testing.T) {
	var err error = &protocol.PackageNotFoundError{PackageID: "abc"}
	var target *protocol.PackageNotFoundError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, "abc", target.PackageID)
	assert.Contains(t, err.Error(), "abc")
}

func TestSchemaDDL_FeedbackIsAppendOnly(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(protocol.SchemaDDL)
	require.NoError(t, err)
	// Applying twice must be a no-op.
	_, err = db.Exec(protocol.SchemaDDL)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO feedback (task_type, model, decision) VALUES ('bug_fix', 'm', 'approved')`)
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE feedback SET decision = 'rejected'`)
	assert.Error(t, err)
	_, err = db.Exec(`DELETE FROM feedback`)
	assert.Error(t, err)
}
