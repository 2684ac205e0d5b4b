package modelselect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"offload/pkg/modelselect"
	"offload/pkg/protocol"
)

func TestChoose(t *testing.T) {
	tests := []struct {
		name       string
		taskType   protocol.TaskType
		available  []string
		stats      []protocol.ModelStats
		wantModel  string
		wantReason modelselect.Reason
	}{
		{
			name:      "feedback prefers the higher rate",
			taskType:  protocol.TaskBugFix,
			available: []string{"modelX", "modelY", "qwen2.5-coder:14b"},
			stats: []protocol.ModelStats{
				{TaskType: protocol.TaskBugFix, Model: "modelX", Attempts: 10, Successes: 7},
				{TaskType: protocol.TaskBugFix, Model: "modelY", Attempts: 3, Successes: 3},
			},
			wantModel:  "modelY",
			wantReason: modelselect.ReasonFeedback,
		},
		{
			name:      "feedback tie broken by attempts then name",
			taskType:  protocol.TaskBugFix,
			available: []string{"b", "a", "c"},
			stats: []protocol.ModelStats{
				{TaskType: protocol.TaskBugFix, Model: "b", Attempts: 2, Successes: 2},
				{TaskType: protocol.TaskBugFix, Model: "c", Attempts: 4, Successes: 4},
				{TaskType: protocol.TaskBugFix, Model: "a", Attempts: 4, Successes: 4},
			},
			wantModel:  "a",
			wantReason: modelselect.ReasonFeedback,
		},
		{
			name:      "feedback at exactly half is not trusted",
			taskType:  protocol.TaskBugFix,
			available: []string{"modelX", "codellama:7b"},
			stats: []protocol.ModelStats{
				{TaskType: protocol.TaskBugFix, Model: "modelX", Attempts: 4, Successes: 2},
			},
			wantModel:  "codellama:7b",
			wantReason: modelselect.ReasonPreference,
		},
		{
			name:      "feedback for unavailable model is ignored",
			taskType:  protocol.TaskBugFix,
			available: []string{"qwen3:8b"},
			stats: []protocol.ModelStats{
				{TaskType: protocol.TaskBugFix, Model: "gone", Attempts: 5, Successes: 5},
			},
			wantModel:  "qwen3:8b",
			wantReason: modelselect.ReasonPreference,
		},
		{
			name:      "feedback for another task type is ignored",
			taskType:  protocol.TaskRefactoring,
			available: []string{"modelY", "codellama:13b"},
			stats: []protocol.ModelStats{
				{TaskType: protocol.TaskBugFix, Model: "modelY", Attempts: 3, Successes: 3},
			},
			wantModel:  "codellama:13b",
			wantReason: modelselect.ReasonPreference,
		},
		{
			name:       "preference order, strongest first",
			taskType:   protocol.TaskFunctionImplementation,
			available:  []string{"codellama:7b", "qwen3:8b", "qwen2.5-coder:14b"},
			wantModel:  "qwen2.5-coder:14b",
			wantReason: modelselect.ReasonPreference,
		},
		{
			name:       "unknown task type uses the default list",
			taskType:   protocol.TaskGeneral,
			available:  []string{"qwen2.5-coder:7b", "llama3.1:8b"},
			wantModel:  "llama3.1:8b",
			wantReason: modelselect.ReasonPreference,
		},
		{
			name:       "largest code model",
			taskType:   protocol.TaskDocumentation,
			available:  []string{"mistral:latest", "starcoder2:3b", "deepseek-coder:6.7b", "qwen2.5-coder:32b"},
			wantModel:  "qwen2.5-coder:32b",
			wantReason: modelselect.ReasonCodeModel,
		},
		{
			name:       "code model size tie keeps first seen",
			taskType:   protocol.TaskDocumentation,
			available:  []string{"my-coder:7b", "qwen-custom:7b"},
			wantModel:  "my-coder:7b",
			wantReason: modelselect.ReasonCodeModel,
		},
		{
			name:       "first available",
			taskType:   protocol.TaskBugFix,
			available:  []string{"mistral:latest", "phi3:mini"},
			wantModel:  "mistral:latest",
			wantReason: modelselect.ReasonFirst,
		},
		{
			name:       "nothing available falls back",
			taskType:   protocol.TaskBugFix,
			wantModel:  protocol.FallbackModel,
			wantReason: modelselect.ReasonFallback,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := modelselect.Choose(tt.taskType, tt.available, tt.stats)
			assert.Equal(t, tt.wantModel, got.Model)
			assert.Equal(t, tt.wantReason, got.Reason)
			assert.Equal(t, tt.wantModel, modelselect.Select(tt.taskType, tt.available, tt.stats))
		})
	}
}

func TestSelect_Deterministic(t *testing.T) {
	available := []string{"mistral:latest", "deepseek-coder:6.7b", "codegemma:7b", "qwen2.5-coder:1.5b"}
	first := modelselect.Select(protocol.TaskSecurityAudit, available, nil)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, modelselect.Select(protocol.TaskSecurityAudit, available, nil))
	}
}

func TestParameterSize(t *testing.T) {
	tests := map[string]float64{
		"qwen2.5-coder:14b":      14,
		"deepseek-coder:6.7b":    6.7,
		"deepseek-coder-v2:16b":  16,
		"llama3.1:8b":            8,
		"codellama:13b-instruct": 13,
		"phi3:medium":            50,
		"some-LARGE-model":       100,
		"tiny-small":             10,
		"mistral:latest":         1,
		"":                       1,
	}
	for name, want := range tests {
		assert.InDelta(t, want, modelselect.ParameterSize(name), 1e-9, name)
	}
}

func TestPreferences_ReturnsCopy(t *testing.T) {
	p := modelselect.Preferences(protocol.TaskBugFix)
	p[0] = "mutated"
	assert.Equal(t, "qwen2.5-coder:14b", modelselect.Preferences(protocol.TaskBugFix)[0])
}
