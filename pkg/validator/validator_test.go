package validator_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"offload/pkg/ollama"
	"offload/pkg/protocol"
	"offload/pkg/validator"
)

type fakeGenerator struct {
	text  string
	err   error
	model string
	opts  ollama.Options
}

func (f *fakeGenerator) Generate(_ context.Context, model, _ string, opts ollama.Options) (ollama.Result, error) {
	f.model = model
	f.opts = opts
	if f.err != nil {
		return ollama.Result{}, f.err
	}
	return ollama.Result{Text: f.text}, nil
}

func pkg() protocol.WorkPackage {
	return protocol.WorkPackage{
		ID:            "pkg-1",
		TaskType:      protocol.TaskFunctionImplementation,
		Description:   "add two numbers",
		Context:       protocol.PackageContext{Language: "python"},
		SelectedModel: "qwen2.5-coder:7b",
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		wantValid     bool
		wantHeuristic bool
		wantErr       bool
		wantScore     int
	}{
		{
			name:      "bare json",
			text:      `{"is_valid": true, "compilation_issues": [], "overall_quality_score": 92}`,
			wantValid: true,
			wantScore: 92,
		},
		{
			name: "json in prose and fences",
			text: "Here is my audit:\n```json\n{\"is_valid\": false, \"missing_dependencies\": [\"import os\"]}\n```\nThanks.",
		},
		{
			name:      "trailing braces after object",
			text:      `{"is_valid": true} and then {not json}`,
			wantValid: true,
		},
		{
			name:          "unparseable with affirmative token",
			text:          "The code looks correct. is_valid: TRUE",
			wantValid:     true,
			wantHeuristic: true,
			wantErr:       true,
		},
		{
			name:          "unparseable without affirmative token",
			text:          "Missing import for os.",
			wantHeuristic: true,
			wantErr:       true,
		},
		{
			name:          "object lacking is_valid",
			text:          `{"score": 10, "ok": "true"}`,
			wantValid:     true,
			wantHeuristic: true,
			wantErr:       true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := validator.ParseVerdict(tt.text)
			if tt.wantErr {
				require.ErrorIs(t, err, validator.ErrValidationUnparseable)
				assert.Equal(t, tt.text, v.Raw)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, v.CompilationIssues)
			}
			assert.Equal(t, tt.wantValid, v.IsValid)
			assert.Equal(t, tt.wantHeuristic, v.Heuristic)
			if tt.wantScore > 0 {
				require.NotNil(t, v.QualityScore)
				assert.Equal(t, tt.wantScore, *v.QualityScore)
			}
		})
	}
}

func TestParseVerdict_FoldsProductionIssues(t *testing.T) {
	v, err := validator.ParseVerdict(`{"is_valid": false, "completeness_issues": ["stub"], "production_issues": ["no timeout"], "overall_quality_score": 140}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"stub", "no timeout"}, v.CompletenessIssues)
	require.NotNil(t, v.QualityScore)
	assert.Equal(t, 100, *v.QualityScore)
}

func TestValidate(t *testing.T) {
	gen := &fakeGenerator{text: `{"is_valid": true, "recommendations": ["add docstring"]}`}
	v := validator.New(gen, "", zaptest.NewLogger(t))

	verdict := v.Validate(context.Background(), "def add(a, b): return a + b", pkg())

	assert.True(t, verdict.IsValid)
	assert.Equal(t, []string{"add docstring"}, verdict.Recommendations)
	assert.Equal(t, "qwen2.5-coder:7b", gen.model)
	assert.InDelta(t, validator.Temperature, gen.opts.Temperature, 1e-9)
	assert.Equal(t, validator.NumPredict, gen.opts.NumPredict)
	assert.True(t, gen.opts.NoTools)
}

func TestValidate_ModelOverride(t *testing.T) {
	gen := &fakeGenerator{text: `{"is_valid": false}`}
	v := validator.New(gen, "deepseek-coder:33b", nil)

	verdict := v.Validate(context.Background(), "x", pkg())

	assert.False(t, verdict.IsValid)
	assert.Equal(t, "deepseek-coder:33b", gen.model)
}

func TestValidate_HeuristicFallback(t *testing.T) {
	gen := &fakeGenerator{text: "Looks fine to me, true."}
	verdict := validator.New(gen, "", zaptest.NewLogger(t)).Validate(context.Background(), "x", pkg())

	assert.True(t, verdict.IsValid)
	assert.True(t, verdict.Heuristic)
}

func TestValidate_GenerationFailureNeverBlocks(t *testing.T) {
	gen := &fakeGenerator{err: fmt.Errorf("generate: %w", ollama.ErrServiceUnavailable)}
	verdict := validator.New(gen, "", zaptest.NewLogger(t)).Validate(context.Background(), "x", pkg())

	assert.False(t, verdict.IsValid)
	require.Len(t, verdict.Recommendations, 1)
	assert.Contains(t, verdict.Recommendations[0], "validation unavailable")
	assert.True(t, errors.Is(gen.err, ollama.ErrServiceUnavailable))
}
