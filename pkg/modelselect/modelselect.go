// Package modelselect picks the generation model for a task type. Selection
// is a pure function of the task type, the models the service reports, and
// the feedback aggregates; it never fails.
package modelselect

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"offload/pkg/protocol"
)

// MinTrustedRate is the success rate a model must exceed before feedback
// overrides the static preference lists.
const MinTrustedRate = 0.5

// Reason explains which rule produced a selection.
type Reason string

// Selection reasons, in rule order.
const (
	ReasonFeedback   Reason = "feedback"
	ReasonPreference Reason = "preference"
	ReasonCodeModel  Reason = "code_model"
	ReasonFirst      Reason = "first_available"
	ReasonFallback   Reason = "fallback"
)

// Choice is a selected model and the rule that picked it.
type Choice struct {
	Model  string
	Reason Reason
}

//nolint:gochecknoglobals // read-only lookup table, strongest first
var preferences = map[protocol.TaskType][]string{
	protocol.TaskFunctionImplementation: {
		"qwen2.5-coder:14b", "qwen3:8b", "qwen2.5-coder:7b", "qwen2.5:14b",
		"codellama:13b", "codellama:7b", "deepseek-coder:6.7b", "codegemma:7b",
	},
	protocol.TaskTestGeneration: {
		"qwen2.5-coder:14b", "qwen3:8b", "codellama:13b-instruct",
		"codellama:7b-instruct", "qwen2.5-coder:7b",
	},
	protocol.TaskBugFix: {
		"qwen2.5-coder:14b", "qwen3:8b", "deepseek-coder:6.7b", "codellama:13b", "codellama:7b",
	},
	protocol.TaskRefactoring: {
		"qwen2.5-coder:14b", "qwen3:8b", "codellama:13b", "deepseek-coder:6.7b", "codellama:7b",
	},
	protocol.TaskAPIEndpoint: {
		"qwen2.5-coder:14b", "qwen3:8b", "codellama:13b", "codellama:7b",
	},
	protocol.TaskDocumentation: {
		"llama3.2:3b", "llama3.1:8b", "mistral:7b", "phi3:medium",
	},
	protocol.TaskPerformanceOptimization: {
		"qwen2.5-coder:32b", "deepseek-coder-v2:16b", "codellama:13b",
	},
}

//nolint:gochecknoglobals // read-only lookup table
var defaultPreferences = []string{
	"codellama:7b", "llama3.1:8b", "deepseek-coder:6.7b", "qwen2.5-coder:7b",
}

//nolint:gochecknoglobals // read-only lookup table
var codeKeywords = []string{"code", "deepseek", "qwen", "gemma"}

//nolint:gochecknoglobals // compiled once
var sizeRe = regexp.MustCompile(`(\d+(?:\.\d+)?)b`)

// Preferences returns the preference list for taskType, strongest first.
func Preferences(taskType protocol.TaskType) []string {
	if p, ok := preferences[taskType]; ok {
		return append([]string(nil), p...)
	}
	return append([]string(nil), defaultPreferences...)
}

// Select returns the model name for taskType. See Choose.
func Select(taskType protocol.TaskType, available []string, stats []protocol.ModelStats) string {
	return Choose(taskType, available, stats).Model
}

// Choose applies the selection rules in order, first match wins:
//
//  1. the available model with the best feedback success rate above
//     MinTrustedRate (ties: more attempts, then name);
//  2. the first available entry of the task type's preference list;
//  3. the largest available code-oriented model (ties: first seen);
//  4. the first available model;
//  5. protocol.FallbackModel.
func Choose(taskType protocol.TaskType, available []string, stats []protocol.ModelStats) Choice {
	avail := make(map[string]bool, len(available))
	for _, m := range available {
		avail[m] = true
	}

	if m, ok := fromFeedback(taskType, avail, stats); ok {
		return Choice{Model: m, Reason: ReasonFeedback}
	}

	for _, m := range Preferences(taskType) {
		if avail[m] {
			return Choice{Model: m, Reason: ReasonPreference}
		}
	}

	best, bestSize := "", -1.0
	for _, m := range available {
		if !isCodeModel(m) {
			continue
		}
		if size := ParameterSize(m); size > bestSize {
			best, bestSize = m, size
		}
	}
	if best != "" {
		return Choice{Model: best, Reason: ReasonCodeModel}
	}

	if len(available) > 0 {
		return Choice{Model: available[0], Reason: ReasonFirst}
	}
	return Choice{Model: protocol.FallbackModel, Reason: ReasonFallback}
}

func fromFeedback(taskType protocol.TaskType, avail map[string]bool, stats []protocol.ModelStats) (string, bool) {
	var candidates []protocol.ModelStats
	for _, s := range stats {
		if s.TaskType != taskType || s.Attempts < 1 || !avail[s.Model] {
			continue
		}
		if s.SuccessRate() > MinTrustedRate {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool {
		ri, rj := candidates[i].SuccessRate(), candidates[j].SuccessRate()
		if ri != rj {
			return ri > rj
		}
		if candidates[i].Attempts != candidates[j].Attempts {
			return candidates[i].Attempts > candidates[j].Attempts
		}
		return candidates[i].Model < candidates[j].Model
	})
	return candidates[0].Model, true
}

func isCodeModel(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range codeKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ParameterSize estimates a model's parameter count in billions from its
// name ("qwen2.5-coder:14b" is 14, "deepseek-coder:6.7b" is 6.7). Names
// without a size tag fall back to large=100, medium=50, small=10, else 1.
func ParameterSize(name string) float64 {
	lower := strings.ToLower(name)
	if m := sizeRe.FindStringSubmatch(lower); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v
		}
	}
	switch {
	case strings.Contains(lower, "large"):
		return 100
	case strings.Contains(lower, "medium"):
		return 50
	case strings.Contains(lower, "small"):
		return 10
	default:
		return 1
	}
}
