package protocol

import "time"

// Extraction method constants recorded in status records.
const (
	MethodToolCall = "tool_call"
	MethodResponse = "response_extraction"
)

// Quality check names, keys of QualityResult.Checks.
const (
	CheckCompilation = "compilation"
	CheckLint        = "lint"
	CheckTypeCheck   = "type_check"
	CheckSecurity    = "security"
	CheckTests       = "tests"
	CheckCoverage    = "coverage"
)

// CheckResult is the outcome of one quality check.
type CheckResult struct {
	Passed  bool   `json:"passed"`
	Skipped bool   `json:"skipped,omitempty"`
	Message string `json:"message,omitempty"`
	Command string `json:"command,omitempty"`
	Output  string `json:"output,omitempty"`
}

// QualityResult aggregates every quality check run on one artifact.
type QualityResult struct {
	Checks        map[string]CheckResult `json:"checks"`
	OverallPassed bool                   `json:"overall_passed"`
}

// Verdict is the validator's structured critique of an artifact.
type Verdict struct {
	IsValid             bool     `json:"is_valid"`
	CompilationIssues   []string `json:"compilation_issues"`
	MissingDependencies []string `json:"missing_dependencies"`
	CompletenessIssues  []string `json:"completeness_issues,omitempty"`
	Recommendations     []string `json:"recommendations"`
	QualityScore        *int     `json:"overall_quality_score,omitempty"`
	Heuristic           bool     `json:"heuristic,omitempty"` // derived by lexical fallback
	Raw                 string   `json:"raw,omitempty"`
}

// StatusRecord is the externally pollable projection of one work package.
// Records are replaced whole; observers never see partial writes.
type StatusRecord struct {
	PackageID         string         `json:"package_id"`
	Status            Status         `json:"status"`
	QueuePosition     int            `json:"queue_position,omitempty"`
	Message           string         `json:"message"`
	TaskType          TaskType       `json:"task_type"`
	Description       string         `json:"description,omitempty"`
	Model             string         `json:"model,omitempty"`
	ArtifactPath      string         `json:"artifact_path,omitempty"`
	Method            string         `json:"method,omitempty"`
	CodeLines         int            `json:"code_lines,omitempty"`
	CodeChars         int            `json:"code_chars,omitempty"`
	Quality           *QualityResult `json:"quality,omitempty"`
	Validation        *Verdict       `json:"validation,omitempty"`
	GenerationSeconds float64        `json:"generation_seconds,omitempty"`
	ResponsePreview   string         `json:"response_preview,omitempty"`
	Error             string         `json:"error,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Feedback decisions.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// FeedbackEntry represents a row in the feedback SQLite table. Rows are
// append-only and never mutated.
type FeedbackEntry struct {
	ID           int64     `json:"id"`
	PackageID    string    `json:"package_id"`
	TaskType     TaskType  `json:"task_type"`
	Model        string    `json:"model"`
	Decision     string    `json:"decision"`
	Improvements []string  `json:"improvements_observed"`
	CreatedAt    time.Time `json:"created_at"`
}

// ModelStats is the aggregate of feedback entries for one (task type, model).
type ModelStats struct {
	TaskType  TaskType `json:"task_type"`
	Model     string   `json:"model"`
	Attempts  int      `json:"attempts"`
	Successes int      `json:"successes"`
}

// SuccessRate returns successes/attempts, or 0 when there were no attempts.
func (s ModelStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// Event represents a row in the events SQLite table.
type Event struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Source    string `json:"source"`
	PackageID string `json:"package_id"`
	Payload   string `json:"payload"`
	CreatedAt string `json:"created_at"`
}
