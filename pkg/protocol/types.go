package protocol

import (
	"fmt"
	"strings"
	"time"
)

// TaskType classifies a delegated coding sub-task.
type TaskType string

// Task type constants. The set is closed; ParseTaskType folds anything else
// into TaskGeneral.
const (
	TaskFunctionImplementation  TaskType = "function_implementation"
	TaskTestGeneration          TaskType = "test_generation"
	TaskBugFix                  TaskType = "bug_fix"
	TaskRefactoring             TaskType = "refactoring"
	TaskAPIEndpoint             TaskType = "api_endpoint"
	TaskDocumentation           TaskType = "documentation"
	TaskSecurityAudit           TaskType = "security_audit"
	TaskPerformanceOptimization TaskType = "performance_optimization"
	TaskCodeReview              TaskType = "code_review"
	TaskGeneral                 TaskType = "general_implementation"
)

// AllTaskTypes lists every task type in declaration order.
func AllTaskTypes() []TaskType {
	return []TaskType{
		TaskFunctionImplementation,
		TaskTestGeneration,
		TaskBugFix,
		TaskRefactoring,
		TaskAPIEndpoint,
		TaskDocumentation,
		TaskSecurityAudit,
		TaskPerformanceOptimization,
		TaskCodeReview,
		TaskGeneral,
	}
}

// Valid reports whether t is one of the known task types.
func (t TaskType) Valid() bool {
	for _, known := range AllTaskTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ParseTaskType normalizes s into a TaskType. Unknown values map to TaskGeneral.
func ParseTaskType(s string) TaskType {
	t := TaskType(strings.ToLower(strings.TrimSpace(s)))
	if t.Valid() {
		return t
	}
	return TaskGeneral
}

// Status is the lifecycle state of a work package.
type Status string

// Status constants. Transitions only move forward:
// queued -> processing -> {completed, error}.
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether s is an absorbing state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 1
	case StatusProcessing:
		return 2
	case StatusCompleted, StatusError:
		return 3
	default:
		return 0
	}
}

// CanTransition reports whether moving from s to next keeps the lifecycle
// monotonic. A queued package may fail straight to error (rejected or
// shut down before being claimed).
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next.rank() == 0 {
		return false
	}
	if s == "" {
		return true
	}
	return next.rank() > s.rank()
}

// PackageContext describes where a work package comes from. Immutable.
type PackageContext struct {
	Language    string `json:"language"`
	Framework   string `json:"framework,omitempty"`
	ProjectRoot string `json:"project_root"`
	CurrentFile string `json:"current_file,omitempty"`
}

// CheckPlan lists the quality checks requested for a work package.
type CheckPlan struct {
	Lint              bool `json:"linting"`
	TypeCheck         bool `json:"type_checking"`
	SecurityScan      bool `json:"security_scan"`
	UnitTests         bool `json:"unit_tests"`
	CoverageThreshold int  `json:"coverage_threshold"`
}

// WorkPackage is the unit of delegation.
type WorkPackage struct {
	ID                 string         `json:"id"`
	TaskType           TaskType       `json:"task_type"`
	Description        string         `json:"description"`
	Requirements       []string       `json:"requirements"`
	AcceptanceCriteria []string       `json:"acceptance_criteria"`
	Context            PackageContext `json:"context"`
	Command            string         `json:"command,omitempty"` // selected command identifier
	Checks             CheckPlan      `json:"checks"`
	SelectedModel      string         `json:"selected_model,omitempty"`
	Status             Status         `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
}

// ShortID returns the first eight characters of the package ID.
func (p WorkPackage) ShortID() string {
	if len(p.ID) <= 8 {
		return p.ID
	}
	return p.ID[:8]
}

// Validate checks the fields required before a package may be queued.
func (p WorkPackage) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("work package: id is required")
	}
	if !p.TaskType.Valid() {
		return fmt.Errorf("work package %s: unknown task type %q", p.ID, p.TaskType)
	}
	if strings.TrimSpace(p.Description) == "" {
		return fmt.Errorf("work package %s: description is required", p.ID)
	}
	if p.Context.Language == "" {
		return fmt.Errorf("work package %s: language is required", p.ID)
	}
	return nil
}
