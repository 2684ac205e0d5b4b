package workpkg

import "offload/pkg/protocol"

// DefaultCoverageThreshold is the coverage percentage requested for every
// task type except documentation.
const DefaultCoverageThreshold = 80

//nolint:gochecknoglobals // read-only lookup table
var baseRequirements = []string{
	"Follow project coding standards",
	"Include appropriate error handling",
	"Add inline documentation/comments",
	"Ensure thread safety where applicable",
}

//nolint:gochecknoglobals // read-only lookup table
var typeRequirements = map[protocol.TaskType][]string{
	protocol.TaskFunctionImplementation: {
		"Include type hints",
		"Handle edge cases",
		"Optimize for readability",
	},
	protocol.TaskTestGeneration: {
		"Achieve minimum 80% coverage",
		"Include edge case tests",
		"Test error conditions",
		"Use appropriate mocking",
	},
	protocol.TaskBugFix: {
		"Identify root cause",
		"Prevent regression",
		"Update related tests",
	},
	protocol.TaskAPIEndpoint: {
		"Include input validation",
		"Implement proper authentication",
		"Add rate limiting",
		"Document with OpenAPI",
	},
}

//nolint:gochecknoglobals // read-only lookup table
var acceptanceCriteria = map[protocol.TaskType][]string{
	protocol.TaskFunctionImplementation: {
		"Function executes without errors",
		"All tests pass",
		"Code passes linting",
		"Type checking succeeds",
	},
	protocol.TaskTestGeneration: {
		"Tests achieve required coverage",
		"All tests pass",
		"Tests are meaningful (not just trivial)",
		"Tests cover edge cases",
	},
	protocol.TaskBugFix: {
		"Bug is resolved",
		"No new bugs introduced",
		"Existing tests still pass",
		"New test prevents regression",
	},
}

// Requirements returns the requirement list for taskType: the base set plus
// any task-specific additions. The result is a fresh slice.
func Requirements(taskType protocol.TaskType) []string {
	out := make([]string, 0, len(baseRequirements)+4)
	out = append(out, baseRequirements...)
	return append(out, typeRequirements[taskType]...)
}

// AcceptanceCriteria returns the acceptance criteria for taskType. Task types
// without a dedicated list get a generic one.
func AcceptanceCriteria(taskType protocol.TaskType) []string {
	if c, ok := acceptanceCriteria[taskType]; ok {
		return append([]string(nil), c...)
	}
	return []string{"Task completed successfully"}
}

// Checks returns the quality check plan for taskType. Documentation skips
// unit tests and coverage.
func Checks(taskType protocol.TaskType) protocol.CheckPlan {
	plan := protocol.CheckPlan{
		Lint:              true,
		TypeCheck:         true,
		SecurityScan:      true,
		UnitTests:         true,
		CoverageThreshold: DefaultCoverageThreshold,
	}
	if taskType == protocol.TaskDocumentation {
		plan.UnitTests = false
		plan.CoverageThreshold = 0
	}
	return plan
}
