package prompt

import (
	"fmt"
	"strings"

	"offload/pkg/protocol"
)

// ValidationPrompt builds the audit prompt for the independent validator.
// The reply is expected to be a single JSON object.
func ValidationPrompt(code string, p protocol.WorkPackage) string {
	var b strings.Builder
	lang := p.Context.Language

	section(&b, "Role", fmt.Sprintf(
		"You are a SENIOR CODE VALIDATION EXPERT for %s. You audit code for compilation, dependency, and completeness problems.",
		strings.ToUpper(lang)))

	section(&b, "Task", fmt.Sprintf("The code below was written for this %s task:\n\n> %s", p.TaskType, p.Description))

	section(&b, "Code", fmt.Sprintf("```%s\n%s\n```", lang, strings.TrimRight(code, "\n")))

	section(&b, "Checks", strings.Join([]string{
		"1. Compilation: imports present, syntax valid, every referenced symbol defined.",
		"2. Dependencies: no undefined methods, missing type imports, or unimported libraries.",
		"3. Completeness: requirements implemented, no stubs, placeholders, or TODO markers.",
		"4. Production readiness: error handling, resource cleanup, thread safety where relevant.",
		"",
		"Reject when any undefined reference, missing import, stub, or compile error is present.",
	}, "\n"))

	b.WriteString("## Response Format\n\n")
	b.WriteString("Reply with ONLY this JSON object:\n\n")
	b.WriteString(`{
  "is_valid": true,
  "compilation_issues": [],
  "missing_dependencies": [],
  "completeness_issues": [],
  "production_issues": [],
  "recommendations": [],
  "overall_quality_score": 0
}`)
	b.WriteString("\n")

	return b.String()
}
