// Package prompt assembles the generation and validation prompts sent to
// the local model. Everything here is pure string building.
package prompt

import (
	"fmt"
	"strings"

	"offload/pkg/langprofile"
	"offload/pkg/protocol"
)

// WriteTool and ReadTool are the tool names the generator may call.
const (
	WriteTool = "write_file"
	ReadTool  = "read_file"
)

// section writes a markdown section (## header + body) to the builder.
func section(b *strings.Builder, header, body string) {
	fmt.Fprintf(b, "## %s\n\n%s\n\n", header, body)
}

func bullets(items []string) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, "- "+it)
	}
	return strings.Join(lines, "\n")
}

// rolePreamble returns the persona line for a task type.
func rolePreamble(t protocol.TaskType, language string) string {
	lang := strings.ToUpper(language)
	switch t {
	case protocol.TaskFunctionImplementation:
		return fmt.Sprintf("You are a SENIOR %s SOFTWARE ENGINEER - Expert in writing production-grade functions and methods with complete implementations, error handling, and testing considerations.", lang)
	case protocol.TaskTestGeneration:
		return fmt.Sprintf("You are a SENIOR QA AUTOMATION ENGINEER - Expert in writing test suites with high coverage and edge case handling for %s applications.", language)
	case protocol.TaskAPIEndpoint:
		return "You are a SENIOR BACKEND API ENGINEER - Expert in designing and implementing robust REST APIs with proper validation, authentication, error handling, and OpenAPI documentation."
	case protocol.TaskBugFix:
		return "You are a SENIOR DEBUGGING SPECIALIST - Expert in identifying root causes, implementing targeted fixes, and making sure fixes do not introduce regressions."
	case protocol.TaskRefactoring:
		return "You are a SENIOR CODE ARCHITECT - Expert in improving code structure and maintainability while preserving behavior and backward compatibility."
	case protocol.TaskPerformanceOptimization:
		return fmt.Sprintf("You are a SENIOR PERFORMANCE ENGINEER - Expert in profiling, optimizing, and scaling %s applications.", language)
	case protocol.TaskDocumentation:
		return "You are a SENIOR TECHNICAL WRITER - Expert in clear, maintainable technical documentation with examples."
	case protocol.TaskSecurityAudit:
		return "You are a SENIOR SECURITY ENGINEER - Expert in identifying vulnerabilities and applying secure coding practices."
	case protocol.TaskCodeReview:
		return "You are a SENIOR CODE REVIEW SPECIALIST - Expert in thorough reviews focused on correctness, maintainability, and security."
	default:
		return fmt.Sprintf("You are a SENIOR %s DEVELOPER - Expert in writing high-quality, production-ready code.", lang)
	}
}

// taskExtras returns an extra section for task types that need one.
func taskExtras(t protocol.TaskType) (header, body string, ok bool) {
	switch t {
	case protocol.TaskTestGeneration:
		return "Test Expectations", bullets([]string{
			"Test happy path scenarios",
			"Test edge cases",
			"Test error conditions",
			"Use appropriate mocking where needed",
			"Achieve at least 80% code coverage",
		}), true
	case protocol.TaskAPIEndpoint:
		return "API Expectations", bullets([]string{
			"Input validation",
			"Authentication checks",
			"Error responses",
			"OpenAPI documentation comments",
			"Rate limiting considerations",
		}), true
	default:
		return "", "", false
	}
}

// outputContract tells the generator where to persist its answer.
func outputContract(language, artifactPath string) string {
	return strings.Join([]string{
		fmt.Sprintf("Write the complete %s code and save it with the `%s` tool. Do not explain; write the file.", language, WriteTool),
		"",
		fmt.Sprintf("Call: %s(path=%q, content=\"<complete file contents>\")", WriteTool, artifactPath),
		"",
		fmt.Sprintf("If the tool is unavailable, reply with the whole file in a single ```%s fenced block.", language),
	}, "\n")
}

// Assemble builds the generation prompt for p. protocolText is spliced in
// verbatim and its section is omitted when empty. artifactPath is the file
// the generator is told to write.
func Assemble(p protocol.WorkPackage, protocolText, artifactPath string) string {
	var b strings.Builder
	lang := p.Context.Language

	// 1. Role
	role := rolePreamble(p.TaskType, lang)
	if p.Command != "" {
		role = fmt.Sprintf("[COMMAND: %s]\n\n%s", p.Command, role)
	}
	section(&b, "Role", role)

	// 2. Task
	task := fmt.Sprintf("- **Task type:** %s\n- **Implement:** %s\n- **Language:** %s", p.TaskType, p.Description, lang)
	if p.Context.Framework != "" {
		task += fmt.Sprintf("\n- **Framework:** %s", p.Context.Framework)
	}
	if p.Context.CurrentFile != "" {
		task += fmt.Sprintf("\n- **Originating file:** %s", p.Context.CurrentFile)
	}
	section(&b, "Task", task)

	if len(p.Requirements) > 0 {
		section(&b, "Requirements", bullets(p.Requirements))
	}
	if len(p.AcceptanceCriteria) > 0 {
		section(&b, "Acceptance Criteria", bullets(p.AcceptanceCriteria))
	}

	// 3. Quality standards
	section(&b, "Quality Standards", bullets([]string{
		"All imports declared at the top of the file",
		"Every function, method, and type that is called is also defined",
		"No stubs, placeholders, or TODO markers",
		"Proper error handling and logging",
		"The file must compile on its own",
	}))
	if profile, ok := langprofile.ForLanguage(lang); ok && len(profile.CodingRules) > 0 {
		section(&b, "Language Rules", bullets(profile.CodingRules))
	}

	// 4. Protocol text
	if strings.TrimSpace(protocolText) != "" {
		section(&b, "Protocol", protocolText)
	}

	if header, body, ok := taskExtras(p.TaskType); ok {
		section(&b, header, body)
	}

	// 5. Output contract, first statement
	contract := outputContract(lang, artifactPath)
	section(&b, "Output", contract)

	// 6. Repeated last
	b.WriteString("## Output (Reminder)\n\n")
	b.WriteString(contract)
	b.WriteString("\n")

	return b.String()
}
