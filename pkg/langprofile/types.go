// Package langprofile defines language-specific quality tool profiles.
// Each profile describes the compile check, linters, test and coverage
// commands, and optional type-checking/security tools for a programming
// language, plus the file extension used for generated artifacts.
package langprofile

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Placeholders substituted into tool commands.
const (
	FilePlaceholder = "{file}" // artifact path
	DirPlaceholder  = "{dir}"  // directory holding the artifact
)

// Tool describes a single quality tool (formatter, linter, etc.).
type Tool struct {
	Name         string // display name (e.g. "ruff")
	Cmd          string // command to run (e.g. "ruff check {file}")
	DetectCmd    string // command to check if tool is installed (e.g. "ruff --version")
	InstallHint  string // how to install (e.g. "pip install ruff")
	FailOnOutput bool   // treat any stdout as failure (gofmt -l style tools)
}

// Binary returns the executable name of the tool's command.
func (t Tool) Binary() string {
	fields := strings.Fields(t.Cmd)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Argv expands placeholders in Cmd for the given artifact and splits it
// into arguments. Paths are substituted after splitting so that spaces in
// paths survive.
func (t Tool) Argv(file string) []string {
	return ExpandCommand(t.Cmd, file)
}

// ExpandCommand splits cmd on whitespace and substitutes the {file} and
// {dir} placeholders in each argument.
func ExpandCommand(cmd, file string) []string {
	fields := strings.Fields(cmd)
	dir := filepath.Dir(file)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, FilePlaceholder, file)
		f = strings.ReplaceAll(f, DirPlaceholder, dir)
		out = append(out, f)
	}
	return out
}

// LangProfile describes the quality toolchain for a single language.
type LangProfile struct {
	Language    string            // canonical name (e.g. "go", "python", "typescript")
	Extension   string            // artifact file extension without dot (e.g. "py")
	Detect      func(string) bool // returns true if the given project root uses this language
	Compile     *Tool             // optional compilation/syntax check
	Formatters  []Tool            // ordered list of formatters (run in check mode)
	Linters     []Tool            // ordered list of linters to run
	TestCmd     string            // command to run associated tests; {file} is the test file
	TypeCheck   *Tool             // optional type checker
	Security    *Tool             // optional security scanner
	CodingRules []string          // language-specific coding rules/conventions
	CoverageCmd string            // optional coverage command; {file} is the test file
	CoverageMin int               // minimum coverage percentage (0 = no enforcement)
}

// Validate checks that required fields are set. Returns an error describing
// the first missing field.
func (lp LangProfile) Validate() error {
	if lp.Language == "" {
		return fmt.Errorf("langprofile: Language is required")
	}
	if lp.Extension == "" {
		return fmt.Errorf("langprofile: Extension is required")
	}
	if lp.Detect == nil {
		return fmt.Errorf("langprofile: Detect function is required")
	}
	if lp.TestCmd == "" {
		return fmt.Errorf("langprofile: TestCmd is required")
	}
	return nil
}
