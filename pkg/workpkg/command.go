package workpkg

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"

	"offload/pkg/langprofile"
	"offload/pkg/protocol"
)

// Command identifiers understood by the protocol text loader.
const (
	CommandImplement   = "/delegate/implement"
	CommandTest        = "/delegate/test"
	CommandDebug       = "/delegate/debug"
	CommandRefactor    = "/delegate/refactor"
	CommandDocs        = "/delegate/docs"
	CommandAPI         = "/delegate/api"
	CommandPerformance = "/delegate/performance"
	CommandSecurity    = "/delegate/security"
	CommandReview      = "/delegate/review"
	CommandGeneral     = "/delegate/general"
)

//nolint:gochecknoglobals // read-only lookup table
var defaultCommands = map[protocol.TaskType]string{
	protocol.TaskFunctionImplementation:  CommandImplement,
	protocol.TaskTestGeneration:          CommandTest,
	protocol.TaskBugFix:                  CommandDebug,
	protocol.TaskRefactoring:             CommandRefactor,
	protocol.TaskDocumentation:           CommandDocs,
	protocol.TaskAPIEndpoint:             CommandAPI,
	protocol.TaskPerformanceOptimization: CommandPerformance,
	protocol.TaskSecurityAudit:           CommandSecurity,
	protocol.TaskCodeReview:              CommandReview,
	protocol.TaskGeneral:                 CommandGeneral,
}

// keywordRoutes are checked in order; the first route with a keyword in the
// description wins.
//
//nolint:gochecknoglobals // read-only lookup table
var keywordRoutes = []struct {
	command  string
	keywords []string
}{
	{CommandSecurity, []string{"secure", "security", "vulnerability", "exploit", "injection"}},
	{CommandPerformance, []string{"fast", "slow", "optimize", "performance", "speed"}},
	{CommandTest, []string{"test", "coverage", "unit", "integration", "e2e"}},
	{CommandAPI, []string{"api", "endpoint", "rest", "graphql", "route"}},
	{CommandRefactor, []string{"clean", "refactor", "improve", "restructure"}},
	{CommandDebug, []string{"bug", "fix", "error", "issue", "broken"}},
	{CommandDocs, []string{"document", "docs", "comment", "explain"}},
	{CommandReview, []string{"review", "audit", "check", "validate"}},
}

// SelectCommand picks the command identifier for a candidate. Description
// keywords win, then hints from the originating file name, then the task
// type's default command.
func SelectCommand(c Candidate, pctx protocol.PackageContext) string {
	words := tokenize(c.Description)
	for _, route := range keywordRoutes {
		for _, kw := range route.keywords {
			if hasWordPrefix(words, kw) {
				return route.command
			}
		}
	}

	if file := strings.ToLower(filepath.Base(pctx.CurrentFile)); file != "." && file != "" {
		switch {
		case strings.Contains(file, "test"):
			return CommandTest
		case strings.Contains(file, "api"), strings.Contains(file, "route"):
			return CommandAPI
		}
	}

	if cmd, ok := defaultCommands[c.TaskType]; ok {
		return cmd
	}
	return CommandGeneral
}

// tokenize lowercases s and splits it into letter/digit runs.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// hasWordPrefix reports whether any word starts with kw ("tests" matches
// "test", "latest" does not).
func hasWordPrefix(words []string, kw string) bool {
	for _, w := range words {
		if strings.HasPrefix(w, kw) {
			return true
		}
	}
	return false
}

//nolint:gochecknoglobals // read-only lookup table
var extLanguages = map[string]string{
	".py":  "python",
	".js":  "javascript",
	".mjs": "javascript",
	".jsx": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",
	".go":  "go",
	".rs":  "rust",
}

// DefaultLanguage is assumed when neither the file nor the project says
// otherwise.
const DefaultLanguage = "python"

// DetectLanguage maps a file's extension to a language name. It returns ""
// when the extension is not recognised.
func DetectLanguage(file string) string {
	return extLanguages[strings.ToLower(filepath.Ext(file))]
}

// ResolveLanguage picks the package language: the originating file's
// extension first, then the first language profile whose project markers
// exist under root, then DefaultLanguage.
func ResolveLanguage(file, root string) string {
	if lang := DetectLanguage(file); lang != "" {
		return lang
	}
	if root != "" {
		for _, p := range langprofile.All() {
			if p.Detect(root) {
				return p.Language
			}
		}
	}
	return DefaultLanguage
}

// DetectFramework inspects project manifests under root for a known web
// framework. Returns "" when none is found.
func DetectFramework(root string) string {
	if root == "" {
		return ""
	}
	if fw := frameworkFromPackageJSON(filepath.Join(root, "package.json")); fw != "" {
		return fw
	}
	if fw := frameworkFromLines(filepath.Join(root, "requirements.txt"), "django", "flask", "fastapi"); fw != "" {
		return fw
	}
	if fw := frameworkFromCargo(filepath.Join(root, "Cargo.toml")); fw != "" {
		return fw
	}
	return frameworkFromLines(filepath.Join(root, "go.mod"), "gin", "echo", "fiber")
}

func frameworkFromPackageJSON(path string) string {
	//nolint:gosec // path is constructed from the project root
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}
	for _, fw := range []string{"next", "react", "vue", "@angular/core", "express"} {
		_, dep := pkg.Dependencies[fw]
		_, dev := pkg.DevDependencies[fw]
		if dep || dev {
			return strings.TrimSuffix(strings.TrimPrefix(fw, "@"), "/core")
		}
	}
	return ""
}

func frameworkFromCargo(path string) string {
	//nolint:gosec // path is constructed from the project root
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	var manifest struct {
		Dependencies map[string]any `toml:"dependencies"`
	}
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return ""
	}
	if _, ok := manifest.Dependencies["actix-web"]; ok {
		return "actix"
	}
	if _, ok := manifest.Dependencies["rocket"]; ok {
		return "rocket"
	}
	return ""
}

// frameworkFromLines returns the first framework name that appears as a
// token in any line of the file at path.
func frameworkFromLines(path string, frameworks ...string) string {
	//nolint:gosec // path is constructed from the project root
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer func() { _ = f.Close() }()

	found := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.ToLower(scanner.Text())
		for _, tok := range strings.FieldsFunc(line, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
		}) {
			found[tok] = true
		}
	}
	for _, fw := range frameworks {
		if found[fw] {
			return fw
		}
	}
	return ""
}
