package langprofile

import (
	"os"
	"path/filepath"
	"strings"
)

// All returns every built-in language profile.
func All() []LangProfile {
	return []LangProfile{
		GoProfile(),
		PythonProfile(),
		JavaScriptProfile(),
		TypeScriptProfile(),
		RustProfile(),
	}
}

// ForLanguage returns the built-in profile for lang (case-insensitive).
func ForLanguage(lang string) (LangProfile, bool) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	for _, p := range All() {
		if p.Language == lang {
			return p, true
		}
	}
	return LangProfile{}, false
}

// extensions covers languages that have no quality profile but still need
// a sensible artifact extension.
//
//nolint:gochecknoglobals // read-only lookup table
var extensions = map[string]string{
	"java": "java",
	"cpp":  "cpp",
	"c":    "c",
}

// ExtensionFor returns the artifact extension for lang, "txt" when unknown.
func ExtensionFor(lang string) string {
	if p, ok := ForLanguage(lang); ok {
		return p.Extension
	}
	if ext, ok := extensions[strings.ToLower(lang)]; ok {
		return ext
	}
	return "txt"
}

// GoProfile returns the language profile for Go projects.
func GoProfile() LangProfile {
	return LangProfile{
		Language:  "go",
		Extension: "go",
		Detect:    detectGo,
		Compile: &Tool{
			Name:        "gofmt-syntax",
			Cmd:         "gofmt -e -l {file}",
			DetectCmd:   "gofmt -h",
			InstallHint: "install the Go toolchain",
		},
		Linters: []Tool{
			{
				Name:         "gofmt",
				Cmd:          "gofmt -l {file}",
				DetectCmd:    "gofmt -h",
				InstallHint:  "install the Go toolchain",
				FailOnOutput: true,
			},
		},
		TestCmd: "go test {dir}",
		Security: &Tool{
			Name:        "gosec",
			Cmd:         "gosec -quiet {dir}",
			DetectCmd:   "gosec -version",
			InstallHint: "go install github.com/securego/gosec/v2/cmd/gosec@latest",
		},
		CodingRules: []string{
			"Use gofumpt for consistent formatting",
			"Return errors explicitly; wrap with %w",
			"Pure core (business logic), impure edges (I/O)",
			"Prefer early returns over nested conditionals",
		},
		CoverageCmd: "go test -cover {dir}",
		CoverageMin: 80,
	}
}

// detectGo returns true if the given directory contains a go.mod file.
func detectGo(projectRoot string) bool {
	goModPath := filepath.Join(projectRoot, "go.mod")
	_, err := os.Stat(goModPath)
	return err == nil
}

// PythonProfile returns the language profile for Python projects.
func PythonProfile() LangProfile {
	return LangProfile{
		Language:  "python",
		Extension: "py",
		Detect:    detectPython,
		Compile: &Tool{
			Name:        "py_compile",
			Cmd:         "python3 -m py_compile {file}",
			DetectCmd:   "python3 --version",
			InstallHint: "install python3",
		},
		Formatters: []Tool{
			{
				Name:        "ruff-format",
				Cmd:         "ruff format --check {file}",
				DetectCmd:   "ruff --version",
				InstallHint: "pip install ruff",
			},
		},
		Linters: []Tool{
			{
				Name:        "flake8",
				Cmd:         "flake8 {file}",
				DetectCmd:   "flake8 --version",
				InstallHint: "pip install flake8",
			},
		},
		TestCmd: "pytest -q {file}",
		TypeCheck: &Tool{
			Name:        "mypy",
			Cmd:         "mypy {file}",
			DetectCmd:   "mypy --version",
			InstallHint: "pip install mypy",
		},
		Security: &Tool{
			Name:        "bandit",
			Cmd:         "bandit -q {file}",
			DetectCmd:   "bandit --version",
			InstallHint: "pip install bandit",
		},
		CodingRules: []string{
			"Follow PEP 8 style guide",
			"Use f-strings for string formatting",
			"Prefer pytest fixtures over test classes",
			"Pure core (business logic), impure edges (I/O)",
		},
		CoverageCmd: "pytest -q --cov={dir} --cov-report=term {file}",
		CoverageMin: 80,
	}
}

// detectPython returns true if the given directory contains any Python project marker:
// pyproject.toml, setup.py, or requirements.txt.
func detectPython(projectRoot string) bool {
	return anyMarker(projectRoot, "pyproject.toml", "setup.py", "requirements.txt")
}

// JavaScriptProfile returns the language profile for JavaScript projects.
func JavaScriptProfile() LangProfile {
	return LangProfile{
		Language:  "javascript",
		Extension: "js",
		Detect:    detectJavaScript,
		Compile: &Tool{
			Name:        "node-check",
			Cmd:         "node --check {file}",
			DetectCmd:   "node --version",
			InstallHint: "install Node.js",
		},
		Linters: []Tool{
			{
				Name:        "eslint",
				Cmd:         "eslint {file}",
				DetectCmd:   "eslint --version",
				InstallHint: "npm install eslint",
			},
		},
		TestCmd: "jest {file}",
		Security: &Tool{
			Name:        "semgrep",
			Cmd:         "semgrep --config=auto --error --quiet {file}",
			DetectCmd:   "semgrep --version",
			InstallHint: "pip install semgrep",
		},
		CodingRules: []string{
			"Use const/let, never var",
			"Handle promise rejections explicitly",
		},
	}
}

func detectJavaScript(projectRoot string) bool {
	return anyMarker(projectRoot, "package.json") && !anyMarker(projectRoot, "tsconfig.json")
}

// TypeScriptProfile returns the language profile for TypeScript projects.
func TypeScriptProfile() LangProfile {
	return LangProfile{
		Language:  "typescript",
		Extension: "ts",
		Detect:    detectTypeScript,
		Compile: &Tool{
			Name:        "tsc",
			Cmd:         "tsc --noEmit {file}",
			DetectCmd:   "tsc --version",
			InstallHint: "npm install -g typescript",
		},
		Linters: []Tool{
			{
				Name:        "eslint",
				Cmd:         "eslint {file}",
				DetectCmd:   "eslint --version",
				InstallHint: "npm install eslint",
			},
		},
		TestCmd: "jest {file}",
		TypeCheck: &Tool{
			Name:        "tsc-strict",
			Cmd:         "tsc --noEmit --strict {file}",
			DetectCmd:   "tsc --version",
			InstallHint: "npm install -g typescript",
		},
		Security: &Tool{
			Name:        "semgrep",
			Cmd:         "semgrep --config=auto --error --quiet {file}",
			DetectCmd:   "semgrep --version",
			InstallHint: "pip install semgrep",
		},
		CodingRules: []string{
			"Enable strict mode; avoid any",
			"Prefer interfaces for object shapes",
		},
	}
}

func detectTypeScript(projectRoot string) bool {
	return anyMarker(projectRoot, "tsconfig.json")
}

// RustProfile returns the language profile for Rust projects.
func RustProfile() LangProfile {
	return LangProfile{
		Language:  "rust",
		Extension: "rs",
		Detect:    detectRust,
		Linters: []Tool{
			{
				Name:        "rustfmt",
				Cmd:         "rustfmt --check {file}",
				DetectCmd:   "rustfmt --version",
				InstallHint: "rustup component add rustfmt",
			},
		},
		TestCmd: "cargo test --manifest-path {dir}/Cargo.toml",
		CodingRules: []string{
			"No unwrap() outside tests",
			"Propagate errors with ?",
		},
	}
}

func detectRust(projectRoot string) bool {
	return anyMarker(projectRoot, "Cargo.toml")
}

// anyMarker reports whether any of the named files exists in projectRoot.
func anyMarker(projectRoot string, markers ...string) bool {
	for _, marker := range markers {
		if _, err := os.Stat(filepath.Join(projectRoot, marker)); err == nil {
			return true
		}
	}
	return false
}
