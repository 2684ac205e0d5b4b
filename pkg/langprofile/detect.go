package langprofile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Resolve returns the profile for lang adapted to the tools configured in
// projectRoot. The second result is false when no profile exists for lang.
func Resolve(projectRoot, lang string) (LangProfile, bool) {
	profile, ok := ForLanguage(lang)
	if !ok {
		return LangProfile{}, false
	}
	if projectRoot == "" {
		return profile, true
	}
	return DetectExistingTools(projectRoot, profile), true
}

// DetectExistingTools scans the project for existing tool configurations
// and adapts the language profile to use detected tools instead of defaults.
// Priority: .offload/quality.yaml overrides > detected tools > profile defaults.
func DetectExistingTools(projectRoot string, profile LangProfile) LangProfile {
	if adapted, ok := loadOverrides(projectRoot, profile); ok {
		return adapted
	}

	switch profile.Language {
	case "typescript", "javascript":
		return detectJSTools(projectRoot, profile)
	case "python":
		return detectPythonTools(projectRoot, profile)
	default:
		return profile
	}
}

// loadOverrides applies the profile's entry in .offload/quality.yaml.
// Returns the adapted profile and true if an entry for the language was found.
func loadOverrides(projectRoot string, profile LangProfile) (LangProfile, bool) {
	configPath := filepath.Join(projectRoot, ".offload", QualityFile)
	//nolint:gosec // configPath is constructed from projectRoot parameter
	data, err := os.ReadFile(configPath)
	if err != nil {
		return profile, false
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return profile, false
	}

	lc, ok := cfg.Languages[profile.Language]
	if !ok {
		return profile, false
	}
	return lc.Apply(profile), true
}

// detectJSTools detects JavaScript/TypeScript tools in package.json.
func detectJSTools(projectRoot string, profile LangProfile) LangProfile {
	packageJSONPath := filepath.Join(projectRoot, "package.json")
	//nolint:gosec // packageJSONPath is constructed from projectRoot parameter
	data, err := os.ReadFile(packageJSONPath)
	if err != nil {
		return profile
	}

	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}

	if err := json.Unmarshal(data, &pkg); err != nil {
		return profile
	}

	adapted := profile

	if hasPackage(pkg.Dependencies, "biome") || hasPackage(pkg.DevDependencies, "biome") {
		adapted.Linters = []Tool{
			{
				Name:        "biome",
				Cmd:         "biome lint {file}",
				DetectCmd:   "biome --version",
				InstallHint: "npm install @biomejs/biome",
			},
		}
	}
	if hasPackage(pkg.DevDependencies, "vitest") {
		adapted.TestCmd = "vitest run {file}"
	}

	return adapted
}

// detectPythonTools detects Python tools in pyproject.toml.
func detectPythonTools(projectRoot string, profile LangProfile) LangProfile {
	pyprojectPath := filepath.Join(projectRoot, "pyproject.toml")
	//nolint:gosec // pyprojectPath is constructed from projectRoot parameter
	data, err := os.ReadFile(pyprojectPath)
	if err != nil {
		return profile
	}

	var pyproject map[string]interface{}
	if err := toml.Unmarshal(data, &pyproject); err != nil {
		return profile
	}

	tool, ok := pyproject["tool"].(map[string]interface{})
	if !ok {
		return profile
	}

	adapted := profile

	if _, hasBlack := tool["black"]; hasBlack {
		adapted.Formatters = []Tool{
			{
				Name:        "black",
				Cmd:         "black --check {file}",
				DetectCmd:   "black --version",
				InstallHint: "pip install black",
			},
		}
	}
	if _, hasRuff := tool["ruff"]; hasRuff {
		adapted.Linters = []Tool{
			{
				Name:        "ruff",
				Cmd:         "ruff check {file}",
				DetectCmd:   "ruff --version",
				InstallHint: "pip install ruff",
			},
		}
	}

	return adapted
}

// hasPackage checks if a package name exists in the dependencies map.
func hasPackage(deps map[string]string, name string) bool {
	// Check for exact match or scoped package (e.g., @biomejs/biome)
	for key := range deps {
		if key == name || strings.HasPrefix(key, "@") && strings.Contains(key, name) {
			return true
		}
	}
	return false
}
