package langprofile

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// QualityFile is the per-project override file, relative to the project's
// .offload directory.
const QualityFile = "quality.yaml"

// Config represents the .offload/quality.yaml structure.
type Config struct {
	Languages map[string]LanguageConfig `yaml:"languages"`
}

// ToolConfig names a tool and the command line to run it with.
type ToolConfig struct {
	Name         string `yaml:"name"`
	Cmd          string `yaml:"cmd"`
	FailOnOutput bool   `yaml:"fail_on_output,omitempty"`
}

// LanguageConfig holds the tool overrides for a single language. Empty
// fields leave the built-in profile untouched.
type LanguageConfig struct {
	Compile     *ToolConfig  `yaml:"compile,omitempty"`
	Formatters  []ToolConfig `yaml:"formatters,omitempty"`
	Linters     []ToolConfig `yaml:"linters,omitempty"`
	TestCmd     string       `yaml:"test_cmd,omitempty"`
	TypeCheck   *ToolConfig  `yaml:"type_check,omitempty"`
	Security    *ToolConfig  `yaml:"security,omitempty"`
	CoverageMin int          `yaml:"coverage_min,omitempty"`
	CodingRules []string     `yaml:"coding_rules,omitempty"`
}

// GenerateConfig scans the project root, detects languages using the provided profiles,
// and returns a Config with resolved tool choices.
func GenerateConfig(projectRoot string, profiles []LangProfile) *Config {
	cfg := &Config{
		Languages: make(map[string]LanguageConfig),
	}

	for _, profile := range profiles {
		if !profile.Detect(projectRoot) {
			continue
		}
		profile = DetectExistingTools(projectRoot, profile)

		langCfg := LanguageConfig{
			Compile:     toolConfig(profile.Compile),
			TestCmd:     profile.TestCmd,
			TypeCheck:   toolConfig(profile.TypeCheck),
			Security:    toolConfig(profile.Security),
			CoverageMin: profile.CoverageMin,
			CodingRules: profile.CodingRules,
		}
		for i := range profile.Formatters {
			langCfg.Formatters = append(langCfg.Formatters, *toolConfig(&profile.Formatters[i]))
		}
		for i := range profile.Linters {
			langCfg.Linters = append(langCfg.Linters, *toolConfig(&profile.Linters[i]))
		}

		cfg.Languages[profile.Language] = langCfg
	}

	return cfg
}

func toolConfig(t *Tool) *ToolConfig {
	if t == nil {
		return nil
	}
	return &ToolConfig{Name: t.Name, Cmd: t.Cmd, FailOnOutput: t.FailOnOutput}
}

func (tc ToolConfig) tool() Tool {
	return Tool{Name: tc.Name, Cmd: tc.Cmd, FailOnOutput: tc.FailOnOutput}
}

// BuildYAML renders cfg as the contents of .offload/quality.yaml.
func BuildYAML(cfg *Config) (string, error) {
	if len(cfg.Languages) == 0 {
		return "# no languages detected in project root.\n" +
			"# Run 'offload init' from your project directory to generate language profiles.\n" +
			"languages: {}\n", nil
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("langprofile: marshal config: %w", err)
	}
	return string(data), nil
}

// Apply overlays lc onto profile and returns the result.
func (lc LanguageConfig) Apply(profile LangProfile) LangProfile {
	adapted := profile
	if lc.Compile != nil {
		t := lc.Compile.tool()
		adapted.Compile = &t
	}
	if len(lc.Formatters) > 0 {
		adapted.Formatters = make([]Tool, len(lc.Formatters))
		for i, f := range lc.Formatters {
			adapted.Formatters[i] = f.tool()
		}
	}
	if len(lc.Linters) > 0 {
		adapted.Linters = make([]Tool, len(lc.Linters))
		for i, l := range lc.Linters {
			adapted.Linters[i] = l.tool()
		}
	}
	if lc.TestCmd != "" {
		adapted.TestCmd = lc.TestCmd
	}
	if lc.TypeCheck != nil {
		t := lc.TypeCheck.tool()
		adapted.TypeCheck = &t
	}
	if lc.Security != nil {
		t := lc.Security.tool()
		adapted.Security = &t
	}
	if lc.CoverageMin > 0 {
		adapted.CoverageMin = lc.CoverageMin
	}
	if len(lc.CodingRules) > 0 {
		adapted.CodingRules = lc.CodingRules
	}
	return adapted
}
