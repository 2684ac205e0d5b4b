package langprofile_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"offload/pkg/langprofile"
)

func TestGenerateConfig(t *testing.T) {
	t.Run("detects go project when go.mod present", func(t *testing.T) {
		tmpDir := t.TempDir()
		//nolint:gosec // Test file permissions are acceptable
		if err := os.WriteFile(filepath.Join(tmpDir, "go.mod"), []byte("module example\n\ngo 1.21\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		cfg := langprofile.GenerateConfig(tmpDir, langprofile.All())

		if len(cfg.Languages) != 1 {
			t.Fatalf("expected only go, got %d languages", len(cfg.Languages))
		}
		goCfg, ok := cfg.Languages["go"]
		if !ok {
			t.Fatal("expected 'go' language in config, not found")
		}
		if goCfg.TestCmd != "go test {dir}" {
			t.Errorf("TestCmd = %q", goCfg.TestCmd)
		}
		if len(goCfg.Linters) == 0 || goCfg.Linters[0].Name != "gofmt" || !goCfg.Linters[0].FailOnOutput {
			t.Errorf("Linters = %+v, want gofmt with fail_on_output", goCfg.Linters)
		}
		if goCfg.Security == nil || goCfg.Security.Name != "gosec" {
			t.Errorf("Security = %+v, want gosec", goCfg.Security)
		}
	})

	t.Run("returns empty config when no languages detected", func(t *testing.T) {
		cfg := langprofile.GenerateConfig(t.TempDir(), langprofile.All())
		if len(cfg.Languages) != 0 {
			t.Errorf("expected empty config, got %d languages", len(cfg.Languages))
		}
	})
}

func TestBuildYAML(t *testing.T) {
	t.Run("empty config has a hint", func(t *testing.T) {
		out, err := langprofile.BuildYAML(&langprofile.Config{})
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(out, "offload init") {
			t.Errorf("expected init hint, got:\n%s", out)
		}
		if !strings.Contains(out, "languages: {}") {
			t.Errorf("expected empty languages map, got:\n%s", out)
		}
	})

	t.Run("generated yaml is read back as an override", func(t *testing.T) {
		tmpDir := t.TempDir()
		writeFile(t, filepath.Join(tmpDir, "requirements.txt"), "requests\n")

		cfg := langprofile.GenerateConfig(tmpDir, langprofile.All())
		cfg.Languages["python"] = func(lc langprofile.LanguageConfig) langprofile.LanguageConfig {
			lc.TestCmd = "make pytest"
			return lc
		}(cfg.Languages["python"])

		out, err := langprofile.BuildYAML(cfg)
		if err != nil {
			t.Fatal(err)
		}

		var parsed langprofile.Config
		if err := yaml.Unmarshal([]byte(out), &parsed); err != nil {
			t.Fatalf("generated yaml does not parse: %v\n%s", err, out)
		}
		if _, ok := parsed.Languages["python"]; !ok {
			t.Fatalf("python missing from generated yaml:\n%s", out)
		}

		writeFile(t, filepath.Join(tmpDir, ".offload", langprofile.QualityFile), out)
		p, _ := langprofile.Resolve(tmpDir, "python")
		if p.TestCmd != "make pytest" {
			t.Errorf("TestCmd = %q, want override", p.TestCmd)
		}
		if p.Compile == nil || p.Compile.Name != "py_compile" {
			t.Errorf("Compile = %+v, want py_compile round-tripped", p.Compile)
		}
	})
}
