package langprofile_test

import (
	"os"
	"path/filepath"
	"testing"

	"offload/pkg/langprofile"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	//nolint:gosec // Test file permissions are acceptable
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDetectExistingTools(t *testing.T) {
	t.Run("detects biome in package.json devDeps and uses it over eslint", func(t *testing.T) {
		tmpDir := t.TempDir()
		writeFile(t, filepath.Join(tmpDir, "package.json"), `{
  "name": "test-project",
  "devDependencies": {
    "@biomejs/biome": "^1.8.0",
    "vitest": "^2.0.0"
  }
}`)

		adapted := langprofile.DetectExistingTools(tmpDir, langprofile.TypeScriptProfile())

		if len(adapted.Linters) != 1 || adapted.Linters[0].Name != "biome" {
			t.Errorf("expected biome linter, got %+v", adapted.Linters)
		}
		if adapted.TestCmd != "vitest run {file}" {
			t.Errorf("TestCmd = %q, want vitest", adapted.TestCmd)
		}
	})

	t.Run("detects black and ruff in pyproject.toml", func(t *testing.T) {
		tmpDir := t.TempDir()
		writeFile(t, filepath.Join(tmpDir, "pyproject.toml"), `[tool.black]
line-length = 88

[tool.ruff]
line-length = 88
`)

		adapted := langprofile.DetectExistingTools(tmpDir, langprofile.PythonProfile())

		if len(adapted.Formatters) != 1 || adapted.Formatters[0].Name != "black" {
			t.Errorf("expected black formatter, got %+v", adapted.Formatters)
		}
		if len(adapted.Linters) != 1 || adapted.Linters[0].Name != "ruff" {
			t.Errorf("expected ruff linter, got %+v", adapted.Linters)
		}
	})

	t.Run("malformed manifests leave the profile untouched", func(t *testing.T) {
		tmpDir := t.TempDir()
		writeFile(t, filepath.Join(tmpDir, "package.json"), `{not json`)
		writeFile(t, filepath.Join(tmpDir, "pyproject.toml"), `[[[`)

		js := langprofile.DetectExistingTools(tmpDir, langprofile.JavaScriptProfile())
		if js.Linters[0].Name != "eslint" {
			t.Errorf("expected default eslint, got %s", js.Linters[0].Name)
		}
		py := langprofile.DetectExistingTools(tmpDir, langprofile.PythonProfile())
		if py.Linters[0].Name != "flake8" {
			t.Errorf("expected default flake8, got %s", py.Linters[0].Name)
		}
	})

	t.Run("quality.yaml override wins over detected tools", func(t *testing.T) {
		tmpDir := t.TempDir()
		writeFile(t, filepath.Join(tmpDir, "pyproject.toml"), "[tool.black]\n")
		writeFile(t, filepath.Join(tmpDir, ".offload", langprofile.QualityFile), `languages:
  python:
    linters:
      - name: pylint
        cmd: pylint {file}
    coverage_min: 90
`)

		adapted := langprofile.DetectExistingTools(tmpDir, langprofile.PythonProfile())

		if len(adapted.Linters) != 1 || adapted.Linters[0].Name != "pylint" {
			t.Errorf("expected pylint override, got %+v", adapted.Linters)
		}
		// Formatters are not overridden, so the profile default stays.
		if adapted.Formatters[0].Name != "ruff-format" {
			t.Errorf("expected default formatter, got %s", adapted.Formatters[0].Name)
		}
		if adapted.CoverageMin != 90 {
			t.Errorf("CoverageMin = %d, want 90", adapted.CoverageMin)
		}
	})

	t.Run("override for another language is ignored", func(t *testing.T) {
		tmpDir := t.TempDir()
		writeFile(t, filepath.Join(tmpDir, ".offload", langprofile.QualityFile), `languages:
  go:
    test_cmd: make test
`)

		adapted := langprofile.DetectExistingTools(tmpDir, langprofile.PythonProfile())
		if adapted.TestCmd != langprofile.PythonProfile().TestCmd {
			t.Errorf("TestCmd = %q, want python default", adapted.TestCmd)
		}
	})
}

func TestResolve(t *testing.T) {
	if _, ok := langprofile.Resolve(t.TempDir(), "brainfuck"); ok {
		t.Error("expected no profile for unknown language")
	}
	p, ok := langprofile.Resolve("", "go")
	if !ok || p.Language != "go" {
		t.Errorf("Resolve(\"\", go) = %+v, %v", p.Language, ok)
	}
}
