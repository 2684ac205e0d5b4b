package langprofile_test

import (
	"os"
	"path/filepath"
	"testing"

	"offload/pkg/langprofile"
)

func TestAllProfilesValidate(t *testing.T) {
	seen := map[string]bool{}
	for _, p := range langprofile.All() {
		if err := p.Validate(); err != nil {
			t.Errorf("%s profile invalid: %v", p.Language, err)
		}
		if seen[p.Language] {
			t.Errorf("duplicate profile for %s", p.Language)
		}
		seen[p.Language] = true
	}
	for _, lang := range []string{"python", "go", "javascript", "typescript", "rust"} {
		if !seen[lang] {
			t.Errorf("missing profile for %s", lang)
		}
	}
}

func TestForLanguage(t *testing.T) {
	p, ok := langprofile.ForLanguage(" Python ")
	if !ok {
		t.Fatal("expected python profile")
	}
	if p.Language != "python" {
		t.Errorf("Language = %q, want python", p.Language)
	}
	if _, ok := langprofile.ForLanguage("cobol"); ok {
		t.Error("expected no profile for cobol")
	}
}

func TestExtensionFor(t *testing.T) {
	tests := map[string]string{
		"python":     "py",
		"javascript": "js",
		"typescript": "ts",
		"go":         "go",
		"rust":       "rs",
		"java":       "java",
		"cpp":        "cpp",
		"c":          "c",
		"haskell":    "txt",
		"":           "txt",
	}
	for lang, want := range tests {
		if got := langprofile.ExtensionFor(lang); got != want {
			t.Errorf("ExtensionFor(%q) = %q, want %q", lang, got, want)
		}
	}
}

func TestGoProfile(t *testing.T) {
	profile := langprofile.GoProfile()

	if len(profile.Linters) == 0 {
		t.Fatal("Linters should not be empty")
	}
	gofmt := profile.Linters[0]
	if gofmt.Name != "gofmt" {
		t.Errorf("first linter = %q, want gofmt", gofmt.Name)
	}
	if !gofmt.FailOnOutput {
		t.Error("gofmt -l reports unformatted files on stdout; FailOnOutput must be set")
	}
	if profile.Security == nil || profile.Security.Name != "gosec" {
		t.Errorf("Security = %+v, want gosec", profile.Security)
	}
	if profile.CoverageMin != 80 {
		t.Errorf("CoverageMin = %d, want 80", profile.CoverageMin)
	}
}

func TestPythonProfile(t *testing.T) {
	profile := langprofile.PythonProfile()

	if profile.Compile == nil || profile.Compile.Binary() != "python3" {
		t.Errorf("Compile = %+v, want python3 -m py_compile", profile.Compile)
	}
	if profile.TypeCheck == nil || profile.TypeCheck.Name != "mypy" {
		t.Errorf("TypeCheck = %+v, want mypy", profile.TypeCheck)
	}
	if profile.Security == nil || profile.Security.Name != "bandit" {
		t.Errorf("Security = %+v, want bandit", profile.Security)
	}
	for _, tool := range append(profile.Formatters, profile.Linters...) {
		if tool.Cmd == "" || tool.DetectCmd == "" || tool.InstallHint == "" {
			t.Errorf("tool %s has empty fields: %+v", tool.Name, tool)
		}
	}
}

func TestProfileDetect(t *testing.T) {
	tests := []struct {
		name    string
		markers []string
		want    map[string]bool
	}{
		{
			name:    "go.mod",
			markers: []string{"go.mod"},
			want:    map[string]bool{"go": true, "python": false, "javascript": false},
		},
		{
			name:    "pyproject",
			markers: []string{"pyproject.toml"},
			want:    map[string]bool{"python": true, "go": false},
		},
		{
			name:    "requirements.txt",
			markers: []string{"requirements.txt"},
			want:    map[string]bool{"python": true},
		},
		{
			name:    "plain js",
			markers: []string{"package.json"},
			want:    map[string]bool{"javascript": true, "typescript": false},
		},
		{
			name:    "typescript wins over js",
			markers: []string{"package.json", "tsconfig.json"},
			want:    map[string]bool{"javascript": false, "typescript": true},
		},
		{
			name:    "cargo",
			markers: []string{"Cargo.toml"},
			want:    map[string]bool{"rust": true},
		},
		{
			name: "empty",
			want: map[string]bool{"go": false, "python": false, "javascript": false, "typescript": false, "rust": false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, m := range tt.markers {
				//nolint:gosec // Test file permissions are acceptable
				if err := os.WriteFile(filepath.Join(dir, m), []byte("{}"), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			for lang, want := range tt.want {
				p, ok := langprofile.ForLanguage(lang)
				if !ok {
					t.Fatalf("no profile for %s", lang)
				}
				if got := p.Detect(dir); got != want {
					t.Errorf("%s.Detect = %v, want %v", lang, got, want)
				}
			}
		})
	}
}
