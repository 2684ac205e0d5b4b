// Package extract turns a generation result into an artifact file on disk.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"offload/pkg/langprofile"
	"offload/pkg/protocol"
)

// PreviewChars is how much of a response is kept for diagnosis.
const PreviewChars = 200

// ErrExtractionFailed means neither a tool call nor the response text
// yielded any code.
var ErrExtractionFailed = errors.New("no code found in generation response")

// FailedError carries a preview of the response that yielded no code.
type FailedError struct {
	Preview string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("%v (response preview: %q)", ErrExtractionFailed, e.Preview)
}

func (e *FailedError) Unwrap() error { return ErrExtractionFailed }

// Artifact describes the extracted code file.
type Artifact struct {
	Path   string
	Method string // protocol.MethodToolCall or protocol.MethodResponse
	Code   string
	Lines  int
	Chars  int
}

//nolint:gochecknoglobals // compiled once
var fenceRe = regexp.MustCompile("(?s)```[\\w+#.-]*[^\\S\\n]*\\n(.*?)```")

// ArtifactPath returns <resultsDir>/<id[:8]>_<task_type>.<ext>.
func ArtifactPath(resultsDir string, p protocol.WorkPackage) string {
	name := fmt.Sprintf("%s_%s.%s", p.ShortID(), p.TaskType, langprofile.ExtensionFor(p.Context.Language))
	return filepath.Join(resultsDir, name)
}

// Preview truncates s to PreviewChars runes, appending "..." when cut.
func Preview(s string) string {
	r := []rune(s)
	if len(r) <= PreviewChars {
		return s
	}
	return string(r[:PreviewChars]) + "..."
}

// LongestBlock returns the longest fenced code block in text.
func LongestBlock(text string) (string, bool) {
	best, found := "", false
	for _, m := range fenceRe.FindAllStringSubmatch(text, -1) {
		if !found || len(m[1]) > len(best) {
			best, found = m[1], true
		}
	}
	return best, found
}

// Extract produces the artifact at path. Code already written there by a
// tool call wins; otherwise the longest fenced block in raw is written.
// Running it twice on the same input leaves byte-identical content.
func Extract(path, raw string, written []string) (Artifact, error) {
	if code, ok := toolCallContent(path, written); ok {
		return newArtifact(path, protocol.MethodToolCall, code), nil
	}

	code, ok := LongestBlock(raw)
	if !ok || strings.TrimSpace(code) == "" {
		return Artifact{}, &FailedError{Preview: Preview(raw)}
	}
	if err := writeIfChanged(path, code); err != nil {
		return Artifact{}, err
	}
	return newArtifact(path, protocol.MethodResponse, code), nil
}

// toolCallContent returns the content at path when a tool call wrote it
// and it is non-empty.
func toolCallContent(path string, written []string) (string, bool) {
	want := filepath.Clean(path)
	for _, w := range written {
		if filepath.Clean(w) != want {
			continue
		}
		//nolint:gosec // path is the package's own artifact path
		data, err := os.ReadFile(want)
		if err != nil || len(bytes.TrimSpace(data)) == 0 {
			return "", false
		}
		return string(data), true
	}
	return "", false
}

// writeIfChanged writes code to path via a temp file and rename, skipping
// the write when the content is already identical.
func writeIfChanged(path, code string) error {
	//nolint:gosec // path is the package's own artifact path
	if existing, err := os.ReadFile(path); err == nil && string(existing) == code {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("extract: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".artifact-*")
	if err != nil {
		return fmt.Errorf("extract: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(code); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("extract: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("extract: close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("extract: rename %s: %w", path, err)
	}
	return nil
}

func newArtifact(path, method, code string) Artifact {
	lines := strings.Count(code, "\n")
	if code != "" && !strings.HasSuffix(code, "\n") {
		lines++
	}
	return Artifact{
		Path:   path,
		Method: method,
		Code:   code,
		Lines:  lines,
		Chars:  len([]rune(code)),
	}
}
