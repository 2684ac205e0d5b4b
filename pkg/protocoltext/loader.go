// Package protocoltext loads the coding-standard text spliced into
// generation prompts from a directory of markdown command documents.
// Content is opaque; it is only located, trimmed, and cached.
package protocoltext

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// HeaderFile is prepended to every command document when present.
const HeaderFile = "CANONICAL-COMPLIANCE-HEADER.md"

// boilerplateMarker flags documents whose leading section repeats the
// shared header; such documents are trimmed to their task section.
const boilerplateMarker = "CANONICAL PROTOCOL ENFORCEMENT"

//nolint:gochecknoglobals // read-only marker list
var taskSectionMarkers = []string{"## YOUR TASK", "## IMPLEMENTATION", "## OBJECTIVE"}

// Loader reads command documents from one directory and caches them for
// the life of the process. Safe for concurrent use.
type Loader struct {
	dir string

	mu    sync.Mutex
	cache map[string]string
}

// New returns a Loader for dir. dir need not exist; missing documents
// produce a short "not found" note.
func New(dir string) *Loader {
	return &Loader{dir: dir, cache: make(map[string]string)}
}

// Dir returns the commands directory.
func (l *Loader) Dir() string { return l.dir }

// Text returns the protocol text for command: the shared header (if any)
// followed by the command document.
func (l *Loader) Text(command string) string {
	header := l.Header()
	body := l.Load(command)
	if header == "" {
		return body
	}
	return strings.TrimRight(header, "\n") + "\n\n" + body
}

// Header returns the shared compliance header, or "" when absent.
func (l *Loader) Header() string {
	return l.cached("\x00header", func() string {
		data, err := os.ReadFile(filepath.Join(l.dir, HeaderFile))
		if err != nil {
			return ""
		}
		return string(data)
	})
}

// Load returns the document for command (e.g. "/delegate/implement" reads
// "<dir>/delegate/implement.md"). When the exact document is missing it
// tries the name without a "code-" prefix, then the bare name at the top
// of the directory.
func (l *Loader) Load(command string) string {
	return l.cached(command, func() string { return l.load(command) })
}

func (l *Loader) load(command string) string {
	rel := strings.Trim(command, "/")
	if rel == "" || strings.Contains(rel, "..") {
		return notFound(command)
	}
	rel = filepath.FromSlash(rel)

	if content, ok := readDoc(filepath.Join(l.dir, rel+".md")); ok {
		return trimBoilerplate(content)
	}

	parent, base := filepath.Split(rel)
	candidates := []string{
		filepath.Join(l.dir, parent, strings.TrimPrefix(base, "code-")+".md"),
		filepath.Join(l.dir, base+".md"),
	}
	for _, c := range candidates {
		if content, ok := readDoc(c); ok {
			return content
		}
	}
	return notFound(command)
}

func (l *Loader) cached(key string, load func() string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.cache[key]; ok {
		return v
	}
	v := load()
	l.cache[key] = v
	return v
}

func readDoc(path string) (string, bool) {
	//nolint:gosec // path is confined to the commands directory
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// trimBoilerplate drops everything before the first task section when the
// document carries the shared enforcement preamble.
func trimBoilerplate(content string) string {
	if !strings.Contains(content, boilerplateMarker) {
		return content
	}
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		for _, m := range taskSectionMarkers {
			if strings.Contains(line, m) {
				if i == 0 {
					return content
				}
				return strings.Join(lines[i:], "\n")
			}
		}
	}
	return content
}

func notFound(command string) string {
	return fmt.Sprintf("Command %s not found. Using general implementation guidelines.", command)
}
