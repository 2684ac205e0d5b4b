package protocoltext_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offload/pkg/protocoltext"
)

func write(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "delegate/implement.md", "# Implement\nWrite the code.\n")
	write(t, dir, "delegate/debug.md", "# CANONICAL PROTOCOL ENFORCEMENT\nboilerplate\n## YOUR TASK\nFind the root cause.\n")
	write(t, dir, "delegate/review.md", "# Review\n## OBJECTIVE\nno preamble here\n")
	write(t, dir, "code/implement.md", "stripped prefix")
	write(t, dir, "docs.md", "top level")

	tests := []struct {
		name    string
		command string
		want    string
	}{
		{"exact", "/delegate/implement", "# Implement\nWrite the code.\n"},
		{"trimmed to task section", "/delegate/debug", "## YOUR TASK\nFind the root cause.\n"},
		{"untrimmed without marker", "/delegate/review", "# Review\n## OBJECTIVE\nno preamble here\n"},
		{"code- prefix fallback", "/code/code-implement", "stripped prefix"},
		{"top level fallback", "/delegate/docs", "top level"},
		{"missing", "/delegate/nothing", "Command /delegate/nothing not found. Using general implementation guidelines."},
		{"escape attempt", "/../../etc/passwd", "Command /../../etc/passwd not found. Using general implementation guidelines."},
	}
	l := protocoltext.New(dir)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.Load(tt.command))
		})
	}
}

func TestLoader_TextPrependsHeader(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, protocoltext.HeaderFile, "HEADER\n\n")
	write(t, dir, "delegate/test.md", "Write tests.")

	l := protocoltext.New(dir)
	assert.Equal(t, "HEADER\n\nWrite tests.", l.Text("/delegate/test"))
}

func TestLoader_Caches(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "delegate/implement.md", "v1")

	l := protocoltext.New(dir)
	assert.Equal(t, "v1", l.Load("/delegate/implement"))

	write(t, dir, "delegate/implement.md", "v2")
	assert.Equal(t, "v1", l.Load("/delegate/implement"))
	assert.Equal(t, "v2", protocoltext.New(dir).Load("/delegate/implement"))
}

func TestLoader_MissingDir(t *testing.T) {
	l := protocoltext.New(filepath.Join(t.TempDir(), "absent"))
	assert.Empty(t, l.Header())
	assert.Contains(t, l.Text("/delegate/general"), "not found")
}
