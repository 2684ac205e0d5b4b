package ollama

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Tool names the generator may call.
const (
	ToolWriteFile = "write_file"
	ToolReadFile  = "read_file"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// ToolArgs are the arguments of write_file/read_file.
type ToolArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Args decodes the call's arguments. Some servers send an object, others a
// JSON-encoded string; both are accepted.
func (tc ToolCall) Args() (ToolArgs, error) {
	var args ToolArgs
	raw := tc.Function.Arguments
	if len(raw) == 0 {
		return args, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return args, fmt.Errorf("tool %s arguments: %w", tc.Function.Name, err)
		}
		raw = json.RawMessage(s)
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, fmt.Errorf("tool %s arguments: %w", tc.Function.Name, err)
	}
	return args, nil
}

type toolSpec struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func toolSpecs() []toolSpec {
	return []toolSpec{
		{
			Type: "function",
			Function: toolFunction{
				Name:        ToolWriteFile,
				Description: "Write content to a file",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"path":    stringProp("File path to write to"),
						"content": stringProp("Content to write to file"),
					},
					"required": []string{"path", "content"},
				},
			},
		},
		{
			Type: "function",
			Function: toolFunction{
				Name:        ToolReadFile,
				Description: "Read file contents",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"path": stringProp("File path to read"),
					},
					"required": []string{"path"},
				},
			},
		},
	}
}

// executeToolCalls runs write_file/read_file calls inside the sandbox root
// and returns the absolute paths written. Failures are logged, never
// returned: a broken tool call just means the extractor falls back to the
// response text.
func (c *Client) executeToolCalls(calls []ToolCall) []string {
	if c.cfg.SandboxRoot == "" {
		c.logger.Debug("tool execution disabled", zap.Int("tool_calls", len(calls)))
		return nil
	}

	var written []string
	for _, call := range calls {
		args, err := call.Args()
		if err != nil {
			c.logger.Warn("tool call ignored", zap.Error(err))
			continue
		}
		path, err := SandboxPath(c.cfg.SandboxRoot, args.Path)
		if err != nil {
			c.logger.Warn("tool call refused", zap.String("tool", call.Function.Name), zap.Error(err))
			continue
		}

		switch call.Function.Name {
		case ToolWriteFile:
			if args.Content == "" {
				c.logger.Warn("write_file with empty content ignored", zap.String("path", path))
				continue
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
				c.logger.Warn("write_file mkdir failed", zap.String("path", path), zap.Error(err))
				continue
			}
			if err := os.WriteFile(path, []byte(args.Content), 0o600); err != nil {
				c.logger.Warn("write_file failed", zap.String("path", path), zap.Error(err))
				continue
			}
			c.logger.Info("tool call wrote file", zap.String("path", path), zap.Int("chars", len(args.Content)))
			written = append(written, path)
		case ToolReadFile:
			//nolint:gosec // path is confined to the sandbox root
			data, err := os.ReadFile(path)
			if err != nil {
				c.logger.Warn("read_file failed", zap.String("path", path), zap.Error(err))
				continue
			}
			c.logger.Info("tool call read file", zap.String("path", path), zap.Int("chars", len(data)))
		default:
			c.logger.Warn("unknown tool call", zap.String("tool", call.Function.Name))
		}
	}
	return written
}

// SandboxPath resolves p against root and refuses paths that escape it.
// Relative paths are taken relative to root; absolute paths must already
// lie inside it.
func SandboxPath(root, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty path")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve sandbox root: %w", err)
	}
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(absRoot, target)
	}
	target = filepath.Clean(target)
	rel, err := filepath.Rel(absRoot, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes sandbox %s", p, absRoot)
	}
	return target, nil
}
