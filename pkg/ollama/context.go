package ollama

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// knownContextKeys are checked in order in the /api/show reply.
//
//nolint:gochecknoglobals // read-only lookup table
var knownContextKeys = []string{
	"qwen2.context_length",
	"qwen3.context_length",
	"llama.context_length",
	"context_length",
	"n_ctx",
}

// familyContexts is the static fallback when the service cannot tell us.
//
//nolint:gochecknoglobals // read-only lookup table
var familyContexts = []struct {
	model string
	size  int
}{
	{"qwen2.5-coder:14b", 32768},
	{"qwen3:8b", 40960},
	{"qwen2.5-coder:7b", 32768},
	{"qwen2.5:14b", 32768},
	{"codellama:13b", 16384},
	{"codellama:7b", 16384},
	{"deepseek-coder:6.7b", 16384},
	{"llama3.1:8b", 8192},
	{"llama3.2:3b", 8192},
}

// ContextSize returns the context window for model. The first call per
// model asks the service (/api/show); on failure it falls back to the
// static family table and then DefaultContextWindow. The value is cached
// for the life of the client and never re-queried.
func (c *Client) ContextSize(ctx context.Context, model string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if size, ok := c.contexts[model]; ok {
		return size
	}

	size, source := c.queryContext(ctx, model)
	if size <= 0 {
		size, source = FallbackContextSize(model), "fallback"
	}
	c.contexts[model] = size
	c.logger.Info("model context window",
		zap.String("model", model), zap.Int("tokens", size), zap.String("source", source))
	return size
}

func (c *Client) queryContext(ctx context.Context, model string) (int, string) {
	ctx, cancel := context.WithTimeout(ctx, DefaultShowTimeout)
	defer cancel()

	var raw map[string]any
	if err := c.postJSON(ctx, "/api/show", map[string]string{"name": model}, &raw); err != nil {
		c.logger.Debug("model show failed", zap.String("model", model), zap.Error(err))
		return 0, ""
	}

	// Current servers nest metadata under model_info; older ones flatten it.
	if info, ok := raw["model_info"].(map[string]any); ok {
		if size, key := ContextFromInfo(info); size > 0 {
			return size, key
		}
	}
	size, key := ContextFromInfo(raw)
	return size, key
}

// ContextFromInfo extracts a context length from model metadata: known keys
// first, then any numeric key containing "context". Returns the size and
// the key it came from, or 0.
func ContextFromInfo(info map[string]any) (int, string) {
	for _, key := range knownContextKeys {
		if n, ok := asInt(info[key]); ok && n > 0 {
			return n, key
		}
	}
	keys := make([]string, 0, len(info))
	for key := range info {
		if strings.Contains(strings.ToLower(key), "context") {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		if n, ok := asInt(info[key]); ok && n > 0 {
			return n, key
		}
	}
	return 0, ""
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

// FallbackContextSize returns the static context window for model: an exact
// table match, then a family match (any part of a table entry split on ':'
// appearing in the name), then DefaultContextWindow.
func FallbackContextSize(model string) int {
	for _, fc := range familyContexts {
		if fc.model == model {
			return fc.size
		}
	}
	for _, fc := range familyContexts {
		for _, part := range strings.Split(fc.model, ":") {
			if part != "" && strings.Contains(model, part) {
				return fc.size
			}
		}
	}
	return DefaultContextWindow
}
