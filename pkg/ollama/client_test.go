package ollama_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"offload/pkg/ollama"
)

// fakeService is a minimal stand-in for the generation service.
type fakeService struct {
	generate  http.HandlerFunc
	show      http.HandlerFunc
	showCalls atomic.Int32
	lastGen   atomic.Value // map[string]any
}

func (f *fakeService) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"qwen3:8b"},{"name":"codellama:7b"}]}`))
	})
	mux.HandleFunc("/api/show", func(w http.ResponseWriter, r *http.Request) {
		f.showCalls.Add(1)
		if f.show != nil {
			f.show(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"model_info":{"qwen3.context_length":40960}}`))
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.lastGen.Store(body)
		if f.generate != nil {
			f.generate(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"response":"ok","total_duration":1500000000}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerate_SendsOptionsAndTools(t *testing.T) {
	fake := &fakeService{}
	srv := fake.start(t)
	c := ollama.New(ollama.Config{BaseURL: srv.URL}, zaptest.NewLogger(t))

	res, err := c.Generate(context.Background(), "qwen3:8b", "hello", ollama.Options{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, 1500*time.Millisecond, res.Duration)

	body := fake.lastGen.Load().(map[string]any)
	assert.Equal(t, false, body["stream"])
	opts := body["options"].(map[string]any)
	assert.InDelta(t, 0.7, opts["temperature"], 1e-9)
	assert.InDelta(t, 0.9, opts["top_p"], 1e-9)
	assert.InDelta(t, 4096, opts["num_predict"], 1e-9)
	assert.InDelta(t, 40960, opts["num_ctx"], 1e-9)
	assert.Len(t, body["tools"], 2)
}

func TestGenerate_NoTools(t *testing.T) {
	fake := &fakeService{}
	srv := fake.start(t)
	c := ollama.New(ollama.Config{BaseURL: srv.URL}, nil)

	_, err := c.Generate(context.Background(), "m", "p", ollama.Options{NoTools: true, Temperature: 0.1, NumPredict: 1024, NumCtx: 2048})
	require.NoError(t, err)
	body := fake.lastGen.Load().(map[string]any)
	assert.NotContains(t, body, "tools")
	opts := body["options"].(map[string]any)
	assert.InDelta(t, 0.1, opts["temperature"], 1e-9)
	assert.InDelta(t, 2048, opts["num_ctx"], 1e-9)
	assert.Zero(t, fake.showCalls.Load(), "explicit num_ctx skips the show call")
}

func TestGenerate_ErrorTaxonomy(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		c := ollama.New(ollama.Config{BaseURL: url}, nil)
		_, err := c.Generate(context.Background(), "m", "p", ollama.Options{NumCtx: 1})
		assert.ErrorIs(t, err, ollama.ErrServiceUnavailable)
	})

	t.Run("non-success status", func(t *testing.T) {
		fake := &fakeService{generate: func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		}}
		c := ollama.New(ollama.Config{BaseURL: fake.start(t).URL}, nil)
		_, err := c.Generate(context.Background(), "m", "p", ollama.Options{NumCtx: 1})
		assert.ErrorIs(t, err, ollama.ErrBadResponse)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("undecodable body", func(t *testing.T) {
		fake := &fakeService{generate: func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}}
		c := ollama.New(ollama.Config{BaseURL: fake.start(t).URL}, nil)
		_, err := c.Generate(context.Background(), "m", "p", ollama.Options{NumCtx: 1})
		assert.ErrorIs(t, err, ollama.ErrBadResponse)
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		fake := &fakeService{generate: func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}}
		srv := fake.start(t)
		defer close(release)

		c := ollama.New(ollama.Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond}, nil)
		_, err := c.Generate(context.Background(), "m", "p", ollama.Options{NumCtx: 1})
		assert.ErrorIs(t, err, ollama.ErrGenerationTimeout)
	})
}

func TestGenerate_RetriesOnlyTransientFailures(t *testing.T) {
	var calls atomic.Int32
	fake := &fakeService{generate: func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}}
	c := ollama.New(ollama.Config{BaseURL: fake.start(t).URL, Retries: 3, RetryBackoff: time.Millisecond}, nil)
	_, err := c.Generate(context.Background(), "m", "p", ollama.Options{NumCtx: 1})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "bad responses are not retried")
}

func TestGenerate_FailFastByDefault(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	start := time.Now()
	c := ollama.New(ollama.Config{BaseURL: url, RetryBackoff: time.Second}, nil)
	_, err := c.Generate(context.Background(), "m", "p", ollama.Options{NumCtx: 1})
	require.ErrorIs(t, err, ollama.ErrServiceUnavailable)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGenerate_ExecutesWriteToolCall(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "abc_bug_fix.py")
	fake := &fakeService{generate: func(w http.ResponseWriter, _ *http.Request) {
		resp := map[string]any{
			"response": "",
			"tool_calls": []any{
				map[string]any{"function": map[string]any{
					"name":      "write_file",
					"arguments": map[string]any{"path": target, "content": "print('hi')\n"},
				}},
				map[string]any{"function": map[string]any{
					"name":      "write_file",
					"arguments": `{"path":"../../etc/evil","content":"x"}`,
				}},
				map[string]any{"function": map[string]any{
					"name":      "read_file",
					"arguments": map[string]any{"path": "abc_bug_fix.py"},
				}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}}
	c := ollama.New(ollama.Config{BaseURL: fake.start(t).URL, SandboxRoot: root}, zaptest.NewLogger(t))

	res, err := c.Generate(context.Background(), "m", "p", ollama.Options{NumCtx: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{target}, res.WrittenFiles)
	assert.Len(t, res.ToolCalls, 3)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "print('hi')\n", string(data))
	_, err = os.Stat(filepath.Join(root, "..", "..", "etc", "evil"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestListModelsAndHealthy(t *testing.T) {
	fake := &fakeService{}
	c := ollama.New(ollama.Config{BaseURL: fake.start(t).URL}, nil)

	models, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"qwen3:8b", "codellama:7b"}, models)
	assert.True(t, c.Healthy(context.Background()))

	down := ollama.New(ollama.Config{BaseURL: "http://127.0.0.1:1"}, nil)
	assert.False(t, down.Healthy(context.Background()))
	_, err = down.ListModels(context.Background())
	assert.ErrorIs(t, err, ollama.ErrServiceUnavailable)
}

func TestSandboxPath(t *testing.T) {
	root := t.TempDir()
	p, err := ollama.SandboxPath(root, "sub/file.go")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sub", "file.go"), p)

	_, err = ollama.SandboxPath(root, "../outside.go")
	assert.Error(t, err)
	_, err = ollama.SandboxPath(root, "/etc/passwd")
	assert.Error(t, err)
	_, err = ollama.SandboxPath(root, " ")
	assert.Error(t, err)
}
