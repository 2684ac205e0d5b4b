// Package ollama is the HTTP adapter to a local Ollama-compatible
// generation service.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Defaults for Config fields left zero.
const (
	DefaultBaseURL        = "http://localhost:11444"
	DefaultTimeout        = 120 * time.Second
	DefaultShowTimeout    = 10 * time.Second
	DefaultRetryBackoff   = 2 * time.Second
	DefaultContextWindow  = 8192
	maxErrorBodyBytes     = 512
	defaultTemperature    = 0.7
	defaultTopP           = 0.9
	defaultNumPredict     = 4096
	nanosecondsPerSecond  = 1e9
	maxResponseBodyBytes  = 64 << 20
	healthCheckTimeout    = 5 * time.Second
	listModelsCallTimeout = 10 * time.Second
)

// Config configures a Client.
type Config struct {
	BaseURL           string
	Timeout           time.Duration // per generate call
	Retries           int           // extra attempts after the first; 0 = fail fast
	RetryBackoff      time.Duration
	RequestsPerMinute int    // 0 disables pacing
	SandboxRoot       string // tool-call writes are confined here; "" disables tool execution
}

// Options are the sampling options sent with a generate call. Zero values
// take the client defaults; NumCtx 0 means "use the model's context window".
type Options struct {
	Temperature float64
	TopP        float64
	NumPredict  int
	NumCtx      int
	NoTools     bool // omit the write_file/read_file tool definitions
}

// Result is the outcome of one generate call.
type Result struct {
	Text         string
	Duration     time.Duration
	ToolCalls    []ToolCall
	WrittenFiles []string
}

// Client talks to the generation service. It is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger

	mu       sync.Mutex
	contexts map[string]int // model -> context window, process lifetime
}

// New returns a Client. A nil logger is replaced by a no-op logger.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &Client{
		cfg:      cfg,
		http:     &http.Client{},
		limiter:  limiter,
		logger:   logger,
		contexts: make(map[string]int),
	}
}

// BaseURL returns the service endpoint the client talks to.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Tools   []toolSpec     `json:"tools,omitempty"`
	Options map[string]any `json:"options"`
}

type generateResponse struct {
	Response      string     `json:"response"`
	TotalDuration int64      `json:"total_duration"` // nanoseconds
	ToolCalls     []ToolCall `json:"tool_calls"`
	Message       *struct {
		ToolCalls []ToolCall `json:"tool_calls"`
	} `json:"message,omitempty"`
}

// Generate sends prompt to model and executes any tool calls in the reply
// before returning. Failures wrap ErrServiceUnavailable,
// ErrGenerationTimeout, or ErrBadResponse.
func (c *Client) Generate(ctx context.Context, model, prompt string, opts Options) (Result, error) {
	numCtx := opts.NumCtx
	if numCtx == 0 {
		numCtx = c.ContextSize(ctx, model)
	}
	req := generateRequest{
		Model:  model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]any{
			"temperature": orFloat(opts.Temperature, defaultTemperature),
			"top_p":       orFloat(opts.TopP, defaultTopP),
			"num_predict": orInt(opts.NumPredict, defaultNumPredict),
			"num_ctx":     numCtx,
		},
	}
	if !opts.NoTools {
		req.Tools = toolSpecs()
	}

	var (
		resp    generateResponse
		lastErr error
	)
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying generate",
				zap.String("model", model), zap.Int("attempt", attempt), zap.Error(lastErr))
			select {
			case <-time.After(c.cfg.RetryBackoff * time.Duration(1<<(attempt-1))):
			case <-ctx.Done():
				return Result{}, fmt.Errorf("generate %s: %w: %v", model, classify(ctx.Err()), lastErr)
			}
		}
		resp = generateResponse{}
		lastErr = c.callGenerate(ctx, req, &resp)
		if lastErr == nil || !retryable(lastErr) {
			break
		}
	}
	if lastErr != nil {
		return Result{}, lastErr
	}

	calls := resp.ToolCalls
	if len(calls) == 0 && resp.Message != nil {
		calls = resp.Message.ToolCalls
	}
	res := Result{
		Text:      resp.Response,
		Duration:  time.Duration(resp.TotalDuration),
		ToolCalls: calls,
	}
	if len(calls) > 0 {
		res.WrittenFiles = c.executeToolCalls(calls)
	}

	c.logger.Info("generation finished",
		zap.String("model", model),
		zap.Float64("seconds", float64(resp.TotalDuration)/nanosecondsPerSecond),
		zap.Int("response_chars", len(resp.Response)),
		zap.Int("tool_calls", len(calls)),
	)
	return res, nil
}

func (c *Client) callGenerate(ctx context.Context, req generateRequest, out *generateResponse) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	if err := c.wait(ctx); err != nil {
		return fmt.Errorf("generate %s: %w", req.Model, classify(err))
	}
	return c.postJSON(ctx, "/api/generate", req, out)
}

// wait applies request pacing when configured.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// postJSON posts body to path and decodes the reply into out.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	path := req.URL.Path
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w: %v", path, classify(err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return fmt.Errorf("%s: %w: status %d: %s", path, ErrBadResponse, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodyBytes)).Decode(out); err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w: %v", path, classify(ctxErr), err)
		}
		return fmt.Errorf("%s: %w: decode: %v", path, ErrBadResponse, err)
	}
	return nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels returns the model names the service reports.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, listModelsCallTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("build /api/tags request: %w", err)
	}
	var tags tagsResponse
	if err := c.do(req, &tags); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

// Healthy reports whether the service answers /api/tags.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func orFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
