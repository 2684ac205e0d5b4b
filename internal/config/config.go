// Package config loads offload's settings from $OFFLOAD_HOME/config.yaml
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"offload/pkg/protocol"
)

// FileName is the config file inside the offload home.
const FileName = "config.yaml"

// Environment overrides. Each wins over the file.
const (
	EnvHome        = "OFFLOAD_HOME"
	EnvOllamaURL   = "OFFLOAD_OLLAMA_URL"
	EnvDBPath      = "OFFLOAD_DB_PATH"
	EnvCommandsDir = "OFFLOAD_COMMANDS_DIR"
	EnvLogLevel    = "OFFLOAD_LOG_LEVEL"
)

// Config is the full set of knobs. Zero values take defaults.
type Config struct {
	Home        string `yaml:"-"`
	DBPath      string `yaml:"db_path,omitempty"`
	StatusDir   string `yaml:"status_dir,omitempty"`
	ResultsDir  string `yaml:"results_dir,omitempty"`
	CommandsDir string `yaml:"commands_dir,omitempty"`

	Ollama    OllamaConfig    `yaml:"ollama"`
	Queue     QueueConfig     `yaml:"queue"`
	Gate      GateConfig      `yaml:"gate"`
	Validator ValidatorConfig `yaml:"validator"`
	Log       LogConfig       `yaml:"log"`
}

// OllamaConfig configures the generation client.
type OllamaConfig struct {
	URL               string        `yaml:"url,omitempty"`
	Timeout           time.Duration `yaml:"timeout,omitempty"`
	Retries           int           `yaml:"retries"`
	RequestsPerMinute int           `yaml:"requests_per_minute,omitempty"`
	AllowToolWrites   bool          `yaml:"allow_tool_writes"`
}

// QueueConfig configures the dispatcher.
type QueueConfig struct {
	MaxDepth       int           `yaml:"max_depth,omitempty"`
	PackageTimeout time.Duration `yaml:"package_timeout,omitempty"`
}

// GateConfig configures the quality gate.
type GateConfig struct {
	ToolTimeout time.Duration `yaml:"tool_timeout,omitempty"`
}

// ValidatorConfig configures the validator.
type ValidatorConfig struct {
	Model string `yaml:"model,omitempty"` // empty: the generating model
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // auto, console, json
}

// Defaults.
const (
	DefaultOllamaURL      = "http://localhost:11444"
	DefaultOllamaTimeout  = 120 * time.Second
	DefaultMaxDepth       = 100
	DefaultPackageTimeout = 10 * time.Minute
	DefaultToolTimeout    = 30 * time.Second
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "auto"
)

// Load reads the config for the resolved home directory. A missing file
// yields the defaults.
func Load() (*Config, error) {
	home, err := ResolveHome()
	if err != nil {
		return nil, err
	}
	return LoadFile(home, filepath.Join(home, FileName))
}

// LoadFile reads path as the config for home and applies env overrides and
// defaults.
func LoadFile(home, path string) (*Config, error) {
	cfg := &Config{}
	//nolint:gosec // path is the user's own config file
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	cfg.Home = home
	cfg.applyEnv()
	cfg.withDefaults()
	return cfg, nil
}

// ResolveHome returns OFFLOAD_HOME or ~/.offload.
func ResolveHome() (string, error) {
	if v := os.Getenv(EnvHome); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, protocol.OffloadDir), nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvOllamaURL); v != "" {
		c.Ollama.URL = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvCommandsDir); v != "" {
		c.CommandsDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) withDefaults() {
	c.DBPath = orPath(c.DBPath, c.Home, "offload.db")
	c.StatusDir = orPath(c.StatusDir, c.Home, protocol.StatusDir)
	c.ResultsDir = orPath(c.ResultsDir, c.Home, protocol.ResultsDir)
	c.CommandsDir = orPath(c.CommandsDir, c.Home, protocol.CommandsDir)
	if c.Ollama.URL == "" {
		c.Ollama.URL = DefaultOllamaURL
	}
	if c.Ollama.Timeout <= 0 {
		c.Ollama.Timeout = DefaultOllamaTimeout
	}
	if c.Ollama.Retries < 0 {
		c.Ollama.Retries = 0
	}
	if c.Queue.MaxDepth == 0 {
		c.Queue.MaxDepth = DefaultMaxDepth
	}
	if c.Queue.PackageTimeout <= 0 {
		c.Queue.PackageTimeout = DefaultPackageTimeout
	}
	if c.Gate.ToolTimeout <= 0 {
		c.Gate.ToolTimeout = DefaultToolTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

// orPath returns p, or base/name when p is empty. Relative paths are
// resolved against base.
func orPath(p, base, name string) string {
	if p == "" {
		return filepath.Join(base, name)
	}
	if !filepath.IsAbs(p) {
		return filepath.Join(base, p)
	}
	return p
}

// EnsureDirs creates the home, status, results, and commands directories.
func (c *Config) EnsureDirs() error {
	for _, d := range []string{c.Home, c.StatusDir, c.ResultsDir, c.CommandsDir, filepath.Dir(c.DBPath)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// Starter is the config written by `offload init`.
func Starter() *Config {
	return &Config{
		Ollama: OllamaConfig{
			URL:     DefaultOllamaURL,
			Timeout: DefaultOllamaTimeout,
		},
		Queue: QueueConfig{
			MaxDepth:       DefaultMaxDepth,
			PackageTimeout: DefaultPackageTimeout,
		},
		Gate: GateConfig{ToolTimeout: DefaultToolTimeout},
		Log:  LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// Write renders c as YAML to path, refusing to overwrite unless force.
func (c *Config) Write(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	//nolint:gosec // config file is not secret
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
