package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offload/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{config.EnvHome, config.EnvOllamaURL, config.EnvDBPath, config.EnvCommandsDir, config.EnvLogLevel} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv(config.EnvHome, home)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, home, cfg.Home)
	assert.Equal(t, filepath.Join(home, "offload.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(home, "status"), cfg.StatusDir)
	assert.Equal(t, filepath.Join(home, "results"), cfg.ResultsDir)
	assert.Equal(t, filepath.Join(home, "commands"), cfg.CommandsDir)
	assert.Equal(t, config.DefaultOllamaURL, cfg.Ollama.URL)
	assert.Equal(t, 0, cfg.Ollama.Retries)
	assert.Equal(t, 100, cfg.Queue.MaxDepth)
	assert.Equal(t, 10*time.Minute, cfg.Queue.PackageTimeout)
	assert.Equal(t, 30*time.Second, cfg.Gate.ToolTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileAndEnv(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv(config.EnvHome, home)
	yml := `
results_dir: out
ollama:
  url: http://gpu-box:11434
  timeout: 5m
  retries: 2
queue:
  max_depth: -1
validator:
  model: qwen3:8b
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(home, config.FileName), []byte(yml), 0o600))
	t.Setenv(config.EnvLogLevel, "warn")
	t.Setenv(config.EnvDBPath, "/var/lib/offload.db")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "out"), cfg.ResultsDir)
	assert.Equal(t, "http://gpu-box:11434", cfg.Ollama.URL)
	assert.Equal(t, 5*time.Minute, cfg.Ollama.Timeout)
	assert.Equal(t, 2, cfg.Ollama.Retries)
	assert.Equal(t, -1, cfg.Queue.MaxDepth)
	assert.Equal(t, "qwen3:8b", cfg.Validator.Model)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "/var/lib/offload.db", cfg.DBPath)
}

func TestLoad_BadYAML(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv(config.EnvHome, home)
	require.NoError(t, os.WriteFile(filepath.Join(home, config.FileName), []byte("ollama: [oops"), 0o600))

	_, err := config.Load()
	require.Error(t, err)
}

func TestStarter_RoundTrip(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	path := filepath.Join(home, config.FileName)

	require.NoError(t, config.Starter().Write(path, false))
	require.Error(t, config.Starter().Write(path, false))
	require.NoError(t, config.Starter().Write(path, true))

	cfg, err := config.LoadFile(home, path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultOllamaTimeout, cfg.Ollama.Timeout)
	assert.Equal(t, config.DefaultPackageTimeout, cfg.Queue.PackageTimeout)
}

func TestEnsureDirs(t *testing.T) {
	clearEnv(t)
	home := filepath.Join(t.TempDir(), "nested")
	cfg, err := config.LoadFile(home, filepath.Join(home, config.FileName))
	require.NoError(t, err)
	require.NoError(t, cfg.EnsureDirs())
	for _, d := range []string{cfg.StatusDir, cfg.ResultsDir, cfg.CommandsDir} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
