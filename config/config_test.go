package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inspector.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log:\n  level: info\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ProviderBackend, cfg.Backend.Provider)
	assert.Equal(t, 20*time.Millisecond, cfg.Session.TickInterval)
	assert.Equal(t, 120*time.Second, cfg.Session.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.Reachability.Interval)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Anthropic.Model)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Database.URL)

	assert.ErrorContains(t, cfg.Validate(), "backend.base_url is required")
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
backend:
  provider: backend
  base_url: http://inspector.local:8000
session:
  tick_interval: 5ms
log:
  format: json
`)
	t.Setenv("INSPECTOR_SERVER_PORT", "7070")
	t.Setenv("INSPECTOR_DATABASE_URL", "postgres://localhost/inspector")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/inspector", cfg.Database.URL)
	assert.Equal(t, 5*time.Millisecond, cfg.Session.TickInterval)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "http://inspector.local:8000", cfg.Reachability.ProbeURL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateProviders(t *testing.T) {
	path := writeConfig(t, "backend:\n  provider: anthropic\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "anthropic.api_key is required")
	assert.Equal(t, "https://api.anthropic.com", cfg.Reachability.ProbeURL)

	cfg.Anthropic.APIKey = "k"
	assert.NoError(t, cfg.Validate())

	cfg.Backend.Provider = "gemini"
	assert.ErrorContains(t, cfg.Validate(), `unknown backend.provider "gemini"`)

	cfg.Backend.Provider = ProviderVLLM
	cfg.Reachability.Interval = time.Millisecond
	err = cfg.Validate()
	assert.ErrorContains(t, err, "vllm.model is required")
	assert.ErrorContains(t, err, "reachability.interval")
}
