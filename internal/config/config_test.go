package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "warden", cfg.Name)
	assert.Equal(t, "deterministic", cfg.Review.Strategy)
	assert.Equal(t, 100, cfg.Futures.Iterations)
	assert.Equal(t, 0.5, cfg.Autopilot.Thresholds.Drift)
	assert.NotEmpty(t, cfg.Review.Prompts.GoverningPrinciples)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
project_id: acme
futures:
  iterations: 500
review:
  strategy: deterministic
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.ProjectID)
	assert.Equal(t, 500, cfg.Futures.Iterations)
	// Untouched sections keep their defaults.
	assert.Equal(t, 168.0, cfg.Drift.WindowHours)
	assert.Equal(t, 0.3, cfg.Federated.OutlierThreshold)
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "warden.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml: ["), 0644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("WARDEN_DB", "/tmp/override.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "/tmp/override.db", cfg.Store.DatabasePath)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Review.Strategy = "ai"
	require.Error(t, cfg.Validate(), "ai strategy without a provider must fail")

	cfg.LLM.Provider = "openai"
	require.Error(t, cfg.Validate(), "ai strategy without an api key must fail")

	cfg.LLM.APIKey = "sk-test"
	require.NoError(t, cfg.Validate())

	cfg.LLM.Provider = "carrier-pigeon"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Review.Strategy = "coin-flip"
	require.Error(t, cfg.Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "warden.yaml")

	cfg := DefaultConfig()
	cfg.ProjectID = "roundtrip"
	cfg.Futures.Seed = 7
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "roundtrip", loaded.ProjectID)
	assert.Equal(t, int64(7), loaded.Futures.Seed)
}

func TestGetLLMTimeout(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "120s", cfg.LLM.Timeout)

	cfg.LLM.Timeout = "5s"
	assert.Equal(t, int64(5), int64(cfg.GetLLMTimeout().Seconds()))

	cfg.LLM.Timeout = "garbage"
	assert.Equal(t, int64(120), int64(cfg.GetLLMTimeout().Seconds()))
}
