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
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)

	assert.Equal(t, "persona-gateway", cfg.Server.Name)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "ollama", cfg.Engine.Kind)
	assert.Equal(t, 120*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, "<|im_end|>", cfg.Engine.StopMarker)
	assert.Equal(t, 20, cfg.Engine.HistoryWindow)
	assert.Equal(t, 10, cfg.Engine.RechunkSize)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 50, cfg.Store.MaxExchanges)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Archive.Enabled)
	assert.Empty(t, cfg.RocketMQ.NameServers)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfig(t, `
engine:
  kind: completion
  base_url: http://gpu-box:8080
  history_window: 10
  timeout: 60s
redis:
  address: cache
  port: 6380
store:
  backend: redis
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "completion", cfg.Engine.Kind)
	assert.Equal(t, "http://gpu-box:8080", cfg.Engine.BaseURL)
	assert.Equal(t, 10, cfg.Engine.HistoryWindow)
	assert.Equal(t, 60*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr())
	assert.Equal(t, "redis", cfg.Store.Backend)
}

func TestCompletionEngineUsesShorterHistory(t *testing.T) {
	path := writeConfig(t, "engine:\n  kind: completion\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Engine.HistoryWindow)

	t.Setenv("PERSONA_ENGINE_HISTORY_WINDOW", "6")
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Engine.HistoryWindow)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("PERSONA_ENGINE_KIND", "openai")
	t.Setenv("PERSONA_ENGINE_API_KEY", "sk-test")
	t.Setenv("PERSONA_AUTH_JWT_SECRET", "s3cret")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Engine.Kind)
	assert.Equal(t, "sk-test", cfg.Engine.APIKey)
	assert.Equal(t, "s3cret", cfg.Auth.JwtSecret)
}

func TestValidate(t *testing.T) {
	base := func() *AppConfig {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"unknown engine", func(c *AppConfig) { c.Engine.Kind = "torch" }},
		{"unknown store", func(c *AppConfig) { c.Store.Backend = "etcd" }},
		{"redis store without redis", func(c *AppConfig) { c.Store.Backend = "redis" }},
		{"bad archive driver", func(c *AppConfig) { c.Archive.Enabled = true; c.Archive.Driver = "mysql" }},
		{"zero history window", func(c *AppConfig) { c.Engine.HistoryWindow = 0 }},
		{"zero exchange bound", func(c *AppConfig) { c.Store.MaxExchanges = 0 }},
		{"zero timeout", func(c *AppConfig) { c.Engine.Timeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errBadSetting)
		})
	}

	assert.NoError(t, base().Validate())
}

func TestLoadConfigRejectsInvalidYAML(t *testing.T) {
	path := writeConfig(t, "engine: [unterminated")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
