package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoaderLoad(t *testing.T) {
	t.Run("should return defaults when the file does not exist", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "nonexistent.yaml")

		cfg, err := NewLoader(configPath, noEnvFile(t)).Load()

		require.NoError(t, err)
		assert.Equal(t, ProviderAnthropic, cfg.Provider.Active)
		assert.NotEmpty(t, cfg.DataDir)
	})

	t.Run("should load a yaml file and keep provider defaults", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		content := `
provider:
  active: openai
  providers:
    openai:
      api_key: sk-test-key
backends:
  graph:
    url: http://graph:9000
resilience:
  recovery_timeout: 45s
orchestrator:
  max_extra_hops: 2
`
		require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

		cfg, err := NewLoader(configPath, noEnvFile(t)).Load()

		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, cfg.Provider.Active)
		openai := cfg.Provider.Providers[ProviderOpenAI]
		assert.Equal(t, "sk-test-key", openai.APIKey)
		assert.Equal(t, "gpt-4o-mini", openai.Model)
		assert.Equal(t, "http://graph:9000", cfg.Backends.Graph.URL)
		assert.Equal(t, "http://localhost:8001", cfg.Backends.Identity.URL)
		assert.Equal(t, 45*time.Second, cfg.Resilience.RecoveryTimeout)
		assert.Equal(t, 2, cfg.Orchestrator.MaxExtraHops)
		assert.Contains(t, cfg.Provider.Providers, ProviderOllama)
	})

	t.Run("should load a json file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{"session": {"max_turns": 8}}`), 0644))

		cfg, err := NewLoader(configPath, noEnvFile(t)).Load()

		require.NoError(t, err)
		assert.Equal(t, 8, cfg.Session.MaxTurns)
	})

	t.Run("should apply environment overrides", func(t *testing.T) {
		t.Setenv("TOOLGATE_PROVIDER_ACTIVE", "ollama")
		t.Setenv("TOOLGATE_BACKENDS_IDENTITY_URL", "http://identity:7000")

		cfg, err := NewLoader(filepath.Join(t.TempDir(), "none.yaml"), noEnvFile(t)).Load()

		require.NoError(t, err)
		assert.Equal(t, ProviderOllama, cfg.Provider.Active)
		assert.Equal(t, "http://identity:7000", cfg.Backends.Identity.URL)
	})

	t.Run("should read provider keys from conventional variables", func(t *testing.T) {
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-from-env")

		cfg, err := NewLoader(filepath.Join(t.TempDir(), "none.yaml"), noEnvFile(t)).Load()

		require.NoError(t, err)
		assert.Equal(t, "sk-ant-from-env", cfg.Provider.Providers[ProviderAnthropic].APIKey)
	})

	t.Run("should load variables from an env file", func(t *testing.T) {
		dir := t.TempDir()
		envFile := filepath.Join(dir, ".env")
		require.NoError(t, os.WriteFile(envFile, []byte("TOOLGATE_OPENAI_API_KEY=sk-dotenv\n"), 0644))
		t.Cleanup(func() { os.Unsetenv("TOOLGATE_OPENAI_API_KEY") })

		cfg, err := NewLoader(filepath.Join(dir, "none.yaml"), envFile).Load()

		require.NoError(t, err)
		assert.Equal(t, "sk-dotenv", cfg.Provider.Providers[ProviderOpenAI].APIKey)
	})

	t.Run("should fail on malformed files", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(configPath, []byte(`{not json`), 0644))

		_, err := NewLoader(configPath, noEnvFile(t)).Load()

		assert.Error(t, err)
	})
}

func TestLoader_GetConfigPath(t *testing.T) {
	assert.Equal(t, "/etc/toolgate.yaml", NewLoader("/etc/toolgate.yaml").GetConfigPath())
	assert.Equal(t, "config.yaml", filepath.Base(NewLoader("").GetConfigPath()))
}
