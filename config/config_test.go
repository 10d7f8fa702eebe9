package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.0-flash", cfg.GeminiModel)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	assert.Equal(t, "claude-3-5-sonnet-20241022", cfg.AnthropicModel)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.HistoryPath)
}

func TestLoad_ReadsProviderCredentialsFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gk")
	t.Setenv("PARLEY_OPENAI_API_KEY", "ok")

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "gk", cfg.GeminiAPIKey)
	assert.Equal(t, "ok", cfg.OpenAIAPIKey)
	assert.Empty(t, cfg.AnthropicAPIKey)
}

func TestLoad_PrefixedOverrideWins(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "plain")
	t.Setenv("PARLEY_GEMINI_API_KEY", "prefixed")

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.GeminiAPIKey)
}

func TestValidate_RequiresAtLeastOneCredential(t *testing.T) {
	var cfg Config
	err := cfg.Validate()
	var confErr *ConfigurationError
	require.ErrorAs(t, err, &confErr)

	cfg.AnthropicAPIKey = "ak"
	assert.NoError(t, cfg.Validate())
}

func TestEnabledProviders_StableOrder(t *testing.T) {
	cfg := Config{GeminiAPIKey: "g", OpenAIAPIKey: "o", AnthropicAPIKey: "a"}
	assert.Equal(t, []string{"gemini", "openai", "anthropic"}, cfg.EnabledProviders())

	cfg = Config{OpenAIAPIKey: "o"}
	assert.Equal(t, []string{"openai"}, cfg.EnabledProviders())
}
