package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// ConfigurationError indicates an unusable configuration, fatal at start.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// Config holds every runtime setting.
type Config struct {
	GeminiAPIKey    string `mapstructure:"gemini_api_key"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`

	GeminiModel    string `mapstructure:"gemini_model"`
	OpenAIModel    string `mapstructure:"openai_model"`
	AnthropicModel string `mapstructure:"anthropic_model"`

	// HistoryPath is the SQLite database file; empty selects the in-memory
	// store.
	HistoryPath string `mapstructure:"history_path"`
	// PersonaCatalog is an optional YAML catalog file; empty selects the
	// built-in catalog.
	PersonaCatalog string `mapstructure:"persona_catalog"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// SetDefaults registers default values on a viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("gemini_model", "gemini-2.0-flash")
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("anthropic_model", "claude-3-5-sonnet-20241022")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	// Registered with empty defaults so env overrides surface on Unmarshal.
	v.SetDefault("history_path", "")
	v.SetDefault("persona_catalog", "")
}

// Load reads configuration from the environment (and anything already bound
// on v, such as flags). Passing nil uses a fresh viper instance. Credentials
// are read from the provider-conventional variables (GEMINI_API_KEY,
// OPENAI_API_KEY, ANTHROPIC_API_KEY) with PARLEY_-prefixed overrides.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	v.SetEnvPrefix("PARLEY")
	v.AutomaticEnv()

	bindings := map[string][]string{
		"gemini_api_key":    {"PARLEY_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"openai_api_key":    {"PARLEY_OPENAI_API_KEY", "OPENAI_API_KEY"},
		"anthropic_api_key": {"PARLEY_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that at least one provider credential is present.
func (c *Config) Validate() error {
	if len(c.EnabledProviders()) == 0 {
		return &ConfigurationError{
			Reason: "no provider API key set (GEMINI_API_KEY, OPENAI_API_KEY or ANTHROPIC_API_KEY)",
		}
	}
	return nil
}

// EnabledProviders lists the provider IDs with a credential, in a stable
// order.
func (c *Config) EnabledProviders() []string {
	var ids []string
	if c.GeminiAPIKey != "" {
		ids = append(ids, "gemini")
	}
	if c.OpenAIAPIKey != "" {
		ids = append(ids, "openai")
	}
	if c.AnthropicAPIKey != "" {
		ids = append(ids, "anthropic")
	}
	return ids
}
