// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "browserpilot", cfg.Logger().ServiceName)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 90*time.Second, cfg.Browser().NavigationTimeout)
	assert.Equal(t, time.Second, cfg.Browser().PostLoadWait)
	assert.Equal(t, 100, cfg.Agent().MaxSteps)
	assert.Equal(t, 3, cfg.Agent().MaxFailures)
	assert.Equal(t, 10*time.Second, cfg.Agent().RetryDelay)
	assert.Equal(t, 128000, cfg.Agent().MaxInputTokens)
	assert.Equal(t, "gemini-2.5-pro", cfg.Agent().LLM.DefaultPowerfulModel)
	assert.Equal(t, "gemini-2.5-flash", cfg.Agent().LLM.DefaultFastModel)
}

func TestInterfaceSetters(t *testing.T) {
	cfg := NewDefaultConfig()

	cfg.SetBrowserHeadless(false)
	cfg.SetBrowserUseVision(true)
	cfg.SetAgentMaxSteps(42)
	cfg.SetAgentHistoryFile("/tmp/run.json")

	assert.False(t, cfg.Browser().Headless)
	assert.True(t, cfg.Browser().UseVision)
	assert.Equal(t, 42, cfg.Agent().MaxSteps)
	assert.Equal(t, "/tmp/run.json", cfg.Agent().HistoryFile)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate(), "a default config should be valid")

	t.Run("max failures", func(t *testing.T) {
		invalid := *cfg
		invalid.agent.MaxFailures = 0
		err := invalid.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "agent.max_failures")
	})

	t.Run("max actions per step", func(t *testing.T) {
		invalid := *cfg
		invalid.agent.MaxActionsPerStep = -1
		err := invalid.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "agent.max_actions_per_step")
	})

	t.Run("max input tokens", func(t *testing.T) {
		invalid := *cfg
		invalid.agent.MaxInputTokens = 0
		err := invalid.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "agent.max_input_tokens")
	})

	t.Run("unknown model provider", func(t *testing.T) {
		invalid := *cfg
		invalid.agent.LLM.Models = map[string]LLMModelConfig{
			"mystery-model": {Provider: "anthropic"},
		}
		err := invalid.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown provider")
	})
}

// -- Viper Loading Tests --

func TestNewConfigFromViper(t *testing.T) {
	yamlConfig := []byte(`
logger:
  level: debug
browser:
  headless: false
  navigation_timeout: 45s
agent:
  max_steps: 25
  llm:
    default_powerful_model: gpt-4o
    models:
      gpt-4o:
        api_key: sk-test
        temperature: 0.2
`)

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger().Level)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, 45*time.Second, cfg.Browser().NavigationTimeout)
	assert.Equal(t, 25, cfg.Agent().MaxSteps)
	// Defaults survive partial overrides.
	assert.Equal(t, 3, cfg.Agent().MaxFailures)

	mc := cfg.Agent().LLM.ModelConfig("gpt-4o")
	assert.Equal(t, ProviderOpenAI, mc.Provider)
	assert.Equal(t, "gpt-4o", mc.Model)
	assert.Equal(t, "sk-test", mc.APIKey)
	assert.Equal(t, 0.2, mc.Temperature)
}

func TestNewConfigFromViper_EnvKeyPropagation(t *testing.T) {
	t.Setenv("BROWSERPILOT_GEMINI_API_KEY", "gm-secret")
	t.Setenv("BROWSERPILOT_OPENAI_API_KEY", "sk-secret")

	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	// The default model names contain dots, which viper treats as key
	// separators, so they can never be looked up as explicit model blocks.
	// The env-bound provider key must still reach them.
	mc := cfg.Agent().LLM.ModelConfig(cfg.Agent().LLM.DefaultPowerfulModel)
	assert.Equal(t, ProviderGemini, mc.Provider)
	assert.Equal(t, "gm-secret", mc.APIKey)

	mc = cfg.Agent().LLM.ModelConfig("gpt-4o")
	assert.Equal(t, ProviderOpenAI, mc.Provider)
	assert.Equal(t, "sk-secret", mc.APIKey)
}

func TestNewConfigFromViper_ExplicitKeyBeatsEnvKey(t *testing.T) {
	t.Setenv("BROWSERPILOT_OPENAI_API_KEY", "sk-env")

	yamlConfig := []byte(`
agent:
  llm:
    models:
      gpt-4o:
        api_key: sk-explicit
`)

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	mc := cfg.Agent().LLM.ModelConfig("gpt-4o")
	assert.Equal(t, "sk-explicit", mc.APIKey)
}

func TestNewConfigFromViper_RejectsInvalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("agent.max_failures", 0)

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent.max_failures")
}

// -- Model Resolution Tests --

func TestModelConfigResolution(t *testing.T) {
	router := LLMRouterConfig{
		Models: map[string]LLMModelConfig{
			"gpt-4o": {APIKey: "sk-explicit"},
		},
	}

	t.Run("explicit block gets name and inferred provider", func(t *testing.T) {
		mc := router.ModelConfig("gpt-4o")
		assert.Equal(t, "gpt-4o", mc.Model)
		assert.Equal(t, ProviderOpenAI, mc.Provider)
		assert.Equal(t, "sk-explicit", mc.APIKey)
	})

	t.Run("unlisted gemini model", func(t *testing.T) {
		mc := router.ModelConfig("gemini-2.5-flash")
		assert.Equal(t, ProviderGemini, mc.Provider)
		assert.Equal(t, "gemini-2.5-flash", mc.Model)
	})

	t.Run("unlisted non-gemini model defaults to openai", func(t *testing.T) {
		mc := router.ModelConfig("o4-mini")
		assert.Equal(t, ProviderOpenAI, mc.Provider)
	})

	t.Run("provider key fills unlisted models", func(t *testing.T) {
		keyed := router
		keyed.GeminiAPIKey = "gm-router"
		keyed.OpenAIAPIKey = "sk-router"

		assert.Equal(t, "gm-router", keyed.ModelConfig("gemini-2.5-pro").APIKey)
		assert.Equal(t, "sk-router", keyed.ModelConfig("o4-mini").APIKey)
		// A model block with its own key keeps it.
		assert.Equal(t, "sk-explicit", keyed.ModelConfig("gpt-4o").APIKey)
	})
}
