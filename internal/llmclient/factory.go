// internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/browserpilot/api/schemas"
	"github.com/xkilldash9x/browserpilot/internal/config"
)

// NewClient is a factory function that creates a provider client from a
// single model configuration block.
func NewClient(cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg, logger)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderOpenAI)
	}
}

// NewRouterFromConfig builds the tiered router from the router configuration:
// one client for the default fast model and one for the default powerful
// model, each with its own throttle.
func NewRouterFromConfig(cfg config.LLMRouterConfig, logger *zap.Logger) (*LLMRouter, error) {
	fastCfg := cfg.ModelConfig(cfg.DefaultFastModel)
	powerfulCfg := cfg.ModelConfig(cfg.DefaultPowerfulModel)

	fastClient, err := NewClient(fastCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create fast tier client (%s): %w", cfg.DefaultFastModel, err)
	}

	powerfulClient, err := NewClient(powerfulCfg, logger)
	if err != nil {
		fastClient.Close()
		return nil, fmt.Errorf("failed to create powerful tier client (%s): %w", cfg.DefaultPowerfulModel, err)
	}

	return NewLLMRouter(logger, fastClient, powerfulClient, fastCfg.RequestsPerMinute, powerfulCfg.RequestsPerMinute)
}
