package llmclient

import (
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/browserpilot/internal/config"
)

// setupTestLogger returns a logger wired to the test's output.
func setupTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t)
}

// getValidLLMConfig returns a model config that passes constructor checks.
func getValidLLMConfig() config.LLMModelConfig {
	return config.LLMModelConfig{
		Provider:   config.ProviderGemini,
		Model:      "gemini-2.5-pro",
		APIKey:     "test-api-key",
		APITimeout: 30 * time.Second,
		MaxTokens:  4096,
	}
}
