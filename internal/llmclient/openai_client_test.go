package llmclient

import (
	"errors"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/browserpilot/api/schemas"
	"github.com/xkilldash9x/browserpilot/internal/config"
)

func newTestOpenAIClient(t *testing.T) *OpenAIClient {
	t.Helper()
	cfg := getValidLLMConfig()
	cfg.Provider = config.ProviderOpenAI
	cfg.Model = "gpt-4o"
	client, err := NewOpenAIClient(cfg, setupTestLogger(t))
	require.NoError(t, err)
	return client
}

func TestNewOpenAIClient_MissingAPIKey(t *testing.T) {
	cfg := getValidLLMConfig()
	cfg.Provider = config.ProviderOpenAI
	cfg.APIKey = ""

	client, err := NewOpenAIClient(cfg, setupTestLogger(t))
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestToChatMessages_RoleMapping(t *testing.T) {
	messages := []schemas.PromptMessage{
		{Role: schemas.RoleSystem, Content: "system text"},
		{Role: schemas.RoleUser, Content: "user text"},
		{Role: schemas.RoleAssistant, Content: "assistant text"},
	}

	out := toChatMessages(messages)

	require.Len(t, out, 3)
	assert.Equal(t, openai.ChatMessageRoleSystem, out[0].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, out[1].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, out[2].Role)
	assert.Equal(t, "assistant text", out[2].Content)
}

func TestMapAPIError_RateLimit(t *testing.T) {
	client := newTestOpenAIClient(t)

	apiErr := &openai.APIError{
		HTTPStatusCode: http.StatusTooManyRequests,
		Message:        "rate limit reached",
	}

	mapped := client.mapAPIError(apiErr)

	var rle *RateLimitedError
	require.True(t, errors.As(mapped, &rle))
	assert.Equal(t, "openai", rle.Provider)
	assert.Equal(t, http.StatusTooManyRequests, rle.StatusCode)
	assert.True(t, IsRateLimited(mapped))
}

func TestMapAPIError_OtherStatus(t *testing.T) {
	client := newTestOpenAIClient(t)

	apiErr := &openai.APIError{
		HTTPStatusCode: http.StatusBadRequest,
		Message:        "invalid request",
	}

	mapped := client.mapAPIError(apiErr)
	assert.False(t, IsRateLimited(mapped))
	assert.Contains(t, mapped.Error(), "status 400")
}

func TestMapAPIError_TransportFailure(t *testing.T) {
	client := newTestOpenAIClient(t)

	mapped := client.mapAPIError(errors.New("connection refused"))
	assert.False(t, IsRateLimited(mapped))
	assert.Contains(t, mapped.Error(), "openai request failed")
}
