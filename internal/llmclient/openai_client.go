// internal/llmclient/openai_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browserpilot/api/schemas"
	"github.com/xkilldash9x/browserpilot/internal/config"
)

// OpenAIClient implements schemas.LLMClient using the official chat
// completions API. It also serves OpenAI-compatible endpoints (local
// inference servers) via the Endpoint override.
type OpenAIClient struct {
	client *openai.Client
	logger *zap.Logger
	config config.LLMModelConfig
}

// NewOpenAIClient initializes the client.
func NewOpenAIClient(cfg config.LLMModelConfig, logger *zap.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API Key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = cfg.Endpoint
	}
	if cfg.APITimeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.APITimeout}
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		logger: logger.Named("llm_client.openai"),
		config: cfg,
	}, nil
}

// Generate sends the conversation to the chat completions endpoint. Rate
// limit rejections are mapped to *RateLimitedError for the recovery policy.
func (c *OpenAIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    toChatMessages(req.Messages),
		Temperature: float32(req.Options.Temperature),
	}
	if req.Options.MaxTokens > 0 {
		chatReq.MaxTokens = req.Options.MaxTokens
	} else if c.config.MaxTokens > 0 {
		chatReq.MaxTokens = c.config.MaxTokens
	}
	if req.Options.ForceJSONFormat {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", c.mapAPIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai API returned no choices")
	}

	c.logger.Info("LLM generation complete (OpenAI)",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	return resp.Choices[0].Message.Content, nil
}

// Close releases nothing; the SDK client is stateless between calls.
func (c *OpenAIClient) Close() error {
	return nil
}

func (c *OpenAIClient) mapAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		c.logger.Error("OpenAI API returned error status",
			zap.Int("status", apiErr.HTTPStatusCode), zap.String("message", apiErr.Message))
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return &RateLimitedError{
				Provider:   "openai",
				StatusCode: apiErr.HTTPStatusCode,
				Body:       apiErr.Message,
			}
		}
		return fmt.Errorf("openai API error: status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
	}
	return fmt.Errorf("openai request failed: %w", err)
}

func toChatMessages(messages []schemas.PromptMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		role := openai.ChatMessageRoleUser
		switch msg.Role {
		case schemas.RoleSystem:
			role = openai.ChatMessageRoleSystem
		case schemas.RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{
			Role:    role,
			Content: msg.Content,
		})
	}
	return out
}
