package schemas

import "context"

// LLMClient abstracts a large-language-model provider. Implementations must
// surface rate-limit conditions through an error that unwraps to the
// llmclient rate-limit category so the agent's classifier can recognize them
// without knowing the provider.
type LLMClient interface {
	// Generate produces a text completion for the request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close releases client resources. Idempotent.
	Close() error
}
