package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/browserpilot/api/schemas"
)

// tierClient pairs a provider client with an optional outbound rate limiter.
type tierClient struct {
	client  schemas.LLMClient
	limiter *rate.Limiter
}

// LLMRouter implements schemas.LLMClient and routes requests to the client
// configured for the requested tier, throttling each tier independently.
type LLMRouter struct {
	logger  *zap.Logger
	clients map[schemas.ModelTier]tierClient
}

// NewLLMRouter creates a new router with the specified clients for each tier.
// A requests-per-minute value of zero disables throttling for that tier.
func NewLLMRouter(logger *zap.Logger, fastClient, powerfulClient schemas.LLMClient, fastRPM, powerfulRPM float64) (*LLMRouter, error) {
	if fastClient == nil || powerfulClient == nil {
		return nil, fmt.Errorf("both fast and powerful tier clients must be provided")
	}

	return &LLMRouter{
		logger: logger.Named("llm_router"),
		clients: map[schemas.ModelTier]tierClient{
			schemas.TierFast:     {client: fastClient, limiter: newLimiter(fastRPM)},
			schemas.TierPowerful: {client: powerfulClient, limiter: newLimiter(powerfulRPM)},
		},
	}, nil
}

func newLimiter(rpm float64) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rpm/60.0), 1)
}

// Generate selects the appropriate client based on the request's tier, waits
// for the tier's rate limiter if one is configured, and delegates.
func (r *LLMRouter) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	tier := req.Tier
	if tier == "" {
		tier = schemas.TierPowerful // Default to the powerful tier if unspecified.
	}

	tc, ok := r.clients[tier]
	if !ok {
		return "", fmt.Errorf("no LLM client configured for tier: %s", tier)
	}

	if tc.limiter != nil {
		if err := tc.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter wait aborted: %w", err)
		}
	}

	r.logger.Debug("Routing LLM request", zap.String("tier", string(tier)))
	return tc.client.Generate(ctx, req)
}

// Close shuts down every distinct underlying client once.
func (r *LLMRouter) Close() error {
	seen := make(map[schemas.LLMClient]bool)
	var firstErr error
	for _, tc := range r.clients {
		if seen[tc.client] {
			continue
		}
		seen[tc.client] = true
		if err := tc.client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
