// internal/agent/brain.go
package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/browserpilot/api/schemas"
	"github.com/xkilldash9x/browserpilot/internal/llmutil"
)

// Brain adapts the raw LLM transport into the typed decision oracle: it owns
// prompt assembly quirks, JSON coercion and action batch truncation. It holds
// no conversation state; that lives in the MessageManager.
type Brain struct {
	logger            *zap.Logger
	client            schemas.LLMClient
	maxActionsPerStep int
}

func NewBrain(logger *zap.Logger, client schemas.LLMClient, maxActionsPerStep int) *Brain {
	return &Brain{
		logger:            logger.Named("brain"),
		client:            client,
		maxActionsPerStep: maxActionsPerStep,
	}
}

// Decide asks the powerful model for the next decision. Failures are returned
// as the typed errors the recovery policy distinguishes.
func (b *Brain) Decide(ctx context.Context, messages []schemas.PromptMessage) (*schemas.AgentDecision, error) {
	req := schemas.GenerationRequest{
		Messages: messages,
		Tier:     schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature:     0,
			ForceJSONFormat: true,
		},
	}

	raw, err := b.client.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return nil, &EmptyResponseError{}
	}

	decision, err := llmutil.ParseJSONResponse[schemas.AgentDecision](raw)
	if err != nil {
		return nil, &DecodeError{Raw: raw, Err: err}
	}
	if len(decision.Actions) == 0 {
		return nil, &EmptyResponseError{Reason: "decision contains no actions"}
	}

	if len(decision.Actions) > b.maxActionsPerStep {
		b.logger.Warn("Oracle returned more actions than allowed, truncating batch",
			zap.Int("returned", len(decision.Actions)),
			zap.Int("max", b.maxActionsPerStep))
		decision.Actions = decision.Actions[:b.maxActionsPerStep]
	}

	b.logger.Debug("Oracle decision received",
		zap.String("next_goal", decision.CurrentState.NextGoal),
		zap.Int("actions", len(decision.Actions)))
	return decision, nil
}

// Plan asks the fast model for a high-level plan over the conversation so
// far. The plan is advisory text; a malformed response is returned as-is.
func (b *Brain) Plan(ctx context.Context, messages []schemas.PromptMessage) (string, error) {
	planMessages := make([]schemas.PromptMessage, 0, len(messages)+1)
	planMessages = append(planMessages, schemas.PromptMessage{Role: schemas.RoleSystem, Content: plannerSystemPrompt})
	for _, msg := range messages {
		if msg.Role == schemas.RoleSystem {
			continue
		}
		planMessages = append(planMessages, msg)
	}

	req := schemas.GenerationRequest{
		Messages: planMessages,
		Tier:     schemas.TierFast,
		Options:  schemas.GenerationOptions{Temperature: 0.3},
	}

	raw, err := b.client.Generate(ctx, req)
	if err != nil {
		return "", fmt.Errorf("planner call failed: %w", err)
	}
	return strings.TrimSpace(llmutil.ExtractJSON(raw)), nil
}

// validationVerdict is the self-check response shape.
type validationVerdict struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason"`
}

// Validate judges whether the final answer actually completed the task.
func (b *Brain) Validate(ctx context.Context, task, finalAnswer string) (bool, string, error) {
	req := schemas.GenerationRequest{
		Messages: []schemas.PromptMessage{
			{Role: schemas.RoleSystem, Content: validatorSystemPrompt},
			{Role: schemas.RoleUser, Content: fmt.Sprintf("Task: %s\n\nAgent's final answer: %s", task, finalAnswer)},
		},
		Tier: schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature:     0,
			ForceJSONFormat: true,
		},
	}

	raw, err := b.client.Generate(ctx, req)
	if err != nil {
		return false, "", fmt.Errorf("validator call failed: %w", err)
	}

	verdict, err := llmutil.ParseJSONResponse[validationVerdict](raw)
	if err != nil {
		// An unparsable verdict must not fail the run.
		b.logger.Warn("Validator returned unparsable output, accepting result", zap.Error(err))
		return true, "", nil
	}
	return verdict.IsValid, verdict.Reason, nil
}
