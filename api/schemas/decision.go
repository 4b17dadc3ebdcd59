package schemas

// -- Oracle Decision Schemas --

// DecisionState is the oracle's self-assessment attached to every decision:
// how the previous step went, what it wants remembered, and what it is trying
// to do next. These fields are fed back into the next prompt.
type DecisionState struct {
	EvaluationPreviousGoal string `json:"evaluation_previous_goal"`
	Memory                 string `json:"memory"`
	NextGoal               string `json:"next_goal"`
}

// AgentDecision is the structured output of one oracle call: the assessment
// plus an ordered batch of actions to execute. The adapter truncates Actions
// to the configured per-step maximum before the decision reaches the
// executor.
type AgentDecision struct {
	CurrentState DecisionState `json:"current_state"`
	Actions      []Action      `json:"action"`
}

// -- LLM Client Schemas & Interface --
// (mirrors the shape used by the llmclient package; kept here so both the
// agent core and the transport layer depend on the same contract)

// ModelTier selects a model by capability preference rather than by name.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // cheaper model, used for planning
	TierPowerful ModelTier = "powerful" // main decision model
)

// PromptRole tags one conversation message.
type PromptRole string

const (
	RoleSystem    PromptRole = "system"
	RoleUser      PromptRole = "user"
	RoleAssistant PromptRole = "assistant"
)

// PromptMessage is one entry of the decision context sent to the oracle.
type PromptMessage struct {
	Role    PromptRole `json:"role"`
	Content string     `json:"content"`
}

// GenerationOptions controls the generation process for a single call.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
	MaxTokens       int     `json:"max_tokens,omitempty"`
}

// GenerationRequest is a complete oracle call: the conversation so far, the
// desired tier and generation options.
type GenerationRequest struct {
	Messages []PromptMessage   `json:"messages"`
	Tier     ModelTier         `json:"tier"`
	Options  GenerationOptions `json:"options"`
}
