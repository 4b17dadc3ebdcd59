// internal/agent/message_manager.go
package agent

import (
	"fmt"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browserpilot/api/schemas"
)

const (
	// estimatedCharsPerToken is the crude text-to-token ratio used for budget
	// accounting. Exact tokenization is provider-specific and not worth a
	// dependency here.
	estimatedCharsPerToken = 4
	// imageTokens is the flat cost charged for an attached screenshot.
	imageTokens = 800
	// tokenLimitDecrement is how much the input budget shrinks after a
	// context-window rejection.
	tokenLimitDecrement = 500
)

// managedMessage pairs a prompt message with its token estimate and a flag
// marking the transient per-step state message.
type managedMessage struct {
	msg     schemas.PromptMessage
	tokens  int
	isState bool
	// hasImage charges the flat screenshot cost on top of the text estimate.
	hasImage bool
}

// MessageManager maintains the oracle conversation: the standing system
// instructions, the task, durable memory of past decisions and a transient
// message carrying the current page state. It tracks an estimated token total
// against a budget that can shrink when the provider rejects for length.
type MessageManager struct {
	logger         *zap.Logger
	task           string
	maxInputTokens int
	messages       []managedMessage
}

// NewMessageManager seeds the conversation with the system prompt and task.
func NewMessageManager(logger *zap.Logger, task string, maxInputTokens int) *MessageManager {
	m := &MessageManager{
		logger:         logger.Named("message_manager"),
		task:           task,
		maxInputTokens: maxInputTokens,
	}
	m.append(schemas.PromptMessage{Role: schemas.RoleSystem, Content: systemPrompt}, false, false)
	m.append(schemas.PromptMessage{Role: schemas.RoleUser, Content: "Your task: " + task}, false, false)
	return m
}

func (m *MessageManager) append(msg schemas.PromptMessage, isState, hasImage bool) {
	tokens := len(msg.Content) / estimatedCharsPerToken
	if hasImage {
		tokens += imageTokens
	}
	m.messages = append(m.messages, managedMessage{msg: msg, tokens: tokens, isState: isState, hasImage: hasImage})
}

// AddStateMessage attaches the current observation as the transient state
// message. It must be removed again once the decision is made so the full
// page dump does not accumulate in history. Results flagged IncludeInMemory
// become durable messages of their own; the rest ride along in the state text
// and vanish with it.
func (m *MessageManager) AddStateMessage(state *schemas.BrowserState, lastResult []schemas.ActionResult, info stepInfo, useVision bool) {
	transient := make([]schemas.ActionResult, 0, len(lastResult))
	for _, r := range lastResult {
		if r.IncludeInMemory && (r.ExtractedContent != "" || r.Error != "") {
			text := r.ExtractedContent
			if r.Error != "" {
				text = tail(r.Error, 400)
			}
			m.append(schemas.PromptMessage{Role: schemas.RoleUser, Content: text}, false, false)
			continue
		}
		transient = append(transient, r)
	}

	content := renderState(state, transient, info)
	hasImage := useVision && state.Screenshot != ""
	m.append(schemas.PromptMessage{Role: schemas.RoleUser, Content: content}, true, hasImage)
}

// RemoveLastStateMessage drops the transient state message if present.
func (m *MessageManager) RemoveLastStateMessage() {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].isState {
			m.messages = append(m.messages[:i], m.messages[i+1:]...)
			return
		}
	}
}

// AddModelOutput records the oracle's decision as durable assistant memory.
func (m *MessageManager) AddModelOutput(decision *schemas.AgentDecision) {
	payload, err := json.Marshal(decision)
	if err != nil {
		m.logger.Warn("Failed to serialize decision for conversation memory", zap.Error(err))
		return
	}
	m.append(schemas.PromptMessage{Role: schemas.RoleAssistant, Content: string(payload)}, false, false)
}

// AddPlan inserts a plan message before the current state message so the
// oracle reads the plan in context but ahead of the page dump.
func (m *MessageManager) AddPlan(plan string) {
	if plan == "" {
		return
	}
	msg := managedMessage{
		msg:    schemas.PromptMessage{Role: schemas.RoleAssistant, Content: "Current plan:\n" + plan},
		tokens: len(plan) / estimatedCharsPerToken,
	}

	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].isState {
			m.messages = append(m.messages[:i], append([]managedMessage{msg}, m.messages[i:]...)...)
			return
		}
	}
	m.messages = append(m.messages, msg)
}

// AddHint appends a corrective instruction after a malformed decision.
func (m *MessageManager) AddHint(hint string) {
	m.append(schemas.PromptMessage{Role: schemas.RoleUser, Content: hint}, false, false)
}

// Messages returns the conversation in send order.
func (m *MessageManager) Messages() []schemas.PromptMessage {
	out := make([]schemas.PromptMessage, len(m.messages))
	for i, mm := range m.messages {
		out[i] = mm.msg
	}
	return out
}

// TotalTokens returns the current estimate for the whole conversation.
func (m *MessageManager) TotalTokens() int {
	total := 0
	for _, mm := range m.messages {
		total += mm.tokens
	}
	return total
}

// MaxInputTokens returns the current budget.
func (m *MessageManager) MaxInputTokens() int { return m.maxInputTokens }

// ReduceTokenLimit shrinks the budget after a context-window rejection.
func (m *MessageManager) ReduceTokenLimit() {
	m.maxInputTokens -= tokenLimitDecrement
	if m.maxInputTokens < tokenLimitDecrement {
		m.maxInputTokens = tokenLimitDecrement
	}
	m.logger.Info("Reduced input token budget", zap.Int("max_input_tokens", m.maxInputTokens))
}

// CutMessages trims the newest state message proportionally so the estimated
// total fits the budget again. Screenshots are dropped before text.
func (m *MessageManager) CutMessages() error {
	overflow := m.TotalTokens() - m.maxInputTokens
	if overflow <= 0 {
		return nil
	}

	idx := -1
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].isState {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("conversation exceeds token budget by %d but holds no state message to trim", overflow)
	}

	mm := &m.messages[idx]
	if mm.hasImage {
		mm.hasImage = false
		mm.tokens -= imageTokens
		m.logger.Debug("Dropped screenshot from state message to fit token budget")
		overflow = m.TotalTokens() - m.maxInputTokens
		if overflow <= 0 {
			return nil
		}
	}

	if mm.tokens <= 0 {
		return fmt.Errorf("conversation exceeds token budget by %d and the state message cannot shrink further", overflow)
	}

	keepRatio := 1.0 - float64(overflow)/float64(mm.tokens)
	if keepRatio <= 0 {
		return fmt.Errorf("state message too large for remaining token budget %d", m.maxInputTokens)
	}

	content := mm.msg.Content
	keep := int(float64(len(content)) * keepRatio)
	if keep < len(content) {
		mm.msg.Content = content[:keep] + "\n...[state truncated to fit token budget]"
	}
	mm.tokens = len(mm.msg.Content) / estimatedCharsPerToken

	m.logger.Info("Trimmed state message to fit token budget",
		zap.Int("kept_chars", keep),
		zap.Int("total_tokens", m.TotalTokens()),
		zap.Int("max_input_tokens", m.maxInputTokens))
	return nil
}
