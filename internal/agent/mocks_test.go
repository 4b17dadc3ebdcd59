// File: internal/agent/mocks_test.go
package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/browserpilot/api/schemas"
	"github.com/xkilldash9x/browserpilot/internal/browser/dom"
	"github.com/xkilldash9x/browserpilot/internal/config"
)

// -- Environment Mock --

// MockEnvironment is a testify mock of the browser environment.
type MockEnvironment struct {
	mock.Mock
}

func (m *MockEnvironment) Observe(ctx context.Context) (*schemas.BrowserState, error) {
	args := m.Called(ctx)
	state, _ := args.Get(0).(*schemas.BrowserState)
	return state, args.Error(1)
}

func (m *MockEnvironment) Apply(ctx context.Context, action schemas.Action) (*schemas.ActionResult, error) {
	args := m.Called(ctx, action)
	result, _ := args.Get(0).(*schemas.ActionResult)
	return result, args.Error(1)
}

func (m *MockEnvironment) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// -- Scripted LLM --

// scriptedLLM returns canned responses in order. It satisfies
// schemas.LLMClient without modeling transport behavior.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     []schemas.GenerationRequest
}

type scriptedResponse struct {
	content string
	err     error
}

func (s *scriptedLLM) push(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, scriptedResponse{content: content})
}

func (s *scriptedLLM) pushErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, scriptedResponse{err: err})
}

func (s *scriptedLLM) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if len(s.responses) == 0 {
		return "", fmt.Errorf("scriptedLLM exhausted after %d calls", len(s.calls))
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next.content, next.err
}

func (s *scriptedLLM) Close() error { return nil }

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// -- State Fixtures --

// stateFromHTML builds a full BrowserState from raw markup.
func stateFromHTML(t *testing.T, url, title, rawHTML string) *schemas.BrowserState {
	t.Helper()
	tree, err := dom.BuildTree(rawHTML)
	require.NoError(t, err)
	return &schemas.BrowserState{
		URL:         url,
		Title:       title,
		ElementTree: tree,
		SelectorMap: tree.SelectorMap(),
	}
}

const searchPageHTML = `<html><body>
	<a id="home" href="/">Home</a>
	<input id="query" name="q" type="text" placeholder="Search">
	<button id="go" type="submit">Search</button>
</body></html>`

// searchPageWithBannerHTML is the same page with an extra interactive element,
// as after a popup appeared.
const searchPageWithBannerHTML = `<html><body>
	<a id="home" href="/">Home</a>
	<input id="query" name="q" type="text" placeholder="Search">
	<button id="go" type="submit">Search</button>
	<button id="consent" aria-label="Accept cookies">Accept</button>
</body></html>`

// decisionJSON builds a canned oracle response.
func decisionJSON(nextGoal string, actions string) string {
	return fmt.Sprintf(`{
		"current_state": {
			"evaluation_previous_goal": "Unknown",
			"memory": "",
			"next_goal": %q
		},
		"action": [%s]
	}`, nextGoal, actions)
}

func intPtr(i int) *int { return &i }

// testAgentConfig keeps loop tests fast: no waits, tiny retry delay.
func testAgentConfig() config.AgentConfig {
	return config.AgentConfig{
		MaxSteps:          10,
		MaxFailures:       3,
		RetryDelay:        10 * time.Millisecond,
		MaxActionsPerStep: 10,
		MaxInputTokens:    128000,
		PausePollInterval: time.Millisecond,
	}
}

// newTestAgent wires an agent from mocks with the fast test config.
func newTestAgent(t *testing.T, env Environment, llm schemas.LLMClient, opts ...Option) *Agent {
	t.Helper()
	return New("find the answer", env, llm, testAgentConfig(), zaptest.NewLogger(t), opts...)
}
