// File: internal/agent/replay_test.go
package agent

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/browserpilot/api/schemas"
	"github.com/xkilldash9x/browserpilot/internal/browser/dom"
)

// recordedPageHTML is the page as it looked during recording: the submit
// button is element 2.
const recordedPageHTML = `<html><body>
	<a id="home" href="/">Home</a>
	<input id="query" name="q" type="text" placeholder="Search">
	<button id="go" type="submit">Search</button>
</body></html>`

// shiftedPageHTML is the same page on replay day: a promo link was added at
// the top, shifting every index by one.
const shiftedPageHTML = `<html><body>
	<a id="promo" href="/sale">Big sale</a>
	<a id="home" href="/">Home</a>
	<input id="query" name="q" type="text" placeholder="Search">
	<button id="go" type="submit">Search</button>
</body></html>`

// recordedHistory builds a one-step history: click element 2 on the recorded
// page.
func recordedHistory(t *testing.T) *schemas.History {
	t.Helper()
	recorded := stateFromHTML(t, "https://example.com", "Example", recordedPageHTML)
	button := recorded.InteractedElement(2)
	require.NotNil(t, button)
	require.Equal(t, "button", button.Tag)

	return &schemas.History{Items: []schemas.HistoryItem{
		{
			ModelOutput: &schemas.AgentDecision{
				CurrentState: schemas.DecisionState{NextGoal: "submit the search"},
				Actions:      []schemas.Action{{Type: schemas.ActionClickElement, Index: intPtr(2)}},
			},
			Result: []schemas.ActionResult{{}},
			State: schemas.StateHistory{
				URL:                "https://example.com",
				Title:              "Example",
				InteractedElements: []*dom.HistoryElement{dom.NewHistoryElement(button)},
			},
		},
	}}
}

func TestRerunHistory_RewritesShiftedIndex(t *testing.T) {
	env := &MockEnvironment{}
	a := newTestAgent(t, env, &scriptedLLM{})

	live := stateFromHTML(t, "https://example.com", "Example", shiftedPageHTML)
	env.On("Observe", mock.Anything).Return(live, nil)

	// The button is now element 3; the replay must click 3, not the recorded 2.
	env.On("Apply", mock.Anything, mock.MatchedBy(func(act schemas.Action) bool {
		idx, ok := act.TargetIndex()
		return ok && idx == 3 && act.Type == schemas.ActionClickElement
	})).Return(&schemas.ActionResult{ExtractedContent: "clicked"}, nil).Once()

	results, err := a.RerunHistory(context.Background(), recordedHistory(t), ReplayOptions{MaxRetries: 1})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "clicked", results[0].ExtractedContent)
	env.AssertExpectations(t)
}

func TestRerunHistory_UnchangedPageKeepsIndex(t *testing.T) {
	env := &MockEnvironment{}
	a := newTestAgent(t, env, &scriptedLLM{})

	live := stateFromHTML(t, "https://example.com", "Example", recordedPageHTML)
	env.On("Observe", mock.Anything).Return(live, nil)
	env.On("Apply", mock.Anything, mock.MatchedBy(func(act schemas.Action) bool {
		idx, ok := act.TargetIndex()
		return ok && idx == 2
	})).Return(&schemas.ActionResult{}, nil).Once()

	_, err := a.RerunHistory(context.Background(), recordedHistory(t), ReplayOptions{MaxRetries: 1})

	require.NoError(t, err)
	env.AssertExpectations(t)
}

func TestRerunHistory_ElementGoneFailsStep(t *testing.T) {
	env := &MockEnvironment{}
	a := newTestAgent(t, env, &scriptedLLM{})

	// The button no longer exists anywhere on the page.
	gone := stateFromHTML(t, "https://example.com", "Example",
		`<html><body><a id="home" href="/">Home</a></body></html>`)
	env.On("Observe", mock.Anything).Return(gone, nil)

	_, err := a.RerunHistory(context.Background(), recordedHistory(t), ReplayOptions{MaxRetries: 2})

	require.Error(t, err)
	var enf *ElementNotFoundError
	assert.ErrorAs(t, err, &enf)
	env.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
	// Both attempts re-observed.
	env.AssertNumberOfCalls(t, "Observe", 2)
}

func TestRerunHistory_SkipFailuresContinues(t *testing.T) {
	env := &MockEnvironment{}
	a := newTestAgent(t, env, &scriptedLLM{})

	history := recordedHistory(t)
	// Second step has no indexed target and always works.
	history.Items = append(history.Items, schemas.HistoryItem{
		ModelOutput: &schemas.AgentDecision{
			Actions: []schemas.Action{{Type: schemas.ActionGoBack}},
		},
		State: schemas.StateHistory{InteractedElements: []*dom.HistoryElement{nil}},
	})

	gone := stateFromHTML(t, "https://example.com", "Example",
		`<html><body><a id="home" href="/">Home</a></body></html>`)
	env.On("Observe", mock.Anything).Return(gone, nil)
	env.On("Apply", mock.Anything, mock.MatchedBy(func(act schemas.Action) bool {
		return act.Type == schemas.ActionGoBack
	})).Return(&schemas.ActionResult{}, nil).Once()

	results, err := a.RerunHistory(context.Background(), history, ReplayOptions{MaxRetries: 1, SkipFailures: true})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Error, "replay step 1 skipped")
	assert.False(t, results[1].Failed())
}

func TestRerunHistory_RecordsItemsWithoutDecision(t *testing.T) {
	env := &MockEnvironment{}
	a := newTestAgent(t, env, &scriptedLLM{})

	// The recorded run aborted this step before a decision existed. The
	// replay notes that and moves on to the next item.
	history := recordedHistory(t)
	history.Items = append([]schemas.HistoryItem{
		{Result: []schemas.ActionResult{{Error: "step failed during recording"}}},
	}, history.Items...)

	live := stateFromHTML(t, "https://example.com", "Example", recordedPageHTML)
	env.On("Observe", mock.Anything).Return(live, nil)
	env.On("Apply", mock.Anything, mock.Anything).Return(&schemas.ActionResult{}, nil).Once()

	results, err := a.RerunHistory(context.Background(), history, ReplayOptions{MaxRetries: 1})

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "No action to replay", results[0].Error)
	assert.False(t, results[1].Failed())
	env.AssertNumberOfCalls(t, "Observe", 1)
}

func TestLoadAndRerun_RoundTrip(t *testing.T) {
	env := &MockEnvironment{}
	a := newTestAgent(t, env, &scriptedLLM{})

	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, schemas.SaveHistory(recordedHistory(t), path))

	live := stateFromHTML(t, "https://example.com", "Example", shiftedPageHTML)
	env.On("Observe", mock.Anything).Return(live, nil)
	env.On("Apply", mock.Anything, mock.MatchedBy(func(act schemas.Action) bool {
		idx, ok := act.TargetIndex()
		return ok && idx == 3
	})).Return(&schemas.ActionResult{}, nil).Once()

	results, err := a.LoadAndRerun(context.Background(), path, ReplayOptions{MaxRetries: 1})

	require.NoError(t, err)
	assert.Len(t, results, 1)
	env.AssertExpectations(t)
}
