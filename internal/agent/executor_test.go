// File: internal/agent/executor_test.go
package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/browserpilot/api/schemas"
)

func TestMultiAct_ExecutesFullBatch(t *testing.T) {
	env := &MockEnvironment{}
	a := newTestAgent(t, env, &scriptedLLM{})

	baseline := stateFromHTML(t, "https://example.com", "Example", searchPageHTML)
	actions := []schemas.Action{
		{Type: schemas.ActionInputText, Index: intPtr(1), Text: "weather"},
		{Type: schemas.ActionSendKeys, Keys: "Enter"},
	}

	// The indexed action runs first, so no drift check is due for the batch.
	env.On("Apply", mock.Anything, actions[0]).Return(&schemas.ActionResult{}, nil).Once()
	env.On("Apply", mock.Anything, actions[1]).Return(&schemas.ActionResult{ExtractedContent: "submitted"}, nil).Once()

	results, err := a.multiAct(context.Background(), actions, baseline, true)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "submitted", results[1].ExtractedContent)
	env.AssertExpectations(t)
	env.AssertNotCalled(t, "Observe", mock.Anything)
}

func TestMultiAct_AbortsBatchOnDrift(t *testing.T) {
	env := &MockEnvironment{}
	a := newTestAgent(t, env, &scriptedLLM{})

	baseline := stateFromHTML(t, "https://example.com", "Example", searchPageHTML)
	drifted := stateFromHTML(t, "https://example.com", "Example", searchPageWithBannerHTML)

	actions := []schemas.Action{
		{Type: schemas.ActionInputText, Index: intPtr(1), Text: "weather"},
		{Type: schemas.ActionClickElement, Index: intPtr(2)},
		{Type: schemas.ActionClickElement, Index: intPtr(0)},
	}

	env.On("Apply", mock.Anything, actions[0]).Return(&schemas.ActionResult{}, nil).Once()
	// Re-observation before the second indexed action shows a new element.
	env.On("Observe", mock.Anything).Return(drifted, nil).Once()

	results, err := a.multiAct(context.Background(), actions, baseline, true)

	require.NoError(t, err)
	require.Len(t, results, 2, "One executed action plus the drift notice")
	assert.Contains(t, results[1].ExtractedContent, "Something new appeared after action 1 / 3")
	assert.True(t, results[1].IncludeInMemory)
	env.AssertExpectations(t)
	env.AssertNumberOfCalls(t, "Apply", 1)
}

func TestMultiAct_UnchangedPagePassesDriftCheck(t *testing.T) {
	env := &MockEnvironment{}
	a := newTestAgent(t, env, &scriptedLLM{})

	baseline := stateFromHTML(t, "https://example.com", "Example", searchPageHTML)
	// Same elements, renumbered order is irrelevant to the fingerprint set.
	same := stateFromHTML(t, "https://example.com", "Example", searchPageHTML)

	actions := []schemas.Action{
		{Type: schemas.ActionInputText, Index: intPtr(1), Text: "weather"},
		{Type: schemas.ActionClickElement, Index: intPtr(2)},
	}

	env.On("Apply", mock.Anything, actions[0]).Return(&schemas.ActionResult{}, nil).Once()
	env.On("Observe", mock.Anything).Return(same, nil).Once()
	env.On("Apply", mock.Anything, actions[1]).Return(&schemas.ActionResult{}, nil).Once()

	results, err := a.multiAct(context.Background(), actions, baseline, true)

	require.NoError(t, err)
	assert.Len(t, results, 2)
	env.AssertExpectations(t)
}

func TestMultiAct_FewerElementsIsNotDrift(t *testing.T) {
	env := &MockEnvironment{}
	a := newTestAgent(t, env, &scriptedLLM{})

	// Baseline has the banner; the current page lost it. Disappearing
	// elements keep the remaining indices trustworthy.
	baseline := stateFromHTML(t, "https://example.com", "Example", searchPageWithBannerHTML)
	current := stateFromHTML(t, "https://example.com", "Example", searchPageHTML)

	actions := []schemas.Action{
		{Type: schemas.ActionInputText, Index: intPtr(1), Text: "weather"},
		{Type: schemas.ActionClickElement, Index: intPtr(2)},
	}

	env.On("Apply", mock.Anything, actions[0]).Return(&schemas.ActionResult{}, nil).Once()
	env.On("Observe", mock.Anything).Return(current, nil).Once()
	env.On("Apply", mock.Anything, actions[1]).Return(&schemas.ActionResult{}, nil).Once()

	results, err := a.multiAct(context.Background(), actions, baseline, true)

	require.NoError(t, err)
	assert.Len(t, results, 2)
	env.AssertExpectations(t)
}

func TestMultiAct_NoDriftCheckWhenGuardDisabled(t *testing.T) {
	env := &MockEnvironment{}
	a := newTestAgent(t, env, &scriptedLLM{})

	baseline := stateFromHTML(t, "https://example.com", "Example", searchPageHTML)
	actions := []schemas.Action{
		{Type: schemas.ActionClickElement, Index: intPtr(0)},
		{Type: schemas.ActionClickElement, Index: intPtr(2)},
	}

	env.On("Apply", mock.Anything, mock.Anything).Return(&schemas.ActionResult{}, nil).Twice()

	results, err := a.multiAct(context.Background(), actions, baseline, false)

	require.NoError(t, err)
	assert.Len(t, results, 2)
	env.AssertNotCalled(t, "Observe", mock.Anything)
}

func TestMultiAct_NonIndexedActionsSkipDriftCheck(t *testing.T) {
	env := &MockEnvironment{}
	a := newTestAgent(t, env, &scriptedLLM{})

	baseline := stateFromHTML(t, "https://example.com", "Example", searchPageHTML)
	actions := []schemas.Action{
		{Type: schemas.ActionScroll, ScrollDown: true},
		{Type: schemas.ActionScroll, ScrollDown: true},
		{Type: schemas.ActionSendKeys, Keys: "Enter"},
	}

	env.On("Apply", mock.Anything, mock.Anything).Return(&schemas.ActionResult{}, nil).Times(3)

	results, err := a.multiAct(context.Background(), actions, baseline, true)

	require.NoError(t, err)
	assert.Len(t, results, 3)
	env.AssertNotCalled(t, "Observe", mock.Anything)
}

func TestMultiAct_StopsAfterFailedAction(t *testing.T) {
	env := &MockEnvironment{}
	a := newTestAgent(t, env, &scriptedLLM{})

	actions := []schemas.Action{
		{Type: schemas.ActionGoToURL, URL: "https://example.com"},
		{Type: schemas.ActionSendKeys, Keys: "Enter"},
	}

	env.On("Apply", mock.Anything, actions[0]).Return(&schemas.ActionResult{Error: "navigation timed out"}, nil).Once()

	results, err := a.multiAct(context.Background(), actions, nil, true)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Failed())
	env.AssertNumberOfCalls(t, "Apply", 1)
}

func TestMultiAct_StopsAfterDone(t *testing.T) {
	env := &MockEnvironment{}
	a := newTestAgent(t, env, &scriptedLLM{})

	actions := []schemas.Action{
		{Type: schemas.ActionDone, Text: "42", Success: true},
		{Type: schemas.ActionSendKeys, Keys: "Enter"},
	}

	env.On("Apply", mock.Anything, actions[0]).Return(&schemas.ActionResult{IsDone: true, ExtractedContent: "42"}, nil).Once()

	results, err := a.multiAct(context.Background(), actions, nil, true)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsDone)
	env.AssertNumberOfCalls(t, "Apply", 1)
}

func TestMultiAct_StopRequestHaltsBatch(t *testing.T) {
	env := &MockEnvironment{}
	a := newTestAgent(t, env, &scriptedLLM{})

	baseline := stateFromHTML(t, "https://example.com", "Example", searchPageHTML)
	actions := []schemas.Action{
		{Type: schemas.ActionScroll, ScrollDown: true},
		{Type: schemas.ActionScroll, ScrollDown: true},
		{Type: schemas.ActionScroll, ScrollDown: true},
	}

	// The stop request lands while the first action executes; the remaining
	// two must never be dispatched.
	env.On("Apply", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		a.State().RequestStop()
	}).Return(&schemas.ActionResult{}, nil).Once()

	results, err := a.multiAct(context.Background(), actions, baseline, true)

	var ie *InterruptedError
	require.ErrorAs(t, err, &ie)
	assert.Len(t, results, 1)
	env.AssertNumberOfCalls(t, "Apply", 1)
}

func TestMultiAct_PauseRequestHaltsBatch(t *testing.T) {
	env := &MockEnvironment{}
	a := newTestAgent(t, env, &scriptedLLM{})

	actions := []schemas.Action{
		{Type: schemas.ActionScroll, ScrollDown: true},
		{Type: schemas.ActionScroll, ScrollDown: true},
	}

	env.On("Apply", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		a.State().Pause()
	}).Return(&schemas.ActionResult{}, nil).Once()

	results, err := a.multiAct(context.Background(), actions, nil, true)

	var ie *InterruptedError
	require.ErrorAs(t, err, &ie)
	assert.Len(t, results, 1)
	env.AssertNumberOfCalls(t, "Apply", 1)
}

func TestMultiAct_EnvironmentBreakageAbortsWithError(t *testing.T) {
	env := &MockEnvironment{}
	a := newTestAgent(t, env, &scriptedLLM{})

	actions := []schemas.Action{{Type: schemas.ActionGoToURL, URL: "https://example.com"}}

	env.On("Apply", mock.Anything, actions[0]).Return(nil, errors.New("browser crashed")).Once()

	results, err := a.multiAct(context.Background(), actions, nil, true)

	var ee *EnvironmentUnavailableError
	require.ErrorAs(t, err, &ee)
	require.Len(t, results, 1, "The breakage is still recorded as data")
	assert.Contains(t, results[0].Error, "browser crashed")
}

func TestMultiAct_DriftCheckObserveFailure(t *testing.T) {
	env := &MockEnvironment{}
	a := newTestAgent(t, env, &scriptedLLM{})

	baseline := stateFromHTML(t, "https://example.com", "Example", searchPageHTML)
	actions := []schemas.Action{
		{Type: schemas.ActionInputText, Index: intPtr(1), Text: "x"},
		{Type: schemas.ActionClickElement, Index: intPtr(2)},
	}

	env.On("Apply", mock.Anything, actions[0]).Return(&schemas.ActionResult{}, nil).Once()
	env.On("Observe", mock.Anything).Return(nil, errors.New("target closed")).Once()

	results, err := a.multiAct(context.Background(), actions, baseline, true)

	var ee *EnvironmentUnavailableError
	require.ErrorAs(t, err, &ee)
	assert.Len(t, results, 1)
}
