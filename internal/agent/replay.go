// internal/agent/replay.go
package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/browserpilot/api/schemas"
	"github.com/xkilldash9x/browserpilot/internal/browser/dom"
)

// ReplayOptions tunes history re-execution.
type ReplayOptions struct {
	// MaxRetries is how often a failed step is re-attempted before the replay
	// gives up on it.
	MaxRetries int
	// SkipFailures continues with the next recorded step after retries are
	// exhausted instead of aborting the replay.
	SkipFailures bool
	// DelayBetweenSteps waits between recorded steps to let pages settle.
	DelayBetweenSteps time.Duration
}

// DefaultReplayOptions mirror a cautious interactive replay.
func DefaultReplayOptions() ReplayOptions {
	return ReplayOptions{
		MaxRetries:        3,
		SkipFailures:      false,
		DelayBetweenSteps: 2 * time.Second,
	}
}

// RerunHistory re-executes a recorded run against the live environment.
// Recorded elements are re-located by fingerprint in the current page and
// action indices rewritten before execution; the drift guard stays off since
// every index is freshly resolved. Returns the results of all executed steps.
func (a *Agent) RerunHistory(ctx context.Context, history *schemas.History, opts ReplayOptions) ([]schemas.ActionResult, error) {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}

	var allResults []schemas.ActionResult

	for i, item := range history.Items {
		if item.ModelOutput == nil || len(item.ModelOutput.Actions) == 0 {
			a.logger.Warn("History item carries no action to replay", zap.Int("item", i+1))
			allResults = append(allResults, schemas.ActionResult{Error: "No action to replay"})
			continue
		}

		a.logger.Info("Replaying step",
			zap.Int("item", i+1),
			zap.Int("total", len(history.Items)),
			zap.String("goal", item.ModelOutput.CurrentState.NextGoal))

		var (
			results []schemas.ActionResult
			err     error
		)
		for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
			results, err = a.replayStep(ctx, item)
			if err == nil {
				break
			}
			a.logger.Warn("Replay step failed",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", opts.MaxRetries),
				zap.Error(err))
			if attempt < opts.MaxRetries {
				select {
				case <-time.After(opts.DelayBetweenSteps):
				case <-ctx.Done():
					return allResults, ctx.Err()
				}
			}
		}

		if err != nil {
			if !opts.SkipFailures {
				return allResults, fmt.Errorf("replay aborted at step %d/%d: %w", i+1, len(history.Items), err)
			}
			a.logger.Warn("Skipping failed replay step", zap.Int("item", i+1), zap.Error(err))
			allResults = append(allResults, schemas.ActionResult{
				Error: fmt.Sprintf("replay step %d skipped: %v", i+1, err),
			})
			continue
		}

		allResults = append(allResults, results...)

		if i < len(history.Items)-1 && opts.DelayBetweenSteps > 0 {
			select {
			case <-time.After(opts.DelayBetweenSteps):
			case <-ctx.Done():
				return allResults, ctx.Err()
			}
		}
	}

	return allResults, nil
}

// LoadAndRerun replays a history file produced by a previous run.
func (a *Agent) LoadAndRerun(ctx context.Context, path string, opts ReplayOptions) ([]schemas.ActionResult, error) {
	history, err := schemas.LoadHistory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load history from %s: %w", path, err)
	}
	return a.RerunHistory(ctx, history, opts)
}

// replayStep re-executes one recorded step against the current page.
func (a *Agent) replayStep(ctx context.Context, item schemas.HistoryItem) ([]schemas.ActionResult, error) {
	state, err := a.env.Observe(ctx)
	if err != nil {
		return nil, &EnvironmentUnavailableError{Op: "observe", Err: err}
	}

	actions := make([]schemas.Action, len(item.ModelOutput.Actions))
	copy(actions, item.ModelOutput.Actions)

	for i := range actions {
		var recorded *dom.HistoryElement
		if i < len(item.State.InteractedElements) {
			recorded = item.State.InteractedElements[i]
		}
		if err := a.updateActionIndex(&actions[i], recorded, state); err != nil {
			return nil, err
		}
	}

	return a.multiAct(ctx, actions, state, false)
}

// updateActionIndex re-resolves a recorded element in the current state and
// rewrites the action's target index when the page has renumbered it.
func (a *Agent) updateActionIndex(action *schemas.Action, recorded *dom.HistoryElement, state *schemas.BrowserState) error {
	oldIdx, ok := action.TargetIndex()
	if !ok {
		return nil
	}
	if recorded == nil {
		return fmt.Errorf("recorded action targets index %d but history carries no element fingerprint", oldIdx)
	}

	match := dom.FindHistoryElement(recorded, state.ElementTree)
	if match == nil || !match.HasHighlight() {
		return &ElementNotFoundError{Index: oldIdx}
	}

	if match.HighlightIndex != oldIdx {
		a.logger.Info("Element moved since recording, rewriting index",
			zap.Int("recorded_index", oldIdx),
			zap.Int("current_index", match.HighlightIndex))
		action.SetTargetIndex(match.HighlightIndex)
	}
	return nil
}
