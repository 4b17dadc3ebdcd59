// internal/agent/executor.go
package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/browserpilot/api/schemas"
	"github.com/xkilldash9x/browserpilot/internal/browser/dom"
)

// multiAct executes a decided action batch in order. Before every
// index-targeted action after the first, the page is re-observed and its
// element fingerprints compared against the state the batch was decided on:
// if elements appeared that the oracle never saw, the remaining actions target
// a page that no longer exists and the batch stops with an explanatory result.
// guardDrift is disabled during history replay, where indices have already
// been re-resolved per action.
func (a *Agent) multiAct(ctx context.Context, actions []schemas.Action, baseline *schemas.BrowserState, guardDrift bool) ([]schemas.ActionResult, error) {
	results := make([]schemas.ActionResult, 0, len(actions))

	var baselineFPs map[string]struct{}
	if guardDrift && baseline != nil {
		baselineFPs = dom.FingerprintSet(baseline.SelectorMap)
	}

	for i, action := range actions {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if err := a.interrupted(); err != nil {
			return results, err
		}

		if guardDrift && i > 0 && action.RequiresIndex() {
			current, err := a.env.Observe(ctx)
			if err != nil {
				return results, &EnvironmentUnavailableError{Op: "drift check", Err: err}
			}
			currentFPs := dom.FingerprintSet(current.SelectorMap)
			if !dom.IsSubset(currentFPs, baselineFPs) {
				msg := fmt.Sprintf("Something new appeared after action %d / %d", i, len(actions))
				a.logger.Info("Page drift detected, aborting remaining actions",
					zap.Int("executed", i),
					zap.Int("batch_size", len(actions)))
				results = append(results, schemas.ActionResult{ExtractedContent: msg, IncludeInMemory: true})
				break
			}
		}

		result, err := a.env.Apply(ctx, action)
		if err != nil {
			// Environment-level breakage aborts the batch but still records
			// what happened as data.
			results = append(results, schemas.ActionResult{Error: err.Error()})
			return results, &EnvironmentUnavailableError{Op: string(action.Type), Err: err}
		}
		if result == nil {
			result = &schemas.ActionResult{}
		}
		results = append(results, *result)

		a.logger.Debug("Executed action",
			zap.String("type", string(action.Type)),
			zap.Int("position", i+1),
			zap.Int("batch_size", len(actions)),
			zap.Bool("failed", result.Failed()))

		if result.IsDone || result.Failed() || i == len(actions)-1 {
			break
		}

		if wait := a.cfg.WaitBetweenActions; wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return results, ctx.Err()
			}
		}
	}

	return results, nil
}
