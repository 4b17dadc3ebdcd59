// internal/agent/recovery.go
package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/browserpilot/api/schemas"
)

// handleStepError converts a step failure into recorded results and applies
// the matching recovery measure. It never returns an error: a failed step is
// data, and the run loop decides on termination by counting consecutive
// failures.
func (a *Agent) handleStepError(ctx context.Context, err error) []schemas.ActionResult {
	// A stop or pause landing mid-step is not a failure. The step unwinds and
	// the run loop handles the request; whatever already executed may run
	// again if the run continues.
	if isInterrupted(err) {
		a.logger.Info("Step interrupted by a control request")
		return []schemas.ActionResult{{
			ExtractedContent: "The step was interrupted before completing; actions already executed may be repeated when the run continues.",
			IncludeInMemory:  true,
		}}
	}

	failures := a.state.recordFailure()
	prefix := fmt.Sprintf("Step failed %d/%d times:\n", failures, a.cfg.MaxFailures)
	msg := prefix + err.Error()

	switch {
	case isTokenOverflow(err):
		a.logger.Warn("Input exceeded the model context window, shrinking budget",
			zap.Int("current_tokens", a.messages.TotalTokens()),
			zap.Int("budget", a.messages.MaxInputTokens()))
		a.messages.ReduceTokenLimit()
		if cutErr := a.messages.CutMessages(); cutErr != nil {
			a.logger.Error("Failed to trim conversation after overflow", zap.Error(cutErr))
		}

	case isMalformedDecision(err):
		a.logger.Warn("Oracle output was malformed, adding format hint", zap.Error(err))
		a.messages.AddHint("Your last response was not valid JSON. Return a single JSON object with the required current_state and action fields and nothing else.")

	case isRateLimited(err):
		a.logger.Warn("Provider rate limited the request, backing off",
			zap.Duration("retry_delay", a.cfg.RetryDelay),
			zap.Error(err))
		select {
		case <-time.After(a.cfg.RetryDelay):
		case <-ctx.Done():
		}

	default:
		a.logger.Error("Step failed", zap.Error(err), zap.Int("consecutive_failures", failures))
	}

	return []schemas.ActionResult{{Error: msg, IncludeInMemory: true}}
}
