// internal/agent/interfaces.go
package agent

import (
	"context"

	"github.com/xkilldash9x/browserpilot/api/schemas"
)

// Environment is the browser the agent drives. Observe produces an immutable
// snapshot of the current page; Apply executes exactly one action against it.
// Apply reports action-level failures inside the ActionResult and reserves its
// error return for environment-level breakage (crashed browser, dead
// transport).
type Environment interface {
	Observe(ctx context.Context) (*schemas.BrowserState, error)
	Apply(ctx context.Context, action schemas.Action) (*schemas.ActionResult, error)
	Close(ctx context.Context) error
}

// Telemetry is an optional side channel notified at run milestones. The run's
// correctness never depends on it; implementations must not block.
type Telemetry interface {
	RunStarted(task string)
	StepExecuted(step int, consecutiveFailures int, errors []string)
	RunEnded(status RunStatus, steps int, isDone bool)
}

// noopTelemetry discards every event. It is the default.
type noopTelemetry struct{}

func (noopTelemetry) RunStarted(string)               {}
func (noopTelemetry) StepExecuted(int, int, []string) {}
func (noopTelemetry) RunEnded(RunStatus, int, bool)   {}
