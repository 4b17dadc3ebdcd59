// internal/agent/models.go
package agent

import (
	"sync"
	"sync/atomic"

	"github.com/xkilldash9x/browserpilot/api/schemas"
)

// RunStatus describes how a run ended.
type RunStatus string

const (
	StatusRunning    RunStatus = "running"
	StatusDone       RunStatus = "done"
	StatusStopped    RunStatus = "stopped"
	StatusMaxSteps   RunStatus = "max_steps_reached"
	StatusMaxFailure RunStatus = "max_failures_exceeded"
)

// RunState is the mutable control state of one run. Pause and stop flags are
// atomics because they are flipped from outside the run goroutine; the rest is
// only touched by the loop itself but kept behind a mutex so status snapshots
// are consistent.
type RunState struct {
	mu sync.Mutex

	step                int
	consecutiveFailures int
	lastResult          []schemas.ActionResult
	status              RunStatus

	paused  atomic.Bool
	stopped atomic.Bool
}

func newRunState() *RunState {
	return &RunState{status: StatusRunning}
}

func (s *RunState) Step() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

func (s *RunState) advanceStep() {
	s.mu.Lock()
	s.step++
	s.mu.Unlock()
}

func (s *RunState) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveFailures
}

func (s *RunState) recordFailure() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveFailures++
	return s.consecutiveFailures
}

func (s *RunState) resetFailures() {
	s.mu.Lock()
	s.consecutiveFailures = 0
	s.mu.Unlock()
}

func (s *RunState) setLastResult(r []schemas.ActionResult) {
	s.mu.Lock()
	s.lastResult = r
	s.mu.Unlock()
}

func (s *RunState) LastResult() []schemas.ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

func (s *RunState) setStatus(st RunStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *RunState) Status() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Pause suspends the loop before its next step. Already executing actions
// finish their current step first.
func (s *RunState) Pause() { s.paused.Store(true) }

// Resume lifts a pause.
func (s *RunState) Resume() { s.paused.Store(false) }

// RequestStop asks the loop to exit before its next step. Stopping also lifts
// a pause so a paused run can terminate.
func (s *RunState) RequestStop() {
	s.stopped.Store(true)
}

func (s *RunState) Paused() bool        { return s.paused.Load() }
func (s *RunState) StopRequested() bool { return s.stopped.Load() }

// stepInfo tells the oracle where the run stands.
type stepInfo struct {
	step     int
	maxSteps int
}

// NewStepCallback fires after every oracle decision with the state it was
// based on. A non-nil return is treated as a step failure. DoneCallback fires
// once with the finished history; its error is logged, the run is already
// over.
type NewStepCallback func(state *schemas.BrowserState, decision *schemas.AgentDecision, step int) error

type DoneCallback func(history *schemas.History) error
