// internal/agent/agent.go
package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/browserpilot/api/schemas"
	"github.com/xkilldash9x/browserpilot/internal/config"
)

// Agent runs the observe/decide/execute/record loop for one task against one
// browser environment.
type Agent struct {
	task    string
	cfg     config.AgentConfig
	logger  *zap.Logger
	env     Environment
	ownsEnv bool
	brain   *Brain

	messages *MessageManager
	history  *schemas.History
	state    *RunState

	useVision      bool
	lastState      *schemas.BrowserState
	initialActions []schemas.Action
	telemetry      Telemetry

	onNewStep NewStepCallback
	onDone    DoneCallback

	closeOnce sync.Once
	closeErr  error
}

// Option customizes an Agent at construction.
type Option func(*Agent)

// WithNewStepCallback fires after every oracle decision.
func WithNewStepCallback(cb NewStepCallback) Option {
	return func(a *Agent) { a.onNewStep = cb }
}

// WithDoneCallback fires once when the run finishes.
func WithDoneCallback(cb DoneCallback) Option {
	return func(a *Agent) { a.onDone = cb }
}

// WithVision attaches screenshots to observations in the oracle prompt.
func WithVision(enabled bool) Option {
	return func(a *Agent) { a.useVision = enabled }
}

// WithOwnedEnvironment makes the agent close the environment when the run
// ends. Leave it off when the caller shares the browser across agents.
func WithOwnedEnvironment() Option {
	return func(a *Agent) { a.ownsEnv = true }
}

// WithInitialActions executes a fixed action batch before the first step,
// without consulting the oracle and without the drift guard.
func WithInitialActions(actions []schemas.Action) Option {
	return func(a *Agent) { a.initialActions = actions }
}

// WithTelemetry attaches a side channel notified at run milestones.
func WithTelemetry(t Telemetry) Option {
	return func(a *Agent) {
		if t != nil {
			a.telemetry = t
		}
	}
}

// New creates an agent for one task.
func New(task string, env Environment, client schemas.LLMClient, cfg config.AgentConfig, logger *zap.Logger, opts ...Option) *Agent {
	runID := uuid.New().String()[:8]
	logger = logger.Named("agent").With(zap.String("run_id", runID))

	a := &Agent{
		task:      task,
		cfg:       cfg,
		logger:    logger,
		env:       env,
		brain:     NewBrain(logger, client, cfg.MaxActionsPerStep),
		messages:  NewMessageManager(logger, task, cfg.MaxInputTokens),
		history:   &schemas.History{},
		state:     newRunState(),
		telemetry: noopTelemetry{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State exposes the run's control surface for pausing and stopping.
func (a *Agent) State() *RunState { return a.state }

// History returns the recorded run so far.
func (a *Agent) History() *schemas.History { return a.history }

// Run executes the control loop until the task reports done, the step budget
// runs out, too many consecutive steps fail, or a stop is requested. The
// returned history is always complete up to the point the loop ended; Run
// only errors on context cancellation.
func (a *Agent) Run(ctx context.Context) (*schemas.History, error) {
	a.logger.Info("Starting run",
		zap.String("task", a.task),
		zap.Int("max_steps", a.cfg.MaxSteps))
	a.telemetry.RunStarted(a.task)
	start := time.Now()

	defer func() {
		a.closeEnvironment()
		a.saveHistory()
		if a.onDone != nil {
			if cbErr := a.onDone(a.history); cbErr != nil {
				a.logger.Error("Done callback failed", zap.Error(cbErr))
			}
		}
		a.telemetry.RunEnded(a.state.Status(), a.state.Step(), a.history.IsDone())
		a.logger.Info("Run finished",
			zap.String("status", string(a.state.Status())),
			zap.Int("steps", a.state.Step()),
			zap.Duration("elapsed", time.Since(start)))
	}()

	// Initial actions run once, before the oracle is ever consulted. There is
	// no decided-on baseline yet, so the drift guard stays off.
	if len(a.initialActions) > 0 {
		a.logger.Info("Executing initial actions", zap.Int("count", len(a.initialActions)))
		results, err := a.multiAct(ctx, a.initialActions, nil, false)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				a.state.setStatus(StatusStopped)
				return a.history, ctxErr
			}
			results = append(results, a.handleStepError(ctx, err)...)
		}
		a.state.setLastResult(results)
	}

loop:
	for a.state.Step() < a.cfg.MaxSteps {
		// Pause gate. A stop request must also break out of a pause.
		for a.state.Paused() {
			if a.state.StopRequested() {
				break
			}
			select {
			case <-time.After(a.cfg.PausePollInterval):
			case <-ctx.Done():
				a.state.setStatus(StatusStopped)
				return a.history, ctx.Err()
			}
		}

		if a.state.StopRequested() {
			a.logger.Info("Stop requested, ending run")
			a.state.setStatus(StatusStopped)
			break
		}
		if err := ctx.Err(); err != nil {
			a.state.setStatus(StatusStopped)
			return a.history, err
		}

		if a.state.Failures() >= a.cfg.MaxFailures {
			a.logger.Error("Too many consecutive failures, ending run",
				zap.Int("failures", a.state.Failures()),
				zap.Int("max_failures", a.cfg.MaxFailures))
			a.state.setStatus(StatusMaxFailure)
			break
		}

		a.step(ctx)

		if a.history.IsDone() {
			if a.cfg.ValidateOutput && a.state.Step() < a.cfg.MaxSteps-1 {
				valid, reason, err := a.brain.Validate(ctx, a.task, a.history.FinalResult())
				if err != nil {
					a.logger.Warn("Output validation call failed, accepting result", zap.Error(err))
				} else if !valid {
					a.logger.Info("Validator rejected the final answer, continuing", zap.String("reason", reason))
					a.messages.AddHint("The task is not actually complete: " + reason)
					a.state.advanceStep()
					continue loop
				}
			}
			a.logger.Info("Task completed", zap.Int("steps", a.state.Step()+1))
			a.state.setStatus(StatusDone)
			break
		}

		a.state.advanceStep()
	}

	if a.state.Status() == StatusRunning {
		a.logger.Warn("Step budget exhausted without completing the task",
			zap.Int("max_steps", a.cfg.MaxSteps))
		a.state.setStatus(StatusMaxSteps)
	}

	return a.history, nil
}

// step performs one observe/decide/execute/record cycle. All failures are
// absorbed into recorded results; the loop above decides what they mean.
func (a *Agent) step(ctx context.Context) {
	stepNum := a.state.Step()
	info := stepInfo{step: stepNum, maxSteps: a.cfg.MaxSteps}
	a.logger.Info("Executing step", zap.Int("step", stepNum+1))

	var (
		state    *schemas.BrowserState
		decision *schemas.AgentDecision
		results  []schemas.ActionResult
	)

	defer func() {
		a.state.setLastResult(results)
		a.recordHistoryItem(decision, state, results)
		a.writeStepLog(stepNum, decision, results)
		a.telemetry.StepExecuted(stepNum, a.state.Failures(), resultErrors(results))
	}()

	state, err := a.env.Observe(ctx)
	if err != nil {
		results = a.handleStepError(ctx, &EnvironmentUnavailableError{Op: "observe", Err: err})
		return
	}
	a.lastState = state

	if err := a.interrupted(); err != nil {
		results = a.handleStepError(ctx, err)
		return
	}

	a.messages.AddStateMessage(state, a.state.LastResult(), info, a.useVision)

	if a.plannerDue(stepNum) {
		a.runPlanner(ctx)
	}

	if err := a.messages.CutMessages(); err != nil {
		a.logger.Warn("Conversation over budget before the oracle call", zap.Error(err))
	}

	if err := a.interrupted(); err != nil {
		a.messages.RemoveLastStateMessage()
		results = a.handleStepError(ctx, err)
		return
	}

	promptMessages := a.messages.Messages()
	decision, err = a.brain.Decide(ctx, promptMessages)
	if err != nil {
		// The failed page dump must not pollute durable memory.
		a.messages.RemoveLastStateMessage()
		decision = nil
		results = a.handleStepError(ctx, err)
		return
	}

	if a.onNewStep != nil {
		if cbErr := a.onNewStep(state, decision, stepNum); cbErr != nil {
			a.messages.RemoveLastStateMessage()
			results = a.handleStepError(ctx, fmt.Errorf("new-step callback failed: %w", cbErr))
			return
		}
	}

	a.saveConversation(stepNum, promptMessages, decision)

	if err := a.interrupted(); err != nil {
		a.messages.RemoveLastStateMessage()
		results = a.handleStepError(ctx, err)
		return
	}

	// Swap the transient page dump for the compact decision record.
	a.messages.RemoveLastStateMessage()
	a.messages.AddModelOutput(decision)

	results, err = a.multiAct(ctx, decision.Actions, state, true)
	if err != nil {
		extra := a.handleStepError(ctx, err)
		results = append(results, extra...)
		return
	}

	a.state.resetFailures()
}

// interrupted reports a pending stop or pause request as a typed error so the
// in-flight step can unwind at its next checkpoint.
func (a *Agent) interrupted() error {
	if a.state.StopRequested() || a.state.Paused() {
		return &InterruptedError{}
	}
	return nil
}

// resultErrors collects the error strings of a result batch.
func resultErrors(results []schemas.ActionResult) []string {
	var errs []string
	for _, r := range results {
		if r.Error != "" {
			errs = append(errs, r.Error)
		}
	}
	return errs
}

// plannerDue reports whether this step should refresh the plan.
func (a *Agent) plannerDue(step int) bool {
	return a.cfg.PlannerInterval > 0 && step%a.cfg.PlannerInterval == 0
}

func (a *Agent) runPlanner(ctx context.Context) {
	plan, err := a.brain.Plan(ctx, a.messages.Messages())
	if err != nil {
		a.logger.Warn("Planner call failed, continuing without plan", zap.Error(err))
		return
	}
	a.messages.AddPlan(plan)
	a.logger.Debug("Plan refreshed", zap.String("plan", plan))
}

// closeEnvironment shuts the browser down exactly once, and only when this
// agent owns it.
func (a *Agent) closeEnvironment() {
	if !a.ownsEnv {
		return
	}
	a.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.env.Close(ctx); err != nil {
			a.logger.Warn("Failed to close browser environment", zap.Error(err))
			a.closeErr = err
		}
	})
}

func (a *Agent) saveHistory() {
	if a.cfg.HistoryFile == "" {
		return
	}
	if err := schemas.SaveHistory(a.history, a.cfg.HistoryFile); err != nil {
		a.logger.Error("Failed to save run history", zap.String("path", a.cfg.HistoryFile), zap.Error(err))
		return
	}
	a.logger.Info("Run history saved", zap.String("path", a.cfg.HistoryFile), zap.Int("items", a.history.Len()))
}

// saveConversation writes the exact prompt the oracle saw and the decision it
// returned, one file per step, when a conversation directory is configured.
func (a *Agent) saveConversation(step int, messages []schemas.PromptMessage, decision *schemas.AgentDecision) {
	if a.cfg.ConversationDir == "" {
		return
	}
	if err := os.MkdirAll(a.cfg.ConversationDir, 0o755); err != nil {
		a.logger.Warn("Failed to create conversation directory", zap.Error(err))
		return
	}

	var b []byte
	for _, msg := range messages {
		b = append(b, fmt.Sprintf("[%s]\n%s\n\n", strings.ToUpper(string(msg.Role)), msg.Content)...)
	}
	if raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(decision, "", "  "); err == nil {
		b = append(b, "[DECISION]\n"...)
		b = append(b, raw...)
		b = append(b, '\n')
	}

	path := filepath.Join(a.cfg.ConversationDir, fmt.Sprintf("conversation_%03d.txt", step+1))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		a.logger.Warn("Failed to write conversation file", zap.String("path", path), zap.Error(err))
	}
}

// writeStepLog emits a per-step artifact for offline inspection when a log
// directory is configured.
func (a *Agent) writeStepLog(step int, decision *schemas.AgentDecision, results []schemas.ActionResult) {
	if a.cfg.StepLogDir == "" {
		return
	}
	if err := os.MkdirAll(a.cfg.StepLogDir, 0o755); err != nil {
		a.logger.Warn("Failed to create step log directory", zap.Error(err))
		return
	}

	var b []byte
	b = append(b, fmt.Sprintf("# Step %d\n\n", step+1)...)
	if decision != nil {
		b = append(b, fmt.Sprintf("Evaluation: %s\n\nMemory: %s\n\nNext goal: %s\n\n",
			decision.CurrentState.EvaluationPreviousGoal,
			decision.CurrentState.Memory,
			decision.CurrentState.NextGoal)...)
	}
	for i, r := range results {
		b = append(b, fmt.Sprintf("## Result %d\n\n", i+1)...)
		if r.ExtractedContent != "" {
			b = append(b, r.ExtractedContent...)
			b = append(b, "\n\n"...)
		}
		if r.Error != "" {
			b = append(b, "Error: "+r.Error+"\n\n"...)
		}
	}

	path := filepath.Join(a.cfg.StepLogDir, fmt.Sprintf("step_%03d.md", step+1))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		a.logger.Warn("Failed to write step log", zap.String("path", path), zap.Error(err))
	}
}
