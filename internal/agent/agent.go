package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/llmutil"
)

// DefaultMaxConsecutiveFailures is used when the configuration leaves the limit unset.
const DefaultMaxConsecutiveFailures = 3

// environmentCloseTimeout bounds the release of the environment after a run.
const environmentCloseTimeout = 30 * time.Second

// Dependencies are the collaborators an Orchestrator drives.
type Dependencies struct {
	Environment schemas.Environment     // Required. Owned by the orchestrator for the run and closed when it ends.
	LLM         schemas.LLMClient       // Required.
	Vision      schemas.VisionProcessor // Optional. Only consulted when vision is enabled.
}

// Orchestrator runs the observe/decide/act loop for a single task.
// An Orchestrator, its RunState and its ContextBuilder serve exactly one Run.
type Orchestrator struct {
	runID      string
	task       string
	cfg        config.AgentConfig
	logger     *zap.Logger
	env        schemas.Environment
	llm        schemas.LLMClient
	vision     schemas.VisionProcessor
	dispatcher *Dispatcher
	runState   *RunState
	context    *ContextBuilder

	state               AgentState
	consecutiveFailures int
	maxFailures         int
	attempts            int
	lastError           string
	started             bool
}

// New creates an orchestrator for task.
func New(task string, cfg config.AgentConfig, deps Dependencies, logger *zap.Logger) (*Orchestrator, error) {
	if task == "" {
		return nil, errors.New("task must not be empty")
	}
	if deps.Environment == nil {
		return nil, errors.New("an environment is required")
	}
	if deps.LLM == nil {
		return nil, errors.New("an LLM client is required")
	}
	if cfg.MaxSteps <= 0 {
		return nil, fmt.Errorf("max_steps must be greater than 0, got %d", cfg.MaxSteps)
	}
	maxFailures := cfg.MaxConsecutiveFailures
	if maxFailures <= 0 {
		maxFailures = DefaultMaxConsecutiveFailures
	}

	runID := uuid.New().String()
	logger = logger.With(zap.String("run_id", runID[:8]))

	return &Orchestrator{
		runID:       runID,
		task:        task,
		cfg:         cfg,
		logger:      logger,
		env:         deps.Environment,
		llm:         deps.LLM,
		vision:      deps.Vision,
		dispatcher:  NewDispatcher(logger, cfg.SettleInterval),
		runState:    NewRunState(),
		context:     NewContextBuilder(task, nil),
		state:       StateInit,
		maxFailures: maxFailures,
	}, nil
}

// RunID returns the unique identifier of this run.
func (o *Orchestrator) RunID() string { return o.runID }

// State returns the current position in the run state machine.
func (o *Orchestrator) State() AgentState { return o.state }

// History returns the recorded steps.
func (o *Orchestrator) History() []StepRecord { return o.runState.Steps() }

// Run executes the task until it is done, the failure limit is hit, the step budget
// is used up, or ctx ends. ctx is only observed between steps. The environment is
// closed on every exit path.
//
// A non-nil error is returned only when the environment could not be initialized or
// ctx ended; the outcome is populated in both cases.
func (o *Orchestrator) Run(ctx context.Context) (*RunOutcome, error) {
	if o.started {
		return nil, errors.New("orchestrator has already run; create a new one per task")
	}
	o.started = true
	start := time.Now()

	defer o.releaseEnvironment(ctx)

	o.logger.Info("Run starting.", zap.String("task", o.task), zap.Int("max_steps", o.cfg.MaxSteps))
	if err := o.env.Initialize(ctx); err != nil {
		o.transition(StateEnvironmentError)
		o.lastError = err.Error()
		return o.outcome(start), fmt.Errorf("failed to initialize environment: %w", err)
	}
	o.transition(StateRunning)

	for !o.state.Terminal() {
		if err := ctx.Err(); err != nil {
			o.transition(StateCancelled)
			o.lastError = err.Error()
			break
		}
		if o.attempts >= o.cfg.MaxSteps {
			o.transition(StateExhaustedSteps)
			break
		}
		o.attempts++
		o.step(ctx)

		switch {
		case o.consecutiveFailures >= o.maxFailures:
			o.transition(StateAbortedFailures)
		case o.runState.IsDone():
			o.transition(StateDone)
		}
	}

	outcome := o.outcome(start)
	o.logger.Info("Run finished.",
		zap.String("state", string(outcome.State)),
		zap.Bool("success", outcome.Success),
		zap.Int("steps", outcome.Steps),
		zap.Int("attempts", outcome.Attempts),
		zap.Duration("duration", outcome.Duration))

	if o.state == StateCancelled {
		return outcome, ctx.Err()
	}
	return outcome, nil
}

// step performs one observe/decide/act iteration. Failures before dispatch are
// recorded against the consecutive-failure counter and never produce a StepRecord.
func (o *Orchestrator) step(ctx context.Context) {
	logger := o.logger.With(zap.Int("attempt", o.attempts))

	snapshot, err := o.env.GetState(ctx)
	if err != nil {
		logger.Warn("Failed to capture page state.", zap.Error(err))
		o.recordFailure(fmt.Sprintf("the page state could not be captured: %v", err))
		return
	}
	o.mergeVision(ctx, snapshot)
	o.context.AddSnapshot(snapshot)

	raw, err := o.llm.ChatCompletion(ctx, o.context.RenderPrompt())
	if err != nil {
		var transportErr *schemas.TransportError
		if errors.As(err, &transportErr) {
			logger.Warn("Decision request failed.", zap.String("provider", transportErr.Provider), zap.Error(err))
		} else {
			logger.Warn("Decision request returned an error.", zap.Error(err))
		}
		o.recordFailure(fmt.Sprintf("no decision could be obtained: %v", err))
		return
	}
	o.context.AddDecision(raw)

	decision, err := llmutil.ParseDecision(raw)
	if err != nil {
		logger.Warn("Rejected malformed decision.", zap.Error(err))
		o.recordFailure(fmt.Sprintf("your last response was rejected (%v). Reply with one JSON object in the required format.", err))
		return
	}

	if len(decision.Actions) == 0 {
		logger.Warn("Rejected decision without actions.")
		o.recordFailure("your last response contained no actions. Request at least one action, or done when the task is finished.")
		return
	}

	logger.Debug("Decision accepted.",
		zap.String("next_goal", decision.CurrentState.NextGoal),
		zap.Int("actions", len(decision.Actions)))

	results := o.dispatcher.DispatchBatch(ctx, decision.Actions, o.env)
	record := o.runState.RecordStep(decision, results)
	o.consecutiveFailures = 0
	o.lastError = o.runState.LastError()
	o.context.AddActionResults(record.Step, results)

	logger.Info("Step completed.",
		zap.Int("step", record.Step),
		zap.Int("submitted", len(decision.Actions)),
		zap.Int("executed", len(results)),
		zap.String("last_error", o.lastError))
}

// mergeVision attaches annotations when vision is enabled and a screenshot exists.
// The vision collaborator is optional, so its failures never fail the step.
func (o *Orchestrator) mergeVision(ctx context.Context, snapshot *schemas.Snapshot) {
	if !o.cfg.UseVision || o.vision == nil || snapshot.Screenshot == "" {
		return
	}
	annotations, err := o.vision.Process(ctx, snapshot.Screenshot, snapshot)
	if err != nil {
		o.logger.Warn("Vision processing failed, continuing without annotations.", zap.Error(err))
		return
	}
	snapshot.Vision = annotations
}

func (o *Orchestrator) recordFailure(reason string) {
	o.consecutiveFailures++
	o.lastError = reason
	o.context.AddFeedback(reason)
	o.logger.Debug("Consecutive failure recorded.",
		zap.Int("consecutive_failures", o.consecutiveFailures),
		zap.Int("limit", o.maxFailures))
}

func (o *Orchestrator) transition(next AgentState) {
	o.logger.Debug("State transition.", zap.String("from", string(o.state)), zap.String("to", string(next)))
	o.state = next
}

// releaseEnvironment closes the environment on a context that survives cancellation of ctx.
func (o *Orchestrator) releaseEnvironment(ctx context.Context) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), environmentCloseTimeout)
	defer cancel()
	if err := o.env.Close(closeCtx); err != nil {
		o.logger.Warn("Failed to close environment.", zap.Error(err))
	}
}

func (o *Orchestrator) outcome(start time.Time) *RunOutcome {
	success, _ := o.runState.IsSuccessful()
	finalResult, _ := o.runState.FinalResult()
	return &RunOutcome{
		RunID:       o.runID,
		Task:        o.task,
		State:       o.state,
		Done:        o.runState.IsDone(),
		Success:     success,
		FinalResult: finalResult,
		Steps:       o.runState.StepCount(),
		Attempts:    o.attempts,
		LastError:   o.lastError,
		Duration:    time.Since(start),
	}
}
