// internal/agent/models.go
package agent

import (
	"time"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// AgentState represents the orchestrator's position in its run state machine.
type AgentState string

const (
	StateInit             AgentState = "INIT"              // Environment setup.
	StateRunning          AgentState = "RUNNING"           // Step loop in progress.
	StateDone             AgentState = "DONE"              // A done action terminated the run.
	StateAbortedFailures  AgentState = "ABORTED_FAILURES"  // Too many consecutive decision failures.
	StateExhaustedSteps   AgentState = "EXHAUSTED_STEPS"   // max_steps attempts used without finishing.
	StateCancelled        AgentState = "CANCELLED"         // The caller's context ended between steps.
	StateEnvironmentError AgentState = "ENVIRONMENT_ERROR" // Environment setup failed.
)

// Terminal reports whether the run can no longer make progress.
func (s AgentState) Terminal() bool {
	switch s {
	case StateDone, StateAbortedFailures, StateExhaustedSteps, StateCancelled, StateEnvironmentError:
		return true
	}
	return false
}

// ActionResult is the outcome of dispatching one action.
type ActionResult struct {
	Action           schemas.ActionName `json:"action,omitempty"`            // The action that produced this result.
	Error            string             `json:"error,omitempty"`             // Set when the action failed.
	ErrorCode        ErrorCode          `json:"error_code,omitempty"`        // Classification of Error.
	Message          string             `json:"message,omitempty"`           // Human-readable outcome.
	IsDone           bool               `json:"is_done,omitempty"`           // True for the terminal done action.
	Success          *bool              `json:"success,omitempty"`           // Task success, only meaningful with IsDone.
	ExtractedContent string             `json:"extracted_content,omitempty"` // Text produced by extraction or done.
}

// Failed reports whether the result carries an error.
func (r ActionResult) Failed() bool { return r.Error != "" }

// StepRecord is one fully processed step. Records are immutable once appended.
type StepRecord struct {
	Step      int               `json:"step"` // 1-based, monotonic.
	Decision  *schemas.Decision `json:"decision"`
	Results   []ActionResult    `json:"results"`
	Timestamp time.Time         `json:"timestamp"`
}

// RunOutcome summarizes a finished run.
type RunOutcome struct {
	RunID       string        `json:"run_id"`
	Task        string        `json:"task"`
	State       AgentState    `json:"state"`
	Done        bool          `json:"done"`
	Success     bool          `json:"success"`
	FinalResult string        `json:"final_result,omitempty"`
	Steps       int           `json:"steps"`    // Recorded steps.
	Attempts    int           `json:"attempts"` // Loop iterations, including rejected decisions.
	LastError   string        `json:"last_error,omitempty"`
	Duration    time.Duration `json:"duration"`
}
