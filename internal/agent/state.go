// internal/agent/state.go
package agent

import (
	"time"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// DefaultFinalResult is reported when the terminal action carried no text.
const DefaultFinalResult = "no details"

// RunState records the step history of one task and derives its done/success status.
// It is owned by a single orchestrator and is not safe for concurrent use.
type RunState struct {
	steps       []StepRecord
	done        bool
	success     bool
	finalResult string
	now         func() time.Time
}

// NewRunState returns an empty RunState.
func NewRunState() *RunState {
	return &RunState{now: time.Now}
}

// RecordStep appends a StepRecord numbered one past the previous step and returns it.
// The first result with IsDone set decides success and the final result; later
// terminal results in the same batch, and any after the run is done, are ignored.
func (s *RunState) RecordStep(decision *schemas.Decision, results []ActionResult) StepRecord {
	record := StepRecord{
		Step:      len(s.steps) + 1,
		Decision:  decision,
		Results:   append([]ActionResult(nil), results...),
		Timestamp: s.now(),
	}
	s.steps = append(s.steps, record)

	if s.done {
		return record
	}
	for _, r := range results {
		if !r.IsDone {
			continue
		}
		s.done = true
		s.success = r.Success != nil && *r.Success
		s.finalResult = r.ExtractedContent
		if s.finalResult == "" {
			s.finalResult = DefaultFinalResult
		}
		break
	}
	return record
}

// IsDone reports whether a terminal action has been recorded.
func (s *RunState) IsDone() bool { return s.done }

// IsSuccessful reports the task's success. ok is false until the run is done.
func (s *RunState) IsSuccessful() (success, ok bool) {
	if !s.done {
		return false, false
	}
	return s.success, true
}

// FinalResult returns the terminal action's text. ok is false until the run is done.
func (s *RunState) FinalResult() (string, bool) {
	if !s.done {
		return "", false
	}
	return s.finalResult, true
}

// LastError returns the first error of the most recent step, or "" if it had none.
func (s *RunState) LastError() string {
	if len(s.steps) == 0 {
		return ""
	}
	for _, r := range s.steps[len(s.steps)-1].Results {
		if r.Error != "" {
			return r.Error
		}
	}
	return ""
}

// Errors returns, for every recorded step in order, the error strings of its results.
// Steps without errors contribute an empty slice.
func (s *RunState) Errors() [][]string {
	out := make([][]string, len(s.steps))
	for i, step := range s.steps {
		errs := []string{}
		for _, r := range step.Results {
			if r.Error != "" {
				errs = append(errs, r.Error)
			}
		}
		out[i] = errs
	}
	return out
}

// Steps returns a copy of the recorded history.
func (s *RunState) Steps() []StepRecord {
	out := make([]StepRecord, len(s.steps))
	for i, step := range s.steps {
		step.Results = append([]ActionResult(nil), step.Results...)
		out[i] = step
	}
	return out
}

// StepCount returns the number of recorded steps.
func (s *RunState) StepCount() int { return len(s.steps) }
