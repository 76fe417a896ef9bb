// internal/agent/errors.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
)

// ErrorCode is a string type used for structured error reporting from action handlers.
// Using a custom type ensures that only predefined constants can be used where an
// ErrorCode is expected, preventing a class of bugs.
type ErrorCode string

const (
	// -- General Execution Errors --
	ErrCodeExecutionFailure  ErrorCode = "EXECUTION_FAILURE"
	ErrCodeInvalidParameters ErrorCode = "INVALID_PARAMETERS"
	ErrCodeUnknownAction     ErrorCode = "UNKNOWN_ACTION"
	ErrCodeUnsupported       ErrorCode = "UNSUPPORTED"

	// -- Browser/DOM Errors --
	ErrCodeElementNotFound ErrorCode = "ELEMENT_NOT_FOUND"
	ErrCodeTabNotFound     ErrorCode = "TAB_NOT_FOUND"
	ErrCodeTimeoutError    ErrorCode = "TIMEOUT_ERROR"
	ErrCodeNavigationError ErrorCode = "NAVIGATION_ERROR"

	// -- Internal System Errors --
	ErrCodeExecutorPanic ErrorCode = "EXECUTOR_PANIC"
)

// ActionError is a handler fault with a known classification.
type ActionError struct {
	Code ErrorCode
	Err  error
}

func (e *ActionError) Error() string { return e.Err.Error() }
func (e *ActionError) Unwrap() error { return e.Err }

func invalidParams(format string, args ...any) error {
	return &ActionError{Code: ErrCodeInvalidParameters, Err: fmt.Errorf(format, args...)}
}

// ClassifyActionError maps a handler error to an ErrorCode. Typed and sentinel
// errors are checked first; message heuristics cover driver errors that carry
// no type information.
func ClassifyActionError(err error) ErrorCode {
	var actionErr *ActionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &actionErr):
		return actionErr.Code
	case errors.Is(err, schemas.ErrElementNotFound):
		return ErrCodeElementNotFound
	case errors.Is(err, schemas.ErrTabNotFound):
		return ErrCodeTabNotFound
	case errors.Is(err, schemas.ErrUnsupported):
		return ErrCodeUnsupported
	case errors.Is(err, context.DeadlineExceeded):
		return ErrCodeTimeoutError
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "no element found"), strings.Contains(errStr, "could not find node"):
		return ErrCodeElementNotFound
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "timed out"):
		return ErrCodeTimeoutError
	case strings.Contains(errStr, "net::ERR"), strings.Contains(errStr, "navigation"):
		return ErrCodeNavigationError
	}
	return ErrCodeExecutionFailure
}
