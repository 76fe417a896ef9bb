package schemas

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Environment implementations.
var (
	ErrElementNotFound = errors.New("element not found")
	ErrTabNotFound     = errors.New("tab not found")
	ErrUnsupported     = errors.New("operation not supported by environment")
)

// TransportError reports that the decision-maker could not be reached or returned
// an unusable response. Provider is the configured LLM provider name.
type TransportError struct {
	Provider   string
	StatusCode int // Zero when no HTTP response was received.
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s transport error (status %d): %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s transport error: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
