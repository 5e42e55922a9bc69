// Package errs defines the named error taxonomy of §7: sentinel errors
// wrapped with operation context, in the style of the teacher's
// core.FrameworkError.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors for comparison via errors.Is. Every "Kind" named in §7
// has exactly one sentinel here.
var (
	ErrInvalidSelection   = errors.New("invalid agent selection")
	ErrMissingDependency  = errors.New("missing dependency")
	ErrMalformedOutput    = errors.New("malformed agent output")
	ErrRateLimited        = errors.New("rate limited")
	ErrAgentTimeout       = errors.New("agent call timed out")
	ErrTurnTimeout        = errors.New("turn deadline exceeded")
	ErrStoreUnhealthy     = errors.New("vector store unhealthy")
	ErrPersistenceFailure = errors.New("conversation persistence failed")
	ErrTransport          = errors.New("transport error")

	ErrAgentNotFound    = errors.New("agent not found in registry")
	ErrCyclicDependency = errors.New("cyclic agent dependency")
)

// CoreError carries the operation and sentinel Kind the way the teacher's
// FrameworkError does, so callers can both errors.Is against the sentinel
// and log a human-readable Op/Message pair.
type CoreError struct {
	Op      string
	Kind    error
	Message string
}

func (e *CoreError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

func (e *CoreError) Unwrap() error { return e.Kind }

// Wrap builds a CoreError for op, classified as kind, with a human message.
func Wrap(op string, kind error, message string) error {
	return &CoreError{Op: op, Kind: kind, Message: message}
}

// Kind returns the name of the matching sentinel, for metadata.error.kind
// in the terminal event (§6), or "unknown" if err doesn't match a known kind.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSelection):
		return "invalid_selection"
	case errors.Is(err, ErrMissingDependency):
		return "missing_dependency"
	case errors.Is(err, ErrMalformedOutput):
		return "malformed_output"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrAgentTimeout):
		return "agent_timeout"
	case errors.Is(err, ErrTurnTimeout):
		return "turn_timeout"
	case errors.Is(err, ErrStoreUnhealthy):
		return "store_unhealthy"
	case errors.Is(err, ErrPersistenceFailure):
		return "persistence_failure"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}
