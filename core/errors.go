package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParams is returned when an action carries fewer arguments than
	// requested or an operation receives malformed parameters.
	ErrInvalidParams = fmt.Errorf("invalid params")

	// ErrInvalidType is returned when an element has a different type than
	// the operation requires (e.g. a plain node where a structure is needed).
	ErrInvalidType = fmt.Errorf("invalid type")

	// ErrNotFound is returned when an address or identifier is unknown.
	ErrNotFound = fmt.Errorf("element not found")

	// ErrNoResult is returned when an action has no attached result structure.
	ErrNoResult = fmt.Errorf("action has no result")

	// ErrAlreadyFinished is returned by a second attempt to finish an action.
	ErrAlreadyFinished = fmt.Errorf("action already finished")

	// ErrAlreadyStarted is returned when starting a running server.
	ErrAlreadyStarted = fmt.Errorf("server already started")

	// ErrNotStarted is returned when an operation needs a running server.
	ErrNotStarted = fmt.Errorf("server not started")

	// ErrDuplicateAgent is returned when two agents claim the same event type
	// and anchor within one server.
	ErrDuplicateAgent = fmt.Errorf("agent already registered for event and anchor")

	// ErrConnection wraps failures to reach or open the knowledge store.
	ErrConnection = fmt.Errorf("store connection failure")

	// ErrClosed is returned by a store after Close.
	ErrClosed = fmt.Errorf("store closed")
)

// ResultFromError maps sentinel errors to handler results so agents can
// return the outcome of a failed lookup directly.
func ResultFromError(err error) Result {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrInvalidParams):
		return ResultInvalidParams
	case errors.Is(err, ErrInvalidType):
		return ResultInvalidType
	default:
		return ResultError
	}
}
