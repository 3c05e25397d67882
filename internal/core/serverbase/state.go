// SPDX-License-Identifier: MPL-2.0

package serverbase

import (
	"errors"
	"fmt"
)

const (
	// StateCreated is the initial state: the server exists but Start was
	// never called.
	StateCreated State = iota
	// StateStarting means Start was called and the listener is being set up.
	StateStarting
	// StateRunning means the server is accepting connections.
	StateRunning
	// StateStopping means Stop was called and shutdown is in progress.
	StateStopping
	// StateStopped is terminal: shutdown completed.
	StateStopped
	// StateFailed is terminal: startup failed or a fatal serve error occurred.
	StateFailed
)

// ErrInvalidState is the sentinel wrapped by InvalidStateError.
var ErrInvalidState = errors.New("invalid state")

type (
	// State is a position in the server lifecycle. The zero value is
	// StateCreated.
	State int32

	// InvalidStateError reports a State value outside the lifecycle set.
	InvalidStateError struct {
		Value State
	}
)

// String returns the lowercase name of the state, or "unknown" for values
// outside the lifecycle set.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsValid returns whether the State is one of the defined lifecycle states,
// with an InvalidStateError for any value outside the set.
func (s State) IsValid() (bool, []error) {
	switch s {
	case StateCreated, StateStarting, StateRunning, StateStopping, StateStopped, StateFailed:
		return true, nil
	default:
		return false, []error{&InvalidStateError{Value: s}}
	}
}

// Error implements the error interface for InvalidStateError.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state %d (valid states are 0-5, created through failed)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}
