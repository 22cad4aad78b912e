package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrEmptySelection occurs when an action needs at least one selected row.
	ErrEmptySelection = errors.New("empty selection")
	// ErrInvalidTransition indicates a lot state change that is not allowed from the current state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrBackendUnavailable wraps transport or storage failures behind a port.
	ErrBackendUnavailable = errors.New("backend unavailable")
)

// BackendError records which port operation failed.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrBackendUnavailable, e.Op, e.Err)
}

// Unwrap exposes the underlying failure.
func (e *BackendError) Unwrap() error { return e.Err }

// Is matches ErrBackendUnavailable so callers can use errors.Is.
func (e *BackendError) Is(target error) bool { return target == ErrBackendUnavailable }

// BackendFailure wraps an error returned by a port. Domain sentinels reported
// by the backend (not found, invalid transition) are passed through untouched.
func BackendFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return &BackendError{Op: op, Err: err}
}
