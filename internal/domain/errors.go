package domain

import "errors"

// Validation errors: bad caller input, nothing was mutated.
var (
	ErrInvalidTaskType  = errors.New("invalid task type")
	ErrEmptyPayload     = errors.New("payload is empty")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrCapacityExceeded = errors.New("task store capacity exceeded")
)

// ErrPreconditionFailed is returned when an operation is not allowed in the
// current state, e.g. changing worker settings while it runs.
var ErrPreconditionFailed = errors.New("precondition failed")

// Invariant violations. Seeing one of these means the queue and the store
// disagree; the worker loop logs and skips instead of stopping.
var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("task already queued")
	ErrTerminal       = errors.New("task is in a terminal state")
)

// IsValidation reports whether err is caller input the boundary rejected.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidTaskType) ||
		errors.Is(err, ErrEmptyPayload) ||
		errors.Is(err, ErrInvalidArgument)
}
