package model

import "errors"

var (
	// ErrPreconditionFailed is returned when an operation is attempted in a
	// state that forbids it, e.g. acknowledging a batch that is not at the
	// head of the queue or releasing a query that was never allocated.
	ErrPreconditionFailed = errors.New("precondition failed")
	// ErrInvalidPath is returned when a resource path is malformed
	ErrInvalidPath = errors.New("invalid resource path")
	// ErrInvalidQuery is returned when a query is malformed
	ErrInvalidQuery = errors.New("invalid query")
	// ErrCorruption is returned when persisted state fails an invariant check
	ErrCorruption = errors.New("local store corruption")
)
