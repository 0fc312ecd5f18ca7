package batch

import (
	"errors"
	"fmt"

	"github.com/roach88/bulkstore/internal/store"
)

// ConflictingOperationError reports a record enqueued under two different
// write kinds in the same unit of work.
type ConflictingOperationError struct {
	Collection string
	Identity   string
	Pending    store.Kind
	Requested  store.Kind
}

func (e *ConflictingOperationError) Error() string {
	return fmt.Sprintf("%s %s already pending as %s, cannot enqueue %s",
		e.Collection, e.Identity, e.Pending, e.Requested)
}

// IsConflictingOperation reports whether err is a ConflictingOperationError.
func IsConflictingOperation(err error) bool {
	var e *ConflictingOperationError
	return errors.As(err, &e)
}

// ExecutionError reports a bulk write call that failed as a whole.
type ExecutionError struct {
	Collection string
	Kind       store.Kind
	Cause      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("bulk %s %s: store failure: %v", e.Kind, e.Collection, e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// IsExecutionError reports whether err is an ExecutionError.
func IsExecutionError(err error) bool {
	var e *ExecutionError
	return errors.As(err, &e)
}
