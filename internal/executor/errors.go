package executor

import (
	"errors"
	"fmt"
)

// NotFoundError reports a FetchOne that matched no row.
type NotFoundError struct {
	Target string
	Query  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s record matches %s", e.Target, e.Query)
}

// MultipleResultsError reports a FetchOne that matched more than one row.
// Add Limit(1) to the query to take the first row instead.
type MultipleResultsError struct {
	Target string
	Count  int
}

func (e *MultipleResultsError) Error() string {
	return fmt.Sprintf("expected one %s record, got %d", e.Target, e.Count)
}

// ExecutionError wraps a failure of the record store itself. Quota denials
// are never wrapped in it.
type ExecutionError struct {
	Op     string
	Target string
	Cause  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s %s: store failure: %v", e.Op, e.Target, e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsMultipleResults reports whether err is a MultipleResultsError.
func IsMultipleResults(err error) bool {
	var e *MultipleResultsError
	return errors.As(err, &e)
}

// IsExecutionError reports whether err is an ExecutionError.
func IsExecutionError(err error) bool {
	var e *ExecutionError
	return errors.As(err, &e)
}
