package query

import (
	"errors"
	"fmt"
)

// MalformedQueryError reports a query that cannot be issued.
// It is raised before any quota is reserved.
type MalformedQueryError struct {
	Target string
	Reason string
}

func (e *MalformedQueryError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("malformed query: %s", e.Reason)
	}
	return fmt.Sprintf("malformed query on %s: %s", e.Target, e.Reason)
}

// IsMalformedQuery reports whether err is a MalformedQueryError.
func IsMalformedQuery(err error) bool {
	var e *MalformedQueryError
	return errors.As(err, &e)
}

func malformed(target, reason string) *MalformedQueryError {
	return &MalformedQueryError{Target: target, Reason: reason}
}

// reason strips the wrapper so nested errors read as one sentence.
func reason(err error) string {
	var e *MalformedQueryError
	if errors.As(err, &e) {
		return e.Reason
	}
	return err.Error()
}
