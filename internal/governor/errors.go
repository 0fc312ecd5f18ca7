package governor

import (
	"errors"
	"fmt"
)

// QuotaExceededError is returned when a reservation would pass a ceiling.
//
// It signals a design defect in the caller (work that was not batched),
// not a transient condition; it is never retried and never wrapped as a
// store failure.
type QuotaExceededError struct {
	Kind  Kind   // Resource that ran out
	Limit int    // Ceiling that was reached
	Scope string // Transaction scope token
}

// Error implements the error interface.
func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("scope %s exceeded %s quota: limit %d", e.Scope, e.Kind, e.Limit)
}

// IsQuotaExceeded returns true if the error is a QuotaExceededError.
// Uses errors.As to handle wrapped errors.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}
