// Package executor runs structured queries against a record store under
// the governor's query ceiling.
//
// There are no retries and no timeouts of its own: a failed store call is
// reported once, as *ExecutionError, and the caller's context carries any
// deadline.
package executor
