package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/bulkstore/internal/batch"
	"github.com/roach88/bulkstore/internal/domain"
	"github.com/roach88/bulkstore/internal/executor"
	"github.com/roach88/bulkstore/internal/governor"
	"github.com/roach88/bulkstore/internal/ir"
	"github.com/roach88/bulkstore/internal/query"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The data layer refused or failed the operation
	ExitCommandError = 2 // Bad flags, configuration or input files
)

// Error codes reported in CLIError.Code.
const (
	CodeConfig       = "E001" // configuration, flags or input files
	CodeInput        = "E002" // entity validation
	CodeMalformed    = "E003" // malformed query
	CodeQuota        = "E004" // governor ceiling reached
	CodeNotFound     = "E005" // cardinality: no record
	CodeCardinality  = "E006" // cardinality: more than one record
	CodeConflict     = "E007" // conflicting queued writes
	CodeStore        = "E008" // record store failure
	CodeTypeMismatch = "E009" // record field has an unexpected kind
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode classifies err into one of the Code constants. Quota denials
// get their own code so "did not batch" reads differently from "store
// unavailable".
func ErrorCode(err error) string {
	switch {
	case governor.IsQuotaExceeded(err):
		return CodeQuota
	case query.IsMalformedQuery(err):
		return CodeMalformed
	case executor.IsNotFound(err):
		return CodeNotFound
	case executor.IsMultipleResults(err):
		return CodeCardinality
	case batch.IsConflictingOperation(err):
		return CodeConflict
	case ir.IsFieldTypeMismatch(err):
		return CodeTypeMismatch
	case domain.IsValidation(err):
		return CodeInput
	case executor.IsExecutionError(err), batch.IsExecutionError(err):
		return CodeStore
	}
	if GetExitCode(err) == ExitCommandError {
		return CodeConfig
	}
	return CodeStore
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format. Text
// output uses the payload's String method when it has one.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	if s, ok := data.(fmt.Stringer); ok {
		_, err := fmt.Fprintln(f.Writer, s.String())
		return err
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err through Error and returns it as an ExitError. Errors
// that already carry an exit code keep it.
func (f *OutputFormatter) Fail(message string, err error, details any) error {
	code := ErrorCode(err)
	if outErr := f.Error(code, fmt.Sprintf("%s: %v", message, err), details); outErr != nil {
		return outErr
	}
	exit := ExitFailure
	if code == CodeConfig || code == CodeInput {
		exit = ExitCommandError
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		exit = exitErr.Code
	}
	return WrapExitError(exit, message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
