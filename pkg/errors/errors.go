// Package errors provides structured errors carrying a machine-readable code,
// an optional cause and free-form context such as raw remote diagnostics.
//
// Every failure the koa core reports is a *StructuredError so callers can
// branch on the code instead of matching message text:
//
//	res, err := sub.Submit(ctx, "train.slurm", o, p)
//	if errors.Is(err, errors.ErrCodeRemoteRejected) {
//	    fmt.Println(errors.ContextString(err, errors.ContextStderr))
//	}
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies a failure class.
type ErrorCode string

const (
	// ErrCodeConfigurationMissing means no usable connection profile was found.
	ErrCodeConfigurationMissing ErrorCode = "CONFIGURATION_MISSING"

	// ErrCodeTransportFailure covers process spawn failures, ssh connection
	// failures (exit 255) and a failed connectivity check.
	ErrCodeTransportFailure ErrorCode = "TRANSPORT_FAILURE"

	// ErrCodeAmbiguousGPURequest means GPUs were requested with neither an
	// explicit type nor auto-selection.
	ErrCodeAmbiguousGPURequest ErrorCode = "AMBIGUOUS_GPU_REQUEST"

	// ErrCodeNoGPUAvailable means auto-selection found no tier available.
	ErrCodeNoGPUAvailable ErrorCode = "NO_GPU_AVAILABLE"

	// ErrCodeRemoteRejected means a remote tool ran and exited non-zero.
	ErrCodeRemoteRejected ErrorCode = "REMOTE_REJECTED"

	// ErrCodeUnparseableResponse means remote output did not match the expected grammar.
	ErrCodeUnparseableResponse ErrorCode = "UNPARSEABLE_RESPONSE"

	// ErrCodeInvalidRequest is a local precondition violation.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"

	// ErrCodeTimeout means an external call exceeded its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeCanceled means the operation was interrupted before it finished.
	ErrCodeCanceled ErrorCode = "CANCELED"

	// ErrCodeInternal is an unexpected local failure.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Context keys used for raw diagnostics.
const (
	ContextStdout   = "stdout"
	ContextStderr   = "stderr"
	ContextExitCode = "exit_code"
	ContextCommand  = "command"
)

// StructuredError is an error with a code, message, optional cause and context.
type StructuredError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// New creates a StructuredError without a cause.
func New(code ErrorCode, message string) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a StructuredError wrapping cause.
func Wrap(code ErrorCode, message string, cause error) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithContext creates a StructuredError wrapping cause with additional context.
// cause may be nil.
func WrapWithContext(code ErrorCode, message string, cause error, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: context,
	}
}

// NewWithContext creates a StructuredError with context and no cause.
func NewWithContext(code ErrorCode, message string, context map[string]any) *StructuredError {
	return WrapWithContext(code, message, nil, context)
}

// CodeOf returns the code of the outermost StructuredError in err's chain,
// or an empty code when there is none.
func CodeOf(err error) ErrorCode {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

// ContextString returns the string context value stored under key, if any.
func ContextString(err error, key string) string {
	var se *StructuredError
	if !stderrors.As(err, &se) || se.Context == nil {
		return ""
	}
	s, _ := se.Context[key].(string)
	return s
}
