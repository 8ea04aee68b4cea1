// Package errors defines the error kinds shared across the cumulus scheduler core.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the cumulus core, mapping onto the five error kinds of the
// scheduler design: InvariantViolation, ResourceExhaustion,
// RecoverableDataError, Rejected, and CycleDetected.
const (
	CodeUnknown            = "UNKNOWN_ERROR"
	CodeInvariantViolation = "INVARIANT_VIOLATION"
	CodeResourceExhaustion = "RESOURCE_EXHAUSTION"
	CodeRecoverableDataErr = "RECOVERABLE_DATA_ERROR"
	CodeRejected           = "REJECTED"
	CodeCycleDetected      = "CYCLE_DETECTED"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeTimeout            = "TIMEOUT_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeConfigError        = "CONFIG_ERROR"
)

// AppError represents a cumulus core error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target by code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// Common error instances.
var (
	// ErrInvariantViolation marks an impossible internal state. Callers are
	// expected to abort the process after logging; it is never retried.
	ErrInvariantViolation = New(CodeInvariantViolation, "invariant violation")

	// ErrResourceExhaustion marks an out-of-disk or out-of-memory condition.
	// Out-of-disk is always fatal per the durability contract.
	ErrResourceExhaustion = New(CodeResourceExhaustion, "resource exhaustion")

	// ErrRecoverableDataError marks a checksum mismatch or truncated read
	// that stopped a log replay early; it is not fatal.
	ErrRecoverableDataError = New(CodeRecoverableDataErr, "recoverable data error")

	// ErrRejected marks an operation attempted in the wrong phase, such as
	// appending to a sealed ForaValueArray.
	ErrRejected = New(CodeRejected, "operation rejected")

	// ErrCycleDetected marks a dependency cycle. Not fatal: the cycle is
	// tagged circular (or replaced with a sentinel) and computation continues.
	ErrCycleDetected = New(CodeCycleDetected, "cycle detected")

	ErrInvalidInput = New(CodeInvalidInput, "invalid input")
	ErrTimeout      = New(CodeTimeout, "operation timeout")
	ErrNotFound     = New(CodeNotFound, "resource not found")
	ErrConfigError  = New(CodeConfigError, "configuration error")
)

// IsInvariantViolation reports whether err is (or wraps) an invariant violation.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}

// IsResourceExhaustion reports whether err is (or wraps) a resource exhaustion error.
func IsResourceExhaustion(err error) bool {
	return errors.Is(err, ErrResourceExhaustion)
}

// IsRecoverableDataError reports whether err is (or wraps) a recoverable data error.
func IsRecoverableDataError(err error) bool {
	return errors.Is(err, ErrRecoverableDataError)
}

// IsRejected reports whether err is (or wraps) a rejected-operation error.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}

// IsCycleDetected reports whether err is (or wraps) a cycle-detected error.
func IsCycleDetected(err error) bool {
	return errors.Is(err, ErrCycleDetected)
}

// GetErrorCode extracts the error code from an error, or CodeUnknown.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the human-readable message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
