// Package errors provides the structured error taxonomy shared by the
// reconciliation pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeTransientIO         ErrorCode = "TRANSIENT_IO"
	ErrCodeExtractionFailed    ErrorCode = "EXTRACTION_FAILED"
	ErrCodeAlreadyProcessed    ErrorCode = "ALREADY_PROCESSED"
	ErrCodeConfiguration       ErrorCode = "CONFIGURATION_ERROR"
	ErrCodePaymentNotFound     ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodeEmailNotFound       ErrorCode = "EMAIL_NOT_FOUND"
	ErrCodeDatabaseQueryFailed ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeInvalidPayload      ErrorCode = "INVALID_PAYLOAD"
	ErrCodeInternal            ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key to the error and returns it for chaining.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	e := &StandardError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// ==========================
// 2. Error Constructors
// ==========================

// NewTransientIOError wraps a mailbox or webhook I/O failure. Retried per policy.
func NewTransientIOError(operation string, err error) *StandardError {
	return newError(ErrCodeTransientIO, fmt.Sprintf("transient I/O failure during %s", operation), err, true)
}

// NewExtractionFailedError marks an email that yielded no payment signal.
func NewExtractionFailedError(details string) *StandardError {
	e := newError(ErrCodeExtractionFailed, "no payment signal extracted", nil, false)
	e.Details = details
	return e
}

// NewAlreadyProcessedError reports a no-op on a request or email that has
// already been settled.
func NewAlreadyProcessedError(details string) *StandardError {
	e := newError(ErrCodeAlreadyProcessed, "already processed", nil, false)
	e.Details = details
	return e
}

// NewConfigurationError is raised at startup for a component that cannot run.
func NewConfigurationError(component string, err error) *StandardError {
	return newError(ErrCodeConfiguration, fmt.Sprintf("invalid configuration for %s", component), err, false)
}

func NewPaymentNotFoundError(ref string) *StandardError {
	e := newError(ErrCodePaymentNotFound, "payment request not found", nil, false)
	e.Details = ref
	return e
}

func NewEmailNotFoundError(ref string) *StandardError {
	e := newError(ErrCodeEmailNotFound, "inbound email not found", nil, false)
	e.Details = ref
	return e
}

// NewDatabaseQueryFailedError creates a retryable database error.
func NewDatabaseQueryFailedError(queryType string, err error) *StandardError {
	return newError(ErrCodeDatabaseQueryFailed, fmt.Sprintf("database query failed: %s", queryType), err, true)
}

func NewInvalidPayloadError(details string) *StandardError {
	e := newError(ErrCodeInvalidPayload, "invalid payload", nil, false)
	e.Details = details
	return e
}

// ==========================
// 3. Utility Functions
// ==========================

// AsStandard returns the first StandardError in err's chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandard(err)
	return ok && stdErr.Code == code
}

// IsAlreadyProcessed is the check callers use to turn the no-op case into success.
func IsAlreadyProcessed(err error) bool {
	return HasCode(err, ErrCodeAlreadyProcessed)
}

// IsRetryable reports whether a queue job failing with err should be retried.
func IsRetryable(err error) bool {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Retryable
	}
	return false
}

// GetRetryCount returns the recommended retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeTransientIO, ErrCodeDatabaseQueryFailed:
		return 3
	default:
		return 0
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "IO"):
		return "TRANSPORT"
	case strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	case strings.Contains(codeStr, "EXTRACTION"):
		return "EXTRACTION"
	case strings.Contains(codeStr, "NOT_FOUND"), strings.Contains(codeStr, "ALREADY"):
		return "STATE"
	case strings.Contains(codeStr, "CONFIGURATION"), strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
