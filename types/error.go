package types

import "fmt"

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Tool error codes
const (
	ErrToolNotFound  ErrorCode = "TOOL_NOT_FOUND"
	ErrToolDuplicate ErrorCode = "TOOL_DUPLICATE"
	ErrToolExecution ErrorCode = "TOOL_EXECUTION"
	ErrToolTimeout   ErrorCode = "TOOL_TIMEOUT"
)

// Model-invocation error codes
const (
	ErrModelInvocation ErrorCode = "MODEL_INVOCATION"
	ErrEmptyResponse   ErrorCode = "EMPTY_RESPONSE"
	ErrRateLimited     ErrorCode = "RATE_LIMITED"
	ErrUpstreamTimeout ErrorCode = "UPSTREAM_TIMEOUT"
)

// Memory and plan error codes
const (
	ErrMemoryNotFound ErrorCode = "MEMORY_NOT_FOUND"
	ErrMemoryStore    ErrorCode = "MEMORY_STORE"
	ErrPlanBlocked    ErrorCode = "PLAN_BLOCKED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}
