package types

import "fmt"

// ErrorCode represents a unified error code across the pipeline.
type ErrorCode string

// Admission error codes. These are returned synchronously from Submit and
// never enter the batching pipeline.
const (
	ErrRejectedOverloaded      ErrorCode = "REJECTED_OVERLOADED"
	ErrRejectedRateLimited     ErrorCode = "REJECTED_RATE_LIMITED"
	ErrRejectedPayloadTooLarge ErrorCode = "REJECTED_PAYLOAD_TOO_LARGE"
	ErrModelNotFound           ErrorCode = "MODEL_NOT_FOUND"
)

// In-flight error codes. These are terminal outcomes delivered through a
// request's result sink.
const (
	ErrDeadlineExceeded ErrorCode = "DEADLINE_EXCEEDED"
	ErrWorkerTimeout    ErrorCode = "WORKER_TIMEOUT"
	ErrInternalContract ErrorCode = "INTERNAL_CONTRACT_ERROR"
	ErrModelError       ErrorCode = "MODEL_ERROR"
	ErrCancelled        ErrorCode = "CANCELLED"
	ErrShuttingDown     ErrorCode = "SHUTTING_DOWN"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Model     string    `json:"model,omitempty"`
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

// WithRetryable marks the error as retryable. Admission rejections are
// retryable from the caller's perspective; in-flight failures are not
// retried by the pipeline itself.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithModel sets the model identifier associated with the error.
func (e *Error) WithModel(model string) *Error {
	e.Model = model
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
