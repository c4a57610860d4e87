package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the knowledge base.
type ErrorCode string

// Provider error codes
const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrAuthentication      ErrorCode = "AUTHENTICATION"
	ErrRateLimited         ErrorCode = "RATE_LIMITED"
	ErrQuotaExceeded       ErrorCode = "QUOTA_EXCEEDED"
	ErrModelNotFound       ErrorCode = "MODEL_NOT_FOUND"
	ErrContextTooLong      ErrorCode = "CONTEXT_TOO_LONG"
	ErrContentFiltered     ErrorCode = "CONTENT_FILTERED"
	ErrTimeout             ErrorCode = "TIMEOUT"
	ErrUpstreamError       ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError       ErrorCode = "INTERNAL_ERROR"
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
)

// Agent error codes
const (
	ErrAgentNotFound    ErrorCode = "AGENT_NOT_FOUND"
	ErrAgentError       ErrorCode = "AGENT_ERROR"
	ErrAgentBusy        ErrorCode = "AGENT_BUSY"
	ErrUnknownRequest   ErrorCode = "UNKNOWN_REQUEST"
	ErrTaskFailed       ErrorCode = "TASK_FAILED"
	ErrResponseTimeout  ErrorCode = "RESPONSE_TIMEOUT"
	ErrProviderNotSet   ErrorCode = "PROVIDER_NOT_SET"
	ErrRecoveryExceeded ErrorCode = "RECOVERY_EXCEEDED"
)

// Pipeline error codes
const (
	ErrDocumentNotFound  ErrorCode = "DOCUMENT_NOT_FOUND"
	ErrChunkNotFound     ErrorCode = "CHUNK_NOT_FOUND"
	ErrEmptyDocument     ErrorCode = "EMPTY_DOCUMENT"
	ErrDimensionMismatch ErrorCode = "DIMENSION_MISMATCH"
	ErrStorageFailure    ErrorCode = "STORAGE_FAILURE"
	ErrStagingDisabled   ErrorCode = "STAGING_DISABLED"
	ErrTokenizerError    ErrorCode = "TOKENIZER_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
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

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// IsRetryable checks if an error (or any error it wraps) is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error, unwrapping as needed.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
