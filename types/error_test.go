package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorChaining(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrUpstreamError, "provider call failed").
		WithCause(cause).
		WithRetryable(true).
		WithProvider("openai")

	if !IsRetryable(err) {
		t.Error("expected retryable")
	}
	if GetErrorCode(err) != ErrUpstreamError {
		t.Errorf("code = %s", GetErrorCode(err))
	}
	if !errors.Is(err, cause) {
		t.Error("should unwrap to cause")
	}
}

func TestErrorFormatting(t *testing.T) {
	err := NewError(ErrEmptyDocument, "document has no content")
	want := "[EMPTY_DOCUMENT] document has no content"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrappedErrorHelpers(t *testing.T) {
	inner := NewError(ErrRateLimited, "too many requests").WithRetryable(true)
	wrapped := fmt.Errorf("retry exhausted after 3 attempts: %w", inner)

	if GetErrorCode(wrapped) != ErrRateLimited {
		t.Errorf("code = %s, want RATE_LIMITED", GetErrorCode(wrapped))
	}
	if !IsRetryable(wrapped) {
		t.Error("wrapped retryable error should stay retryable")
	}

	twice := fmt.Errorf("outer: %w", wrapped)
	if GetErrorCode(twice) != ErrRateLimited {
		t.Error("code should survive multiple wraps")
	}
}

func TestPlainErrorHelpers(t *testing.T) {
	plain := errors.New("plain")
	if IsRetryable(plain) {
		t.Error("plain error should not be retryable")
	}
	if GetErrorCode(plain) != "" {
		t.Error("plain error has no code")
	}
}
