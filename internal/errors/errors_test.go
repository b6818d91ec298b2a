package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

// TestErrorFormatting tests message formatting with and without a cause.
func TestErrorFormatting(t *testing.T) {
	bare := New(ErrSyncFailed, "pass aborted")
	if got := bare.Error(); got != "[SYNC_FAILED] pass aborted" {
		t.Errorf("Unexpected message: %q", got)
	}

	cause := fmt.Errorf("connection refused")
	wrapped := Wrap(ErrRemoteUnavailable, "insert failed", cause)
	if !strings.Contains(wrapped.Error(), "connection refused") {
		t.Errorf("Expected cause in message, got %q", wrapped.Error())
	}
}

// TestUnwrap tests that the cause chain survives wrapping.
func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	wrapped := Wrap(ErrDatabase, "query failed", cause)
	if !stderrors.Is(wrapped, cause) {
		t.Error("Expected errors.Is to find the cause")
	}
}

// TestIsCode tests code matching.
func TestIsCode(t *testing.T) {
	err := New(ErrWebhookInvalid, "missing url")
	if !Is(err, ErrWebhookInvalid) {
		t.Error("Expected matching code")
	}
	if Is(err, ErrDatabase) {
		t.Error("Expected non-matching code to report false")
	}
	if Is(fmt.Errorf("plain"), ErrDatabase) {
		t.Error("Expected plain error to report false")
	}
}
