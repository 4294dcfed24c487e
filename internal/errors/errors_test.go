package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapKeepsCodeThroughFmtWrapping(t *testing.T) {
	cause := stdErrors.New("dial tcp: connection refused")
	err := fmt.Errorf("lookup: %w", Wrap(CodeStoreUnavailable, cause, "连接 Redis 失败"))

	if CodeOf(err) != CodeStoreUnavailable {
		t.Fatalf("unexpected code: %s", CodeOf(err))
	}
	if !HasCode(err, CodeStoreUnavailable) {
		t.Fatalf("expected HasCode to match")
	}
	if HasCode(err, CodeStateNotFound) {
		t.Fatalf("unexpected match for other code")
	}
	if !stdErrors.Is(err, cause) {
		t.Fatalf("cause should stay reachable through Unwrap")
	}
	if !RetryableError(err) {
		t.Fatalf("store unavailable should be retryable by default")
	}
}

func TestNewFallsBackToRegisteredMessage(t *testing.T) {
	err := New(CodeJobNotFound, "")
	if err.Message() != "no indexing job on record" {
		t.Fatalf("unexpected message: %q", err.Message())
	}
	if err.Severity() != SeverityInfo {
		t.Fatalf("unexpected severity: %s", err.Severity())
	}
}

func TestOptionsOverrideDefaults(t *testing.T) {
	err := New(CodeBackendStatus, "boom", WithRetryable(false), WithSeverity(SeverityCritical), WithMetadata("provider", "openai"))
	if err.Retryable() {
		t.Fatalf("retryable override ignored")
	}
	if err.Severity() != SeverityCritical {
		t.Fatalf("severity override ignored")
	}
	if err.Metadata()["provider"] != "openai" {
		t.Fatalf("metadata missing: %+v", err.Metadata())
	}
}

func TestUserMessageIncludesReason(t *testing.T) {
	err := New(CodeBackendAuthentication, "openai authentication failed", WithMetadata("reason", "Incorrect API key provided"))
	got := UserMessage(fmt.Errorf("generate: %w", err))
	want := "openai authentication failed: Incorrect API key provided"
	if got != want {
		t.Fatalf("unexpected user message: got %q want %q", got, want)
	}

	plain := stdErrors.New("plain failure")
	if UserMessage(plain) != "plain failure" {
		t.Fatalf("plain errors should pass through")
	}
	if UserMessage(nil) != "" {
		t.Fatalf("nil error should produce empty message")
	}
}

func TestAttributesOfUnknownCode(t *testing.T) {
	attr := AttributesOf(Code("NOT_REGISTERED"))
	if attr.Message != "unknown error" {
		t.Fatalf("expected unknown fallback, got %+v", attr)
	}
}
