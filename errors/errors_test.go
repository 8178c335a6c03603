package errors

import (
	"fmt"
	"testing"
)

func TestError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeInvalidQuery, "bad query")
	if err.Code != ErrCodeInvalidQuery {
		t.Errorf("expected code %s, got %s", ErrCodeInvalidQuery, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("dial tcp: connection refused")
	wrapped := Wrap(cause, ErrCodeConnectivity, "cannot reach")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	if !Is(wrapped, ErrCodeConnectivity) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodePermissionDenied) {
		t.Error("Is should return false for non-matching code")
	}

	detailed := err.WithDetail("collection", "ngos")
	if detailed.Details["collection"] != "ngos" {
		t.Error("WithDetail should add details")
	}
}

func TestIsThroughFmtWrap(t *testing.T) {
	inner := PermissionDenied("ngos", nil)
	outer := fmt.Errorf("subscribe: %w", inner)

	if !Is(outer, ErrCodePermissionDenied) {
		t.Error("Is should see codes wrapped with %w")
	}
	if GetCode(outer) != ErrCodePermissionDenied {
		t.Errorf("expected code %s, got %s", ErrCodePermissionDenied, GetCode(outer))
	}
	if Message(outer) != "access to collection 'ngos' denied" {
		t.Errorf("unexpected message %q", Message(outer))
	}
}

func TestIsNestedCodes(t *testing.T) {
	err := Connectivity("events", MalformedRecord("42", nil))

	if !Is(err, ErrCodeConnectivity) {
		t.Error("outer code should match")
	}
	if !Is(err, ErrCodeMalformedRecord) {
		t.Error("nested code should match")
	}
	if GetCode(err) != ErrCodeConnectivity {
		t.Errorf("GetCode should report the outermost code, got %s", GetCode(err))
	}
}

func TestErrorConstructors(t *testing.T) {
	err := Connectivity("ngos", fmt.Errorf("eof"))
	if err.Code != ErrCodeConnectivity {
		t.Errorf("expected code %s, got %s", ErrCodeConnectivity, err.Code)
	}
	if err.Details["collection"] != "ngos" {
		t.Error("Connectivity should include collection detail")
	}

	err = MalformedRecord("7", nil)
	if err.Details["id"] != "7" {
		t.Error("MalformedRecord should include id detail")
	}

	err = InvalidTransition("ready", "retry")
	if err.Message != "cannot retry while ready" {
		t.Errorf("unexpected message %q", err.Message)
	}
}

func TestNilHandling(t *testing.T) {
	if Is(nil, ErrCodeInternal) {
		t.Error("nil is never a coded error")
	}
	if GetCode(nil) != "" {
		t.Error("nil has no code")
	}
	if GetCode(fmt.Errorf("plain")) != "" {
		t.Error("plain errors have no code")
	}
}
