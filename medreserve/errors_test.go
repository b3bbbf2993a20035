package medreserve

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewInvalidArgument_setsCodeAndMessage(t *testing.T) {
	err := NewInvalidArgument("bad input")
	if err.Code != StatusInvalidArgument {
		t.Errorf("expected StatusInvalidArgument, got %v", err.Code)
	}
	if err.Message != "bad input" {
		t.Errorf("expected 'bad input', got %q", err.Message)
	}
}

func TestNewFailedPreconditionf_formatsMessage(t *testing.T) {
	err := NewFailedPreconditionf("item %s not found", "abc")
	if err.Code != StatusFailedPrecondition {
		t.Errorf("expected StatusFailedPrecondition, got %v", err.Code)
	}
	if err.Message != "item abc not found" {
		t.Errorf("expected 'item abc not found', got %q", err.Message)
	}
}

func TestCommandError_Error_prefixesResource(t *testing.T) {
	err := NewInsufficientStock("medicine:m1", 4, 5)
	want := "medicine:m1: insufficient stock: available 4, requested 5"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestCommandError_Error_withoutResource(t *testing.T) {
	err := NewInvalidArgument("test message")
	if err.Error() != "test message" {
		t.Errorf("expected 'test message', got %q", err.Error())
	}
}

func TestCommandError_Is_matchesSentinelByCode(t *testing.T) {
	wrapped := fmt.Errorf("create reservation: %w", NewExpired("reservation:r1", "hold expired"))

	if !errors.Is(wrapped, ErrExpired) {
		t.Error("expected wrapped error to match ErrExpired")
	}
	if errors.Is(wrapped, ErrForbidden) {
		t.Error("expected wrapped error not to match ErrForbidden")
	}
}

func TestAsCommandError_nonCommandError(t *testing.T) {
	if AsCommandError(errors.New("boom")) != nil {
		t.Error("expected nil for plain error")
	}
	if _, ok := CodeOf(errors.New("boom")); ok {
		t.Error("expected CodeOf to report false for plain error")
	}
}

func TestIsTransitionRejected(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{NewInvalidState("r", "not pending"), true},
		{NewAlreadyTerminal("r", "cancelled"), true},
		{NewExpired("r", "late"), false},
		{errors.New("db down"), false},
	}
	for _, tt := range tests {
		if got := IsTransitionRejected(tt.err); got != tt.want {
			t.Errorf("IsTransitionRejected(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestStatusCode_String_returnsLabel(t *testing.T) {
	tests := []struct {
		code StatusCode
		want string
	}{
		{StatusInvalidArgument, "INVALID_ARGUMENT"},
		{StatusFailedPrecondition, "FAILED_PRECONDITION"},
		{StatusInsufficientStock, "INSUFFICIENT_STOCK"},
		{StatusAlreadyTerminal, "ALREADY_TERMINAL"},
		{StatusInvalidQuantity, "INVALID_QUANTITY"},
		{StatusCode(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("StatusCode(%d).String() = %q, want %q", tt.code, got, tt.want)
		}
	}
}
