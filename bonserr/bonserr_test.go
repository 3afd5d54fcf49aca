package bonserr

import (
	"errors"
	"testing"
)

func TestErrorMessageIncludesCode(t *testing.T) {
	err := New(AmountMustBePositive, "amount was -5")
	if got := err.Error(); got != "AMOUNT_MUST_BE_POSITIVE: amount was -5" {
		t.Fatalf("got %q", got)
	}
}

func TestIsMatchesOnCodeOnly(t *testing.T) {
	err := New(PaymentNotFound, "payment 42 not found in project 7")
	if !errors.Is(err, New(PaymentNotFound, "")) {
		t.Fatalf("expected errors.Is to match on Code regardless of Message")
	}
	if errors.Is(err, New(ProjectNotFound, "")) {
		t.Fatalf("expected errors.Is to not match a different Code")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(DatabaseError, cause)
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is(err, cause) to hold via Unwrap")
	}
	if err.Code != DatabaseError {
		t.Fatalf("Code = %s, want DATABASE_ERROR", err.Code)
	}
}
