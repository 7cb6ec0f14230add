package errs

import (
	"errors"
	"testing"
)

func TestCodeErrorIs(t *testing.T) {
	err := ErrConflict.WrapMsg("message already deleted", "message_id", "m1")
	if !ErrConflict.Is(err) {
		t.Fatalf("wrapped conflict should match ErrConflict: %v", err)
	}
	if ErrValidation.Is(err) {
		t.Fatalf("conflict must not match validation: %v", err)
	}
}

func TestNotMemberIsForbidden(t *testing.T) {
	err := ErrNotMember.WrapMsg("not a member", "user_id", "u2")
	if !ErrForbidden.Is(err) {
		t.Fatalf("NotMember should specialize Forbidden: %v", err)
	}
	if !ErrNotMember.Is(err) {
		t.Fatalf("NotMember should match itself: %v", err)
	}
	// the relation is one-way
	if ErrNotMember.Is(ErrForbidden.Wrap()) {
		t.Fatalf("plain Forbidden must not match NotMember")
	}
}

func TestWithDetail(t *testing.T) {
	e := ErrValidation.WithDetail("name is empty")
	e = e.WithDetail("after trimming")
	if e.Detail != "name is empty, after trimming" {
		t.Fatalf("unexpected detail: %q", e.Detail)
	}
	if e.Code != ValidationErrorCode {
		t.Fatalf("detail must not change the code")
	}
}

func TestUnwrapReachesCodeError(t *testing.T) {
	err := ErrNotFound.WrapMsg("no such message")
	var ce *CodeError
	if !errors.As(Unwrap(err), &ce) {
		t.Fatalf("Unwrap should surface the CodeError: %v", err)
	}
	if ce.Code != NotFoundErrorCode {
		t.Fatalf("code = %d, want %d", ce.Code, NotFoundErrorCode)
	}
}
