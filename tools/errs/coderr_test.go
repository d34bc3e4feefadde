package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := ErrConnectionLimit.WithDetail("user=u1")
	if !errors.Is(err, ErrConnectionLimit) {
		t.Fatal("WithDetail broke sentinel matching")
	}
	if errors.Is(err, ErrNotParticipant) {
		t.Fatal("matched a different code")
	}

	wrapped := fmt.Errorf("register: %w", err)
	if !errors.Is(wrapped, ErrConnectionLimit) {
		t.Fatal("wrapping broke sentinel matching")
	}
}

func TestWithDetailDoesNotMutateSentinel(t *testing.T) {
	_ = ErrAuthFailed.WithDetail("token expired")
	if ErrAuthFailed.Detail != "" {
		t.Fatal("sentinel mutated by WithDetail")
	}
	chained := ErrAuthFailed.WithDetail("a").WithDetail("b")
	if chained.Detail != "a, b" {
		t.Fatalf("detail = %q", chained.Detail)
	}
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ErrConversationNotFound)
	ce := CodeOf(wrapped)
	if ce == nil || ce.Code != ErrConversationNotFound.Code {
		t.Fatalf("CodeOf = %+v", ce)
	}
	if CodeOf(errors.New("plain")) != nil {
		t.Fatal("CodeOf matched a plain error")
	}
}

func TestWrapMsg(t *testing.T) {
	if WrapMsg(nil, "noop") != nil {
		t.Fatal("WrapMsg(nil) must be nil")
	}
	err := WrapMsg(errors.New("boom"), "load conversation", "id", "c1")
	want := "load conversation, id=c1: boom"
	if err.Error() != want {
		t.Fatalf("err = %q, want %q", err.Error(), want)
	}
}
