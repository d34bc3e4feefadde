package chat

import (
	"errors"
	"fmt"
	"testing"

	"github.com/TienThuan29/FreelanceIT-App-sub003/tools/errs"
)

func testClient(connID, userID string) *Client {
	c := NewClient(connID, nil, 8)
	c.UserID = userID
	return c
}

func TestRegistryPresenceFollowsConnectionCount(t *testing.T) {
	r := NewRegistry(5)

	if r.IsOnline("u1") {
		t.Fatal("user online before any connection")
	}

	c1 := testClient("c1", "u1")
	c2 := testClient("c2", "u1")
	first, err := r.Register(c1)
	if err != nil || !first {
		t.Fatalf("Register c1: first=%v err=%v", first, err)
	}
	first, err = r.Register(c2)
	if err != nil || first {
		t.Fatalf("Register c2: first=%v err=%v", first, err)
	}
	if !r.IsOnline("u1") {
		t.Fatal("user offline with two live connections")
	}

	if remaining := r.Unregister(c1); remaining != 1 {
		t.Fatalf("remaining = %d, want 1", remaining)
	}
	if !r.IsOnline("u1") {
		t.Fatal("user offline with one live connection")
	}
	if remaining := r.Unregister(c2); remaining != 0 {
		t.Fatalf("remaining = %d, want 0", remaining)
	}
	if r.IsOnline("u1") {
		t.Fatal("user still online with zero connections")
	}
}

func TestRegistryConnectionLimit(t *testing.T) {
	r := NewRegistry(5)
	for i := 0; i < 5; i++ {
		if _, err := r.Register(testClient(fmt.Sprintf("c%d", i), "u1")); err != nil {
			t.Fatalf("connection %d rejected: %v", i, err)
		}
	}

	_, err := r.Register(testClient("c5", "u1"))
	if !errors.Is(err, errs.ErrConnectionLimit) {
		t.Fatalf("6th connection: err = %v, want ErrConnectionLimit", err)
	}
	// The rejected connection must not have been registered.
	if got := len(r.Connections("u1")); got != 5 {
		t.Fatalf("live connections = %d, want 5", got)
	}
}

func TestRegistryLimitIsPerUser(t *testing.T) {
	r := NewRegistry(1)
	if _, err := r.Register(testClient("c1", "u1")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Register(testClient("c2", "u2")); err != nil {
		t.Fatalf("other user's connection rejected: %v", err)
	}
}

func TestRegistryOnlineUsers(t *testing.T) {
	r := NewRegistry(5)
	_, _ = r.Register(testClient("c1", "u1"))
	_, _ = r.Register(testClient("c2", "u2"))

	online := r.OnlineUsers()
	if len(online) != 2 {
		t.Fatalf("OnlineUsers = %v, want 2 users", online)
	}
}

func TestRegistryUnregisterUnknownConnIsNoop(t *testing.T) {
	r := NewRegistry(5)
	c := testClient("c1", "u1")
	_, _ = r.Register(c)
	r.Unregister(c)
	if remaining := r.Unregister(c); remaining != 0 {
		t.Fatalf("double unregister: remaining = %d", remaining)
	}
}

func TestRegistrySweepZero(t *testing.T) {
	r := NewRegistry(5)
	c := testClient("c1", "u1")
	_, _ = r.Register(c)
	r.Unregister(c)

	if n := r.SweepZero(); n != 1 {
		t.Fatalf("SweepZero = %d, want 1", n)
	}
	// Sweeping must not affect users with live connections.
	_, _ = r.Register(testClient("c2", "u2"))
	if n := r.SweepZero(); n != 0 {
		t.Fatalf("SweepZero with live user = %d, want 0", n)
	}
	if !r.IsOnline("u2") {
		t.Fatal("live user swept")
	}
}
