package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tree-game-server/services"
	"tree-game-server/store"

	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"
)

func newTestAdmin(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	st := store.NewMemoryStore(clock)
	t.Cleanup(func() { st.Close() })
	out := &bytes.Buffer{}
	a := newApp(st, clock, "secret", out)
	a.accounts.BcryptCost = bcrypt.MinCost
	return a, out
}

func TestSeedAndSetAdmin(t *testing.T) {
	a, out := newTestAdmin(t)
	ctx := context.Background()

	if err := a.run(ctx, []string{"seed-weapons"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := a.accounts.Register(ctx, services.RegisterRequest{Name: "alice", Password: "hunter22"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := a.run(ctx, []string{"set-admin", "alice"}); err != nil {
		t.Fatalf("set-admin: %v", err)
	}
	if !strings.Contains(out.String(), "alice admin=true") {
		t.Fatalf("expected grant output, got %q", out.String())
	}
	if err := a.run(ctx, []string{"set-admin", "alice", "false"}); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if !strings.Contains(out.String(), "alice admin=false") {
		t.Fatalf("expected revoke output, got %q", out.String())
	}

	out.Reset()
	if err := a.run(ctx, []string{"list-users"}); err != nil {
		t.Fatalf("list-users: %v", err)
	}
	if !strings.Contains(out.String(), "alice") {
		t.Fatalf("expected alice in listing, got %q", out.String())
	}
}

func TestRunRejectsBadArguments(t *testing.T) {
	a, _ := newTestAdmin(t)
	ctx := context.Background()

	for _, args := range [][]string{nil, {"unknown"}, {"set-admin"}} {
		if err := a.run(ctx, args); !errors.Is(err, errUsage) {
			t.Fatalf("expected usage error for %v, got %v", args, err)
		}
	}
	if err := a.run(ctx, []string{"set-admin", "nobody"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown name, got %v", err)
	}
	if err := a.run(ctx, []string{"set-admin", "alice", "maybe"}); err == nil {
		t.Fatal("expected invalid flag error")
	}
}
