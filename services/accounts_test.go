package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tree-game-server/store"

	"golang.org/x/crypto/bcrypt"
)

func (e *testEnv) accounts(admins ...string) *AccountService {
	a := NewAccountService(e.ledger, e.clock, []byte("test-secret"), NewAdminPolicy(admins))
	a.BcryptCost = bcrypt.MinCost
	return a
}

func TestAdminPolicy(t *testing.T) {
	p := NewAdminPolicy([]string{" Boss@Example.com ", ""})
	if !p.IsAdmin("boss@example.com") || !p.IsAdmin("BOSS@example.COM") {
		t.Fatal("expected case-insensitive admin match")
	}
	if p.IsAdmin("") || p.IsAdmin("other@example.com") {
		t.Fatal("expected non-admins rejected")
	}
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)
	a := env.accounts()
	ctx := context.Background()

	sess, err := a.Register(ctx, RegisterRequest{Name: "  Lumberjack ", Password: "hunter22"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sess.Account.DisplayName != "Lumberjack" || sess.Account.Gold != 500 {
		t.Fatalf("expected fresh account named Lumberjack with 500 gold, got %+v", sess.Account)
	}
	if sess.Account.PasswordHash != "" {
		t.Fatal("session leaked the password hash")
	}

	stored := env.account(t, sess.Account.ID)
	if stored.PasswordHash == "" || stored.PasswordHash == "hunter22" {
		t.Fatal("expected a bcrypt hash to be stored")
	}

	env.clock.Advance(time.Hour)
	again, err := a.Login(ctx, "LUMBERJACK", "hunter22")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if again.Account.ID != sess.Account.ID {
		t.Fatalf("expected the same account, got %s vs %s", again.Account.ID, sess.Account.ID)
	}
	if !env.account(t, sess.Account.ID).LastLogin.Equal(env.clock.Now()) {
		t.Fatal("expected login to stamp LastLogin")
	}
	if again.SessionID == sess.SessionID {
		t.Fatal("expected a new session id per login")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	a := env.accounts()
	ctx := context.Background()
	_, _ = a.Register(ctx, RegisterRequest{Name: "alice", Password: "secret1"})

	if _, err := a.Login(ctx, "alice", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := a.Login(ctx, "nobody", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown name, got %v", err)
	}
}

func TestRegisterValidates(t *testing.T) {
	env := newTestEnv(t)
	a := env.accounts()
	ctx := context.Background()

	if _, err := a.Register(ctx, RegisterRequest{Name: "   ", Password: "secret1"}); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if _, err := a.Register(ctx, RegisterRequest{Name: "abcdefghijklmnopqrstu", Password: "secret1"}); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName for a long name, got %v", err)
	}
	if _, err := a.Register(ctx, RegisterRequest{Name: "bob", Password: "123"}); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestRegisterEnforcesUniqueFoldedName(t *testing.T) {
	env := newTestEnv(t)
	a := env.accounts()
	ctx := context.Background()

	if _, err := a.Register(ctx, RegisterRequest{Name: "Ärger", Password: "secret1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := a.Register(ctx, RegisterRequest{Name: "äRGER", Password: "secret2"}); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("expected ErrNameTaken for case-folded duplicate, got %v", err)
	}
}

func TestConcurrentRegisterOneWinner(t *testing.T) {
	env := newTestEnv(t)
	a := env.accounts()
	a.Ledger.Retry = RetryPolicy{Retries: 10, Base: time.Millisecond}
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Register(ctx, RegisterRequest{Name: "racer", Password: "secret1"})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrNameTaken):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
	users, _ := a.ListUsers(ctx)
	if len(users) != 1 {
		t.Fatalf("expected one stored account, got %d", len(users))
	}
}

func TestAdminFromPolicyAndSetAdmin(t *testing.T) {
	env := newTestEnv(t)
	a := env.accounts("boss@example.com")
	ctx := context.Background()

	boss, _ := a.Register(ctx, RegisterRequest{Name: "boss", Password: "secret1", Email: "Boss@example.com"})
	if !boss.Account.IsAdmin {
		t.Fatal("expected policy email to be admin at registration")
	}
	pleb, _ := a.Register(ctx, RegisterRequest{Name: "pleb", Password: "secret1"})
	if pleb.Account.IsAdmin {
		t.Fatal("expected regular player")
	}

	acc, err := a.SetAdmin(ctx, "PLEB", true)
	if err != nil || !acc.IsAdmin {
		t.Fatalf("expected pleb promoted, got %+v, %v", acc, err)
	}
	if _, err := a.SetAdmin(ctx, "ghost", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestParseToken(t *testing.T) {
	env := newTestEnv(t)
	a := env.accounts()
	ctx := context.Background()
	sess, _ := a.Register(ctx, RegisterRequest{Name: "carol", Password: "secret1"})

	claims, err := a.ParseToken(sess.Token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != sess.Account.ID || claims.ID != sess.SessionID || claims.Name != "carol" {
		t.Fatalf("unexpected claims %+v", claims)
	}

	other := NewAccountService(env.ledger, env.clock, []byte("another-secret"), AdminPolicy{})
	if _, err := other.ParseToken(sess.Token); err == nil {
		t.Fatal("expected signature check to fail with another secret")
	}

	env.clock.Advance(DefaultSessionTTL + time.Minute)
	if _, err := a.ParseToken(sess.Token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestResetAccounts(t *testing.T) {
	env := newTestEnv(t)
	a := env.accounts()
	ctx := context.Background()
	_, _ = a.Register(ctx, RegisterRequest{Name: "one", Password: "secret1"})
	_, _ = a.Register(ctx, RegisterRequest{Name: "two", Password: "secret1"})

	n, err := a.ResetAccounts(ctx)
	if err != nil || n != 2 {
		t.Fatalf("expected 2 accounts reset, got %d, %v", n, err)
	}
	if claims, _ := env.store.Query(ctx, store.Query{Collection: store.NameClaims}); len(claims) != 0 {
		t.Fatalf("expected name claims cleared, got %d", len(claims))
	}
	if _, err := a.Register(ctx, RegisterRequest{Name: "one", Password: "secret1"}); err != nil {
		t.Fatalf("expected name free after reset, got %v", err)
	}
}
