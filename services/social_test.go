package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tree-game-server/models"
	"tree-game-server/store"

	"github.com/jonboulle/clockwork"
)

func TestThrottleKeepsLatest(t *testing.T) {
	clock := clockwork.NewFakeClock()
	got := make(chan int, 10)
	th := NewThrottle(clock, 2*time.Second, func(v int) { got <- v })

	th.Push(1)
	if v := <-got; v != 1 {
		t.Fatalf("expected leading value 1, got %d", v)
	}
	th.Push(2)
	th.Push(3)
	select {
	case v := <-got:
		t.Fatalf("expected nothing inside the window, got %d", v)
	default:
	}

	clock.Advance(2 * time.Second)
	select {
	case v := <-got:
		if v != 3 {
			t.Fatalf("expected trailing value 3, got %d", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("trailing value never delivered")
	}
}

func TestThrottleStopDropsPending(t *testing.T) {
	clock := clockwork.NewFakeClock()
	got := make(chan int, 10)
	th := NewThrottle(clock, time.Second, func(v int) { got <- v })
	th.Push(1)
	<-got
	th.Push(2)
	th.Stop()
	clock.Advance(time.Second)
	th.Push(3)
	select {
	case v := <-got:
		t.Fatalf("expected no delivery after stop, got %d", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChatSendValidates(t *testing.T) {
	env := newTestEnv(t)
	chat := NewChatService(env.store, env.clock)
	ctx := context.Background()

	if _, err := chat.Send(ctx, "u1", "alice", "   "); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage for blank, got %v", err)
	}
	if _, err := chat.Send(ctx, "u1", "alice", strings.Repeat("a", MaxChatLength+1)); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage for long message, got %v", err)
	}
	msg, err := chat.Send(ctx, "u1", "alice", strings.Repeat("木", MaxChatLength))
	if err != nil || msg.ID == "" || msg.Type != models.MessageNormal {
		t.Fatalf("expected a stored normal message, got %+v, %v", msg, err)
	}
}

func TestChatRecentOldestFirst(t *testing.T) {
	env := newTestEnv(t)
	chat := NewChatService(env.store, env.clock)
	ctx := context.Background()

	_, _ = chat.Send(ctx, "u1", "alice", "first")
	env.clock.Advance(time.Second)
	_ = chat.AnnounceLegendary(ctx, "u2", "bob", "Rocket Axe")
	env.clock.Advance(time.Second)
	_, _ = chat.Send(ctx, "u1", "alice", "third")

	msgs, err := chat.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Type != models.MessageLegendary || msgs[1].Message != "third" {
		t.Fatalf("expected [legendary, third], got %+v", msgs)
	}
}

func TestChatSubscribeSeesNewMessages(t *testing.T) {
	env := newTestEnv(t)
	chat := NewChatService(env.store, env.clock)
	chat.Throttle = 0
	ctx := context.Background()

	got := make(chan []models.ChatMessage, 16)
	unsub := chat.Subscribe(10, func(m []models.ChatMessage) { got <- m })
	defer unsub()

	_, _ = chat.Send(ctx, "u1", "alice", "hello")
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msgs := <-got:
			if len(msgs) == 1 && msgs[0].Message == "hello" {
				return
			}
		case <-deadline:
			t.Fatal("subscription never delivered the message")
		}
	}
}

func TestLedgerAnnouncesThroughChat(t *testing.T) {
	env := newTestEnv(t)
	chat := NewChatService(env.store, env.clock)
	env.ledger.Announcer = chat
	env.seedAccount(t, "u1", 0, nil, nil)

	if _, err := env.ledger.UpdateAchievement(context.Background(), "u1", models.Achievement{ID: "first_blood", Unlocked: true, Progress: 1}); err != nil {
		t.Fatalf("achievement: %v", err)
	}
	msgs, _ := chat.Recent(context.Background(), 10)
	if len(msgs) != 1 || msgs[0].Type != models.MessageAchievement {
		t.Fatalf("expected one achievement announcement, got %+v", msgs)
	}
}

func TestRosterCleanupStale(t *testing.T) {
	env := newTestEnv(t)
	r := NewRosterService(env.store, env.clock)
	ctx := context.Background()

	_ = r.SetOnline(ctx, "u1", "alice", "Phone Axe")
	_ = r.SetOnline(ctx, "u2", "bob", "Meme Axe")
	env.clock.Advance(4 * time.Minute)
	_ = r.Heartbeat(ctx, "u2", "")
	env.clock.Advance(2 * time.Minute)

	n, err := r.CleanupStale(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one stale player, got %d, %v", n, err)
	}
	online, _ := r.Online(ctx)
	if len(online) != 1 || online[0].UserID != "u2" || online[0].WeaponName != "Meme Axe" {
		t.Fatalf("expected bob still online with his weapon, got %+v", online)
	}
}

func TestRosterSetOffline(t *testing.T) {
	env := newTestEnv(t)
	r := NewRosterService(env.store, env.clock)
	ctx := context.Background()

	_ = r.SetOnline(ctx, "u1", "alice", "")
	_ = r.SetOffline(ctx, "u1")
	online, _ := r.Online(ctx)
	if len(online) != 0 {
		t.Fatalf("expected empty roster, got %+v", online)
	}
}

func TestStoreLeaderboardRanksByDamage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for id, dmg := range map[string]int64{"a": 50, "b": 900, "c": 300} {
		acc := env.seedAccount(t, id, 0, nil, nil)
		acc.Stats.TotalDamage = dmg
		_ = env.store.Set(ctx, store.Accounts, id, acc)
	}
	board := &StoreLeaderboard{Store: env.store}

	top, err := board.Top(ctx, 2)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 || top[0].UserID != "b" || top[1].UserID != "c" || top[1].Rank != 2 {
		t.Fatalf("expected [b c], got %+v", top)
	}
	e, err := board.Rank(ctx, "a")
	if err != nil || e.Rank != 3 {
		t.Fatalf("expected a ranked 3rd, got %+v, %v", e, err)
	}
	if _, err := board.Rank(ctx, "zz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
