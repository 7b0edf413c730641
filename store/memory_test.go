package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

type counter struct {
	N    int    `json:"n"`
	Tag  string `json:"tag,omitempty"`
	Meta struct {
		Kind string `json:"kind"`
	} `json:"meta"`
}

func TestMemoryStoreGetMissing(t *testing.T) {
	s := NewMemoryStore(clockwork.NewFakeClock())
	_, err := s.Get(context.Background(), "things", "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransactionCommitsAndBumpsVersion(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(clockwork.NewFakeClock())
	if err := s.Set(ctx, "things", "a", counter{N: 1}); err != nil {
		t.Fatalf("set: %v", err)
	}

	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		snap, err := tx.Get(ctx, "things", "a")
		if err != nil {
			return err
		}
		var c counter
		if err := snap.DataTo(&c); err != nil {
			return err
		}
		c.N++
		return tx.Set("things", "a", c)
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}

	snap, _ := s.Get(ctx, "things", "a")
	var c counter
	_ = snap.DataTo(&c)
	if c.N != 2 {
		t.Fatalf("expected n=2, got %d", c.N)
	}
	if snap.Version != 2 {
		t.Fatalf("expected version 2, got %d", snap.Version)
	}
}

func TestTransactionRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(clockwork.NewFakeClock())
	_ = s.Set(ctx, "things", "a", counter{N: 0})

	attempts := 0
	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		attempts++
		snap, err := tx.Get(ctx, "things", "a")
		if err != nil {
			return err
		}
		var c counter
		_ = snap.DataTo(&c)
		if attempts == 1 {
			// a concurrent writer sneaks in between read and commit
			_ = s.Set(ctx, "things", "a", counter{N: 100})
		}
		c.N++
		return tx.Set("things", "a", c)
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	snap, _ := s.Get(ctx, "things", "a")
	var c counter
	_ = snap.DataTo(&c)
	if c.N != 101 {
		t.Fatalf("expected n=101, got %d", c.N)
	}
}

func TestTransactionGivesUpWithConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(clockwork.NewFakeClock())
	_ = s.Set(ctx, "things", "a", counter{})

	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Get(ctx, "things", "a"); err != nil {
			return err
		}
		_ = s.Set(ctx, "things", "a", counter{N: 5})
		return tx.Set("things", "a", counter{N: 1})
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestTransactionDetectsConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(clockwork.NewFakeClock())

	attempts := 0
	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		attempts++
		_, err := tx.Get(ctx, "claims", "bob")
		if err == nil {
			return errors.New("taken")
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		if attempts == 1 {
			_ = s.Set(ctx, "claims", "bob", counter{Tag: "other"})
		}
		return tx.Set("claims", "bob", counter{Tag: "mine"})
	})
	if err == nil || err.Error() != "taken" {
		t.Fatalf("expected the retry to observe the concurrent claim, got %v", err)
	}
}

func TestTransactionReadsOwnWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(clockwork.NewFakeClock())
	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Set("things", "x", counter{N: 7}); err != nil {
			return err
		}
		snap, err := tx.Get(ctx, "things", "x")
		if err != nil {
			return err
		}
		var c counter
		if err := snap.DataTo(&c); err != nil {
			return err
		}
		if c.N != 7 {
			t.Errorf("expected buffered n=7, got %d", c.N)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestErrorInTransactionWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(clockwork.NewFakeClock())
	boom := errors.New("boom")
	err := s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		_ = tx.Set("things", "x", counter{N: 1})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.Get(ctx, "things", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected nothing written, got %v", err)
	}
}

func TestQueryFilterOrderLimit(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	s := NewMemoryStore(clock)
	for i, n := range []int{5, 1, 9, 3} {
		c := counter{N: n, Tag: "keep"}
		c.Meta.Kind = "a"
		if i == 2 {
			c.Meta.Kind = "b"
		}
		_, _ = s.Add(ctx, "things", c)
		clock.Advance(time.Second)
	}
	_, _ = s.Add(ctx, "things", counter{N: 100, Tag: "drop"})

	snaps, err := s.Query(ctx, Query{
		Collection: "things",
		Where:      []Filter{{Field: "tag", Value: "keep"}, {Field: "meta.kind", Value: "a"}},
		OrderBy:    "n",
		Desc:       true,
		Limit:      2,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("expected 2 results, got %d", len(snaps))
	}
	var first, second counter
	_ = snaps[0].DataTo(&first)
	_ = snaps[1].DataTo(&second)
	if first.N != 5 || second.N != 3 {
		t.Fatalf("expected [5 3], got [%d %d]", first.N, second.N)
	}

	byCreation, _ := s.Query(ctx, Query{Collection: "things", Where: []Filter{{Field: "tag", Value: "keep"}}})
	var oldest counter
	_ = byCreation[0].DataTo(&oldest)
	if oldest.N != 5 {
		t.Fatalf("expected oldest n=5, got %d", oldest.N)
	}
}

func TestMergeKeepsOtherFields(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(clockwork.NewFakeClock())
	_ = s.Set(ctx, "things", "a", counter{N: 4, Tag: "x"})
	if err := s.Merge(ctx, "things", "a", map[string]any{"tag": "y"}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	snap, _ := s.Get(ctx, "things", "a")
	var c counter
	_ = snap.DataTo(&c)
	if c.N != 4 || c.Tag != "y" {
		t.Fatalf("expected n=4 tag=y, got n=%d tag=%s", c.N, c.Tag)
	}
}

func TestSubscribeDocDeliversInitialAndLatest(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(clockwork.NewFakeClock())
	defer s.Close()
	_ = s.Set(ctx, "things", "a", counter{N: 1})

	var mu sync.Mutex
	var seen []int
	got := make(chan struct{}, 16)
	unsub := s.SubscribeDoc("things", "a", func(snap Snapshot) {
		var c counter
		_ = snap.DataTo(&c)
		mu.Lock()
		seen = append(seen, c.N)
		mu.Unlock()
		got <- struct{}{}
	})
	defer unsub()

	waitFor(t, got)
	for i := 2; i <= 5; i++ {
		_ = s.Set(ctx, "things", "a", counter{N: i})
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		last := seen[len(seen)-1]
		mu.Unlock()
		if last == 5 {
			break
		}
		select {
		case <-got:
		case <-deadline:
			t.Fatalf("latest value never delivered, saw %v", seen)
		}
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(clockwork.NewFakeClock())
	defer s.Close()

	got := make(chan struct{}, 16)
	unsub := s.SubscribeQuery(Query{Collection: "things"}, func([]Snapshot) { got <- struct{}{} })
	waitFor(t, got)
	unsub()

	_ = s.Set(ctx, "things", "a", counter{N: 1})
	select {
	case <-got:
		t.Fatal("expected no delivery after unsubscribe")
	case <-time.After(100 * time.Millisecond):
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}
