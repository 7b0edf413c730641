package services

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Throttle delivers values to fn at most once per interval. The first value goes out
// immediately; values arriving inside the window replace each other and the last one is
// delivered when the window closes, so the newest state is never lost.
type Throttle[T any] struct {
	clock    clockwork.Clock
	interval time.Duration
	fn       func(T)

	mu      sync.Mutex
	last    time.Time
	latest  T
	timer   clockwork.Timer
	stopped bool
}

func NewThrottle[T any](clock clockwork.Clock, interval time.Duration, fn func(T)) *Throttle[T] {
	return &Throttle[T]{clock: clock, interval: interval, fn: fn}
}

func (t *Throttle[T]) Push(v T) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if t.timer != nil {
		t.latest = v
		t.mu.Unlock()
		return
	}
	now := t.clock.Now()
	if elapsed := now.Sub(t.last); t.last.IsZero() || elapsed >= t.interval {
		t.last = now
		t.mu.Unlock()
		t.fn(v)
		return
	}
	t.latest = v
	t.timer = t.clock.AfterFunc(t.interval-now.Sub(t.last), t.fire)
	t.mu.Unlock()
}

func (t *Throttle[T]) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	v := t.latest
	var zero T
	t.latest = zero
	t.timer = nil
	t.last = t.clock.Now()
	t.mu.Unlock()
	t.fn(v)
}

// Stop drops any pending value. Push after Stop is ignored.
func (t *Throttle[T]) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
