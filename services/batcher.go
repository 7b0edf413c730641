package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// FlushPolicy decides when an accumulator is written out. A zero MaxCount or MaxValue
// disables that trigger.
type FlushPolicy struct {
	Interval time.Duration
	MaxCount int
	MaxValue int64
}

// Batch is the accumulated state for one key.
type Batch[T any] struct {
	Key   string
	Value T
	Count int
	First time.Time
}

type FlushFunc[T any] func(ctx context.Context, b Batch[T]) error

// Batcher coalesces high-frequency events per key into periodic writes. A key is flushed
// when its count or value crosses the policy, when its interval has passed since the
// last successful flush, and by a background sweep on the same interval. A failed flush
// puts the batch back so the next attempt carries it.
type Batcher[T any] struct {
	Name   string
	Policy FlushPolicy
	Clock  clockwork.Clock
	Merge  func(acc, v T) T
	// Size measures a batch against Policy.MaxValue.
	Size  func(key string, v T) int64
	Flush FlushFunc[T]

	// FlushTimeout bounds a flush started because Add found a batch due.
	FlushTimeout time.Duration
	// Forget is called when Sweep drops an idle key.
	Forget func(key string)

	mu        sync.Mutex
	pending   map[string]*Batch[T]
	lastFlush map[string]time.Time
	queued    map[string]bool
	draining  bool
	inflight  sync.WaitGroup
	sched     gocron.Scheduler
}

const defaultFlushTimeout = 10 * time.Second

func NewBatcher[T any](name string, policy FlushPolicy, clock clockwork.Clock, merge func(acc, v T) T, flush FlushFunc[T]) *Batcher[T] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Batcher[T]{
		Name:         name,
		Policy:       policy,
		Clock:        clock,
		Merge:        merge,
		Flush:        flush,
		FlushTimeout: defaultFlushTimeout,
		pending:      map[string]*Batch[T]{},
		lastFlush:    map[string]time.Time{},
		queued:       map[string]bool{},
	}
}

// Add folds v into key's batch. A batch that crossed a threshold is handed to the
// background drain, so the caller never waits on the write.
func (b *Batcher[T]) Add(key string, v T) {
	now := b.Clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()
	batch, ok := b.pending[key]
	if !ok {
		batch = &Batch[T]{Key: key, Value: v, First: now}
		b.pending[key] = batch
	} else {
		batch.Value = b.Merge(batch.Value, v)
	}
	batch.Count++
	if _, seen := b.lastFlush[key]; !seen {
		b.lastFlush[key] = now
	}
	if b.dueLocked(key, batch, now) {
		b.enqueueLocked(key)
	}
}

func (b *Batcher[T]) enqueueLocked(key string) {
	b.queued[key] = true
	if b.draining {
		return
	}
	b.draining = true
	b.inflight.Add(1)
	go b.drain()
}

// drain flushes queued keys one at a time until the queue is empty.
func (b *Batcher[T]) drain() {
	defer b.inflight.Done()
	for {
		b.mu.Lock()
		key, ok := "", false
		for k := range b.queued {
			key, ok = k, true
			break
		}
		if !ok {
			b.draining = false
			b.mu.Unlock()
			return
		}
		delete(b.queued, key)
		b.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), b.FlushTimeout)
		if err := b.flushKey(ctx, key); err != nil {
			log.Printf("⚠️ [Batcher] %v", err)
		}
		cancel()
	}
}

// Wait blocks until flushes started by Add have finished.
func (b *Batcher[T]) Wait() {
	b.inflight.Wait()
}

func (b *Batcher[T]) dueLocked(key string, batch *Batch[T], now time.Time) bool {
	if b.Policy.MaxCount > 0 && batch.Count >= b.Policy.MaxCount {
		return true
	}
	if b.Policy.MaxValue > 0 && b.Size != nil && b.Size(key, batch.Value) >= b.Policy.MaxValue {
		return true
	}
	return b.Policy.Interval > 0 && now.Sub(b.lastFlush[key]) >= b.Policy.Interval
}

func (b *Batcher[T]) flushKey(ctx context.Context, key string) error {
	b.mu.Lock()
	batch, ok := b.pending[key]
	if !ok {
		b.mu.Unlock()
		return nil
	}
	delete(b.pending, key)
	b.mu.Unlock()

	if err := b.Flush(ctx, *batch); err != nil {
		b.restore(batch)
		return fmt.Errorf("%s flush %s: %w", b.Name, key, err)
	}

	b.mu.Lock()
	b.lastFlush[key] = b.Clock.Now()
	b.mu.Unlock()
	return nil
}

// restore merges a batch whose flush failed back in front of anything added meanwhile.
func (b *Batcher[T]) restore(batch *Batch[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if newer, ok := b.pending[batch.Key]; ok {
		batch.Value = b.Merge(batch.Value, newer.Value)
		batch.Count += newer.Count
	}
	b.pending[batch.Key] = batch
}

// Sweep flushes every batch whose interval has elapsed and forgets keys that have been
// idle for a full interval. Failures are logged and left for the next sweep.
func (b *Batcher[T]) Sweep(ctx context.Context) {
	now := b.Clock.Now()
	b.mu.Lock()
	var due, idle []string
	for key, batch := range b.pending {
		if b.dueLocked(key, batch, now) {
			due = append(due, key)
		}
	}
	for key, last := range b.lastFlush {
		if _, ok := b.pending[key]; ok || b.queued[key] {
			continue
		}
		if now.Sub(last) >= b.Policy.Interval {
			delete(b.lastFlush, key)
			idle = append(idle, key)
		}
	}
	b.mu.Unlock()

	if b.Forget != nil {
		for _, key := range idle {
			b.Forget(key)
		}
	}
	for _, key := range due {
		if err := b.flushKey(ctx, key); err != nil {
			log.Printf("⚠️ [Batcher] %v", err)
		}
	}
}

// tracked is the number of keys the batcher still holds state for.
func (b *Batcher[T]) tracked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lastFlush)
}

// FlushAll writes every pending batch regardless of policy.
func (b *Batcher[T]) FlushAll(ctx context.Context) error {
	b.mu.Lock()
	keys := make([]string, 0, len(b.pending))
	for key := range b.pending {
		keys = append(keys, key)
	}
	b.mu.Unlock()

	var errs []error
	for _, key := range keys {
		if err := b.flushKey(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pending returns a copy of key's unflushed batch.
func (b *Batcher[T]) Pending(key string) (Batch[T], bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch, ok := b.pending[key]
	if !ok {
		return Batch[T]{}, false
	}
	return *batch, true
}

// Start runs Sweep on the policy interval until Stop.
func (b *Batcher[T]) Start() error {
	if b.Policy.Interval <= 0 {
		return fmt.Errorf("%s: sweep interval must be positive", b.Name)
	}
	sched, err := gocron.NewScheduler(gocron.WithClock(b.Clock))
	if err != nil {
		return fmt.Errorf("%s: create scheduler: %w", b.Name, err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(b.Policy.Interval),
		gocron.NewTask(func() {
			b.Sweep(context.Background())
		}),
		gocron.WithName(b.Name+"-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("%s: schedule sweep: %w", b.Name, err)
	}
	sched.Start()

	b.mu.Lock()
	b.sched = sched
	b.mu.Unlock()
	log.Printf("✅ [Batcher] %s sweeping every %s", b.Name, b.Policy.Interval)
	return nil
}

// Stop halts the sweep and makes a final attempt to write everything pending.
func (b *Batcher[T]) Stop(ctx context.Context) error {
	b.mu.Lock()
	sched := b.sched
	b.sched = nil
	b.mu.Unlock()

	if sched != nil {
		if err := sched.Shutdown(); err != nil {
			log.Printf("⚠️ [Batcher] %s scheduler shutdown: %v", b.Name, err)
		}
	}
	b.Wait()
	return b.FlushAll(ctx)
}
