package store

import (
	"context"
	"sync"
)

// Hub fans change notifications out to subscribers. Every subscriber owns one goroutine
// and a one-slot wake channel, so bursts of changes collapse into a single refresh that
// always reads the latest state.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
	ctx    context.Context
	cancel context.CancelFunc
}

type subscriber struct {
	collection string
	key        string // empty watches the whole collection
	wake       chan struct{}
}

func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{subs: map[int]*subscriber{}, ctx: ctx, cancel: cancel}
}

// Watch registers refresh to run once immediately and again after every change to
// collection/key (or to any document of the collection when key is empty). The context
// handed to refresh is cancelled once the subscription is dropped.
func (h *Hub) Watch(collection, key string, refresh func(ctx context.Context)) Unsubscribe {
	ctx, cancel := context.WithCancel(h.ctx)
	sub := &subscriber{
		collection: collection,
		key:        key,
		wake:       make(chan struct{}, 1),
	}
	sub.wake <- struct{}{}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.wake:
				refresh(ctx)
			}
		}
	}()

	return func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		cancel()
	}
}

// Publish wakes subscribers interested in collection/key.
func (h *Hub) Publish(collection, key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.collection != collection {
			continue
		}
		if sub.key != "" && sub.key != key {
			continue
		}
		sub.poke()
	}
}

// PublishAll wakes every subscriber, used after a notification channel reconnects and
// changes may have been missed.
func (h *Hub) PublishAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		sub.poke()
	}
}

func (h *Hub) Close() {
	h.cancel()
}

func (s *subscriber) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
