// Package store is the transactional document store the game runs on: keyed JSON
// documents grouped in collections, optimistic transactions, equality queries and
// change subscriptions.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("document not found")
	// ErrConflict means a document in the transaction's read set changed before commit.
	ErrConflict = errors.New("transaction conflict")
)

// Collections used by the game.
const (
	Accounts     = "accounts"
	Weapons      = "weapons"
	WorldState   = "world_state"
	Attacks      = "attacks"
	ChatMessages = "chat_messages"
	OnlineUsers  = "online_users"
	NameClaims   = "name_claims"
)

// maxTxAttempts is how many times RunTransaction re-runs fn after a conflict.
const maxTxAttempts = 5

type Snapshot struct {
	Collection string
	Key        string
	Version    int64 // 0 when the document does not exist
	Data       []byte
	CreateTime time.Time
	UpdateTime time.Time
}

func (s Snapshot) Exists() bool {
	return s.Version > 0
}

func (s Snapshot) DataTo(v any) error {
	if !s.Exists() {
		return fmt.Errorf("%s/%s: %w", s.Collection, s.Key, ErrNotFound)
	}
	return json.Unmarshal(s.Data, v)
}

// Filter matches documents whose JSON field equals Value. Field may be a dotted path.
type Filter struct {
	Field string
	Value any
}

type Query struct {
	Collection string
	Where      []Filter
	OrderBy    string // JSON field path; empty orders by creation time
	Desc       bool
	Limit      int
}

// Tx is the handle passed to RunTransaction. Reads are tracked and verified at commit,
// writes are buffered and applied atomically. Get observes the transaction's own writes.
type Tx interface {
	Get(ctx context.Context, collection, key string) (Snapshot, error)
	Set(collection, key string, v any) error
	Delete(collection, key string)
}

type Unsubscribe func()

type Store interface {
	Get(ctx context.Context, collection, key string) (Snapshot, error)
	Set(ctx context.Context, collection, key string, v any) error
	// Merge overwrites the given top-level fields, creating the document if needed.
	Merge(ctx context.Context, collection, key string, fields map[string]any) error
	// Add stores v under a generated key and returns the key.
	Add(ctx context.Context, collection string, v any) (string, error)
	Delete(ctx context.Context, collection string, keys ...string) error
	Query(ctx context.Context, q Query) ([]Snapshot, error)
	// RunTransaction runs fn and commits its writes if nothing it read has changed,
	// re-running fn on conflict. ErrConflict is returned once the attempts run out.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	SubscribeDoc(collection, key string, fn func(Snapshot)) Unsubscribe
	SubscribeQuery(q Query, fn func([]Snapshot)) Unsubscribe
	Close() error
}

type docRef struct {
	collection string
	key        string
}

type pendingWrite struct {
	ref    docRef
	data   []byte
	delete bool
}

// txBuffer holds the read set and ordered write set shared by both implementations.
type txBuffer struct {
	reads  map[docRef]int64
	writes []pendingWrite
	index  map[docRef]int
}

func newTxBuffer() *txBuffer {
	return &txBuffer{reads: map[docRef]int64{}, index: map[docRef]int{}}
}

func (b *txBuffer) pending(ref docRef) (pendingWrite, bool) {
	i, ok := b.index[ref]
	if !ok {
		return pendingWrite{}, false
	}
	return b.writes[i], true
}

func (b *txBuffer) put(w pendingWrite) {
	if i, ok := b.index[w.ref]; ok {
		b.writes[i] = w
		return
	}
	b.index[w.ref] = len(b.writes)
	b.writes = append(b.writes, w)
}

func (b *txBuffer) set(collection, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	b.put(pendingWrite{ref: docRef{collection, key}, data: data})
	return nil
}

func (b *txBuffer) remove(collection, key string) {
	b.put(pendingWrite{ref: docRef{collection, key}, delete: true})
}

// buffered answers a Get from the write set when the document was already written.
func (b *txBuffer) buffered(ref docRef) (Snapshot, bool, error) {
	w, ok := b.pending(ref)
	if !ok {
		return Snapshot{}, false, nil
	}
	if w.delete {
		return Snapshot{}, true, ErrNotFound
	}
	version := b.reads[ref] + 1
	return Snapshot{Collection: ref.collection, Key: ref.key, Version: version, Data: w.data}, true, nil
}

// runWithRetry drives attempt until it stops reporting ErrConflict.
func runWithRetry(ctx context.Context, attempt func() error) error {
	var err error
	for i := 0; i < maxTxAttempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = attempt()
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}
