package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// MemoryStore keeps every document in process. It backs tests and STORE_DRIVER=memory,
// and implements the same optimistic transaction semantics as PostgresStore.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]map[string]*memDoc
	seq   int64
	clock clockwork.Clock
	hub   *Hub
}

type memDoc struct {
	data    []byte
	version int64
	created time.Time
	updated time.Time
	seq     int64
}

func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		docs:  map[string]map[string]*memDoc{},
		clock: clock,
		hub:   NewHub(),
	}
}

func (m *MemoryStore) snapshot(collection, key string, d *memDoc) Snapshot {
	return Snapshot{
		Collection: collection,
		Key:        key,
		Version:    d.version,
		Data:       d.data,
		CreateTime: d.created,
		UpdateTime: d.updated,
	}
}

func (m *MemoryStore) Get(ctx context.Context, collection, key string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[collection][key]
	if !ok {
		return Snapshot{Collection: collection, Key: key}, ErrNotFound
	}
	return m.snapshot(collection, key, d), nil
}

// write must be called with mu held.
func (m *MemoryStore) write(collection, key string, data []byte, now time.Time) {
	coll, ok := m.docs[collection]
	if !ok {
		coll = map[string]*memDoc{}
		m.docs[collection] = coll
	}
	if d, ok := coll[key]; ok {
		d.data = data
		d.version++
		d.updated = now
		return
	}
	m.seq++
	coll[key] = &memDoc{data: data, version: 1, created: now, updated: now, seq: m.seq}
}

func (m *MemoryStore) Set(ctx context.Context, collection, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	m.mu.Lock()
	m.write(collection, key, data, m.clock.Now())
	m.mu.Unlock()
	m.hub.Publish(collection, key)
	return nil
}

func (m *MemoryStore) Merge(ctx context.Context, collection, key string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	doc := map[string]any{}
	if d, ok := m.docs[collection][key]; ok {
		if err := json.Unmarshal(d.data, &doc); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("decode %s/%s: %w", collection, key, err)
		}
	}
	for k, v := range fields {
		doc[k] = v
	}
	data, err := json.Marshal(doc)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	m.write(collection, key, data, m.clock.Now())
	m.mu.Unlock()
	m.hub.Publish(collection, key)
	return nil
}

func (m *MemoryStore) Add(ctx context.Context, collection string, v any) (string, error) {
	key := uuid.NewString()
	if err := m.Set(ctx, collection, key, v); err != nil {
		return "", err
	}
	return key, nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection string, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	for _, k := range keys {
		delete(m.docs[collection], k)
	}
	m.mu.Unlock()
	for _, k := range keys {
		m.hub.Publish(collection, k)
	}
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, q Query) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type row struct {
		snap   Snapshot
		fields map[string]any
		seq    int64
	}
	m.mu.RLock()
	var rows []row
	for key, d := range m.docs[q.Collection] {
		var fields map[string]any
		if err := json.Unmarshal(d.data, &fields); err != nil {
			continue
		}
		if !matches(fields, q.Where) {
			continue
		}
		rows = append(rows, row{snap: m.snapshot(q.Collection, key, d), fields: fields, seq: d.seq})
	}
	m.mu.RUnlock()

	sort.SliceStable(rows, func(i, j int) bool {
		var c int
		if q.OrderBy == "" {
			c = rows[i].snap.CreateTime.Compare(rows[j].snap.CreateTime)
		} else {
			c = compareValues(lookup(rows[i].fields, q.OrderBy), lookup(rows[j].fields, q.OrderBy))
		}
		if c == 0 {
			c = cmpInt64(rows[i].seq, rows[j].seq)
		}
		if q.Desc {
			return c > 0
		}
		return c < 0
	})

	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	out := make([]Snapshot, len(rows))
	for i, r := range rows {
		out[i] = r.snap
	}
	return out, nil
}

type memTx struct {
	m   *MemoryStore
	buf *txBuffer
}

func (t *memTx) Get(ctx context.Context, collection, key string) (Snapshot, error) {
	ref := docRef{collection, key}
	if snap, ok, err := t.buf.buffered(ref); ok {
		return snap, err
	}
	snap, err := t.m.Get(ctx, collection, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return snap, err
	}
	if _, seen := t.buf.reads[ref]; !seen {
		t.buf.reads[ref] = snap.Version
	} else if t.buf.reads[ref] != snap.Version {
		return Snapshot{}, ErrConflict
	}
	return snap, err
}

func (t *memTx) Set(collection, key string, v any) error {
	return t.buf.set(collection, key, v)
}

func (t *memTx) Delete(collection, key string) {
	t.buf.remove(collection, key)
}

func (m *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return runWithRetry(ctx, func() error {
		tx := &memTx{m: m, buf: newTxBuffer()}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return m.commit(tx.buf)
	})
}

func (m *MemoryStore) commit(buf *txBuffer) error {
	m.mu.Lock()
	for ref, version := range buf.reads {
		var current int64
		if d, ok := m.docs[ref.collection][ref.key]; ok {
			current = d.version
		}
		if current != version {
			m.mu.Unlock()
			return ErrConflict
		}
	}
	now := m.clock.Now()
	for _, w := range buf.writes {
		if w.delete {
			delete(m.docs[w.ref.collection], w.ref.key)
			continue
		}
		m.write(w.ref.collection, w.ref.key, w.data, now)
	}
	m.mu.Unlock()

	for _, w := range buf.writes {
		m.hub.Publish(w.ref.collection, w.ref.key)
	}
	return nil
}

func (m *MemoryStore) SubscribeDoc(collection, key string, fn func(Snapshot)) Unsubscribe {
	return m.hub.Watch(collection, key, func(ctx context.Context) {
		snap, err := m.Get(ctx, collection, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return
		}
		if ctx.Err() == nil {
			fn(snap)
		}
	})
}

func (m *MemoryStore) SubscribeQuery(q Query, fn func([]Snapshot)) Unsubscribe {
	return m.hub.Watch(q.Collection, "", func(ctx context.Context) {
		snaps, err := m.Query(ctx, q)
		if err != nil {
			return
		}
		if ctx.Err() == nil {
			fn(snaps)
		}
	})
}

func (m *MemoryStore) Close() error {
	m.hub.Close()
	return nil
}

func lookup(fields map[string]any, path string) any {
	var cur any = fields
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[part]
	}
	return cur
}

// normalize pushes a filter value through JSON so it compares like a decoded field.
func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func matches(fields map[string]any, where []Filter) bool {
	for _, f := range where {
		if !reflect.DeepEqual(lookup(fields, f.Field), normalize(f.Value)) {
			return false
		}
	}
	return true
}

func compareValues(a, b any) int {
	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	case string:
		if y, ok := b.(string); ok {
			tx, errX := time.Parse(time.RFC3339Nano, x)
			ty, errY := time.Parse(time.RFC3339Nano, y)
			if errX == nil && errY == nil {
				return tx.Compare(ty)
			}
			return strings.Compare(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok && x != y {
			if !x {
				return -1
			}
			return 1
		}
		return 0
	}
	// nulls and mismatched types sort first
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return 0
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
