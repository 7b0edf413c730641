package services

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"tree-game-server/models"
	"tree-game-server/store"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/jonboulle/clockwork"
)

const (
	AttackRetention  = 200
	AttackPruneBatch = 100
)

var DefaultAttackFlushPolicy = FlushPolicy{Interval: 10 * time.Second, MaxCount: 50}

// Archiver stores a JSON document in cold storage.
type Archiver interface {
	PutJSON(ctx context.Context, key string, v any) error
}

type attackEvent struct {
	UserName   string
	WeaponName string
	Damage     int64
}

// AttackLog batches attack events per player into aggregated records and keeps the
// log bounded.
type AttackLog struct {
	Store      store.Store
	Archiver   Archiver
	Clock      clockwork.Clock
	Keep       int
	PruneBatch int
	// Throttle is the minimum gap between deliveries to one subscriber.
	Throttle time.Duration

	batcher *Batcher[attackEvent]
	pruning atomic.Bool
}

func NewAttackLog(s store.Store, clock clockwork.Clock, policy FlushPolicy) *AttackLog {
	a := &AttackLog{
		Store:      s,
		Clock:      clock,
		Keep:       AttackRetention,
		PruneBatch: AttackPruneBatch,
		Throttle:   FeedThrottle,
	}
	a.batcher = NewBatcher("attack-log", policy, clock, func(acc, v attackEvent) attackEvent {
		acc.Damage += v.Damage
		acc.UserName = v.UserName
		acc.WeaponName = v.WeaponName
		return acc
	}, a.write)
	return a
}

// Record adds one hit to the player's pending batch.
func (a *AttackLog) Record(userID, userName, weaponName string, damage int64) {
	a.batcher.Add(userID, attackEvent{UserName: userName, WeaponName: weaponName, Damage: damage})
}

func (a *AttackLog) write(ctx context.Context, b Batch[attackEvent]) error {
	rec := models.AttackRecord{
		UserID:     b.Key,
		UserName:   b.Value.UserName,
		Damage:     b.Value.Damage,
		Count:      b.Count,
		WeaponName: b.Value.WeaponName,
		Timestamp:  a.Clock.Now(),
	}
	id, err := a.Store.Add(ctx, store.Attacks, rec)
	if err != nil {
		return err
	}
	log.Printf("[AttackLog] %s: %d hits, %d damage → %s", b.Key, b.Count, b.Value.Damage, id)
	return nil
}

func (a *AttackLog) Start() error                   { return a.batcher.Start() }
func (a *AttackLog) Stop(ctx context.Context) error { return a.batcher.Stop(ctx) }
func (a *AttackLog) Sweep(ctx context.Context)      { a.batcher.Sweep(ctx) }
func (a *AttackLog) Wait()                          { a.batcher.Wait() }

func decodeAttacks(snaps []store.Snapshot) []models.AttackRecord {
	out := make([]models.AttackRecord, 0, len(snaps))
	for _, snap := range snaps {
		var rec models.AttackRecord
		if err := snap.DataTo(&rec); err != nil {
			continue
		}
		rec.ID = snap.Key
		out = append(out, rec)
	}
	return out
}

func recentAttacksQuery(limit int) store.Query {
	return store.Query{Collection: store.Attacks, Desc: true, Limit: limit}
}

// Recent returns the newest records first.
func (a *AttackLog) Recent(ctx context.Context, limit int) ([]models.AttackRecord, error) {
	snaps, err := a.Store.Query(ctx, recentAttacksQuery(limit))
	if err != nil {
		return nil, err
	}
	return decodeAttacks(snaps), nil
}

// Subscribe delivers the newest records on every change, at most once per Throttle.
func (a *AttackLog) Subscribe(limit int, fn func([]models.AttackRecord)) store.Unsubscribe {
	th := NewThrottle(a.Clock, a.Throttle, fn)
	unsub := a.Store.SubscribeQuery(recentAttacksQuery(limit), func(snaps []store.Snapshot) {
		th.Push(decodeAttacks(snaps))
	})
	return func() {
		unsub()
		th.Stop()
	}
}

// Prune deletes everything but the newest Keep records in chunks of PruneBatch, archiving
// each chunk first when an Archiver is set. A chunk that fails to archive is kept.
func (a *AttackLog) Prune(ctx context.Context) (int, error) {
	if !a.pruning.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer a.pruning.Store(false)

	snaps, err := a.Store.Query(ctx, store.Query{Collection: store.Attacks, Desc: true})
	if err != nil {
		return 0, fmt.Errorf("list attacks: %w", err)
	}
	if len(snaps) <= a.Keep {
		return 0, nil
	}
	stale := snaps[a.Keep:]

	deleted := 0
	for start := 0; start < len(stale); start += a.PruneBatch {
		end := min(start+a.PruneBatch, len(stale))
		chunk := stale[start:end]

		if a.Archiver != nil {
			records := decodeAttacks(chunk)
			key := archiveKey(records, a.Clock.Now())
			if err := a.Archiver.PutJSON(ctx, key, records); err != nil {
				return deleted, fmt.Errorf("archive %s: %w", key, err)
			}
		}

		keys := make([]string, len(chunk))
		for i, s := range chunk {
			keys[i] = s.Key
		}
		if err := a.Store.Delete(ctx, store.Attacks, keys...); err != nil {
			return deleted, fmt.Errorf("delete attack chunk: %w", err)
		}
		deleted += len(keys)
	}
	log.Printf("🧹 [AttackLog] pruned %d records, kept %d", deleted, a.Keep)
	return deleted, nil
}

func archiveKey(records []models.AttackRecord, now time.Time) string {
	stamp := now
	if len(records) > 0 {
		stamp = records[len(records)-1].Timestamp
	}
	name := slug.Make(fmt.Sprintf("attacks %s", stamp.UTC().Format("2006-01-02 15-04-05")))
	return fmt.Sprintf("attack-archive/%s/%s-%s.json", stamp.UTC().Format("2006/01/02"), name, uuid.NewString()[:8])
}
