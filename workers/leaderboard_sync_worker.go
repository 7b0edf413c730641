// workers/leaderboard_sync_worker.go
package workers

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"tree-game-server/models"
	"tree-game-server/services"
	"tree-game-server/store"

	"github.com/jonboulle/clockwork"
)

// LeaderboardSyncWorker mirrors lifetime damage from the accounts collection into the
// leaderboard. The stats batcher submits scores as it flushes; this worker backfills at
// startup and catches anything a failed submit missed.
type LeaderboardSyncWorker struct {
	store    store.Store
	sink     services.LeaderboardSink
	clock    clockwork.Clock
	interval time.Duration

	mu       sync.Mutex
	lastSync time.Time
}

func NewLeaderboardSyncWorker(s store.Store, sink services.LeaderboardSink, clock clockwork.Clock, interval time.Duration) *LeaderboardSyncWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &LeaderboardSyncWorker{store: s, sink: sink, clock: clock, interval: interval}
}

func (w *LeaderboardSyncWorker) Start(ctx context.Context) {
	log.Printf("🔁 Starting Leaderboard Sync Worker (accounts → leaderboard, every %s)…", w.interval)
	go w.run(ctx)
}

func (w *LeaderboardSyncWorker) run(ctx context.Context) {
	// Initial sync - everything
	if _, err := w.SyncOnce(ctx); err != nil {
		log.Printf("⚠️ Initial leaderboard sync failed: %v", err)
	}

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			if _, err := w.SyncChanged(ctx); err != nil {
				log.Printf("❌ Leaderboard sync failed: %v", err)
			}
		case <-ctx.Done():
			log.Println("⏹️ Leaderboard Sync Worker stopped")
			return
		}
	}
}

// SyncOnce submits every account with damage on record.
func (w *LeaderboardSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	return w.sync(ctx, time.Time{})
}

// SyncChanged submits accounts updated since the last successful sync.
func (w *LeaderboardSyncWorker) SyncChanged(ctx context.Context) (int, error) {
	w.mu.Lock()
	since := w.lastSync
	w.mu.Unlock()
	return w.sync(ctx, since)
}

func (w *LeaderboardSyncWorker) sync(ctx context.Context, since time.Time) (int, error) {
	started := w.clock.Now()
	snaps, err := w.store.Query(ctx, store.Query{
		Collection: store.Accounts,
		OrderBy:    "stats.total_damage",
		Desc:       true,
	})
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}

	var submitted, failed int
	for _, snap := range snaps {
		acc, err := models.DecodeAccount(snap.Data)
		if err != nil {
			log.Printf("[LEADERBOARD_SYNC] ⚠️ skipping %s: %v", snap.Key, err)
			continue
		}
		if acc.Stats.TotalDamage <= 0 || (!since.IsZero() && !acc.UpdatedAt.After(since)) {
			continue
		}
		if err := w.sink.Submit(ctx, acc.ID, acc.DisplayName, acc.Stats.TotalDamage); err != nil {
			log.Printf("[LEADERBOARD_SYNC] ❌ submit %s: %v", acc.ID, err)
			failed++
			continue
		}
		submitted++
	}

	if failed > 0 {
		// keep lastSync so the next tick retries the same window
		return submitted, fmt.Errorf("%d of %d submissions failed", failed, failed+submitted)
	}
	w.mu.Lock()
	w.lastSync = started
	w.mu.Unlock()
	if submitted > 0 {
		log.Printf("[LEADERBOARD_SYNC] ✅ submitted %d score(s)", submitted)
	}
	return submitted, nil
}
