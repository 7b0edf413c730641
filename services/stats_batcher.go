package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"tree-game-server/models"

	"github.com/jonboulle/clockwork"
)

const MaxReportedStat = 1_000_000_000

var DefaultStatsFlushPolicy = FlushPolicy{Interval: 30 * time.Second, MaxValue: 1000}

// LeaderboardSink receives lifetime damage totals after they are persisted.
type LeaderboardSink interface {
	Submit(ctx context.Context, userID, displayName string, totalDamage int64) error
}

type statsReport struct {
	Damage int64
	Gold   int64
}

func maxReport(a, b statsReport) statsReport {
	return statsReport{Damage: max(a.Damage, b.Damage), Gold: max(a.Gold, b.Gold)}
}

// StatsBatcher collects lifetime damage and gold totals and writes them back at most
// every interval, or sooner when a total jumps by MaxValue since the last write. Totals
// only ever rise: a flush stores max(reported, persisted).
type StatsBatcher struct {
	Ledger      *LedgerService
	Leaderboard LeaderboardSink

	batcher *Batcher[statsReport]
	mu      sync.Mutex
	flushed map[string]statsReport
}

func NewStatsBatcher(ledger *LedgerService, clock clockwork.Clock, policy FlushPolicy) *StatsBatcher {
	s := &StatsBatcher{Ledger: ledger, flushed: map[string]statsReport{}}
	s.batcher = NewBatcher("stats", policy, clock, maxReport, s.write)
	s.batcher.Size = s.jump
	s.batcher.Forget = s.forget
	return s
}

func (s *StatsBatcher) forget(key string) {
	s.mu.Lock()
	delete(s.flushed, key)
	s.mu.Unlock()
}

// jump is how far the pending totals have moved past what was last written.
func (s *StatsBatcher) jump(key string, v statsReport) int64 {
	s.mu.Lock()
	prev := s.flushed[key]
	s.mu.Unlock()
	return max(v.Damage-prev.Damage, v.Gold-prev.Gold)
}

// Report records the player's current lifetime totals. The write happens later, off the
// caller's goroutine.
func (s *StatsBatcher) Report(userID string, totalDamage, totalGold int64) error {
	if totalDamage < 0 || totalDamage > MaxReportedStat || totalGold < 0 || totalGold > MaxReportedStat {
		return invalid("stats", fmt.Errorf("%w: damage=%d gold=%d", ErrAnomalousChange, totalDamage, totalGold))
	}
	s.batcher.Add(userID, statsReport{Damage: totalDamage, Gold: totalGold})
	return nil
}

func (s *StatsBatcher) write(ctx context.Context, b Batch[statsReport]) error {
	acc, err := s.Ledger.mutateAccount(ctx, "stats flush", b.Key, func(acc *models.Account) error {
		acc.Stats.TotalDamage = max(acc.Stats.TotalDamage, b.Value.Damage)
		acc.Stats.TotalGoldEarned = max(acc.Stats.TotalGoldEarned, b.Value.Gold)
		return nil
	})
	if errors.Is(err, ErrAccountNotFound) {
		log.Printf("⚠️ [Stats] dropping totals for missing account %s", b.Key)
		return nil
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.flushed[b.Key] = statsReport{Damage: acc.Stats.TotalDamage, Gold: acc.Stats.TotalGoldEarned}
	s.mu.Unlock()

	if s.Leaderboard != nil {
		if err := s.Leaderboard.Submit(ctx, acc.ID, acc.DisplayName, acc.Stats.TotalDamage); err != nil {
			log.Printf("⚠️ [Stats] leaderboard submit for %s: %v", acc.ID, err)
		}
	}
	return nil
}

func (s *StatsBatcher) Start() error                   { return s.batcher.Start() }
func (s *StatsBatcher) Stop(ctx context.Context) error { return s.batcher.Stop(ctx) }
func (s *StatsBatcher) Sweep(ctx context.Context)      { s.batcher.Sweep(ctx) }
func (s *StatsBatcher) Wait()                          { s.batcher.Wait() }
func (s *StatsBatcher) FlushAll(ctx context.Context) error {
	return s.batcher.FlushAll(ctx)
}
