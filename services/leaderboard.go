package services

import (
	"context"
	"errors"
	"fmt"

	"tree-game-server/models"
	"tree-game-server/store"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultLeaderboardSize = 20
	leaderboardDamageKey   = "leaderboard:damage"
	leaderboardNamesKey    = "leaderboard:names"
)

type LeaderboardEntry struct {
	Rank        int64  `json:"rank"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	TotalDamage int64  `json:"total_damage"`
}

// Leaderboard ranks players by lifetime damage.
type Leaderboard interface {
	LeaderboardSink
	Top(ctx context.Context, n int) ([]LeaderboardEntry, error)
	Rank(ctx context.Context, userID string) (*LeaderboardEntry, error)
}

// RedisLeaderboard keeps the ranking in a sorted set. Scores only move up (ZADD GT), so
// late or duplicate submissions cannot lower a player's position.
type RedisLeaderboard struct {
	rdb redis.Cmdable
}

func NewRedisLeaderboard(rdb redis.Cmdable) *RedisLeaderboard {
	return &RedisLeaderboard{rdb: rdb}
}

func (l *RedisLeaderboard) Submit(ctx context.Context, userID, displayName string, totalDamage int64) error {
	pipe := l.rdb.TxPipeline()
	pipe.ZAddGT(ctx, leaderboardDamageKey, redis.Z{Score: float64(totalDamage), Member: userID})
	if displayName != "" {
		pipe.HSet(ctx, leaderboardNamesKey, userID, displayName)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to submit leaderboard score: %w", err)
	}
	return nil
}

func (l *RedisLeaderboard) Top(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	if n <= 0 {
		n = DefaultLeaderboardSize
	}
	players, err := l.rdb.ZRevRangeWithScores(ctx, leaderboardDamageKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get top players: %w", err)
	}
	if len(players) == 0 {
		return []LeaderboardEntry{}, nil
	}
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i], _ = p.Member.(string)
	}
	names, err := l.rdb.HMGet(ctx, leaderboardNamesKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard names: %w", err)
	}
	entries := make([]LeaderboardEntry, len(players))
	for i, p := range players {
		name, _ := names[i].(string)
		entries[i] = LeaderboardEntry{Rank: int64(i + 1), UserID: ids[i], DisplayName: name, TotalDamage: int64(p.Score)}
	}
	return entries, nil
}

func (l *RedisLeaderboard) Rank(ctx context.Context, userID string) (*LeaderboardEntry, error) {
	rank, err := l.rdb.ZRevRank(ctx, leaderboardDamageKey, userID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player rank: %w", err)
	}
	score, err := l.rdb.ZScore(ctx, leaderboardDamageKey, userID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get player score: %w", err)
	}
	name, err := l.rdb.HGet(ctx, leaderboardNamesKey, userID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get player name: %w", err)
	}
	return &LeaderboardEntry{Rank: rank + 1, UserID: userID, DisplayName: name, TotalDamage: int64(score)}, nil
}

// StoreLeaderboard answers from the accounts collection directly. It is used when no
// Redis is configured; Submit has nothing to do since the totals already live there.
type StoreLeaderboard struct {
	Store store.Store
}

func (l *StoreLeaderboard) Submit(context.Context, string, string, int64) error { return nil }

func (l *StoreLeaderboard) ranked(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	snaps, err := l.Store.Query(ctx, store.Query{
		Collection: store.Accounts,
		OrderBy:    "stats.total_damage",
		Desc:       true,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	entries := make([]LeaderboardEntry, 0, len(snaps))
	for _, snap := range snaps {
		acc, err := models.DecodeAccount(snap.Data)
		if err != nil {
			continue
		}
		entries = append(entries, LeaderboardEntry{
			Rank:        int64(len(entries) + 1),
			UserID:      acc.ID,
			DisplayName: acc.DisplayName,
			TotalDamage: acc.Stats.TotalDamage,
		})
	}
	return entries, nil
}

func (l *StoreLeaderboard) Top(ctx context.Context, n int) ([]LeaderboardEntry, error) {
	if n <= 0 {
		n = DefaultLeaderboardSize
	}
	return l.ranked(ctx, n)
}

func (l *StoreLeaderboard) Rank(ctx context.Context, userID string) (*LeaderboardEntry, error) {
	all, err := l.ranked(ctx, 0)
	if err != nil {
		return nil, err
	}
	for _, e := range all {
		if e.UserID == userID {
			return &e, nil
		}
	}
	return nil, ErrNotFound
}
