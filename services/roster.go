package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"tree-game-server/models"
	"tree-game-server/store"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

const (
	RosterStaleAfter    = 5 * time.Minute
	RosterSweepInterval = time.Minute
	RosterThrottle      = 3 * time.Second
)

// RosterService tracks who is playing right now.
type RosterService struct {
	Store      store.Store
	Clock      clockwork.Clock
	StaleAfter time.Duration
	Throttle   time.Duration

	sched gocron.Scheduler
}

func NewRosterService(s store.Store, clock clockwork.Clock) *RosterService {
	return &RosterService{Store: s, Clock: clock, StaleAfter: RosterStaleAfter, Throttle: RosterThrottle}
}

func (r *RosterService) SetOnline(ctx context.Context, userID, displayName, weaponName string) error {
	return r.Store.Set(ctx, store.OnlineUsers, userID, models.OnlineUser{
		UserID:      userID,
		DisplayName: displayName,
		WeaponName:  weaponName,
		IsOnline:    true,
		LastActive:  r.Clock.Now(),
	})
}

func (r *RosterService) SetOffline(ctx context.Context, userID string) error {
	return r.Store.Merge(ctx, store.OnlineUsers, userID, map[string]any{
		"is_online":   false,
		"last_active": r.Clock.Now(),
	})
}

// Heartbeat keeps the player listed; weaponName is updated when set.
func (r *RosterService) Heartbeat(ctx context.Context, userID, weaponName string) error {
	fields := map[string]any{
		"user_id":     userID,
		"is_online":   true,
		"last_active": r.Clock.Now(),
	}
	if weaponName != "" {
		fields["weapon_name"] = weaponName
	}
	return r.Store.Merge(ctx, store.OnlineUsers, userID, fields)
}

var onlineQuery = store.Query{
	Collection: store.OnlineUsers,
	Where:      []store.Filter{{Field: "is_online", Value: true}},
}

func decodeRoster(snaps []store.Snapshot) []models.OnlineUser {
	users := make([]models.OnlineUser, 0, len(snaps))
	for _, snap := range snaps {
		var u models.OnlineUser
		if err := snap.DataTo(&u); err != nil {
			continue
		}
		if u.UserID == "" {
			u.UserID = snap.Key
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].DisplayName < users[j].DisplayName })
	return users
}

func (r *RosterService) Online(ctx context.Context) ([]models.OnlineUser, error) {
	snaps, err := r.Store.Query(ctx, onlineQuery)
	if err != nil {
		return nil, err
	}
	return decodeRoster(snaps), nil
}

func (r *RosterService) Subscribe(fn func([]models.OnlineUser)) store.Unsubscribe {
	th := NewThrottle(r.Clock, r.Throttle, fn)
	unsub := r.Store.SubscribeQuery(onlineQuery, func(snaps []store.Snapshot) {
		th.Push(decodeRoster(snaps))
	})
	return func() {
		unsub()
		th.Stop()
	}
}

// CleanupStale marks players offline who have not been seen for StaleAfter.
func (r *RosterService) CleanupStale(ctx context.Context) (int, error) {
	users, err := r.Online(ctx)
	if err != nil {
		return 0, err
	}
	now := r.Clock.Now()
	n := 0
	for _, u := range users {
		if now.Sub(u.LastActive) <= r.StaleAfter {
			continue
		}
		if err := r.SetOffline(ctx, u.UserID); err != nil {
			return n, fmt.Errorf("mark %s offline: %w", u.UserID, err)
		}
		n++
	}
	if n > 0 {
		log.Printf("[Roster] marked %d idle players offline", n)
	}
	return n, nil
}

// Start runs CleanupStale every RosterSweepInterval until Stop.
func (r *RosterService) Start() error {
	sched, err := gocron.NewScheduler(gocron.WithClock(r.Clock))
	if err != nil {
		return fmt.Errorf("roster: create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(RosterSweepInterval),
		gocron.NewTask(func() {
			if _, err := r.CleanupStale(context.Background()); err != nil {
				log.Printf("⚠️ [Roster] cleanup failed: %v", err)
			}
		}),
		gocron.WithName("roster-cleanup"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("roster: schedule cleanup: %w", err)
	}
	sched.Start()
	r.sched = sched
	log.Printf("✅ [Roster] stale cleanup every %s", RosterSweepInterval)
	return nil
}

func (r *RosterService) Stop() error {
	if r.sched == nil {
		return nil
	}
	err := r.sched.Shutdown()
	r.sched = nil
	return err
}
