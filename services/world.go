package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"tree-game-server/models"
	"tree-game-server/store"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultFreshness = 72 * time.Hour
	MinAttackDamage  = 1
	MaxAttackDamage  = 1000
	RecentAttackSize = 20
	// FeedThrottle spaces out tree and attack log deliveries to each subscriber.
	FeedThrottle = time.Second
)

// weaponDamage is the per-hit damage of a weapon at the given level.
func weaponDamage(attack, level int) int64 {
	return int64(float64(attack) * (1 + float64(level-1)*0.5))
}

type AttackRequest struct {
	UserID   string `json:"-"`
	UserName string `json:"user_name"`
	WeaponID int    `json:"weapon_id"`
	Level    int    `json:"level"`
}

type AttackResult struct {
	State    models.WorldState `json:"state"`
	Applied  bool              `json:"applied"`
	Damage   int64             `json:"damage"`
	Gold     int64             `json:"gold"`
	Defeated bool              `json:"defeated"`
}

// WorldService owns the shared tree. Every hit updates the attacker's account and the
// tree in one transaction so concurrent attackers never lose damage.
type WorldService struct {
	Store     store.Store
	Catalog   *CatalogService
	Rand      RandSource
	Clock     clockwork.Clock
	Retry     RetryPolicy
	MaxHealth int64
	Freshness time.Duration
	Throttle  time.Duration

	Attacks *AttackLog
	Stats   *StatsBatcher

	wg sync.WaitGroup
}

func NewWorldService(s store.Store, catalog *CatalogService, rng RandSource, clock clockwork.Clock) *WorldService {
	return &WorldService{
		Store:     s,
		Catalog:   catalog,
		Rand:      rng,
		Clock:     clock,
		Retry:     DefaultRetryPolicy,
		MaxHealth: models.DefaultMaxTreeHealth,
		Freshness: DefaultFreshness,
		Throttle:  FeedThrottle,
	}
}

// loadWorld reads the tree inside tx, starting a fresh one when none exists yet.
func (w *WorldService) loadWorld(ctx context.Context, tx store.Tx) (models.WorldState, bool, error) {
	snap, err := tx.Get(ctx, store.WorldState, models.WorldStateKey)
	if errors.Is(err, store.ErrNotFound) {
		return models.NewWorldState(w.MaxHealth, w.Clock.Now()), true, nil
	}
	if err != nil {
		return models.WorldState{}, false, err
	}
	var state models.WorldState
	if err := snap.DataTo(&state); err != nil {
		return models.WorldState{}, false, fmt.Errorf("decode world state: %w", err)
	}
	return state, false, nil
}

// GetState returns the current tree, creating it on first use.
func (w *WorldService) GetState(ctx context.Context) (models.WorldState, error) {
	var state models.WorldState
	err := withRetry(ctx, w.Retry, "world state", func() error {
		return w.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			s, created, err := w.loadWorld(ctx, tx)
			if err != nil {
				return err
			}
			state = s
			if created {
				log.Printf("🌳 [World] created tree with %d health", s.MaxTreeHealth)
				return tx.Set(store.WorldState, models.WorldStateKey, s)
			}
			return nil
		})
	})
	return state, err
}

func (w *WorldService) dormant(acc *models.Account, now time.Time) bool {
	return acc.LastLogin.IsZero() || now.Sub(acc.LastLogin) > w.Freshness
}

// resolveHit looks the weapon up and bounds its damage at the requested level.
func (w *WorldService) resolveHit(ctx context.Context, req AttackRequest) (*models.Weapon, int64, error) {
	weapon, err := w.Catalog.Weapon(ctx, req.WeaponID)
	if err != nil {
		return nil, 0, err
	}
	if req.Level < 1 {
		return nil, 0, invalid("attack", fmt.Errorf("%w: level %d", ErrDamageOutOfRange, req.Level))
	}
	damage := weaponDamage(weapon.Attack, req.Level)
	if damage < MinAttackDamage || damage > MaxAttackDamage {
		log.Printf("❌ [World] damage %d out of range (weapon %d, level %d)", damage, weapon.ID, req.Level)
		return nil, 0, invalid("attack", fmt.Errorf("%w: %d", ErrDamageOutOfRange, damage))
	}
	return weapon, damage, nil
}

// Attack applies one hit with the player's weapon. Damage and gold are computed here
// from the catalog; the client only names the weapon and its level. Freshness is checked
// first: a player who has not logged in within Freshness deals no damage and gets the
// unchanged state back, whatever the request carried.
func (w *WorldService) Attack(ctx context.Context, req AttackRequest) (*AttackResult, error) {
	weapon, damage, hitErr := w.resolveHit(ctx, req)
	if hitErr != nil && !IsValidation(hitErr) && !errors.Is(hitErr, ErrNotFound) {
		return nil, hitErr
	}
	var gold int64
	if hitErr == nil {
		gold = rollGold(w.Rand, weapon.GoldChance, weapon.GoldMin, weapon.GoldMax)
	}

	var (
		result AttackResult
		acc    *models.Account
	)
	err := withRetry(ctx, w.Retry, "attack", func() error {
		result = AttackResult{}
		return w.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			now := w.Clock.Now()
			a, err := loadAccount(ctx, tx, req.UserID)
			if err != nil {
				return err
			}
			state, created, err := w.loadWorld(ctx, tx)
			if err != nil {
				return err
			}
			if w.dormant(a, now) {
				result.State = state
				if created {
					return tx.Set(store.WorldState, models.WorldStateKey, state)
				}
				return nil
			}
			if hitErr != nil {
				return hitErr
			}

			defeated := state.ApplyDamage(damage, now)
			a.Gold += gold
			a.Stats.TotalDamage += damage
			a.Stats.TotalGoldEarned += gold
			if defeated {
				a.Stats.TreeDefeatedCount++
			}
			a.UpdatedAt = now

			if err := tx.Set(store.Accounts, req.UserID, a); err != nil {
				return err
			}
			if err := tx.Set(store.WorldState, models.WorldStateKey, state); err != nil {
				return err
			}
			acc = a
			result = AttackResult{State: state, Applied: true, Damage: damage, Gold: gold, Defeated: defeated}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if !result.Applied {
		log.Printf("[World] %s is dormant, attack ignored", req.UserID)
		return &result, nil
	}

	w.afterAttack(acc, weapon.Name, result)
	return &result, nil
}

// afterAttack runs the best-effort side effects of a committed hit.
func (w *WorldService) afterAttack(acc *models.Account, weaponName string, result AttackResult) {
	if w.Attacks != nil && result.Damage > 0 {
		w.Attacks.Record(acc.ID, acc.DisplayName, weaponName, result.Damage)
	}
	if w.Stats != nil {
		if err := w.Stats.Report(acc.ID, acc.Stats.TotalDamage, acc.Stats.TotalGoldEarned); err != nil {
			log.Printf("⚠️ [World] stats report: %v", err)
		}
	}
	if result.Defeated {
		log.Printf("🪓 [World] tree defeated by %s, round %d begins", acc.DisplayName, result.State.CurrentRound)
		w.pruneAsync()
	}
}

func (w *WorldService) pruneAsync() {
	if w.Attacks == nil {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if _, err := w.Attacks.Prune(context.Background()); err != nil {
			log.Printf("⚠️ [World] prune attacks: %v", err)
		}
	}()
}

// Wait blocks until background pruning started by defeats has finished.
func (w *WorldService) Wait() { w.wg.Wait() }

// Subscribe calls fn with the tree on every change, at most once per Throttle, until
// the returned func is called. The newest state is always delivered.
func (w *WorldService) Subscribe(fn func(models.WorldState)) store.Unsubscribe {
	th := NewThrottle(w.Clock, w.Throttle, fn)
	unsub := w.Store.SubscribeDoc(store.WorldState, models.WorldStateKey, func(snap store.Snapshot) {
		if !snap.Exists() {
			th.Push(models.NewWorldState(w.MaxHealth, w.Clock.Now()))
			return
		}
		var state models.WorldState
		if err := snap.DataTo(&state); err != nil {
			log.Printf("⚠️ [World] decode state: %v", err)
			return
		}
		th.Push(state)
	})
	return func() {
		unsub()
		th.Stop()
	}
}

func (w *WorldService) RecentAttacks(ctx context.Context, limit int) ([]models.AttackRecord, error) {
	if w.Attacks == nil {
		return []models.AttackRecord{}, nil
	}
	if limit <= 0 {
		limit = RecentAttackSize
	}
	return w.Attacks.Recent(ctx, limit)
}
