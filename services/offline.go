package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tree-game-server/models"
	"tree-game-server/store"

	"github.com/jonboulle/clockwork"
)

const (
	MinOfflineDuration    = time.Minute
	MaxOfflineDuration    = 24 * time.Hour
	DefaultAttackInterval = 2000 // ms

	defaultOfflineGoldChance = 0.3
	defaultOfflineGoldMin    = 5
	defaultOfflineGoldMax    = 15
)

// OfflineReward is what a player earned while away.
type OfflineReward struct {
	WeaponID    int           `json:"weapon_id"`
	Elapsed     time.Duration `json:"-"`
	ElapsedMs   int64         `json:"elapsed_ms"`
	AttackCount int64         `json:"attack_count"`
	TotalDamage int64         `json:"total_damage"`
	TotalGold   int64         `json:"total_gold"`
}

func (r *OfflineReward) Hours() float64 {
	return r.Elapsed.Hours()
}

type OfflineApplyResult struct {
	Reward   OfflineReward     `json:"reward"`
	Gold     int64             `json:"gold"`
	State    models.WorldState `json:"state"`
	Defeated bool              `json:"defeated"`
}

// OfflineService credits idle time. The snapshot saved when a player goes idle is the
// only input; applying it clears it in the same transaction.
type OfflineService struct {
	Ledger *LedgerService
	World  *WorldService
	Rand   RandSource
	Clock  clockwork.Clock
}

func NewOfflineService(ledger *LedgerService, world *WorldService, rng RandSource, clock clockwork.Clock) *OfflineService {
	return &OfflineService{Ledger: ledger, World: world, Rand: rng, Clock: clock}
}

// SaveOfflineState records the weapon the player idles with. A nil since means now.
func (o *OfflineService) SaveOfflineState(ctx context.Context, id string, weaponID, level, interval int, since *time.Time) error {
	if weaponID <= 0 {
		return invalid("offline state", ErrInvalidWeapon)
	}
	if level < 1 {
		level = 1
	}
	if interval <= 0 {
		interval = DefaultAttackInterval
	}
	lastActive := o.Clock.Now()
	if since != nil && !since.IsZero() && since.Before(lastActive) {
		lastActive = *since
	}
	_, err := o.Ledger.mutateAccount(ctx, "save offline state", id, func(acc *models.Account) error {
		acc.OfflineState = &models.OfflineState{
			WeaponID:       weaponID,
			WeaponLevel:    level,
			AttackInterval: interval,
			LastActive:     lastActive,
		}
		return nil
	})
	return err
}

func (o *OfflineService) ClearOfflineState(ctx context.Context, id string) error {
	_, err := o.Ledger.mutateAccount(ctx, "clear offline state", id, func(acc *models.Account) error {
		acc.OfflineState = nil
		return nil
	})
	return err
}

// compute turns a snapshot into a reward, or nil when the player was away too briefly.
func (o *OfflineService) compute(state *models.OfflineState, weapon *models.Weapon, now time.Time) (*OfflineReward, error) {
	elapsed := now.Sub(state.LastActive)
	if elapsed < MinOfflineDuration {
		return nil, nil
	}
	elapsed = min(elapsed, MaxOfflineDuration)

	interval := state.AttackInterval
	if interval <= 0 {
		interval = DefaultAttackInterval
	}
	attacks := elapsed.Milliseconds() / int64(interval)
	if attacks == 0 {
		return nil, nil
	}

	level := max(state.WeaponLevel, 1)
	perHit := weaponDamage(weapon.Attack, level)
	if perHit < MinAttackDamage || perHit > MaxAttackDamage {
		return nil, invalid("offline reward", fmt.Errorf("%w: %d", ErrDamageOutOfRange, perHit))
	}

	chance, lo, hi := weapon.GoldChance, weapon.GoldMin, weapon.GoldMax
	if chance == 0 {
		chance = defaultOfflineGoldChance
	}
	if lo == 0 {
		lo = defaultOfflineGoldMin
	}
	if hi == 0 {
		hi = defaultOfflineGoldMax
	}
	var gold int64
	for i := int64(0); i < attacks; i++ {
		gold += rollGold(o.Rand, chance, lo, hi)
	}

	return &OfflineReward{
		WeaponID:    weapon.ID,
		Elapsed:     elapsed,
		ElapsedMs:   elapsed.Milliseconds(),
		AttackCount: attacks,
		TotalDamage: perHit * attacks,
		TotalGold:   gold,
	}, nil
}

// Calculate previews the pending reward without changing anything. It returns nil when
// there is no snapshot or nothing has accrued yet.
func (o *OfflineService) Calculate(ctx context.Context, id string) (*OfflineReward, error) {
	acc, err := o.Ledger.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc.OfflineState == nil {
		return nil, nil
	}
	weapon, err := o.Ledger.Catalog.Weapon(ctx, acc.OfflineState.WeaponID)
	if err != nil {
		return nil, err
	}
	return o.compute(acc.OfflineState, weapon, o.Clock.Now())
}

// Apply recomputes the reward from the stored snapshot, credits it to the account and
// the tree, and clears the snapshot in one transaction. A second call finds no snapshot
// and returns nil.
func (o *OfflineService) Apply(ctx context.Context, id string) (*OfflineApplyResult, error) {
	var (
		result *OfflineApplyResult
		acc    *models.Account
	)
	err := withRetry(ctx, o.Ledger.Retry, "apply offline", func() error {
		result, acc = nil, nil
		return o.Ledger.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			now := o.Clock.Now()
			a, err := loadAccount(ctx, tx, id)
			if err != nil {
				return err
			}
			if a.OfflineState == nil {
				return nil
			}
			weapon, err := o.Ledger.Catalog.Weapon(ctx, a.OfflineState.WeaponID)
			if errors.Is(err, ErrNotFound) {
				log.Printf("⚠️ [Offline] %s: weapon %d left the catalog, discarding snapshot", id, a.OfflineState.WeaponID)
				a.OfflineState = nil
				a.UpdatedAt = now
				return tx.Set(store.Accounts, id, a)
			}
			if err != nil {
				return err
			}
			reward, err := o.compute(a.OfflineState, weapon, now)
			if err != nil {
				return err
			}

			a.OfflineState = nil
			a.UpdatedAt = now
			if reward == nil {
				acc = a
				return tx.Set(store.Accounts, id, a)
			}

			state, _, err := o.World.loadWorld(ctx, tx)
			if err != nil {
				return err
			}
			defeated := state.ApplyDamage(reward.TotalDamage, now)

			a.Gold += reward.TotalGold
			a.Stats.TotalDamage += reward.TotalDamage
			a.Stats.TotalGoldEarned += reward.TotalGold
			if defeated {
				a.Stats.TreeDefeatedCount++
			}
			if err := tx.Set(store.Accounts, id, a); err != nil {
				return err
			}
			if err := tx.Set(store.WorldState, models.WorldStateKey, state); err != nil {
				return err
			}
			acc = a
			result = &OfflineApplyResult{Reward: *reward, Gold: a.Gold, State: state, Defeated: defeated}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	log.Printf("💤 [Offline] %s: %d attacks over %.1fh, %d damage, %d gold",
		id, result.Reward.AttackCount, result.Reward.Hours(), result.Reward.TotalDamage, result.Reward.TotalGold)
	if o.World.Stats != nil {
		if err := o.World.Stats.Report(acc.ID, acc.Stats.TotalDamage, acc.Stats.TotalGoldEarned); err != nil {
			log.Printf("⚠️ [Offline] stats report: %v", err)
		}
	}
	if result.Defeated {
		log.Printf("🪓 [Offline] tree defeated by %s's idle attacks", acc.DisplayName)
		o.World.pruneAsync()
	}
	return result, nil
}
