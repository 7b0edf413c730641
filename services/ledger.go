package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"tree-game-server/models"
	"tree-game-server/store"

	"github.com/jonboulle/clockwork"
)

const (
	MaxSingleGoldDelta = 1_000_000
	MaxBatchGoldDelta  = 10_000_000
)

// DrawPrices is the only accepted cost for a draw at each rarity floor.
var DrawPrices = map[models.Rarity]int64{
	models.RarityCommon:    200,
	models.RarityRare:      2000,
	models.RarityEpic:      20000,
	models.RarityLegendary: 200000,
}

// Announcer posts system messages to the shared chat.
type Announcer interface {
	AnnounceLegendary(ctx context.Context, userID, userName, weaponName string) error
	AnnounceAchievement(ctx context.Context, userID, userName, achievementID string) error
}

// LedgerService owns every change to an account's gold, inventory and stats. Each
// operation re-reads the account inside a store transaction and writes nothing when
// validation fails.
type LedgerService struct {
	Store     store.Store
	Catalog   *CatalogService
	Announcer Announcer
	Rand      RandSource
	Clock     clockwork.Clock
	Retry     RetryPolicy
}

func NewLedgerService(s store.Store, catalog *CatalogService, rng RandSource, clock clockwork.Clock) *LedgerService {
	return &LedgerService{
		Store:   s,
		Catalog: catalog,
		Rand:    rng,
		Clock:   clock,
		Retry:   DefaultRetryPolicy,
	}
}

func loadAccount(ctx context.Context, tx store.Tx, id string) (*models.Account, error) {
	snap, err := tx.Get(ctx, store.Accounts, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return models.DecodeAccount(snap.Data)
}

// GetAccount reads an account outside any transaction.
func (l *LedgerService) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	snap, err := l.Store.Get(ctx, store.Accounts, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return models.DecodeAccount(snap.Data)
}

// mutateAccount runs fn against a freshly read copy of the account and stores the
// result, retrying on conflict. fn returning an error aborts without writing.
func (l *LedgerService) mutateAccount(ctx context.Context, op, id string, fn func(acc *models.Account) error) (*models.Account, error) {
	var result *models.Account
	err := withRetry(ctx, l.Retry, op, func() error {
		return l.Store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			acc, err := loadAccount(ctx, tx, id)
			if err != nil {
				return err
			}
			if err := fn(acc); err != nil {
				return err
			}
			acc.UpdatedAt = l.Clock.Now()
			result = acc
			return tx.Set(store.Accounts, id, acc)
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func checkGoldDelta(op string, gold, delta, limit int64) error {
	if delta > limit || delta < -limit {
		return invalid(op, fmt.Errorf("%w: %d", ErrAnomalousChange, delta))
	}
	if gold+delta < 0 {
		return invalid(op, ErrInsufficientFunds)
	}
	return nil
}

// ApplyGoldDelta credits or debits a single event's gold and returns the new balance.
func (l *LedgerService) ApplyGoldDelta(ctx context.Context, id string, delta int64) (int64, error) {
	acc, err := l.mutateAccount(ctx, "gold delta", id, func(acc *models.Account) error {
		if err := checkGoldDelta("gold delta", acc.Gold, delta, MaxSingleGoldDelta); err != nil {
			return err
		}
		acc.Gold += delta
		return nil
	})
	if err != nil {
		return 0, err
	}
	return acc.Gold, nil
}

// BatchGoldDelta applies gold accumulated over many events, with a wider sanity bound.
func (l *LedgerService) BatchGoldDelta(ctx context.Context, id string, delta int64) (int64, error) {
	acc, err := l.mutateAccount(ctx, "batch gold delta", id, func(acc *models.Account) error {
		if err := checkGoldDelta("batch gold delta", acc.Gold, delta, MaxBatchGoldDelta); err != nil {
			return err
		}
		acc.Gold += delta
		return nil
	})
	if err != nil {
		return 0, err
	}
	log.Printf("[Ledger] %s batch gold %+d → %d", id, delta, acc.Gold)
	return acc.Gold, nil
}

type DrawResult struct {
	Weapon        models.Weapon           `json:"weapon"`
	Gold          int64                   `json:"gold"`
	Inventory     []models.WeaponInstance `json:"inventory"`
	EquippedIndex *int                    `json:"equipped_index"`
	DrawCount     int64                   `json:"draw_count"`
}

// Draw buys one weapon at the given rarity floor. The weapon is always chosen here;
// cost must match DrawPrices for the floor. The drawn weapon is added to the inventory
// in the same transaction as the debit.
func (l *LedgerService) Draw(ctx context.Context, id string, floor models.Rarity, cost int64) (*DrawResult, error) {
	if !floor.Valid() {
		return nil, invalid("draw", ErrInvalidRarity)
	}
	if price := DrawPrices[floor]; price != cost {
		return nil, invalid("draw", fmt.Errorf("%w: %s costs %d, got %d", ErrInvalidPrice, floor, price, cost))
	}

	catalog, err := l.Catalog.Weapons(ctx)
	if err != nil {
		return nil, err
	}
	weapon := PickWeapon(catalog, &floor, l.Rand)
	if weapon == nil {
		return nil, invalid("draw", ErrNoWeaponAvailable)
	}

	acc, err := l.mutateAccount(ctx, "draw", id, func(acc *models.Account) error {
		if acc.Gold < cost {
			return invalid("draw", ErrInsufficientFunds)
		}
		if len(acc.Inventory) >= MaxInventorySize {
			return invalid("draw", ErrInventoryFull)
		}
		acc.Gold -= cost
		acc.Stats.DrawCount++
		acc.Stats.CountRarity(weapon.Rarity)
		acc.Inventory = append(acc.Inventory, weapon.Instance())
		if acc.EquippedIndex == nil {
			acc.EquippedIndex = intPtr(len(acc.Inventory) - 1)
		}
		if lvl := maxLevel(acc.Inventory); lvl > acc.Stats.MaxWeaponLevel {
			acc.Stats.MaxWeaponLevel = lvl
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("🎲 [Ledger] %s drew %s (%s) for %d", id, weapon.Name, weapon.Rarity, cost)
	if weapon.Rarity == models.RarityLegendary && l.Announcer != nil {
		if err := l.Announcer.AnnounceLegendary(ctx, acc.ID, acc.DisplayName, weapon.Name); err != nil {
			log.Printf("⚠️ [Ledger] legendary announcement failed: %v", err)
		}
	}

	return &DrawResult{
		Weapon:        *weapon,
		Gold:          acc.Gold,
		Inventory:     acc.Inventory,
		EquippedIndex: acc.EquippedIndex,
		DrawCount:     acc.Stats.DrawCount,
	}, nil
}

type InventoryResult struct {
	Gold          int64                   `json:"gold"`
	Inventory     []models.WeaponInstance `json:"inventory"`
	EquippedIndex *int                    `json:"equipped_index"`
}

func inventoryResult(acc *models.Account) *InventoryResult {
	return &InventoryResult{Gold: acc.Gold, Inventory: acc.Inventory, EquippedIndex: acc.EquippedIndex}
}

// AddWeapon appends a weapon instance to the inventory.
func (l *LedgerService) AddWeapon(ctx context.Context, id string, w models.WeaponInstance) (*InventoryResult, error) {
	if w.Level == 0 {
		w.Level = 1
	}
	if !w.Valid() {
		return nil, invalid("add weapon", ErrInvalidWeapon)
	}
	acc, err := l.mutateAccount(ctx, "add weapon", id, func(acc *models.Account) error {
		if len(acc.Inventory) >= MaxInventorySize {
			return invalid("add weapon", ErrInventoryFull)
		}
		acc.Inventory = append(acc.Inventory, w)
		if w.Level > acc.Stats.MaxWeaponLevel {
			acc.Stats.MaxWeaponLevel = w.Level
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inventoryResult(acc), nil
}

// UpgradeWeapon replaces the slot at index, leaving every other slot untouched.
func (l *LedgerService) UpgradeWeapon(ctx context.Context, id string, index int, w models.WeaponInstance) (*InventoryResult, error) {
	if !w.Valid() {
		return nil, invalid("upgrade weapon", ErrInvalidWeapon)
	}
	acc, err := l.mutateAccount(ctx, "upgrade weapon", id, func(acc *models.Account) error {
		if index < 0 || index >= len(acc.Inventory) {
			return invalid("upgrade weapon", ErrInvalidIndex)
		}
		acc.Inventory[index] = w
		if w.Level > acc.Stats.MaxWeaponLevel {
			acc.Stats.MaxWeaponLevel = w.Level
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inventoryResult(acc), nil
}

// SellWeapon removes the slot at index and credits price. The last weapon cannot be sold.
func (l *LedgerService) SellWeapon(ctx context.Context, id string, index int, price int64) (*InventoryResult, error) {
	if price < 0 || price > MaxSellPrice {
		return nil, invalid("sell weapon", fmt.Errorf("%w: %d", ErrInvalidSellPrice, price))
	}
	acc, err := l.mutateAccount(ctx, "sell weapon", id, func(acc *models.Account) error {
		if index < 0 || index >= len(acc.Inventory) {
			return invalid("sell weapon", ErrInvalidIndex)
		}
		if len(acc.Inventory) <= 1 {
			return invalid("sell weapon", ErrMustKeepOne)
		}
		inv := make([]models.WeaponInstance, 0, len(acc.Inventory)-1)
		inv = append(inv, acc.Inventory[:index]...)
		inv = append(inv, acc.Inventory[index+1:]...)
		acc.Inventory = inv
		acc.EquippedIndex = equippedAfterSell(acc.EquippedIndex, index, len(inv))
		acc.Gold += price
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inventoryResult(acc), nil
}

// SacrificeUpgrade consumes the sacrifice slots to upgrade target. It never changes gold:
// the returned balance is the stored one.
func (l *LedgerService) SacrificeUpgrade(ctx context.Context, id string, target int, sacrifices []int, upgraded models.WeaponInstance) (*InventoryResult, error) {
	if !upgraded.Valid() {
		return nil, invalid("sacrifice", ErrInvalidWeapon)
	}
	acc, err := l.mutateAccount(ctx, "sacrifice", id, func(acc *models.Account) error {
		sacrificed, err := normalizeSacrifices(len(acc.Inventory), target, sacrifices)
		if err != nil {
			return invalid("sacrifice", err)
		}
		inv := sacrificeInventory(acc.Inventory, target, sacrificed, upgraded)
		acc.EquippedIndex = equippedAfterSacrifice(acc.EquippedIndex, sacrificed, len(inv))
		acc.Inventory = inv
		acc.Stats.SacrificeCount++
		if upgraded.Level > acc.Stats.MaxWeaponLevel {
			acc.Stats.MaxWeaponLevel = upgraded.Level
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Ledger] %s sacrificed %d weapons into slot %d (level %d)", id, len(sacrifices), target, upgraded.Level)
	return inventoryResult(acc), nil
}

// EquipWeapon selects the inventory slot used for attacks; nil unequips.
func (l *LedgerService) EquipWeapon(ctx context.Context, id string, index *int) (*InventoryResult, error) {
	acc, err := l.mutateAccount(ctx, "equip weapon", id, func(acc *models.Account) error {
		if index != nil && (*index < 0 || *index >= len(acc.Inventory)) {
			return invalid("equip weapon", ErrInvalidIndex)
		}
		if index == nil {
			acc.EquippedIndex = nil
		} else {
			acc.EquippedIndex = intPtr(*index)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inventoryResult(acc), nil
}

// UpdateAchievement upserts one achievement by id. A newly unlocked achievement is
// announced in chat.
func (l *LedgerService) UpdateAchievement(ctx context.Context, id string, a models.Achievement) ([]models.Achievement, error) {
	if a.ID == "" {
		return nil, invalid("achievement", errors.New("achievement id is required"))
	}
	var entry models.Achievement
	newlyUnlocked := false
	acc, err := l.mutateAccount(ctx, "achievement", id, func(acc *models.Account) error {
		entry, newlyUnlocked = a, false
		for i := range acc.Achievements {
			if acc.Achievements[i].ID != a.ID {
				continue
			}
			existing := acc.Achievements[i]
			if a.Unlocked && !existing.Unlocked {
				now := l.Clock.Now()
				entry.UnlockedAt = &now
				newlyUnlocked = true
			} else {
				entry.UnlockedAt = existing.UnlockedAt
			}
			entry.Unlocked = a.Unlocked || existing.Unlocked
			acc.Achievements[i] = entry
			return nil
		}
		if a.Unlocked {
			now := l.Clock.Now()
			entry.UnlockedAt = &now
			newlyUnlocked = true
		}
		acc.Achievements = append(acc.Achievements, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if newlyUnlocked && l.Announcer != nil {
		if err := l.Announcer.AnnounceAchievement(ctx, acc.ID, acc.DisplayName, a.ID); err != nil {
			log.Printf("⚠️ [Ledger] achievement announcement failed: %v", err)
		}
	}
	return acc.Achievements, nil
}
