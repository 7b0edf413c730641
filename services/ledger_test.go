package services

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"sync"
	"testing"

	"tree-game-server/models"
	"tree-game-server/store"
)

type recordingAnnouncer struct {
	mu           sync.Mutex
	legendary    []string
	achievements []string
}

func (r *recordingAnnouncer) AnnounceLegendary(_ context.Context, _, _, weapon string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.legendary = append(r.legendary, weapon)
	return nil
}

func (r *recordingAnnouncer) AnnounceAchievement(_ context.Context, _, _, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.achievements = append(r.achievements, id)
	return nil
}

func TestGoldDeltaNeverNegative(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "u1", 100, nil, nil)
	ctx := context.Background()

	if _, err := env.ledger.ApplyGoldDelta(ctx, "u1", -101); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := env.account(t, "u1").Gold; got != 100 {
		t.Fatalf("expected balance unchanged at 100, got %d", got)
	}

	gold, err := env.ledger.ApplyGoldDelta(ctx, "u1", -100)
	if err != nil || gold != 0 {
		t.Fatalf("expected balance 0, got %d (%v)", gold, err)
	}
}

func TestGoldDeltaAnomalyBounds(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "u1", 0, nil, nil)
	ctx := context.Background()

	if _, err := env.ledger.ApplyGoldDelta(ctx, "u1", MaxSingleGoldDelta+1); !errors.Is(err, ErrAnomalousChange) {
		t.Fatalf("expected ErrAnomalousChange, got %v", err)
	}
	if _, err := env.ledger.BatchGoldDelta(ctx, "u1", MaxSingleGoldDelta+1); err != nil {
		t.Fatalf("batch within bound should pass, got %v", err)
	}
	if _, err := env.ledger.BatchGoldDelta(ctx, "u1", MaxBatchGoldDelta+1); !errors.Is(err, ErrAnomalousChange) {
		t.Fatalf("expected ErrAnomalousChange for batch, got %v", err)
	}
	if !IsValidation(func() error { _, err := env.ledger.ApplyGoldDelta(ctx, "u1", -MaxSingleGoldDelta-1); return err }()) {
		t.Fatal("expected anomalous debit to be a validation error")
	}
}

func TestGoldDeltaMissingAccount(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.ledger.ApplyGoldDelta(context.Background(), "ghost", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDrawRejectsWrongPrice(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "u1", 1000, nil, nil)
	_, err := env.ledger.Draw(context.Background(), "u1", models.RarityCommon, 1)
	if !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if got := env.account(t, "u1").Gold; got != 1000 {
		t.Fatalf("expected gold untouched, got %d", got)
	}
}

func TestDrawInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "u1", 199, nil, nil)
	_, err := env.ledger.Draw(context.Background(), "u1", models.RarityCommon, 200)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	acc := env.account(t, "u1")
	if acc.Gold != 199 || len(acc.Inventory) != 0 || acc.Stats.DrawCount != 0 {
		t.Fatalf("expected no change, got gold=%d inv=%d draws=%d", acc.Gold, len(acc.Inventory), acc.Stats.DrawCount)
	}
}

func TestDrawDebitsAndAppends(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "u1", 500, nil, nil)
	res, err := env.ledger.Draw(context.Background(), "u1", models.RarityCommon, 200)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if res.Weapon.Rarity != models.RarityCommon {
		t.Fatalf("floor COMMON returned %s", res.Weapon.Rarity)
	}
	acc := env.account(t, "u1")
	if acc.Gold != 300 {
		t.Fatalf("expected 300 gold, got %d", acc.Gold)
	}
	if acc.Stats.DrawCount != 1 || acc.Stats.CommonCount != 1 {
		t.Fatalf("expected draw and common counters at 1, got %d/%d", acc.Stats.DrawCount, acc.Stats.CommonCount)
	}
	if len(acc.Inventory) != 1 || acc.Inventory[0].WeaponID != res.Weapon.ID {
		t.Fatalf("expected drawn weapon in inventory, got %+v", acc.Inventory)
	}
	if acc.EquippedIndex == nil || *acc.EquippedIndex != 0 {
		t.Fatalf("expected first weapon equipped, got %v", deref(acc.EquippedIndex))
	}
}

func TestDrawLegendaryAnnounces(t *testing.T) {
	env := newTestEnv(t)
	ann := &recordingAnnouncer{}
	env.ledger.Announcer = ann
	// a catalog with a single legendary weapon makes the outcome certain
	only := models.DefaultWeapons[len(models.DefaultWeapons)-1]
	for _, w := range models.DefaultWeapons[:len(models.DefaultWeapons)-1] {
		_ = env.store.Delete(context.Background(), store.Weapons, strconv.Itoa(w.ID))
	}
	env.seedAccount(t, "u1", 300000, nil, nil)

	res, err := env.ledger.Draw(context.Background(), "u1", models.RarityLegendary, 200000)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if res.Weapon.ID != only.ID {
		t.Fatalf("expected weapon %d, got %d", only.ID, res.Weapon.ID)
	}
	if len(ann.legendary) != 1 || ann.legendary[0] != only.Name {
		t.Fatalf("expected one legendary announcement, got %v", ann.legendary)
	}
	if env.account(t, "u1").Stats.LegendaryCount != 1 {
		t.Fatal("expected legendary counter to increase")
	}
}

func TestAddWeaponValidation(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "u1", 0, nil, nil)
	ctx := context.Background()

	if _, err := env.ledger.AddWeapon(ctx, "u1", models.WeaponInstance{Name: "no id"}); !errors.Is(err, ErrInvalidWeapon) {
		t.Fatalf("expected ErrInvalidWeapon, got %v", err)
	}
	res, err := env.ledger.AddWeapon(ctx, "u1", weaponInstance(3))
	if err != nil || len(res.Inventory) != 1 {
		t.Fatalf("expected one weapon, got %+v (%v)", res, err)
	}
}

func TestAddWeaponInventoryFull(t *testing.T) {
	env := newTestEnv(t)
	inv := make([]models.WeaponInstance, MaxInventorySize)
	for i := range inv {
		inv[i] = weaponInstance(1)
	}
	env.seedAccount(t, "u1", 0, inv, nil)
	if _, err := env.ledger.AddWeapon(context.Background(), "u1", weaponInstance(2)); !errors.Is(err, ErrInventoryFull) {
		t.Fatalf("expected ErrInventoryFull, got %v", err)
	}
}

func TestUpgradeWeaponReplacesOnlyTarget(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "u1", 0, named("a", "b", "c"), nil)
	ctx := context.Background()

	up := named("b+")[0]
	up.Level = 4
	if _, err := env.ledger.UpgradeWeapon(ctx, "u1", 3, up); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("expected ErrInvalidIndex, got %v", err)
	}
	res, err := env.ledger.UpgradeWeapon(ctx, "u1", 1, up)
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if got := names(res.Inventory); !reflect.DeepEqual(got, []string{"a", "b+", "c"}) {
		t.Fatalf("expected [a b+ c], got %v", got)
	}
	if env.account(t, "u1").Stats.MaxWeaponLevel != 4 {
		t.Fatal("expected max weapon level 4")
	}
}

func TestSellKeepsLastWeapon(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "u1", 10, named("a", "b"), intPtr(1))
	ctx := context.Background()

	res, err := env.ledger.SellWeapon(ctx, "u1", 1, 50)
	if err != nil {
		t.Fatalf("first sell: %v", err)
	}
	if res.Gold != 60 || res.EquippedIndex == nil || *res.EquippedIndex != 0 {
		t.Fatalf("expected gold 60 and equipped 0, got %d / %v", res.Gold, deref(res.EquippedIndex))
	}

	_, err = env.ledger.SellWeapon(ctx, "u1", 0, 50)
	if !errors.Is(err, ErrMustKeepOne) {
		t.Fatalf("expected ErrMustKeepOne, got %v", err)
	}
	acc := env.account(t, "u1")
	if len(acc.Inventory) != 1 || acc.Gold != 60 {
		t.Fatalf("expected inventory and gold unchanged, got %d items / %d gold", len(acc.Inventory), acc.Gold)
	}
}

func TestSellPriceBounds(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "u1", 0, named("a", "b"), nil)
	for _, p := range []int64{-1, MaxSellPrice + 1} {
		if _, err := env.ledger.SellWeapon(context.Background(), "u1", 0, p); !errors.Is(err, ErrInvalidSellPrice) {
			t.Fatalf("price %d: expected ErrInvalidSellPrice, got %v", p, err)
		}
	}
}

func TestSacrificeUpgradeIndexConsistency(t *testing.T) {
	for _, tc := range []struct {
		equipped *int
		want     *int
	}{
		{nil, nil},
		{intPtr(0), intPtr(0)},
		{intPtr(1), intPtr(0)},
		{intPtr(2), intPtr(1)},
		{intPtr(3), intPtr(0)},
	} {
		env := newTestEnv(t)
		env.seedAccount(t, "u1", 777, named("a", "b", "c", "d"), tc.equipped)

		up := named("b")[0]
		up.WeaponID = 2
		up.Level = 3
		res, err := env.ledger.SacrificeUpgrade(context.Background(), "u1", 1, []int{0, 3}, up)
		if err != nil {
			t.Fatalf("sacrifice: %v", err)
		}
		if got := names(res.Inventory); !reflect.DeepEqual(got, []string{"b", "c"}) {
			t.Fatalf("expected [b c], got %v", got)
		}
		if res.Inventory[0].Level != 3 {
			t.Fatalf("expected upgraded level 3, got %d", res.Inventory[0].Level)
		}
		if !reflect.DeepEqual(res.EquippedIndex, tc.want) {
			t.Fatalf("equipped %v: expected %v, got %v", deref(tc.equipped), deref(tc.want), deref(res.EquippedIndex))
		}
		if res.Gold != 777 {
			t.Fatalf("sacrifice must not change gold, got %d", res.Gold)
		}
		if env.account(t, "u1").Stats.SacrificeCount != 1 {
			t.Fatal("expected sacrifice counter 1")
		}
	}
}

func TestSacrificeRejectsInvalidSets(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "u1", 0, named("a", "b"), nil)
	ctx := context.Background()
	up := named("b")[0]

	if _, err := env.ledger.SacrificeUpgrade(ctx, "u1", 0, []int{0}, up); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("target in sacrifices: expected ErrInvalidIndex, got %v", err)
	}
	if _, err := env.ledger.SacrificeUpgrade(ctx, "u1", 0, []int{5}, up); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("out of range: expected ErrInvalidIndex, got %v", err)
	}
	if got := names(env.account(t, "u1").Inventory); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("expected inventory untouched, got %v", got)
	}
}

func TestEquipWeapon(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "u1", 0, named("a", "b"), nil)
	ctx := context.Background()
	if _, err := env.ledger.EquipWeapon(ctx, "u1", intPtr(2)); !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("expected ErrInvalidIndex, got %v", err)
	}
	res, err := env.ledger.EquipWeapon(ctx, "u1", intPtr(1))
	if err != nil || res.EquippedIndex == nil || *res.EquippedIndex != 1 {
		t.Fatalf("expected equipped 1, got %v (%v)", res, err)
	}
}

func TestUpdateAchievementUpsertsAndAnnouncesOnce(t *testing.T) {
	env := newTestEnv(t)
	ann := &recordingAnnouncer{}
	env.ledger.Announcer = ann
	env.seedAccount(t, "u1", 0, nil, nil)
	ctx := context.Background()

	if _, err := env.ledger.UpdateAchievement(ctx, "u1", models.Achievement{ID: "first_blood", Progress: 0.5}); err != nil {
		t.Fatalf("progress: %v", err)
	}
	list, err := env.ledger.UpdateAchievement(ctx, "u1", models.Achievement{ID: "first_blood", Unlocked: true, Progress: 1})
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if len(list) != 1 || !list[0].Unlocked || list[0].UnlockedAt == nil {
		t.Fatalf("expected one unlocked achievement, got %+v", list)
	}
	// reporting progress again never re-locks or re-announces
	list, _ = env.ledger.UpdateAchievement(ctx, "u1", models.Achievement{ID: "first_blood", Progress: 1})
	if !list[0].Unlocked {
		t.Fatal("achievement was re-locked")
	}
	if len(ann.achievements) != 1 {
		t.Fatalf("expected one announcement, got %v", ann.achievements)
	}
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "u1", 1000, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.ledger.ApplyGoldDelta(ctx, "u1", -100); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	gold := env.account(t, "u1").Gold
	if gold < 0 {
		t.Fatalf("balance went negative: %d", gold)
	}
	if gold != 1000-int64(succeeded)*100 {
		t.Fatalf("expected %d, got %d", 1000-int64(succeeded)*100, gold)
	}
}
