package services

import (
	"context"
	"testing"
	"time"

	"tree-game-server/models"
	"tree-game-server/store"

	"github.com/jonboulle/clockwork"
)

type testEnv struct {
	store   *store.MemoryStore
	clock   *clockwork.FakeClock
	catalog *CatalogService
	ledger  *LedgerService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	st := store.NewMemoryStore(clock)
	t.Cleanup(func() { st.Close() })

	catalog := NewCatalogService(st)
	if err := catalog.Seed(context.Background(), models.DefaultWeapons); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	ledger := NewLedgerService(st, catalog, NewRand(1), clock)
	ledger.Retry = RetryPolicy{Retries: 3, Base: time.Millisecond}
	return &testEnv{store: st, clock: clock, catalog: catalog, ledger: ledger}
}

func (e *testEnv) seedAccount(t *testing.T, id string, gold int64, inv []models.WeaponInstance, equipped *int) *models.Account {
	t.Helper()
	acc := models.NewAccount(id, "player-"+id, "player-"+id, e.clock.Now())
	acc.Gold = gold
	if inv != nil {
		acc.Inventory = inv
	}
	acc.EquippedIndex = equipped
	if err := e.store.Set(context.Background(), store.Accounts, id, acc); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return acc
}

func (e *testEnv) account(t *testing.T, id string) *models.Account {
	t.Helper()
	acc, err := e.ledger.GetAccount(context.Background(), id)
	if err != nil {
		t.Fatalf("load account %s: %v", id, err)
	}
	return acc
}

func weaponInstance(id int) models.WeaponInstance {
	for _, w := range models.DefaultWeapons {
		if w.ID == id {
			return w.Instance()
		}
	}
	panic("unknown weapon")
}

// named builds an inventory whose slots are distinguishable by name.
func named(names ...string) []models.WeaponInstance {
	inv := make([]models.WeaponInstance, len(names))
	for i, n := range names {
		inv[i] = models.WeaponInstance{WeaponID: i + 1, Name: n, Rarity: models.RarityCommon, Attack: 3, AttackInterval: 2000, Level: 1}
	}
	return inv
}

func names(inv []models.WeaponInstance) []string {
	out := make([]string, len(inv))
	for i, w := range inv {
		out[i] = w.Name
	}
	return out
}
