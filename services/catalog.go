package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"

	"tree-game-server/models"
	"tree-game-server/store"
)

// CatalogService reads the weapon catalog. Entries are keyed by their decimal id.
type CatalogService struct {
	Store store.Store
}

func NewCatalogService(s store.Store) *CatalogService {
	return &CatalogService{Store: s}
}

// Weapons loads the whole catalog ordered by id. Malformed entries are skipped.
func (s *CatalogService) Weapons(ctx context.Context) ([]models.Weapon, error) {
	snaps, err := s.Store.Query(ctx, store.Query{Collection: store.Weapons})
	if err != nil {
		return nil, fmt.Errorf("load weapon catalog: %w", err)
	}
	weapons := make([]models.Weapon, 0, len(snaps))
	for _, snap := range snaps {
		var w models.Weapon
		if err := snap.DataTo(&w); err != nil {
			log.Printf("⚠️ [Catalog] skipping weapon %s: %v", snap.Key, err)
			continue
		}
		if err := w.Validate(); err != nil {
			log.Printf("⚠️ [Catalog] skipping weapon %s: %v", snap.Key, err)
			continue
		}
		weapons = append(weapons, w)
	}
	sort.Slice(weapons, func(i, j int) bool { return weapons[i].ID < weapons[j].ID })
	return weapons, nil
}

func (s *CatalogService) Weapon(ctx context.Context, id int) (*models.Weapon, error) {
	snap, err := s.Store.Get(ctx, store.Weapons, strconv.Itoa(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrWeaponNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var w models.Weapon
	if err := snap.DataTo(&w); err != nil {
		return nil, fmt.Errorf("decode weapon %d: %w", id, err)
	}
	if err := w.Validate(); err != nil {
		return nil, invalid("weapon", fmt.Errorf("%w: %v", ErrInvalidWeapon, err))
	}
	return &w, nil
}

// Seed validates and writes weapons, replacing entries with the same id.
func (s *CatalogService) Seed(ctx context.Context, weapons []models.Weapon) error {
	for _, w := range weapons {
		if err := w.Validate(); err != nil {
			return invalid("seed", fmt.Errorf("%w: %v", ErrInvalidWeapon, err))
		}
	}
	for _, w := range weapons {
		if err := s.Store.Set(ctx, store.Weapons, strconv.Itoa(w.ID), w); err != nil {
			return fmt.Errorf("write weapon %d: %w", w.ID, err)
		}
		log.Printf("✅ [Catalog] seeded weapon %d %s (%s)", w.ID, w.Name, w.Rarity)
	}
	return nil
}
