package services

import (
	"math"
	"sort"

	"tree-game-server/models"
)

// RarityProbability is the selection weight of each tier. The four values sum to 1.
var RarityProbability = map[models.Rarity]float64{
	models.RarityCommon:    0.50,
	models.RarityRare:      0.30,
	models.RarityEpic:      0.15,
	models.RarityLegendary: 0.05,
}

type weightedWeapon struct {
	weapon models.Weapon
	weight float64
}

// weaponPool flattens the eligible catalog into weighted entries. Inside a tier the
// weakest weapons weigh most: (maxAttack - attack + 1)^2, scaled by the tier's
// probability. The pool is ordered by rarity then id so a seeded source reproduces.
func weaponPool(catalog []models.Weapon, floor *models.Rarity) []weightedWeapon {
	limit := models.RarityLegendary.Rank()
	if floor != nil {
		limit = floor.Rank()
		if limit < 0 {
			return nil
		}
	}

	tiers := make(map[models.Rarity][]models.Weapon)
	for _, w := range catalog {
		rank := w.Rarity.Rank()
		if rank < 0 || rank > limit {
			continue
		}
		tiers[w.Rarity] = append(tiers[w.Rarity], w)
	}

	var pool []weightedWeapon
	for _, rarity := range models.Rarities {
		members := tiers[rarity]
		if len(members) == 0 {
			continue
		}
		sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

		maxAttack := members[0].Attack
		for _, w := range members[1:] {
			if w.Attack > maxAttack {
				maxAttack = w.Attack
			}
		}
		for _, w := range members {
			diff := float64(maxAttack - w.Attack + 1)
			pool = append(pool, weightedWeapon{weapon: w, weight: math.Pow(diff, 2) * RarityProbability[rarity]})
		}
	}
	return pool
}

// PickWeapon draws one weapon from catalog with a single uniform roll. floor, when set,
// limits the draw to that rarity and everything below it. It returns nil when nothing
// is eligible.
func PickWeapon(catalog []models.Weapon, floor *models.Rarity, rng RandSource) *models.Weapon {
	pool := weaponPool(catalog, floor)
	if len(pool) == 0 {
		return nil
	}

	var total float64
	for _, p := range pool {
		total += p.weight
	}

	roll := rng.Float64() * total
	var cumulative float64
	for _, p := range pool {
		cumulative += p.weight
		if roll < cumulative {
			w := p.weapon
			return &w
		}
	}
	// rounding left the roll past the last threshold
	w := pool[0].weapon
	return &w
}

// WeaponOdds returns the chance of drawing each eligible weapon id.
func WeaponOdds(catalog []models.Weapon, floor *models.Rarity) map[int]float64 {
	pool := weaponPool(catalog, floor)
	var total float64
	for _, p := range pool {
		total += p.weight
	}
	odds := make(map[int]float64, len(pool))
	if total == 0 {
		return odds
	}
	for _, p := range pool {
		odds[p.weapon.ID] = p.weight / total
	}
	return odds
}
