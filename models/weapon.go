package models

import (
	"errors"
	"fmt"
	"strings"
)

type Rarity string

const (
	RarityCommon    Rarity = "COMMON"
	RarityRare      Rarity = "RARE"
	RarityEpic      Rarity = "EPIC"
	RarityLegendary Rarity = "LEGENDARY"
)

// Rarities lists every tier from lowest to highest.
var Rarities = []Rarity{RarityCommon, RarityRare, RarityEpic, RarityLegendary}

// Rank orders rarities (COMMON=0 ... LEGENDARY=3). Unknown rarities return -1.
func (r Rarity) Rank() int {
	for i, x := range Rarities {
		if x == r {
			return i
		}
	}
	return -1
}

func (r Rarity) Valid() bool {
	return r.Rank() >= 0
}

// ParseRarity accepts any letter case ("epic", "Epic", "EPIC").
func ParseRarity(s string) (Rarity, error) {
	r := Rarity(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown rarity %q", s)
	}
	return r, nil
}

// Weapon is an immutable catalog entry. Created by seeding, never mutated at runtime.
type Weapon struct {
	ID             int     `json:"id"`
	Name           string  `json:"name"`
	Icon           string  `json:"icon,omitempty"`
	Description    string  `json:"description,omitempty"`
	Rarity         Rarity  `json:"rarity"`
	Attack         int     `json:"attack"`
	AttackInterval int     `json:"attack_interval"` // ms
	GoldChance     float64 `json:"gold_chance"`
	GoldMin        int     `json:"gold_min"`
	GoldMax        int     `json:"gold_max"`
}

func (w Weapon) Validate() error {
	switch {
	case w.ID <= 0:
		return errors.New("weapon id must be positive")
	case w.Name == "":
		return errors.New("weapon name is required")
	case !w.Rarity.Valid():
		return fmt.Errorf("weapon %d: invalid rarity %q", w.ID, w.Rarity)
	case w.Attack <= 0:
		return fmt.Errorf("weapon %d: attack must be positive", w.ID)
	case w.AttackInterval <= 0:
		return fmt.Errorf("weapon %d: attack interval must be positive", w.ID)
	case w.GoldChance < 0 || w.GoldChance > 1:
		return fmt.Errorf("weapon %d: gold chance %v outside [0,1]", w.ID, w.GoldChance)
	case w.GoldMin < 0 || w.GoldMin > w.GoldMax:
		return fmt.Errorf("weapon %d: gold range %d..%d invalid", w.ID, w.GoldMin, w.GoldMax)
	}
	return nil
}

// Instance creates a level-1 inventory entry for this weapon.
func (w Weapon) Instance() WeaponInstance {
	return WeaponInstance{
		WeaponID:       w.ID,
		Name:           w.Name,
		Icon:           w.Icon,
		Rarity:         w.Rarity,
		Attack:         w.Attack,
		AttackInterval: w.AttackInterval,
		GoldChance:     w.GoldChance,
		GoldMin:        w.GoldMin,
		GoldMax:        w.GoldMax,
		Level:          1,
	}
}

// WeaponInstance is one inventory slot: a copy of the catalog entry plus its upgrade level.
type WeaponInstance struct {
	WeaponID       int     `json:"weapon_id"`
	Name           string  `json:"name"`
	Icon           string  `json:"icon,omitempty"`
	Rarity         Rarity  `json:"rarity"`
	Attack         int     `json:"attack"`
	AttackInterval int     `json:"attack_interval"`
	GoldChance     float64 `json:"gold_chance"`
	GoldMin        int     `json:"gold_min"`
	GoldMax        int     `json:"gold_max"`
	Level          int     `json:"level"`
}

// Valid reports whether the payload carries the minimum an inventory slot needs.
func (w WeaponInstance) Valid() bool {
	return w.WeaponID > 0 && w.Name != "" && w.Level >= 1
}
