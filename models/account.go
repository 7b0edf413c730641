package models

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	AccountSchemaVersion = 1
	StartingGold         = 500
)

// Account is the player document stored under accounts/<id>.
type Account struct {
	SchemaVersion int              `json:"schema_version"`
	ID            string           `json:"id"`
	DisplayName   string           `json:"display_name"`
	UsernameLower string           `json:"username_lower"`
	PasswordHash  string           `json:"password_hash,omitempty"`
	Email         string           `json:"email,omitempty"`
	Gold          int64            `json:"gold"`
	Inventory     []WeaponInstance `json:"inventory"`
	EquippedIndex *int             `json:"equipped_index"`
	Stats         AccountStats     `json:"stats"`
	Achievements  []Achievement    `json:"achievements"`
	OfflineState  *OfflineState    `json:"offline_state"`
	IsAdmin       bool             `json:"is_admin"`
	CreatedAt     time.Time        `json:"created_at"`
	LastLogin     time.Time        `json:"last_login"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

type AccountStats struct {
	TotalDamage       int64 `json:"total_damage"`
	TotalGoldEarned   int64 `json:"total_gold_earned"`
	DrawCount         int64 `json:"draw_count"`
	SacrificeCount    int64 `json:"sacrifice_count"`
	CommonCount       int64 `json:"common_count"`
	RareCount         int64 `json:"rare_count"`
	EpicCount         int64 `json:"epic_count"`
	LegendaryCount    int64 `json:"legendary_count"`
	MaxWeaponLevel    int   `json:"max_weapon_level"`
	TreeDefeatedCount int64 `json:"tree_defeated_count"`
}

// CountRarity bumps the per-rarity draw counter.
func (s *AccountStats) CountRarity(r Rarity) {
	switch r {
	case RarityCommon:
		s.CommonCount++
	case RarityRare:
		s.RareCount++
	case RarityEpic:
		s.EpicCount++
	case RarityLegendary:
		s.LegendaryCount++
	}
}

type Achievement struct {
	ID         string     `json:"id"`
	Unlocked   bool       `json:"unlocked"`
	Progress   float64    `json:"progress"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// OfflineState is the snapshot taken when a player goes idle.
type OfflineState struct {
	WeaponID       int       `json:"weapon_id"`
	WeaponLevel    int       `json:"weapon_level"`
	AttackInterval int       `json:"attack_interval"`
	LastActive     time.Time `json:"last_active"`
}

// Equipped returns the equipped inventory entry, or false when nothing valid is equipped.
func (a *Account) Equipped() (WeaponInstance, bool) {
	if a.EquippedIndex == nil {
		return WeaponInstance{}, false
	}
	i := *a.EquippedIndex
	if i < 0 || i >= len(a.Inventory) {
		return WeaponInstance{}, false
	}
	return a.Inventory[i], true
}

// NewAccount builds a fresh account with every default applied.
func NewAccount(id, displayName, usernameLower string, now time.Time) *Account {
	return &Account{
		SchemaVersion: AccountSchemaVersion,
		ID:            id,
		DisplayName:   displayName,
		UsernameLower: usernameLower,
		Gold:          StartingGold,
		Inventory:     []WeaponInstance{},
		Achievements:  []Achievement{},
		CreatedAt:     now,
		LastLogin:     now,
		UpdatedAt:     now,
	}
}

// DecodeAccount parses a stored account document and fills defaults for anything the
// stored version did not carry. It is the only place raw account JSON is interpreted.
func DecodeAccount(data []byte) (*Account, error) {
	var raw struct {
		Account
		Gold *int64 `json:"gold"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	acc := raw.Account
	if raw.Gold == nil {
		acc.Gold = StartingGold
	} else {
		acc.Gold = *raw.Gold
	}
	if acc.Gold < 0 {
		acc.Gold = 0
	}
	if acc.Inventory == nil {
		acc.Inventory = []WeaponInstance{}
	}
	for i := range acc.Inventory {
		if acc.Inventory[i].Level < 1 {
			acc.Inventory[i].Level = 1
		}
	}
	if acc.Achievements == nil {
		acc.Achievements = []Achievement{}
	}
	if acc.EquippedIndex != nil && (*acc.EquippedIndex < 0 || *acc.EquippedIndex >= len(acc.Inventory)) {
		acc.EquippedIndex = nil
	}
	if acc.SchemaVersion < AccountSchemaVersion {
		acc.SchemaVersion = AccountSchemaVersion
	}
	return &acc, nil
}
