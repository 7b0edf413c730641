package models

import "time"

const (
	WorldStateKey        = "current"
	DefaultMaxTreeHealth = 1_000_000
)

// WorldState is the shared tree every player attacks.
type WorldState struct {
	TreeHealth    int64     `json:"tree_health"`
	MaxTreeHealth int64     `json:"max_tree_health"`
	DefeatedCount int64     `json:"defeated_count"`
	CurrentRound  int64     `json:"current_round"`
	LastUpdate    time.Time `json:"last_update"`
}

func NewWorldState(maxHealth int64, now time.Time) WorldState {
	if maxHealth <= 0 {
		maxHealth = DefaultMaxTreeHealth
	}
	return WorldState{
		TreeHealth:    maxHealth,
		MaxTreeHealth: maxHealth,
		CurrentRound:  1,
		LastUpdate:    now,
	}
}

// ApplyDamage lowers tree health and, when it reaches zero, resets the tree for the
// next round. It reports whether the tree was defeated by this hit.
func (w *WorldState) ApplyDamage(damage int64, now time.Time) bool {
	if w.MaxTreeHealth <= 0 {
		w.MaxTreeHealth = DefaultMaxTreeHealth
	}
	if w.CurrentRound < 1 {
		w.CurrentRound = 1
	}
	w.LastUpdate = now
	w.TreeHealth -= damage
	if w.TreeHealth > 0 {
		return false
	}
	w.TreeHealth = w.MaxTreeHealth
	w.DefeatedCount++
	w.CurrentRound++
	return true
}
