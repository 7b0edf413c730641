package models

import "time"

// AttackRecord is one (possibly aggregated) entry in the attack log.
type AttackRecord struct {
	ID         string    `json:"id,omitempty"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	Damage     int64     `json:"damage"`
	Count      int       `json:"count,omitempty"`
	WeaponName string    `json:"weapon_name"`
	Timestamp  time.Time `json:"timestamp"`
}
