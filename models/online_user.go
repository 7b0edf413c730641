package models

import "time"

// OnlineUser is a roster entry keyed by account id.
type OnlineUser struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	WeaponName  string    `json:"weapon_name,omitempty"`
	IsOnline    bool      `json:"is_online"`
	LastActive  time.Time `json:"last_active"`
}
