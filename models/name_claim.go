package models

import "time"

// NameClaim reserves a folded display name for one account. Its key is the folded name,
// so two accounts can never commit the same claim.
type NameClaim struct {
	UsernameLower string    `json:"username_lower"`
	AccountID     string    `json:"account_id"`
	CreatedAt     time.Time `json:"created_at"`
}
