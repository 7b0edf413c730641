package services

import (
	"errors"
	"fmt"

	"tree-game-server/store"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAnomalousChange    = errors.New("anomalous change")
	ErrInvalidPrice       = errors.New("invalid price")
	ErrInvalidIndex       = errors.New("invalid inventory index")
	ErrInvalidWeapon      = errors.New("invalid weapon data")
	ErrInventoryFull      = errors.New("inventory full")
	ErrMustKeepOne        = errors.New("must retain at least one item")
	ErrInvalidSellPrice   = errors.New("invalid sell price")
	ErrDamageOutOfRange   = errors.New("damage out of range")
	ErrNoWeaponAvailable  = errors.New("no weapon available")
	ErrInvalidRarity      = errors.New("invalid rarity")
	ErrInvalidName        = errors.New("invalid display name")
	ErrWeakPassword       = errors.New("password too short")
	ErrNameTaken          = errors.New("display name already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidMessage     = errors.New("invalid chat message")

	ErrNotFound        = store.ErrNotFound
	ErrAccountNotFound = fmt.Errorf("account %w", store.ErrNotFound)
	ErrWeaponNotFound  = fmt.Errorf("weapon %w", store.ErrNotFound)
)

// ValidationError marks a request the server refused to apply. Nothing was written.
type ValidationError struct {
	Op  string
	Err error
}

func (e *ValidationError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(op string, err error) error {
	return &ValidationError{Op: op, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
