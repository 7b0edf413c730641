package services

import (
	"sort"

	"tree-game-server/models"
)

const (
	MaxInventorySize = 1000
	MaxSellPrice     = 100000
)

func intPtr(i int) *int { return &i }

// equippedAfterSell re-points the equipped slot once slot sold has been removed.
func equippedAfterSell(equipped *int, sold, remaining int) *int {
	if equipped == nil {
		return nil
	}
	switch e := *equipped; {
	case e == sold:
		if remaining > 0 {
			return intPtr(0)
		}
		return nil
	case e > sold:
		return intPtr(e - 1)
	default:
		return intPtr(e)
	}
}

// normalizeSacrifices validates and sorts the sacrifice set against an inventory of
// size n. Duplicate indices count once.
func normalizeSacrifices(n, target int, sacrifices []int) ([]int, error) {
	if target < 0 || target >= n {
		return nil, ErrInvalidIndex
	}
	seen := make(map[int]bool, len(sacrifices))
	out := make([]int, 0, len(sacrifices))
	for _, idx := range sacrifices {
		if idx < 0 || idx >= n || idx == target {
			return nil, ErrInvalidIndex
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	if n-len(out) < 1 {
		return nil, ErrMustKeepOne
	}
	sort.Ints(out)
	return out, nil
}

// sacrificeInventory replaces target with upgraded and drops every sacrificed slot,
// keeping survivors in their original order. sacrificed must be normalized.
func sacrificeInventory(inv []models.WeaponInstance, target int, sacrificed []int, upgraded models.WeaponInstance) []models.WeaponInstance {
	drop := make(map[int]bool, len(sacrificed))
	for _, idx := range sacrificed {
		drop[idx] = true
	}
	out := make([]models.WeaponInstance, 0, len(inv)-len(sacrificed))
	for i, w := range inv {
		switch {
		case i == target:
			out = append(out, upgraded)
		case !drop[i]:
			out = append(out, w)
		}
	}
	return out
}

// equippedAfterSacrifice shifts the equipped slot left by the number of sacrificed slots
// before it. The upgrade target always survives, so when it was equipped the shifted
// index is exactly where the upgraded weapon now sits. An index that falls outside the
// new inventory resets to the first slot.
func equippedAfterSacrifice(equipped *int, sacrificed []int, newLen int) *int {
	if equipped == nil || *equipped < 0 {
		return nil
	}
	e := *equipped
	offset := 0
	for _, idx := range sacrificed {
		if idx < e {
			offset++
		}
	}
	e -= offset
	if e < 0 || e >= newLen {
		if newLen == 0 {
			return nil
		}
		return intPtr(0)
	}
	return intPtr(e)
}

func maxLevel(inv []models.WeaponInstance) int {
	m := 0
	for _, w := range inv {
		if w.Level > m {
			m = w.Level
		}
	}
	return m
}
