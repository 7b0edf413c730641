package services

import (
	"math/rand/v2"
	"sync"
)

// RandSource is the randomness every roll in the game goes through. Tests pass a seeded
// source so draws and drops are reproducible.
type RandSource interface {
	Float64() float64
	IntN(n int) int
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewRand wraps a seeded PCG generator for concurrent use.
func NewRand(seed uint64) RandSource {
	return &lockedRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandomSource seeds from the runtime's entropy.
func NewRandomSource() RandSource {
	return NewRand(rand.Uint64())
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

// rollGold returns the gold a single hit drops, or 0 when the drop misses.
func rollGold(rng RandSource, chance float64, min, max int) int64 {
	if chance <= 0 || rng.Float64() >= chance {
		return 0
	}
	if max < min {
		max = min
	}
	return int64(min + rng.IntN(max-min+1))
}
