package services

import (
	"context"
	"errors"
	"log"
	"math/rand/v2"
	"time"

	"tree-game-server/store"
)

// RetryPolicy bounds how often a conflicting transaction is re-run after the store
// itself has given up. The n-th retry waits Base*n plus up to Base/2 of jitter.
type RetryPolicy struct {
	Retries int
	Base    time.Duration
}

var DefaultRetryPolicy = RetryPolicy{Retries: 3, Base: 100 * time.Millisecond}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Base * time.Duration(attempt)
	if half := int64(p.Base / 2); half > 0 {
		d += time.Duration(rand.Int64N(half))
	}
	return d
}

// withRetry runs fn, re-running it on store.ErrConflict up to p.Retries more times.
// Any other error, or ctx ending, stops immediately.
func withRetry(ctx context.Context, p RetryPolicy, op string, fn func() error) error {
	err := fn()
	for attempt := 1; attempt <= p.Retries && errors.Is(err, store.ErrConflict); attempt++ {
		wait := p.delay(attempt)
		log.Printf("⚠️ [Retry] %s conflicted, retry %d/%d in %s", op, attempt, p.Retries, wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		err = fn()
	}
	return err
}
