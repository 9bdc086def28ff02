package browser

import (
	"context"
	"math/rand"
	"time"
)

// Range is a closed interval of pause durations.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Pick returns a uniformly random duration in the range.
func (r Range) Pick(rng *rand.Rand) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(rng.Int63n(int64(r.Max-r.Min)+1))
}

// Pauses are the randomized waits of a human-like click.
type Pauses struct {
	PreMove   Range // after scrolling, before moving the pointer
	Hover     Range // after moving, and again after hovering
	PostClick Range
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
