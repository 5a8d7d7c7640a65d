package relay

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// Backoff computes the delay before the n-th retry of a relay:
// base * 2^(n-1), capped at max.
type Backoff struct {
	base time.Duration
	max  time.Duration
}

func NewBackoff(base, max time.Duration) Backoff {
	return Backoff{base: base, max: max}
}

func (b Backoff) Delay(n uint) time.Duration {
	if n == 0 || b.base <= 0 {
		return 0
	}
	next := retry.WithCappedDuration(b.max, retry.NewExponential(b.base))
	var d time.Duration
	for i := uint(0); i < n; i++ {
		d, _ = next.Next()
		if d >= b.max {
			return b.max
		}
	}
	return d
}
