package worker

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	backoffBase = 2 * time.Second
	backoffCap  = 5 * time.Minute
)

// ExponentialBackoff is 2s, 4s, 8s... capped at 5m, plus up to 250ms of
// jitter.
func ExponentialBackoff(attempt int) time.Duration {
	attempt = min(max(attempt, 0), 16)

	delay := time.Duration(float64(backoffBase) * math.Pow(2, float64(attempt)))
	if delay > backoffCap {
		delay = backoffCap
	}

	return delay + time.Duration(rand.IntN(250))*time.Millisecond
}
