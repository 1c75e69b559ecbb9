package scanner

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newBackoff starts at interval and doubles on every failure up to max. No
// jitter, so consecutive failures never shorten the wait.
func newBackoff(interval, max time.Duration) *backoff.ExponentialBackOff {
	if max < interval {
		max = interval
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = interval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = max
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
