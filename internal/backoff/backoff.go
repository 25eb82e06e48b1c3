// Package backoff computes reconnect delays for the client: an exponential
// backoff with jitter, the same shape commonly used for HTTP retry logic.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Duration returns a delay with exponential backoff based on retries,
// doubling each attempt from base up to max and jittering by up to 20% to
// avoid a thundering herd of reconnecting clients.
func Duration(base, max time.Duration, retries int) time.Duration {
	d := float64(base) * math.Pow(2, float64(retries))
	if d > float64(max) {
		d = float64(max)
	}
	jitter := d * 0.2 * rand.Float64()
	return time.Duration(d + jitter)
}
