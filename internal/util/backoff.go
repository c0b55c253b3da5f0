package util

import (
	"math/rand"
	"time"
)

// Backoff produces reconnect delays: seed, doubling up to max, with ±25%
// uniform jitter so repeated outages don't synchronize reconnect storms.
// Not safe for concurrent use; each connection owns its own Backoff.
type Backoff struct {
	Seed time.Duration
	Max  time.Duration

	attempt uint
}

const backoffJitterRatio = 0.25

func NewBackoff(seed, max time.Duration) *Backoff {
	return &Backoff{Seed: seed, Max: max}
}

// Next returns the delay for the next attempt and advances the series.
func (b *Backoff) Next() time.Duration {
	d := b.Seed
	for i := uint(0); i < b.attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	b.attempt++
	// jitter in [-25%, +25%]
	jitter := (rand.Float64()*2 - 1) * backoffJitterRatio
	return time.Duration(float64(d) * (1 + jitter))
}

// Reset restarts the series after a successful connection.
func (b *Backoff) Reset() {
	b.attempt = 0
}

func (b *Backoff) Attempt() uint {
	return b.attempt
}
