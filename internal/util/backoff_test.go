package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffSeriesWithinJitterBounds(t *testing.T) {
	b := NewBackoff(5*time.Second, 300*time.Second)

	nominal := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		80 * time.Second,
		160 * time.Second,
		300 * time.Second,
		300 * time.Second,
	}
	for i, n := range nominal {
		d := b.Next()
		assert.GreaterOrEqual(t, d, time.Duration(float64(n)*0.75), "attempt %d", i)
		assert.LessOrEqual(t, d, time.Duration(float64(n)*1.25), "attempt %d", i)
	}
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute)

	b.Next()
	b.Next()
	b.Next()
	assert.Equal(t, uint(3), b.Attempt())

	b.Reset()
	assert.Equal(t, uint(0), b.Attempt())

	d := b.Next()
	assert.GreaterOrEqual(t, d, 750*time.Millisecond)
	assert.LessOrEqual(t, d, 1250*time.Millisecond)
}

func TestBackoffJitterVaries(t *testing.T) {
	b := NewBackoff(10*time.Second, 10*time.Second)

	seen := map[time.Duration]bool{}
	for i := 0; i < 50; i++ {
		seen[b.Next()] = true
	}
	// with ±25% jitter, 50 draws should not collapse to one value
	assert.Greater(t, len(seen), 1)
}
