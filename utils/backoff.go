package utils

import (
	"context"
	"math/rand"
	"time"
)

// Backoff yields capped exponential delays with +-15% jitter.
type Backoff struct {
	Min        time.Duration
	Max        time.Duration
	Multiplier float64

	attempt int
}

func NewBackoff(min, max time.Duration) *Backoff {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	return &Backoff{Min: min, Max: max, Multiplier: 2}
}

// Next returns the delay for the next attempt.
func (b *Backoff) Next() time.Duration {
	delay := float64(b.Min)
	for i := 0; i < b.attempt; i++ {
		delay *= b.Multiplier
		if delay >= float64(b.Max) {
			delay = float64(b.Max)
			break
		}
	}
	b.attempt++

	jitter := rand.Float64() * 0.3 * delay
	delay = delay + jitter - (0.15 * delay)
	if delay > float64(b.Max) {
		delay = float64(b.Max)
	}

	return time.Duration(delay)
}

func (b *Backoff) Reset() {
	b.attempt = 0
}

func (b *Backoff) Attempts() int {
	return b.attempt
}

// Wait sleeps for the next delay, returning false if ctx was cancelled first.
func (b *Backoff) Wait(ctx context.Context) bool {
	timer := time.NewTimer(b.Next())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Sleep waits for d unless ctx is cancelled. A zero duration returns immediately.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
