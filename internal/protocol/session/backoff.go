package session

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Delay is the pause before retry attempt (1-based). Attempt 0 is an
// immediate retry. With Jitter the delay is spread over [0.5, 1.5) of its
// nominal value, drawn from rng or the global source when rng is nil.
func (b BackoffConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 0 || b.InitialDelay <= 0 {
		return 0
	}
	growth := max(b.Multiplier, 1.0)
	nominal := float64(b.InitialDelay) * math.Pow(growth, float64(attempt-1))
	if b.MaxDelay > 0 {
		nominal = math.Min(nominal, float64(b.MaxDelay))
	}
	if !b.Jitter {
		return time.Duration(nominal)
	}
	spread := rand.Float64
	if rng != nil {
		spread = rng.Float64
	}
	return time.Duration(nominal * (0.5 + spread()))
}

// Wait sleeps for the attempt's delay or until ctx ends.
func Wait(ctx context.Context, b BackoffConfig, attempt int, rng *rand.Rand) error {
	delay := b.Delay(attempt, rng)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
