// Package backoff provides retry delay strategies and a context-aware retry
// loop. Strategies are stateless and safe for concurrent use.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	Delay(attempt int) time.Duration
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration { return c.Interval }

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt, capped at Max. With Jitter set
// the delay is drawn uniformly from [0, capped delay].
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  bool
}

// NewExponential creates an exponential backoff strategy without jitter.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns min(Initial * 2^(attempt-1), Max), jittered if requested.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		d = float64(e.Max)
	}
	if e.Jitter {
		d *= rand.Float64() //nolint:gosec // jitter intentionally uses non-crypto rand
	}
	return time.Duration(d)
}

// DefaultStrategy is the strategy used when connecting to a backend:
// jittered exponential from 200ms up to 5s.
func DefaultStrategy() Strategy {
	return &Exponential{Initial: 200 * time.Millisecond, Max: 5 * time.Second, Jitter: true}
}

// ──────────────────────────────────────────────────
// Retry
// ──────────────────────────────────────────────────

// Retry calls fn up to attempts times, sleeping s.Delay(n) between failures.
// It returns nil on the first success, the last error once attempts are
// exhausted, or ctx's error if ctx ends while waiting. attempts below 1 is
// treated as 1.
func Retry(ctx context.Context, s Strategy, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for n := 1; ; n++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if n >= attempts {
			return err
		}

		timer := time.NewTimer(s.Delay(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
