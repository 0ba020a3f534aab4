// =============================================================================
// Invoice Rollup - Retry With Backoff
// =============================================================================
//
// A Policy describes how often and how patiently an operation is retried.
// Do runs an operation under a policy. Only errors the policy classifies as
// transient are retried; anything else is returned immediately.
//
// =============================================================================

package retry

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// transientMarkers are matched case-insensitively against error messages.
var transientMarkers = []string{
	"overloaded",
	"not ready",
	"server error",
	"5xx",
	"502",
	"503",
	"504",
	"timeout",
	"timed out",
	"deadline exceeded",
	"unavailable",
}

// Policy is the retry configuration.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxJitter   time.Duration

	// IsTransient decides whether an error is worth another attempt.
	IsTransient func(error) bool

	// Sleep waits between attempts. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error

	// Jitter returns a value in [0, max]. Tests replace it.
	Jitter func(max time.Duration) time.Duration
}

// DefaultPolicy is four attempts starting at 800ms, doubling, with up to
// 250ms of jitter per wait.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   800 * time.Millisecond,
		Multiplier:  2,
		MaxJitter:   250 * time.Millisecond,
		IsTransient: IsTransient,
		Sleep:       SleepContext,
		Jitter:      UniformJitter,
	}
}

// IsTransient reports whether err looks like temporary unavailability.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// UniformJitter returns a uniformly distributed duration in [0, max].
func UniformJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max) + 1))
}

// Delay returns the wait after the given failed attempt (1-based), without
// jitter.
func (p Policy) Delay(attempt int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Multiplier
	}
	return time.Duration(d)
}

// Do calls fn until it succeeds, fails with a non-transient error, or the
// policy runs out of attempts. The last error is returned wrapped with the
// attempt count.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	p = p.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !p.IsTransient(err) {
			return zero, err
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := p.Delay(attempt) + p.Jitter(p.MaxJitter)
		if serr := p.Sleep(ctx, wait); serr != nil {
			return zero, fmt.Errorf("retry interrupted after %d attempts: %w", attempt, lastErr)
		}
	}

	return zero, fmt.Errorf("gave up after %d attempts: %w", p.MaxAttempts, lastErr)
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier <= 0 {
		p.Multiplier = d.Multiplier
	}
	if p.IsTransient == nil {
		p.IsTransient = d.IsTransient
	}
	if p.Sleep == nil {
		p.Sleep = d.Sleep
	}
	if p.Jitter == nil {
		p.Jitter = d.Jitter
	}
	return p
}
