// Package transfer executes single file transfers between the source backend
// and the artifact store, with retry, backoff, and idempotency checks.
package transfer

import (
	"context"
	"time"
)

// RetryPolicy controls how a transfer reacts to failures. Rate limiting
// (HTTP 429) always sleeps the fixed RateLimitDelay; every other failure
// sleeps Backoff(attempt).
type RetryPolicy struct {
	MaxAttempts    int
	RateLimitDelay time.Duration
	Backoff        func(attempt int) time.Duration
}

// LinearBackoff returns a backoff growing linearly with the attempt number:
// base, 2*base, 3*base, ...
func LinearBackoff(base time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return time.Duration(attempt) * base
	}
}

// DefaultPolicy matches the upstream transfer behavior: 5 attempts, 5s fixed
// delay under rate limiting, 5s linear backoff otherwise.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    5,
		RateLimitDelay: 5 * time.Second,
		Backoff:        LinearBackoff(5 * time.Second),
	}
}

// sleepFunc waits for d or until the context is done. Tests inject a fake to
// assert backoff schedules without real sleeping.
type sleepFunc func(ctx context.Context, d time.Duration) error

func realSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
