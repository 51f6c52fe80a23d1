// Package retry runs provider calls under a bounded linear-backoff policy.
package retry

import (
	"context"
	"log"
	"time"

	"github.com/jonathan/kids-video-pipeline/internal/errkind"
)

// Policy describes how a call is retried.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay is multiplied by the attempt number to get the wait after a failure.
	BaseDelay time.Duration
	// Retryable decides whether an error is worth another attempt.
	// When nil, errkind.IsTransient is used.
	Retryable func(error) bool
	// Name tags log lines.
	Name string

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy is used when a provider has no tuned policy.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second}
}

// WithSleep returns a copy of p that waits using fn instead of a timer.
func (p Policy) WithSleep(fn func(ctx context.Context, d time.Duration) error) Policy {
	p.sleep = fn
	return p
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt)
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return errkind.IsTransient(err)
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. The error from the last attempt is returned as is.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue is Do for calls that produce a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var (
		val T
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		val, err = fn(ctx)
		if err == nil {
			return val, nil
		}
		if attempt == attempts || !p.retryable(err) {
			return val, err
		}

		wait := p.Delay(attempt)
		if p.Name != "" {
			log.Printf("[retry] %s attempt %d/%d failed: %v (waiting %s)", p.Name, attempt, attempts, err, wait)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return val, err
		}
	}
	return val, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
