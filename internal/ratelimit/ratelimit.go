// Package ratelimit throttles outbound calls per external provider using a token bucket.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrUnknownProvider is returned by Acquire for a provider that was never registered.
var ErrUnknownProvider = errors.New("unknown rate limit provider")

// Limit is a provider quota expressed as calls per period.
type Limit struct {
	Calls  int
	Period time.Duration
}

// PerMinute is shorthand for a calls-per-minute limit.
func PerMinute(calls int) Limit {
	return Limit{Calls: calls, Period: time.Minute}
}

// DefaultLimits returns the built-in quotas. Values sit slightly under each
// provider's published limit.
func DefaultLimits() map[string]Limit {
	return map[string]Limit{
		"replicate":    PerMinute(5),
		"openai":       PerMinute(20),
		"openai_tts":   PerMinute(10),
		"groq":         PerMinute(20),
		"gemini":       PerMinute(15),
		"youtube":      PerMinute(5),
		"instagram":    PerMinute(2),
		"elevenlabs":   PerMinute(3),
		"edge_tts":     PerMinute(30),
		"huggingface":  PerMinute(5),
		"pexels":       PerMinute(10),
		"pollinations": PerMinute(10),
		"reddit":       PerMinute(30),
		"resend":       PerMinute(10),
		"smtp":         PerMinute(10),
	}
}

// TokenBucket holds up to capacity tokens and refills lazily at refillRate.
type TokenBucket struct {
	capacity   int        // Maximum tokens (burst capacity)
	refillRate float64    // Tokens per second
	tokens     float64    // Current tokens available
	lastRefill time.Time  // Last time tokens were refilled
	mu         sync.Mutex // Guards tokens and lastRefill
}

// newTokenBucket creates a full bucket.
func newTokenBucket(limit Limit, now time.Time) *TokenBucket {
	calls := limit.Calls
	if calls < 1 {
		calls = 1
	}
	period := limit.Period
	if period <= 0 {
		period = time.Minute
	}
	return &TokenBucket{
		capacity:   calls,
		refillRate: float64(calls) / period.Seconds(),
		tokens:     float64(calls),
		lastRefill: now,
	}
}

// refill credits tokens for the time elapsed since the last refill. Caller holds mu.
func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}
	tb.tokens = min(float64(tb.capacity), tb.tokens+elapsed.Seconds()*tb.refillRate)
	tb.lastRefill = now
}

// take consumes a token if one is available. Otherwise it returns how long
// until the next token can be credited.
func (tb *TokenBucket) take(now time.Time) (time.Duration, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)
	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return 0, true
	}

	missing := 1.0 - tb.tokens
	wait := time.Duration(missing / tb.refillRate * float64(time.Second))
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// reset fills the bucket back to capacity.
func (tb *TokenBucket) reset(now time.Time) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.tokens = float64(tb.capacity)
	tb.lastRefill = now
}

// available returns the whole tokens currently available.
func (tb *TokenBucket) available(now time.Time) int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill(now)
	return int(tb.tokens)
}

// Clock abstracts time so tests can run without real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Limiter manages one token bucket per provider name.
type Limiter struct {
	buckets map[string]*TokenBucket
	counts  map[string]int64
	mu      sync.RWMutex
	countMu sync.Mutex
	clock   Clock
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Limiter) { l.clock = c }
}

// NewLimiter creates a limiter with a bucket per entry in limits.
func NewLimiter(limits map[string]Limit, opts ...Option) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*TokenBucket, len(limits)),
		counts:  make(map[string]int64),
		clock:   realClock{},
	}
	for _, opt := range opts {
		opt(l)
	}
	for name, limit := range limits {
		l.buckets[name] = newTokenBucket(limit, l.clock.Now())
	}
	return l
}

// Register adds or replaces the bucket for provider.
func (l *Limiter) Register(provider string, limit Limit) {
	bucket := newTokenBucket(limit, l.clock.Now())
	l.mu.Lock()
	l.buckets[provider] = bucket
	l.mu.Unlock()
}

func (l *Limiter) bucket(provider string) (*TokenBucket, error) {
	l.mu.RLock()
	bucket, ok := l.buckets[provider]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %v)", ErrUnknownProvider, provider, l.Providers())
	}
	return bucket, nil
}

// Acquire blocks until provider has a token and consumes it. It only fails for
// an unregistered provider or a cancelled context.
func (l *Limiter) Acquire(ctx context.Context, provider string) error {
	bucket, err := l.bucket(provider)
	if err != nil {
		return err
	}

	for {
		wait, ok := bucket.take(l.clock.Now())
		if ok {
			l.countMu.Lock()
			l.counts[provider]++
			l.countMu.Unlock()
			return nil
		}
		if err := l.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Reset restores provider's bucket to full capacity.
func (l *Limiter) Reset(provider string) error {
	bucket, err := l.bucket(provider)
	if err != nil {
		return err
	}
	bucket.reset(l.clock.Now())
	return nil
}

// Available reports the whole tokens provider can spend right now.
func (l *Limiter) Available(provider string) (int, error) {
	bucket, err := l.bucket(provider)
	if err != nil {
		return 0, err
	}
	return bucket.available(l.clock.Now()), nil
}

// Count returns how many tokens provider has consumed since the limiter was built.
func (l *Limiter) Count(provider string) int64 {
	l.countMu.Lock()
	defer l.countMu.Unlock()
	return l.counts[provider]
}

// Providers lists the registered provider names in sorted order.
func (l *Limiter) Providers() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.buckets))
	for name := range l.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
