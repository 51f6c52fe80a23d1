package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances virtual time whenever Sleep is called.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept += d
	return nil
}

func TestTokenBucket_Take(t *testing.T) {
	now := time.Now()
	bucket := newTokenBucket(Limit{Calls: 10, Period: 10 * time.Second}, now)

	for i := 0; i < 10; i++ {
		_, ok := bucket.take(now)
		assert.True(t, ok, "request %d should be allowed", i+1)
	}

	wait, ok := bucket.take(now)
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)
}

func TestTokenBucket_LazyRefillCapsAtCapacity(t *testing.T) {
	now := time.Now()
	bucket := newTokenBucket(PerMinute(6), now)
	for i := 0; i < 6; i++ {
		bucket.take(now)
	}

	later := now.Add(time.Hour)
	assert.Equal(t, 6, bucket.available(later))
}

func TestTokenBucket_FractionalRefill(t *testing.T) {
	now := time.Now()
	bucket := newTokenBucket(PerMinute(60), now) // one token per second
	for i := 0; i < 60; i++ {
		bucket.take(now)
	}

	wait, ok := bucket.take(now.Add(500 * time.Millisecond))
	assert.False(t, ok)
	assert.InDelta(t, float64(500*time.Millisecond), float64(wait), float64(time.Millisecond))
}

func TestLimiter_UnknownProvider(t *testing.T) {
	l := NewLimiter(map[string]Limit{"openai": PerMinute(20)})

	err := l.Acquire(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrUnknownProvider))
	assert.Contains(t, err.Error(), "openai")
}

// N > capacity calls must take at least (N-capacity)*period/capacity.
func TestLimiter_AcquireEnforcesMinimumElapsed(t *testing.T) {
	clock := newFakeClock()
	const perMinute = 5
	l := NewLimiter(map[string]Limit{"replicate": PerMinute(perMinute)}, WithClock(clock))

	start := clock.Now()
	const n = 3 * perMinute
	for i := 0; i < n; i++ {
		require.NoError(t, l.Acquire(context.Background(), "replicate"))
	}
	elapsed := clock.Now().Sub(start)

	minimum := time.Duration(n-perMinute) * time.Minute / perMinute
	assert.GreaterOrEqual(t, elapsed, minimum-time.Millisecond)
	assert.Equal(t, int64(n), l.Count("replicate"))
}

func TestLimiter_AcquireWallClock(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	l := NewLimiter(map[string]Limit{"fast": {Calls: 5, Period: 250 * time.Millisecond}})

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Acquire(context.Background(), "fast"))
	}
	elapsed := time.Since(start)

	// 5 extra calls at 50ms each
	assert.GreaterOrEqual(t, elapsed, 240*time.Millisecond)
}

func TestLimiter_ConcurrentCallersNeverDoubleSpend(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(map[string]Limit{"youtube": PerMinute(5)}, WithClock(clock))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Acquire(context.Background(), "youtube")
		}()
	}
	wg.Wait()

	avail, err := l.Available("youtube")
	require.NoError(t, err)
	assert.Equal(t, 0, avail)
	assert.Equal(t, int64(5), l.Count("youtube"))
}

func TestLimiter_ProvidersAreIndependent(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(map[string]Limit{
		"instagram": PerMinute(2),
		"pexels":    PerMinute(10),
	}, WithClock(clock))

	for i := 0; i < 2; i++ {
		require.NoError(t, l.Acquire(context.Background(), "instagram"))
	}
	require.NoError(t, l.Acquire(context.Background(), "pexels"))
	assert.Zero(t, clock.slept)
}

func TestLimiter_Reset(t *testing.T) {
	clock := newFakeClock()
	l := NewLimiter(map[string]Limit{"elevenlabs": PerMinute(3)}, WithClock(clock))
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(context.Background(), "elevenlabs"))
	}

	require.NoError(t, l.Reset("elevenlabs"))
	avail, _ := l.Available("elevenlabs")
	assert.Equal(t, 3, avail)
}

func TestLimiter_CancelledWhileWaiting(t *testing.T) {
	l := NewLimiter(map[string]Limit{"slow": {Calls: 1, Period: time.Hour}})
	require.NoError(t, l.Acquire(context.Background(), "slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx, "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiter_Register(t *testing.T) {
	l := NewLimiter(nil)
	l.Register("custom", PerMinute(1))
	assert.Equal(t, []string{"custom"}, l.Providers())
	assert.NoError(t, l.Acquire(context.Background(), "custom"))
}

func TestDefaultLimits(t *testing.T) {
	limits := DefaultLimits()
	assert.Equal(t, PerMinute(5), limits["replicate"])
	assert.Equal(t, PerMinute(2), limits["instagram"])
	assert.Equal(t, PerMinute(3), limits["elevenlabs"])
}
