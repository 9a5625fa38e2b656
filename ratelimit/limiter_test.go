package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var testConfig = Config{Window: time.Minute, MaxAttempts: 3, BlockDuration: 5 * time.Minute}

func limiterFactories() map[string]func(t *testing.T, clock *fakeClock) Limiter {
	return map[string]func(t *testing.T, clock *fakeClock) Limiter{
		"memory": func(t *testing.T, clock *fakeClock) Limiter {
			l, err := NewMemoryLimiter(testConfig, clock.Now)
			require.NoError(t, err)
			return l
		},
		"redis": func(t *testing.T, clock *fakeClock) Limiter {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { rdb.Close() })
			l, err := NewRedisLimiter(rdb, "", testConfig, clock.Now)
			require.NoError(t, err)
			return l
		},
	}
}

func TestLimiterBlocksAfterBudget(t *testing.T) {
	for name, factory := range limiterFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &fakeClock{now: time.Unix(1_760_000_000, 0)}
			l := factory(t, clock)

			for i := 0; i < 3; i++ {
				d, err := l.Allow(ctx, "ip:10.0.0.1")
				require.NoError(t, err)
				require.True(t, d.Allowed, "attempt %d", i)
				require.Equal(t, 2-i, d.Remaining)
			}

			d, err := l.Allow(ctx, "ip:10.0.0.1")
			require.NoError(t, err)
			require.False(t, d.Allowed)
			require.Equal(t, 5*time.Minute, d.RetryAfter)

			clock.Advance(2 * time.Minute)
			d, err = l.Allow(ctx, "ip:10.0.0.1")
			require.NoError(t, err)
			require.False(t, d.Allowed, "block outlives the window")
			require.Equal(t, 3*time.Minute, d.RetryAfter)

			other, err := l.Allow(ctx, "ip:10.0.0.2")
			require.NoError(t, err)
			require.True(t, other.Allowed, "keys are independent")

			clock.Advance(3 * time.Minute)
			d, err = l.Allow(ctx, "ip:10.0.0.1")
			require.NoError(t, err)
			require.True(t, d.Allowed)
			require.Equal(t, 2, d.Remaining, "window starts clean after block")
		})
	}
}

func TestLimiterSlidingWindowDiscardsOldAttempts(t *testing.T) {
	for name, factory := range limiterFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &fakeClock{now: time.Unix(1_760_000_000, 0)}
			l := factory(t, clock)

			for i := 0; i < 3; i++ {
				d, err := l.Allow(ctx, "k")
				require.NoError(t, err)
				require.True(t, d.Allowed)
				clock.Advance(25 * time.Second)
			}

			// First attempt is now 75s old and has left the window.
			d, err := l.Allow(ctx, "k")
			require.NoError(t, err)
			require.True(t, d.Allowed)
			require.Equal(t, 0, d.Remaining)
		})
	}
}

func TestLimiterReset(t *testing.T) {
	for name, factory := range limiterFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &fakeClock{now: time.Unix(1_760_000_000, 0)}
			l := factory(t, clock)

			for i := 0; i < 4; i++ {
				_, err := l.Allow(ctx, "k")
				require.NoError(t, err)
			}
			_, err := Check(ctx, l, "k")
			require.ErrorIs(t, err, ErrRateLimited)

			require.NoError(t, l.Reset(ctx, "k"))
			d, err := Check(ctx, l, "k")
			require.NoError(t, err)
			require.Equal(t, 2, d.Remaining)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.Error(t, Config{MaxAttempts: 1, BlockDuration: time.Second}.Validate())
	require.Error(t, Config{Window: time.Second, BlockDuration: time.Second}.Validate())
	require.Error(t, Config{Window: time.Second, MaxAttempts: 1}.Validate())

	_, err := NewMemoryLimiter(Config{}, nil)
	require.Error(t, err)
}

func TestMemoryLimiterPrune(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_760_000_000, 0)}
	l, err := NewMemoryLimiter(testConfig, clock.Now)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = l.Allow(ctx, "a")
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = l.Allow(ctx, "b")
		require.NoError(t, err)
	}

	clock.Advance(2 * time.Minute)
	require.Equal(t, 1, l.Prune(), "only the idle key is pruned while b is blocked")

	clock.Advance(5 * time.Minute)
	require.Equal(t, 1, l.Prune())
}

func TestRedisLimiterUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	l, err := NewRedisLimiter(rdb, "", testConfig, nil)
	require.NoError(t, err)

	mr.Close()
	_, err = l.Allow(context.Background(), "k")
	require.ErrorIs(t, err, ErrRedisUnavailable)
}
