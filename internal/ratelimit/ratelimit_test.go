package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/kronusitsolutions/kronusmed/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLimiter(t *testing.T, perMinute int) Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(Params{
		Client: client,
		Log:    zap.NewNop(),
		Config: config.Config{RateLimit: config.RateLimitConfig{
			Enabled:   true,
			PerMinute: perMinute,
		}},
	})
}

func TestAllow_FixedWindow(t *testing.T) {
	limiter := newLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, limiter.Allow(ctx, "key-a"))
	}
	require.False(t, limiter.Allow(ctx, "key-a"))

	// Separate keys keep separate counters.
	require.True(t, limiter.Allow(ctx, "key-b"))
}

func TestAllow_FailsOpenWithoutRedis(t *testing.T) {
	limiter := New(Params{
		Client: nil,
		Log:    zap.NewNop(),
		Config: config.Config{RateLimit: config.RateLimitConfig{PerMinute: 1}},
	})
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		require.True(t, limiter.Allow(ctx, "any"))
	}
}
