// Package ratelimit provides a redis-backed fixed-window limiter for API key
// authentication.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/kronusitsolutions/kronusmed/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Limiter answers whether a caller identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// NewClient builds the shared redis client from the rate-limit settings.
// Returns nil when the limiter is disabled so the limiter degrades to
// allow-all instead of failing app startup.
func NewClient(cfg config.Config) (*redis.Client, error) {
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RedisAddr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RateLimit.RedisAddr,
		Password: cfg.RateLimit.RedisPassword,
		DB:       cfg.RateLimit.RedisDB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return client, nil
}

type fixedWindow struct {
	client    *redis.Client
	log       *zap.Logger
	perMinute int
}

type Params struct {
	fx.In

	Client *redis.Client `optional:"true"`
	Log    *zap.Logger
	Config config.Config
}

func New(p Params) Limiter {
	perMinute := p.Config.RateLimit.PerMinute
	if perMinute <= 0 {
		perMinute = 600
	}
	return &fixedWindow{
		client:    p.Client,
		log:       p.Log.Named("ratelimit"),
		perMinute: perMinute,
	}
}

// Allow increments the caller's counter for the current minute window. The
// limiter fails open: with no redis client, or a redis error, the request
// passes.
func (l *fixedWindow) Allow(ctx context.Context, key string) bool {
	if l.client == nil {
		return true
	}

	window := time.Now().UTC().Format("200601021504")
	sum := sha256.Sum256([]byte(key))
	redisKey := "ratelimit:" + hex.EncodeToString(sum[:8]) + ":" + window

	pipe := l.client.TxPipeline()
	count := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Warn("rate limit check failed", zap.Error(err))
		return true
	}
	return count.Val() <= int64(l.perMinute)
}

var Module = fx.Module("ratelimit",
	fx.Provide(NewClient),
	fx.Provide(New),
)
