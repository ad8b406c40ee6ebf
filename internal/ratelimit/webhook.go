package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/carebill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyWebhookIntake = "carebill:webhook:%s:%s"

// WebhookLimiter throttles provider callbacks per provider and source
// address. A nil limiter allows everything.
type WebhookLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewWebhookLimiter(client redis.UniversalClient, rate float64, burst int, log *zap.Logger) *WebhookLimiter {
	return &WebhookLimiter{
		bucket: NewTokenBucket(client),
		rate:   rate,
		burst:  burst,
		log:    log,
	}
}

// ProvideWebhookLimiter returns nil unless rate limiting is enabled and a
// Redis address is configured.
func ProvideWebhookLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *WebhookLimiter {
	log = log.Named("ratelimit")
	limitCfg := cfg.RateLimit
	addr := strings.TrimSpace(cfg.RedisAddr)
	if !limitCfg.Enabled || addr == "" {
		log.Info("webhook rate limiting disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return NewWebhookLimiter(client, limitCfg.WebhookRate, limitCfg.WebhookBurst, log)
}

// Allow reports whether another callback from source may be processed, and
// how long the caller should wait otherwise. Redis failures fail open.
func (l *WebhookLimiter) Allow(ctx context.Context, provider, source string) (bool, time.Duration) {
	if l == nil || l.bucket == nil {
		return true, 0
	}
	key := fmt.Sprintf(keyWebhookIntake, strings.ToLower(strings.TrimSpace(provider)), strings.TrimSpace(source))
	res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
		return true, 0
	}
	return res.Allowed, res.RetryAfter
}
