package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWebhookLimiterExhaustsBurstPerSource(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := NewWebhookLimiter(client, 0.001, 2, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _ := limiter.Allow(ctx, "stripe", "10.0.0.1")
		require.True(t, ok)
	}
	ok, retry := limiter.Allow(ctx, "stripe", "10.0.0.1")
	assert.False(t, ok)
	assert.Positive(t, retry)

	ok, _ = limiter.Allow(ctx, "stripe", "10.0.0.2")
	assert.True(t, ok)
	assert.True(t, mr.Exists("carebill:webhook:stripe:10.0.0.1"))
}

func TestWebhookLimiterFailsOpen(t *testing.T) {
	var nilLimiter *WebhookLimiter
	ok, _ := nilLimiter.Allow(context.Background(), "stripe", "10.0.0.1")
	assert.True(t, ok)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := NewWebhookLimiter(client, 1, 1, zap.NewNop())
	mr.Close()

	ok, _ = limiter.Allow(context.Background(), "stripe", "10.0.0.1")
	assert.True(t, ok)
}
