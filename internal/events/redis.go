package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/carebill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// RedisPublisher fans events out over a Redis pub/sub channel.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// LogPublisher is used when no Redis is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.log.Debug("event",
		zap.String("type", event.Type),
		zap.String("entity_id", event.EntityID),
		zap.String("status", event.Status),
	)
	return nil
}

func ProvidePublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Publisher {
	log = log.Named("events")
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		log.Info("redis not configured, events are only logged")
		return NewLogPublisher(log)
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
	return NewRedisPublisher(client, cfg.EventsChannel)
}

var Module = fx.Module("events",
	fx.Provide(ProvidePublisher),
)
