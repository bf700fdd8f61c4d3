package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/unclebandit/campaign-dispatcher/internal/config"
)

// NewBroker creates the Broker selected by cfg.Type.
func NewBroker(ctx context.Context, cfg config.QueueConfig, log zerolog.Logger) (Broker, error) {
	switch cfg.Type {
	case "amqp", "":
		return NewAMQPBroker(cfg.AMQPURL, cfg.Name, log)

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisBroker(client, cfg.Name, cfg.RedisGroup, cfg.BlockTimeout, cfg.ClaimIdle, log), nil

	case "memory":
		return NewInMemoryQueue(log), nil

	default:
		return nil, fmt.Errorf("unknown queue type: %s", cfg.Type)
	}
}
