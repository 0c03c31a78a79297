package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tableside/internal/config"
)

const DefaultChannel = "tableside:events"

// Relay fans notification bus events out to every service instance through a
// Redis pub/sub channel.
type Relay struct {
	client  *goredis.Client
	channel string
	logger  *zap.Logger
}

func NewRelay(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Relay, error) {
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultChannel
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("redis relay connected", zap.String("addr", cfg.Addr), zap.String("channel", channel))
	return &Relay{client: client, channel: channel, logger: logger}, nil
}

func (r *Relay) Publish(ctx context.Context, data []byte) error {
	return r.client.Publish(ctx, r.channel, data).Err()
}

// Subscribe blocks, passing every message on the channel to handler until ctx
// is cancelled.
func (r *Relay) Subscribe(ctx context.Context, handler func(data []byte)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", r.channel, err)
	}

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("redis subscription to %s closed", r.channel)
			}
			handler([]byte(msg.Payload))
		}
	}
}

func (r *Relay) Close() error {
	return r.client.Close()
}
