// Package notify hands events to the notification collaborator over Redis pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes JSON events on a single Redis channel.
type RedisPublisher struct {
	channel   string
	publishFn func(ctx context.Context, channel string, payload []byte) error
}

// NewRedisPublisher creates a publisher for channel
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{
		channel: channel,
		publishFn: func(ctx context.Context, channel string, payload []byte) error {
			return client.Publish(ctx, channel, payload).Err()
		},
	}
}

// Channel returns the channel events are published on
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// Publish encodes v as JSON and publishes it
func (p *RedisPublisher) Publish(ctx context.Context, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.publishFn(ctx, p.channel, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}
