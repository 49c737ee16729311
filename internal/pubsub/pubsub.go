// Package pubsub fans events out between server instances. Redis is used
// when configured; a single instance runs with the in-process broker.
package pubsub

import (
	"context"
	"time"
)

// Message is a received pub/sub message
type Message struct {
	Channel string
	Payload string
}

// PubSub publishes to and subscribes on named channels
type PubSub interface {
	Publish(ctx context.Context, channel, message string) error
	// Subscribe returns a stream of messages and a cancel func that ends
	// the subscription and closes the stream.
	Subscribe(ctx context.Context, channels ...string) (<-chan *Message, func(), error)
	Close() error
}

// Config selects and tunes the backend
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LocalBuffer   int
}

// New returns a Redis-backed PubSub if RedisAddr is set, otherwise an
// in-process one.
func New(ctx context.Context, cfg Config) (PubSub, error) {
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	}
	return NewLocal(cfg.LocalBuffer), nil
}
