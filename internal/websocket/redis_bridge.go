package websocket

import (
	"context"

	"ripple/internal/redis"
)

// RedisBridge feeds bus events into the local hub so connected clients
// receive pushes published by any API instance.
type RedisBridge struct {
	subscriber *redis.Subscriber
	hub        *Hub
}

func NewRedisBridge(subscriber *redis.Subscriber, hub *Hub) *RedisBridge {
	return &RedisBridge{subscriber: subscriber, hub: hub}
}

// Run blocks until ctx is cancelled. Patterns cover the conversation and
// user topics.
func (b *RedisBridge) Run(ctx context.Context) error {
	return b.subscriber.Subscribe(ctx, []string{"conversation:*", "user:*"}, func(channel string, payload []byte) {
		b.hub.Broadcast(channel, payload)
	})
}
