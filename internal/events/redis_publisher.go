package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ripple/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

// RedisPublisher fans events out through Redis Pub/Sub so delivery works
// across multiple API instances. Subscribers that are not connected when an
// event fires simply miss it and catch up from the message store.
type RedisPublisher struct {
	client *goredis.Client
}

func NewRedisPublisher(client *goredis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) PublishNewMessage(ctx context.Context, conv domain.Conversation, payload MessagePayload) error {
	env := Envelope{
		Event:          EventNewMessage,
		ConversationID: conv.ID,
		OccurredAt:     time.Now(),
		Payload:        payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channels := make([]string, 0, len(conv.Participants)+1)
	channels = append(channels, ConversationChannel(conv.ID))
	for _, participant := range conv.Participants {
		channels = append(channels, UserChannel(participant.UserID))
	}

	for _, channel := range channels {
		if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", channel, err)
		}
	}
	return nil
}

func (p *RedisPublisher) PublishConversationCreated(ctx context.Context, conv domain.Conversation) error {
	env := Envelope{
		Event:          EventConversationCreated,
		ConversationID: conv.ID,
		OccurredAt:     time.Now(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	for _, participant := range conv.Participants {
		channel := UserChannel(participant.UserID)
		if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", channel, err)
		}
	}
	return nil
}
