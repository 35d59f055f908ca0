package events

import (
	"context"
	"time"

	"ripple/internal/domain"

	"github.com/google/uuid"
)

const (
	EventNewMessage          = "new_message"
	EventConversationCreated = "conversation_created"
)

// MessagePayload is the wire form of a message pushed to subscribers.
type MessagePayload struct {
	ID             uuid.UUID      `json:"id"`
	ConversationID uuid.UUID      `json:"conversation_id"`
	SenderID       uuid.UUID      `json:"sender_id"`
	Sender         domain.Profile `json:"sender"`
	Text           string         `json:"text"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Envelope wraps every event published on the bus.
type Envelope struct {
	Event          string         `json:"event"`
	ConversationID uuid.UUID      `json:"conversation_id"`
	OccurredAt     time.Time      `json:"occurred_at"`
	Payload        MessagePayload `json:"payload"`
}

// Publisher delivers events to whoever is listening right now. Best effort:
// implementations must not make delivery a precondition of the send path.
type Publisher interface {
	PublishNewMessage(ctx context.Context, conv domain.Conversation, payload MessagePayload) error
	// PublishConversationCreated fires once when a conversation comes into
	// existence, on the participants' personal topics.
	PublishConversationCreated(ctx context.Context, conv domain.Conversation) error
}

// ConversationChannel is the topic carrying live messages for an open chat.
func ConversationChannel(id uuid.UUID) string {
	return "conversation:" + id.String()
}

// UserChannel is the personal topic used for conversation-list updates.
func UserChannel(id uuid.UUID) string {
	return "user:" + id.String()
}
