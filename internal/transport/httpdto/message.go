package httpdto

import (
	"time"

	"ripple/internal/domain"

	"github.com/google/uuid"
)

// SendMessageRequest carries exactly one target: conversation_id,
// recipient_id, or participant_ids + group_name. The handler rejects
// anything else before building the typed target.
type SendMessageRequest struct {
	Text           string   `json:"text"`
	ConversationID string   `json:"conversation_id,omitempty"`
	RecipientID    string   `json:"recipient_id,omitempty"`
	ParticipantIDs []string `json:"participant_ids,omitempty"`
	GroupName      string   `json:"group_name,omitempty"`
}

type ProfileResponse struct {
	ID        string  `json:"id"`
	Username  string  `json:"username"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

type MessageResponse struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversation_id"`
	SenderID       string           `json:"sender_id"`
	Sender         *ProfileResponse `json:"sender,omitempty"`
	Text           string           `json:"text"`
	CreatedAt      time.Time        `json:"created_at"`
}

type SendMessageResponse struct {
	Message        MessageResponse `json:"message"`
	ConversationID string          `json:"conversation_id"`
}

type ListMessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
}

func FromProfile(p domain.Profile) ProfileResponse {
	return ProfileResponse{
		ID:        p.ID.String(),
		Username:  p.Username,
		AvatarURL: p.AvatarURL,
	}
}

func FromMessage(m domain.Message) MessageResponse {
	resp := MessageResponse{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		SenderID:       m.SenderID.String(),
		Text:           m.Text,
		CreatedAt:      m.CreatedAt,
	}
	if m.Sender.ID != uuid.Nil {
		sender := FromProfile(m.Sender.Profile())
		resp.Sender = &sender
	}
	return resp
}

func FromMessageSlice(messages []domain.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, FromMessage(m))
	}
	return out
}
