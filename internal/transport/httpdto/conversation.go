package httpdto

import (
	"time"

	"ripple/internal/services"
)

type ConversationResponse struct {
	ID           string            `json:"id"`
	IsGroup      bool              `json:"is_group"`
	GroupName    *string           `json:"group_name,omitempty"`
	Participants []ProfileResponse `json:"participants"`
	LastMessage  *MessageResponse  `json:"last_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type ListConversationsResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

func FromConversationView(view services.ConversationView) ConversationResponse {
	conv := view.Conversation
	resp := ConversationResponse{
		ID:           conv.ID.String(),
		IsGroup:      conv.IsGroup,
		GroupName:    conv.GroupName,
		Participants: make([]ProfileResponse, 0, len(view.Profiles)),
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	}
	for _, p := range view.Profiles {
		resp.Participants = append(resp.Participants, FromProfile(p))
	}
	if conv.LastMessage != nil {
		last := FromMessage(*conv.LastMessage)
		resp.LastMessage = &last
	}
	return resp
}

func FromConversationViewSlice(views []services.ConversationView) []ConversationResponse {
	out := make([]ConversationResponse, 0, len(views))
	for _, v := range views {
		out = append(out, FromConversationView(v))
	}
	return out
}
