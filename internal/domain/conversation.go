package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Conversation struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	IsGroup bool      `gorm:"not null;default:false" json:"is_group"`
	// GroupName is set iff IsGroup.
	GroupName *string `gorm:"type:text" json:"group_name,omitempty"`
	// DirectKey is the normalized participant-pair key for direct
	// conversations ("<minID>:<maxID>"). The unique index is what makes
	// find-or-create race safe. Always nil for groups.
	DirectKey     *string    `gorm:"type:text;uniqueIndex:idx_conversations_direct_key" json:"-"`
	LastMessageID *uuid.UUID `gorm:"type:uuid" json:"last_message_id,omitempty"`
	CreatedAt     time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"default:CURRENT_TIMESTAMP;index:idx_conversations_updated,sort:desc" json:"updated_at"`

	// Relations
	LastMessage  *Message      `gorm:"foreignKey:LastMessageID" json:"last_message,omitempty"`
	Participants []Participant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

type Participant struct {
	ConversationID uuid.UUID `gorm:"type:uuid;primaryKey" json:"conversation_id"`
	UserID         uuid.UUID `gorm:"type:uuid;primaryKey;index:idx_participants_user" json:"user_id"`
	JoinedAt       time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"joined_at"`

	// Relations
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// DirectKeyFor builds the normalized pair key for a direct conversation.
// The key is order independent: DirectKeyFor(a, b) == DirectKeyFor(b, a).
func DirectKeyFor(a, b uuid.UUID) string {
	first, second := a.String(), b.String()
	if strings.Compare(first, second) > 0 {
		first, second = second, first
	}
	return first + ":" + second
}

// HasParticipant reports whether userID is a member of the conversation.
// Participants must be loaded.
func (c Conversation) HasParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// ParticipantIDs returns the member ids in join order.
func (c Conversation) ParticipantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}
