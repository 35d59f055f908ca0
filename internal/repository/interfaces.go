package repository

import (
	"context"

	"github.com/google/uuid"

	"ripple/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.User, error)
	GetByUsername(ctx context.Context, username string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
}

type ConversationRepository interface {
	Create(ctx context.Context, c *domain.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.Conversation, error)
	GetDirect(ctx context.Context, userA, userB uuid.UUID) (domain.Conversation, error)
	GetUserConversations(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error)
	SetLastMessage(ctx context.Context, conversationID, messageID uuid.UUID) error
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
}

type MessageRepository interface {
	Create(ctx context.Context, m *domain.Message) error
	GetConversationMessages(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error)
}
