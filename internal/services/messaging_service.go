package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ripple/internal/domain"
	"ripple/internal/events"
	"ripple/internal/repository"
	ripple_errors "ripple/pkg/errors"
	"ripple/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SendTarget selects where a message goes. Exactly one of the three shapes
// is valid per send; the type makes the exclusivity structural instead of a
// field check.
type SendTarget interface {
	isSendTarget()
}

// ByConversation sends into an existing conversation.
type ByConversation struct {
	ConversationID uuid.UUID
}

// ByRecipient sends a direct message, lazily creating the unique direct
// conversation between sender and recipient.
type ByRecipient struct {
	RecipientID uuid.UUID
}

// ByGroup always creates a new group conversation, even when an identical
// participant set and name already exist.
type ByGroup struct {
	ParticipantIDs []uuid.UUID
	GroupName      string
}

func (ByConversation) isSendTarget() {}
func (ByRecipient) isSendTarget()    {}
func (ByGroup) isSendTarget()        {}

// ConversationView is a conversation enriched with participant profiles for
// list rendering.
type ConversationView struct {
	Conversation domain.Conversation
	Profiles     []domain.Profile
}

type MessagingService struct {
	db        *gorm.DB
	convRepo  repository.ConversationRepository
	msgRepo   repository.MessageRepository
	identity  IdentityResolver
	publisher events.Publisher
	log       *logger.Logger
}

func NewMessagingService(
	db *gorm.DB,
	convRepo repository.ConversationRepository,
	msgRepo repository.MessageRepository,
	identity IdentityResolver,
	publisher events.Publisher,
	log *logger.Logger,
) *MessagingService {
	return &MessagingService{
		db:        db,
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		identity:  identity,
		publisher: publisher,
		log:       log,
	}
}

// withStores runs fn against transaction-scoped repositories when a database
// is present, and against the injected ones otherwise (tests use fakes with
// a nil db).
func (s *MessagingService) withStores(ctx context.Context, fn func(convRepo repository.ConversationRepository, msgRepo repository.MessageRepository) error) error {
	if s.db == nil {
		return fn(s.convRepo, s.msgRepo)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(repository.NewConversationRepository(tx), repository.NewMessageRepository(tx))
	})
}

// SendMessage resolves or creates the target conversation, appends the
// message, updates the conversation's last-message pointer, then publishes
// to live subscribers. Persistence steps share one transaction; the publish
// happens after commit and never fails the send.
func (s *MessagingService) SendMessage(ctx context.Context, senderID uuid.UUID, text string, target SendTarget) (domain.Message, domain.Conversation, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, domain.Conversation{}, fmt.Errorf("%w: message text cannot be empty", ripple_errors.ErrInvalidInput)
	}
	if target == nil {
		return domain.Message{}, domain.Conversation{}, fmt.Errorf("%w: missing message target", ripple_errors.ErrInvalidInput)
	}

	msg, conv, created, err := s.trySend(ctx, senderID, text, target)
	if errors.Is(err, ripple_errors.ErrAlreadyExists) {
		// Lost the direct-conversation creation race. The winner's record is
		// durable now, so one retry resolves it.
		msg, conv, created, err = s.trySend(ctx, senderID, text, target)
	}
	if err != nil {
		return domain.Message{}, domain.Conversation{}, err
	}

	if created {
		s.publishConversationCreated(ctx, conv)
	}
	s.publish(ctx, conv, msg)
	return msg, conv, nil
}

func (s *MessagingService) trySend(ctx context.Context, senderID uuid.UUID, text string, target SendTarget) (domain.Message, domain.Conversation, bool, error) {
	var (
		msg     domain.Message
		conv    domain.Conversation
		created bool
	)

	err := s.withStores(ctx, func(convRepo repository.ConversationRepository, msgRepo repository.MessageRepository) error {
		var err error
		switch t := target.(type) {
		case ByConversation:
			conv, err = s.resolveExisting(ctx, convRepo, senderID, t.ConversationID)
		case ByRecipient:
			conv, created, err = s.findOrCreateDirect(ctx, convRepo, senderID, t.RecipientID)
		case ByGroup:
			conv, err = s.createGroup(ctx, convRepo, senderID, t)
			created = err == nil
		default:
			err = fmt.Errorf("%w: unknown message target", ripple_errors.ErrInvalidInput)
		}
		if err != nil {
			return err
		}

		msg = domain.Message{
			ID:             uuid.New(),
			ConversationID: conv.ID,
			SenderID:       senderID,
			Text:           text,
			CreatedAt:      time.Now(),
		}
		if err := msgRepo.Create(ctx, &msg); err != nil {
			return err
		}

		// A failure here rolls the append back with it; the client retries
		// the whole send, so the pointer can never lag a committed message.
		if err := convRepo.SetLastMessage(ctx, conv.ID, msg.ID); err != nil {
			return err
		}
		conv.LastMessageID = &msg.ID
		conv.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return domain.Message{}, domain.Conversation{}, false, err
	}
	return msg, conv, created, nil
}

func (s *MessagingService) resolveExisting(ctx context.Context, convRepo repository.ConversationRepository, senderID, conversationID uuid.UUID) (domain.Conversation, error) {
	conv, err := convRepo.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ripple_errors.ErrNotFound) {
			return domain.Conversation{}, fmt.Errorf("%w: conversation", ripple_errors.ErrNotFound)
		}
		return domain.Conversation{}, err
	}
	if !conv.HasParticipant(senderID) {
		return domain.Conversation{}, fmt.Errorf("%w: not a participant of this conversation", ripple_errors.ErrForbidden)
	}
	return conv, nil
}

// findOrCreateDirect returns the unique direct conversation between the two
// users, creating it when absent. The unique index on the pair key
// guarantees at most one ever exists; a loser of the creation race falls
// back to re-reading the winner (the retry lives in SendMessage, outside the
// aborted transaction).
func (s *MessagingService) findOrCreateDirect(ctx context.Context, convRepo repository.ConversationRepository, senderID, recipientID uuid.UUID) (domain.Conversation, bool, error) {
	if recipientID == senderID {
		return domain.Conversation{}, false, fmt.Errorf("%w: cannot start a direct conversation with yourself", ripple_errors.ErrInvalidInput)
	}
	if _, err := s.identity.Resolve(ctx, recipientID); err != nil {
		if errors.Is(err, ripple_errors.ErrNotFound) {
			return domain.Conversation{}, false, fmt.Errorf("%w: recipient user", ripple_errors.ErrNotFound)
		}
		return domain.Conversation{}, false, err
	}

	conv, err := convRepo.GetDirect(ctx, senderID, recipientID)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, ripple_errors.ErrNotFound) {
		return domain.Conversation{}, false, err
	}

	now := time.Now()
	key := domain.DirectKeyFor(senderID, recipientID)
	conv = domain.Conversation{
		ID:        uuid.New(),
		IsGroup:   false,
		DirectKey: &key,
		CreatedAt: now,
		UpdatedAt: now,
		Participants: []domain.Participant{
			{UserID: senderID, JoinedAt: now},
			{UserID: recipientID, JoinedAt: now},
		},
	}
	for i := range conv.Participants {
		conv.Participants[i].ConversationID = conv.ID
	}
	if err := convRepo.Create(ctx, &conv); err != nil {
		return domain.Conversation{}, false, err
	}
	return conv, true, nil
}

func (s *MessagingService) createGroup(ctx context.Context, convRepo repository.ConversationRepository, senderID uuid.UUID, target ByGroup) (domain.Conversation, error) {
	groupName := strings.TrimSpace(target.GroupName)
	if groupName == "" {
		return domain.Conversation{}, fmt.Errorf("%w: group name is required", ripple_errors.ErrInvalidInput)
	}

	// De-duplicated union of the sender and the requested participants.
	memberIDs := []uuid.UUID{senderID}
	seen := map[uuid.UUID]struct{}{senderID: {}}
	for _, id := range target.ParticipantIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		memberIDs = append(memberIDs, id)
	}
	if len(memberIDs) < 2 {
		return domain.Conversation{}, fmt.Errorf("%w: group conversation needs at least two participants", ripple_errors.ErrInvalidInput)
	}

	profiles, err := s.identity.ResolveMany(ctx, memberIDs)
	if err != nil {
		return domain.Conversation{}, err
	}
	for _, id := range memberIDs {
		if _, ok := profiles[id]; !ok {
			return domain.Conversation{}, fmt.Errorf("%w: participant %s", ripple_errors.ErrNotFound, id)
		}
	}

	now := time.Now()
	conv := domain.Conversation{
		ID:        uuid.New(),
		IsGroup:   true,
		GroupName: &groupName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, id := range memberIDs {
		conv.Participants = append(conv.Participants, domain.Participant{
			ConversationID: conv.ID,
			UserID:         id,
			JoinedAt:       now,
		})
	}
	if err := convRepo.Create(ctx, &conv); err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

func (s *MessagingService) publish(ctx context.Context, conv domain.Conversation, msg domain.Message) {
	if s.publisher == nil {
		return
	}

	payload := events.MessagePayload{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Text:           msg.Text,
		CreatedAt:      msg.CreatedAt,
	}
	if profile, err := s.identity.Resolve(ctx, msg.SenderID); err == nil {
		payload.Sender = profile
	}

	if err := s.publisher.PublishNewMessage(ctx, conv, payload); err != nil && s.log != nil {
		s.log.Errorf("failed to publish new message event: %s", err)
	}
}

// publishConversationCreated notifies every participant's personal topic so
// open clients can add the thread to their list without a refetch.
func (s *MessagingService) publishConversationCreated(ctx context.Context, conv domain.Conversation) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishConversationCreated(ctx, conv); err != nil && s.log != nil {
		s.log.Errorf("failed to publish conversation created event: %s", err)
	}
}

// ListConversations returns the principal's conversations, most recently
// active first, enriched with participant profiles.
func (s *MessagingService) ListConversations(ctx context.Context, userID uuid.UUID) ([]ConversationView, error) {
	conversations, err := s.convRepo.GetUserConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	idSet := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID
	for _, conv := range conversations {
		for _, p := range conv.Participants {
			if _, ok := idSet[p.UserID]; !ok {
				idSet[p.UserID] = struct{}{}
				ids = append(ids, p.UserID)
			}
		}
	}
	profiles, err := s.identity.ResolveMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	views := make([]ConversationView, 0, len(conversations))
	for _, conv := range conversations {
		view := ConversationView{Conversation: conv}
		for _, p := range conv.Participants {
			if profile, ok := profiles[p.UserID]; ok {
				view.Profiles = append(view.Profiles, profile)
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// ListMessages returns the conversation history oldest first. The principal
// must be a participant.
func (s *MessagingService) ListMessages(ctx context.Context, userID, conversationID uuid.UUID) ([]domain.Message, error) {
	member, err := s.convRepo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, ripple_errors.ErrNotFound) {
			return nil, fmt.Errorf("%w: conversation", ripple_errors.ErrNotFound)
		}
		return nil, err
	}
	if !member {
		// Distinguish a missing conversation from one the caller is simply
		// not part of.
		if _, err := s.convRepo.GetByID(ctx, conversationID); err != nil {
			if errors.Is(err, ripple_errors.ErrNotFound) {
				return nil, fmt.Errorf("%w: conversation", ripple_errors.ErrNotFound)
			}
			return nil, err
		}
		return nil, fmt.Errorf("%w: not authorized to view this conversation", ripple_errors.ErrForbidden)
	}
	return s.msgRepo.GetConversationMessages(ctx, conversationID)
}
