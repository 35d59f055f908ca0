package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"ripple/internal/domain"
	"ripple/internal/events"
	ripple_errors "ripple/pkg/errors"

	"github.com/google/uuid"
)

// --- in-memory fakes ---

type fakeConversationRepo struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]domain.Conversation
	directKeys    map[string]uuid.UUID
	setLastErr    error
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		conversations: make(map[uuid.UUID]domain.Conversation),
		directKeys:    make(map[string]uuid.UUID),
	}
}

func (r *fakeConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.DirectKey != nil {
		if _, taken := r.directKeys[*c.DirectKey]; taken {
			return ripple_errors.ErrAlreadyExists
		}
		r.directKeys[*c.DirectKey] = c.ID
	}
	r.conversations[c.ID] = *c
	return nil
}

func (r *fakeConversationRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return domain.Conversation{}, ripple_errors.ErrNotFound
	}
	return c, nil
}

func (r *fakeConversationRepo) GetDirect(ctx context.Context, userA, userB uuid.UUID) (domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.directKeys[domain.DirectKeyFor(userA, userB)]
	if !ok {
		return domain.Conversation{}, ripple_errors.ErrNotFound
	}
	return r.conversations[id], nil
}

func (r *fakeConversationRepo) GetUserConversations(ctx context.Context, userID uuid.UUID) ([]domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Conversation
	for _, c := range r.conversations {
		if c.HasParticipant(userID) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (r *fakeConversationRepo) SetLastMessage(ctx context.Context, conversationID, messageID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setLastErr != nil {
		return r.setLastErr
	}
	c, ok := r.conversations[conversationID]
	if !ok {
		return ripple_errors.ErrNotFound
	}
	c.LastMessageID = &messageID
	c.UpdatedAt = time.Now()
	r.conversations[conversationID] = c
	return nil
}

func (r *fakeConversationRepo) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	c, err := r.GetByID(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return c.HasParticipant(userID), nil
}

func (r *fakeConversationRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conversations)
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []domain.Message
}

func (r *fakeMessageRepo) Create(ctx context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, *m)
	return nil
}

func (r *fakeMessageRepo) GetConversationMessages(ctx context.Context, conversationID uuid.UUID) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Message
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	// Stable sort preserves append order for equal timestamps, matching the
	// store's created_at/id ordering.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *fakeMessageRepo) contains(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

type fakeIdentity struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]domain.Profile
}

func newFakeIdentity(ids ...uuid.UUID) *fakeIdentity {
	f := &fakeIdentity{profiles: make(map[uuid.UUID]domain.Profile)}
	for i, id := range ids {
		f.profiles[id] = domain.Profile{ID: id, Username: "user" + string(rune('a'+i))}
	}
	return f
}

func (f *fakeIdentity) Resolve(ctx context.Context, id uuid.UUID) (domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return domain.Profile{}, ripple_errors.ErrNotFound
	}
	return p, nil
}

func (f *fakeIdentity) ResolveMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uuid.UUID]domain.Profile)
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type publishedEvent struct {
	conv    domain.Conversation
	payload events.MessagePayload
	durable bool // message was already persisted when publish fired
}

type fakePublisher struct {
	mu      sync.Mutex
	msgRepo *fakeMessageRepo
	events  []publishedEvent
	created []domain.Conversation
	err     error
}

func (p *fakePublisher) PublishNewMessage(ctx context.Context, conv domain.Conversation, payload events.MessagePayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	ev := publishedEvent{conv: conv, payload: payload}
	if p.msgRepo != nil {
		ev.durable = p.msgRepo.contains(payload.ID)
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) PublishConversationCreated(ctx context.Context, conv domain.Conversation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.created = append(p.created, conv)
	return nil
}

func (p *fakePublisher) all() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.events...)
}

func (p *fakePublisher) createdConversations() []domain.Conversation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Conversation(nil), p.created...)
}

type fixture struct {
	svc       *MessagingService
	convRepo  *fakeConversationRepo
	msgRepo   *fakeMessageRepo
	identity  *fakeIdentity
	publisher *fakePublisher
}

func newFixture(userIDs ...uuid.UUID) *fixture {
	convRepo := newFakeConversationRepo()
	msgRepo := &fakeMessageRepo{}
	identity := newFakeIdentity(userIDs...)
	publisher := &fakePublisher{msgRepo: msgRepo}
	return &fixture{
		svc:       NewMessagingService(nil, convRepo, msgRepo, identity, publisher, nil),
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		identity:  identity,
		publisher: publisher,
	}
}

// --- tests ---

func TestSendMessageDirectFindOrCreate(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	f := newFixture(alice, bob)

	msg1, conv1, err := f.svc.SendMessage(ctx, alice, "hi", ByRecipient{RecipientID: bob})
	if err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	if conv1.IsGroup {
		t.Error("direct conversation marked as group")
	}
	if !conv1.HasParticipant(alice) || !conv1.HasParticipant(bob) {
		t.Errorf("participants = %v, want {alice, bob}", conv1.ParticipantIDs())
	}
	if conv1.LastMessageID == nil || *conv1.LastMessageID != msg1.ID {
		t.Error("last message pointer not set to the sent message")
	}

	// Reply in the opposite id order resolves to the same conversation.
	_, conv2, err := f.svc.SendMessage(ctx, bob, "yo", ByRecipient{RecipientID: alice})
	if err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	if conv2.ID != conv1.ID {
		t.Fatalf("reply created a second conversation: %s vs %s", conv2.ID, conv1.ID)
	}
	if f.convRepo.count() != 1 {
		t.Fatalf("conversation count = %d, want 1", f.convRepo.count())
	}

	messages, err := f.svc.ListMessages(ctx, alice, conv1.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(messages) != 2 || messages[0].Text != "hi" || messages[1].Text != "yo" {
		t.Errorf("history = %v, want [hi yo]", texts(messages))
	}
}

func TestSendMessageConcurrentFirstSendsCreateOneConversation(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	f := newFixture(alice, bob)

	const senders = 16
	var wg sync.WaitGroup
	errs := make(chan error, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		from, to := alice, bob
		if i%2 == 1 {
			from, to = bob, alice
		}
		go func() {
			defer wg.Done()
			if _, _, err := f.svc.SendMessage(ctx, from, "first", ByRecipient{RecipientID: to}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent send failed: %v", err)
	}

	if got := f.convRepo.count(); got != 1 {
		t.Fatalf("conversation count = %d, want 1", got)
	}
}

func TestGroupConversationsAreNeverMerged(t *testing.T) {
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	f := newFixture(alice, bob, carol)
	target := ByGroup{ParticipantIDs: []uuid.UUID{bob, carol}, GroupName: "trio"}

	_, conv1, err := f.svc.SendMessage(ctx, alice, "start", target)
	if err != nil {
		t.Fatalf("group send failed: %v", err)
	}
	if !conv1.IsGroup || conv1.GroupName == nil || *conv1.GroupName != "trio" {
		t.Errorf("conversation = %+v, want group named trio", conv1)
	}
	if len(conv1.Participants) != 3 {
		t.Errorf("participant count = %d, want 3", len(conv1.Participants))
	}

	_, conv2, err := f.svc.SendMessage(ctx, alice, "again", target)
	if err != nil {
		t.Fatalf("second group send failed: %v", err)
	}
	if conv1.ID == conv2.ID {
		t.Error("identical group targets were merged into one conversation")
	}
}

func TestSendMessageValidation(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	tests := []struct {
		name   string
		text   string
		target SendTarget
		want   error
	}{
		{"empty text", "", ByRecipient{RecipientID: bob}, ripple_errors.ErrInvalidInput},
		{"whitespace text", "   \n\t", ByRecipient{RecipientID: bob}, ripple_errors.ErrInvalidInput},
		{"nil target", "hello", nil, ripple_errors.ErrInvalidInput},
		{"self direct message", "hello", ByRecipient{RecipientID: alice}, ripple_errors.ErrInvalidInput},
		{"group with no other participants", "hello", ByGroup{ParticipantIDs: []uuid.UUID{}, GroupName: "solo"}, ripple_errors.ErrInvalidInput},
		{"group of only the sender", "hello", ByGroup{ParticipantIDs: []uuid.UUID{alice}, GroupName: "solo"}, ripple_errors.ErrInvalidInput},
		{"group without a name", "hello", ByGroup{ParticipantIDs: []uuid.UUID{bob}, GroupName: "  "}, ripple_errors.ErrInvalidInput},
		{"unknown recipient", "hello", ByRecipient{RecipientID: uuid.New()}, ripple_errors.ErrNotFound},
		{"unknown group participant", "hello", ByGroup{ParticipantIDs: []uuid.UUID{bob, uuid.New()}, GroupName: "trio"}, ripple_errors.ErrNotFound},
		{"unknown conversation", "hello", ByConversation{ConversationID: uuid.New()}, ripple_errors.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(alice, bob)
			_, _, err := f.svc.SendMessage(ctx, alice, tt.text, tt.target)
			if !errors.Is(err, tt.want) {
				t.Errorf("SendMessage() error = %v, want %v", err, tt.want)
			}
			if f.convRepo.count() != 0 {
				t.Error("failed send left a conversation behind")
			}
			if len(f.publisher.all()) != 0 {
				t.Error("failed send published an event")
			}
		})
	}
}

func TestSendMessageIntoConversationRequiresMembership(t *testing.T) {
	ctx := context.Background()
	alice, bob, mallory := uuid.New(), uuid.New(), uuid.New()
	f := newFixture(alice, bob, mallory)

	_, conv, err := f.svc.SendMessage(ctx, alice, "hi", ByRecipient{RecipientID: bob})
	if err != nil {
		t.Fatalf("setup send failed: %v", err)
	}

	_, _, err = f.svc.SendMessage(ctx, mallory, "let me in", ByConversation{ConversationID: conv.ID})
	if !errors.Is(err, ripple_errors.ErrForbidden) {
		t.Errorf("outsider send error = %v, want ErrForbidden", err)
	}

	// A member can keep using the conversation id directly.
	_, conv2, err := f.svc.SendMessage(ctx, bob, "still here", ByConversation{ConversationID: conv.ID})
	if err != nil {
		t.Fatalf("member send failed: %v", err)
	}
	if conv2.ID != conv.ID {
		t.Error("member send resolved to a different conversation")
	}
}

func TestListMessagesAuthorization(t *testing.T) {
	ctx := context.Background()
	alice, bob, mallory := uuid.New(), uuid.New(), uuid.New()
	f := newFixture(alice, bob, mallory)

	_, conv, err := f.svc.SendMessage(ctx, alice, "secret", ByRecipient{RecipientID: bob})
	if err != nil {
		t.Fatalf("setup send failed: %v", err)
	}

	if _, err := f.svc.ListMessages(ctx, mallory, conv.ID); !errors.Is(err, ripple_errors.ErrForbidden) {
		t.Errorf("outsider ListMessages error = %v, want ErrForbidden", err)
	}
	if _, err := f.svc.ListMessages(ctx, alice, uuid.New()); !errors.Is(err, ripple_errors.ErrNotFound) {
		t.Errorf("absent conversation error = %v, want ErrNotFound", err)
	}
}

func TestMessageOrderingMatchesSendOrder(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	f := newFixture(alice, bob)

	sent := []string{"one", "two", "three", "four", "five"}
	var convID uuid.UUID
	for i, text := range sent {
		from, to := alice, bob
		if i%2 == 1 {
			from, to = bob, alice
		}
		_, conv, err := f.svc.SendMessage(ctx, from, text, ByRecipient{RecipientID: to})
		if err != nil {
			t.Fatalf("send %q failed: %v", text, err)
		}
		convID = conv.ID
	}

	messages, err := f.svc.ListMessages(ctx, alice, convID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	got := texts(messages)
	if len(got) != len(sent) {
		t.Fatalf("message count = %d, want %d", len(got), len(sent))
	}
	for i := range sent {
		if got[i] != sent[i] {
			t.Fatalf("history = %v, want %v", got, sent)
		}
	}
	for i := 1; i < len(messages); i++ {
		if messages[i].CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Fatal("created_at went backwards within a conversation")
		}
	}
}

func TestListConversationsRecencyOrdering(t *testing.T) {
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	f := newFixture(alice, bob, carol)

	_, convWithBob, err := f.svc.SendMessage(ctx, alice, "hi bob", ByRecipient{RecipientID: bob})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	_, convWithCarol, err := f.svc.SendMessage(ctx, alice, "hi carol", ByRecipient{RecipientID: carol})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	views, err := f.svc.ListConversations(ctx, alice)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("conversation count = %d, want 2", len(views))
	}
	if views[0].Conversation.ID != convWithCarol.ID {
		t.Error("most recently active conversation is not first")
	}
	if len(views[0].Profiles) == 0 {
		t.Error("conversation view missing participant profiles")
	}

	// Messaging the older conversation moves it back to the front.
	time.Sleep(2 * time.Millisecond)
	if _, _, err := f.svc.SendMessage(ctx, bob, "pong", ByConversation{ConversationID: convWithBob.ID}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	views, err = f.svc.ListConversations(ctx, alice)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if views[0].Conversation.ID != convWithBob.ID {
		t.Error("conversation did not move to the front after a new message")
	}
	for i := 1; i < len(views); i++ {
		if views[i].Conversation.UpdatedAt.After(views[i-1].Conversation.UpdatedAt) {
			t.Fatal("updated_at ordering is not non-increasing")
		}
	}
}

func TestPublishHappensAfterPersistence(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	f := newFixture(alice, bob)

	msg, conv, err := f.svc.SendMessage(ctx, alice, "hello", ByRecipient{RecipientID: bob})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	published := f.publisher.all()
	if len(published) != 1 {
		t.Fatalf("published %d events, want 1", len(published))
	}
	ev := published[0]
	if !ev.durable {
		t.Error("event published before the message was durably stored")
	}
	if ev.payload.ID != msg.ID || ev.payload.Text != "hello" || ev.payload.ConversationID != conv.ID {
		t.Errorf("payload = %+v does not match sent message", ev.payload)
	}
	if ev.payload.Sender.ID != alice {
		t.Error("payload missing sender profile")
	}
	if ev.conv.ID != conv.ID {
		t.Error("event carries the wrong conversation")
	}
}

func TestConversationCreatedAnnouncement(t *testing.T) {
	ctx := context.Background()
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	f := newFixture(alice, bob, carol)

	// The first direct send announces the new conversation once.
	_, conv, err := f.svc.SendMessage(ctx, alice, "hi", ByRecipient{RecipientID: bob})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	created := f.publisher.createdConversations()
	if len(created) != 1 || created[0].ID != conv.ID {
		t.Fatalf("created announcements = %d, want 1 for %s", len(created), conv.ID)
	}

	// Replies into the existing conversation stay silent.
	if _, _, err := f.svc.SendMessage(ctx, bob, "yo", ByRecipient{RecipientID: alice}); err != nil {
		t.Fatalf("reply failed: %v", err)
	}
	if _, _, err := f.svc.SendMessage(ctx, alice, "again", ByConversation{ConversationID: conv.ID}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if got := len(f.publisher.createdConversations()); got != 1 {
		t.Errorf("created announcements after replies = %d, want 1", got)
	}

	// Every group send creates and announces a fresh conversation.
	target := ByGroup{ParticipantIDs: []uuid.UUID{bob, carol}, GroupName: "trio"}
	if _, _, err := f.svc.SendMessage(ctx, alice, "start", target); err != nil {
		t.Fatalf("group send failed: %v", err)
	}
	if _, _, err := f.svc.SendMessage(ctx, alice, "another", target); err != nil {
		t.Fatalf("group send failed: %v", err)
	}
	if got := len(f.publisher.createdConversations()); got != 3 {
		t.Errorf("created announcements after groups = %d, want 3", got)
	}
}

func TestSendMessageFailsWhenPointerUpdateFails(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	f := newFixture(alice, bob)
	f.convRepo.setLastErr = errors.New("deadlock detected")

	_, _, err := f.svc.SendMessage(ctx, alice, "hello", ByRecipient{RecipientID: bob})
	if err == nil {
		t.Fatal("send succeeded despite the pointer update failing")
	}
	if len(f.publisher.all()) != 0 {
		t.Error("failed send published a message event")
	}
}

func TestPublishFailureDoesNotFailSend(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()
	f := newFixture(alice, bob)
	f.publisher.err = errors.New("bus down")

	if _, _, err := f.svc.SendMessage(ctx, alice, "hello", ByRecipient{RecipientID: bob}); err != nil {
		t.Fatalf("send failed because of the publisher: %v", err)
	}
	if f.convRepo.count() != 1 {
		t.Error("message was not persisted")
	}
}

func texts(messages []domain.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Text)
	}
	return out
}
