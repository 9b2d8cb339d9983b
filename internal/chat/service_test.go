package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/AmaniTsuma/smartdesk-backend-sub000/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestSendMessageRejectsInvalidInput(t *testing.T) {
	svc, _, identity := newTestEngine()
	identity.addAdmin("alice")
	ctx := context.Background()

	client := SenderInfo{ID: uuid.New(), Name: "Bob", Email: "bob@example.com", Role: models.RoleClient}

	tests := []struct {
		name  string
		input SendMessageInput
	}{
		{
			name:  "empty content",
			input: SendMessageInput{Sender: client, Content: ""},
		},
		{
			name:  "whitespace only content",
			input: SendMessageInput{Sender: client, Content: "   \n\t  "},
		},
		{
			name:  "unknown sender role",
			input: SendMessageInput{Sender: SenderInfo{ID: uuid.New(), Role: "superuser"}, Content: "hi"},
		},
		{
			name:  "unknown message type",
			input: SendMessageInput{Sender: client, Content: "hi", MessageType: "video"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.SendMessage(ctx, tt.input)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestPublicMessageCreatesSupportConversation(t *testing.T) {
	svc, store, identity := newTestEngine()
	alice := identity.addAdmin("alice")
	bob := identity.addAdmin("bob")
	ctx := context.Background()

	visitor := SenderInfo{Name: "Visitor", Email: "visitor@example.com", Role: models.RolePublic}
	msg, notifications, err := svc.SendMessage(ctx, SendMessageInput{Sender: visitor, Content: "hello, I need help"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	conv, err := store.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv.ConversationType != models.ConversationPublicSupport {
		t.Errorf("conversation type = %q, want %q", conv.ConversationType, models.ConversationPublicSupport)
	}
	if conv.Title != "Public Support - Visitor" {
		t.Errorf("title = %q", conv.Title)
	}
	if len(conv.Participants) != 3 {
		t.Fatalf("participants = %d, want 3 (visitor plus both admins)", len(conv.Participants))
	}
	if msg.SenderID == uuid.Nil {
		t.Error("visitor was not assigned a synthetic id")
	}
	for _, id := range []uuid.UUID{msg.SenderID, alice.ID, bob.ID} {
		p := conv.Participants.Find(id)
		if p == nil || !p.IsActive {
			t.Errorf("participant %s missing or inactive", id)
		}
	}
	if conv.LastMessage.ID != msg.ID {
		t.Errorf("last message snapshot points at %s, want %s", conv.LastMessage.ID, msg.ID)
	}
	if conv.LastMessageAt == nil {
		t.Error("last_message_at not set")
	}

	// One room event plus one personal notification per admin.
	assertNotification(t, notifications, ConversationTopic(conv.ID), EventNewMessage)
	assertNotification(t, notifications, UserTopic(alice.ID), EventMessageNotification)
	assertNotification(t, notifications, UserTopic(bob.ID), EventMessageNotification)
	if len(notifications) != 3 {
		t.Errorf("notifications = %d, want 3", len(notifications))
	}
	for _, n := range notifications {
		if n.Topic == UserTopic(msg.SenderID) {
			t.Error("sender must not be notified about their own message")
		}
	}
}

func TestPublicMessageReusesConversationByEmail(t *testing.T) {
	svc, _, identity := newTestEngine()
	identity.addAdmin("alice")
	ctx := context.Background()

	first, _, err := svc.SendMessage(ctx, SendMessageInput{
		Sender:  SenderInfo{Name: "Visitor", Email: "visitor@example.com", Role: models.RolePublic},
		Content: "first visit",
	})
	if err != nil {
		t.Fatalf("first send: %v", err)
	}

	// Same email, different synthetic id: new browser session.
	second, _, err := svc.SendMessage(ctx, SendMessageInput{
		Sender:  SenderInfo{ID: uuid.New(), Name: "Visitor", Email: "visitor@example.com", Role: models.RolePublic},
		Content: "second visit",
	})
	if err != nil {
		t.Fatalf("second send: %v", err)
	}

	if second.ConversationID != first.ConversationID {
		t.Errorf("repeat visit opened a new conversation %s, want %s", second.ConversationID, first.ConversationID)
	}
	if second.SenderID != first.SenderID {
		t.Errorf("repeat visit sender id = %s, want remap to original %s", second.SenderID, first.SenderID)
	}
}

func TestClientMessageFansOutToAllAdmins(t *testing.T) {
	svc, store, identity := newTestEngine()
	alice := identity.addAdmin("alice")
	bob := identity.addAdmin("bob")
	ctx := context.Background()

	client := SenderInfo{ID: uuid.New(), Name: "Carol", Email: "carol@example.com", Role: models.RoleClient}
	msg, _, err := svc.SendMessage(ctx, SendMessageInput{Sender: client, Content: "hello"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	conv, err := store.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv.ConversationType != models.ConversationClientAdmin {
		t.Errorf("conversation type = %q", conv.ConversationType)
	}
	for _, id := range []uuid.UUID{client.ID, alice.ID, bob.ID} {
		if conv.Participants.Find(id) == nil {
			t.Errorf("participant %s missing", id)
		}
	}

	// A second message without conversation id lands in the same thread.
	again, _, err := svc.SendMessage(ctx, SendMessageInput{Sender: client, Content: "still there?"})
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	if again.ConversationID != msg.ConversationID {
		t.Errorf("second send opened a new conversation")
	}

	// An explicit admin recipient also resolves to the existing thread
	// because that admin is already a participant.
	addressed, _, err := svc.SendMessage(ctx, SendMessageInput{
		Sender:    client,
		Content:   "for bob",
		Recipient: &RecipientInfo{ID: bob.ID, Name: bob.Name, Email: bob.Email, Role: models.RoleAdmin},
	})
	if err != nil {
		t.Fatalf("addressed send: %v", err)
	}
	if addressed.ConversationID != msg.ConversationID {
		t.Errorf("addressed send opened a new conversation")
	}
	if addressed.RecipientID == nil || *addressed.RecipientID != bob.ID {
		t.Errorf("recipient not recorded on message")
	}
}

func TestClientMessageWithoutAdminsIsRejected(t *testing.T) {
	svc, _, _ := newTestEngine()

	client := SenderInfo{ID: uuid.New(), Name: "Carol", Role: models.RoleClient}
	_, _, err := svc.SendMessage(context.Background(), SendMessageInput{Sender: client, Content: "anyone?"})
	if !errors.Is(err, ErrInvalidConversationType) {
		t.Fatalf("expected ErrInvalidConversationType, got %v", err)
	}
}

func TestUnresolvableSenderRecipientPairIsRejected(t *testing.T) {
	svc, _, identity := newTestEngine()
	identity.addAdmin("alice")
	ctx := context.Background()

	// An admin initiating without a conversation id has no resolution rule.
	admin := SenderInfo{ID: uuid.New(), Name: "Alice", Role: models.RoleAdmin}
	_, _, err := svc.SendMessage(ctx, SendMessageInput{Sender: admin, Content: "hi"})
	if !errors.Is(err, ErrInvalidConversationType) {
		t.Fatalf("admin initiation: expected ErrInvalidConversationType, got %v", err)
	}

	// A client addressing another client is likewise unresolvable.
	client := SenderInfo{ID: uuid.New(), Name: "Carol", Role: models.RoleClient}
	_, _, err = svc.SendMessage(ctx, SendMessageInput{
		Sender:    client,
		Content:   "psst",
		Recipient: &RecipientInfo{ID: uuid.New(), Role: models.RoleClient},
	})
	if !errors.Is(err, ErrInvalidConversationType) {
		t.Fatalf("client-to-client: expected ErrInvalidConversationType, got %v", err)
	}
}

func TestExplicitConversationMembership(t *testing.T) {
	svc, store, identity := newTestEngine()
	identity.addAdmin("alice")
	ctx := context.Background()

	client := SenderInfo{ID: uuid.New(), Name: "Carol", Email: "carol@example.com", Role: models.RoleClient}
	first, _, err := svc.SendMessage(ctx, SendMessageInput{Sender: client, Content: "hello"})
	if err != nil {
		t.Fatalf("seed send: %v", err)
	}
	convID := first.ConversationID

	// A later-registered admin may post into the thread and is merged in.
	bob := identity.addAdmin("bob")
	adminSender := SenderInfo{ID: bob.ID, Name: bob.Name, Email: bob.Email, Role: models.RoleAdmin}
	_, _, err = svc.SendMessage(ctx, SendMessageInput{Sender: adminSender, ConversationID: &convID, Content: "how can I help?"})
	if err != nil {
		t.Fatalf("admin reply: %v", err)
	}
	conv, _ := store.GetConversation(ctx, convID)
	if p := conv.Participants.Find(bob.ID); p == nil || !p.IsActive {
		t.Error("replying admin was not merged into the participant list")
	}

	// A stranger client is rejected.
	stranger := SenderInfo{ID: uuid.New(), Name: "Mallory", Role: models.RoleClient}
	_, _, err = svc.SendMessage(ctx, SendMessageInput{Sender: stranger, ConversationID: &convID, Content: "let me in"})
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("stranger: expected ErrNotAuthorized, got %v", err)
	}

	// Unknown conversation id.
	missing := uuid.New()
	_, _, err = svc.SendMessage(ctx, SendMessageInput{Sender: client, ConversationID: &missing, Content: "hi"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing conversation: expected ErrNotFound, got %v", err)
	}
}

func TestReconcileAdminParticipants(t *testing.T) {
	svc, store, identity := newTestEngine()
	alice := identity.addAdmin("alice")
	ctx := context.Background()

	client := SenderInfo{ID: uuid.New(), Name: "Carol", Email: "carol@example.com", Role: models.RoleClient}
	seed, _, err := svc.SendMessage(ctx, SendMessageInput{Sender: client, Content: "hello"})
	if err != nil {
		t.Fatalf("seed send: %v", err)
	}

	visitor := SenderInfo{Name: "Visitor", Email: "visitor@example.com", Role: models.RolePublic}
	if _, _, err := svc.SendMessage(ctx, SendMessageInput{Sender: visitor, Content: "help"}); err != nil {
		t.Fatalf("visitor send: %v", err)
	}

	// Admins registered after both conversations existed.
	bob := identity.addAdmin("bob")

	changed, err := svc.ReconcileAdminParticipants(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if changed != 2 {
		t.Errorf("changed = %d, want 2", changed)
	}

	conversations, _ := store.ListActiveConversations(ctx)
	for _, conv := range conversations {
		if p := conv.Participants.Find(bob.ID); p == nil || !p.IsActive {
			t.Errorf("conversation %s missing back-filled admin", conv.ID)
		}
	}

	// Idempotent: nothing left to merge.
	changed, err = svc.ReconcileAdminParticipants(ctx)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if changed != 0 {
		t.Errorf("second pass changed = %d, want 0", changed)
	}

	// Deactivated admin entries are reactivated, not duplicated.
	conv, _ := store.GetConversation(ctx, seed.ConversationID)
	conv.Participants.Find(alice.ID).IsActive = false
	if err := store.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("save: %v", err)
	}
	changed, err = svc.ReconcileAdminParticipants(ctx)
	if err != nil {
		t.Fatalf("third reconcile: %v", err)
	}
	if changed != 1 {
		t.Errorf("third pass changed = %d, want 1", changed)
	}
	conv, _ = store.GetConversation(ctx, seed.ConversationID)
	count := 0
	for _, p := range conv.Participants {
		if p.UserID == alice.ID {
			count++
			if !p.IsActive {
				t.Error("deactivated admin was not reactivated")
			}
		}
	}
	if count != 1 {
		t.Errorf("admin appears %d times, want 1", count)
	}
}

// failingAppendStore refuses every append, simulating a database outage at
// the moment of dispatch.
type failingAppendStore struct {
	*memStore
}

func (s *failingAppendStore) AppendMessage(context.Context, *models.Message, *models.Conversation) error {
	return fmt.Errorf("%w: connection reset", ErrStoreUnavailable)
}

func TestSendMessageFailedAppendLeavesNoPartialState(t *testing.T) {
	store := newMemStore()
	identity := &memIdentity{users: make(map[string]*models.User)}
	ctx := context.Background()

	client := uuid.New()
	conv := seedConversation(t, store, models.ConversationClientAdmin, client)
	seedMessage(t, store, conv, client, nil, "before", time.Now().Add(-time.Minute))
	before, err := store.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}

	svc := NewService(&failingAppendStore{memStore: store}, identity, zerolog.Nop())

	sender := SenderInfo{ID: client, Role: models.RoleClient}
	_, _, err = svc.SendMessage(ctx, SendMessageInput{Sender: sender, ConversationID: &conv.ID, Content: "doomed"})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	// The failed dispatch must not leave a message behind or move the
	// conversation's denormalized last-message state.
	after, err := store.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation after failure: %v", err)
	}
	if after.LastMessage != before.LastMessage {
		t.Errorf("last message snapshot changed: %+v -> %+v", before.LastMessage, after.LastMessage)
	}
	if (after.LastMessageAt == nil) != (before.LastMessageAt == nil) {
		t.Error("last_message_at changed")
	}
	messages, err := store.ListMessages(ctx, conv.ID, 0, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 1 {
		t.Errorf("messages = %d, want only the pre-existing one", len(messages))
	}
}

func assertNotification(t *testing.T, notifications []Notification, topic, event string) {
	t.Helper()
	for _, n := range notifications {
		if n.Topic == topic && n.Event == event {
			return
		}
	}
	t.Errorf("no notification with topic %q event %q", topic, event)
}
