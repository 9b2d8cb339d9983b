package chat

import (
	"context"

	"github.com/AmaniTsuma/smartdesk-backend-sub000/pkg/models"
	"github.com/google/uuid"
)

// Store is the durable backing for conversations and messages. The GORM
// implementation lives in internal/repo; tests use an in-memory fake.
type Store interface {
	GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	SaveConversation(ctx context.Context, conv *models.Conversation) error

	// FindPublicSupportByEmail searches active public-support conversations
	// for one containing an active public participant with the given email.
	FindPublicSupportByEmail(ctx context.Context, email string) (*models.Conversation, error)

	// FindClientAdminPair searches active client-admin conversations
	// containing both users as active participants.
	FindClientAdminPair(ctx context.Context, clientID, adminID uuid.UUID) (*models.Conversation, error)

	// ListConversationsByParticipant returns active conversations where the
	// user is an active participant, most recently active first.
	ListConversationsByParticipant(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)

	// ListActiveConversations returns every active conversation of the given
	// types, for the admin inbox and the reconciliation pass.
	ListActiveConversations(ctx context.Context, types ...models.ConversationType) ([]models.Conversation, error)

	// AppendMessage persists the message and the updated conversation in a
	// single transaction: either both land or neither does.
	AppendMessage(ctx context.Context, msg *models.Message, conv *models.Conversation) error

	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	SaveMessage(ctx context.Context, msg *models.Message) error

	// ListMessages returns non-deleted messages ordered by created_at
	// ascending (seq as tiebreak), paginated by offset/limit.
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]models.Message, error)

	// MarkMessagesRead flips is_read on unread messages addressed to the
	// user within the conversation and returns how many changed.
	MarkMessagesRead(ctx context.Context, conversationID, userID uuid.UUID) (int64, error)

	// CountUnread counts non-deleted unread messages addressed to the user
	// across all conversations.
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
}

// IdentityProvider supplies the current admin roster. Implementations must
// reflect newly registered admins promptly; the engine never caches the
// roster across calls.
type IdentityProvider interface {
	// ListAdmins returns active administrators in registration order
	// (created_at ascending, id as tiebreak). The resolver relies on this
	// order being deterministic when picking a default recipient.
	ListAdmins(ctx context.Context) ([]models.AdminAccount, error)

	// GetUserByEmail returns nil without error when no account matches.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// Notification is a realtime publish target computed by the dispatch
// engine. The transport layer decides how to deliver it.
type Notification struct {
	Topic   string      `json:"topic"`
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Topic and event names understood by the realtime transport.
const (
	EventNewMessage          = "new-message"
	EventMessageNotification = "message-notification"
)

// ConversationTopic addresses every socket joined to the conversation room.
func ConversationTopic(id uuid.UUID) string {
	return "conversation:" + id.String()
}

// UserTopic addresses a user's personal room.
func UserTopic(id uuid.UUID) string {
	return "user:" + id.String()
}
