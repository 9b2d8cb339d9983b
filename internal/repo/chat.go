package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/chat"
	"github.com/AmaniTsuma/smartdesk-backend-sub000/pkg/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatRepository implements chat.Store on GORM/Postgres. Participant
// snapshots live in a JSONB column, so reuse-detection queries use JSONB
// containment against the conversations table.
type ChatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

const readRetries = 3

// withReadRetry retries idempotent reads a bounded number of times. Writes
// are never retried so a flaky connection cannot duplicate a send.
func withReadRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < readRetries; attempt++ {
		err = fn()
		if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 50 * time.Millisecond)
	}
	return err
}

func storeErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return chat.ErrNotFound
	}
	return fmt.Errorf("%w: %v", chat.ErrStoreUnavailable, err)
}

// participantFilter builds the JSONB containment argument for matching a
// participant entry inside the conversations.participants column.
func participantFilter(fields map[string]interface{}) string {
	b, _ := json.Marshal([]map[string]interface{}{fields})
	return string(b)
}

// GetConversation gets a conversation by ID
func (r *ChatRepository) GetConversation(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := withReadRetry(func() error {
		return r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: conversation %s", chat.ErrNotFound, id)
		}
		return nil, storeErr(err)
	}
	return &conv, nil
}

// CreateConversation creates a new conversation
func (r *ChatRepository) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if err := r.db.WithContext(ctx).Create(conv).Error; err != nil {
		return storeErr(err)
	}
	return nil
}

// SaveConversation updates an existing conversation
func (r *ChatRepository) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	if err := r.db.WithContext(ctx).Save(conv).Error; err != nil {
		return storeErr(err)
	}
	return nil
}

// FindPublicSupportByEmail searches active public-support conversations for
// one containing an active public participant with the given email. Returns
// nil when nothing matches.
func (r *ChatRepository) FindPublicSupportByEmail(ctx context.Context, email string) (*models.Conversation, error) {
	filter := participantFilter(map[string]interface{}{
		"user_email": email,
		"user_role":  models.RolePublic,
		"is_active":  true,
	})

	var conv models.Conversation
	err := withReadRetry(func() error {
		return r.db.WithContext(ctx).
			Where("conversation_type = ? AND is_active = ?", models.ConversationPublicSupport, true).
			Where("participants @> ?::jsonb", filter).
			Order("created_at ASC").
			First(&conv).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeErr(err)
	}
	return &conv, nil
}

// FindClientAdminPair searches active client-admin conversations containing
// both users as active participants. Returns nil when nothing matches.
func (r *ChatRepository) FindClientAdminPair(ctx context.Context, clientID, adminID uuid.UUID) (*models.Conversation, error) {
	clientFilter := participantFilter(map[string]interface{}{"user_id": clientID, "is_active": true})
	adminFilter := participantFilter(map[string]interface{}{"user_id": adminID, "is_active": true})

	var conv models.Conversation
	err := withReadRetry(func() error {
		return r.db.WithContext(ctx).
			Where("conversation_type = ? AND is_active = ?", models.ConversationClientAdmin, true).
			Where("participants @> ?::jsonb", clientFilter).
			Where("participants @> ?::jsonb", adminFilter).
			Order("created_at ASC").
			First(&conv).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeErr(err)
	}
	return &conv, nil
}

// ListConversationsByParticipant lists active conversations where the user
// is an active participant, most recently active first.
func (r *ChatRepository) ListConversationsByParticipant(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	filter := participantFilter(map[string]interface{}{"user_id": userID, "is_active": true})

	var conversations []models.Conversation
	err := withReadRetry(func() error {
		return r.db.WithContext(ctx).
			Where("is_active = ?", true).
			Where("participants @> ?::jsonb", filter).
			Order("COALESCE(last_message_at, created_at) DESC").
			Find(&conversations).Error
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return conversations, nil
}

// ListActiveConversations lists every active conversation of the given
// types, most recently active first.
func (r *ChatRepository) ListActiveConversations(ctx context.Context, types ...models.ConversationType) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := withReadRetry(func() error {
		query := r.db.WithContext(ctx).Where("is_active = ?", true)
		if len(types) > 0 {
			query = query.Where("conversation_type IN ?", types)
		}
		return query.Order("COALESCE(last_message_at, created_at) DESC").Find(&conversations).Error
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return conversations, nil
}

// AppendMessage persists the message and the conversation update in one
// transaction so the denormalized last-message can never point at a message
// that was not stored.
func (r *ChatRepository) AppendMessage(ctx context.Context, msg *models.Message, conv *models.Conversation) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Save(conv).Error
	})
	if err != nil {
		return storeErr(err)
	}
	return nil
}

// GetMessage gets a message by ID
func (r *ChatRepository) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	err := withReadRetry(func() error {
		return r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: message %s", chat.ErrNotFound, id)
		}
		return nil, storeErr(err)
	}
	return &msg, nil
}

// SaveMessage updates an existing message
func (r *ChatRepository) SaveMessage(ctx context.Context, msg *models.Message) error {
	msg.UpdatedAt = time.Now()
	if err := r.db.WithContext(ctx).Save(msg).Error; err != nil {
		return storeErr(err)
	}
	return nil
}

// ListMessages lists non-deleted messages by conversation ID in stable
// chronological order.
func (r *ChatRepository) ListMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]models.Message, error) {
	var messages []models.Message
	err := withReadRetry(func() error {
		return r.db.WithContext(ctx).
			Where("conversation_id = ? AND is_deleted = ?", conversationID, false).
			Order("created_at ASC, seq ASC").
			Limit(limit).Offset(offset).
			Find(&messages).Error
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return messages, nil
}

// MarkMessagesRead flips is_read on unread messages addressed to the user
// within the conversation.
func (r *ChatRepository) MarkMessagesRead(ctx context.Context, conversationID, userID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ? AND recipient_id = ? AND is_read = ?", conversationID, userID, false).
		Updates(map[string]interface{}{
			"is_read":    true,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, storeErr(result.Error)
	}
	return result.RowsAffected, nil
}

// CountUnread counts non-deleted unread messages addressed to the user.
func (r *ChatRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := withReadRetry(func() error {
		return r.db.WithContext(ctx).Model(&models.Message{}).
			Where("recipient_id = ? AND is_read = ? AND is_deleted = ?", userID, false, false).
			Count(&count).Error
	})
	if err != nil {
		return 0, storeErr(err)
	}
	return count, nil
}
