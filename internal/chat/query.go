package chat

import (
	"context"
	"fmt"

	"github.com/AmaniTsuma/smartdesk-backend-sub000/pkg/models"
	"github.com/google/uuid"
)

const (
	// DefaultPageSize is used when no limit is supplied.
	DefaultPageSize = 50
	// MaxPageSize caps a single page of messages.
	MaxPageSize = 200
)

// GetConversationMessages returns non-deleted messages for the conversation
// ordered by created_at ascending, paginated by offset/limit. Callers other
// than admins must be active participants.
func (s *Service) GetConversationMessages(ctx context.Context, conversationID uuid.UUID, requester SenderInfo, limit, offset int) ([]models.Message, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%w: limit and offset must not be negative", ErrValidation)
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := requireAccess(conv, requester); err != nil {
		return nil, err
	}

	return s.store.ListMessages(ctx, conversationID, limit, offset)
}

// MarkMessagesAsRead flips is_read on every unread message in the
// conversation addressed to the requester. Idempotent; returns how many
// messages changed. Non-admin requesters must be active participants.
func (s *Service) MarkMessagesAsRead(ctx context.Context, conversationID uuid.UUID, requester SenderInfo) (int64, error) {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if err := requireAccess(conv, requester); err != nil {
		return 0, err
	}
	return s.store.MarkMessagesRead(ctx, conversationID, requester.ID)
}

// GetUnreadMessageCount counts non-deleted unread messages addressed to the
// user across all conversations.
func (s *Service) GetUnreadMessageCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.CountUnread(ctx, userID)
}

// GetUserConversations returns active conversations where the user is an
// active participant, most recently active first.
func (s *Service) GetUserConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	return s.store.ListConversationsByParticipant(ctx, userID)
}

// GetAdminConversations returns every active client-admin and
// public-support conversation for the shared admin inbox, after running the
// reconciliation pass. A reconciliation failure is logged and the
// pre-reconciliation list is returned.
func (s *Service) GetAdminConversations(ctx context.Context) ([]models.Conversation, error) {
	if _, err := s.ReconcileAdminParticipants(ctx); err != nil {
		s.log.Warn().Err(err).Msg("admin reconciliation failed, serving unreconciled conversation list")
	}
	return s.store.ListActiveConversations(ctx, models.ConversationClientAdmin, models.ConversationPublicSupport)
}

// DeleteMessage soft-deletes a message, but only for its original sender.
// Any other requester gets ErrNotFound so the existence of someone else's
// message is never leaked.
func (s *Service) DeleteMessage(ctx context.Context, messageID, requesterID uuid.UUID) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != requesterID {
		return fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}
	if msg.IsDeleted {
		return nil
	}

	unlock := s.locks.Lock(msg.ConversationID)
	defer unlock()

	msg.IsDeleted = true
	return s.store.SaveMessage(ctx, msg)
}

// requireAccess allows admins everywhere and everyone else only into
// conversations they actively participate in.
func requireAccess(conv *models.Conversation, requester SenderInfo) error {
	if requester.Role == models.RoleAdmin {
		return nil
	}
	if p := conv.Participants.Find(requester.ID); p != nil && p.IsActive {
		return nil
	}
	return fmt.Errorf("%w: not a participant of conversation %s", ErrNotAuthorized, conv.ID)
}
