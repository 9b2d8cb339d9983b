package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AmaniTsuma/smartdesk-backend-sub000/pkg/models"
	"github.com/google/uuid"
)

// SendMessageInput carries everything needed to dispatch one message.
// ConversationID and Recipient are both optional; resolution rules decide
// where the message lands.
type SendMessageInput struct {
	Sender         SenderInfo
	ConversationID *uuid.UUID
	Recipient      *RecipientInfo
	Content        string
	MessageType    models.MessageType
	Attachments    []models.Attachment
}

// SendMessage validates and records a new message, updates the owning
// conversation's last-message state, and returns the realtime notification
// targets. The engine computes who must be notified, not how.
func (s *Service) SendMessage(ctx context.Context, in SendMessageInput) (*models.Message, []Notification, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, nil, fmt.Errorf("%w: content must not be empty", ErrValidation)
	}
	if !in.Sender.Role.Valid() {
		return nil, nil, fmt.Errorf("%w: unknown sender role %q", ErrValidation, in.Sender.Role)
	}
	messageType := in.MessageType
	if messageType == "" {
		messageType = models.MessageText
	}
	switch messageType {
	case models.MessageText, models.MessageFile, models.MessageImage, models.MessageSystem:
	default:
		return nil, nil, fmt.Errorf("%w: unknown message type %q", ErrValidation, messageType)
	}

	resolved, sender, err := s.resolveConversation(ctx, in.Sender, in.ConversationID, in.Recipient)
	if err != nil {
		return nil, nil, err
	}

	unlock := s.locks.Lock(resolved.ID)
	defer unlock()

	// Re-read under the lock so a concurrent send or reconciliation pass
	// cannot be overwritten by our conversation update.
	conv, err := s.store.GetConversation(ctx, resolved.ID)
	if err != nil {
		return nil, nil, err
	}
	sender, err = s.admitSender(conv, sender)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	msg := &models.Message{
		ConversationID: conv.ID,
		SenderID:       sender.ID,
		SenderName:     sender.Name,
		SenderEmail:    sender.Email,
		SenderRole:     sender.Role,
		Content:        content,
		MessageType:    messageType,
		Attachments:    in.Attachments,
	}
	msg.ID = uuid.New()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	if in.Recipient != nil {
		recipientID := in.Recipient.ID
		msg.RecipientID = &recipientID
		msg.RecipientName = in.Recipient.Name
		msg.RecipientEmail = in.Recipient.Email
		msg.RecipientRole = in.Recipient.Role
	}

	conv.LastMessage = msg.Snapshot()
	conv.LastMessageAt = &now
	conv.UpdatedAt = now

	if err := s.store.AppendMessage(ctx, msg, conv); err != nil {
		return nil, nil, err
	}

	return msg, notificationTargets(conv, msg), nil
}

// notificationTargets computes the realtime fan-out: the conversation room
// gets the message itself, and every active participant other than the
// sender gets a personal notification.
func notificationTargets(conv *models.Conversation, msg *models.Message) []Notification {
	targets := []Notification{{
		Topic:   ConversationTopic(conv.ID),
		Event:   EventNewMessage,
		Payload: msg,
	}}

	for _, p := range conv.Participants {
		if !p.IsActive || p.UserID == msg.SenderID {
			continue
		}
		targets = append(targets, Notification{
			Topic: UserTopic(p.UserID),
			Event: EventMessageNotification,
			Payload: map[string]interface{}{
				"conversation_id": conv.ID,
				"message":         msg,
			},
		})
	}
	return targets
}
