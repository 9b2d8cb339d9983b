package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/chat"
	"github.com/AmaniTsuma/smartdesk-backend-sub000/internal/repo"
	"github.com/AmaniTsuma/smartdesk-backend-sub000/pkg/models"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Publisher pushes realtime events to connected clients.
type Publisher interface {
	Publish(topic, event string, payload interface{})
}

// ChatHandler handles chat REST operations
type ChatHandler struct {
	chatService *chat.Service
	userRepo    *repo.UserRepository
	publisher   Publisher
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chatService *chat.Service, userRepo *repo.UserRepository, publisher Publisher) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userRepo:    userRepo,
		publisher:   publisher,
	}
}

// SendMessageRequest is the authenticated send payload.
type SendMessageRequest struct {
	ConversationID *uuid.UUID          `json:"conversation_id,omitempty"`
	RecipientID    *uuid.UUID          `json:"recipient_id,omitempty"`
	Content        string              `json:"content" validate:"required"`
	MessageType    models.MessageType  `json:"message_type,omitempty"`
	Attachments    []models.Attachment `json:"attachments,omitempty"`
}

// PublicMessageRequest is the unauthenticated visitor send payload. The
// visitor keeps the public_id returned on the first send and replays it so
// follow-up messages land in the same conversation.
type PublicMessageRequest struct {
	PublicID       *uuid.UUID         `json:"public_id,omitempty"`
	ConversationID *uuid.UUID         `json:"conversation_id,omitempty"`
	Name           string             `json:"name" validate:"required"`
	Email          string             `json:"email" validate:"required,email"`
	Content        string             `json:"content" validate:"required"`
	MessageType    models.MessageType `json:"message_type,omitempty"`
}

// SendMessage sends a message as the authenticated user.
// POST /api/v1/chat/messages
func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request format"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	sender, err := h.authenticatedSender(c)
	if err != nil {
		return err
	}

	input := chat.SendMessageInput{
		Sender:         sender,
		ConversationID: req.ConversationID,
		Content:        req.Content,
		MessageType:    req.MessageType,
		Attachments:    req.Attachments,
	}

	if req.RecipientID != nil {
		recipient, err := h.userRepo.GetByID(c.Request().Context(), *req.RecipientID)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Unknown recipient"})
		}
		input.Recipient = &chat.RecipientInfo{
			ID:    recipient.ID,
			Name:  recipient.Name,
			Email: recipient.Email,
			Role:  recipient.Role,
		}
	}

	msg, notifications, err := h.chatService.SendMessage(c.Request().Context(), input)
	if err != nil {
		return chatError(c, err)
	}
	h.publish(notifications)

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":         msg,
		"conversation_id": msg.ConversationID,
	})
}

// SendPublicMessage sends a message from an unauthenticated website visitor.
// POST /api/v1/public/chat/messages
func (h *ChatHandler) SendPublicMessage(c echo.Context) error {
	var req PublicMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request format"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	publicID := uuid.New()
	if req.PublicID != nil {
		publicID = *req.PublicID
	}

	input := chat.SendMessageInput{
		Sender: chat.SenderInfo{
			ID:    publicID,
			Name:  req.Name,
			Email: req.Email,
			Role:  models.RolePublic,
		},
		ConversationID: req.ConversationID,
		Content:        req.Content,
		MessageType:    req.MessageType,
	}

	msg, notifications, err := h.chatService.SendMessage(c.Request().Context(), input)
	if err != nil {
		return chatError(c, err)
	}
	h.publish(notifications)

	// The resolver may have remapped the visitor to the identity recorded
	// on an earlier conversation with the same email.
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":         msg,
		"conversation_id": msg.ConversationID,
		"public_id":       msg.SenderID,
	})
}

// GetMyConversations lists the authenticated user's active conversations.
// GET /api/v1/chat/conversations
func (h *ChatHandler) GetMyConversations(c echo.Context) error {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	conversations, err := h.chatService.GetUserConversations(c.Request().Context(), userID)
	if err != nil {
		return chatError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"conversations": conversations})
}

// GetAdminConversations lists every active support conversation for the
// shared admin inbox.
// GET /api/v1/admin/chat/conversations
func (h *ChatHandler) GetAdminConversations(c echo.Context) error {
	conversations, err := h.chatService.GetAdminConversations(c.Request().Context())
	if err != nil {
		return chatError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"conversations": conversations})
}

// GetConversationMessages returns a page of messages in a conversation.
// GET /api/v1/chat/conversations/:id/messages
func (h *ChatHandler) GetConversationMessages(c echo.Context) error {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid conversation ID"})
	}

	sender, err := h.authenticatedSender(c)
	if err != nil {
		return err
	}

	limit, err := intQueryParam(c, "limit", 0)
	if err != nil {
		return chatError(c, err)
	}
	offset, err := intQueryParam(c, "offset", 0)
	if err != nil {
		return chatError(c, err)
	}

	messages, err := h.chatService.GetConversationMessages(c.Request().Context(), conversationID, sender, limit, offset)
	if err != nil {
		return chatError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"messages": messages})
}

// MarkConversationRead marks all messages addressed to the user in the
// conversation as read.
// POST /api/v1/chat/conversations/:id/read
func (h *ChatHandler) MarkConversationRead(c echo.Context) error {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid conversation ID"})
	}
	sender, err := h.authenticatedSender(c)
	if err != nil {
		return err
	}

	updated, err := h.chatService.MarkMessagesAsRead(c.Request().Context(), conversationID, sender)
	if err != nil {
		return chatError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"updated": updated})
}

// GetUnreadCount returns the user's unread message count across all
// conversations.
// GET /api/v1/chat/unread-count
func (h *ChatHandler) GetUnreadCount(c echo.Context) error {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	count, err := h.chatService.GetUnreadMessageCount(c.Request().Context(), userID)
	if err != nil {
		return chatError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"unread_count": count})
}

// DeleteMessage soft-deletes one of the user's own messages.
// DELETE /api/v1/chat/messages/:id
func (h *ChatHandler) DeleteMessage(c echo.Context) error {
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid message ID"})
	}
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	if err := h.chatService.DeleteMessage(c.Request().Context(), messageID, userID); err != nil {
		return chatError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Message deleted"})
}

// authenticatedSender builds the sender identity from the JWT principal,
// picking up the display name from the account record.
func (h *ChatHandler) authenticatedSender(c echo.Context) (chat.SenderInfo, error) {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return chat.SenderInfo{}, echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	role, _ := c.Get("user_role").(models.Role)
	email, _ := c.Get("user_email").(string)

	sender := chat.SenderInfo{ID: userID, Email: email, Role: role}
	if user, err := h.userRepo.GetByID(c.Request().Context(), userID); err == nil {
		sender.Name = user.Name
	}
	return sender, nil
}

func (h *ChatHandler) publish(notifications []chat.Notification) {
	if h.publisher == nil {
		return
	}
	for _, n := range notifications {
		h.publisher.Publish(n.Topic, n.Event, n.Payload)
	}
}

// chatError maps engine errors to HTTP responses.
func chatError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, chat.ErrInvalidConversationType):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, chat.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, chat.ErrNotAuthorized):
		return c.JSON(http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, chat.ErrStoreUnavailable):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Service temporarily unavailable"})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
}

// intQueryParam parses an optional integer query parameter. A malformed
// value is a validation failure, not a silent fallback.
func intQueryParam(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", chat.ErrValidation, name)
	}
	return v, nil
}
