package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role identifies who a user is to the portal.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleClient Role = "client"
	RolePublic Role = "public"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleClient, RolePublic:
		return true
	}
	return false
}

// ConversationType is fixed at creation and never changes.
type ConversationType string

const (
	ConversationClientAdmin   ConversationType = "client-admin"
	ConversationPublicSupport ConversationType = "public-support"
	ConversationGroup         ConversationType = "group"
)

// MessageType describes the message payload.
type MessageType string

const (
	MessageText   MessageType = "text"
	MessageFile   MessageType = "file"
	MessageImage  MessageType = "image"
	MessageSystem MessageType = "system"
)

// Participant is a denormalized snapshot of a user's identity within one
// conversation. Name and email are captured at join time and not re-synced.
type Participant struct {
	UserID     uuid.UUID  `json:"user_id"`
	UserName   string     `json:"user_name"`
	UserEmail  string     `json:"user_email"`
	UserRole   Role       `json:"user_role"`
	JoinedAt   time.Time  `json:"joined_at"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	IsActive   bool       `json:"is_active"`
}

// ParticipantList is stored as JSONB on the conversation row.
type ParticipantList []Participant

func (p ParticipantList) Value() (driver.Value, error) {
	return json.Marshal(p)
}

func (p *ParticipantList) Scan(value interface{}) error {
	if value == nil {
		*p = ParticipantList{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, p)
}

// Find returns the participant with the given user id, or nil.
func (p ParticipantList) Find(userID uuid.UUID) *Participant {
	for i := range p {
		if p[i].UserID == userID {
			return &p[i]
		}
	}
	return nil
}

// MessageSnapshot is the denormalized copy of the most recent message kept
// on the conversation for list views. A zero snapshot means no messages yet.
type MessageSnapshot struct {
	ID          uuid.UUID   `json:"id"`
	SenderID    uuid.UUID   `json:"sender_id"`
	SenderName  string      `json:"sender_name"`
	SenderRole  Role        `json:"sender_role"`
	Content     string      `json:"content"`
	MessageType MessageType `json:"message_type"`
	CreatedAt   time.Time   `json:"created_at"`
}

func (m MessageSnapshot) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *MessageSnapshot) Scan(value interface{}) error {
	if value == nil {
		*m = MessageSnapshot{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, m)
}

// Conversation is a durable thread grouping messages among a set of
// participants fixed at creation (admins may be back-filled later by
// reconciliation).
type Conversation struct {
	BaseModel
	ConversationType ConversationType `gorm:"not null;index" json:"conversation_type"`
	Title            string           `json:"title"`
	Participants     ParticipantList  `gorm:"type:jsonb;default:'[]'" json:"participants"`
	IsActive         bool             `gorm:"default:true;index" json:"is_active"`
	LastMessage      MessageSnapshot  `gorm:"type:jsonb;default:'{}'" json:"last_message"`
	LastMessageAt    *time.Time       `gorm:"index" json:"last_message_at"`
}

// ActivityAt returns the timestamp used for conversation list ordering.
func (c *Conversation) ActivityAt() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

// Attachment describes a file attached to a message.
type Attachment struct {
	FileName   string    `json:"file_name"`
	FileURL    string    `json:"file_url"`
	FileSize   int64     `json:"file_size"`
	FileType   string    `json:"file_type"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// AttachmentList is stored as JSONB on the message row.
type AttachmentList []Attachment

func (a AttachmentList) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *AttachmentList) Scan(value interface{}) error {
	if value == nil {
		*a = AttachmentList{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, a)
}

// Message represents a message in a conversation. Content is immutable after
// creation; only IsRead and IsDeleted are ever flipped.
//
// Read state is a single flag keyed loosely to RecipientID. In a
// conversation with three or more active participants, marking read for one
// recipient marks it read for all. Known limitation carried over from the
// portal's original read model.
type Message struct {
	BaseModel
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index" json:"conversation_id"`

	// Seq breaks ties between messages with identical created_at so
	// retrieval ordering stays stable.
	Seq int64 `gorm:"autoIncrement;index:idx_messages_conversation_seq" json:"seq"`

	SenderID    uuid.UUID `gorm:"type:uuid;not null;index" json:"sender_id"`
	SenderName  string    `gorm:"size:255" json:"sender_name"`
	SenderEmail string    `gorm:"size:255" json:"sender_email"`
	SenderRole  Role      `gorm:"not null" json:"sender_role"`

	// Recipient fields are informational; the conversation's participant
	// list is authoritative for delivery.
	RecipientID    *uuid.UUID `gorm:"type:uuid;index" json:"recipient_id,omitempty"`
	RecipientName  string     `gorm:"size:255" json:"recipient_name,omitempty"`
	RecipientEmail string     `gorm:"size:255" json:"recipient_email,omitempty"`
	RecipientRole  Role       `json:"recipient_role,omitempty"`

	Content     string         `gorm:"type:text;not null" json:"content"`
	MessageType MessageType    `gorm:"not null;default:'text'" json:"message_type"`
	IsRead      bool           `gorm:"default:false" json:"is_read"`
	IsDeleted   bool           `gorm:"default:false;index" json:"is_deleted"`
	Attachments AttachmentList `gorm:"type:jsonb;default:'[]'" json:"attachments"`
}

// Snapshot returns the denormalized copy kept on the owning conversation.
func (m *Message) Snapshot() MessageSnapshot {
	return MessageSnapshot{
		ID:          m.ID,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		SenderRole:  m.SenderRole,
		Content:     m.Content,
		MessageType: m.MessageType,
		CreatedAt:   m.CreatedAt,
	}
}
