package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AmaniTsuma/smartdesk-backend-sub000/pkg/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// memStore is an in-memory Store used by the engine tests. It copies values
// on the way in and out so tests observe the same staleness semantics as the
// database-backed implementation.
type memStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*models.Conversation
	messages      map[uuid.UUID]*models.Message
	nextSeq       int64
}

func newMemStore() *memStore {
	return &memStore{
		conversations: make(map[uuid.UUID]*models.Conversation),
		messages:      make(map[uuid.UUID]*models.Message),
	}
}

func copyConversation(c *models.Conversation) *models.Conversation {
	dup := *c
	dup.Participants = append(models.ParticipantList(nil), c.Participants...)
	return &dup
}

func copyMessage(m *models.Message) *models.Message {
	dup := *m
	dup.Attachments = append(models.AttachmentList(nil), m.Attachments...)
	return &dup
}

func (s *memStore) GetConversation(_ context.Context, id uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, id)
	}
	return copyConversation(conv), nil
}

func (s *memStore) CreateConversation(_ context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	conv.UpdatedAt = conv.CreatedAt
	s.conversations[conv.ID] = copyConversation(conv)
	return nil
}

func (s *memStore) SaveConversation(_ context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.ID] = copyConversation(conv)
	return nil
}

func (s *memStore) FindPublicSupportByEmail(_ context.Context, email string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var match *models.Conversation
	for _, conv := range s.conversations {
		if conv.ConversationType != models.ConversationPublicSupport || !conv.IsActive {
			continue
		}
		for _, p := range conv.Participants {
			if p.UserRole == models.RolePublic && p.UserEmail == email && p.IsActive {
				if match == nil || conv.CreatedAt.Before(match.CreatedAt) {
					match = conv
				}
				break
			}
		}
	}
	if match == nil {
		return nil, nil
	}
	return copyConversation(match), nil
}

func (s *memStore) FindClientAdminPair(_ context.Context, clientID, adminID uuid.UUID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var match *models.Conversation
	for _, conv := range s.conversations {
		if conv.ConversationType != models.ConversationClientAdmin || !conv.IsActive {
			continue
		}
		client := conv.Participants.Find(clientID)
		admin := conv.Participants.Find(adminID)
		if client == nil || !client.IsActive || admin == nil || !admin.IsActive {
			continue
		}
		if match == nil || conv.CreatedAt.Before(match.CreatedAt) {
			match = conv
		}
	}
	if match == nil {
		return nil, nil
	}
	return copyConversation(match), nil
}

func (s *memStore) ListConversationsByParticipant(_ context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Conversation
	for _, conv := range s.conversations {
		if !conv.IsActive {
			continue
		}
		if p := conv.Participants.Find(userID); p != nil && p.IsActive {
			out = append(out, *copyConversation(conv))
		}
	}
	sortByActivity(out)
	return out, nil
}

func (s *memStore) ListActiveConversations(_ context.Context, types ...models.ConversationType) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Conversation
	for _, conv := range s.conversations {
		if !conv.IsActive {
			continue
		}
		if len(types) > 0 {
			found := false
			for _, t := range types {
				if conv.ConversationType == t {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, *copyConversation(conv))
	}
	sortByActivity(out)
	return out, nil
}

func sortByActivity(conversations []models.Conversation) {
	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].ActivityAt().After(conversations[j].ActivityAt())
	})
}

func (s *memStore) AppendMessage(_ context.Context, msg *models.Message, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	s.nextSeq++
	msg.Seq = s.nextSeq
	s.messages[msg.ID] = copyMessage(msg)
	s.conversations[conv.ID] = copyConversation(conv)
	return nil
}

func (s *memStore) GetMessage(_ context.Context, id uuid.UUID) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: message %s", ErrNotFound, id)
	}
	return copyMessage(msg), nil
}

func (s *memStore) SaveMessage(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ID] = copyMessage(msg)
	return nil
}

func (s *memStore) ListMessages(_ context.Context, conversationID uuid.UUID, limit, offset int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, msg := range s.messages {
		if msg.ConversationID == conversationID && !msg.IsDeleted {
			out = append(out, *copyMessage(msg))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Seq < out[j].Seq
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) MarkMessagesRead(_ context.Context, conversationID, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed int64
	for _, msg := range s.messages {
		if msg.ConversationID != conversationID || msg.IsRead {
			continue
		}
		if msg.RecipientID == nil || *msg.RecipientID != userID {
			continue
		}
		msg.IsRead = true
		changed++
	}
	return changed, nil
}

func (s *memStore) CountUnread(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, msg := range s.messages {
		if msg.IsDeleted || msg.IsRead {
			continue
		}
		if msg.RecipientID != nil && *msg.RecipientID == userID {
			count++
		}
	}
	return count, nil
}

// memIdentity is an in-memory IdentityProvider.
type memIdentity struct {
	mu     sync.Mutex
	admins []models.AdminAccount
	users  map[string]*models.User
}

func (m *memIdentity) ListAdmins(_ context.Context) ([]models.AdminAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AdminAccount(nil), m.admins...), nil
}

func (m *memIdentity) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[email], nil
}

func (m *memIdentity) addAdmin(name string) models.AdminAccount {
	m.mu.Lock()
	defer m.mu.Unlock()
	account := models.AdminAccount{
		ID:    uuid.New(),
		Name:  name,
		Email: name + "@smartdesk.test",
	}
	m.admins = append(m.admins, account)
	return account
}

func newTestEngine() (*Service, *memStore, *memIdentity) {
	store := newMemStore()
	identity := &memIdentity{users: make(map[string]*models.User)}
	return NewService(store, identity, zerolog.Nop()), store, identity
}
