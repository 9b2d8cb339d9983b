package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/AmaniTsuma/smartdesk-backend-sub000/pkg/models"
	"github.com/google/uuid"
)

// SenderInfo identifies who is sending a message. For authenticated users it
// comes from the JWT principal; public visitors self-assert name and email
// and get a synthetic id on their first message.
type SenderInfo struct {
	ID    uuid.UUID
	Name  string
	Email string
	Role  models.Role
}

// RecipientInfo optionally names an explicit recipient. The conversation's
// participant list stays authoritative for delivery.
type RecipientInfo struct {
	ID    uuid.UUID
	Name  string
	Email string
	Role  models.Role
}

// resolveConversation maps (sender, optional conversation id, optional
// recipient) to exactly one conversation, creating one when needed. The
// returned sender may differ from the input: public senders are remapped to
// their existing participant identity on repeat visits.
//
// Rules, in order:
//  1. explicit conversation id: look it up, no fan-out
//  2. public sender: reuse the public-support thread matching the sender's
//     email, else create one containing every current admin
//  3. client sender with admin or unspecified recipient: reuse the thread
//     with the resolved admin, else create one containing every current admin
//  4. anything else is rejected
func (s *Service) resolveConversation(ctx context.Context, sender SenderInfo, conversationID *uuid.UUID, recipient *RecipientInfo) (*models.Conversation, SenderInfo, error) {
	if conversationID != nil {
		// No fan-out logic applies; membership is checked at dispatch time.
		conv, err := s.store.GetConversation(ctx, *conversationID)
		if err != nil {
			return nil, sender, err
		}
		return conv, sender, nil
	}

	switch {
	case sender.Role == models.RolePublic:
		return s.resolvePublicSupport(ctx, sender, recipient)
	case sender.Role == models.RoleClient && (recipient == nil || recipient.Role == models.RoleAdmin):
		return s.resolveClientAdmin(ctx, sender, recipient)
	default:
		recipientRole := models.Role("")
		if recipient != nil {
			recipientRole = recipient.Role
		}
		return nil, sender, fmt.Errorf("%w: sender role %q, recipient role %q", ErrInvalidConversationType, sender.Role, recipientRole)
	}
}

// admitSender verifies the sender may post into an explicitly addressed
// conversation. Admins missing from the participant list are merged in
// (same retroactive rule reconciliation applies); everyone else must
// already be an active participant.
func (s *Service) admitSender(conv *models.Conversation, sender SenderInfo) (SenderInfo, error) {
	if p := conv.Participants.Find(sender.ID); p != nil && p.IsActive {
		return sender, nil
	}
	if sender.Role != models.RoleAdmin {
		return sender, fmt.Errorf("%w: not a participant of conversation %s", ErrNotAuthorized, conv.ID)
	}

	conv.Participants = append(conv.Participants, models.Participant{
		UserID:    sender.ID,
		UserName:  sender.Name,
		UserEmail: sender.Email,
		UserRole:  models.RoleAdmin,
		JoinedAt:  time.Now(),
		IsActive:  true,
	})
	return sender, nil
}

func (s *Service) resolvePublicSupport(ctx context.Context, sender SenderInfo, recipient *RecipientInfo) (*models.Conversation, SenderInfo, error) {
	conv, err := s.store.FindPublicSupportByEmail(ctx, sender.Email)
	if err != nil {
		return nil, sender, err
	}
	if conv != nil {
		// Repeat visit from the same email resumes the same thread under
		// the original synthetic identity.
		for i := range conv.Participants {
			p := &conv.Participants[i]
			if p.UserRole == models.RolePublic && p.UserEmail == sender.Email {
				sender.ID = p.UserID
				break
			}
		}
		return conv, sender, nil
	}

	if sender.ID == uuid.Nil {
		sender.ID = uuid.New()
	}

	admins, err := s.identity.ListAdmins(ctx)
	if err != nil {
		return nil, sender, err
	}

	now := time.Now()
	participants := models.ParticipantList{{
		UserID:    sender.ID,
		UserName:  sender.Name,
		UserEmail: sender.Email,
		UserRole:  models.RolePublic,
		JoinedAt:  now,
		IsActive:  true,
	}}
	participants = appendAdmins(participants, admins, now)
	if recipient != nil && participants.Find(recipient.ID) == nil {
		participants = append(participants, models.Participant{
			UserID:    recipient.ID,
			UserName:  recipient.Name,
			UserEmail: recipient.Email,
			UserRole:  recipient.Role,
			JoinedAt:  now,
			IsActive:  true,
		})
	}

	conv = &models.Conversation{
		ConversationType: models.ConversationPublicSupport,
		Title:            "Public Support - " + sender.Name,
		Participants:     participants,
		IsActive:         true,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, sender, err
	}
	s.log.Info().Str("conversation_id", conv.ID.String()).Str("sender_email", sender.Email).Msg("created public support conversation")
	return conv, sender, nil
}

func (s *Service) resolveClientAdmin(ctx context.Context, sender SenderInfo, recipient *RecipientInfo) (*models.Conversation, SenderInfo, error) {
	admins, err := s.identity.ListAdmins(ctx)
	if err != nil {
		return nil, sender, err
	}
	if len(admins) == 0 {
		return nil, sender, fmt.Errorf("%w: no administrators registered", ErrInvalidConversationType)
	}

	// Explicit recipient wins; otherwise the first admin in registration
	// order is the deterministic default.
	targetAdmin := admins[0].ID
	if recipient != nil && recipient.ID != uuid.Nil {
		targetAdmin = recipient.ID
	}

	conv, err := s.store.FindClientAdminPair(ctx, sender.ID, targetAdmin)
	if err != nil {
		return nil, sender, err
	}
	if conv != nil {
		return conv, sender, nil
	}

	now := time.Now()
	participants := models.ParticipantList{{
		UserID:    sender.ID,
		UserName:  sender.Name,
		UserEmail: sender.Email,
		UserRole:  models.RoleClient,
		JoinedAt:  now,
		IsActive:  true,
	}}
	participants = appendAdmins(participants, admins, now)

	conv = &models.Conversation{
		ConversationType: models.ConversationClientAdmin,
		Title:            "Client Chat - " + sender.Name,
		Participants:     participants,
		IsActive:         true,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, sender, err
	}
	s.log.Info().Str("conversation_id", conv.ID.String()).Str("client_id", sender.ID.String()).Msg("created client-admin conversation")
	return conv, sender, nil
}

// appendAdmins adds every admin not already present, preserving order.
func appendAdmins(participants models.ParticipantList, admins []models.AdminAccount, joinedAt time.Time) models.ParticipantList {
	for _, admin := range admins {
		if participants.Find(admin.ID) != nil {
			continue
		}
		participants = append(participants, models.Participant{
			UserID:    admin.ID,
			UserName:  admin.Name,
			UserEmail: admin.Email,
			UserRole:  models.RoleAdmin,
			JoinedAt:  joinedAt,
			IsActive:  true,
		})
	}
	return participants
}

// ReconcileAdminParticipants back-fills admins registered after a
// conversation was created into every active client-admin and
// public-support conversation. Idempotent; safe to call on every admin
// inbox access. Returns how many conversations changed.
func (s *Service) ReconcileAdminParticipants(ctx context.Context) (int, error) {
	admins, err := s.identity.ListAdmins(ctx)
	if err != nil {
		return 0, err
	}

	conversations, err := s.store.ListActiveConversations(ctx, models.ConversationClientAdmin, models.ConversationPublicSupport)
	if err != nil {
		return 0, err
	}

	changed := 0
	for i := range conversations {
		updated, err := s.reconcileOne(ctx, conversations[i].ID, admins)
		if err != nil {
			// A failed merge must not abort the surrounding request.
			s.log.Warn().Err(err).Str("conversation_id", conversations[i].ID.String()).Msg("admin reconciliation failed for conversation")
			continue
		}
		if updated {
			changed++
		}
	}
	return changed, nil
}

func (s *Service) reconcileOne(ctx context.Context, conversationID uuid.UUID, admins []models.AdminAccount) (bool, error) {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return false, err
	}

	now := time.Now()
	missing := 0
	for _, admin := range admins {
		p := conv.Participants.Find(admin.ID)
		if p != nil && p.IsActive {
			continue
		}
		if p != nil {
			p.IsActive = true
		} else {
			conv.Participants = append(conv.Participants, models.Participant{
				UserID:    admin.ID,
				UserName:  admin.Name,
				UserEmail: admin.Email,
				UserRole:  models.RoleAdmin,
				JoinedAt:  now,
				IsActive:  true,
			})
		}
		missing++
	}
	if missing == 0 {
		return false, nil
	}

	conv.UpdatedAt = now
	if err := s.store.SaveConversation(ctx, conv); err != nil {
		return false, err
	}
	return true, nil
}
