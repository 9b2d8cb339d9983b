package chat

import (
	"github.com/rs/zerolog"
)

// Service is the conversation engine: it resolves which conversation a
// message belongs to, dispatches messages, answers queries and back-fills
// admins into existing conversations. Dependencies are injected; the
// service holds no global state.
type Service struct {
	store    Store
	identity IdentityProvider
	locks    *conversationLocks
	log      zerolog.Logger
}

// NewService creates a new conversation engine.
func NewService(store Store, identity IdentityProvider, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		identity: identity,
		locks:    newConversationLocks(),
		log:      log,
	}
}
