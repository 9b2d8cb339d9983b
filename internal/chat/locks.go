package chat

import (
	"sync"

	"github.com/google/uuid"
)

// conversationLocks serializes mutating operations per conversation id so
// concurrent sends cannot lose updates to the denormalized last-message or
// participant fields.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[uuid.UUID]*lockEntry)}
}

// Lock acquires the lock for the conversation and returns the unlock
// function. Entries are reference-counted and removed once unused.
func (c *conversationLocks) Lock(id uuid.UUID) func() {
	c.mu.Lock()
	entry, ok := c.locks[id]
	if !ok {
		entry = &lockEntry{}
		c.locks[id] = entry
	}
	entry.refs++
	c.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		c.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(c.locks, id)
		}
		c.mu.Unlock()
	}
}
