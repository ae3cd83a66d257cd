package session

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/gigamesh/model"
)

// Conversation is the persisted history of one conversation.
type Conversation struct {
	ID       string
	Messages []model.Message
	Created  time.Time
	Updated  time.Time
}

// Clone returns a copy whose message slice can be modified freely.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Messages = slices.Clone(c.Messages)
	return &cp
}

// Store persists conversations.
type Store interface {
	// Get returns the conversation, creating an empty one when missing.
	Get(id string) (*Conversation, error)
	// Append adds messages to the end of the conversation.
	Append(id string, msgs ...model.Message) error
	// Delete removes the conversation.
	Delete(id string) error
}

// NewID returns a fresh conversation id.
func NewID() string { return uuid.NewString() }

// InMemoryStore is a volatile Store implementation keeping conversations in
// a process local map. It is safe for concurrent access. Returned
// conversations are clones.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	now           func() time.Time
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string]*Conversation), now: time.Now}
}

// Get returns an existing conversation (clone) or creates a new one lazily.
func (s *InMemoryStore) Get(id string) (*Conversation, error) {
	s.mu.RLock()
	c, ok := s.conversations[id]
	s.mu.RUnlock()
	if ok {
		return c.Clone(), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(id).Clone(), nil
}

// Append adds messages to an existing or newly created conversation.
func (s *InMemoryStore) Append(id string, msgs ...model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.getOrCreateLocked(id)
	c.Messages = append(c.Messages, msgs...)
	c.Updated = s.now()
	return nil
}

// Delete removes a conversation. Deleting an unknown id is not an error.
func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
	return nil
}

// List returns the ids of all stored conversations, sorted.
func (s *InMemoryStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.conversations))
	for id := range s.conversations {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// getOrCreateLocked requires the write lock.
func (s *InMemoryStore) getOrCreateLocked(id string) *Conversation {
	if c, ok := s.conversations[id]; ok {
		return c
	}
	now := s.now()
	c := &Conversation{ID: id, Created: now, Updated: now}
	s.conversations[id] = c
	return c
}
