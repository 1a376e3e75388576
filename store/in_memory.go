package store

import (
	"context"
	"sync"
	"time"

	"github.com/parley-ai/parley/core"
	"github.com/parley-ai/parley/internal/util"
)

// InMemoryStore is a volatile ChatStore keeping chats and messages in process
// local maps. It is safe for concurrent access and best suited for tests or
// ephemeral demo servers. Returned values are copies to prevent external
// mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	chats    map[string]*Chat
	messages map[string][]storedMessage
}

type storedMessage struct {
	groupID string
	message core.Message
}

// NewInMemoryStore constructs an empty in-memory chat store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		chats:    make(map[string]*Chat),
		messages: make(map[string][]storedMessage),
	}
}

// CreateChat implements ChatStore.
func (s *InMemoryStore) CreateChat(_ context.Context, chat *Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *chat
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.chats[stored.ID] = &stored
	return nil
}

// GetChat implements ChatStore.
func (s *InMemoryStore) GetChat(_ context.Context, id string) (*Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.chats[id]
	if !ok {
		return nil, core.ErrWorkflowNotFound
	}
	out := *chat
	return &out, nil
}

// UpdateTitle implements ChatStore.
func (s *InMemoryStore) UpdateTitle(_ context.Context, id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[id]
	if !ok {
		return core.ErrWorkflowNotFound
	}
	chat.Title = title
	chat.UpdatedAt = time.Now().UTC()
	return nil
}

// CommitTurn implements ChatStore.
func (s *InMemoryStore) CommitTurn(_ context.Context, chatID string, userMessage core.Message, assistant []core.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[chatID]; !ok {
		return "", core.ErrWorkflowNotFound
	}

	groupID := util.NewID()
	s.messages[chatID] = append(s.messages[chatID], storedMessage{groupID: groupID, message: userMessage})
	for _, msg := range assistant {
		s.messages[chatID] = append(s.messages[chatID], storedMessage{groupID: groupID, message: msg})
	}
	s.chats[chatID].UpdatedAt = time.Now().UTC()

	return groupID, nil
}

// LoadHistory implements ChatStore.
func (s *InMemoryStore) LoadHistory(_ context.Context, chatID string) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.chats[chatID]; !ok {
		return nil, core.ErrWorkflowNotFound
	}
	stored := s.messages[chatID]
	out := make([]core.Message, len(stored))
	for i, sm := range stored {
		out[i] = sm.message
	}
	return out, nil
}
