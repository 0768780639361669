// Package history persists per-conversation message lists. A turn is one
// load-mutate-save unit of work; two turns racing on the same conversation
// resolve as last-writer-wins, which callers accept by contract.
package history

import (
	"context"
	"sync"

	"github.com/mrsingh-rishi/voice-gateway/types"
)

// Store maps a conversation id to its ordered message history.
type Store interface {
	// Load returns the stored history, or an empty one when the id has
	// never been seen. A missing key is not an error.
	Load(ctx context.Context, conversationID string) ([]types.Message, error)
	// Save replaces the stored history for the id atomically.
	Save(ctx context.Context, conversationID string, messages []types.Message) error
	// Clear removes the stored history and reports whether one existed.
	Clear(ctx context.Context, conversationID string) (bool, error)
}

// MemoryStore keeps histories in process memory. It backs tests and
// single-instance deployments that can afford to lose history on restart.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string][]types.Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string][]types.Message)}
}

func (s *MemoryStore) Load(_ context.Context, conversationID string) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.conversations[conversationID]
	messages := make([]types.Message, len(stored))
	copy(messages, stored)
	return messages, nil
}

func (s *MemoryStore) Save(_ context.Context, conversationID string, messages []types.Message) error {
	stored := make([]types.Message, len(messages))
	copy(stored, messages)
	s.mu.Lock()
	s.conversations[conversationID] = stored
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, conversationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.conversations[conversationID]
	delete(s.conversations, conversationID)
	return existed, nil
}
