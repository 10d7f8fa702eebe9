package history

import (
	"context"
	"encoding/json"
	"sync"
)

// InMemoryStore is a volatile Store implementation keeping transcripts in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral sessions. Transcripts are copied on the way in and out
// to prevent external mutation of internal state.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewInMemoryStore constructs an empty in-memory transcript store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]byte)}
}

// Load returns a copy of the stored transcript or (nil, nil) when absent.
func (s *InMemoryStore) Load(_ context.Context, key string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.records[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// Save stores a copy of the transcript under key.
func (s *InMemoryStore) Save(_ context.Context, key string, transcript json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(transcript))
	copy(stored, transcript)
	s.records[key] = stored
	return nil
}

// Clear removes the record for key; clearing an absent key is a no-op.
func (s *InMemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}
