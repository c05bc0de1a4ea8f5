package store

import (
	"sync"

	"github.com/Circle-Cat/edu-agent/internal/runtime"
)

// StateStore holds per-session conversation history, keyed by the
// app:user:session tuple. Process-lifetime only; sessions do not survive a
// restart.
type StateStore struct {
	mu    sync.RWMutex
	state map[string][]runtime.Content
}

func NewStateStore() *StateStore {
	return &StateStore{state: make(map[string][]runtime.Content)}
}

// Create registers an empty history for key. No-op if it already exists.
func (s *StateStore) Create(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state[key]; !ok {
		s.state[key] = nil
	}
}

// Get returns a copy of the history for key and whether the key exists.
func (s *StateStore) Get(key string) ([]runtime.Content, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.state[key]
	if !ok {
		return nil, false
	}
	return append([]runtime.Content(nil), h...), true
}

// Append adds items to the history for key, creating it if needed.
func (s *StateStore) Append(key string, items ...runtime.Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = append(s.state[key], items...)
}
