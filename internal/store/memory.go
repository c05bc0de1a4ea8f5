package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryArtifactStore keeps artifacts in process memory. It is the default
// backend and the one tests use.
type MemoryArtifactStore struct {
	mu        sync.RWMutex
	artifacts map[string]Artifact
}

func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{artifacts: make(map[string]Artifact)}
}

func (s *MemoryArtifactStore) Save(_ context.Context, name, mimeType string, data []byte) (Artifact, error) {
	a := Artifact{
		ID:        uuid.NewString(),
		Name:      name,
		MIMEType:  mimeType,
		Size:      int64(len(data)),
		CreatedAt: time.Now().UTC(),
		Data:      append([]byte(nil), data...),
	}
	s.mu.Lock()
	s.artifacts[a.ID] = a
	s.mu.Unlock()
	return a.withoutData(), nil
}

func (s *MemoryArtifactStore) Get(_ context.Context, id string) (Artifact, error) {
	s.mu.RLock()
	a, ok := s.artifacts[id]
	s.mu.RUnlock()
	if !ok {
		return Artifact{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryArtifactStore) Close() error { return nil }

func (a Artifact) withoutData() Artifact {
	a.Data = nil
	return a
}
