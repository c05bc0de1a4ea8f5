// Package file implements an artifact store backed by the local filesystem.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Circle-Cat/edu-agent/internal/store"
)

// ArtifactStore writes artifact bytes to <dir>/<id> with a JSON sidecar
// index at <dir>/index.json, loaded once at startup.
type ArtifactStore struct {
	mu    sync.Mutex
	dir   string
	index map[string]store.Artifact
}

func NewArtifactStore(dir string) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	s := &ArtifactStore{dir: dir, index: make(map[string]store.Artifact)}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ArtifactStore) Save(_ context.Context, name, mimeType string, data []byte) (store.Artifact, error) {
	a := store.Artifact{
		ID:        uuid.NewString(),
		Name:      name,
		MIMEType:  mimeType,
		Size:      int64(len(data)),
		CreatedAt: time.Now().UTC(),
	}

	if err := os.WriteFile(filepath.Join(s.dir, a.ID), data, 0o644); err != nil {
		return store.Artifact{}, fmt.Errorf("write artifact: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[a.ID] = a
	if err := s.saveIndex(); err != nil {
		return store.Artifact{}, err
	}
	return a, nil
}

func (s *ArtifactStore) Get(_ context.Context, id string) (store.Artifact, error) {
	s.mu.Lock()
	a, ok := s.index[id]
	s.mu.Unlock()
	if !ok {
		return store.Artifact{}, store.ErrNotFound
	}

	data, err := os.ReadFile(filepath.Join(s.dir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return store.Artifact{}, store.ErrNotFound
		}
		return store.Artifact{}, fmt.Errorf("read artifact: %w", err)
	}
	a.Data = data
	return a, nil
}

func (s *ArtifactStore) Close() error { return nil }

func (s *ArtifactStore) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.dir, "index.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read artifact index: %w", err)
	}
	if err := json.Unmarshal(data, &s.index); err != nil {
		return fmt.Errorf("parse artifact index: %w", err)
	}
	return nil
}

// saveIndex writes the index atomically via rename. Caller holds mu.
func (s *ArtifactStore) saveIndex() error {
	data, err := json.MarshalIndent(s.index, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact index: %w", err)
	}
	tmp := filepath.Join(s.dir, "index.json.tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write artifact index: %w", err)
	}
	return os.Rename(tmp, filepath.Join(s.dir, "index.json"))
}
