// Package store defines the artifact and session-state storage backends.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a referenced artifact does not exist.
// Absence is a recoverable condition, never fatal to the process.
var ErrNotFound = errors.New("artifact not found")

// Artifact is a stored binary object retrievable by id.
type Artifact struct {
	ID        string    `json:"artifact_id"`
	Name      string    `json:"name,omitempty"`
	MIMEType  string    `json:"mime_type"`
	Size      int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`

	// Data is populated on Get; Save responses omit it.
	Data []byte `json:"-"`
}

// ArtifactStore supports save-by-name and get-by-id.
type ArtifactStore interface {
	Save(ctx context.Context, name, mimeType string, data []byte) (Artifact, error)
	Get(ctx context.Context, id string) (Artifact, error)
	Close() error
}
