// Package sqlite implements an artifact store backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Circle-Cat/edu-agent/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	mime_type  TEXT NOT NULL,
	data       BLOB NOT NULL,
	created_at TIMESTAMP NOT NULL
);`

// ArtifactStore persists artifacts in a SQLite database. The schema is
// created on open.
type ArtifactStore struct {
	db *sql.DB
}

func NewArtifactStore(path string) (*ArtifactStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite is single-writer; more connections just queue on locks.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create artifacts table: %w", err)
	}
	return &ArtifactStore{db: db}, nil
}

func (s *ArtifactStore) Save(ctx context.Context, name, mimeType string, data []byte) (store.Artifact, error) {
	a := store.Artifact{
		ID:        uuid.NewString(),
		Name:      name,
		MIMEType:  mimeType,
		Size:      int64(len(data)),
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, name, mime_type, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.MIMEType, data, a.CreatedAt)
	if err != nil {
		return store.Artifact{}, fmt.Errorf("insert artifact: %w", err)
	}
	return a, nil
}

func (s *ArtifactStore) Get(ctx context.Context, id string) (store.Artifact, error) {
	var a store.Artifact
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, mime_type, data, created_at FROM artifacts WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.MIMEType, &a.Data, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Artifact{}, store.ErrNotFound
	}
	if err != nil {
		return store.Artifact{}, fmt.Errorf("query artifact: %w", err)
	}
	a.Size = int64(len(a.Data))
	return a, nil
}

func (s *ArtifactStore) Close() error { return s.db.Close() }
