package service

import (
	"context"
	"log/slog"

	"github.com/Circle-Cat/edu-agent/internal/agent"
	"github.com/Circle-Cat/edu-agent/internal/runtime"
	"github.com/Circle-Cat/edu-agent/internal/store"
)

// MessageService turns one inbound payload into one agent exchange.
type MessageService struct {
	normalizer *Normalizer
	artifacts  store.ArtifactStore
}

func NewMessageService(artifacts store.ArtifactStore) *MessageService {
	return &MessageService{
		normalizer: NewNormalizer(artifacts),
		artifacts:  artifacts,
	}
}

// Process normalizes in, submits the resulting user message to sess, and
// returns the agent's final text.
func (s *MessageService) Process(ctx context.Context, sess *agent.Session, in Input) (string, error) {
	parts, err := s.normalizer.Normalize(ctx, in)
	if err != nil {
		return "", err
	}

	slog.Debug("message normalized",
		"session", sess.SessionID,
		"parts", len(parts),
		"shape", shapeName(in))

	return sess.SendMessage(ctx, runtime.UserContent(parts...))
}

// SaveArtifact stores an uploaded file and returns its metadata, echoed to
// the caller as artifact_info.
func (s *MessageService) SaveArtifact(ctx context.Context, name, mimeType string, data []byte) (store.Artifact, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return s.artifacts.Save(ctx, name, mimeType, data)
}

func shapeName(in Input) string {
	switch {
	case in.File != nil:
		return "file"
	case in.Base64 != nil:
		return "base64"
	case in.Parts != nil:
		return "parts"
	case in.Artifact != nil:
		return "artifact"
	default:
		return "text"
	}
}
