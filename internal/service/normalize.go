// Package service normalizes heterogeneous request payloads into canonical
// content parts and drives the agent exchange.
package service

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/Circle-Cat/edu-agent/internal/runtime"
	"github.com/Circle-Cat/edu-agent/internal/store"
)

// Input is the tagged union of accepted request shapes. Text may accompany
// any variant; at most one of the other fields is set.
type Input struct {
	Text string

	File     *FileUpload
	Base64   *Base64Payload
	Parts    []runtime.Part
	Artifact *ArtifactRef
}

// FileUpload is a raw uploaded file.
type FileUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Base64Payload is inline media as a base64 string plus its MIME type.
// The two fields travel together: one without the other is a client error.
type Base64Payload struct {
	MIMEType string
	Data     string
}

// ArtifactRef points at a previously stored artifact.
type ArtifactRef struct {
	ID          string
	MIMEType    string
	Description string
}

// Normalizer converts every Input shape into one canonical ordered part
// sequence. Canonical order is text first, then binary, then artifact
// description; the upstream binary-first ordering for base64 payloads was
// an accident and is not kept.
type Normalizer struct {
	artifacts store.ArtifactStore
}

func NewNormalizer(artifacts store.ArtifactStore) *Normalizer {
	return &Normalizer{artifacts: artifacts}
}

// Normalize builds the outbound parts for in. Zero resulting parts is a
// validation error regardless of which shape produced them.
func (n *Normalizer) Normalize(ctx context.Context, in Input) ([]runtime.Part, error) {
	var parts []runtime.Part
	var err error

	switch {
	case in.File != nil:
		parts = normalizeFile(in.Text, in.File)
	case in.Base64 != nil:
		parts, err = normalizeBase64(in.Text, in.Base64)
	case in.Parts != nil:
		parts, err = normalizeParts(in.Parts)
	case in.Artifact != nil:
		parts, err = n.normalizeArtifact(ctx, in.Text, in.Artifact)
	default:
		if in.Text != "" {
			parts = []runtime.Part{runtime.TextPart(in.Text)}
		}
	}
	if err != nil {
		return nil, err
	}

	if len(parts) == 0 {
		return nil, invalid(ErrNoInput)
	}
	return parts, nil
}

func normalizeFile(text string, f *FileUpload) []runtime.Part {
	var parts []runtime.Part
	if text != "" {
		parts = append(parts, runtime.TextPart(text))
	}
	ct := f.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	parts = append(parts, runtime.BlobPart(ct, f.Data))
	return parts
}

func normalizeBase64(text string, b *Base64Payload) ([]runtime.Part, error) {
	if (b.Data == "") != (b.MIMEType == "") {
		return nil, invalid(ErrBase64Pairing)
	}

	var parts []runtime.Part
	if text != "" {
		parts = append(parts, runtime.TextPart(text))
	}
	if b.Data != "" {
		if !runtime.ValidMIMEType(b.MIMEType) {
			return nil, invalidf("malformed mime_type %q", b.MIMEType)
		}
		raw, err := base64.StdEncoding.DecodeString(b.Data)
		if err != nil {
			return nil, invalid(fmt.Errorf("%w: %v", ErrBase64Decode, err))
		}
		parts = append(parts, runtime.BlobPart(b.MIMEType, raw))
	}
	return parts, nil
}

// DecodeInlinePart builds a blob part from one inline_data element of the
// typed part-list request shape.
func DecodeInlinePart(mimeType, data string) (runtime.Part, error) {
	if mimeType == "" || data == "" {
		return runtime.Part{}, invalid(ErrBase64Pairing)
	}
	if !runtime.ValidMIMEType(mimeType) {
		return runtime.Part{}, invalidf("malformed mime_type %q", mimeType)
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return runtime.Part{}, invalid(fmt.Errorf("%w: %v", ErrBase64Decode, err))
	}
	return runtime.BlobPart(mimeType, raw), nil
}

func normalizeParts(parts []runtime.Part) ([]runtime.Part, error) {
	if len(parts) == 0 {
		return nil, invalidf("parts list must not be empty")
	}
	for i, p := range parts {
		if p.IsBlob() {
			if !runtime.ValidMIMEType(p.MIMEType) {
				return nil, invalidf("part %d: malformed mime_type %q", i, p.MIMEType)
			}
			continue
		}
		if p.Text == "" {
			return nil, invalidf("part %d: neither text nor inline_data", i)
		}
	}
	return parts, nil
}

func (n *Normalizer) normalizeArtifact(ctx context.Context, text string, ref *ArtifactRef) ([]runtime.Part, error) {
	if ref.ID == "" || ref.MIMEType == "" {
		return nil, invalidf("artifact_id and mime_type are both required")
	}

	a, err := n.artifacts.Get(ctx, ref.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact %s: %w", ref.ID, err)
	}

	var parts []runtime.Part
	if text != "" {
		parts = append(parts, runtime.TextPart(text))
	}
	parts = append(parts, runtime.BlobPart(ref.MIMEType, a.Data))
	if ref.Description != "" {
		parts = append(parts, runtime.TextPart(ref.Description))
	}
	return parts, nil
}
