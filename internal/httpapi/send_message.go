package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/Circle-Cat/edu-agent/internal/runtime"
	"github.com/Circle-Cat/edu-agent/internal/service"
	"github.com/Circle-Cat/edu-agent/internal/sessions"
	"github.com/Circle-Cat/edu-agent/internal/store"
)

// maxUploadBytes caps multipart parsing memory and inline uploads (20MB).
const maxUploadBytes = 20 << 20

// jsonBody covers the JSON object request variants: base64 payloads and
// artifact references, distinguished by which fields are present.
type jsonBody struct {
	TextContext string `json:"text_context"`
	MIMEType    string `json:"mime_type"`
	Data        string `json:"data"`

	ArtifactID  string `json:"artifact_id"`
	Description string `json:"description"`
}

// jsonPart is one element of the typed part-list variant.
type jsonPart struct {
	Text       string `json:"text,omitempty"`
	InlineData *struct {
		MIMEType string `json:"mime_type"`
		Data     string `json:"data"`
	} `json:"inline_data,omitempty"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	in, artifact, err := s.parseRequest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	key := sessions.Key{
		AppName:   s.cfg.Agent.AppName,
		UserID:    UserIDFromContext(r.Context()),
		SessionID: SessionIDFromContext(r.Context()),
	}
	sess, err := s.registry.GetOrCreate(r.Context(), key)
	if err != nil {
		writeError(w, fmt.Errorf("create session: %w", err))
		return
	}

	reply, err := s.svc.Process(r.Context(), sess, in)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{"agent_response": reply}
	if artifact != nil {
		resp["artifact_info"] = artifact
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseRequest maps the request body onto the input union. The non-nil
// artifact return carries metadata for an upload persisted during parsing.
func (s *Server) parseRequest(w http.ResponseWriter, r *http.Request) (service.Input, *store.Artifact, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch {
	case ct == "multipart/form-data":
		return s.parseMultipart(w, r)
	case ct == "application/json" || ct == "":
		return parseJSON(r)
	case ct == "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return service.Input{}, nil, &service.ValidationError{Err: fmt.Errorf("parse form: %w", err)}
		}
		return service.Input{Text: r.PostFormValue("text")}, nil, nil
	default:
		return service.Input{}, nil, &service.ValidationError{Err: fmt.Errorf("unsupported content type %q", ct)}
	}
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) (service.Input, *store.Artifact, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return service.Input{}, nil, &service.ValidationError{Err: fmt.Errorf("parse multipart form: %w", err)}
	}

	// Variant: text_context + file — the upload is persisted to the
	// artifact store and its id returned to the caller.
	if f, hdr, err := r.FormFile("file"); err == nil {
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return service.Input{}, nil, fmt.Errorf("read upload: %w", err)
		}
		saved, err := s.svc.SaveArtifact(r.Context(), hdr.Filename, hdr.Header.Get("Content-Type"), data)
		if err != nil {
			return service.Input{}, nil, fmt.Errorf("store upload: %w", err)
		}
		slog.Info("upload stored", "artifact", saved.ID, "name", saved.Name, "bytes", saved.Size)
		return service.Input{
			Text: r.FormValue("text_context"),
			File: &service.FileUpload{
				Filename:    hdr.Filename,
				ContentType: hdr.Header.Get("Content-Type"),
				Data:        data,
			},
		}, &saved, nil
	}

	// Variant: text + optional audio file.
	in := service.Input{Text: r.FormValue("text")}
	if f, hdr, err := r.FormFile("audio"); err == nil {
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return service.Input{}, nil, fmt.Errorf("read upload: %w", err)
		}
		in.File = &service.FileUpload{
			Filename:    hdr.Filename,
			ContentType: hdr.Header.Get("Content-Type"),
			Data:        data,
		}
	}
	return in, nil, nil
}

func parseJSON(r *http.Request) (service.Input, *store.Artifact, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		return service.Input{}, nil, fmt.Errorf("read body: %w", err)
	}

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		return parsePartList(body)
	}

	var b jsonBody
	if err := json.Unmarshal(body, &b); err != nil {
		return service.Input{}, nil, &service.ValidationError{Err: fmt.Errorf("parse json body: %w", err)}
	}

	if b.ArtifactID != "" || b.Description != "" {
		return service.Input{
			Text: b.TextContext,
			Artifact: &service.ArtifactRef{
				ID:          b.ArtifactID,
				MIMEType:    b.MIMEType,
				Description: b.Description,
			},
		}, nil, nil
	}

	if b.Data != "" || b.MIMEType != "" {
		return service.Input{
			Text:   b.TextContext,
			Base64: &service.Base64Payload{MIMEType: b.MIMEType, Data: b.Data},
		}, nil, nil
	}

	return service.Input{Text: b.TextContext}, nil, nil
}

func parsePartList(body []byte) (service.Input, *store.Artifact, error) {
	var raw []jsonPart
	if err := json.Unmarshal(body, &raw); err != nil {
		return service.Input{}, nil, &service.ValidationError{Err: fmt.Errorf("parse parts array: %w", err)}
	}

	parts := make([]runtime.Part, 0, len(raw))
	for i, p := range raw {
		switch {
		case p.InlineData != nil:
			blob, err := service.DecodeInlinePart(p.InlineData.MIMEType, p.InlineData.Data)
			if err != nil {
				return service.Input{}, nil, fmt.Errorf("part %d: %w", i, err)
			}
			parts = append(parts, blob)
		case p.Text != "":
			parts = append(parts, runtime.TextPart(p.Text))
		default:
			return service.Input{}, nil, &service.ValidationError{Err: fmt.Errorf("part %d: neither text nor inline_data", i)}
		}
	}
	// An empty array still reaches the normalizer, which rejects it.
	if parts == nil {
		parts = []runtime.Part{}
	}
	return service.Input{Parts: parts}, nil, nil
}
