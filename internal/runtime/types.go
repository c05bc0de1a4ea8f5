package runtime

import (
	"context"
	"strings"
)

// RoleUser is the only role this service sends; RoleModel tags agent replies
// when they are appended to conversation history.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Part is one unit of message content: either text or binary data with a
// MIME type. Exactly one variant is populated.
type Part struct {
	Text     string `json:"text,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// BlobPart builds a binary part carrying raw bytes and their MIME type.
func BlobPart(mimeType string, data []byte) Part {
	return Part{MIMEType: mimeType, Data: data}
}

// IsBlob reports whether the part carries binary data.
func (p Part) IsBlob() bool { return p.MIMEType != "" }

// Content is an ordered sequence of parts tagged with a role.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// UserContent wraps parts into user-role content.
func UserContent(parts ...Part) Content {
	return Content{Role: RoleUser, Parts: parts}
}

// HasAudio reports whether any part of c is binary with an audio/* MIME type.
// A mixed text+audio message counts as audio.
func HasAudio(c *Content) bool {
	if c == nil {
		return false
	}
	for _, p := range c.Parts {
		if p.IsBlob() && strings.HasPrefix(p.MIMEType, "audio/") {
			return true
		}
	}
	return false
}

// FirstText returns the first text part of c, or "" if none.
func FirstText(c *Content) string {
	if c == nil {
		return ""
	}
	for _, p := range c.Parts {
		if !p.IsBlob() && p.Text != "" {
			return p.Text
		}
	}
	return ""
}

// ValidMIMEType reports whether s is structurally a type/subtype pair.
func ValidMIMEType(s string) bool {
	slash := strings.IndexByte(s, '/')
	return slash > 0 && slash < len(s)-1 && !strings.Contains(s[slash+1:], "/")
}

// Invocation is one request/response turn against the model runtime.
type Invocation struct {
	AppName   string
	UserID    string
	SessionID string

	// Model is resolved per call by the session's model selector.
	Model       string
	Instruction string
	Message     Content
}

// StateKey is the conversation-history key for this invocation's session.
func (inv Invocation) StateKey() string {
	return inv.AppName + ":" + inv.UserID + ":" + inv.SessionID
}

// Event is one lifecycle event of a running turn. The stream ends when the
// channel closes; a turn may finish without ever emitting a final event.
type Event struct {
	Content Content
	Err     error

	final bool
}

// FinalEvent marks content as the turn's final response.
func FinalEvent(c Content) Event {
	return Event{Content: c, final: true}
}

// ErrorEvent wraps a runtime failure into the event stream.
func ErrorEvent(err error) Event {
	return Event{Err: err}
}

// Final reports whether this event carries the turn's final response.
func (e Event) Final() bool { return e.final }

// History provides per-session conversation state, keyed by
// Invocation.StateKey. Implemented by the store package.
type History interface {
	Create(key string)
	Get(key string) ([]Content, bool)
	Append(key string, items ...Content)
}

// Runtime executes one agent turn and yields its lifecycle events.
// The returned channel is closed once the turn is over.
type Runtime interface {
	Run(ctx context.Context, inv Invocation) (<-chan Event, error)
}
