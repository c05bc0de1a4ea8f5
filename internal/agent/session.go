// Package agent binds one conversation to a configured agent: instruction,
// per-call model selection, and the invocation loop over runtime events.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Circle-Cat/edu-agent/internal/runtime"
)

// Sentinel response bodies. Both are soft outcomes carried in the 200 path,
// deliberately distinct from hard errors.
const (
	NoFinalResponse = "Agent did not produce a final response."
	NotInitialized  = "Error: Agent system not initialized."
)

var tracer = otel.Tracer("github.com/Circle-Cat/edu-agent/internal/agent")

// Session is a configured agent bound to one (app, user, session) identity.
// It is exclusively owned by its registry entry; calls on the same session
// are serialized so model selection and invocation stay atomic per call.
type Session struct {
	AppName   string
	UserID    string
	SessionID string

	instruction string
	selector    ModelSelector
	rt          runtime.Runtime
	history     runtime.History

	mu    sync.Mutex
	ready bool
}

// Config carries the immutable pieces of a new session.
type Config struct {
	AppName     string
	UserID      string
	SessionID   string
	Instruction string
	Selector    ModelSelector
	Runtime     runtime.Runtime
	History     runtime.History
}

func NewSession(cfg Config) *Session {
	return &Session{
		AppName:     cfg.AppName,
		UserID:      cfg.UserID,
		SessionID:   cfg.SessionID,
		instruction: cfg.Instruction,
		selector:    cfg.Selector,
		rt:          cfg.Runtime,
		history:     cfg.History,
	}
}

// Setup creates the backing session state. Idempotent; repeat calls are
// no-ops. Must run before the first SendMessage.
func (s *Session) Setup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}
	s.history.Create(s.stateKey())
	s.ready = true
	slog.Info("agent session ready", "app", s.AppName, "user", s.UserID, "session", s.SessionID)
	return nil
}

// SendMessage runs one turn and returns the agent's final text.
//
// Outcomes: the text of the first final event; NoFinalResponse when the
// event stream ends without one (nil error, so the HTTP layer still answers
// 200); NotInitialized when Setup never ran. Runtime failures return an
// error unmodified.
func (s *Session) SendMessage(ctx context.Context, message runtime.Content) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		slog.Warn("send_message before setup", "session", s.SessionID)
		return NotInitialized, nil
	}

	model, err := s.selector.SelectModel(&message)
	if err != nil {
		return "", fmt.Errorf("select model: %w", err)
	}

	ctx, span := tracer.Start(ctx, "agent.send_message")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent.model", model),
		attribute.Bool("agent.audio_input", runtime.HasAudio(&message)),
		attribute.Int("agent.parts", len(message.Parts)),
	)
	slog.Debug("model selected", "session", s.SessionID, "model", model,
		"audio", runtime.HasAudio(&message))

	events, err := s.rt.Run(ctx, runtime.Invocation{
		AppName:     s.AppName,
		UserID:      s.UserID,
		SessionID:   s.SessionID,
		Model:       model,
		Instruction: s.instruction,
		Message:     message,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	for ev := range events {
		if ev.Err != nil {
			span.SetStatus(codes.Error, ev.Err.Error())
			return "", ev.Err
		}
		if ev.Final() {
			text := runtime.FirstText(&ev.Content)
			slog.Info("agent responded", "session", s.SessionID, "model", model, "chars", len(text))
			return text, nil
		}
	}
	return NoFinalResponse, nil
}

func (s *Session) stateKey() string {
	return s.AppName + ":" + s.UserID + ":" + s.SessionID
}
