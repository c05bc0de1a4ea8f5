package agent

import (
	"github.com/Circle-Cat/edu-agent/internal/runtime"
)

// ModelSelector decides which model serves the next call, given the most
// recent user message. It runs immediately before every model invocation,
// never just the first: a session alternating audio and text turns must be
// re-classified each turn. Selection errors abort the in-flight call.
type ModelSelector interface {
	SelectModel(last *runtime.Content) (string, error)
}

// ModalitySelector picks AudioModel when any part of the latest user message
// is binary with an audio/* MIME type, and TextModel otherwise (including
// a message with no parts at all). Audio presence dominates mixed messages.
type ModalitySelector struct {
	TextModel  string
	AudioModel string
}

func (s ModalitySelector) SelectModel(last *runtime.Content) (string, error) {
	if runtime.HasAudio(last) {
		return s.AudioModel, nil
	}
	return s.TextModel, nil
}
