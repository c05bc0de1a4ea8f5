package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"google.golang.org/genai"
)

// Gemini runs turns against the Gemini API. Conversation history is read
// from and written back to the shared History store so context carries
// across turns within a session.
type Gemini struct {
	client  *genai.Client
	history History
}

// NewGemini creates a Gemini runtime. The API key comes from GEMINI_API_KEY
// or GOOGLE_API_KEY.
func NewGemini(ctx context.Context, history History) (*Gemini, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("missing GEMINI_API_KEY or GOOGLE_API_KEY")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	return &Gemini{client: client, history: history}, nil
}

// Run executes one turn. It emits at most one final event; a response with
// no usable text closes the stream without a final event.
func (g *Gemini) Run(ctx context.Context, inv Invocation) (<-chan Event, error) {
	if len(inv.Message.Parts) == 0 {
		return nil, errors.New("empty message")
	}
	if inv.Model == "" {
		return nil, errors.New("no model selected")
	}

	events := make(chan Event, 1)
	go func() {
		defer close(events)

		key := inv.StateKey()
		prior, _ := g.history.Get(key)
		contents := make([]*genai.Content, 0, len(prior)+1)
		for i := range prior {
			contents = append(contents, toGenAI(&prior[i]))
		}
		contents = append(contents, toGenAI(&inv.Message))

		cfg := &genai.GenerateContentConfig{}
		if inv.Instruction != "" {
			cfg.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: inv.Instruction}},
			}
		}

		resp, err := g.client.Models.GenerateContent(ctx, inv.Model, contents, cfg)
		if err != nil {
			events <- ErrorEvent(fmt.Errorf("gemini generate: %w", err))
			return
		}

		reply, ok := fromGenAI(resp)
		if !ok {
			slog.Warn("gemini returned no candidate content", "model", inv.Model, "session", inv.SessionID)
			return
		}

		g.history.Append(key, inv.Message, reply)
		events <- FinalEvent(reply)
	}()
	return events, nil
}

func toGenAI(c *Content) *genai.Content {
	role := genai.RoleUser
	if c.Role == RoleModel {
		role = genai.RoleModel
	}
	out := &genai.Content{Role: role}
	for _, p := range c.Parts {
		if p.IsBlob() {
			out.Parts = append(out.Parts, &genai.Part{
				InlineData: &genai.Blob{MIMEType: p.MIMEType, Data: p.Data},
			})
			continue
		}
		out.Parts = append(out.Parts, &genai.Part{Text: p.Text})
	}
	return out
}

func fromGenAI(resp *genai.GenerateContentResponse) (Content, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Content{}, false
	}
	out := Content{Role: RoleModel}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		if p.Text != "" {
			out.Parts = append(out.Parts, TextPart(p.Text))
		}
	}
	if len(out.Parts) == 0 {
		return Content{}, false
	}
	return out, true
}
