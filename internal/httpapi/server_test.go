package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/Circle-Cat/edu-agent/internal/agent"
	"github.com/Circle-Cat/edu-agent/internal/config"
	"github.com/Circle-Cat/edu-agent/internal/runtime"
	"github.com/Circle-Cat/edu-agent/internal/service"
	"github.com/Circle-Cat/edu-agent/internal/sessions"
	"github.com/Circle-Cat/edu-agent/internal/store"
)

type fakeRuntime struct {
	mu     sync.Mutex
	models []string
	reply  string
}

func (f *fakeRuntime) Run(_ context.Context, inv runtime.Invocation) (<-chan runtime.Event, error) {
	f.mu.Lock()
	f.models = append(f.models, inv.Model)
	f.mu.Unlock()

	ch := make(chan runtime.Event, 1)
	ch <- runtime.FinalEvent(runtime.Content{
		Role:  runtime.RoleModel,
		Parts: []runtime.Part{runtime.TextPart(f.reply)},
	})
	close(ch)
	return ch, nil
}

func (f *fakeRuntime) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.models)
}

func (f *fakeRuntime) lastModel() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.models) == 0 {
		return ""
	}
	return f.models[len(f.models)-1]
}

type testEnv struct {
	handler   http.Handler
	rt        *fakeRuntime
	registry  *sessions.Manager
	artifacts store.ArtifactStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.Default()
	rt := &fakeRuntime{reply: "final answer"}
	state := store.NewStateStore()
	artifacts := store.NewMemoryArtifactStore()

	selector := agent.ModalitySelector{
		TextModel:  cfg.Models.Text,
		AudioModel: cfg.Models.Audio,
	}
	registry := sessions.NewManager(func(key sessions.Key) *agent.Session {
		return agent.NewSession(agent.Config{
			AppName:     key.AppName,
			UserID:      key.UserID,
			SessionID:   key.SessionID,
			Instruction: cfg.Agent.Instruction,
			Selector:    selector,
			Runtime:     rt,
			History:     state,
		})
	}, 0)

	srv := NewServer(cfg, registry, service.NewMessageService(artifacts))
	return &testEnv{handler: srv.Handler(), rt: rt, registry: registry, artifacts: artifacts}
}

func (e *testEnv) postJSON(t *testing.T, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/send_message", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not JSON: %v\n%s", err, w.Body.String())
	}
	return body
}

func TestSendMessageTextOnly(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, `{"text_context": "hello"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	body := decodeBody(t, w)
	if body["agent_response"] != "final answer" {
		t.Errorf("agent_response = %v", body["agent_response"])
	}
	if got := env.rt.lastModel(); got != "gemini-2.0-flash-lite" {
		t.Errorf("text input routed to %q, want the text model", got)
	}
}

func TestSendMessageAudioBase64(t *testing.T) {
	env := newTestEnv(t)

	payload := map[string]string{
		"text_context": "what is said?",
		"mime_type":    "audio/mpeg",
		"data":         base64.StdEncoding.EncodeToString([]byte("fake mp3")),
	}
	raw, _ := json.Marshal(payload)

	w := env.postJSON(t, string(raw), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if got := env.rt.lastModel(); got != "gemini-2.5-flash-lite" {
		t.Errorf("audio input routed to %q, want the audio model", got)
	}
}

func TestSendMessageInvalidBase64(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, `{"mime_type": "audio/mpeg", "data": "not-valid-base64!"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); !strings.Contains(body["error"].(string), "base64") {
		t.Errorf("error does not cite base64: %v", body["error"])
	}
	if env.rt.calls() != 0 {
		t.Error("agent was invoked despite invalid input")
	}
}

func TestSendMessageMissingData(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, `{"mime_type": "audio/mpeg"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); !strings.Contains(body["error"].(string), "together") {
		t.Errorf("error does not cite the pairing rule: %v", body["error"])
	}
}

func TestSendMessageEmptyBody(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, `{}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); !strings.Contains(body["error"].(string), "at least one input") {
		t.Errorf("error = %v", body["error"])
	}
}

func TestSendMessagePartList(t *testing.T) {
	env := newTestEnv(t)

	payload := []map[string]any{
		{"text": "caption"},
		{"inline_data": map[string]string{
			"mime_type": "audio/wav",
			"data":      base64.StdEncoding.EncodeToString([]byte("wav bytes")),
		}},
	}
	raw, _ := json.Marshal(payload)

	w := env.postJSON(t, string(raw), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if got := env.rt.lastModel(); got != "gemini-2.5-flash-lite" {
		t.Errorf("audio part list routed to %q, want the audio model", got)
	}

	w = env.postJSON(t, `[]`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty part list: status = %d, want 400", w.Code)
	}
}

func TestSendMessageUnknownArtifact(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, `{"artifact_id": "ghost", "mime_type": "audio/mpeg"}`, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", w.Code, w.Body.String())
	}
	if env.rt.calls() != 0 {
		t.Error("agent was invoked despite a failed artifact resolution")
	}
}

func TestSendMessageArtifactRef(t *testing.T) {
	env := newTestEnv(t)

	saved, err := env.artifacts.Save(context.Background(), "clip.mp3", "audio/mpeg", []byte("mp3 bytes"))
	if err != nil {
		t.Fatal(err)
	}
	payload := map[string]string{
		"text_context": "transcribe",
		"artifact_id":  saved.ID,
		"mime_type":    "audio/mpeg",
		"description":  "short clip",
	}
	raw, _ := json.Marshal(payload)

	w := env.postJSON(t, string(raw), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if got := env.rt.lastModel(); got != "gemini-2.5-flash-lite" {
		t.Errorf("artifact audio routed to %q, want the audio model", got)
	}
}

func multipartBody(t *testing.T, fileField, filename, contentType string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileField != "" {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="`+fileField+`"; filename="`+filename+`"`)
		hdr.Set("Content-Type", contentType)
		pw, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := pw.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestSendMessageMultipartAudio(t *testing.T) {
	env := newTestEnv(t)

	buf, ct := multipartBody(t, "audio", "q.mp3", "audio/mpeg", []byte("mp3"), map[string]string{"text": "listen"})
	req := httptest.NewRequest(http.MethodPost, "/api/send_message", buf)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if got := env.rt.lastModel(); got != "gemini-2.5-flash-lite" {
		t.Errorf("multipart audio routed to %q, want the audio model", got)
	}
}

func TestSendMessageMultipartUploadStoresArtifact(t *testing.T) {
	env := newTestEnv(t)

	buf, ct := multipartBody(t, "file", "notes.mp3", "audio/mpeg", []byte("recording"), map[string]string{"text_context": "save and answer"})
	req := httptest.NewRequest(http.MethodPost, "/api/send_message", buf)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	info, ok := body["artifact_info"].(map[string]any)
	if !ok {
		t.Fatalf("response lacks artifact_info: %v", body)
	}
	id, _ := info["artifact_id"].(string)
	if id == "" {
		t.Fatal("artifact_info has no id")
	}

	a, err := env.artifacts.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("stored artifact not retrievable: %v", err)
	}
	if string(a.Data) != "recording" {
		t.Errorf("stored bytes = %q", a.Data)
	}
}

func TestSessionHeaderAssignedAndReused(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, `{"text_context": "hi"}`, nil)
	sessionID := w.Header().Get("X-Session-ID")
	if sessionID == "" {
		t.Fatal("response lacks a generated X-Session-ID")
	}
	if got := env.registry.Len(); got != 1 {
		t.Fatalf("registry holds %d sessions, want 1", got)
	}

	w = env.postJSON(t, `{"text_context": "again"}`, map[string]string{"X-Session-ID": sessionID})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-Session-ID"); got != sessionID {
		t.Errorf("echoed session id = %q, want %q", got, sessionID)
	}
	if got := env.registry.Len(); got != 1 {
		t.Errorf("reusing the header created a second session (len=%d)", got)
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		env.handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, w.Code)
		}
		if body := decodeBody(t, w); body["status"] != "ok" {
			t.Errorf("GET %s body = %v", path, body)
		}
	}
}

func TestModalityAlternationAcrossTurns(t *testing.T) {
	env := newTestEnv(t)
	session := map[string]string{"X-Session-ID": "alternating"}

	audio, _ := json.Marshal(map[string]string{
		"mime_type": "audio/mpeg",
		"data":      base64.StdEncoding.EncodeToString([]byte("mp3")),
	})
	if w := env.postJSON(t, string(audio), session); w.Code != http.StatusOK {
		t.Fatalf("audio turn failed: %d", w.Code)
	}
	if got := env.rt.lastModel(); got != "gemini-2.5-flash-lite" {
		t.Errorf("turn 1 model = %q, want audio", got)
	}

	if w := env.postJSON(t, `{"text_context": "followup"}`, session); w.Code != http.StatusOK {
		t.Fatalf("text turn failed: %d", w.Code)
	}
	if got := env.rt.lastModel(); got != "gemini-2.0-flash-lite" {
		t.Errorf("turn 2 model = %q, want text (selection must not stick)", got)
	}
}
