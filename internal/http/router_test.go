package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"interview-copilot/internal/app"
	"interview-copilot/internal/config"
	"interview-copilot/internal/models"
	"interview-copilot/internal/store"
)

// fakeBackend serves the backend HTTP endpoints and the interview channel.
type fakeBackend struct {
	*httptest.Server

	mu       sync.Mutex
	received []models.Transcription
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/interview/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env models.Envelope
			json.Unmarshal(payload, &env)
			if env.Type != models.TypeTranscription {
				continue
			}
			var msg models.Transcription
			json.Unmarshal(payload, &msg)
			fb.mu.Lock()
			fb.received = append(fb.received, msg)
			fb.mu.Unlock()
		}
	})
	mux.HandleFunc("/get-summaries/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true, "resume_summary": "Go engineer", "job_summary": "Platform team"}`))
	})
	mux.HandleFunc("/clear-faq/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true}`))
	})
	mux.HandleFunc("/save-job-text/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "job_summary": "Platform team", "language_code": "de"}`))
	})
	mux.HandleFunc("/compare-llms/", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		w.Write([]byte("answer from " + req["provider"] + "/" + req["model"]))
	})
	mux.HandleFunc("/generate-company-questions/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	fb.Server = httptest.NewServer(mux)
	t.Cleanup(fb.Close)
	return fb
}

func (fb *fakeBackend) transcriptions() []models.Transcription {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]models.Transcription(nil), fb.received...)
}

type testEnv struct {
	app     *app.Application
	server  *httptest.Server
	backend *fakeBackend
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fb := newFakeBackend(t)

	cfg := config.Defaults()
	cfg.STT.Provider = app.ProviderMock
	cfg.Capture.Timeslice = 20 * time.Millisecond
	cfg.Capture.GrantTimeout = 200 * time.Millisecond
	cfg.Backend.BaseURL = fb.URL
	cfg.Backend.ReconnectDelay = 20 * time.Millisecond
	cfg.Backend.RequestTimeout = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	a, err := app.New(ctx, cfg)
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	a.Start(ctx)

	srv := httptest.NewServer(NewRouter(a))
	t.Cleanup(func() {
		srv.Close()
		a.Shutdown()
		cancel()
	})
	return &testEnv{app: a, server: srv, backend: fb}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, e.server.URL+path, rd)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) dialIngest(t *testing.T, kind string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/audio/" + kind
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ingest: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/v1/liveness", "/v1/readiness"} {
		if resp := env.do(t, http.MethodGet, path, ""); resp.StatusCode != http.StatusOK {
			t.Errorf("%s returned %d", path, resp.StatusCode)
		}
	}
}

func TestSettingsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		key, body string
		want      int
	}{
		{store.KeyOpenAIAPIKey, `{"value": "sk-secret-9876"}`, http.StatusNoContent},
		{store.KeyLLMProvider, `{"value": "ollama"}`, http.StatusNoContent},
		{store.KeyLLMProvider, `{"value": "nope"}`, http.StatusBadRequest},
		{"theme", `{"value": "dark"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp := env.do(t, http.MethodPut, "/v1/settings/"+tt.key, tt.body)
		if resp.StatusCode != tt.want {
			t.Errorf("PUT %s %s = %d, want %d", tt.key, tt.body, resp.StatusCode, tt.want)
		}
	}

	resp := env.do(t, http.MethodGet, "/v1/settings", "")
	var settings map[string]string
	json.NewDecoder(resp.Body).Decode(&settings)
	if settings[store.KeyOpenAIAPIKey] != "****9876" {
		t.Errorf("expected redacted key, got %q", settings[store.KeyOpenAIAPIKey])
	}
	if settings[store.KeyLLMProvider] != store.ProviderOllama {
		t.Errorf("unexpected provider %q", settings[store.KeyLLMProvider])
	}
}

func TestCaptureLifecycle(t *testing.T) {
	env := newTestEnv(t)
	waitUntil(t, "backend channel", env.app.Notifier.IsOpen)

	if resp := env.do(t, http.MethodPost, "/v1/capture/start", `{"mode": "karaoke"}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown mode returned %d", resp.StatusCode)
	}
	// no capture client attached within the grant timeout
	if resp := env.do(t, http.MethodPost, "/v1/capture/start", `{"mode": "system-audio"}`); resp.StatusCode != http.StatusForbidden {
		t.Errorf("missing source returned %d", resp.StatusCode)
	}

	client := env.dialIngest(t, "microphone")
	frame := make([]byte, 640)
	if err := client.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	resp := env.do(t, http.MethodPost, "/v1/capture/start", `{"mode": "microphone"}`)
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("start returned %d: %s", resp.StatusCode, body)
	}
	var sess struct {
		ID   string `json:"id"`
		Mode string `json:"mode"`
	}
	json.NewDecoder(resp.Body).Decode(&sess)
	if sess.ID == "" || sess.Mode != "microphone" {
		t.Errorf("unexpected session %+v", sess)
	}

	if resp := env.do(t, http.MethodPost, "/v1/capture/start", `{"mode": "microphone"}`); resp.StatusCode != http.StatusConflict {
		t.Errorf("second start returned %d", resp.StatusCode)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if client.WriteMessage(websocket.BinaryMessage, frame) != nil {
					return
				}
			}
		}
	}()

	waitUntil(t, "finalized transcript", func() bool {
		return env.app.Controller.Snapshot().Finalized != ""
	})

	if resp := env.do(t, http.MethodPost, "/v1/capture/submit", `{"text": "What is a goroutine?"}`); resp.StatusCode != http.StatusAccepted {
		t.Errorf("submit returned %d", resp.StatusCode)
	}
	waitUntil(t, "transcription at backend", func() bool { return len(env.backend.transcriptions()) == 1 })
	msg := env.backend.transcriptions()[0]
	if msg.Text != "What is a goroutine?" || msg.Provider != store.ProviderOpenAI || msg.Model != "gpt-4o-mini" {
		t.Errorf("unexpected transcription %+v", msg)
	}

	if resp := env.do(t, http.MethodPost, "/v1/capture/stop", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("stop returned %d", resp.StatusCode)
	}
	if env.app.Controller.Active() {
		t.Error("expected session stopped")
	}
	if resp := env.do(t, http.MethodPost, "/v1/capture/submit", `{}`); resp.StatusCode != http.StatusConflict {
		t.Errorf("submit without session returned %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/v1/sessions", "")
	var sessions []store.SessionRecord
	json.NewDecoder(resp.Body).Decode(&sessions)
	if len(sessions) != 1 || sessions[0].ID != sess.ID || sessions[0].Submissions != 1 || sessions[0].EndedAt == nil {
		t.Errorf("unexpected sessions %+v", sessions)
	}
}

func TestAudioIngestUnknownKind(t *testing.T) {
	env := newTestEnv(t)
	if resp := env.do(t, http.MethodGet, "/ws/audio/camera", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown kind returned %d", resp.StatusCode)
	}
}

func TestBackendPassThrough(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/v1/summaries", "")
	var s map[string]any
	json.NewDecoder(resp.Body).Decode(&s)
	if resp.StatusCode != http.StatusOK || s["resume_summary"] != "Go engineer" {
		t.Errorf("unexpected summaries %d %v", resp.StatusCode, s)
	}

	if resp := env.do(t, http.MethodDelete, "/v1/faq", ""); resp.StatusCode != http.StatusNoContent {
		t.Errorf("clear faq returned %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodPost, "/v1/company-questions", ""); resp.StatusCode != http.StatusBadGateway {
		t.Errorf("failed generation returned %d", resp.StatusCode)
	}

	// detected language is remembered for transcription
	env.do(t, http.MethodPost, "/v1/job-text", `{"job_text": "Backend Entwickler"}`)
	settings, _ := env.app.Store.Settings(context.Background())
	if settings[store.KeyDetectedLanguage] != "de" {
		t.Errorf("expected detected language stored, got %q", settings[store.KeyDetectedLanguage])
	}

	resp = env.do(t, http.MethodPost, "/v1/compare-llms", `{"question": "Why Go?"}`)
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !bytes.Equal(body, []byte("answer from openai/gpt-4o-mini")) {
		t.Errorf("unexpected comparison %d %q", resp.StatusCode, body)
	}
	if resp := env.do(t, http.MethodPost, "/v1/compare-llms", `{}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty question returned %d", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	if got := statusFor(io.EOF); got != http.StatusInternalServerError {
		t.Errorf("unexpected status for unknown error %d", got)
	}
}
