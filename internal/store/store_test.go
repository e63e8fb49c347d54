package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCurrentModel(t *testing.T) {
	tests := []struct {
		name         string
		settings     Settings
		wantProvider string
		wantModel    string
	}{
		{"defaults", DefaultSettings(), ProviderOpenAI, "gpt-4o-mini"},
		{"ollama", Settings{KeyLLMProvider: ProviderOllama, KeyOllamaModel: "llama3"}, ProviderOllama, "llama3"},
		{"unset provider falls back to openai", Settings{KeyOpenAIModel: "gpt-4o"}, ProviderOpenAI, "gpt-4o"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, m := tt.settings.CurrentModel()
			if p != tt.wantProvider || m != tt.wantModel {
				t.Errorf("CurrentModel() = %s/%s, want %s/%s", p, m, tt.wantProvider, tt.wantModel)
			}
		})
	}
}

func TestValidateSetting(t *testing.T) {
	tests := []struct {
		key, value string
		want       error
	}{
		{KeyOpenAIModel, "gpt-4o", nil},
		{KeyDetectedLanguage, "de", nil},
		{KeyLLMProvider, ProviderOllama, nil},
		{KeyLLMProvider, "anthropic", ErrInvalidSetting},
		{"theme", "dark", ErrUnknownSetting},
	}
	for _, tt := range tests {
		err := ValidateSetting(tt.key, tt.value)
		if !errors.Is(err, tt.want) {
			t.Errorf("ValidateSetting(%q, %q) = %v, want %v", tt.key, tt.value, err, tt.want)
		}
	}
}

func TestRedacted(t *testing.T) {
	s := Settings{KeyOpenAIAPIKey: "sk-abcdef1234", KeyDeepgramAPIKey: "abc", KeyOpenAIModel: "gpt-4o-mini"}
	r := s.Redacted()
	if r[KeyOpenAIAPIKey] != "****1234" {
		t.Errorf("unexpected redaction %q", r[KeyOpenAIAPIKey])
	}
	if r[KeyDeepgramAPIKey] != "****" {
		t.Errorf("unexpected short key redaction %q", r[KeyDeepgramAPIKey])
	}
	if r[KeyOpenAIModel] != "gpt-4o-mini" {
		t.Error("expected non-secret values untouched")
	}
	if s[KeyOpenAIAPIKey] != "sk-abcdef1234" {
		t.Error("expected original settings untouched")
	}
}

func TestMemory_Settings(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	s, _ := m.Settings(ctx)
	if s[KeyLLMProvider] != ProviderOpenAI || s[KeyOllamaModel] != "gemma3:4b" {
		t.Errorf("expected defaults, got %v", s)
	}

	if err := m.SetSetting(ctx, KeyLLMProvider, ProviderOllama); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.SetSetting(ctx, "unknown", "x"); !errors.Is(err, ErrUnknownSetting) {
		t.Errorf("expected ErrUnknownSetting, got %v", err)
	}

	// returned maps are copies
	s[KeyLLMProvider] = "tampered"
	s, _ = m.Settings(ctx)
	if p, model := s.CurrentModel(); p != ProviderOllama || model != "gemma3:4b" {
		t.Errorf("unexpected current model %s/%s", p, model)
	}
}

func TestMemory_Sessions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	t0 := time.Now()

	m.SaveSession(ctx, SessionRecord{ID: "a", Mode: "microphone", StartedAt: t0})
	m.SaveSession(ctx, SessionRecord{ID: "b", Mode: "dual", StartedAt: t0.Add(time.Minute)})

	if err := m.AddSubmission(ctx, "a"); err != nil {
		t.Fatalf("add submission: %v", err)
	}
	if err := m.EndSession(ctx, "a", t0.Add(30*time.Second)); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := m.EndSession(ctx, "missing", t0); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if err := m.AddSubmission(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}

	sessions, _ := m.Sessions(ctx)
	if len(sessions) != 2 || sessions[0].ID != "b" {
		t.Fatalf("expected newest first, got %+v", sessions)
	}
	a := sessions[1]
	if a.Submissions != 1 || a.EndedAt == nil {
		t.Errorf("unexpected session a %+v", a)
	}
	if sessions[0].EndedAt != nil {
		t.Error("expected session b still open")
	}
}

func TestMemory_History(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.AppendQA(ctx, QARecord{SessionID: "s1", Question: "q1", Answer: "a1"})
	m.AppendQA(ctx, QARecord{SessionID: "s2", Question: "other"})
	m.AppendQA(ctx, QARecord{SessionID: "s1", Question: "q2", Answer: "a2", Cached: true})

	h, _ := m.History(ctx, "s1")
	if len(h) != 2 || h[0].Question != "q1" || h[1].Question != "q2" {
		t.Fatalf("unexpected history %+v", h)
	}
	if h[0].CreatedAt.IsZero() {
		t.Error("expected timestamp to be filled")
	}
	if !h[1].Cached {
		t.Error("expected cached flag preserved")
	}

	empty, _ := m.History(ctx, "nope")
	if len(empty) != 0 {
		t.Errorf("expected no history, got %d", len(empty))
	}
}
