// Package store persists settings, capture sessions and the question/answer
// history of an interview.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Setting keys.
const (
	KeyOpenAIAPIKey     = "openai_api_key"
	KeyDeepgramAPIKey   = "deepgram_api_key"
	KeyLLMProvider      = "llm_provider"
	KeyOpenAIModel      = "openai_model"
	KeyOllamaModel      = "ollama_model"
	KeyDetectedLanguage = "detectedLanguage"
)

// LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

var (
	ErrUnknownSetting  = errors.New("store: unknown setting")
	ErrInvalidSetting  = errors.New("store: invalid setting value")
	ErrSessionNotFound = errors.New("store: session not found")
)

// defaults for every known key; keys without a default are empty.
var defaults = map[string]string{
	KeyOpenAIAPIKey:     "",
	KeyDeepgramAPIKey:   "",
	KeyLLMProvider:      ProviderOpenAI,
	KeyOpenAIModel:      "gpt-4o-mini",
	KeyOllamaModel:      "gemma3:4b",
	KeyDetectedLanguage: "",
}

// Settings maps setting keys to values.
type Settings map[string]string

// DefaultSettings returns a fresh copy of the defaults.
func DefaultSettings() Settings {
	s := make(Settings, len(defaults))
	for k, v := range defaults {
		s[k] = v
	}
	return s
}

// CurrentModel returns the selected provider and its model.
func (s Settings) CurrentModel() (provider, model string) {
	provider = s[KeyLLMProvider]
	if provider == ProviderOllama {
		return provider, s[KeyOllamaModel]
	}
	return ProviderOpenAI, s[KeyOpenAIModel]
}

// Redacted returns a copy with API keys masked.
func (s Settings) Redacted() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		if (k == KeyOpenAIAPIKey || k == KeyDeepgramAPIKey) && v != "" {
			if len(v) > 4 {
				v = "****" + v[len(v)-4:]
			} else {
				v = "****"
			}
		}
		out[k] = v
	}
	return out
}

// ValidateSetting checks a key/value pair before it is stored.
func ValidateSetting(key, value string) error {
	if _, ok := defaults[key]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}
	if key == KeyLLMProvider && value != ProviderOpenAI && value != ProviderOllama {
		return fmt.Errorf("%w: llm_provider must be %q or %q", ErrInvalidSetting, ProviderOpenAI, ProviderOllama)
	}
	return nil
}

// SessionRecord is one capture session.
type SessionRecord struct {
	ID          string     `json:"id"`
	Mode        string     `json:"mode"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	Submissions int        `json:"submissions"`
}

// QARecord is one answered question.
type QARecord struct {
	SessionID string    `json:"sessionId"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Cached    bool      `json:"cached"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store is implemented by the in-memory and Postgres stores.
type Store interface {
	Settings(ctx context.Context) (Settings, error)
	SetSetting(ctx context.Context, key, value string) error

	SaveSession(ctx context.Context, rec SessionRecord) error
	EndSession(ctx context.Context, id string, at time.Time) error
	AddSubmission(ctx context.Context, id string) error
	Sessions(ctx context.Context) ([]SessionRecord, error)

	AppendQA(ctx context.Context, rec QARecord) error
	History(ctx context.Context, sessionID string) ([]QARecord, error)

	Close()
}
