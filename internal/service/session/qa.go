package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"interview-copilot/internal/models"
	"interview-copilot/internal/observability/logging"
	"interview-copilot/internal/store"
)

// Exchange is the question being answered and the answer streamed so far.
type Exchange struct {
	Question    string              `json:"question"`
	Answer      string              `json:"answer"`
	Complete    bool                `json:"complete"`
	Cached      bool                `json:"cached"`
	HitCount    int                 `json:"hitCount,omitempty"`
	Provider    string              `json:"provider,omitempty"`
	Model       string              `json:"model,omitempty"`
	Predictions []models.Prediction `json:"predictions,omitempty"`
}

// QATracker follows questions and streamed answers from the backend channel
// and records every completed exchange against the running session.
type QATracker struct {
	store     store.Store
	sessionID func() string
	logger    zerolog.Logger

	mu      sync.Mutex
	context models.Initialization
	current Exchange
	answer  strings.Builder
}

// NewQATracker creates a tracker. sessionID returns the running session or "".
func NewQATracker(s store.Store, sessionID func() string) *QATracker {
	return &QATracker{
		store:     s,
		sessionID: sessionID,
		logger:    logging.WithComponent("qa"),
	}
}

// Current returns the latest exchange.
func (t *QATracker) Current() Exchange {
	t.mu.Lock()
	defer t.mu.Unlock()
	ex := t.current
	ex.Answer = t.answer.String()
	ex.Predictions = append([]models.Prediction(nil), t.current.Predictions...)
	return ex
}

// Context returns the resume and job summaries sent on connect.
func (t *QATracker) Context() models.Initialization {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.context
}

func (t *QATracker) OnInitialization(m models.Initialization) {
	t.mu.Lock()
	t.context = m
	t.mu.Unlock()
	t.logger.Info().
		Bool("resume", m.ResumeSummary != "").
		Bool("job", m.JobSummary != "").
		Msg("Interview context received")
}

func (t *QATracker) OnQuestion(m models.Question) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = Exchange{Question: m.Text}
	t.answer.Reset()
}

func (t *QATracker) OnAnswerChunk(m models.AnswerChunk) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.answer.WriteString(m.Text)
}

func (t *QATracker) OnCacheIndicator(m models.CacheIndicator) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current.Cached = m.Cached
	t.current.HitCount = m.HitCount
	t.current.Provider = m.Provider
	t.current.Model = m.Model
}

func (t *QATracker) OnPredictions(m models.QuestionPredictions) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current.Predictions = m.Predictions
}

func (t *QATracker) OnAnswerComplete(m models.AnswerComplete) {
	t.mu.Lock()
	t.current.Complete = true
	rec := store.QARecord{
		Question: t.current.Question,
		Answer:   t.answer.String(),
		Cached:   t.current.Cached,
		Provider: t.current.Provider,
		Model:    t.current.Model,
	}
	t.mu.Unlock()

	sessionID := ""
	if t.sessionID != nil {
		sessionID = t.sessionID()
	}
	if t.store == nil || sessionID == "" || rec.Question == "" {
		return
	}
	rec.SessionID = sessionID
	if ts, err := time.Parse(time.RFC3339, m.Timestamp); err == nil {
		rec.CreatedAt = ts
	}

	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := t.store.AppendQA(ctx, rec); err != nil {
		t.logger.Warn().Err(err).Str("sessionId", sessionID).Msg("Failed to record answer")
	}
}
