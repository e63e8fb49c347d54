// Package notifier maintains the duplex channel to the backend interview
// endpoint: transcripts go out, questions and streamed answers come back.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"interview-copilot/internal/events"
	"interview-copilot/internal/models"
	"interview-copilot/internal/observability/logging"
	"interview-copilot/internal/observability/metrics"
	"interview-copilot/internal/schema"
)

// ErrChannelClosed is returned by sends while the channel is down. Messages
// are not queued for the next connection.
var ErrChannelClosed = errors.New("notifier: channel closed")

const (
	DefaultReconnectDelay = 3 * time.Second
	writeWait             = 10 * time.Second
)

// Handler receives decoded inbound messages, in arrival order.
type Handler interface {
	OnInitialization(m models.Initialization)
	OnQuestion(m models.Question)
	OnAnswerChunk(m models.AnswerChunk)
	OnAnswerComplete(m models.AnswerComplete)
	OnCacheIndicator(m models.CacheIndicator)
	OnPredictions(m models.QuestionPredictions)
}

// Config for the backend channel.
type Config struct {
	URL            string // ws(s)://host/ws/interview/
	ReconnectDelay time.Duration
}

// Client is the backend channel. Run keeps it connected.
type Client struct {
	cfg       Config
	handler   Handler
	validator *schema.Validator
	dialer    *websocket.Dialer
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	mu       sync.Mutex // guards conn and writes
	conn     *websocket.Conn
	open     atomic.Bool
	connects atomic.Int64
}

// New creates a client. handler may be nil to discard inbound messages.
func New(cfg Config, handler Handler) *Client {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	return &Client{
		cfg:       cfg,
		handler:   handler,
		validator: schema.New(),
		dialer:    websocket.DefaultDialer,
		metrics:   metrics.DefaultMetrics,
		logger:    logging.WithComponent("notifier"),
	}
}

// IsOpen reports whether the channel is connected.
func (c *Client) IsOpen() bool {
	return c.open.Load()
}

// Run connects and reconnects after ReconnectDelay whenever the channel
// drops, until ctx is cancelled.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.connectAndServe(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn().Err(err).Dur("retryIn", c.cfg.ReconnectDelay).Msg("Backend channel down")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectDelay):
			c.metrics.BackendReconnects.Inc()
		}
	}
}

func (c *Client) connectAndServe(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.open.Store(true)
	c.connects.Add(1)
	c.logger.Info().Str("url", c.cfg.URL).Msg("Backend channel open")

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer func() {
		c.open.Store(false)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info().Msg("Backend channel closed")
				return nil
			}
			return err
		}
		c.dispatch(payload)
	}
}

func (c *Client) dispatch(payload []byte) {
	var env models.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		c.logger.Warn().Err(err).Msg("Undecodable backend message")
		return
	}
	c.metrics.BackendMessagesIn.WithLabelValues(env.Type).Inc()
	if c.handler == nil {
		return
	}

	var err error
	switch env.Type {
	case models.TypeInitialization:
		var m models.Initialization
		if err = json.Unmarshal(payload, &m); err == nil {
			c.handler.OnInitialization(m)
		}
	case models.TypeQuestion:
		var m models.Question
		if err = json.Unmarshal(payload, &m); err == nil {
			c.handler.OnQuestion(m)
		}
	case models.TypeAnswerChunk:
		var m models.AnswerChunk
		if err = json.Unmarshal(payload, &m); err == nil {
			c.handler.OnAnswerChunk(m)
		}
	case models.TypeAnswerComplete:
		var m models.AnswerComplete
		if err = json.Unmarshal(payload, &m); err == nil {
			c.handler.OnAnswerComplete(m)
		}
	case models.TypeCacheIndicator:
		var m models.CacheIndicator
		if err = json.Unmarshal(payload, &m); err == nil {
			c.handler.OnCacheIndicator(m)
		}
	case models.TypeQuestionPredictions:
		var m models.QuestionPredictions
		if err = json.Unmarshal(payload, &m); err == nil {
			c.handler.OnPredictions(m)
		}
	default:
		c.logger.Debug().Str("type", env.Type).Msg("Skipping unknown backend message")
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("type", env.Type).Msg("Malformed backend message")
	}
}

// SendTranscription asks the backend to answer text with the given model.
func (c *Client) SendTranscription(ctx context.Context, text, provider, model string, predictionsEnabled bool) error {
	return c.send(models.TypeTranscription, models.Transcription{
		Type:               models.TypeTranscription,
		Text:               text,
		Provider:           provider,
		Model:              model,
		PredictionsEnabled: predictionsEnabled,
	})
}

// SendLiveUpdate mirrors the transcript display to the backend.
func (c *Client) SendLiveUpdate(ctx context.Context, text string, isFinal bool) error {
	return c.send(models.TypeLiveTranscriptUpdate, models.LiveTranscriptUpdate{
		Type:    models.TypeLiveTranscriptUpdate,
		Text:    text,
		IsFinal: isFinal,
	})
}

func (c *Client) send(msgType string, msg any) error {
	if err := c.validator.Validate(msg); err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.open.Load() {
		return ErrChannelClosed
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return err
	}
	c.metrics.BackendMessagesOut.WithLabelValues(msgType).Inc()
	return nil
}

// Name implements events.Broadcaster.
func (c *Client) Name() string { return "backend" }

// Broadcast implements events.Broadcaster. Updates while the channel is down
// are skipped.
func (c *Client) Broadcast(ctx context.Context, u events.Update) error {
	err := c.SendLiveUpdate(ctx, u.Text, u.IsFinal)
	if errors.Is(err, ErrChannelClosed) {
		return nil
	}
	return err
}
