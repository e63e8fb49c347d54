// Package deepgram relays audio chunks to Deepgram's live transcription
// endpoint and turns its results into stt callbacks.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"interview-copilot/internal/models"
	"interview-copilot/internal/observability/logging"
	"interview-copilot/internal/observability/metrics"
	"interview-copilot/internal/service/stt"
)

const (
	provider = "deepgram"

	writeWait         = 10 * time.Second
	handshakeTimeout  = 15 * time.Second
	keepAliveInterval = 5 * time.Second
)

// Config holds Deepgram connection settings.
type Config struct {
	URL    string // defaults to wss://api.deepgram.com/v1/listen
	APIKey string
	Model  string // defaults to nova-3
}

// DefaultURL is Deepgram's live transcription endpoint.
const DefaultURL = "wss://api.deepgram.com/v1/listen"

// Relay implements stt.Adapter over a Deepgram WebSocket.
type Relay struct {
	cfg     Config
	opts    stt.Options
	dialer  *websocket.Dialer
	metrics *metrics.Metrics
	logger  zerolog.Logger

	conn    *websocket.Conn
	cb      stt.Callback
	writeMu sync.Mutex

	open      atomic.Bool
	closing   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// New creates a relay for one session.
func New(cfg Config, opts stt.Options) *Relay {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = "nova-3"
	}
	return &Relay{
		cfg:     cfg,
		opts:    opts,
		dialer:  &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("deepgram-relay"),
		done:    make(chan struct{}),
	}
}

// ListenURL returns the endpoint with the query parameters for this session.
func (r *Relay) ListenURL() (string, error) {
	u, err := url.Parse(r.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("invalid deepgram url: %w", err)
	}
	q := u.Query()
	q.Set("model", r.cfg.Model)
	q.Set("language", "multi")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("smart_format", "true")
	if r.opts.Diarize {
		q.Set("diarize", "true")
	}
	if r.opts.Format.Raw() {
		q.Set("encoding", "linear16")
		q.Set("sample_rate", strconv.Itoa(r.opts.Format.SampleRate))
		q.Set("channels", strconv.Itoa(max(r.opts.Format.Channels, 1)))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Start dials Deepgram, authenticating with the token subprotocol, and starts
// delivering results to cb.
func (r *Relay) Start(ctx context.Context, cb stt.Callback) error {
	endpoint, err := r.ListenURL()
	if err != nil {
		return err
	}

	dialer := *r.dialer
	dialer.Subprotocols = []string{"token", r.cfg.APIKey}

	start := time.Now()
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		r.metrics.RecordRelayError(provider, "dial")
		return fmt.Errorf("%w: dial: %v", stt.ErrRelayError, err)
	}
	r.metrics.RelayConnectLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())

	r.conn = conn
	r.cb = cb
	r.open.Store(true)

	r.logger.Info().
		Bool("diarize", r.opts.Diarize).
		Str("mimeType", r.opts.Format.MimeType).
		Msg("Deepgram channel open")

	go r.readLoop()
	go r.keepAlive()
	return nil
}

// IsOpen reports whether the channel accepts audio.
func (r *Relay) IsOpen() bool {
	return r.open.Load()
}

// SendAudio writes one chunk as a binary frame.
func (r *Relay) SendAudio(ctx context.Context, audio []byte) error {
	if !r.open.Load() {
		return stt.ErrRelayClosed
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = r.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := r.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("%w: write: %v", stt.ErrRelayError, err)
	}
	return nil
}

// Close asks Deepgram to finish the stream and closes the socket. Idempotent.
func (r *Relay) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.closing.Store(true)
		r.open.Store(false)
		close(r.done)
		if r.conn == nil {
			return
		}

		r.writeMu.Lock()
		deadline := time.Now().Add(writeWait)
		_ = r.conn.SetWriteDeadline(deadline)
		_ = r.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
		_ = r.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		r.writeMu.Unlock()

		err = r.conn.Close()
	})
	return err
}

func (r *Relay) readLoop() {
	defer func() {
		r.open.Store(false)
		r.cb.OnClose()
	}()

	for {
		messageType, payload, err := r.conn.ReadMessage()
		if err != nil {
			if r.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Info().Msg("Deepgram channel closed")
				return
			}
			r.metrics.RecordRelayError(provider, "read")
			r.logger.Error().Err(err).Msg("Deepgram channel error")
			r.cb.OnError(fmt.Errorf("%w: %v", stt.ErrRelayError, err))
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		r.handle(payload)
	}
}

func (r *Relay) handle(payload []byte) {
	var resp models.DeepgramResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		r.logger.Warn().Err(err).Msg("Undecodable Deepgram message")
		return
	}
	if resp.Type != "" && resp.Type != "Results" {
		r.metrics.RecordRelayMessage(provider, resp.Type)
		return
	}
	result, ok := r.toResult(resp)
	if !ok {
		return
	}
	if result.IsFinal {
		r.metrics.RecordRelayMessage(provider, "final")
		r.cb.OnFinal(result)
	} else {
		r.metrics.RecordRelayMessage(provider, "partial")
		r.cb.OnPartial(result)
	}
}

func (r *Relay) toResult(resp models.DeepgramResponse) (stt.Result, bool) {
	if len(resp.Channel.Alternatives) == 0 {
		return stt.Result{}, false
	}
	alt := resp.Channel.Alternatives[0]
	result := stt.Result{
		Text:        alt.Transcript,
		IsFinal:     resp.IsFinal,
		SpeechFinal: resp.SpeechFinal,
		Confidence:  alt.Confidence,
	}
	if r.opts.Diarize && len(alt.Words) > 0 && alt.Words[0].Speaker != nil {
		speaker := *alt.Words[0].Speaker
		result.Speaker = &speaker
	}
	return result, true
}

// keepAlive stops Deepgram from timing out the stream during silence.
func (r *Relay) keepAlive() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if !r.open.Load() {
				return
			}
			r.writeMu.Lock()
			_ = r.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := r.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`))
			r.writeMu.Unlock()
			if err != nil {
				r.logger.Debug().Err(err).Msg("KeepAlive failed")
			}
		}
	}
}
