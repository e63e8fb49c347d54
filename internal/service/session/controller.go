// Package session runs capture sessions: it acquires sources, wires the
// mixer, recorder and transcription relay together and turns relay results
// into transcript state through the aggregator.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"interview-copilot/internal/events"
	"interview-copilot/internal/observability/logging"
	"interview-copilot/internal/observability/metrics"
	"interview-copilot/internal/service/capture"
	"interview-copilot/internal/service/mixer"
	"interview-copilot/internal/service/recorder"
	"interview-copilot/internal/service/stt"
	"interview-copilot/internal/service/transcript"
	"interview-copilot/internal/store"
)

var (
	// ErrSessionActive is returned by Start while another session is starting
	// or running.
	ErrSessionActive = errors.New("session: capture already active")
	// ErrNoSession is returned by Submit when nothing is being captured.
	ErrNoSession = errors.New("session: no active capture")
)

// Submission sources.
const (
	SourceManual     = "manual"
	SourceTranscript = "transcript"
	SourceAuto       = "auto"
)

const ioTimeout = 5 * time.Second

// RelayFactory opens a transcription relay for one session.
type RelayFactory func(ctx context.Context, opts stt.Options, settings store.Settings) (stt.Adapter, error)

// Sender forwards submitted text for answer generation.
type Sender interface {
	SendTranscription(ctx context.Context, text, provider, model string, predictionsEnabled bool) error
}

// Options wire a controller.
type Options struct {
	Platform    capture.Platform
	NewRelay    RelayFactory
	Store       store.Store
	Broadcaster events.Broadcaster
	Sender      Sender

	SampleRate    int
	Timeslice     time.Duration
	BitsPerSecond int
	MixInterval   time.Duration
	// SubmitPause, when positive, submits the finalized transcript after the
	// speaker has paused this long following a final result.
	SubmitPause        time.Duration
	PredictionsEnabled bool
}

// Snapshot is the observable state of the controller.
type Snapshot struct {
	Session      *capture.Session `json:"session,omitempty"`
	State        string           `json:"state"`
	Status       string           `json:"status"`
	Display      string           `json:"display"`
	Finalized    string           `json:"finalized"`
	Interim      string           `json:"interim"`
	Speakers     map[int]string   `json:"speakers,omitempty"`
	InputEnabled bool             `json:"inputEnabled"`
	Input        string           `json:"input"`
}

// Controller owns at most one capture session and the transcript state.
type Controller struct {
	opts    Options
	agg     *transcript.Aggregator
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu           sync.Mutex
	starting     bool
	active       *run
	status       string
	display      string
	input        string
	inputEnabled bool
}

// run is the object graph of one session. It is discarded on stop.
type run struct {
	session  *capture.Session
	sources  *capture.Sources
	mixer    *mixer.Mixer
	relay    stt.Adapter
	recorder *recorder.Recorder
	ctx      context.Context
	cancel   context.CancelFunc
	logger   zerolog.Logger

	// guarded by Controller.mu
	submitTimer *time.Timer
	failed      bool
	closed      bool
	stopOnce    sync.Once

	// relay callbacks that arrived before Start installed the run
	installed    bool
	pendingErr   error
	pendingClose bool
}

// New creates an idle controller.
func New(opts Options) *Controller {
	if opts.Broadcaster == nil {
		opts.Broadcaster = events.NewFanout()
	}
	return &Controller{
		opts:    opts,
		agg:     transcript.New(),
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("session"),
		status:  "Idle",
	}
}

// Active reports whether a session is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.agg.Snapshot()
	snap := Snapshot{
		State:        ts.State.String(),
		Status:       c.status,
		Display:      c.display,
		Finalized:    ts.Finalized,
		Interim:      ts.Interim,
		Speakers:     ts.Speakers,
		InputEnabled: c.inputEnabled,
		Input:        c.input,
	}
	if c.active != nil {
		s := *c.active.session
		snap.Session = &s
	}
	return snap
}

// SetInput updates the manual input box.
func (c *Controller) SetInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inputEnabled {
		c.input = text
	}
}

// SessionID returns the id of the running session, or "".
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.session.ID
}

// Start begins a capture session in the given mode.
func (c *Controller) Start(ctx context.Context, mode capture.Mode) (*capture.Session, error) {
	c.mu.Lock()
	if c.starting || c.active != nil {
		c.mu.Unlock()
		return nil, ErrSessionActive
	}
	c.starting = true
	c.status = "Requesting audio sources..."
	c.mu.Unlock()

	r, err := c.open(ctx, mode)

	c.mu.Lock()
	c.starting = false
	if err != nil {
		c.status = "Error: " + err.Error()
		c.mu.Unlock()
		c.metrics.RecordCaptureFailure(failureReason(err))
		c.logger.Error().Err(err).Str("mode", string(mode)).Msg("Capture start failed")
		return nil, err
	}
	c.active = r
	r.installed = true
	pendingErr, pendingClose := r.pendingErr, r.pendingClose
	c.status = "Listening (" + string(mode) + ")"
	_, renders, _ := c.agg.Apply(transcript.CaptureStarted{})
	deliveries := c.execLocked(r, renders, nil)
	c.mu.Unlock()

	c.deliver(r, deliveries)
	r.recorder.Start(r.ctx)
	go c.watchPrimary(r)

	c.metrics.RecordSessionStart(string(mode))
	if c.opts.Store != nil {
		rec := store.SessionRecord{ID: r.session.ID, Mode: string(mode), StartedAt: r.session.StartedAt}
		if err := c.opts.Store.SaveSession(ctx, rec); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to save session")
		}
	}
	r.logger.Info().Msg("Capture started")

	if pendingErr != nil {
		c.relayFailed(r, pendingErr)
	}
	if pendingClose {
		c.relayClosed(r)
	}

	s := *r.session
	return &s, nil
}

// open builds the session graph. Every resource obtained is released again
// when a later step fails.
func (c *Controller) open(ctx context.Context, mode capture.Mode) (*run, error) {
	sources, err := capture.Acquire(ctx, c.opts.Platform, mode)
	if err != nil {
		return nil, err
	}

	format, err := capture.NegotiateFormat(c.opts.Platform, c.opts.SampleRate)
	if err != nil {
		sources.Stop()
		return nil, err
	}

	session := capture.NewSession(mode)
	r := &run{
		session: session,
		sources: sources,
		logger:  logging.WithSession(session.ID, string(mode)),
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())

	track := sources.Primary()
	if mode == capture.ModeDual {
		r.mixer = mixer.New(sources.System, sources.Microphone, c.opts.MixInterval)
		track = r.mixer.Output()
	}

	var settings store.Settings
	if c.opts.Store != nil {
		if settings, err = c.opts.Store.Settings(ctx); err != nil {
			c.release(r)
			return nil, fmt.Errorf("load settings: %w", err)
		}
	}

	// the relay outlives the request that started the session
	relay, err := c.opts.NewRelay(r.ctx, stt.Options{Diarize: mode.Diarized(), Format: format}, settings)
	if err != nil {
		c.release(r)
		return nil, err
	}
	r.relay = relay
	if err := relay.Start(r.ctx, &relayCallback{c: c, r: r}); err != nil {
		c.release(r)
		return nil, err
	}

	r.recorder = recorder.New(track, relay, recorder.Options{
		Timeslice:     c.opts.Timeslice,
		Format:        format,
		BitsPerSecond: c.opts.BitsPerSecond,
		OnTrackEnded:  func() { c.stopRun(r, "source track ended") },
	})
	return r, nil
}

// release tears down whatever part of the graph exists.
func (c *Controller) release(r *run) {
	if r.recorder != nil {
		r.recorder.Stop()
	}
	r.sources.Stop()
	if r.mixer != nil {
		r.mixer.Close()
	}
	if r.relay != nil {
		if err := r.relay.Close(); err != nil {
			r.logger.Debug().Err(err).Msg("Relay close")
		}
	}
	r.cancel()
}

// watchPrimary stops the session when the primary source ends, e.g. when
// screen sharing is ended from the OS.
func (c *Controller) watchPrimary(r *run) {
	select {
	case <-r.sources.Primary().Done():
		c.stopRun(r, "primary source ended")
	case <-r.ctx.Done():
	}
}

// Stop ends the running session. Stopping without a session is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	r := c.active
	c.mu.Unlock()
	if r != nil {
		c.stopRun(r, "stopped")
	}
}

func (c *Controller) stopRun(r *run, reason string) {
	r.stopOnce.Do(func() {
		c.mu.Lock()
		if c.active == r {
			c.active = nil
		}
		if r.submitTimer != nil {
			r.submitTimer.Stop()
			r.submitTimer = nil
		}
		c.mu.Unlock()

		c.release(r)

		c.mu.Lock()
		_, renders, _ := c.agg.Apply(transcript.CaptureStopped{})
		deliveries := c.execLocked(r, renders, nil)
		if !r.failed {
			c.status = "Idle"
		}
		r.session.End()
		c.mu.Unlock()
		c.deliver(r, deliveries)

		c.metrics.RecordSessionEnd(r.session.Duration().Seconds())
		if c.opts.Store != nil {
			ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
			if err := c.opts.Store.EndSession(ctx, r.session.ID, r.session.EndedAt); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to mark session ended")
			}
			cancel()
		}
		r.logger.Info().Str("reason", reason).Dur("duration", r.session.Duration()).Msg("Capture stopped")
	})
}

// Submit sends the manual input, or the finalized transcript when manual is
// blank, for answer generation.
func (c *Controller) Submit(ctx context.Context, manual string) error {
	c.mu.Lock()
	r := c.active
	if r == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	return c.submitLocked(ctx, r, manual)
}

// submitLocked is entered with c.mu held and releases it.
func (c *Controller) submitLocked(ctx context.Context, r *run, manual string) error {
	if r.submitTimer != nil {
		r.submitTimer.Stop()
		r.submitTimer = nil
	}
	source := SourceTranscript
	if manual == "" {
		manual = c.input
	}
	if manual != "" {
		source = SourceManual
	}
	_, renders, err := c.agg.Apply(transcript.Submitted{Manual: manual})
	if err != nil {
		c.mu.Unlock()
		return err
	}
	deliveries := c.execLocked(r, renders, nil)
	c.mu.Unlock()

	return c.send(ctx, r, deliveries, source)
}

func (c *Controller) autoSubmit(r *run) {
	c.mu.Lock()
	if c.active != r || r.failed {
		c.mu.Unlock()
		return
	}
	r.submitTimer = nil
	_, renders, err := c.agg.Apply(transcript.Submitted{})
	if err != nil {
		c.mu.Unlock()
		return
	}
	deliveries := c.execLocked(r, renders, nil)
	c.mu.Unlock()

	if err := c.send(r.ctx, r, deliveries, SourceAuto); err != nil {
		r.logger.Warn().Err(err).Msg("Auto-submit failed")
	}
}

// applyResult handles one relay result. A pending auto-submit is cancelled
// before the delta is applied.
func (c *Controller) applyResult(r *run, res stt.Result) {
	c.mu.Lock()
	if c.active != r {
		c.mu.Unlock()
		return
	}
	if r.submitTimer != nil {
		r.submitTimer.Stop()
		r.submitTimer = nil
	}

	var ev transcript.Event
	if res.IsFinal {
		ev = transcript.FinalArrived{Text: res.Text, Speaker: res.Speaker}
	} else {
		ev = transcript.PartialArrived{Text: res.Text, Speaker: res.Speaker}
	}
	snap, renders, err := c.agg.Apply(ev)
	if err != nil {
		c.mu.Unlock()
		r.logger.Debug().Err(err).Msg("Transcript result ignored")
		return
	}
	if len(renders) == 0 {
		c.mu.Unlock()
		return
	}

	final := &finalInfo{}
	if res.IsFinal {
		c.metrics.RecordFinalTranscript()
		final.segment = res.Text
		if res.Speaker != nil {
			final.speaker = snap.Speakers[*res.Speaker]
		}
		if c.opts.SubmitPause > 0 && res.SpeechFinal {
			r.submitTimer = time.AfterFunc(c.opts.SubmitPause, func() { c.autoSubmit(r) })
		}
	} else {
		c.metrics.RecordPartialTranscript()
	}
	deliveries := c.execLocked(r, renders, final)
	c.mu.Unlock()

	c.deliver(r, deliveries)
}

func (c *Controller) relayFailed(r *run, err error) {
	c.mu.Lock()
	if !r.installed {
		r.pendingErr = err
		c.mu.Unlock()
		return
	}
	if c.active != r {
		c.mu.Unlock()
		return
	}
	r.failed = true
	if r.submitTimer != nil {
		r.submitTimer.Stop()
		r.submitTimer = nil
	}
	c.status = "Error: transcription channel failed"
	c.mu.Unlock()
	r.logger.Error().Err(err).Msg("Transcription relay failed")
}

// relayClosed resets the view. A relay that failed first keeps its session,
// and the error status, until the user stops it.
func (c *Controller) relayClosed(r *run) {
	c.mu.Lock()
	if !r.installed {
		r.pendingClose = true
		c.mu.Unlock()
		return
	}
	if c.active != r || r.closed {
		c.mu.Unlock()
		return
	}
	r.closed = true
	if !r.failed {
		c.mu.Unlock()
		r.logger.Warn().Msg("Transcription channel closed by remote")
		c.stopRun(r, "relay closed")
		return
	}
	_, renders, _ := c.agg.Apply(transcript.CaptureStopped{})
	deliveries := c.execLocked(r, renders, nil)
	c.mu.Unlock()

	c.deliver(r, deliveries)
	r.logger.Warn().Msg("Transcription channel closed after failure")
}

type finalInfo struct {
	segment string
	speaker string
}

// delivery is I/O produced by render instructions, performed after c.mu is
// released.
type delivery struct {
	broadcast *events.Update
	send      string
}

// execLocked applies render instructions to the view state and returns the
// I/O they require.
func (c *Controller) execLocked(r *run, renders []transcript.Render, final *finalInfo) []delivery {
	var out []delivery
	for _, rd := range renders {
		switch rd.Kind {
		case transcript.RenderShowFinalized, transcript.RenderShowInterim:
			c.display = rd.Text
		case transcript.RenderClearDisplay:
			c.display = ""
		case transcript.RenderClearInput:
			c.input = ""
		case transcript.RenderEnableInput:
			c.inputEnabled = true
		case transcript.RenderDisableInput:
			c.inputEnabled = false
		case transcript.RenderBroadcast:
			u := &events.Update{
				SessionID: r.session.ID,
				Mode:      string(r.session.Mode),
				Text:      rd.Text,
				IsFinal:   rd.IsFinal,
				Timestamp: time.Now(),
			}
			if rd.IsFinal && final != nil {
				u.Segment = final.segment
				u.Speaker = final.speaker
			}
			out = append(out, delivery{broadcast: u})
		case transcript.RenderSend:
			out = append(out, delivery{send: rd.Text})
		}
	}
	return out
}

func (c *Controller) deliver(r *run, deliveries []delivery) {
	for _, d := range deliveries {
		if d.broadcast == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
		if err := c.opts.Broadcaster.Broadcast(ctx, *d.broadcast); err != nil {
			r.logger.Debug().Err(err).Msg("Live update not delivered everywhere")
		}
		cancel()
	}
}

func (c *Controller) send(ctx context.Context, r *run, deliveries []delivery, source string) error {
	c.deliver(r, deliveries)

	var text string
	for _, d := range deliveries {
		if d.send != "" {
			text = d.send
		}
	}
	if text == "" {
		return nil
	}

	provider, model := store.DefaultSettings().CurrentModel()
	if c.opts.Store != nil {
		if settings, err := c.opts.Store.Settings(ctx); err == nil {
			provider, model = settings.CurrentModel()
		}
		if err := c.opts.Store.AddSubmission(ctx, r.session.ID); err != nil {
			r.logger.Debug().Err(err).Msg("Failed to count submission")
		}
	}

	c.metrics.RecordSubmission(source)
	r.logger.Info().Str("source", source).Str("provider", provider).Str("model", model).Int("chars", len(text)).Msg("Submitting transcript")

	if c.opts.Sender == nil {
		return nil
	}
	if err := c.opts.Sender.SendTranscription(ctx, text, provider, model, c.opts.PredictionsEnabled); err != nil {
		return fmt.Errorf("send transcription: %w", err)
	}
	return nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, capture.ErrNoAudioTrack):
		return "no_audio_track"
	case errors.Is(err, capture.ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, stt.ErrRelayError), errors.Is(err, stt.ErrRelayClosed):
		return "relay_error"
	default:
		return "other"
	}
}

// relayCallback binds relay results to the run that opened the relay, so
// results from a stopped session are dropped.
type relayCallback struct {
	c *Controller
	r *run
}

func (cb *relayCallback) OnPartial(res stt.Result) { cb.c.applyResult(cb.r, res) }
func (cb *relayCallback) OnFinal(res stt.Result)   { cb.c.applyResult(cb.r, res) }
func (cb *relayCallback) OnError(err error)        { cb.c.relayFailed(cb.r, err) }
func (cb *relayCallback) OnClose()                 { cb.c.relayClosed(cb.r) }
