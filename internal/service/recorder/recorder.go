// Package recorder cuts a live track into timed chunks and hands them to the
// transcription relay.
package recorder

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"interview-copilot/internal/observability/logging"
	"interview-copilot/internal/observability/metrics"
	"interview-copilot/internal/service/capture"
)

// Timeslices.
const (
	DefaultTimeslice = 1000 * time.Millisecond
	// SafariTimeslice is used on the browser variant that needs smaller buffers.
	SafariTimeslice = 500 * time.Millisecond
)

// TimesliceFor returns the chunk interval for a browser platform.
func TimesliceFor(platform string) time.Duration {
	if strings.EqualFold(platform, "safari") {
		return SafariTimeslice
	}
	return DefaultTimeslice
}

// Sink receives chunks. Chunks are only handed over while IsOpen is true.
type Sink interface {
	IsOpen() bool
	SendAudio(ctx context.Context, audio []byte) error
}

// State of a recorder.
type State int

const (
	StateInactive State = iota
	StateRecording
)

func (s State) String() string {
	if s == StateRecording {
		return "recording"
	}
	return "inactive"
}

// Options configure a recorder.
type Options struct {
	Timeslice     time.Duration
	Format        capture.Format
	BitsPerSecond int
	// OnTrackEnded is called once when the source track ends on its own.
	OnTrackEnded func()
}

// Recorder emits one chunk per timeslice. Chunks produced while the sink is
// not open are dropped; there is no buffering or replay.
type Recorder struct {
	track   capture.Track
	sink    Sink
	opts    Options
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an inactive recorder.
func New(track capture.Track, sink Sink, opts Options) *Recorder {
	if opts.Timeslice <= 0 {
		opts.Timeslice = DefaultTimeslice
	}
	if opts.BitsPerSecond <= 0 {
		opts.BitsPerSecond = capture.DefaultBitsPerSecond
	}
	return &Recorder{
		track:   track,
		sink:    sink,
		opts:    opts,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("recorder"),
	}
}

// State returns the current recorder state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start begins recording. Starting a recording recorder is a no-op.
func (r *Recorder) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateRecording {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.state = StateRecording

	r.logger.Debug().
		Dur("timeslice", r.opts.Timeslice).
		Str("mimeType", r.opts.Format.MimeType).
		Int("bitsPerSecond", r.opts.BitsPerSecond).
		Msg("Recorder started")

	go r.run(ctx, r.done)
}

// Stop ends recording and waits for the loop to exit. Stopping an inactive
// recorder does nothing.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.state != StateRecording {
		r.mu.Unlock()
		return
	}
	r.state = StateInactive
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
}

func (r *Recorder) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.opts.Timeslice)
	defer ticker.Stop()

	var buf []byte
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-r.track.Frames():
			if !ok {
				r.emit(ctx, buf)
				r.trackEnded()
				return
			}
			buf = append(buf, frame...)
		case <-ticker.C:
			r.emit(ctx, buf)
			buf = nil
		}
	}
}

func (r *Recorder) emit(ctx context.Context, chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	if !r.sink.IsOpen() {
		r.metrics.RecordChunk(len(chunk), false)
		return
	}
	if err := r.sink.SendAudio(ctx, chunk); err != nil {
		r.logger.Warn().Err(err).Int("bytes", len(chunk)).Msg("Failed to send chunk")
		r.metrics.RecordChunk(len(chunk), false)
		return
	}
	r.metrics.RecordChunk(len(chunk), true)
}

func (r *Recorder) trackEnded() {
	r.mu.Lock()
	r.state = StateInactive
	r.mu.Unlock()

	r.logger.Info().Str("trackId", r.track.ID()).Msg("Source track ended")
	if r.opts.OnTrackEnded != nil {
		go r.opts.OnTrackEnded()
	}
}
