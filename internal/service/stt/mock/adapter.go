// Package mock provides a relay that needs no transcription account.
// It emits progressive partial transcripts, one final per utterance, and
// alternates speakers when diarization is requested.
package mock

import (
	"context"
	"sync"
	"time"

	"interview-copilot/internal/service/stt"
)

// SimulatedUtterance is one scripted utterance.
type SimulatedUtterance struct {
	Partials   []string
	Final      string
	Confidence float64
}

// DefaultUtterances is a short interview exchange.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"Tell me", "Tell me about", "Tell me about a time"},
		Final:      "Tell me about a time you disagreed with your team.",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"Sure", "Sure, last year"},
		Final:      "Sure, last year we argued over a database migration.",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"How did", "How did you resolve"},
		Final:      "How did you resolve it?",
		Confidence: 0.97,
	},
	{
		Partials:   []string{"We ran", "We ran a small", "We ran a small benchmark"},
		Final:      "We ran a small benchmark and let the numbers decide.",
		Confidence: 0.89,
	},
}

// Delay before a scripted result is delivered.
var Delay = 20 * time.Millisecond

// Adapter implements stt.Adapter with scripted responses.
type Adapter struct {
	opts       stt.Options
	utterances []SimulatedUtterance

	mu           sync.Mutex
	cb           stt.Callback
	index        int // current utterance
	partialIndex int
	closed       bool
	pending      sync.WaitGroup
}

// New creates a mock relay cycling through DefaultUtterances.
func New(opts stt.Options) *Adapter {
	return NewWithUtterances(opts, DefaultUtterances)
}

// NewWithUtterances creates a mock relay with a custom script.
func NewWithUtterances(opts stt.Options, utterances []SimulatedUtterance) *Adapter {
	return &Adapter{opts: opts, utterances: utterances}
}

// Start begins a mock session.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cb = cb
	return nil
}

// IsOpen reports whether the session is started and not closed.
func (a *Adapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cb != nil && !a.closed
}

// SendAudio advances the script by one step per chunk.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return stt.ErrRelayClosed
	}
	if a.cb == nil || len(a.utterances) == 0 {
		return nil
	}

	utt := a.utterances[a.index%len(a.utterances)]
	result := stt.Result{Speaker: a.speaker()}

	if a.partialIndex < len(utt.Partials) {
		result.Text = utt.Partials[a.partialIndex]
		a.partialIndex++
	} else {
		result.Text = utt.Final
		result.IsFinal = true
		result.SpeechFinal = true
		result.Confidence = utt.Confidence
		a.index++
		a.partialIndex = 0
	}

	a.deliver(result)
	return nil
}

// speaker alternates 0 and 1 per utterance when diarizing. Caller holds mu.
func (a *Adapter) speaker() *int {
	if !a.opts.Diarize {
		return nil
	}
	s := a.index % 2
	return &s
}

// deliver schedules the callback. Caller holds mu.
func (a *Adapter) deliver(result stt.Result) {
	cb := a.cb
	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		time.Sleep(Delay)
		a.mu.Lock()
		closed := a.closed
		a.mu.Unlock()
		if closed {
			return
		}
		if result.IsFinal {
			cb.OnFinal(result)
		} else {
			cb.OnPartial(result)
		}
	}()
}

// Close ends the session and reports OnClose once in-flight results settle.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	cb := a.cb
	a.mu.Unlock()

	a.pending.Wait()
	if cb != nil {
		cb.OnClose()
	}
	return nil
}
