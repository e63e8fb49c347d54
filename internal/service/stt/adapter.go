// Package stt defines the interface for transcription relays.
package stt

import (
	"context"
	"errors"

	"interview-copilot/internal/service/capture"
)

// Errors reported by relays. Both end the session's transcription; relays are
// never reopened automatically.
var (
	ErrRelayClosed = errors.New("stt: relay closed")
	ErrRelayError  = errors.New("stt: relay error")
)

// Result is one transcription result.
type Result struct {
	Text        string
	IsFinal     bool
	SpeechFinal bool
	Confidence  float64
	// Speaker is set only when the relay runs with diarization.
	Speaker *int
}

// Callback receives transcript results from the relay, in arrival order.
type Callback interface {
	// OnPartial is called for every interim result, including empty ones.
	OnPartial(r Result)

	// OnFinal is called for every finalized result, including empty ones.
	OnFinal(r Result)

	// OnError is called when the channel fails.
	OnError(err error)

	// OnClose is called once when the channel is gone, after any OnError.
	OnClose()
}

// Options configure a relay for one session.
type Options struct {
	Diarize bool
	Format  capture.Format
}

// Adapter is a streaming transcription channel (Deepgram, Google, mock).
type Adapter interface {
	// Start opens the channel and begins delivering results to cb.
	Start(ctx context.Context, cb Callback) error

	// SendAudio sends one recorded chunk.
	SendAudio(ctx context.Context, audio []byte) error

	// IsOpen reports whether chunks can currently be sent.
	IsOpen() bool

	// Close ends the channel. Idempotent.
	Close() error
}
