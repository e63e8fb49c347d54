// Package transcript implements the live transcript aggregator: the state
// machine that accumulates finalized text, tracks the interim tail and decides
// what gets submitted for answer generation.
package transcript

import (
	"errors"
	"fmt"
)

// State represents the aggregator state.
type State int

const (
	// StateIdle - no capture session, nothing accumulates.
	StateIdle State = iota
	// StateListening - capture is active, relay results are applied.
	StateListening
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Errors for invalid transitions.
var (
	ErrNotListening     = errors.New("transcript: capture is not active")
	ErrAlreadyListening = errors.New("transcript: capture already active")
	ErrNothingToSubmit  = errors.New("transcript: nothing to submit")
)
