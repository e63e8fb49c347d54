// Package capture acquires the audio sources of a capture session.
//
// A Platform stands in for the OS/browser media permission system: it hands
// out streams of tracks for display (system) audio and for the microphone.
package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Mode is the kind of capture a session runs.
type Mode string

const (
	ModeSystemAudio Mode = "system-audio"
	ModeMicrophone  Mode = "microphone"
	ModeDual        Mode = "dual"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSystemAudio, ModeMicrophone, ModeDual:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownMode, s)
	}
}

// Diarized reports whether transcripts of this mode carry speaker ids.
func (m Mode) Diarized() bool {
	return m == ModeDual
}

// Errors reported while acquiring sources.
var (
	ErrPermissionDenied  = errors.New("capture: permission denied")
	ErrNoAudioTrack      = errors.New("capture: no audio track")
	ErrUnsupportedFormat = errors.New("capture: no supported recording format")
	ErrUnknownMode       = errors.New("capture: unknown mode")
)

// Session describes one capture session.
type Session struct {
	ID        string    `json:"id"`
	Mode      Mode      `json:"mode"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt,omitempty"`
	Active    bool      `json:"active"`
}

// NewSession returns an active session with a fresh id.
func NewSession(mode Mode) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Mode:      mode,
		StartedAt: time.Now().UTC(),
		Active:    true,
	}
}

// End marks the session inactive. Returns false if it already ended.
func (s *Session) End() bool {
	if !s.Active {
		return false
	}
	s.Active = false
	s.EndedAt = time.Now().UTC()
	return true
}

// Duration returns how long the session ran (or has been running).
func (s *Session) Duration() time.Duration {
	if s.Active || s.EndedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.EndedAt.Sub(s.StartedAt)
}
