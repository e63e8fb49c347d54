package capture

import (
	"context"
	"fmt"
	"sync"
)

// Platform is the source of media streams.
type Platform interface {
	// DisplayMedia requests display capture with system audio.
	DisplayMedia(ctx context.Context) (*Stream, error)
	// UserMedia requests the microphone.
	UserMedia(ctx context.Context) (*Stream, error)
	// SupportsFormat reports whether the platform can record mime.
	SupportsFormat(mime string) bool
}

// Sources holds the tracks obtained for one session.
type Sources struct {
	Mode       Mode
	System     Track
	Microphone Track

	streams []*Stream
	once    sync.Once
}

// Primary returns the track the session depends on: the system track when
// one was requested, otherwise the microphone.
func (s *Sources) Primary() Track {
	if s.System != nil {
		return s.System
	}
	return s.Microphone
}

// Stop stops every obtained track. Idempotent.
func (s *Sources) Stop() {
	s.once.Do(func() {
		for _, st := range s.streams {
			st.Stop()
		}
	})
}

// Acquire requests the streams a mode needs. On failure every track obtained
// so far is stopped before the error is returned.
func Acquire(ctx context.Context, p Platform, mode Mode) (*Sources, error) {
	src := &Sources{Mode: mode}

	if mode == ModeSystemAudio || mode == ModeDual {
		track, err := acquireOne(ctx, src, "display", p.DisplayMedia)
		if err != nil {
			src.Stop()
			return nil, err
		}
		src.System = track
	}
	if mode == ModeMicrophone || mode == ModeDual {
		track, err := acquireOne(ctx, src, "microphone", p.UserMedia)
		if err != nil {
			src.Stop()
			return nil, err
		}
		src.Microphone = track
	}
	if src.System == nil && src.Microphone == nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownMode, mode)
	}
	return src, nil
}

func acquireOne(ctx context.Context, src *Sources, what string, request func(context.Context) (*Stream, error)) (Track, error) {
	stream, err := request(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	src.streams = append(src.streams, stream)

	audio := stream.AudioTracks()
	if len(audio) == 0 {
		return nil, fmt.Errorf("%s: %w", what, ErrNoAudioTrack)
	}
	return audio[0], nil
}
