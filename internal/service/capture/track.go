package capture

import (
	"sync"

	"github.com/google/uuid"
)

// Track kinds.
const (
	KindAudio = "audio"
	KindVideo = "video"
)

// Track is a live media track producing PCM16 LE mono frames.
type Track interface {
	ID() string
	Kind() string
	// Frames is closed when the track ends.
	Frames() <-chan []byte
	Ended() bool
	// Done is closed when the track ends.
	Done() <-chan struct{}
	// Stop ends the track. Idempotent.
	Stop()
}

// Stream groups the tracks returned by one platform request.
type Stream struct {
	Tracks []Track
}

// AudioTracks returns the audio tracks of the stream.
func (s *Stream) AudioTracks() []Track {
	var out []Track
	for _, t := range s.Tracks {
		if t.Kind() == KindAudio {
			out = append(out, t)
		}
	}
	return out
}

// Stop stops every track of the stream.
func (s *Stream) Stop() {
	if s == nil {
		return
	}
	for _, t := range s.Tracks {
		t.Stop()
	}
}

// PushTrack is a Track fed by Push calls.
type PushTrack struct {
	id     string
	kind   string
	frames chan []byte
	done   chan struct{}

	mu    sync.Mutex
	ended bool
}

// NewPushTrack returns a track buffering up to buffer frames.
func NewPushTrack(kind string, buffer int) *PushTrack {
	return &PushTrack{
		id:     uuid.NewString(),
		kind:   kind,
		frames: make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

func (t *PushTrack) ID() string            { return t.id }
func (t *PushTrack) Kind() string          { return t.kind }
func (t *PushTrack) Frames() <-chan []byte { return t.frames }
func (t *PushTrack) Done() <-chan struct{} { return t.done }

// Ended reports whether the track has ended.
func (t *PushTrack) Ended() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ended
}

// Push queues a frame. It returns false when the track has ended or the
// buffer is full; the frame is dropped in both cases.
func (t *PushTrack) Push(frame []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return false
	}
	select {
	case t.frames <- frame:
		return true
	default:
		return false
	}
}

// Stop ends the track and closes its frame channel.
func (t *PushTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		return
	}
	t.ended = true
	close(t.frames)
	close(t.done)
}
