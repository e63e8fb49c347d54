package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Ingest source kinds, as they appear in the /ws/audio/{kind} path.
const (
	SourceSystem     = "system"
	SourceMicrophone = "microphone"
)

// ErrSourceBusy is returned when a client of the same kind is already waiting.
var ErrSourceBusy = errors.New("capture: source already attached")

// IngestPlatform serves tracks pushed by remote capture clients. A request for
// display or microphone media waits for a client of that kind to attach; no
// client within the grant timeout counts as a denied permission.
type IngestPlatform struct {
	grantTimeout time.Duration

	// mu serializes offering and withdrawing; take receives without it
	mu     sync.Mutex
	offers map[string]chan *Stream
}

// NewIngestPlatform returns a platform accepting system and microphone clients.
func NewIngestPlatform(grantTimeout time.Duration) *IngestPlatform {
	return &IngestPlatform{
		grantTimeout: grantTimeout,
		offers: map[string]chan *Stream{
			SourceSystem:     make(chan *Stream, 1),
			SourceMicrophone: make(chan *Stream, 1),
		},
	}
}

// Attach registers a client of the given kind. The returned track receives the
// client's frames; a client that declares no audio yields a stream without
// audio tracks and a nil track. The client calls detach when it disconnects,
// which withdraws its offer if no capture has taken it yet. An offer whose
// tracks have all ended is replaced.
func (p *IngestPlatform) Attach(kind string, hasAudio bool) (track *PushTrack, detach func(), err error) {
	offers, ok := p.offers[kind]
	if !ok {
		return nil, nil, fmt.Errorf("capture: unknown source kind %q", kind)
	}

	stream := &Stream{}
	if hasAudio {
		track = NewPushTrack(KindAudio, 256)
		stream.Tracks = append(stream.Tracks, track)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case offers <- stream:
	default:
		select {
		case waiting := <-offers:
			if !streamEnded(waiting) {
				offers <- waiting
				return nil, nil, ErrSourceBusy
			}
			offers <- stream
		default:
			// taken between the two selects
			offers <- stream
		}
	}
	return track, func() { p.withdraw(kind, stream) }, nil
}

// withdraw removes stream from the offers of kind if it is still waiting.
func (p *IngestPlatform) withdraw(kind string, stream *Stream) {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case waiting := <-p.offers[kind]:
		if waiting != stream {
			p.offers[kind] <- waiting
		}
	default:
	}
}

func (p *IngestPlatform) DisplayMedia(ctx context.Context) (*Stream, error) {
	return p.take(ctx, SourceSystem)
}

func (p *IngestPlatform) UserMedia(ctx context.Context) (*Stream, error) {
	return p.take(ctx, SourceMicrophone)
}

// SupportsFormat accepts raw PCM only; clients push PCM16 frames.
func (p *IngestPlatform) SupportsFormat(mime string) bool {
	return mime == MimeL16
}

func (p *IngestPlatform) take(ctx context.Context, kind string) (*Stream, error) {
	timer := time.NewTimer(p.grantTimeout)
	defer timer.Stop()

	for {
		select {
		case stream := <-p.offers[kind]:
			if streamEnded(stream) {
				// client went away before capture started
				continue
			}
			return stream, nil
		case <-timer.C:
			return nil, ErrPermissionDenied
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func streamEnded(s *Stream) bool {
	if len(s.Tracks) == 0 {
		return false
	}
	for _, t := range s.Tracks {
		if !t.Ended() {
			return false
		}
	}
	return true
}
