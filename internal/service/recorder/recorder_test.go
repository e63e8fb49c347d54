package recorder

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"interview-copilot/internal/service/capture"
)

// testSink implements Sink for testing
type testSink struct {
	mu     sync.Mutex
	open   atomic.Bool
	chunks [][]byte
}

func (s *testSink) IsOpen() bool { return s.open.Load() }

func (s *testSink) SendAudio(ctx context.Context, audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, append([]byte{}, audio...))
	return nil
}

func (s *testSink) getChunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte{}, s.chunks...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestTimesliceFor(t *testing.T) {
	tests := []struct {
		platform string
		want     time.Duration
	}{
		{"", time.Second},
		{"chrome", time.Second},
		{"safari", 500 * time.Millisecond},
		{"Safari", 500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := TimesliceFor(tt.platform); got != tt.want {
			t.Errorf("TimesliceFor(%q) = %v, want %v", tt.platform, got, tt.want)
		}
	}
}

func TestRecorder_EmitsChunksWhenOpen(t *testing.T) {
	track := capture.NewPushTrack(capture.KindAudio, 8)
	sink := &testSink{}
	sink.open.Store(true)

	r := New(track, sink, Options{Timeslice: 20 * time.Millisecond})
	r.Start(context.Background())
	defer r.Stop()

	track.Push([]byte{1, 2})
	track.Push([]byte{3, 4})

	waitFor(t, func() bool { return len(sink.getChunks()) > 0 })

	var all []byte
	for _, c := range sink.getChunks() {
		all = append(all, c...)
	}
	if !bytes.Equal(all, []byte{1, 2, 3, 4}) {
		t.Errorf("expected frames in order, got %v", all)
	}
}

func TestRecorder_DropsChunksWhenClosed(t *testing.T) {
	track := capture.NewPushTrack(capture.KindAudio, 8)
	sink := &testSink{}

	r := New(track, sink, Options{Timeslice: 10 * time.Millisecond})
	r.Start(context.Background())

	track.Push([]byte{1, 2})
	time.Sleep(50 * time.Millisecond)

	// opening later does not replay dropped chunks
	sink.open.Store(true)
	track.Push([]byte{9, 9})
	waitFor(t, func() bool { return len(sink.getChunks()) > 0 })
	r.Stop()

	for _, c := range sink.getChunks() {
		if bytes.Contains(c, []byte{1, 2}) {
			t.Errorf("expected dropped chunk not to be replayed, got %v", c)
		}
	}
}

func TestRecorder_StopIdempotent(t *testing.T) {
	track := capture.NewPushTrack(capture.KindAudio, 1)
	r := New(track, &testSink{}, Options{})

	// stopping an inactive recorder must not panic or block
	r.Stop()

	r.Start(context.Background())
	if r.State() != StateRecording {
		t.Errorf("expected recording, got %s", r.State())
	}
	r.Stop()
	r.Stop()
	if r.State() != StateInactive {
		t.Errorf("expected inactive, got %s", r.State())
	}
}

func TestRecorder_TrackEndFlushesAndNotifies(t *testing.T) {
	track := capture.NewPushTrack(capture.KindAudio, 8)
	sink := &testSink{}
	sink.open.Store(true)

	ended := make(chan struct{})
	r := New(track, sink, Options{
		Timeslice:    time.Hour,
		OnTrackEnded: func() { close(ended) },
	})
	r.Start(context.Background())

	track.Push([]byte{7, 7})
	track.Stop()

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("expected OnTrackEnded")
	}

	chunks := sink.getChunks()
	if len(chunks) != 1 || !bytes.Equal(chunks[0], []byte{7, 7}) {
		t.Errorf("expected final flush of pending bytes, got %v", chunks)
	}
	if r.State() != StateInactive {
		t.Errorf("expected inactive after track end, got %s", r.State())
	}
	r.Stop()
}

func TestNew_Defaults(t *testing.T) {
	r := New(capture.NewPushTrack(capture.KindAudio, 1), &testSink{}, Options{})
	if r.opts.Timeslice != DefaultTimeslice {
		t.Errorf("expected default timeslice, got %v", r.opts.Timeslice)
	}
	if r.opts.BitsPerSecond != capture.DefaultBitsPerSecond {
		t.Errorf("expected default bitrate, got %d", r.opts.BitsPerSecond)
	}
}
