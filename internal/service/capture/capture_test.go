package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakePlatform implements Platform for testing
type fakePlatform struct {
	display    *Stream
	displayErr error
	user       *Stream
	userErr    error
	formats    map[string]bool
}

func (p *fakePlatform) DisplayMedia(ctx context.Context) (*Stream, error) {
	return p.display, p.displayErr
}

func (p *fakePlatform) UserMedia(ctx context.Context) (*Stream, error) {
	return p.user, p.userErr
}

func (p *fakePlatform) SupportsFormat(mime string) bool {
	return p.formats[mime]
}

func audioStream() (*Stream, *PushTrack) {
	track := NewPushTrack(KindAudio, 4)
	return &Stream{Tracks: []Track{track}}, track
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"system-audio", ModeSystemAudio, false},
		{"microphone", ModeMicrophone, false},
		{"dual", ModeDual, false},
		{"screen", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestAcquire_Modes(t *testing.T) {
	tests := []struct {
		mode       Mode
		wantSystem bool
		wantMic    bool
	}{
		{ModeSystemAudio, true, false},
		{ModeMicrophone, false, true},
		{ModeDual, true, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			display, _ := audioStream()
			user, _ := audioStream()
			p := &fakePlatform{display: display, user: user}

			src, err := Acquire(context.Background(), p, tt.mode)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (src.System != nil) != tt.wantSystem {
				t.Errorf("system track present = %v, want %v", src.System != nil, tt.wantSystem)
			}
			if (src.Microphone != nil) != tt.wantMic {
				t.Errorf("microphone track present = %v, want %v", src.Microphone != nil, tt.wantMic)
			}
			if src.Primary() == nil {
				t.Error("expected a primary track")
			}
		})
	}
}

func TestAcquire_PermissionDenied(t *testing.T) {
	p := &fakePlatform{displayErr: ErrPermissionDenied}

	_, err := Acquire(context.Background(), p, ModeSystemAudio)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestAcquire_NoAudioTrackStopsObtainedTracks(t *testing.T) {
	video := NewPushTrack(KindVideo, 1)
	p := &fakePlatform{display: &Stream{Tracks: []Track{video}}}

	_, err := Acquire(context.Background(), p, ModeSystemAudio)
	if !errors.Is(err, ErrNoAudioTrack) {
		t.Fatalf("expected ErrNoAudioTrack, got %v", err)
	}
	if !video.Ended() {
		t.Error("expected video track to be stopped")
	}
}

func TestAcquire_DualMicFailureStopsSystem(t *testing.T) {
	display, systemTrack := audioStream()
	p := &fakePlatform{display: display, user: &Stream{}}

	_, err := Acquire(context.Background(), p, ModeDual)
	if !errors.Is(err, ErrNoAudioTrack) {
		t.Fatalf("expected ErrNoAudioTrack, got %v", err)
	}
	if !systemTrack.Ended() {
		t.Error("expected system track to be stopped when microphone fails")
	}
}

func TestAcquire_DualMicDeniedStopsSystem(t *testing.T) {
	display, systemTrack := audioStream()
	p := &fakePlatform{display: display, userErr: ErrPermissionDenied}

	_, err := Acquire(context.Background(), p, ModeDual)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if !systemTrack.Ended() {
		t.Error("expected system track to be stopped")
	}
}

func TestSources_StopIdempotent(t *testing.T) {
	display, systemTrack := audioStream()
	user, micTrack := audioStream()
	src, err := Acquire(context.Background(), &fakePlatform{display: display, user: user}, ModeDual)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	src.Stop()
	src.Stop()

	if !systemTrack.Ended() || !micTrack.Ended() {
		t.Error("expected both tracks stopped")
	}
}

func TestNegotiateFormat(t *testing.T) {
	tests := []struct {
		name    string
		formats map[string]bool
		want    string
		wantErr error
	}{
		{"webm first", map[string]bool{"audio/webm": true, "audio/mp4": true}, "audio/webm", nil},
		{"opus webm", map[string]bool{"audio/webm;codecs=opus": true}, "audio/webm;codecs=opus", nil},
		{"mp4 on safari", map[string]bool{"audio/mp4": true}, "audio/mp4", nil},
		{"raw pcm", map[string]bool{MimeL16: true}, MimeL16, nil},
		{"nothing", map[string]bool{"video/webm": true}, "", ErrUnsupportedFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NegotiateFormat(&fakePlatform{formats: tt.formats}, 16000)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if f.MimeType != tt.want {
				t.Errorf("expected %q, got %q", tt.want, f.MimeType)
			}
		})
	}
}

func TestPushTrack(t *testing.T) {
	track := NewPushTrack(KindAudio, 1)

	if !track.Push([]byte{1, 2}) {
		t.Fatal("expected first push to succeed")
	}
	if track.Push([]byte{3, 4}) {
		t.Error("expected push to fail on full buffer")
	}

	track.Stop()
	track.Stop()
	if track.Push([]byte{5}) {
		t.Error("expected push after stop to fail")
	}

	frame, ok := <-track.Frames()
	if !ok || !bytes.Equal(frame, []byte{1, 2}) {
		t.Errorf("expected buffered frame, got %v %v", frame, ok)
	}
	if _, ok := <-track.Frames(); ok {
		t.Error("expected frames channel closed")
	}
}

func TestSession_End(t *testing.T) {
	s := NewSession(ModeDual)
	if s.ID == "" || !s.Active {
		t.Fatalf("expected active session with id, got %+v", s)
	}
	if !s.End() {
		t.Error("expected first End to succeed")
	}
	if s.End() {
		t.Error("expected second End to report false")
	}
	if s.Duration() < 0 {
		t.Errorf("unexpected negative duration %v", s.Duration())
	}
}

func TestIngestPlatform_AttachThenRequest(t *testing.T) {
	p := NewIngestPlatform(time.Second)

	track, _, err := p.Attach(SourceSystem, true)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	stream, err := p.DisplayMedia(context.Background())
	if err != nil {
		t.Fatalf("display media: %v", err)
	}
	audio := stream.AudioTracks()
	if len(audio) != 1 || audio[0].ID() != track.ID() {
		t.Errorf("expected attached track, got %v", audio)
	}
}

func TestIngestPlatform_RequestThenAttach(t *testing.T) {
	p := NewIngestPlatform(time.Second)

	go func() {
		time.Sleep(20 * time.Millisecond)
		p.Attach(SourceMicrophone, true)
	}()

	stream, err := p.UserMedia(context.Background())
	if err != nil {
		t.Fatalf("user media: %v", err)
	}
	if len(stream.AudioTracks()) != 1 {
		t.Errorf("expected one audio track, got %d", len(stream.AudioTracks()))
	}
}

func TestIngestPlatform_GrantTimeout(t *testing.T) {
	p := NewIngestPlatform(20 * time.Millisecond)

	_, err := p.DisplayMedia(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestIngestPlatform_Busy(t *testing.T) {
	p := NewIngestPlatform(time.Second)

	if _, _, err := p.Attach(SourceSystem, true); err != nil {
		t.Fatalf("first attach: %v", err)
	}
	if _, _, err := p.Attach(SourceSystem, true); !errors.Is(err, ErrSourceBusy) {
		t.Errorf("expected ErrSourceBusy, got %v", err)
	}
	if _, _, err := p.Attach("camera", true); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestIngestPlatform_SkipsDisconnectedClient(t *testing.T) {
	p := NewIngestPlatform(50 * time.Millisecond)

	stale, _, _ := p.Attach(SourceSystem, true)
	stale.Stop()

	_, err := p.DisplayMedia(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("expected stale client to be skipped, got %v", err)
	}
}

func TestIngestPlatform_NoAudioClient(t *testing.T) {
	p := NewIngestPlatform(time.Second)

	track, _, err := p.Attach(SourceSystem, false)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if track != nil {
		t.Error("expected nil track for client without audio")
	}

	_, err = Acquire(context.Background(), p, ModeSystemAudio)
	if !errors.Is(err, ErrNoAudioTrack) {
		t.Errorf("expected ErrNoAudioTrack, got %v", err)
	}
}

func TestIngestPlatform_Reconnect(t *testing.T) {
	tests := []struct {
		name  string
		first func(p *IngestPlatform)
	}{
		{
			name: "client without audio left",
			first: func(p *IngestPlatform) {
				_, detach, _ := p.Attach(SourceSystem, false)
				detach()
			},
		},
		{
			name: "client with audio left",
			first: func(p *IngestPlatform) {
				_, detach, _ := p.Attach(SourceSystem, true)
				detach()
			},
		},
		{
			name: "track ended without detach",
			first: func(p *IngestPlatform) {
				track, _, _ := p.Attach(SourceSystem, true)
				track.Stop()
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewIngestPlatform(time.Second)
			tt.first(p)

			track, _, err := p.Attach(SourceSystem, true)
			if err != nil {
				t.Fatalf("reconnect: %v", err)
			}
			stream, err := p.DisplayMedia(context.Background())
			if err != nil {
				t.Fatalf("display media: %v", err)
			}
			audio := stream.AudioTracks()
			if len(audio) != 1 || audio[0].ID() != track.ID() {
				t.Errorf("expected the reconnected client's track, got %v", audio)
			}
		})
	}
}

func TestIngestPlatform_DetachAfterTaken(t *testing.T) {
	p := NewIngestPlatform(time.Second)

	_, detach, _ := p.Attach(SourceMicrophone, true)
	if _, err := p.UserMedia(context.Background()); err != nil {
		t.Fatalf("user media: %v", err)
	}
	next, _, err := p.Attach(SourceMicrophone, true)
	if err != nil {
		t.Fatalf("second attach: %v", err)
	}

	// the first client leaving must not withdraw the second client's offer
	detach()
	stream, err := p.UserMedia(context.Background())
	if err != nil {
		t.Fatalf("user media: %v", err)
	}
	if audio := stream.AudioTracks(); len(audio) != 1 || audio[0].ID() != next.ID() {
		t.Errorf("expected second client's track, got %v", audio)
	}
}

func writeWAV(t *testing.T, sampleRate int, samples []int16) string {
	t.Helper()
	var data bytes.Buffer
	for _, s := range samples {
		binary.Write(&data, binary.LittleEndian, s)
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+data.Len()))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(data.Len()))
	buf.Write(data.Bytes())

	path := filepath.Join(t.TempDir(), "sample.wav")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func TestReadWAVHeader(t *testing.T) {
	path := writeWAV(t, 8000, make([]int16, 10))
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	info, err := ReadWAVHeader(f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.SampleRate != 8000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Errorf("unexpected info %+v", info)
	}

	if _, err := ReadWAVHeader(bytes.NewReader(make([]byte, 44))); !errors.Is(err, ErrInvalidWAV) {
		t.Errorf("expected ErrInvalidWAV for zero header, got %v", err)
	}
}

func TestWAVPlatform_StreamsFile(t *testing.T) {
	// 8000 Hz, 100ms frames = 800 samples = 1600 bytes; 2000 samples -> 3 frames
	path := writeWAV(t, 8000, make([]int16, 2000))
	p := &WAVPlatform{SystemPath: path}

	stream, err := p.DisplayMedia(context.Background())
	if err != nil {
		t.Fatalf("display media: %v", err)
	}
	track := stream.AudioTracks()[0]

	total := 0
	frames := 0
	for frame := range track.Frames() {
		total += len(frame)
		frames++
	}
	if total != 4000 {
		t.Errorf("expected 4000 bytes, got %d", total)
	}
	if frames != 3 {
		t.Errorf("expected 3 frames, got %d", frames)
	}
	if !track.Ended() {
		t.Error("expected track to end at EOF")
	}
}

func TestWAVPlatform_EmptyPathHasNoAudio(t *testing.T) {
	p := &WAVPlatform{}
	_, err := Acquire(context.Background(), p, ModeMicrophone)
	if !errors.Is(err, ErrNoAudioTrack) {
		t.Errorf("expected ErrNoAudioTrack, got %v", err)
	}
}
