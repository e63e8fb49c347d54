package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// ErrInvalidWAV is returned for files that are not 16-bit mono PCM WAV.
var ErrInvalidWAV = errors.New("capture: not a 16-bit mono PCM WAV file")

// WAVInfo describes a PCM WAV file.
type WAVInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// ReadWAVHeader validates a WAV header and returns its format.
func ReadWAVHeader(r io.Reader) (WAVInfo, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return WAVInfo{}, fmt.Errorf("read WAV header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return WAVInfo{}, ErrInvalidWAV
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	info := WAVInfo{
		Channels:      int(binary.LittleEndian.Uint16(header[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(header[24:28])),
		BitsPerSample: int(binary.LittleEndian.Uint16(header[34:36])),
	}
	if audioFormat != 1 || info.Channels != 1 || info.BitsPerSample != 16 {
		return info, ErrInvalidWAV
	}
	return info, nil
}

// WAVPlatform serves tracks read from WAV files. An empty path behaves like a
// stream without audio.
type WAVPlatform struct {
	SystemPath     string
	MicrophonePath string
	// FrameInterval paces frames in real time; zero reads as fast as possible.
	FrameInterval time.Duration
}

func (p *WAVPlatform) DisplayMedia(ctx context.Context) (*Stream, error) {
	return p.open(p.SystemPath)
}

func (p *WAVPlatform) UserMedia(ctx context.Context) (*Stream, error) {
	return p.open(p.MicrophonePath)
}

// SupportsFormat accepts raw PCM only.
func (p *WAVPlatform) SupportsFormat(mime string) bool {
	return mime == MimeL16
}

func (p *WAVPlatform) open(path string) (*Stream, error) {
	if path == "" {
		return &Stream{}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, ErrPermissionDenied
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := ReadWAVHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	track := NewPushTrack(KindAudio, 64)
	go pumpWAV(f, track, info, p.FrameInterval)
	return &Stream{Tracks: []Track{track}}, nil
}

// pumpWAV streams 100ms frames until EOF or the track is stopped.
func pumpWAV(f *os.File, track *PushTrack, info WAVInfo, interval time.Duration) {
	defer f.Close()
	defer track.Stop()

	frameSize := info.SampleRate * 2 / 10
	for {
		buf := make([]byte, frameSize)
		n, err := io.ReadFull(f, buf)
		if n > 0 {
			for !track.Push(buf[:n]) {
				if track.Ended() {
					return
				}
				time.Sleep(10 * time.Millisecond)
			}
		}
		if err != nil {
			return
		}
		if interval > 0 {
			time.Sleep(interval)
		}
	}
}
