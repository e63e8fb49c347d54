// Package google provides a Google Cloud Speech-to-Text relay.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/rs/zerolog"

	"interview-copilot/internal/observability/logging"
	"interview-copilot/internal/observability/metrics"
	"interview-copilot/internal/service/stt"
)

const provider = "google"

// Config holds Google STT configuration.
type Config struct {
	LanguageCode   string
	SampleRateHz   int
	InterimResults bool
	AudioEncoding  string
}

// DefaultConfig returns the settings used for raw 16 kHz capture.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   16000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
	}
}

// recognizeStream is the part of the gRPC stream the adapter uses.
type recognizeStream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

// Adapter implements stt.Adapter using Google Cloud Speech-to-Text.
type Adapter struct {
	client  *speech.Client
	cfg     Config
	opts    stt.Options
	metrics *metrics.Metrics
	logger  zerolog.Logger

	sendMu    sync.Mutex
	stream    recognizeStream
	cb        stt.Callback
	open      atomic.Bool
	closing   atomic.Bool
	closeOnce sync.Once
}

// New creates a Google STT adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS to be set.
func New(ctx context.Context, cfg Config, opts stt.Options) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	a := newAdapter(cfg, opts)
	a.client = c
	return a, nil
}

func newAdapter(cfg Config, opts stt.Options) *Adapter {
	if opts.Format.SampleRate > 0 {
		cfg.SampleRateHz = opts.Format.SampleRate
	}
	return &Adapter{
		cfg:     cfg,
		opts:    opts,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("google-stt"),
	}
}

// Start opens a streaming recognition session, sends the config and starts
// delivering results.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	stream, err := a.client.StreamingRecognize(ctx)
	if err != nil {
		a.metrics.RecordRelayError(provider, "dial")
		return fmt.Errorf("%w: %v", stt.ErrRelayError, err)
	}
	return a.start(stream, cb)
}

func (a *Adapter) start(stream recognizeStream, cb stt.Callback) error {
	a.stream = stream
	a.cb = cb

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: a.streamingConfig(),
		},
	}); err != nil {
		return fmt.Errorf("%w: config: %v", stt.ErrRelayError, err)
	}

	a.open.Store(true)
	go a.listen()
	return nil
}

func (a *Adapter) streamingConfig() *speechpb.StreamingRecognitionConfig {
	rc := &speechpb.RecognitionConfig{
		Encoding:                   parseAudioEncoding(a.cfg.AudioEncoding),
		SampleRateHertz:            int32(a.cfg.SampleRateHz),
		LanguageCode:               a.cfg.LanguageCode,
		EnableAutomaticPunctuation: true,
	}
	if a.opts.Diarize {
		rc.DiarizationConfig = &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
			MinSpeakerCount:          2,
			MaxSpeakerCount:          2,
		}
	}
	return &speechpb.StreamingRecognitionConfig{
		Config:         rc,
		InterimResults: a.cfg.InterimResults,
	}
}

// IsOpen reports whether audio can be sent.
func (a *Adapter) IsOpen() bool {
	return a.open.Load()
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	if !a.open.Load() {
		return stt.ErrRelayClosed
	}
	a.sendMu.Lock()
	defer a.sendMu.Unlock()
	if err := a.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	}); err != nil {
		return fmt.Errorf("%w: %v", stt.ErrRelayError, err)
	}
	return nil
}

// Close half-closes the stream; the listener delivers remaining results and
// then reports OnClose.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.closing.Store(true)
		a.open.Store(false)
		if a.stream != nil {
			a.sendMu.Lock()
			err = a.stream.CloseSend()
			a.sendMu.Unlock()
		}
		if a.client != nil {
			if cerr := a.client.Close(); err == nil {
				err = cerr
			}
		}
	})
	return err
}

func (a *Adapter) listen() {
	defer func() {
		a.open.Store(false)
		a.cb.OnClose()
	}()

	for {
		resp, err := a.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || a.closing.Load() {
				return
			}
			a.metrics.RecordRelayError(provider, "read")
			a.logger.Error().Err(err).Msg("Google STT stream error")
			a.cb.OnError(fmt.Errorf("%w: %v", stt.ErrRelayError, err))
			return
		}

		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 {
				continue
			}
			alt := r.Alternatives[0]
			result := stt.Result{
				Text:        alt.Transcript,
				IsFinal:     r.IsFinal,
				SpeechFinal: r.IsFinal,
				Confidence:  float64(alt.Confidence),
			}
			if a.opts.Diarize && len(alt.Words) > 0 && alt.Words[0].SpeakerTag > 0 {
				speaker := int(alt.Words[0].SpeakerTag)
				result.Speaker = &speaker
			}
			if r.IsFinal {
				a.metrics.RecordRelayMessage(provider, "final")
				a.cb.OnFinal(result)
			} else {
				a.metrics.RecordRelayMessage(provider, "partial")
				a.cb.OnPartial(result)
			}
		}
	}
}

// parseAudioEncoding maps an encoding name to the protobuf enum, falling back
// to LINEAR16.
func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	switch s {
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	case "AMR":
		return speechpb.RecognitionConfig_AMR
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS
	default:
		return speechpb.RecognitionConfig_LINEAR16
	}
}
