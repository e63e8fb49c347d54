package app

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"interview-copilot/internal/backend"
	"interview-copilot/internal/config"
	"interview-copilot/internal/events"
	"interview-copilot/internal/observability/logging"
	"interview-copilot/internal/service/capture"
	"interview-copilot/internal/service/mixer"
	"interview-copilot/internal/service/notifier"
	"interview-copilot/internal/service/overlay"
	"interview-copilot/internal/service/recorder"
	"interview-copilot/internal/service/session"
	"interview-copilot/internal/service/stt"
	"interview-copilot/internal/service/stt/deepgram"
	"interview-copilot/internal/service/stt/google"
	"interview-copilot/internal/service/stt/mock"
	"interview-copilot/internal/store"
)

// STT providers.
const (
	ProviderDeepgram = "deepgram"
	ProviderGoogle   = "google"
	ProviderMock     = "mock"
)

// Application holds process-wide state for the agent.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Store      store.Store
	Controller *session.Controller
	QA         *session.QATracker
	Notifier   *notifier.Client
	Backend    *backend.Client
	Overlay    *overlay.Hub
	// Ingest is set when capture clients push audio over WebSocket.
	Ingest *capture.IngestPlatform

	kafka  *events.Publisher
	mqtt   *events.MQTTBroadcaster
	cancel context.CancelFunc
}

// New constructs the application from cfg. The Postgres store is connected
// and migrated here; nothing else touches the network until Start.
func New(ctx context.Context, cfg *config.Configuration) (*Application, error) {
	a := &Application{
		Cfg:    cfg,
		Logger: logging.WithComponent("application"),
	}

	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	a.Store = st

	platform, err := a.platform()
	if err != nil {
		st.Close()
		return nil, err
	}

	a.Backend = backend.New(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout)
	a.Overlay = overlay.NewHub()
	a.kafka = events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicPartial: cfg.Kafka.TopicPartial,
		TopicFinal:   cfg.Kafka.TopicFinal,
		Principal:    cfg.Kafka.Principal,
	})
	fanout := events.NewFanout(a.Overlay, a.kafka)

	if cfg.MQTT.Enabled {
		a.mqtt, err = events.NewMQTTBroadcaster(events.MQTTConfig{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Topic:    cfg.MQTT.Topic,
		})
		if err != nil {
			// the overlay and backend still get updates
			a.Logger.Warn().Err(err).Str("broker", cfg.MQTT.Broker).Msg("MQTT unavailable")
		} else {
			fanout.Add(a.mqtt)
		}
	}

	// the controller and the QA tracker refer to each other through the
	// session id lookup
	var ctrl *session.Controller
	a.QA = session.NewQATracker(st, func() string { return ctrl.SessionID() })

	wsURL, err := BackendWSURL(cfg.Backend.BaseURL, cfg.Backend.WSPath)
	if err != nil {
		st.Close()
		return nil, err
	}
	a.Notifier = notifier.New(notifier.Config{URL: wsURL, ReconnectDelay: cfg.Backend.ReconnectDelay}, a.QA)
	fanout.Add(a.Notifier)

	timeslice := cfg.Capture.Timeslice
	if timeslice <= 0 {
		timeslice = recorder.TimesliceFor(cfg.Capture.Platform)
	}

	ctrl = session.New(session.Options{
		Platform:           platform,
		NewRelay:           a.newRelay,
		Store:              st,
		Broadcaster:        fanout,
		Sender:             a.Notifier,
		SampleRate:         cfg.STT.SampleRateHz,
		Timeslice:          timeslice,
		BitsPerSecond:      cfg.Capture.BitsPerSecond,
		MixInterval:        mixer.DefaultInterval,
		SubmitPause:        cfg.Capture.SubmitPause,
		PredictionsEnabled: cfg.LLM.PredictionsEnabled,
	})
	a.Controller = ctrl

	a.Logger.Info().
		Str("sttProvider", cfg.STT.Provider).
		Str("captureSource", cfg.Capture.Source).
		Str("backend", cfg.Backend.BaseURL).
		Msg("Interview co-pilot application created")
	return a, nil
}

func openStore(ctx context.Context, cfg config.Store) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		return store.NewMemory(), nil
	}
	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return pg, nil
}

func (a *Application) platform() (capture.Platform, error) {
	switch a.Cfg.Capture.Source {
	case "", "ingest":
		a.Ingest = capture.NewIngestPlatform(a.Cfg.Capture.GrantTimeout)
		return a.Ingest, nil
	case "wav":
		return &capture.WAVPlatform{
			SystemPath:     a.Cfg.Capture.SystemWAV,
			MicrophonePath: a.Cfg.Capture.MicrophoneWAV,
			FrameInterval:  mixer.DefaultInterval,
		}, nil
	default:
		return nil, fmt.Errorf("unknown capture source %q", a.Cfg.Capture.Source)
	}
}

// newRelay opens the configured transcription relay. A Deepgram key stored in
// settings takes precedence over the environment.
func (a *Application) newRelay(ctx context.Context, opts stt.Options, settings store.Settings) (stt.Adapter, error) {
	switch strings.ToLower(a.Cfg.STT.Provider) {
	case ProviderDeepgram:
		key := settings[store.KeyDeepgramAPIKey]
		if key == "" {
			key = a.Cfg.Deepgram.APIKey
		}
		if key == "" {
			return nil, fmt.Errorf("%w: deepgram api key not configured", stt.ErrRelayError)
		}
		return deepgram.New(deepgram.Config{
			URL:    a.Cfg.Deepgram.URL,
			APIKey: key,
			Model:  a.Cfg.Deepgram.Model,
		}, opts), nil
	case ProviderGoogle:
		gcfg := google.DefaultConfig()
		gcfg.LanguageCode = a.Cfg.STT.LanguageCode
		if lang := settings[store.KeyDetectedLanguage]; lang != "" {
			gcfg.LanguageCode = lang
		}
		gcfg.SampleRateHz = a.Cfg.STT.SampleRateHz
		gcfg.AudioEncoding = a.Cfg.STT.AudioEncoding
		return google.New(ctx, gcfg, opts)
	case ProviderMock:
		return mock.New(opts), nil
	default:
		return nil, fmt.Errorf("%w: unknown stt provider %q", stt.ErrRelayError, a.Cfg.STT.Provider)
	}
}

// BackendWSURL derives the interview channel URL from the backend base URL.
func BackendWSURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse backend url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	return u.String(), nil
}

// Ready reports whether the agent can start a capture session.
func (a *Application) Ready(ctx context.Context) error {
	if pg, ok := a.Store.(*store.Postgres); ok {
		if err := pg.Ping(ctx); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}
	return nil
}

// Start launches the background loops: overlay hub and backend channel.
func (a *Application) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	a.StartupTime = time.Now().UTC()

	go a.Overlay.Run(ctx)
	go a.Notifier.Run(ctx)

	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Interview co-pilot starting")
	return nil
}

// Shutdown stops any running session and releases connections.
func (a *Application) Shutdown() {
	a.Logger.Info().Msg("Interview co-pilot shutting down")

	a.Controller.Stop()
	if a.cancel != nil {
		a.cancel()
	}
	if err := a.kafka.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Kafka close")
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	a.Store.Close()
}
