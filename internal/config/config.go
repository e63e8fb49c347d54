// Package config loads the co-pilot configuration from the environment,
// optionally layered over a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Configuration is the root configuration for the co-pilot agent.
type Configuration struct {
	Service       Service       `yaml:"service"`
	Deepgram      Deepgram      `yaml:"deepgram"`
	STT           STT           `yaml:"stt"`
	Capture       Capture       `yaml:"capture"`
	Backend       Backend       `yaml:"backend"`
	LLM           LLM           `yaml:"llm"`
	Kafka         Kafka         `yaml:"kafka"`
	MQTT          MQTT          `yaml:"mqtt"`
	Store         Store         `yaml:"store"`
	Observability Observability `yaml:"observability"`
}

type Service struct {
	Principal   string `yaml:"principal"`
	HTTPPort    string `yaml:"http_port"`
	GRPCPort    string `yaml:"grpc_port"`
	MetricsPort string `yaml:"metrics_port"`
}

type Deepgram struct {
	APIKey string `yaml:"api_key"`
	URL    string `yaml:"url"`
	Model  string `yaml:"model"`
}

type STT struct {
	Provider      string `yaml:"provider"` // deepgram, google, mock
	LanguageCode  string `yaml:"language_code"`
	SampleRateHz  int    `yaml:"sample_rate_hz"`
	AudioEncoding string `yaml:"audio_encoding"`
}

type Capture struct {
	// Source is "ingest" (websocket clients) or "wav".
	Source        string        `yaml:"source"`
	SystemWAV     string        `yaml:"system_wav"`
	MicrophoneWAV string        `yaml:"microphone_wav"`
	// Platform is the browser variant; "safari" halves the timeslice.
	Platform      string        `yaml:"platform"`
	Timeslice     time.Duration `yaml:"timeslice"`
	BitsPerSecond int           `yaml:"bits_per_second"`
	// SubmitPause of 0 disables auto-submit.
	SubmitPause   time.Duration `yaml:"submit_pause"`
	GrantTimeout  time.Duration `yaml:"grant_timeout"`
}

type Backend struct {
	BaseURL        string        `yaml:"base_url"`
	WSPath         string        `yaml:"ws_path"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LLM struct {
	PredictionsEnabled bool `yaml:"predictions_enabled"`
}

type Kafka struct {
	Enabled      bool     `yaml:"enabled"`
	Brokers      []string `yaml:"brokers"`
	TopicPartial string   `yaml:"topic_partial"`
	TopicFinal   string   `yaml:"topic_final"`
	Principal    string   `yaml:"principal"`
}

type MQTT struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

type Store struct {
	DatabaseURL string `yaml:"database_url"` // empty selects the in-memory store
}

type Observability struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Defaults returns the configuration used when neither file nor env sets a value.
func Defaults() *Configuration {
	return &Configuration{
		Service: Service{
			Principal:   "svc-interview-copilot",
			HTTPPort:    "8000",
			GRPCPort:    "50051",
			MetricsPort: "9090",
		},
		Deepgram: Deepgram{
			URL:   "wss://api.deepgram.com/v1/listen",
			Model: "nova-3",
		},
		STT: STT{
			Provider:      "deepgram",
			LanguageCode:  "en-US",
			SampleRateHz:  16000,
			AudioEncoding: "LINEAR16",
		},
		Capture: Capture{
			Source:        "ingest",
			Timeslice:     time.Second,
			BitsPerSecond: 128000,
			GrantTimeout:  30 * time.Second,
		},
		Backend: Backend{
			BaseURL:        "http://localhost:8080",
			WSPath:         "/ws/interview/",
			ReconnectDelay: 3 * time.Second,
			RequestTimeout: 2 * time.Minute,
		},
		LLM: LLM{PredictionsEnabled: true},
		Kafka: Kafka{
			TopicPartial: "interview.transcript.partial",
			TopicFinal:   "interview.transcript.final",
		},
		MQTT: MQTT{
			Broker:   "tcp://localhost:1883",
			ClientID: "interview-copilot",
			Topic:    "copilot/transcript/live",
		},
		Observability: Observability{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load reads CONFIG_FILE (if set) and then applies environment overrides.
func Load() (*Configuration, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFile reads a YAML file over the defaults without consulting the environment.
func LoadFile(path string) (*Configuration, error) {
	cfg := Defaults()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Configuration) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Configuration) applyEnv() {
	c.Service.Principal = envOrDefault("SERVICE_PRINCIPAL", c.Service.Principal)
	c.Service.HTTPPort = envOrDefault("HTTP_PORT", c.Service.HTTPPort)
	c.Service.GRPCPort = envOrDefault("GRPC_PORT", c.Service.GRPCPort)
	c.Service.MetricsPort = envOrDefault("METRICS_PORT", c.Service.MetricsPort)

	c.Deepgram.APIKey = envOrDefault("DEEPGRAM_API_KEY", c.Deepgram.APIKey)
	c.Deepgram.URL = envOrDefault("DEEPGRAM_URL", c.Deepgram.URL)
	c.Deepgram.Model = envOrDefault("DEEPGRAM_MODEL", c.Deepgram.Model)

	c.STT.Provider = envOrDefault("STT_PROVIDER", c.STT.Provider)
	c.STT.LanguageCode = envOrDefault("STT_LANGUAGE_CODE", c.STT.LanguageCode)
	c.STT.SampleRateHz = envOrDefaultInt("STT_SAMPLE_RATE_HZ", c.STT.SampleRateHz)
	c.STT.AudioEncoding = envOrDefault("STT_AUDIO_ENCODING", c.STT.AudioEncoding)

	c.Capture.Source = envOrDefault("CAPTURE_SOURCE", c.Capture.Source)
	c.Capture.SystemWAV = envOrDefault("CAPTURE_SYSTEM_WAV", c.Capture.SystemWAV)
	c.Capture.MicrophoneWAV = envOrDefault("CAPTURE_MICROPHONE_WAV", c.Capture.MicrophoneWAV)
	c.Capture.Platform = envOrDefault("CAPTURE_PLATFORM", c.Capture.Platform)
	c.Capture.Timeslice = envOrDefaultDuration("CAPTURE_TIMESLICE", c.Capture.Timeslice)
	c.Capture.BitsPerSecond = envOrDefaultInt("CAPTURE_BITS_PER_SECOND", c.Capture.BitsPerSecond)
	c.Capture.SubmitPause = envOrDefaultDuration("CAPTURE_SUBMIT_PAUSE", c.Capture.SubmitPause)
	c.Capture.GrantTimeout = envOrDefaultDuration("CAPTURE_GRANT_TIMEOUT", c.Capture.GrantTimeout)

	c.Backend.BaseURL = envOrDefault("BACKEND_URL", c.Backend.BaseURL)
	c.Backend.WSPath = envOrDefault("BACKEND_WS_PATH", c.Backend.WSPath)
	c.Backend.ReconnectDelay = envOrDefaultDuration("BACKEND_RECONNECT_DELAY", c.Backend.ReconnectDelay)
	c.Backend.RequestTimeout = envOrDefaultDuration("BACKEND_REQUEST_TIMEOUT", c.Backend.RequestTimeout)

	c.LLM.PredictionsEnabled = envOrDefaultBool("PREDICTIONS_ENABLED", c.LLM.PredictionsEnabled)

	c.Kafka.Enabled = envOrDefaultBool("KAFKA_ENABLED", c.Kafka.Enabled)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}
	c.Kafka.TopicPartial = envOrDefault("KAFKA_TOPIC_PARTIAL", c.Kafka.TopicPartial)
	c.Kafka.TopicFinal = envOrDefault("KAFKA_TOPIC_FINAL", c.Kafka.TopicFinal)
	c.Kafka.Principal = envOrDefault("KAFKA_PRINCIPAL", c.Kafka.Principal)
	if c.Kafka.Principal == "" {
		c.Kafka.Principal = c.Service.Principal
	}

	c.MQTT.Enabled = envOrDefaultBool("MQTT_ENABLED", c.MQTT.Enabled)
	c.MQTT.Broker = envOrDefault("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.ClientID = envOrDefault("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Topic = envOrDefault("MQTT_TOPIC", c.MQTT.Topic)

	c.Store.DatabaseURL = envOrDefault("DATABASE_URL", c.Store.DatabaseURL)

	c.Observability.LogLevel = envOrDefault("LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = envOrDefault("LOG_FORMAT", c.Observability.LogFormat)
	if os.Getenv("ENV") == "dev" {
		c.Observability.LogFormat = "console"
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	default:
		return def
	}
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
