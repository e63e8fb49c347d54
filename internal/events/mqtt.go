package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"interview-copilot/internal/models"
	"interview-copilot/internal/observability/logging"
)

// ErrMQTTTimeout is returned when the broker does not acknowledge a publish in time.
var ErrMQTTTimeout = errors.New("mqtt: publish timed out")

const mqttPublishTimeout = 5 * time.Second

// MQTTConfig holds broker settings for the live transcript mirror.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

// mqttPublisher is the part of paho.Client the broadcaster uses.
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// MQTTBroadcaster mirrors live transcript updates to an MQTT topic, for
// overlays running on another device.
type MQTTBroadcaster struct {
	client mqttPublisher
	topic  string
	logger zerolog.Logger
}

// NewMQTTBroadcaster connects to the broker. The client reconnects on its own
// after a lost connection.
func NewMQTTBroadcaster(cfg MQTTConfig) (*MQTTBroadcaster, error) {
	logger := logging.WithComponent("mqtt")

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Error().Err(err).Msg("MQTT connection lost")
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}

	logger.Info().Str("broker", cfg.Broker).Str("topic", cfg.Topic).Msg("MQTT broadcaster connected")
	return newMQTTBroadcaster(client, cfg.Topic), nil
}

func newMQTTBroadcaster(client mqttPublisher, topic string) *MQTTBroadcaster {
	return &MQTTBroadcaster{
		client: client,
		topic:  topic,
		logger: logging.WithComponent("mqtt"),
	}
}

// Name implements Broadcaster.
func (b *MQTTBroadcaster) Name() string { return "mqtt" }

// Broadcast publishes u as a live transcript update. Finals are retained so a
// late subscriber sees the latest finalized transcript.
func (b *MQTTBroadcaster) Broadcast(ctx context.Context, u Update) error {
	payload, err := json.Marshal(models.LiveTranscriptUpdate{
		Type:    models.TypeLiveTranscriptUpdate,
		Text:    u.Text,
		IsFinal: u.IsFinal,
	})
	if err != nil {
		return err
	}

	token := b.client.Publish(b.topic, 0, u.IsFinal, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(mqttPublishTimeout):
		return ErrMQTTTimeout
	}
	return token.Error()
}

// Close disconnects from the broker.
func (b *MQTTBroadcaster) Close() {
	b.client.Disconnect(250)
}
