package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"interview-copilot/internal/models"
)

type recordingSink struct {
	name    string
	err     error
	mu      sync.Mutex
	updates []Update
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Broadcast(ctx context.Context, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, u)
	return s.err
}

func TestFanout_DeliversToAllSinks(t *testing.T) {
	failing := &recordingSink{name: "failing", err: errors.New("boom")}
	ok := &recordingSink{name: "ok"}
	f := NewFanout(failing)
	f.Add(ok)

	err := f.Broadcast(context.Background(), Update{Text: "hi"})
	if err == nil || !errors.Is(err, failing.err) {
		t.Errorf("expected joined sink error, got %v", err)
	}
	if len(ok.updates) != 1 {
		t.Fatalf("expected healthy sink to receive update despite failure")
	}
	if ok.updates[0].Timestamp.IsZero() {
		t.Error("expected timestamp to be filled in")
	}
}

func TestFanout_NoSinks(t *testing.T) {
	if err := NewFanout().Broadcast(context.Background(), Update{}); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error, complete bool) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                       { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}            { return t.done }
func (t *fakeToken) Error() error                     { return t.err }

type fakeMQTT struct {
	topic        string
	retained     bool
	payload      []byte
	token        *fakeToken
	disconnected bool
}

func (c *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.topic = topic
	c.retained = retained
	c.payload = payload.([]byte)
	return c.token
}

func (c *fakeMQTT) Disconnect(quiesce uint) { c.disconnected = true }

func TestMQTTBroadcaster_Publishes(t *testing.T) {
	client := &fakeMQTT{token: newFakeToken(nil, true)}
	b := newMQTTBroadcaster(client, "copilot/live")

	if err := b.Broadcast(context.Background(), Update{Text: "done", IsFinal: true}); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if client.topic != "copilot/live" || !client.retained {
		t.Errorf("expected retained publish on topic, got %s retained=%v", client.topic, client.retained)
	}
	var msg models.LiveTranscriptUpdate
	if err := json.Unmarshal(client.payload, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != models.TypeLiveTranscriptUpdate || msg.Text != "done" || !msg.IsFinal {
		t.Errorf("unexpected payload %+v", msg)
	}

	b.Close()
	if !client.disconnected {
		t.Error("expected disconnect")
	}
}

func TestMQTTBroadcaster_Errors(t *testing.T) {
	t.Run("token error", func(t *testing.T) {
		client := &fakeMQTT{token: newFakeToken(errors.New("not connected"), true)}
		b := newMQTTBroadcaster(client, "t")
		if err := b.Broadcast(context.Background(), Update{}); err == nil {
			t.Error("expected token error")
		}
	})

	t.Run("context cancelled", func(t *testing.T) {
		client := &fakeMQTT{token: newFakeToken(nil, false)}
		b := newMQTTBroadcaster(client, "t")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := b.Broadcast(ctx, Update{}); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}
