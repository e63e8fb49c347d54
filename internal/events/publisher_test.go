package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"interview-copilot/internal/models"
)

// fakeWriter records messages instead of writing to a broker
type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func enabledPublisher(partial, final *fakeWriter) *Publisher {
	p := New(&Config{
		TopicPartial: "test.partial",
		TopicFinal:   "test.final",
		Principal:    "test-svc",
	})
	p.writerPartial = partial
	p.writerFinal = final
	p.enabled = true
	return p
}

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerPartial != nil || p.writerFinal != nil {
				t.Error("expected no writers when disabled")
			}
			if err := p.PublishPartial(context.Background(), "k", map[string]string{"text": "x"}); err != nil {
				t.Errorf("expected log-only publish to succeed, got %v", err)
			}
			if err := p.Close(); err != nil {
				t.Errorf("expected no error closing disabled publisher, got %v", err)
			}
		})
	}
}

func TestNew_EnabledCreatesWriters(t *testing.T) {
	p := New(&Config{
		Enabled:      true,
		Brokers:      []string{"localhost:9092"},
		TopicPartial: "a",
		TopicFinal:   "b",
	})
	if !p.enabled || p.writerPartial == nil || p.writerFinal == nil {
		t.Fatal("expected enabled publisher with writers")
	}
	if w, ok := p.writerFinal.(*kafka.Writer); !ok || w.Topic != "b" {
		t.Errorf("expected final writer on topic b, got %+v", p.writerFinal)
	}
}

func TestPublisher_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})
	if err := p.PublishFinal(context.Background(), "k", make(chan int)); err == nil {
		t.Error("expected error for unmarshalable event")
	}
}

func TestPublisher_BroadcastRoutesByFinality(t *testing.T) {
	partial, final := &fakeWriter{}, &fakeWriter{}
	p := enabledPublisher(partial, final)
	ts := time.UnixMilli(1700000000000)

	if err := p.Broadcast(context.Background(), Update{
		SessionID: "s-1", Mode: "dual", Text: "hello", Timestamp: ts,
	}); err != nil {
		t.Fatalf("partial: %v", err)
	}
	if err := p.Broadcast(context.Background(), Update{
		SessionID: "s-1", Mode: "dual", Text: "hello world", IsFinal: true,
		Segment: "hello world", Speaker: "Interviewer", Timestamp: ts,
	}); err != nil {
		t.Fatalf("final: %v", err)
	}

	if len(partial.msgs) != 1 || len(final.msgs) != 1 {
		t.Fatalf("expected one message per topic, got %d/%d", len(partial.msgs), len(final.msgs))
	}

	msg := final.msgs[0]
	if string(msg.Key) != "s-1" {
		t.Errorf("expected session key, got %s", msg.Key)
	}
	var ev models.TranscriptFinal
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.EventType != models.EventTranscriptFinal || ev.Speaker != "Interviewer" || ev.Timestamp != ts.UnixMilli() {
		t.Errorf("unexpected final event %+v", ev)
	}

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["principal"] != "test-svc" || headers["eventType"] != "test.final" {
		t.Errorf("unexpected headers %v", headers)
	}
}

func TestPublisher_WriteError(t *testing.T) {
	partial := &fakeWriter{err: errors.New("broker down")}
	p := enabledPublisher(partial, &fakeWriter{})

	if err := p.Broadcast(context.Background(), Update{SessionID: "s"}); err == nil {
		t.Error("expected write error")
	}
}

func TestPublisher_CloseClosesWriters(t *testing.T) {
	partial, final := &fakeWriter{}, &fakeWriter{}
	p := enabledPublisher(partial, final)
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !partial.closed || !final.closed {
		t.Error("expected both writers closed")
	}
}
