package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"interview-copilot/internal/observability/logging"
	"interview-copilot/internal/observability/metrics"
)

// Update is one live transcript change: the full display text after a
// partial or final result.
type Update struct {
	SessionID string
	Mode      string
	Text      string
	IsFinal   bool
	// Segment and Speaker are set on finals only.
	Segment   string
	Speaker   string
	Timestamp time.Time
}

// Broadcaster delivers live updates to one sink.
type Broadcaster interface {
	Name() string
	Broadcast(ctx context.Context, u Update) error
}

// Fanout delivers each update to every registered sink. A failing sink does
// not stop delivery to the others.
type Fanout struct {
	mu      sync.RWMutex
	sinks   []Broadcaster
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewFanout creates a fanout over sinks.
func NewFanout(sinks ...Broadcaster) *Fanout {
	return &Fanout{
		sinks:   sinks,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("broadcast"),
	}
}

// Add registers another sink.
func (f *Fanout) Add(b Broadcaster) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, b)
}

// Name implements Broadcaster.
func (f *Fanout) Name() string { return "fanout" }

// Broadcast sends u to all sinks and joins their errors.
func (f *Fanout) Broadcast(ctx context.Context, u Update) error {
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now()
	}

	f.mu.RLock()
	sinks := append([]Broadcaster(nil), f.sinks...)
	f.mu.RUnlock()

	var errs []error
	for _, s := range sinks {
		err := s.Broadcast(ctx, u)
		f.metrics.RecordBroadcast(s.Name(), err)
		if err != nil {
			f.logger.Warn().Err(err).Str("sink", s.Name()).Bool("isFinal", u.IsFinal).Msg("Broadcast failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
