// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "interview_copilot"

// Metrics holds all Prometheus metrics for the agent.
type Metrics struct {
	// Capture session metrics
	SessionsTotal   *prometheus.CounterVec
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram
	CaptureFailures *prometheus.CounterVec

	// Recorder metrics
	ChunksSent     prometheus.Counter
	ChunksDropped  prometheus.Counter
	AudioBytesSent prometheus.Counter

	// Relay metrics
	RelayMessages       *prometheus.CounterVec
	RelayErrors         *prometheus.CounterVec
	RelayConnectLatency *prometheus.HistogramVec

	// Transcript metrics
	TranscriptsPartial prometheus.Counter
	TranscriptsFinal   prometheus.Counter
	Submissions        *prometheus.CounterVec

	// Backend channel metrics
	BackendReconnects  prometheus.Counter
	BackendMessagesIn  *prometheus.CounterVec
	BackendMessagesOut *prometheus.CounterVec
	BackendRequests    *prometheus.CounterVec
	BackendLatency     *prometheus.HistogramVec

	// Broadcast metrics
	BroadcastTotal  *prometheus.CounterVec
	BroadcastErrors *prometheus.CounterVec
	OverlayClients  prometheus.Gauge

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// gRPC metrics
	GRPCRequests *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetricsWith(prometheus.DefaultRegisterer)

// NewMetricsWith creates all metrics and registers them with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_sessions_total",
			Help:      "Total number of capture sessions started",
		}, []string{"mode"}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capture_sessions_active",
			Help:      "Number of currently active capture sessions",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_session_duration_seconds",
			Help:      "Duration of capture sessions in seconds",
			Buckets:   []float64{10, 30, 60, 300, 600, 1800, 3600, 7200},
		}),
		CaptureFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_failures_total",
			Help:      "Capture start failures by reason",
		}, []string{"reason"}),

		ChunksSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_sent_total",
			Help:      "Recorder chunks handed to the relay",
		}),
		ChunksDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_dropped_total",
			Help:      "Recorder chunks dropped because the relay was not open",
		}),
		AudioBytesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_sent_total",
			Help:      "Audio bytes sent to the relay",
		}),

		RelayMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_messages_total",
			Help:      "Inbound transcription messages",
		}, []string{"provider", "type"}),
		RelayErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_errors_total",
			Help:      "Transcription relay errors",
		}, []string{"provider", "error_type"}),
		RelayConnectLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_connect_latency_seconds",
			Help:      "Time to open the transcription channel",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"provider"}),

		TranscriptsPartial: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_partial_total",
			Help:      "Total number of partial transcripts applied",
		}),
		TranscriptsFinal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_final_total",
			Help:      "Total number of final transcripts applied",
		}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Texts submitted for answer generation",
		}, []string{"source"}),

		BackendReconnects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_reconnects_total",
			Help:      "Backend channel reconnect attempts",
		}),
		BackendMessagesIn: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_messages_in_total",
			Help:      "Messages received on the backend channel",
		}, []string{"type"}),
		BackendMessagesOut: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_messages_out_total",
			Help:      "Messages sent on the backend channel",
		}, []string{"type"}),
		BackendRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Backend HTTP requests by endpoint and outcome",
		}, []string{"endpoint", "outcome"}),
		BackendLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_latency_seconds",
			Help:      "Backend HTTP request latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"endpoint"}),

		BroadcastTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_total",
			Help:      "Live transcript updates broadcast per sink",
		}, []string{"sink"}),
		BroadcastErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_errors_total",
			Help:      "Live transcript broadcast failures per sink",
		}, []string{"sink"}),
		OverlayClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overlay_clients",
			Help:      "Connected overlay viewers",
		}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		GRPCRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "gRPC requests by method and code",
		}, []string{"method", "code"}),
	}
}

// RecordSessionStart records a capture session starting.
func (m *Metrics) RecordSessionStart(mode string) {
	m.SessionsTotal.WithLabelValues(mode).Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a capture session ending.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordCaptureFailure records a capture start that failed.
func (m *Metrics) RecordCaptureFailure(reason string) {
	m.CaptureFailures.WithLabelValues(reason).Inc()
}

// RecordChunk records a recorder chunk as sent or dropped.
func (m *Metrics) RecordChunk(size int, sent bool) {
	if !sent {
		m.ChunksDropped.Inc()
		return
	}
	m.ChunksSent.Inc()
	m.AudioBytesSent.Add(float64(size))
}

// RecordRelayMessage records an inbound relay message.
func (m *Metrics) RecordRelayMessage(provider, msgType string) {
	m.RelayMessages.WithLabelValues(provider, msgType).Inc()
}

// RecordRelayError records a relay failure.
func (m *Metrics) RecordRelayError(provider, errorType string) {
	m.RelayErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordPartialTranscript records a partial transcript applied.
func (m *Metrics) RecordPartialTranscript() {
	m.TranscriptsPartial.Inc()
}

// RecordFinalTranscript records a final transcript applied.
func (m *Metrics) RecordFinalTranscript() {
	m.TranscriptsFinal.Inc()
}

// RecordSubmission records a text sent for answer generation.
func (m *Metrics) RecordSubmission(source string) {
	m.Submissions.WithLabelValues(source).Inc()
}

// RecordBackendRequest records a backend HTTP call.
func (m *Metrics) RecordBackendRequest(endpoint string, err error, durationSeconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.BackendRequests.WithLabelValues(endpoint, outcome).Inc()
	m.BackendLatency.WithLabelValues(endpoint).Observe(durationSeconds)
}

// RecordBroadcast records a broadcast attempt on a sink.
func (m *Metrics) RecordBroadcast(sink string, err error) {
	if err != nil {
		m.BroadcastErrors.WithLabelValues(sink).Inc()
		return
	}
	m.BroadcastTotal.WithLabelValues(sink).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, durationSeconds float64) {
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	} else {
		m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	}
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(durationSeconds)
}
