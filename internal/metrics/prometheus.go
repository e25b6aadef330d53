// ABOUTME: Prometheus metric definitions
// ABOUTME: Registers voicelink counters on a caller supplied registry
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for a voicelink process
type Metrics struct {
	// Transport metrics
	FramesSent       prometheus.Counter
	BytesSent        prometheus.Counter
	FramesDropped    prometheus.Counter
	FramesReceived   *prometheus.CounterVec
	BytesReceived    prometheus.Counter
	MalformedControl prometheus.Counter

	// Heartbeat metrics
	Disconnects  prometheus.Counter
	Reconnects   prometheus.Counter
	HeartbeatRTT prometheus.Histogram

	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsStarted prometheus.Counter
	SessionErrors   prometheus.Counter
	SessionDuration prometheus.Histogram
	PlaybackDropped prometheus.Counter
}

// New creates all metrics and registers them on reg.
// Pass prometheus.DefaultRegisterer to serve them from promhttp.Handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_frames_sent_total",
			Help: "Total number of binary audio frames written to the socket",
		}),
		BytesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_bytes_sent_total",
			Help: "Total number of audio bytes written to the socket",
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_frames_dropped_total",
			Help: "Total number of outbound frames dropped while the socket was not open or the queue was full",
		}),
		FramesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicelink_frames_received_total",
			Help: "Total number of inbound messages by kind",
		}, []string{"kind"}),
		BytesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_bytes_received_total",
			Help: "Total number of inbound audio bytes",
		}),
		MalformedControl: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_malformed_control_total",
			Help: "Total number of text messages that failed to parse",
		}),

		Disconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_heartbeat_disconnects_total",
			Help: "Total number of heartbeat disconnect signals",
		}),
		Reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_heartbeat_reconnects_total",
			Help: "Total number of heartbeat reconnect signals",
		}),
		HeartbeatRTT: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicelink_heartbeat_rtt_seconds",
			Help:    "Time between a ping and the following pong",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
		}),

		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "voicelink_active_sessions",
			Help: "Current number of active conversations",
		}),
		SessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_sessions_started_total",
			Help: "Total number of conversations started",
		}),
		SessionErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_session_errors_total",
			Help: "Total number of errors surfaced to session handlers",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicelink_session_duration_seconds",
			Help:    "Duration of conversations in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),
		PlaybackDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "voicelink_playback_dropped_total",
			Help: "Total number of received audio blocks that could not be queued for playback",
		}),
	}
}

// FrameSent records an audio frame written to the socket
func (m *Metrics) FrameSent(bytes int) {
	m.FramesSent.Inc()
	m.BytesSent.Add(float64(bytes))
}

// FrameDropped records an outbound frame that was discarded
func (m *Metrics) FrameDropped() {
	m.FramesDropped.Inc()
}

// FrameReceived records an inbound message of the given kind
func (m *Metrics) FrameReceived(kind string, bytes int) {
	m.FramesReceived.WithLabelValues(kind).Inc()
	if kind == "audio" {
		m.BytesReceived.Add(float64(bytes))
	}
}

// MalformedControlReceived records a text message that failed to parse
func (m *Metrics) MalformedControlReceived() {
	m.MalformedControl.Inc()
}

// HeartbeatDisconnect records a disconnect signal
func (m *Metrics) HeartbeatDisconnect() {
	m.Disconnects.Inc()
}

// HeartbeatReconnect records a reconnect signal
func (m *Metrics) HeartbeatReconnect() {
	m.Reconnects.Inc()
}

// HeartbeatRoundTrip records a ping/pong round trip
func (m *Metrics) HeartbeatRoundTrip(d time.Duration) {
	m.HeartbeatRTT.Observe(d.Seconds())
}

// SessionStarted records a conversation becoming active
func (m *Metrics) SessionStarted() {
	m.SessionsStarted.Inc()
	m.ActiveSessions.Inc()
}

// SessionEnded records the end of an active conversation
func (m *Metrics) SessionEnded(d time.Duration) {
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(d.Seconds())
}

// SessionError records an error surfaced to handlers
func (m *Metrics) SessionError() {
	m.SessionErrors.Inc()
}

// PlaybackBlockDropped records a received block that playback rejected
func (m *Metrics) PlaybackBlockDropped() {
	m.PlaybackDropped.Inc()
}
