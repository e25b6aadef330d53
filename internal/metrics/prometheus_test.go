// ABOUTME: Tests for Prometheus metrics
// ABOUTME: Verifies registration and recorder methods against a private registry
package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, lp := range m.GetLabel() {
				name += "/" + lp.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				values[name] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[name] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				values[name] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return values
}

func TestNewRegistersOnPrivateRegistry(t *testing.T) {
	// Two instances must not collide when each has its own registry
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}

func TestTransportRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.FrameSent(256)
	m.FrameSent(256)
	m.FrameDropped()
	m.FrameReceived("audio", 100)
	m.FrameReceived("update", 40)
	m.FrameReceived("audio", 50)
	m.MalformedControlReceived()

	values := gather(t, reg)

	tests := []struct {
		name string
		want float64
	}{
		{"voicelink_frames_sent_total", 2},
		{"voicelink_bytes_sent_total", 512},
		{"voicelink_frames_dropped_total", 1},
		{"voicelink_frames_received_total/audio", 2},
		{"voicelink_frames_received_total/update", 1},
		{"voicelink_bytes_received_total", 150},
		{"voicelink_malformed_control_total", 1},
	}

	for _, tt := range tests {
		if got := values[tt.name]; got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}

func TestSessionRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SessionStarted()
	m.HeartbeatDisconnect()
	m.HeartbeatReconnect()
	m.HeartbeatRoundTrip(40 * time.Millisecond)
	m.SessionError()
	m.PlaybackBlockDropped()

	values := gather(t, reg)
	if values["voicelink_active_sessions"] != 1 {
		t.Errorf("expected 1 active session, got %v", values["voicelink_active_sessions"])
	}

	m.SessionEnded(3 * time.Second)

	values = gather(t, reg)
	tests := []struct {
		name string
		want float64
	}{
		{"voicelink_active_sessions", 0},
		{"voicelink_sessions_started_total", 1},
		{"voicelink_session_duration_seconds", 1},
		{"voicelink_heartbeat_disconnects_total", 1},
		{"voicelink_heartbeat_reconnects_total", 1},
		{"voicelink_heartbeat_rtt_seconds", 1},
		{"voicelink_session_errors_total", 1},
		{"voicelink_playback_dropped_total", 1},
	}

	for _, tt := range tests {
		if got := values[tt.name]; got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}
}
