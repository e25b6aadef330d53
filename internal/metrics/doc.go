// ABOUTME: Prometheus metrics package
// ABOUTME: Counters and gauges for the transport, heartbeat and sessions
// Package metrics exposes voicelink counters to Prometheus.
//
// Metrics implements the recorder interfaces of pkg/protocol and
// pkg/voicelink so both can report without importing Prometheus.
package metrics
