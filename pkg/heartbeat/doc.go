// ABOUTME: Connection liveness package
// ABOUTME: Provides the two-speed ping/pong heartbeat monitor
// Package heartbeat tracks connection liveness with a ping/pong exchange.
//
// A Monitor pings at a slow cadence while the peer answers. When a pong is
// overdue it switches to a fast probing cadence, and if probing also goes
// unanswered it reports a disconnect. The next pong reports a reconnect and
// restores the slow cadence.
//
// Example:
//
//	mon := heartbeat.New(heartbeat.DefaultConfig(), handler)
//	mon.Start()
//	// on every "pong" from the peer
//	mon.Pong()
//	// on close
//	mon.Stop()
package heartbeat
