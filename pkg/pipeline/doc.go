// ABOUTME: Capture and playback pipeline package
// ABOUTME: Bridges device callbacks to the wire codec and the transport
// Package pipeline moves audio between the device callback and the socket.
//
// Two delivery strategies share one codec and one queue discipline:
//   - LowLatency: driven by the device's rendering quantum. Received blocks
//     are handed to the callback through a channel and only the callback
//     touches the playback queue.
//   - Buffered: driven by fixed 2048-sample blocks. The playback queue is
//     guarded by a mutex and capture is gated by the session's calling flag.
//
// Example:
//
//	p, err := pipeline.New(pipeline.Config{Strategy: pipeline.StrategyBuffered, Sender: client, Gate: &calling})
//	// from the device callback
//	p.Process(in, out)
//	// from the transport
//	p.Playback().Enqueue(pcm)
package pipeline
