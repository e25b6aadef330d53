// ABOUTME: Speech service wire protocol package
// ABOUTME: Defines wire messages and the WebSocket transport client
// Package protocol implements the voicelink wire protocol.
//
// One Client owns one WebSocket to the speech service for one call.
// Outbound audio is sent as binary frames of 16-bit little-endian mono PCM.
// Inbound text frames are demultiplexed into heartbeat pongs, clear requests
// and JSON updates; inbound binary frames are delivered as audio.
//
// Example:
//
//	client := protocol.NewClient(protocol.Config{CallID: "call-123"}, handler)
//	err := client.Connect(ctx)
//	client.Send(pcm)
//	client.Close()
package protocol
