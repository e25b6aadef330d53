// ABOUTME: Audio encoder package for the wire PCM format
// ABOUTME: Provides Encoder interface and the 16-bit PCM implementation
// Package encode converts captured float samples to wire bytes.
//
// Supports: mono 16-bit signed little-endian PCM.
//
// Samples are multiplied by 32768 and truncated. Values outside [-1, 1]
// wrap around the int16 range instead of clamping.
//
// Example:
//
//	encoder, err := encode.NewPCM(audio.WireFormat(24000))
//	data, err := encoder.Encode(samples)
package encode
