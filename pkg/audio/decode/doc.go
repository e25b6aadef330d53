// ABOUTME: Audio decoder package for wire PCM and file inputs
// ABOUTME: Provides Decoder interface, the 16-bit PCM decoder and MP3 input streams
// Package decode converts audio bytes to normalized float samples.
//
// Supports: mono 16-bit signed little-endian PCM from the socket, and MP3
// files used as a custom microphone input.
//
// PCM decoding divides each int16 by 32768, producing values in [-1, 1).
//
// Example:
//
//	decoder, err := decode.NewPCM(audio.WireFormat(24000))
//	samples, err := decoder.Decode(audioData)
package decode
