// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines the wire format, the InputStream contract and channel helpers
// Package audio provides the fundamental audio types shared by voicelink.
//
// Audio on the socket is mono 16-bit signed little-endian PCM. Inside the
// process audio travels as float32 samples normalized to [-1, 1]:
//   - InputStream: a live source of mono samples (microphone, file, silence)
//   - Format: describes a PCM stream (sample rate, channels, bit depth)
//
// It also provides channel helpers:
//   - DuplicateToStereo: mono playback to both output channels
//   - Downmix: interleaved multi-channel input to mono
//
// Example:
//
//	in := audio.NewSilence()
//	buf := make([]float32, 480)
//	n, err := in.Read(buf)
package audio
