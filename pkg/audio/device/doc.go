// ABOUTME: Audio device package
// ABOUTME: Microphone inputs and the two realtime playback engines
// Package device connects voicelink pipelines to real audio hardware.
//
// Inputs:
//   - Microphone: malgo (miniaudio) capture into a ring buffer
//   - PortAudioMicrophone: PortAudio capture (build with -tags portaudio)
//
// Engines:
//   - QuantumEngine: malgo playback device; the pipeline runs once per
//     device period (the rendering quantum)
//   - BlockEngine: oto player pulling fixed 2048-sample blocks
//
// Host bundles these behind the capability interface used by sessions.
//
// Example:
//
//	host := device.NewHost(device.HostConfig{})
//	mic, err := host.AcquireInput(24000)
//	engine, err := host.OpenEngine(host.Probe(), 24000, mic, pipe)
//	err = engine.Start()
package device
