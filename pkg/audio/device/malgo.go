// ABOUTME: Malgo (miniaudio) capture and low-latency playback
// ABOUTME: Microphone input and the quantum-driven playback engine
package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/mokvoice/voicelink-go/pkg/audio"
	"github.com/sirupsen/logrus"
)

// QuantumFrames is the device period of the low-latency engine
const QuantumFrames = 128

// micBufferMillis is how much captured audio the microphone holds between callbacks
const micBufferMillis = 500

// Microphone captures mono float samples from the default input device
type Microphone struct {
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	ring     *RingBuffer
	log      *logrus.Entry

	mu     sync.Mutex
	closed bool
}

// NewMicrophone opens and starts the default capture device
func NewMicrophone(sampleRate int, log *logrus.Entry) (*Microphone, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	m := &Microphone{
		malgoCtx: ctx,
		ring:     NewRingBuffer(sampleRate * micBufferMillis / 1000),
		log:      log,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	scratch := make([]float32, 0, 1024)
	onSamples := func(pOutputSample, pInputSamples []byte, frameCount uint32) {
		scratch = bytesToFloat32(scratch[:0], pInputSamples[:int(frameCount)*4])
		m.ring.Write(scratch)
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		m.freeContext()
		return nil, wrapDeviceError("failed to initialize capture device", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		m.freeContext()
		return nil, wrapDeviceError("failed to start capture device", err)
	}
	m.device = device

	log.Infof("Microphone opened: %dHz mono (malgo)", sampleRate)
	return m, nil
}

// Read returns buffered microphone samples, zero-filling on underrun
func (m *Microphone) Read(samples []float32) (int, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return 0, io.EOF
	}

	m.ring.Read(samples)
	return len(samples), nil
}

// Close stops the capture device and releases the context
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			m.log.Warnf("Capture device stop error: %v", err)
		}
		m.device.Uninit()
		m.device = nil
	}
	m.freeContext()

	if dropped := m.ring.Dropped(); dropped > 0 {
		m.log.Debugf("Microphone dropped %d samples on overflow", dropped)
	}
	return nil
}

func (m *Microphone) freeContext() {
	if m.malgoCtx == nil {
		return
	}
	if err := m.malgoCtx.Uninit(); err != nil {
		m.log.Warnf("Malgo context uninit error: %v", err)
	}
	m.malgoCtx.Free()
	m.malgoCtx = nil
}

// QuantumEngine runs the pipeline once per playback device period
type QuantumEngine struct {
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	input    *inputReader
	proc     Processor
	log      *logrus.Entry

	in     []float32
	out    []float32
	stereo []float32

	mu      sync.Mutex
	started bool
}

// NewQuantumEngine prepares a stereo float playback device at sampleRate
func NewQuantumEngine(sampleRate int, in audio.InputStream, proc Processor, log *logrus.Entry) (*QuantumEngine, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	e := &QuantumEngine{
		malgoCtx: ctx,
		input:    &inputReader{in: in, log: log},
		proc:     proc,
		log:      log,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = audio.PlaybackChannels
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInFrames = QuantumFrames
	deviceConfig.Alsa.NoMMap = 1

	onSamples := func(pOutputSample, pInputSamples []byte, frameCount uint32) {
		e.render(pOutputSample, int(frameCount))
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		e.freeContext()
		return nil, wrapDeviceError("failed to initialize playback device", err)
	}
	e.device = device

	return e, nil
}

// render is the device callback
func (e *QuantumEngine) render(output []byte, frames int) {
	if cap(e.in) < frames {
		e.in = make([]float32, frames)
		e.out = make([]float32, frames)
		e.stereo = make([]float32, frames*audio.PlaybackChannels)
	}
	in, out, stereo := e.in[:frames], e.out[:frames], e.stereo[:frames*audio.PlaybackChannels]

	e.input.read(in)
	e.proc.Process(in, out)
	audio.DuplicateToStereo(stereo, out)
	float32ToBytes(output, stereo)
}

// Start begins playback callbacks
func (e *QuantumEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.device == nil {
		return fmt.Errorf("engine closed")
	}
	if e.started {
		return nil
	}
	if err := e.device.Start(); err != nil {
		return wrapDeviceError("failed to start playback device", err)
	}
	e.started = true

	e.log.Infof("Low-latency engine started: quantum %d frames", QuantumFrames)
	return nil
}

// Close stops callbacks and releases the device
func (e *QuantumEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.device != nil {
		if err := e.device.Stop(); err != nil {
			e.log.Warnf("Playback device stop error: %v", err)
		}
		e.device.Uninit()
		e.device = nil
	}
	e.freeContext()
	return nil
}

func (e *QuantumEngine) freeContext() {
	if e.malgoCtx == nil {
		return
	}
	if err := e.malgoCtx.Uninit(); err != nil {
		e.log.Warnf("Malgo context uninit error: %v", err)
	}
	e.malgoCtx.Free()
	e.malgoCtx = nil
}

// probeQuantum checks that a malgo context with a playback device can be created
func probeQuantum() error {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	devices, err := ctx.Devices(malgo.Playback)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		return fmt.Errorf("no playback devices")
	}
	return nil
}

func wrapDeviceError(msg string, err error) error {
	if errors.Is(err, malgo.ErrAccessDenied) {
		return fmt.Errorf("%s: %w: %v", msg, ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// bytesToFloat32 appends little-endian float32 samples from src to dst
func bytesToFloat32(dst []float32, src []byte) []float32 {
	for i := 0; i+4 <= len(src); i += 4 {
		dst = append(dst, math.Float32frombits(binary.LittleEndian.Uint32(src[i:])))
	}
	return dst
}

// float32ToBytes writes samples as little-endian float32 into dst
func float32ToBytes(dst []byte, samples []float32) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
}
