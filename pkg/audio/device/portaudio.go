//go:build portaudio

// ABOUTME: PortAudio microphone implementation
// ABOUTME: Cross-platform capture using PortAudio blocking reads
package device

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/mokvoice/voicelink-go/pkg/audio"
	"github.com/sirupsen/logrus"
)

const portAudioFrames = 512

// PortAudioMicrophone captures mono float samples through PortAudio
type PortAudioMicrophone struct {
	stream *portaudio.Stream
	buffer []float32
	ring   *RingBuffer
	log    *logrus.Entry

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewPortAudioMicrophone opens the default input at sampleRate
func NewPortAudioMicrophone(sampleRate int, log *logrus.Entry) (audio.InputStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	buffer := make([]float32, portAudioFrames)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buffer), buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start stream: %w", err)
	}

	m := &PortAudioMicrophone{
		stream: stream,
		buffer: buffer,
		ring:   NewRingBuffer(sampleRate * micBufferMillis / 1000),
		log:    log,
		done:   make(chan struct{}),
	}
	go m.capture()

	log.Infof("Microphone opened: %dHz mono (portaudio)", sampleRate)
	return m, nil
}

func (m *PortAudioMicrophone) capture() {
	defer close(m.done)
	for {
		if err := m.stream.Read(); err != nil {
			m.mu.Lock()
			closed := m.closed
			m.mu.Unlock()
			if !closed {
				m.log.WithError(err).Warn("PortAudio read failed")
			}
			return
		}
		m.ring.Write(m.buffer)
	}
}

// Read returns buffered microphone samples, zero-filling on underrun
func (m *PortAudioMicrophone) Read(samples []float32) (int, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return 0, io.EOF
	}

	m.ring.Read(samples)
	return len(samples), nil
}

// Close stops the stream and terminates PortAudio
func (m *PortAudioMicrophone) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	var err error
	if stopErr := m.stream.Stop(); stopErr != nil {
		err = stopErr
	}
	select {
	case <-m.done:
	case <-time.After(time.Second):
		m.log.Warn("PortAudio capture did not stop in time")
	}
	if closeErr := m.stream.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if termErr := portaudio.Terminate(); termErr != nil && err == nil {
		err = termErr
	}
	return err
}
