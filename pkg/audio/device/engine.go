// ABOUTME: Engine and host capability definitions
// ABOUTME: Selects inputs and engines for a session
package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mokvoice/voicelink-go/pkg/audio"
	"github.com/mokvoice/voicelink-go/pkg/pipeline"
	"github.com/sirupsen/logrus"
)

// ErrPermissionDenied is returned when the system refuses device access
var ErrPermissionDenied = errors.New("audio device permission denied")

// Processor is the per-block audio callback. in holds captured mono
// samples and out receives mono playback samples.
type Processor interface {
	Process(in, out []float32)
}

// Engine runs a Processor from a realtime audio clock
type Engine interface {
	Start() error
	Close() error
}

// HostConfig selects device backends
type HostConfig struct {
	InputBackend string // "malgo" (default) or "portaudio"
	Logger       *logrus.Entry
}

// Host is the real device capability for sessions
type Host struct {
	config HostConfig
	log    *logrus.Entry
}

// NewHost creates a host using the system audio devices
func NewHost(config HostConfig) *Host {
	log := config.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Host{
		config: config,
		log:    log.WithField("component", "device"),
	}
}

// AcquireInput opens the default microphone at sampleRate
func (h *Host) AcquireInput(sampleRate int) (audio.InputStream, error) {
	switch h.config.InputBackend {
	case "", "malgo":
		return NewMicrophone(sampleRate, h.log)
	case "portaudio":
		return NewPortAudioMicrophone(sampleRate, h.log)
	default:
		return nil, fmt.Errorf("unknown input backend %q", h.config.InputBackend)
	}
}

// Probe reports the delivery strategy the system supports
func (h *Host) Probe() pipeline.Strategy {
	if err := probeQuantum(); err != nil {
		h.log.Infof("Low-latency playback unavailable, using buffered blocks: %v", err)
		return pipeline.StrategyBuffered
	}
	return pipeline.StrategyLowLatency
}

// OpenEngine creates the engine matching strategy
func (h *Host) OpenEngine(strategy pipeline.Strategy, sampleRate int, in audio.InputStream, proc Processor) (Engine, error) {
	switch strategy {
	case pipeline.StrategyLowLatency:
		return NewQuantumEngine(sampleRate, in, proc, h.log)
	case pipeline.StrategyBuffered:
		return NewBlockEngine(sampleRate, in, proc, h.log)
	default:
		return nil, fmt.Errorf("no engine for strategy %v", strategy)
	}
}

// inputReader reads an input stream from a device callback, zero-filling
// whatever the stream cannot supply
type inputReader struct {
	in   audio.InputStream
	log  *logrus.Entry
	once sync.Once
}

func (r *inputReader) read(buf []float32) {
	n, err := r.in.Read(buf)
	if n < len(buf) {
		clear(buf[n:])
	}
	if err != nil {
		r.once.Do(func() {
			r.log.WithError(err).Warn("Input stream stopped, capturing silence")
		})
	}
}
