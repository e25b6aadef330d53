// ABOUTME: Pipeline composition for one call
// ABOUTME: Selects matching capture and playback strategies around one codec
package pipeline

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/mokvoice/voicelink-go/pkg/audio"
	"github.com/mokvoice/voicelink-go/pkg/audio/decode"
	"github.com/mokvoice/voicelink-go/pkg/audio/encode"
	"github.com/sirupsen/logrus"
)

// BufferedBlockSize is the fixed callback size of the buffered strategy
const BufferedBlockSize = 2048

// Strategy selects how audio is delivered between device and socket
type Strategy int

const (
	// StrategyAuto lets the host capability probe decide
	StrategyAuto Strategy = iota
	StrategyLowLatency
	StrategyBuffered
)

func (s Strategy) String() string {
	switch s {
	case StrategyAuto:
		return "auto"
	case StrategyLowLatency:
		return "low-latency"
	case StrategyBuffered:
		return "buffered"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy parses "auto", "low-latency" or "buffered"
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return StrategyAuto, nil
	case "low-latency", "lowlatency", "worklet":
		return StrategyLowLatency, nil
	case "buffered", "block":
		return StrategyBuffered, nil
	default:
		return StrategyAuto, fmt.Errorf("unknown strategy %q (expected auto, low-latency or buffered)", s)
	}
}

// Config holds pipeline configuration
type Config struct {
	Strategy   Strategy // LowLatency or Buffered; Auto must be resolved first
	SampleRate int
	Sender     Sender
	Gate       *atomic.Bool // calling flag for the buffered strategy
	InboxSize  int          // low-latency handoff depth in blocks
	Logger     *logrus.Entry
}

// Pipeline is the device callback for one call
type Pipeline struct {
	strategy Strategy
	gate     *atomic.Bool
	enc      encode.Encoder
	dec      decode.Decoder
	capture  CaptureStrategy
	playback PlaybackStrategy
	log      *logrus.Entry

	callbacks       atomic.Uint64
	underrunSamples atomic.Uint64
}

// New builds the capture and playback strategies for cfg.Strategy
func New(cfg Config) (*Pipeline, error) {
	if cfg.Sender == nil {
		return nil, fmt.Errorf("pipeline requires a sender")
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "pipeline")

	format := audio.WireFormat(cfg.SampleRate)
	enc, err := encode.NewPCM(format)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	dec, err := decode.NewPCM(format)
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	p := &Pipeline{
		strategy: cfg.Strategy,
		gate:     cfg.Gate,
		enc:      enc,
		dec:      dec,
		log:      log,
	}

	switch cfg.Strategy {
	case StrategyLowLatency:
		p.capture = NewLowLatencyCapture(enc, cfg.Sender, log)
		p.playback = NewLowLatencyPlayback(dec, cfg.InboxSize)
	case StrategyBuffered:
		if cfg.Gate == nil {
			return nil, fmt.Errorf("buffered strategy requires a calling gate")
		}
		p.capture = NewBufferedCapture(enc, cfg.Sender, cfg.Gate, log)
		p.playback = NewBufferedPlayback(dec)
	default:
		return nil, fmt.Errorf("unresolved strategy %v", cfg.Strategy)
	}

	log.Debugf("Pipeline ready: strategy=%v, rate=%d", cfg.Strategy, cfg.SampleRate)
	return p, nil
}

// Process runs one device callback: in holds captured mono samples and out
// receives mono playback samples of the same block
func (p *Pipeline) Process(in, out []float32) {
	p.callbacks.Add(1)

	if p.strategy == StrategyBuffered && !p.gate.Load() {
		clear(out)
		return
	}

	p.capture.Capture(in)

	n := p.playback.Render(out)
	if n < len(out) {
		p.underrunSamples.Add(uint64(len(out) - n))
	}
}

// Strategy returns the delivery strategy in use
func (p *Pipeline) Strategy() Strategy {
	return p.strategy
}

// Capture returns the capture strategy
func (p *Pipeline) Capture() CaptureStrategy {
	return p.capture
}

// Playback returns the playback strategy
func (p *Pipeline) Playback() PlaybackStrategy {
	return p.playback
}

// Callbacks returns the number of device callbacks processed
func (p *Pipeline) Callbacks() uint64 {
	return p.callbacks.Load()
}

// UnderrunSamples returns the number of silent samples emitted for lack of audio
func (p *Pipeline) UnderrunSamples() uint64 {
	return p.underrunSamples.Load()
}

// CapturedBlocks returns the number of blocks encoded and handed to the sender
func (p *Pipeline) CapturedBlocks() uint64 {
	return p.capture.Blocks()
}

// Close releases the codec
func (p *Pipeline) Close() error {
	if err := p.enc.Close(); err != nil {
		return err
	}
	return p.dec.Close()
}
