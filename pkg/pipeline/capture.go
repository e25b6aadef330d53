// ABOUTME: Capture strategies for microphone audio
// ABOUTME: Encode each device block and forward it to the transport
package pipeline

import (
	"sync/atomic"

	"github.com/mokvoice/voicelink-go/pkg/audio/encode"
	"github.com/sirupsen/logrus"
)

// Sender accepts encoded blocks. It must not block and may drop.
type Sender interface {
	Send(block []byte)
}

// CaptureStrategy consumes one captured block per device callback
type CaptureStrategy interface {
	Capture(in []float32)

	// Blocks returns the number of blocks handed to the sender
	Blocks() uint64
}

// LowLatencyCapture encodes and sends on every quantum callback
type LowLatencyCapture struct {
	enc    encode.Encoder
	sender Sender
	log    *logrus.Entry
	blocks atomic.Uint64
}

// NewLowLatencyCapture creates a capture strategy with no queuing
func NewLowLatencyCapture(enc encode.Encoder, sender Sender, log *logrus.Entry) *LowLatencyCapture {
	return &LowLatencyCapture{enc: enc, sender: sender, log: log}
}

// Capture encodes in and sends it immediately
func (c *LowLatencyCapture) Capture(in []float32) {
	if encodeAndSend(c.enc, c.sender, in, c.log) {
		c.blocks.Add(1)
	}
}

// Blocks returns the number of blocks sent
func (c *LowLatencyCapture) Blocks() uint64 {
	return c.blocks.Load()
}

// BufferedCapture encodes and sends each fixed-size block while gate is set
type BufferedCapture struct {
	enc    encode.Encoder
	sender Sender
	gate   *atomic.Bool
	log    *logrus.Entry
	blocks atomic.Uint64
}

// NewBufferedCapture creates a capture strategy gated by the calling flag
func NewBufferedCapture(enc encode.Encoder, sender Sender, gate *atomic.Bool, log *logrus.Entry) *BufferedCapture {
	return &BufferedCapture{enc: enc, sender: sender, gate: gate, log: log}
}

// Capture encodes in and sends it if the session is calling
func (c *BufferedCapture) Capture(in []float32) {
	if !c.gate.Load() {
		return
	}
	if encodeAndSend(c.enc, c.sender, in, c.log) {
		c.blocks.Add(1)
	}
}

// Blocks returns the number of blocks sent
func (c *BufferedCapture) Blocks() uint64 {
	return c.blocks.Load()
}

func encodeAndSend(enc encode.Encoder, sender Sender, in []float32, log *logrus.Entry) bool {
	data, err := enc.Encode(in)
	if err != nil {
		log.WithError(err).Warn("Failed to encode captured block")
		return false
	}
	sender.Send(data)
	return true
}
