// ABOUTME: Playback strategies for received audio
// ABOUTME: Channel handoff for the quantum callback, mutex queue for blocks
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mokvoice/voicelink-go/pkg/audio/decode"
)

// ErrPlaybackFull is returned when a received block cannot be handed to the callback
var ErrPlaybackFull = errors.New("playback inbox full")

// PlaybackStrategy queues received audio and renders it into device buffers
type PlaybackStrategy interface {
	// Enqueue decodes a wire block and queues it for playback
	Enqueue(pcm []byte) error

	// Clear drops all queued audio without touching the connection
	Clear()

	// Render fills out from the queue, zero-filling on underrun. It is called
	// only from the device callback.
	Render(out []float32) int

	// Buffered returns the approximate number of queued samples
	Buffered() int
}

type playbackMessage struct {
	epoch uint64
	block []float32
}

// LowLatencyPlayback hands decoded blocks to the device callback over a
// channel. Only Render touches the queue.
type LowLatencyPlayback struct {
	dec   decode.Decoder
	inbox chan playbackMessage
	epoch atomic.Uint64

	// owned by Render
	queue Queue
	seen  uint64

	buffered atomic.Int64
}

// NewLowLatencyPlayback creates a playback strategy with room for inboxSize
// blocks in flight between the transport and the callback
func NewLowLatencyPlayback(dec decode.Decoder, inboxSize int) *LowLatencyPlayback {
	if inboxSize <= 0 {
		inboxSize = 64
	}
	return &LowLatencyPlayback{
		dec:   dec,
		inbox: make(chan playbackMessage, inboxSize),
	}
}

// Enqueue decodes pcm and posts it to the callback
func (p *LowLatencyPlayback) Enqueue(pcm []byte) error {
	samples, err := p.dec.Decode(pcm)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return nil
	}

	select {
	case p.inbox <- playbackMessage{epoch: p.epoch.Load(), block: samples}:
		return nil
	default:
		return fmt.Errorf("%w: %d blocks pending", ErrPlaybackFull, cap(p.inbox))
	}
}

// Clear asks the callback to empty its queue. Blocks enqueued before the
// clear are discarded when they reach the callback.
func (p *LowLatencyPlayback) Clear() {
	p.epoch.Add(1)
}

// Render collects posted blocks and drains the queue into out
func (p *LowLatencyPlayback) Render(out []float32) int {
	p.advance(p.epoch.Load())

collect:
	for {
		select {
		case msg := <-p.inbox:
			// A block posted after a clear we have not seen yet implies that clear
			p.advance(msg.epoch)
			if msg.epoch == p.seen {
				p.queue.Push(msg.block)
			}
		default:
			break collect
		}
	}

	n := p.queue.Drain(out)
	p.buffered.Store(int64(p.queue.Len()))
	return n
}

func (p *LowLatencyPlayback) advance(epoch uint64) {
	if epoch > p.seen {
		p.queue.Clear()
		p.seen = epoch
	}
}

// Buffered returns the queue length seen by the last Render
func (p *LowLatencyPlayback) Buffered() int {
	return int(p.buffered.Load())
}

// BufferedPlayback keeps the queue on the object behind a mutex
type BufferedPlayback struct {
	dec decode.Decoder

	mu    sync.Mutex
	queue Queue
}

// NewBufferedPlayback creates a playback strategy for block callbacks
func NewBufferedPlayback(dec decode.Decoder) *BufferedPlayback {
	return &BufferedPlayback{dec: dec}
}

// Enqueue decodes pcm and appends it to the queue
func (p *BufferedPlayback) Enqueue(pcm []byte) error {
	samples, err := p.dec.Decode(pcm)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.queue.Push(samples)
	p.mu.Unlock()
	return nil
}

// Clear empties the queue
func (p *BufferedPlayback) Clear() {
	p.mu.Lock()
	p.queue.Clear()
	p.mu.Unlock()
}

// Render drains the queue into out
func (p *BufferedPlayback) Render(out []float32) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Drain(out)
}

// Buffered returns the number of queued samples
func (p *BufferedPlayback) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}
