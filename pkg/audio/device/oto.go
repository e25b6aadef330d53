// ABOUTME: Oto-based buffered playback engine
// ABOUTME: Runs the pipeline on fixed 2048-sample blocks pulled by the player
package device

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/mokvoice/voicelink-go/pkg/audio"
	"github.com/mokvoice/voicelink-go/pkg/pipeline"
	"github.com/sirupsen/logrus"
)

// oto allows one context per process; it is created on first use and kept
var (
	otoOnce       sync.Once
	otoCtx        *oto.Context
	otoErr        error
	otoSampleRate int
)

func sharedOtoContext(sampleRate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: audio.PlaybackChannels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   blockDuration(sampleRate),
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-readyChan

		otoCtx = ctx
		otoSampleRate = sampleRate
	})

	if otoErr != nil {
		return nil, otoErr
	}
	if otoSampleRate != sampleRate {
		return nil, fmt.Errorf("oto context already running at %dHz, cannot open %dHz", otoSampleRate, sampleRate)
	}
	return otoCtx, nil
}

func blockDuration(sampleRate int) time.Duration {
	return time.Duration(pipeline.BufferedBlockSize) * time.Second / time.Duration(sampleRate)
}

// BlockEngine feeds an oto player from a pipeline running fixed blocks
type BlockEngine struct {
	sampleRate int
	reader     *blockReader
	log        *logrus.Entry

	mu     sync.Mutex
	player *oto.Player
}

// NewBlockEngine prepares a block engine; the device opens on Start
func NewBlockEngine(sampleRate int, in audio.InputStream, proc Processor, log *logrus.Entry) (*BlockEngine, error) {
	return &BlockEngine{
		sampleRate: sampleRate,
		reader:     newBlockReader(pipeline.BufferedBlockSize, &inputReader{in: in, log: log}, proc),
		log:        log,
	}, nil
}

// Start opens the output and begins pulling blocks
func (e *BlockEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.player != nil {
		return nil
	}

	ctx, err := sharedOtoContext(e.sampleRate)
	if err != nil {
		return err
	}
	if err := ctx.Resume(); err != nil {
		return fmt.Errorf("failed to resume oto context: %w", err)
	}

	e.player = ctx.NewPlayer(e.reader)
	e.player.Play()

	e.log.Infof("Buffered engine started: %d-sample blocks at %dHz", pipeline.BufferedBlockSize, e.sampleRate)
	return nil
}

// Close stops pulling blocks
func (e *BlockEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reader.close()
	if e.player != nil {
		e.player.Pause()
		if err := e.player.Err(); err != nil {
			e.log.Debugf("Player error on close: %v", err)
		}
		e.player = nil
	}
	return nil
}

// blockReader produces interleaved stereo float32 bytes, running the
// processor once per fixed-size block
type blockReader struct {
	blockSize int
	input     *inputReader
	proc      Processor

	in      []float32
	out     []float32
	stereo  []float32
	pending []byte
	buf     []byte

	mu     sync.Mutex
	closed bool
	blocks int
}

func newBlockReader(blockSize int, input *inputReader, proc Processor) *blockReader {
	return &blockReader{
		blockSize: blockSize,
		input:     input,
		proc:      proc,
		in:        make([]float32, blockSize),
		out:       make([]float32, blockSize),
		stereo:    make([]float32, blockSize*audio.PlaybackChannels),
		buf:       make([]byte, blockSize*audio.PlaybackChannels*4),
	}
}

// Read implements io.Reader for the oto player
func (r *blockReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, io.EOF
	}

	n := 0
	for n < len(p) {
		if len(r.pending) == 0 {
			r.runBlock()
		}
		c := copy(p[n:], r.pending)
		r.pending = r.pending[c:]
		n += c
	}
	return n, nil
}

func (r *blockReader) runBlock() {
	r.input.read(r.in)
	r.proc.Process(r.in, r.out)
	audio.DuplicateToStereo(r.stereo, r.out)
	float32ToBytes(r.buf, r.stereo)
	r.pending = r.buf
	r.blocks++
}

func (r *blockReader) close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}
