// ABOUTME: MP3 file input stream
// ABOUTME: Decodes an MP3 file to mono float samples at the session rate
package decode

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
	"github.com/mokvoice/voicelink-go/pkg/audio"
	"github.com/mokvoice/voicelink-go/pkg/audio/resample"
)

// mp3 output is always 16-bit little-endian stereo
const (
	mp3Channels   = 2
	mp3FrameBytes = mp3Channels * audio.BytesPerSample
	mp3ReadBytes  = 4096 * mp3FrameBytes
)

// MP3Stream plays an MP3 file as if it were a microphone
type MP3Stream struct {
	src       io.ReadCloser
	decoder   *mp3.Decoder
	resampler *resample.Resampler

	raw     []byte
	carry   int
	stereo  []float32
	mono    []float32
	pending []float32
	eof     bool
}

// OpenMP3 opens path and returns a stream resampled to sampleRate
func OpenMP3(path string, sampleRate int) (*MP3Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mp3 input: %w", err)
	}

	s, err := NewMP3Stream(f, sampleRate)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// NewMP3Stream decodes MP3 data from r. The stream owns r and closes it.
func NewMP3Stream(r io.ReadCloser, sampleRate int) (*MP3Stream, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	return &MP3Stream{
		src:       r,
		decoder:   decoder,
		resampler: resample.New(decoder.SampleRate(), sampleRate),
		raw:       make([]byte, mp3ReadBytes),
	}, nil
}

// SourceRate returns the sample rate of the encoded file
func (s *MP3Stream) SourceRate() int {
	return s.decoder.SampleRate()
}

// Read fills samples with decoded audio. It returns io.EOF once the file is
// exhausted and every buffered sample has been delivered.
func (s *MP3Stream) Read(samples []float32) (int, error) {
	n := 0
	for n < len(samples) {
		if len(s.pending) > 0 {
			c := copy(samples[n:], s.pending)
			s.pending = s.pending[c:]
			n += c
			continue
		}
		if s.eof {
			break
		}
		if err := s.fill(); err != nil {
			return n, err
		}
	}

	if n == 0 && s.eof {
		return 0, io.EOF
	}
	return n, nil
}

// fill decodes the next chunk of the file into pending
func (s *MP3Stream) fill() error {
	read, err := s.decoder.Read(s.raw[s.carry:])
	if err == io.EOF {
		s.eof = true
	} else if err != nil {
		return fmt.Errorf("mp3 decode error: %w", err)
	}

	total := s.carry + read
	whole := total - total%mp3FrameBytes
	count := whole / audio.BytesPerSample

	if cap(s.stereo) < count {
		s.stereo = make([]float32, count)
	}
	stereo := s.stereo[:count]
	for i := range stereo {
		stereo[i] = SampleFromInt16(int16(binary.LittleEndian.Uint16(s.raw[i*2:])))
	}

	// Keep a partial frame for the next read
	s.carry = copy(s.raw, s.raw[whole:total])

	frames := count / mp3Channels
	if cap(s.mono) < frames {
		s.mono = make([]float32, frames)
	}
	mono := s.mono[:frames]
	audio.Downmix(mono, stereo, mp3Channels)

	if s.resampler.Passthrough() {
		s.pending = mono
		return nil
	}

	out := make([]float32, s.resampler.OutputSamplesNeeded(len(mono)))
	produced := s.resampler.Resample(mono, out)
	s.pending = out[:produced]
	return nil
}

// Close releases the underlying file
func (s *MP3Stream) Close() error {
	return s.src.Close()
}
