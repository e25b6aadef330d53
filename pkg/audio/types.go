// ABOUTME: Audio type definitions
// ABOUTME: Defines the wire format constants and the input stream contract
package audio

import "io"

const (
	// SampleScale maps a normalized float sample onto the int16 range
	SampleScale = 32768

	// BytesPerSample is the wire width of one mono sample (16-bit PCM)
	BytesPerSample = 2

	// DefaultSampleRate is used when a session does not specify one
	DefaultSampleRate = 24000

	// PlaybackChannels is the channel count used for output devices.
	// The wire is mono; playback duplicates each sample to both channels.
	PlaybackChannels = 2
)

// Format describes the PCM stream exchanged with the speech service
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// WireFormat returns the mono 16-bit format used on the socket
func WireFormat(sampleRate int) Format {
	return Format{
		SampleRate: sampleRate,
		Channels:   1,
		BitDepth:   16,
	}
}

// InputStream is a live source of mono float samples in [-1, 1].
// Read never blocks for long: a device-backed stream returns what it has and
// zero-fills the rest. Close stops the underlying device tracks.
type InputStream interface {
	Read(samples []float32) (int, error)
	io.Closer
}

// Silence is an InputStream that produces zeros forever
type Silence struct{}

// NewSilence creates a silent input stream
func NewSilence() *Silence {
	return &Silence{}
}

// Read fills samples with zeros
func (s *Silence) Read(samples []float32) (int, error) {
	clear(samples)
	return len(samples), nil
}

// Close is a no-op
func (s *Silence) Close() error {
	return nil
}

// DuplicateToStereo writes each mono sample to both channels of an interleaved buffer.
// dst must hold at least 2*len(mono) samples.
func DuplicateToStereo(dst, mono []float32) {
	for i, s := range mono {
		dst[i*2] = s
		dst[i*2+1] = s
	}
}

// Downmix averages interleaved frames into mono samples.
// It returns the number of mono samples written.
func Downmix(dst, interleaved []float32, channels int) int {
	if channels <= 1 {
		return copy(dst, interleaved)
	}

	frames := len(interleaved) / channels
	if frames > len(dst) {
		frames = len(dst)
	}
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += interleaved[i*channels+ch]
		}
		dst[i] = sum / float32(channels)
	}
	return frames
}
