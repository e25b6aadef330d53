// ABOUTME: PCM audio decoder
// ABOUTME: Decodes 16-bit little-endian PCM bytes to float32 samples
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mokvoice/voicelink-go/pkg/audio"
)

// ErrInvalidLength is returned when a PCM payload has an odd byte count
var ErrInvalidLength = errors.New("pcm payload length is not a multiple of 2")

// PCMDecoder decodes mono 16-bit PCM
type PCMDecoder struct{}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16)", format.BitDepth)
	}

	if format.Channels != 1 {
		return nil, fmt.Errorf("unsupported channel count: %d (supported: 1)", format.Channels)
	}

	return &PCMDecoder{}, nil
}

// Decode converts PCM bytes to float32 samples
func (d *PCMDecoder) Decode(data []byte) ([]float32, error) {
	if len(data)%audio.BytesPerSample != 0 {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidLength, len(data))
	}

	samples := make([]float32, len(data)/audio.BytesPerSample)
	PCM16ToFloat32(samples, data)
	return samples, nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}

// PCM16ToFloat32 reads little-endian int16 pairs from src and divides them by 32768.
// dst must hold len(src)/2 samples.
func PCM16ToFloat32(dst []float32, src []byte) {
	for i := range dst {
		sample16 := int16(binary.LittleEndian.Uint16(src[i*2:]))
		dst[i] = SampleFromInt16(sample16)
	}
}

// SampleFromInt16 normalizes an int16 sample to [-1, 1)
func SampleFromInt16(sample int16) float32 {
	return float32(sample) / audio.SampleScale
}
