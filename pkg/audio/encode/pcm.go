// ABOUTME: PCM audio encoder
// ABOUTME: Encodes float32 samples to 16-bit little-endian PCM bytes
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/mokvoice/voicelink-go/pkg/audio"
)

// PCMEncoder encodes mono 16-bit PCM
type PCMEncoder struct{}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (Encoder, error) {
	if format.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16)", format.BitDepth)
	}

	if format.Channels != 1 {
		return nil, fmt.Errorf("unsupported channel count: %d (supported: 1)", format.Channels)
	}

	return &PCMEncoder{}, nil
}

// Encode converts float32 samples to PCM bytes
func (e *PCMEncoder) Encode(samples []float32) ([]byte, error) {
	output := make([]byte, len(samples)*audio.BytesPerSample)
	Float32ToPCM16(output, samples)
	return output, nil
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}

// Float32ToPCM16 writes each sample scaled by 32768 as int16 little-endian.
// dst must hold 2*len(src) bytes. Out-of-range samples wrap.
func Float32ToPCM16(dst []byte, src []float32) {
	for i, sample := range src {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(SampleToInt16(sample)))
	}
}

// SampleToInt16 scales and truncates toward zero, then wraps into int16
func SampleToInt16(sample float32) int16 {
	return int16(int64(sample * audio.SampleScale))
}
