// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for wire audio decoders
package decode

// Decoder decodes wire audio to normalized float samples
type Decoder interface {
	// Decode converts encoded audio data to samples
	Decode(data []byte) ([]float32, error)

	// Close releases decoder resources
	Close() error
}
