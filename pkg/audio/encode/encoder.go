// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for wire audio encoders
package encode

// Encoder encodes normalized float samples to wire bytes
type Encoder interface {
	// Encode converts samples to encoded audio data
	Encode(samples []float32) ([]byte, error)

	// Close releases encoder resources
	Close() error
}
