// ABOUTME: Version and product identification
// ABOUTME: Reported in logs and the User-Agent of speech service connections
package version

const (
	// Version is the release version
	Version = "0.3.0"

	// Product is the product name
	Product = "voicelink"

	// Manufacturer is the publisher name
	Manufacturer = "Mok Voice"
)

// UserAgent returns the User-Agent sent when dialing a speech service
func UserAgent() string {
	return Product + "/" + Version
}
