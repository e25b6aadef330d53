//go:build !portaudio

// ABOUTME: PortAudio stub when library not available
// ABOUTME: Provides compile-time placeholder when PortAudio not installed
package device

import (
	"fmt"

	"github.com/mokvoice/voicelink-go/pkg/audio"
	"github.com/sirupsen/logrus"
)

// NewPortAudioMicrophone reports that PortAudio support is not compiled in
func NewPortAudioMicrophone(sampleRate int, log *logrus.Entry) (audio.InputStream, error) {
	return nil, fmt.Errorf("PortAudio support not enabled (build with -tags portaudio)")
}
