// ABOUTME: Session error values
// ABOUTME: Re-exports device and transport errors callers check against
package voicelink

import (
	"errors"

	"github.com/mokvoice/voicelink-go/pkg/audio/device"
	"github.com/mokvoice/voicelink-go/pkg/protocol"
)

var (
	// ErrAlreadyActive is returned when a conversation is starting or running
	ErrAlreadyActive = errors.New("conversation already active")

	// ErrStopped is returned by StartConversation when StopConversation
	// interrupts the start
	ErrStopped = errors.New("conversation stopped while starting")

	// ErrMissingCallID is returned when a config has no call identifier
	ErrMissingCallID = errors.New("call id is required")

	// ErrPermissionDenied is returned when the microphone cannot be acquired
	ErrPermissionDenied = device.ErrPermissionDenied
)

// SocketError is a transport fault surfaced through OnError
type SocketError = protocol.SocketError
