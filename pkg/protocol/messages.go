// ABOUTME: Wire message definitions for the speech service socket
// ABOUTME: Control strings, update payloads, URL construction and error types
package protocol

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultEndpoint is used when no custom endpoint is configured
const DefaultEndpoint = "wss://api.retellai.com"

// Text control frames
const (
	MessagePing  = "ping"
	MessagePong  = "pong"
	MessageClear = "clear"
)

// Close codes reported through Handler.OnClose
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006
)

// Update is a structured control object pushed by the speech service
type Update map[string]any

// Type returns the "type" field of the update, if present
func (u Update) Type() string {
	s, _ := u["type"].(string)
	return s
}

var (
	// ErrMalformedControl marks a text frame that is not valid JSON
	ErrMalformedControl = errors.New("malformed control message")

	// ErrAlreadyConnected is returned by Connect on a client that was already opened
	ErrAlreadyConnected = errors.New("client already connected")
)

// SocketError is a transport level failure on the socket
type SocketError struct {
	Op  string // dial, read or write
	Err error
}

func (e *SocketError) Error() string {
	return fmt.Sprintf("socket %s: %v", e.Op, e.Err)
}

func (e *SocketError) Unwrap() error {
	return e.Err
}

// BuildURL returns the connection target for a call:
// <endpoint>/<callID>?enable_update=true&template_id=<templateID>
func BuildURL(endpoint, callID, templateID string, enableUpdate bool) (string, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if callID == "" {
		return "", fmt.Errorf("call id is required")
	}

	u, err := url.Parse(strings.TrimSuffix(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid endpoint %q: unsupported scheme %q", endpoint, u.Scheme)
	}

	u.Path = u.Path + "/" + callID
	u.RawPath = ""

	q := u.Query()
	if enableUpdate {
		q.Set("enable_update", "true")
	}
	if templateID != "" {
		q.Set("template_id", templateID)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}
