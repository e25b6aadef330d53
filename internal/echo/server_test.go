// ABOUTME: Tests for the echo speech service
// ABOUTME: Tests heartbeats, echo, updates and call routing over httptest
package echo

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mokvoice/voicelink-go/pkg/protocol"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func startServer(t *testing.T, config Config) (*Server, string) {
	t.Helper()
	config.Logger = quietLogger()
	s := New(config)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func TestPingPong(t *testing.T) {
	_, base := startServer(t, Config{})
	conn := dial(t, base+"/call_1")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msgType != websocket.TextMessage || string(data) != "pong" {
		t.Errorf("expected pong, got %d %q", msgType, data)
	}
}

func TestAudioIsEchoed(t *testing.T) {
	_, base := startServer(t, Config{Delay: 10 * time.Millisecond})
	conn := dial(t, base+"/call_1?enable_update=true")

	frames := [][]byte{{0x01, 0x02}, {0x03, 0x04}}
	for _, f := range frames {
		conn.WriteMessage(websocket.BinaryMessage, f)
	}

	for i, want := range frames {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if msgType != websocket.BinaryMessage || !bytes.Equal(data, want) {
			t.Errorf("frame %d: expected %v, got %d %v", i, want, msgType, data)
		}
	}
}

func TestUpdatesAreSent(t *testing.T) {
	_, base := startServer(t, Config{UpdateEvery: 2})
	conn := dial(t, base+"/call_1")

	conn.WriteMessage(websocket.BinaryMessage, []byte{0, 0})
	conn.WriteMessage(websocket.BinaryMessage, []byte{0, 0})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if msgType == websocket.TextMessage {
			if !strings.Contains(string(data), `"echo_progress"`) || !strings.Contains(string(data), `"frames":2`) {
				t.Errorf("unexpected update %s", data)
			}
			return
		}
	}
}

func TestMissingCallID(t *testing.T) {
	_, base := startServer(t, Config{})

	_, resp, err := websocket.DefaultDialer.Dial(base+"/", nil)
	if err == nil {
		t.Fatal("expected dial to fail without a call id")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 response, got %v", resp)
	}
}

func TestDuplicateCallRejected(t *testing.T) {
	s, base := startServer(t, Config{})
	first := dial(t, base+"/call_1")

	// Wait for the first call to register
	first.WriteMessage(websocket.TextMessage, []byte("ping"))
	first.ReadMessage()
	if s.Calls() != 1 {
		t.Fatalf("expected 1 call, got %d", s.Calls())
	}

	second := dial(t, base+"/call_1")
	_, _, err := second.ReadMessage()
	if !websocket.IsCloseError(err, CloseDuplicateCall) {
		t.Errorf("expected duplicate call close, got %v", err)
	}
}

// echoHandler records transport events from a real client
type echoHandler struct {
	open  chan struct{}
	audio chan []byte
}

func (h *echoHandler) OnOpen()                    { close(h.open) }
func (h *echoHandler) OnAudio(data []byte)        { h.audio <- data }
func (h *echoHandler) OnUpdate(protocol.Update)   {}
func (h *echoHandler) OnClear()                   {}
func (h *echoHandler) OnDisconnect()              {}
func (h *echoHandler) OnReconnect()               {}
func (h *echoHandler) OnClose(code int, _ string) {}
func (h *echoHandler) OnError(error)              {}

func TestTransportClientRoundTrip(t *testing.T) {
	_, base := startServer(t, Config{})

	h := &echoHandler{open: make(chan struct{}), audio: make(chan []byte, 4)}
	client := protocol.NewClient(protocol.Config{
		Endpoint:     base,
		CallID:       "call_rt",
		EnableUpdate: true,
		Logger:       quietLogger(),
	}, h)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer client.Close()

	client.Send([]byte{0x10, 0x20, 0x30, 0x40})

	select {
	case data := <-h.audio:
		if !bytes.Equal(data, []byte{0x10, 0x20, 0x30, 0x40}) {
			t.Errorf("unexpected echo %v", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}
