// ABOUTME: WebSocket transport client for the speech service
// ABOUTME: Handles connection, heartbeat, inbound demux and outbound audio
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mokvoice/voicelink-go/pkg/heartbeat"
	"github.com/sirupsen/logrus"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultSendQueue        = 256
)

// Config holds client configuration
type Config struct {
	Endpoint     string // base URL, DefaultEndpoint when empty
	CallID       string
	TemplateID   string
	EnableUpdate bool

	Heartbeat        heartbeat.Config
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	SendQueue        int // outbound frames buffered for the write loop
	Header           http.Header

	Logger  *logrus.Entry
	Metrics Recorder
}

// Handler receives transport events. Audio, update, clear and remote close
// events come from the read goroutine in socket order. OnDisconnect comes from
// a heartbeat timer. A handler may call Client.Close from any event.
type Handler interface {
	OnOpen()
	OnAudio(data []byte)
	OnUpdate(update Update)
	OnClear()
	OnDisconnect()
	OnReconnect()
	OnClose(code int, reason string)
	OnError(err error)
}

// Recorder receives transport counters
type Recorder interface {
	FrameSent(bytes int)
	FrameDropped()
	FrameReceived(kind string, bytes int)
	MalformedControlReceived()
	HeartbeatDisconnect()
	HeartbeatReconnect()
	HeartbeatRoundTrip(d time.Duration)
}

type outbound struct {
	msgType int
	data    []byte
}

// Client is the transport channel for one call
type Client struct {
	config  Config
	handler Handler
	log     *logrus.Entry
	metrics Recorder

	mu      sync.Mutex
	conn    *websocket.Conn
	monitor *heartbeat.Monitor
	dialed  bool

	open   atomic.Bool
	closed atomic.Bool
	sendCh chan outbound
	done   chan struct{}
}

// NewClient creates a client. No connection is made until Connect.
func NewClient(config Config, handler Handler) *Client {
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = defaultHandshakeTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaultWriteTimeout
	}
	if config.SendQueue <= 0 {
		config.SendQueue = defaultSendQueue
	}

	log := config.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "transport")

	metrics := config.Metrics
	if metrics == nil {
		metrics = nopRecorder{}
	}

	return &Client{
		config:  config,
		handler: handler,
		log:     log,
		metrics: metrics,
		sendCh:  make(chan outbound, config.SendQueue),
		done:    make(chan struct{}),
	}
}

// Connect dials the speech service, emits OnOpen and starts the heartbeat
func (c *Client) Connect(ctx context.Context) error {
	target, err := BuildURL(c.config.Endpoint, c.config.CallID, c.config.TemplateID, c.config.EnableUpdate)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.dialed {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.dialed = true
	c.mu.Unlock()

	c.log.Infof("Connecting to %s", target)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.config.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, target, c.config.Header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed: %w (status %d)", &SocketError{Op: "dial", Err: err}, resp.StatusCode)
		}
		return fmt.Errorf("dial failed: %w", &SocketError{Op: "dial", Err: err})
	}

	monitor := heartbeat.New(c.config.Heartbeat, pulse{c})

	c.mu.Lock()
	c.conn = conn
	c.monitor = monitor
	c.mu.Unlock()
	c.open.Store(true)

	c.log.Info("Connection open")
	c.handler.OnOpen()

	monitor.Start()
	go c.writeLoop()
	go c.readLoop()

	return nil
}

// Send queues a binary audio frame. Frames sent while the socket is not
// open, or while the outbound queue is full, are dropped.
func (c *Client) Send(block []byte) {
	c.enqueue(websocket.BinaryMessage, block)
}

func (c *Client) enqueue(msgType int, data []byte) {
	if !c.open.Load() {
		if msgType == websocket.BinaryMessage {
			c.metrics.FrameDropped()
		}
		return
	}

	select {
	case c.sendCh <- outbound{msgType: msgType, data: data}:
	default:
		c.metrics.FrameDropped()
		c.log.Debug("Send queue full, dropping frame")
	}
}

// Close sends a close frame and shuts the socket down. It emits
// OnClose(1000, "") once; later calls do nothing.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.shutdown()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	deadline := time.Now().Add(c.config.WriteTimeout)
	if werr := conn.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		c.log.Debugf("Failed to send close frame: %v", werr)
	}
	err := conn.Close()

	c.log.Info("Connection closed")
	c.handler.OnClose(CloseNormal, "")
	return err
}

// IsOpen reports whether frames can currently be sent
func (c *Client) IsOpen() bool {
	return c.open.Load()
}

// Heartbeat returns the liveness state of the connection
func (c *Client) Heartbeat() heartbeat.State {
	c.mu.Lock()
	monitor := c.monitor
	c.mu.Unlock()

	if monitor == nil {
		return heartbeat.StateStopped
	}
	return monitor.State()
}

// shutdown stops the heartbeat and the write loop
func (c *Client) shutdown() {
	c.open.Store(false)

	c.mu.Lock()
	monitor := c.monitor
	c.mu.Unlock()
	if monitor != nil {
		monitor.Stop()
	}
	close(c.done)
}

// fail terminates the connection after a read or write error
func (c *Client) fail(op string, err error) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.shutdown()
	c.conn.Close()

	// A dropped TCP connection surfaces as a 1006 close error; only a real
	// close frame from the peer is a clean close
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
		c.log.Infof("Connection closed by peer: %d %s", closeErr.Code, closeErr.Text)
		c.handler.OnClose(closeErr.Code, closeErr.Text)
		return
	}

	c.log.WithError(err).Warnf("Socket %s failed", op)
	c.handler.OnError(&SocketError{Op: op, Err: err})
	c.handler.OnClose(CloseAbnormal, err.Error())
}

// writeLoop owns all data writes to the socket
func (c *Client) writeLoop() {
	for {
		select {
		case msg := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
			if err := c.conn.WriteMessage(msg.msgType, msg.data); err != nil {
				c.fail("write", err)
				return
			}
			if msg.msgType == websocket.BinaryMessage {
				c.metrics.FrameSent(len(msg.data))
			}

		case <-c.done:
			return
		}
	}
}

// readLoop reads and routes incoming messages in socket order
func (c *Client) readLoop() {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail("read", err)
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			c.metrics.FrameReceived("audio", len(data))
			c.handler.OnAudio(data)
		case websocket.TextMessage:
			c.handleText(data)
		default:
			c.log.Warnf("Unknown WebSocket message type: %d", messageType)
		}
	}
}

// handleText demultiplexes control text frames
func (c *Client) handleText(data []byte) {
	switch string(data) {
	case MessagePong:
		c.metrics.FrameReceived("pong", len(data))
		c.monitor.Pong()
		if rtt := c.monitor.RTT(); rtt > 0 {
			c.metrics.HeartbeatRoundTrip(rtt)
		}

	case MessageClear:
		c.metrics.FrameReceived("clear", len(data))
		c.log.Debug("Received clear")
		c.handler.OnClear()

	default:
		var update Update
		err := json.Unmarshal(data, &update)
		if err == nil && update == nil {
			err = errors.New("not a JSON object")
		}
		if err != nil {
			c.metrics.MalformedControlReceived()
			c.log.WithError(fmt.Errorf("%w: %v", ErrMalformedControl, err)).Warn("Dropping control message")
			return
		}
		c.metrics.FrameReceived("update", len(data))
		c.handler.OnUpdate(update)
	}
}

// pulse adapts the client to the heartbeat handler
type pulse struct {
	c *Client
}

func (p pulse) SendPing() {
	p.c.enqueue(websocket.TextMessage, []byte(MessagePing))
}

func (p pulse) OnDisconnect() {
	p.c.log.Warn("Heartbeat missed, connection considered lost")
	p.c.metrics.HeartbeatDisconnect()
	p.c.handler.OnDisconnect()
}

func (p pulse) OnReconnect() {
	p.c.log.Info("Heartbeat recovered")
	p.c.metrics.HeartbeatReconnect()
	p.c.handler.OnReconnect()
}

type nopRecorder struct{}

func (nopRecorder) FrameSent(int)                    {}
func (nopRecorder) FrameDropped()                    {}
func (nopRecorder) FrameReceived(string, int)        {}
func (nopRecorder) MalformedControlReceived()        {}
func (nopRecorder) HeartbeatDisconnect()             {}
func (nopRecorder) HeartbeatReconnect()              {}
func (nopRecorder) HeartbeatRoundTrip(time.Duration) {}
