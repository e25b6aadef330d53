// ABOUTME: Local echo speech service for development and testing
// ABOUTME: Answers heartbeats, echoes audio back and advertises itself via mDNS
package echo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mokvoice/voicelink-go/internal/discovery"
	"github.com/mokvoice/voicelink-go/pkg/protocol"
	"github.com/sirupsen/logrus"
)

const (
	// CloseDuplicateCall rejects a second connection for a live call ID
	CloseDuplicateCall = 4001

	sendQueue    = 256
	echoBacklog  = 256
	writeTimeout = 5 * time.Second
)

// Config holds server configuration
type Config struct {
	Port        int
	Name        string
	EnableMDNS  bool
	Delay       time.Duration // how long audio is held before it is echoed
	UpdateEvery int           // send an update object every N audio frames (0 disables)
	Logger      *logrus.Entry
}

// Server is a speech service that plays the caller's audio back
type Server struct {
	config   Config
	log      *logrus.Entry
	upgrader websocket.Upgrader

	httpServer  *http.Server
	mdnsManager *discovery.Manager

	calls   map[string]*call
	callsMu sync.Mutex

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type outbound struct {
	msgType int
	data    []byte
}

type delayed struct {
	at   time.Time
	data []byte
}

// call is one connected client
type call struct {
	id     string
	conn   *websocket.Conn
	send   chan outbound
	echo   chan delayed
	frames int
}

// New creates a new server instance
func New(config Config) *Server {
	log := config.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Server{
		config: config,
		log:    log.WithField("component", "echo"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		calls:    make(map[string]*call),
		stopChan: make(chan struct{}),
	}
}

// Handler returns the WebSocket handler serving /{call_id}
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleWebSocket)
}

// Start serves until Stop is called
func (s *Server) Start() error {
	if s.config.EnableMDNS {
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        s.config.Port,
			Logger:      s.log,
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.log.Warnf("Failed to start mDNS advertisement: %v", err)
		}
	}

	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	s.log.Infof("Echo service listening on %s", addr)

	var serverErr error
	select {
	case <-s.stopChan:
		s.log.Info("Echo service shutting down...")
	case err := <-errChan:
		s.log.Errorf("HTTP server error: %v", err)
		serverErr = err
	}

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warnf("HTTP server shutdown error: %v", err)
	}

	s.closeCalls()
	s.wg.Wait()
	s.log.Info("Echo service stopped")

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Stop stops the server
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

// Calls returns the number of connected calls
func (s *Server) Calls() int {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()
	return len(s.calls)
}

func (s *Server) closeCalls() {
	s.callsMu.Lock()
	defer s.callsMu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, c := range s.calls {
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		c.conn.Close()
	}
}

// handleWebSocket upgrades /{call_id} requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	callID := strings.Trim(r.URL.Path, "/")
	if callID == "" || strings.Contains(callID, "/") {
		http.Error(w, "call id required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("WebSocket upgrade error: %v", err)
		return
	}

	s.log.Infof("Call %s connected from %s (template=%q, enable_update=%s)",
		callID, r.RemoteAddr, r.URL.Query().Get("template_id"), r.URL.Query().Get("enable_update"))

	s.wg.Add(1)
	defer s.wg.Done()
	s.handleCall(&call{
		id:   callID,
		conn: conn,
		send: make(chan outbound, sendQueue),
		echo: make(chan delayed, echoBacklog),
	})
}

// handleCall runs one call until the client goes away
func (s *Server) handleCall(c *call) {
	defer c.conn.Close()

	s.callsMu.Lock()
	if _, exists := s.calls[c.id]; exists {
		s.callsMu.Unlock()
		s.log.Warnf("Call %s already connected, rejecting duplicate", c.id)
		msg := websocket.FormatCloseMessage(CloseDuplicateCall, "duplicate call")
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		return
	}
	s.calls[c.id] = c
	s.callsMu.Unlock()

	defer func() {
		s.callsMu.Lock()
		delete(s.calls, c.id)
		s.callsMu.Unlock()
		s.log.Infof("Call %s disconnected after %d frames", c.id, c.frames)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writer(c)
	}()
	echoDone := make(chan struct{})
	go func() {
		defer close(echoDone)
		s.echoer(c)
	}()

	s.reader(c)

	close(c.echo)
	<-echoDone
	close(c.send)
	<-writerDone
}

// reader demultiplexes client frames
func (s *Server) reader(c *call) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warnf("Call %s read error: %v", c.id, err)
			}
			return
		}

		switch msgType {
		case websocket.TextMessage:
			if string(data) == protocol.MessagePing {
				enqueue(c, outbound{websocket.TextMessage, []byte(protocol.MessagePong)})
			} else {
				s.log.Debugf("Call %s sent unexpected text: %q", c.id, data)
			}

		case websocket.BinaryMessage:
			c.frames++
			s.queueEcho(c, data)

			if s.config.UpdateEvery > 0 && c.frames%s.config.UpdateEvery == 0 {
				update, _ := json.Marshal(map[string]any{
					"type":   "echo_progress",
					"frames": c.frames,
				})
				enqueue(c, outbound{websocket.TextMessage, update})
			}
		}
	}
}

// queueEcho holds audio for playback. A full backlog is dropped and the
// client is told to clear what it has buffered.
func (s *Server) queueEcho(c *call, data []byte) {
	select {
	case c.echo <- delayed{at: time.Now().Add(s.config.Delay), data: data}:
		return
	default:
	}

	dropped := 0
	for {
		select {
		case <-c.echo:
			dropped++
			continue
		default:
		}
		break
	}
	s.log.Infof("Call %s echo backlog full, dropped %d frames", c.id, dropped)
	enqueue(c, outbound{websocket.TextMessage, []byte(protocol.MessageClear)})
}

// echoer sends held audio back once its delay has passed
func (s *Server) echoer(c *call) {
	for d := range c.echo {
		if wait := time.Until(d.at); wait > 0 {
			select {
			case <-time.After(wait):
			case <-s.stopChan:
				return
			}
		}
		enqueue(c, outbound{websocket.BinaryMessage, d.data})
	}
}

// writer is the only goroutine writing data frames to the connection
func (s *Server) writer(c *call) {
	for m := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(m.msgType, m.data); err != nil {
			s.log.Debugf("Call %s write error: %v", c.id, err)
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}
}

func enqueue(c *call, m outbound) {
	select {
	case c.send <- m:
	default:
	}
}
