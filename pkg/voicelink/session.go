// ABOUTME: High-level Session API for voice conversations
// ABOUTME: Starts and stops calls and routes transport events to the pipeline
package voicelink

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mokvoice/voicelink-go/pkg/audio"
	"github.com/mokvoice/voicelink-go/pkg/audio/decode"
	"github.com/mokvoice/voicelink-go/pkg/audio/device"
	"github.com/mokvoice/voicelink-go/pkg/heartbeat"
	"github.com/mokvoice/voicelink-go/pkg/pipeline"
	"github.com/mokvoice/voicelink-go/pkg/protocol"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of a session
type State int

const (
	StateIdle State = iota
	StateStarting
	StateActive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the settings of one conversation
type Config struct {
	// SampleRate of capture, playback and the wire (default: 24000)
	SampleRate int

	// CallID identifies the call on the speech service
	CallID string

	// TemplateID is sent as the template_id query parameter when set
	TemplateID string

	// Endpoint overrides protocol.DefaultEndpoint
	Endpoint string

	// EnableUpdate asks the service to send update objects
	EnableUpdate bool

	// Input replaces the microphone when set. The session closes it on stop.
	Input audio.InputStream

	// Strategy forces a delivery strategy; StrategyAuto asks the host
	Strategy pipeline.Strategy

	// Heartbeat timing; zero fields use the defaults
	Heartbeat heartbeat.Config

	// Header is sent with the WebSocket handshake
	Header http.Header

	// Logger receives session logs (default: logrus standard logger)
	Logger *logrus.Entry

	// Metrics receives counters (optional)
	Metrics Recorder
}

// EndInfo describes why a conversation ended
type EndInfo struct {
	Code   int
	Reason string
}

// Handlers receive session events. Nil handlers are skipped. Handlers run
// on transport and timer goroutines and may call StopConversation.
type Handlers struct {
	OnConversationStarted func()
	OnConversationEnded   func(EndInfo)
	OnAudio               func([]byte)
	OnUpdate              func(protocol.Update)
	OnDisconnect          func()
	OnReconnect           func()
	OnError               func(error)
	OnStateChange         func(State)
}

// Host provides audio devices to a session
type Host interface {
	AcquireInput(sampleRate int) (audio.InputStream, error)
	Probe() pipeline.Strategy
	OpenEngine(strategy pipeline.Strategy, sampleRate int, in audio.InputStream, proc device.Processor) (device.Engine, error)
}

// Recorder receives session and transport counters
type Recorder interface {
	protocol.Recorder
	SessionStarted()
	SessionEnded(d time.Duration)
	SessionError()
	PlaybackBlockDropped()
}

// Stats describes the current or most recent call
type Stats struct {
	State           State
	Strategy        pipeline.Strategy
	Heartbeat       heartbeat.State
	CapturedBlocks  uint64
	SentBytes       uint64
	ReceivedBytes   uint64
	ReceivedBlocks  uint64
	DroppedBlocks   uint64
	Updates         uint64
	UnderrunSamples uint64
	Duration        time.Duration
}

// Session runs one conversation at a time
type Session struct {
	id       string
	host     Host
	handlers Handlers

	mu    sync.Mutex
	state State
	call  *call
	last  *call
}

// NewSession creates an idle session
func NewSession(host Host, handlers Handlers) *Session {
	return &Session{
		id:       uuid.New().String(),
		host:     host,
		handlers: handlers,
		state:    StateIdle,
	}
}

// ID returns the session identifier used in logs
func (s *Session) ID() string {
	return s.id
}

// State returns the lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Strategy returns the delivery strategy of the current or last call
func (s *Session) Strategy() pipeline.Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return pipeline.StrategyAuto
	}
	return s.last.strategy
}

// Stats returns counters of the current or last call
func (s *Session) Stats() Stats {
	s.mu.Lock()
	state := s.state
	c := s.last
	s.mu.Unlock()

	stats := Stats{State: state, Heartbeat: heartbeat.StateStopped}
	if c == nil {
		return stats
	}
	c.fillStats(&stats)
	return stats
}

// StartConversation acquires audio, opens the transport and makes the
// session Active. On failure OnError is emitted, everything acquired is
// released and the session is left Idle.
func (s *Session) StartConversation(ctx context.Context, config Config) error {
	if config.SampleRate <= 0 {
		config.SampleRate = audio.DefaultSampleRate
	}
	if config.Metrics == nil {
		config.Metrics = nopRecorder{}
	}
	log := config.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithFields(logrus.Fields{
		"session": s.id,
		"call_id": config.CallID,
	})

	s.mu.Lock()
	if s.state == StateStarting || s.state == StateActive {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	c := newCall(s, config, log)
	s.call = c
	s.last = c
	s.state = StateStarting
	s.mu.Unlock()

	s.emitState(StateStarting)
	log.Infof("Starting conversation at %dHz", config.SampleRate)

	if err := c.setup(ctx); err != nil {
		if errors.Is(err, ErrStopped) {
			log.Info("Conversation stopped before it started")
			return err
		}
		s.abort(c, err)
		return err
	}
	return nil
}

// StopConversation ends the current call. It is safe to call from any
// state, more than once, and from inside handlers.
func (s *Session) StopConversation() {
	s.mu.Lock()
	c := s.call
	if c == nil {
		changed := s.state == StateIdle
		s.state = StateStopped
		s.mu.Unlock()
		if changed {
			s.emitState(StateStopped)
		}
		return
	}
	s.mu.Unlock()

	c.log.Info("Stopping conversation")
	s.teardown(c)
}

// opened moves a starting call to Active once the transport is open
func (s *Session) opened(c *call) {
	s.mu.Lock()
	if s.call != c || s.state != StateStarting {
		s.mu.Unlock()
		return
	}
	s.state = StateActive
	c.started = time.Now()
	c.active.Store(true)
	s.mu.Unlock()

	c.calling.Store(true)
	c.metrics.SessionStarted()
	c.log.Info("Conversation started")

	s.emitState(StateActive)
	if s.handlers.OnConversationStarted != nil {
		s.handlers.OnConversationStarted()
	}
}

// teardown releases c and marks the session Stopped if c is current
func (s *Session) teardown(c *call) {
	c.calling.Store(false)

	s.mu.Lock()
	changed := false
	if s.call == c {
		s.call = nil
		s.state = StateStopped
		changed = true
		if !c.started.IsZero() {
			c.duration = time.Since(c.started)
		}
	}
	s.mu.Unlock()

	if changed {
		if c.active.Load() {
			c.metrics.SessionEnded(c.duration)
		}
		s.emitState(StateStopped)
	}

	if err := c.life.release(); err != nil {
		c.log.Warnf("Teardown finished with errors: %v", err)
	}
}

// abort undoes a failed start and reports err
func (s *Session) abort(c *call, err error) {
	c.calling.Store(false)

	s.mu.Lock()
	current := s.call == c
	if current {
		s.call = nil
		s.state = StateIdle
	}
	s.mu.Unlock()

	c.life.release()
	c.metrics.SessionError()
	c.log.Errorf("Failed to start conversation: %v", err)

	s.emitError(err)
	if current {
		s.emitState(StateIdle)
	}
}

// closed handles the end of the transport for c
func (s *Session) closed(c *call, code int, reason string) {
	if !c.active.Load() || !c.ended.CompareAndSwap(false, true) {
		return
	}

	s.teardown(c)

	c.log.Infof("Conversation ended: code=%d reason=%q", code, reason)
	if s.handlers.OnConversationEnded != nil {
		s.handlers.OnConversationEnded(EndInfo{Code: code, Reason: reason})
	}
}

// failed reports a transport error and tears down an active call
func (s *Session) failed(c *call, err error) {
	c.metrics.SessionError()
	c.log.Errorf("Transport error: %v", err)

	s.emitError(err)
	if c.active.Load() {
		s.teardown(c)
	}
}

func (s *Session) emitState(state State) {
	if s.handlers.OnStateChange != nil {
		s.handlers.OnStateChange(state)
	}
}

func (s *Session) emitError(err error) {
	if s.handlers.OnError != nil {
		s.handlers.OnError(err)
	}
}

// call holds the resources of one conversation
type call struct {
	session *Session
	config  Config
	log     *logrus.Entry
	metrics Recorder
	life    *lifetime

	sender  *linkSender
	calling atomic.Bool
	active  atomic.Bool
	ended   atomic.Bool

	// guarded by session.mu
	pipeline *pipeline.Pipeline
	strategy pipeline.Strategy
	started  time.Time
	duration time.Duration

	receivedBytes  atomic.Uint64
	receivedBlocks atomic.Uint64
	droppedBlocks  atomic.Uint64
	updates        atomic.Uint64
}

func newCall(s *Session, config Config, log *logrus.Entry) *call {
	return &call{
		session: s,
		config:  config,
		log:     log,
		metrics: config.Metrics,
		life:    newLifetime(log),
		sender:  &linkSender{},
	}
}

func (c *call) setup(ctx context.Context) error {
	if c.config.CallID == "" {
		return ErrMissingCallID
	}
	host := c.session.host

	in := c.config.Input
	if in == nil {
		if host == nil {
			return fmt.Errorf("no audio host and no input stream")
		}
		var err error
		in, err = host.AcquireInput(c.config.SampleRate)
		if err != nil {
			return fmt.Errorf("failed to acquire input: %w", err)
		}
	}
	if !c.life.acquire("input", in.Close) {
		return ErrStopped
	}

	strategy := c.config.Strategy
	if strategy == pipeline.StrategyAuto {
		if host == nil {
			return fmt.Errorf("no audio host to probe")
		}
		strategy = host.Probe()
	}
	c.log.Infof("Using %v delivery", strategy)

	pipe, err := pipeline.New(pipeline.Config{
		Strategy:   strategy,
		SampleRate: c.config.SampleRate,
		Sender:     c.sender,
		Gate:       &c.calling,
		Logger:     c.log,
	})
	if err != nil {
		return err
	}
	c.session.mu.Lock()
	c.strategy = strategy
	c.pipeline = pipe
	c.session.mu.Unlock()
	if !c.life.acquire("pipeline", pipe.Close) {
		return ErrStopped
	}

	if host == nil {
		return fmt.Errorf("no audio host to open an engine")
	}
	engine, err := host.OpenEngine(strategy, c.config.SampleRate, in, pipe)
	if err != nil {
		return fmt.Errorf("failed to open audio engine: %w", err)
	}
	if !c.life.acquire("engine", engine.Close) {
		return ErrStopped
	}
	if err := engine.Start(); err != nil {
		return fmt.Errorf("failed to start audio engine: %w", err)
	}

	client := protocol.NewClient(protocol.Config{
		Endpoint:     c.config.Endpoint,
		CallID:       c.config.CallID,
		TemplateID:   c.config.TemplateID,
		EnableUpdate: c.config.EnableUpdate,
		Heartbeat:    c.config.Heartbeat,
		Header:       c.config.Header,
		Logger:       c.log,
		Metrics:      c.metrics,
	}, &events{call: c, playback: pipe.Playback()})
	c.sender.client.Store(client)
	if !c.life.acquire("transport", client.Close) {
		return ErrStopped
	}

	if err := client.Connect(ctx); err != nil {
		if c.life.done() {
			return ErrStopped
		}
		return err
	}
	if c.life.done() && !c.active.Load() {
		client.Close()
		return ErrStopped
	}
	return nil
}

// live reports whether the call has not been torn down
func (c *call) live() bool {
	return !c.ended.Load() && !c.life.done()
}

func (c *call) fillStats(stats *Stats) {
	c.session.mu.Lock()
	stats.Strategy = c.strategy
	pipe := c.pipeline
	if c.duration > 0 {
		stats.Duration = c.duration
	} else if !c.started.IsZero() {
		stats.Duration = time.Since(c.started)
	}
	c.session.mu.Unlock()

	stats.SentBytes = c.sender.bytes.Load()
	stats.ReceivedBytes = c.receivedBytes.Load()
	stats.ReceivedBlocks = c.receivedBlocks.Load()
	stats.DroppedBlocks = c.droppedBlocks.Load()
	stats.Updates = c.updates.Load()

	if pipe != nil {
		stats.CapturedBlocks = pipe.CapturedBlocks()
		stats.UnderrunSamples = pipe.UnderrunSamples()
	}
	if client := c.sender.client.Load(); client != nil {
		stats.Heartbeat = client.Heartbeat()
	}
}

// linkSender hands captured blocks to the transport once it exists
type linkSender struct {
	client atomic.Pointer[protocol.Client]
	bytes  atomic.Uint64
}

func (l *linkSender) Send(block []byte) {
	client := l.client.Load()
	if client == nil || !client.IsOpen() {
		return
	}
	client.Send(block)
	l.bytes.Add(uint64(len(block)))
}

// events adapts transport events to the session for one call
type events struct {
	call     *call
	playback pipeline.PlaybackStrategy
}

func (e *events) OnOpen() {
	e.call.session.opened(e.call)
}

func (e *events) OnAudio(data []byte) {
	c := e.call
	c.receivedBytes.Add(uint64(len(data)))
	c.receivedBlocks.Add(1)

	if e.playback != nil {
		if err := e.playback.Enqueue(data); err != nil {
			c.droppedBlocks.Add(1)
			switch {
			case errors.Is(err, pipeline.ErrPlaybackFull):
				c.metrics.PlaybackBlockDropped()
				c.log.Debugf("Dropping audio block: %v", err)
			case errors.Is(err, decode.ErrInvalidLength):
				c.log.Warnf("Dropping malformed audio block: %v", err)
			default:
				c.log.Warnf("Failed to queue audio: %v", err)
			}
		}
	}

	if h := c.session.handlers.OnAudio; h != nil {
		h(data)
	}
}

func (e *events) OnUpdate(update protocol.Update) {
	e.call.updates.Add(1)
	if h := e.call.session.handlers.OnUpdate; h != nil {
		h(update)
	}
}

func (e *events) OnClear() {
	c := e.call
	if e.playback != nil {
		e.playback.Clear()
	}
	c.log.Debug("Playback cleared")
}

func (e *events) OnDisconnect() {
	if !e.call.live() {
		return
	}
	e.call.log.Warn("Heartbeat lost, connection may be down")
	if h := e.call.session.handlers.OnDisconnect; h != nil {
		h()
	}
}

func (e *events) OnReconnect() {
	if !e.call.live() {
		return
	}
	e.call.log.Info("Heartbeat restored")
	if h := e.call.session.handlers.OnReconnect; h != nil {
		h()
	}
}

func (e *events) OnClose(code int, reason string) {
	e.call.session.closed(e.call, code, reason)
}

func (e *events) OnError(err error) {
	e.call.session.failed(e.call, err)
}

type nopRecorder struct{}

func (nopRecorder) FrameSent(int)                    {}
func (nopRecorder) FrameDropped()                    {}
func (nopRecorder) FrameReceived(string, int)        {}
func (nopRecorder) MalformedControlReceived()        {}
func (nopRecorder) HeartbeatDisconnect()             {}
func (nopRecorder) HeartbeatReconnect()              {}
func (nopRecorder) HeartbeatRoundTrip(time.Duration) {}
func (nopRecorder) SessionStarted()                  {}
func (nopRecorder) SessionEnded(time.Duration)       {}
func (nopRecorder) SessionError()                    {}
func (nopRecorder) PlaybackBlockDropped()            {}
