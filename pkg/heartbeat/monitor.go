// ABOUTME: Heartbeat state machine
// ABOUTME: Adaptive ping cadence with disconnect and reconnect signals
package heartbeat

import (
	"sync"
	"time"
)

const (
	DefaultSlowInterval = 5 * time.Second
	DefaultFastInterval = 1 * time.Second
	DefaultProbeTimeout = 3 * time.Second
)

// State is the liveness state of the connection
type State int

const (
	StateHealthy State = iota
	StateProbing
	StateDisconnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateProbing:
		return "probing"
	case StateDisconnected:
		return "disconnected"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds heartbeat timing
type Config struct {
	SlowInterval time.Duration // ping period while the peer answers
	FastInterval time.Duration // ping period while probing
	ProbeTimeout time.Duration // how long probing may go unanswered
	Clock        Clock
}

// DefaultConfig returns the standard 5s/1s/3s timing
func DefaultConfig() Config {
	return Config{
		SlowInterval: DefaultSlowInterval,
		FastInterval: DefaultFastInterval,
		ProbeTimeout: DefaultProbeTimeout,
		Clock:        RealClock{},
	}
}

func (c Config) withDefaults() Config {
	if c.SlowInterval <= 0 {
		c.SlowInterval = DefaultSlowInterval
	}
	if c.FastInterval <= 0 {
		c.FastInterval = DefaultFastInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.Clock == nil {
		c.Clock = RealClock{}
	}
	return c
}

// Handler receives heartbeat output. Calls are made without holding the
// monitor lock, from timer goroutines or from the caller of Pong.
type Handler interface {
	SendPing()
	OnDisconnect()
	OnReconnect()
}

// Monitor is the heartbeat state machine for one connection
type Monitor struct {
	cfg     Config
	handler Handler

	// emitMu serializes handler calls
	emitMu sync.Mutex

	mu       sync.Mutex
	state    State
	started  bool
	interval time.Duration
	missed   bool

	pingTimer    Timer
	timeoutTimer Timer
	pingGen      uint64
	timeoutGen   uint64

	lastPing time.Time
	rtt      time.Duration
}

// New creates a monitor. It does nothing until Start.
func New(cfg Config, handler Handler) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{
		cfg:      cfg,
		handler:  handler,
		state:    StateHealthy,
		interval: cfg.SlowInterval,
	}
}

// Start enters Healthy, begins pinging and arms the first timeout
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || m.state == StateStopped {
		return
	}
	m.started = true
	m.state = StateHealthy
	m.interval = m.cfg.SlowInterval
	m.restartPingsLocked()
	m.armTimeoutLocked(m.interval)
}

// Pong records a pong from the peer
func (m *Monitor) Pong() {
	m.mu.Lock()
	if !m.started || m.state == StateStopped {
		m.mu.Unlock()
		return
	}

	m.cancelTimeoutLocked()

	if !m.lastPing.IsZero() {
		m.rtt = m.cfg.Clock.Now().Sub(m.lastPing)
	}

	reconnected := m.missed
	m.missed = false

	if m.interval != m.cfg.SlowInterval {
		m.interval = m.cfg.SlowInterval
		m.restartPingsLocked()
	}
	m.state = StateHealthy
	m.armTimeoutLocked(m.interval)
	m.mu.Unlock()

	if reconnected {
		m.notify(m.handler.OnReconnect)
	}
}

// Stop cancels every timer. Later fires of already scheduled timers are
// ignored and no handler call begins after Stop returns.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = StateStopped
	m.pingGen++
	m.timeoutGen++
	if m.pingTimer != nil {
		m.pingTimer.Stop()
		m.pingTimer = nil
	}
	m.cancelTimeoutLocked()
}

// State returns the current liveness state
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Interval returns the current ping period
func (m *Monitor) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// Missed reports whether a disconnect has been signalled without a pong since
func (m *Monitor) Missed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.missed
}

// RTT returns the time between the most recent ping and the pong that followed it
func (m *Monitor) RTT() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rtt
}

func (m *Monitor) restartPingsLocked() {
	if m.pingTimer != nil {
		m.pingTimer.Stop()
	}
	m.pingGen++
	m.schedulePingLocked(m.pingGen)
}

func (m *Monitor) schedulePingLocked(gen uint64) {
	m.pingTimer = m.cfg.Clock.AfterFunc(m.interval, func() {
		m.firePing(gen)
	})
}

func (m *Monitor) firePing(gen uint64) {
	m.mu.Lock()
	if gen != m.pingGen || m.state == StateStopped {
		m.mu.Unlock()
		return
	}
	m.lastPing = m.cfg.Clock.Now()
	m.schedulePingLocked(gen)
	m.mu.Unlock()

	m.notify(m.handler.SendPing)
}

// armTimeoutLocked always cancels the previous timeout first so at most one is pending
func (m *Monitor) armTimeoutLocked(d time.Duration) {
	m.cancelTimeoutLocked()
	m.timeoutGen++
	gen := m.timeoutGen
	m.timeoutTimer = m.cfg.Clock.AfterFunc(d, func() {
		m.fireTimeout(gen)
	})
}

func (m *Monitor) cancelTimeoutLocked() {
	if m.timeoutTimer != nil {
		m.timeoutTimer.Stop()
		m.timeoutTimer = nil
	}
}

func (m *Monitor) fireTimeout(gen uint64) {
	m.mu.Lock()
	if gen != m.timeoutGen {
		m.mu.Unlock()
		return
	}
	m.timeoutTimer = nil

	switch m.state {
	case StateHealthy:
		m.state = StateProbing
		m.interval = m.cfg.FastInterval
		m.restartPingsLocked()
		m.armTimeoutLocked(m.cfg.ProbeTimeout)
		m.mu.Unlock()

	case StateProbing:
		// Pinging continues at the fast cadence with no timeout armed
		m.state = StateDisconnected
		m.missed = true
		m.mu.Unlock()
		m.notify(m.handler.OnDisconnect)

	default:
		m.mu.Unlock()
	}
}

// notify calls f unless the monitor was stopped after f was scheduled
func (m *Monitor) notify(f func()) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	stopped := m.state == StateStopped
	m.mu.Unlock()
	if stopped {
		return
	}
	f()
}
