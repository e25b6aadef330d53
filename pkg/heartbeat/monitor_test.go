// ABOUTME: Tests for the heartbeat monitor
// ABOUTME: Drives the state machine with a manual clock
package heartbeat

import (
	"sort"
	"sync"
	"testing"
	"time"
)

type manualTimer struct {
	clock   *manualClock
	at      time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// manualClock fires timers in due order when Advance is called
type manualClock struct {
	mu     sync.Mutex
	base   time.Time
	now    time.Duration
	seq    int
	timers []*manualTimer
}

func newManualClock() *manualClock {
	return &manualClock{base: time.Unix(1700000000, 0)}
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &manualTimer{clock: c, at: c.now + d, seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.base.Add(c.now)
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []*manualTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && t.at <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			c.now = target
			c.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at != due[j].at {
				return due[i].at < due[j].at
			}
			return due[i].seq < due[j].seq
		})
		next := due[0]
		c.now = next.at
		next.fired = true
		c.mu.Unlock()

		next.f()
	}
}

func (c *manualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type recorder struct {
	mu          sync.Mutex
	pings       int
	disconnects int
	reconnects  int
	events      []string
}

func (r *recorder) SendPing() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pings++
}

func (r *recorder) OnDisconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects++
	r.events = append(r.events, "disconnect")
}

func (r *recorder) OnReconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconnects++
	r.events = append(r.events, "reconnect")
}

func (r *recorder) counts() (pings, disconnects, reconnects int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pings, r.disconnects, r.reconnects
}

func newTestMonitor() (*Monitor, *manualClock, *recorder) {
	clock := newManualClock()
	rec := &recorder{}
	cfg := DefaultConfig()
	cfg.Clock = clock
	return New(cfg, rec), clock, rec
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.SlowInterval != 5*time.Second {
		t.Errorf("expected slow interval 5s, got %v", cfg.SlowInterval)
	}
	if cfg.FastInterval != time.Second {
		t.Errorf("expected fast interval 1s, got %v", cfg.FastInterval)
	}
	if cfg.ProbeTimeout != 3*time.Second {
		t.Errorf("expected probe timeout 3s, got %v", cfg.ProbeTimeout)
	}
}

func TestConfigDefaultsFilled(t *testing.T) {
	m := New(Config{}, &recorder{})

	if m.cfg.SlowInterval != DefaultSlowInterval {
		t.Errorf("expected default slow interval, got %v", m.cfg.SlowInterval)
	}
	if m.cfg.Clock == nil {
		t.Error("expected a clock to be set")
	}
}

func TestStartEntersHealthy(t *testing.T) {
	m, clock, _ := newTestMonitor()
	m.Start()

	if m.State() != StateHealthy {
		t.Errorf("expected healthy, got %v", m.State())
	}
	if m.Interval() != 5*time.Second {
		t.Errorf("expected 5s interval, got %v", m.Interval())
	}
	// One repeating ping plus one timeout
	if clock.Pending() != 2 {
		t.Errorf("expected 2 pending timers, got %d", clock.Pending())
	}
}

func TestSteadyPongsStayHealthy(t *testing.T) {
	m, clock, rec := newTestMonitor()
	m.Start()

	for i := 0; i < 15; i++ {
		clock.Advance(4 * time.Second)
		if m.State() != StateHealthy {
			t.Fatalf("left healthy at %v: %v", time.Duration(i+1)*4*time.Second, m.State())
		}
		m.Pong()
	}

	pings, disconnects, _ := rec.counts()
	if disconnects != 0 {
		t.Errorf("expected no disconnects, got %d", disconnects)
	}
	// 60s at the slow cadence
	if pings != 12 {
		t.Errorf("expected 12 pings, got %d", pings)
	}
	if m.Interval() != 5*time.Second {
		t.Errorf("expected 5s interval, got %v", m.Interval())
	}
}

func TestNoPongsDisconnects(t *testing.T) {
	m, clock, rec := newTestMonitor()
	m.Start()

	clock.Advance(4999 * time.Millisecond)
	if m.State() != StateHealthy {
		t.Fatalf("expected healthy before first timeout, got %v", m.State())
	}

	clock.Advance(time.Millisecond)
	if m.State() != StateProbing {
		t.Fatalf("expected probing at 5s, got %v", m.State())
	}
	if m.Interval() != time.Second {
		t.Errorf("expected 1s probing interval, got %v", m.Interval())
	}

	clock.Advance(2999 * time.Millisecond)
	if _, disconnects, _ := rec.counts(); disconnects != 0 {
		t.Fatalf("disconnect fired before 8s")
	}

	clock.Advance(time.Millisecond)
	if _, disconnects, _ := rec.counts(); disconnects != 1 {
		t.Fatalf("expected 1 disconnect at 8s, got %d", disconnects)
	}
	if m.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %v", m.State())
	}
	if !m.Missed() {
		t.Error("expected missed flag to be set")
	}
}

func TestDisconnectedKeepsProbing(t *testing.T) {
	m, clock, rec := newTestMonitor()
	m.Start()

	clock.Advance(8 * time.Second)
	before, _, _ := rec.counts()

	clock.Advance(10 * time.Second)
	after, disconnects, _ := rec.counts()

	if after-before != 10 {
		t.Errorf("expected 10 pings at the fast cadence, got %d", after-before)
	}
	if disconnects != 1 {
		t.Errorf("expected disconnect only once, got %d", disconnects)
	}
	if m.State() != StateDisconnected {
		t.Errorf("expected disconnected, got %v", m.State())
	}
}

func TestPongAfterDisconnectReconnects(t *testing.T) {
	m, clock, rec := newTestMonitor()
	m.Start()
	clock.Advance(9 * time.Second)

	m.Pong()

	_, _, reconnects := rec.counts()
	if reconnects != 1 {
		t.Fatalf("expected 1 reconnect, got %d", reconnects)
	}
	if m.State() != StateHealthy {
		t.Errorf("expected healthy after pong, got %v", m.State())
	}
	if m.Interval() != 5*time.Second {
		t.Errorf("expected slow cadence restored, got %v", m.Interval())
	}
	if m.Missed() {
		t.Error("expected missed flag cleared")
	}

	m.Pong()
	if _, _, reconnects := rec.counts(); reconnects != 1 {
		t.Errorf("expected reconnect exactly once, got %d", reconnects)
	}

	// Slow cadence: next ping 5s after the pong
	pings, _, _ := rec.counts()
	clock.Advance(4999 * time.Millisecond)
	if p, _, _ := rec.counts(); p != pings {
		t.Errorf("expected no ping before 5s, got %d new", p-pings)
	}
	clock.Advance(time.Millisecond)
	if p, _, _ := rec.counts(); p != pings+1 {
		t.Errorf("expected one ping at 5s, got %d new", p-pings)
	}
}

func TestPongWhileProbingRestoresHealthy(t *testing.T) {
	m, clock, rec := newTestMonitor()
	m.Start()
	clock.Advance(6 * time.Second)

	if m.State() != StateProbing {
		t.Fatalf("expected probing, got %v", m.State())
	}

	m.Pong()

	if m.State() != StateHealthy {
		t.Errorf("expected healthy, got %v", m.State())
	}
	if _, _, reconnects := rec.counts(); reconnects != 0 {
		t.Errorf("expected no reconnect without a disconnect, got %d", reconnects)
	}

	// Old probe timeout must not fire
	clock.Advance(4 * time.Second)
	if _, disconnects, _ := rec.counts(); disconnects != 0 {
		t.Errorf("expected no disconnect, got %d", disconnects)
	}
}

func TestRTT(t *testing.T) {
	m, clock, _ := newTestMonitor()
	m.Start()

	clock.Advance(5 * time.Second)
	clock.Advance(120 * time.Millisecond)
	m.Pong()

	if m.RTT() != 120*time.Millisecond {
		t.Errorf("expected 120ms rtt, got %v", m.RTT())
	}
}

func TestStopCancelsTimers(t *testing.T) {
	m, clock, rec := newTestMonitor()
	m.Start()
	clock.Advance(6 * time.Second)

	pings, _, _ := rec.counts()
	m.Stop()

	if clock.Pending() != 0 {
		t.Errorf("expected no pending timers after stop, got %d", clock.Pending())
	}

	clock.Advance(time.Minute)
	after, disconnects, _ := rec.counts()
	if after != pings {
		t.Errorf("expected no pings after stop, got %d", after-pings)
	}
	if disconnects != 0 {
		t.Errorf("expected no disconnect after stop, got %d", disconnects)
	}
	if m.State() != StateStopped {
		t.Errorf("expected stopped, got %v", m.State())
	}
}

func TestStopWhileTimeoutFiringSuppressesDisconnect(t *testing.T) {
	m, clock, rec := newTestMonitor()
	m.Start()
	clock.Advance(7500 * time.Millisecond)
	pings, _, _ := rec.counts()

	// Hold handler delivery so the 8s timeout is caught between its
	// state change and the OnDisconnect call
	m.emitMu.Lock()
	done := make(chan struct{})
	go func() {
		clock.Advance(time.Second)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for m.State() != StateDisconnected {
		if time.Now().After(deadline) {
			m.emitMu.Unlock()
			t.Fatal("timed out waiting for the probe timeout to fire")
		}
		time.Sleep(time.Millisecond)
	}

	m.Stop()
	m.emitMu.Unlock()
	<-done

	after, disconnects, _ := rec.counts()
	if disconnects != 0 {
		t.Errorf("expected no disconnect after stop, got %d", disconnects)
	}
	if after != pings {
		t.Errorf("expected no pings after stop, got %d", after-pings)
	}
}

func TestStopIdempotent(t *testing.T) {
	m, clock, _ := newTestMonitor()

	m.Stop()
	m.Stop()
	m.Start()
	m.Pong()

	if clock.Pending() != 0 {
		t.Errorf("expected no timers after stop-before-start, got %d", clock.Pending())
	}
	if m.State() != StateStopped {
		t.Errorf("expected stopped, got %v", m.State())
	}
}

func TestPongBeforeStartIgnored(t *testing.T) {
	m, clock, rec := newTestMonitor()
	m.Pong()

	if clock.Pending() != 0 {
		t.Errorf("expected no timers, got %d", clock.Pending())
	}
	if _, _, reconnects := rec.counts(); reconnects != 0 {
		t.Errorf("expected no reconnect, got %d", reconnects)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateHealthy, "healthy"},
		{StateProbing, "probing"},
		{StateDisconnected, "disconnected"},
		{StateStopped, "stopped"},
		{State(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
