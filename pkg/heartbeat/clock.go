// ABOUTME: Timer abstraction for the heartbeat monitor
// ABOUTME: Wraps time.AfterFunc so tests can drive time manually
package heartbeat

import "time"

// Timer is a pending one-shot callback
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks and reports the current time
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

// RealClock uses the runtime timers
type RealClock struct{}

// AfterFunc calls f in its own goroutine after d
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Now returns the wall clock time
func (RealClock) Now() time.Time {
	return time.Now()
}
