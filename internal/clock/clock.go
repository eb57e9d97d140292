// Package clock provides an injectable time source so restart-escalation
// and OTA timing behavior can be tested deterministically.
package clock

import "time"

// Clock provides time and timer operations. Every timer-driven component
// (the health-check loop, the Updater's periodic check) takes one of these
// instead of calling time.Now/time.NewTicker directly.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	After(d time.Duration) <-chan time.Time
}

// Ticker mirrors the subset of *time.Ticker callers need, so a fake clock
// can hand back a channel it controls.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real implements Clock using the actual system time.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time { return time.Now() }

// NewTicker returns a ticker backed by time.NewTicker.
func (Real) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

// After returns time.After(d).
func (Real) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// Fixed implements Clock with a fixed Now() and manually-fired tickers, for
// tests that need to assert exact escalation/timing behavior.
type Fixed struct {
	FixedTime time.Time
}

// Now returns the fixed time.
func (f Fixed) Now() time.Time { return f.FixedTime }

// NewTicker returns a ticker whose channel the test can send on directly.
func (f Fixed) NewTicker(d time.Duration) Ticker {
	return &FixedTicker{ch: make(chan time.Time, 1)}
}

// After returns a channel that never fires; tests that need After() to fire
// should use FixedTicker.Fire or construct their own channel.
func (f Fixed) After(d time.Duration) <-chan time.Time {
	return make(chan time.Time)
}

// FixedTicker is a manually-driven Ticker for tests.
type FixedTicker struct {
	ch      chan time.Time
	stopped bool
}

// C returns the ticker's channel.
func (f *FixedTicker) C() <-chan time.Time { return f.ch }

// Stop marks the ticker stopped. Further Fire calls are no-ops.
func (f *FixedTicker) Stop() { f.stopped = true }

// Fire sends a tick with the given time, unless the ticker has been stopped.
func (f *FixedTicker) Fire(t time.Time) {
	if f.stopped {
		return
	}
	select {
	case f.ch <- t:
	default:
	}
}
