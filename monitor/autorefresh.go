package monitor

import "time"

// AutoRefresh drives the bounded sequence of post-load refresh attempts
// that catches content arriving after DOM-ready. It stops early once a
// non-empty extraction is reported.
type AutoRefresh struct {
	interval  time.Duration
	remaining int
	running   bool
}

// NewAutoRefresh configures attempts spaced interval apart.
func NewAutoRefresh(attempts int, interval time.Duration) *AutoRefresh {
	if attempts <= 0 {
		attempts = 3
	}
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &AutoRefresh{interval: interval, remaining: attempts}
}

// Start arms the sequence. Returns the delay until the first attempt, or
// false when no attempts remain.
func (a *AutoRefresh) Start() (time.Duration, bool) {
	if a.remaining <= 0 {
		return 0, false
	}
	a.running = true
	return a.interval, true
}

// Next consumes one attempt and reports how the sequence continues. When
// found is true, or attempts are exhausted, the sequence stops.
func (a *AutoRefresh) Next(found bool) (time.Duration, bool) {
	if !a.running {
		return 0, false
	}
	a.remaining--
	if found || a.remaining <= 0 {
		a.running = false
		return 0, false
	}
	return a.interval, true
}

// Running reports whether the sequence is in flight.
func (a *AutoRefresh) Running() bool { return a.running }
