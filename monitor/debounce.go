// Package monitor implements the change-detection pieces the page agent
// selects over: a trailing-edge debouncer for mutation bursts, a relevance
// filter for heading-affecting changes, a periodic size-heuristic sweeper,
// a bounded post-load auto-refresh sequence, and sidebar interaction
// tracking with a safety auto-reset.
package monitor

import "time"

// Debouncer collapses bursts of events into a single trailing signal: each
// Trigger restarts the window, and C fires once the window passes with no
// further triggers.
type Debouncer struct {
	window  time.Duration
	timer   *time.Timer
	timerCh <-chan time.Time
	pending bool
}

// NewDebouncer creates a Debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = 2 * time.Second
	}
	return &Debouncer{window: window}
}

// Trigger records an event and (re)starts the window timer. The previous
// timer is always stopped first so only one is ever in flight.
func (d *Debouncer) Trigger() {
	d.pending = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.NewTimer(d.window)
	d.timerCh = d.timer.C
}

// C returns the channel that fires when the window expires. Nil until the
// first Trigger, so selecting on it before then blocks.
func (d *Debouncer) C() <-chan time.Time { return d.timerCh }

// Fire consumes the pending state after C fired. Returns false when there
// was nothing pending (stale timer).
func (d *Debouncer) Fire() bool {
	fired := d.pending
	d.pending = false
	d.timerCh = nil
	d.timer = nil
	return fired
}

// Stop cancels any pending timer.
func (d *Debouncer) Stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.timerCh = nil
	d.pending = false
}
