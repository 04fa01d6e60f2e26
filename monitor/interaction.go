package monitor

import "time"

// Interaction tracks whether the user is actively engaged with the sidebar
// (hover or press). An engagement that is never released decays after the
// reset window so a missed leave event cannot wedge refreshes forever.
type Interaction struct {
	reset    time.Duration
	active   bool
	deadline time.Time
	now      func() time.Time
}

// NewInteraction creates a tracker with the given auto-reset window.
func NewInteraction(reset time.Duration) *Interaction {
	if reset <= 0 {
		reset = 10 * time.Second
	}
	return &Interaction{reset: reset, now: time.Now}
}

// Set records the start or end of an engagement.
func (i *Interaction) Set(active bool) {
	i.active = active
	if active {
		i.deadline = i.now().Add(i.reset)
	}
}

// Active reports current engagement, applying the auto-reset when the
// deadline has passed without a release.
func (i *Interaction) Active() bool {
	if i.active && i.now().After(i.deadline) {
		i.active = false
	}
	return i.active
}
