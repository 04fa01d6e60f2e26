package monitor

// Sweeper is the periodic size-heuristic backstop for changes the mutation
// observer misses. It compares the serialised body length against the last
// sweep and recommends a refresh only when the delta crosses the threshold
// and sweeping is not paused.
type Sweeper struct {
	threshold int
	lastSize  int
	primed    bool
	paused    bool
}

// NewSweeper creates a Sweeper with the given byte delta threshold.
func NewSweeper(threshold int) *Sweeper {
	if threshold <= 0 {
		threshold = 100
	}
	return &Sweeper{threshold: threshold}
}

// Pause suspends sweeping. Paused sweeps observe nothing, so the baseline
// stays where it was when pausing began.
func (s *Sweeper) Pause(paused bool) { s.paused = paused }

// Paused reports whether sweeping is suspended.
func (s *Sweeper) Paused() bool { return s.paused }

// Observe feeds one measurement and reports whether a refresh is due. The
// first measurement only primes the baseline.
func (s *Sweeper) Observe(size int) bool {
	if s.paused {
		return false
	}
	if !s.primed {
		s.primed = true
		s.lastSize = size
		return false
	}
	delta := size - s.lastSize
	if delta < 0 {
		delta = -delta
	}
	s.lastSize = size
	return delta >= s.threshold
}

// Reset clears the baseline, forcing the next Observe to re-prime. Used
// after navigation when the old size is meaningless.
func (s *Sweeper) Reset() {
	s.primed = false
	s.lastSize = 0
}
