// Package pageagent runs the per-page agent: a single goroutine that owns
// the sidebar for one document, reacts to page events, and answers tagged
// requests. Every request gets exactly one response, success or not.
package pageagent

import "time"

// Action names the operations the agent answers. Unknown actions receive
// an error response, never silence.
type Action string

const (
	ActionPing        Action = "ping"
	ActionGetHeadings Action = "getHeadings"
	ActionScroll      Action = "scrollToHeading"
	ActionToggle      Action = "toggle"
	ActionRefresh     Action = "refresh"
	ActionSetPosition Action = "setPosition"
	ActionGetPosition Action = "getPosition"
)

// ScrollRequest targets a heading by id, with the measured offset kept as
// a fallback for when the id has gone away.
type ScrollRequest struct {
	ID       string  `json:"id"`
	Position float64 `json:"position"`
}

// PositionRequest sets the sidebar dock edge.
type PositionRequest struct {
	Position string `json:"position"`
}

// Request is one tagged message to the agent.
type Request struct {
	Action      Action           `json:"action"`
	Scroll      *ScrollRequest   `json:"scroll,omitempty"`
	SetPosition *PositionRequest `json:"set_position,omitempty"`
}

// Response answers one Request.
type Response struct {
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
	Pong       bool           `json:"pong,omitempty"`
	Allowed    *bool          `json:"allowed,omitempty"`
	Headings   []HeadingEntry `json:"headings,omitempty"`
	Position   string         `json:"position,omitempty"`
	Visibility string         `json:"visibility,omitempty"`
}

// HeadingEntry is one table-of-contents entry as reported to callers.
type HeadingEntry struct {
	Text     string  `json:"text"`
	Level    int     `json:"level"`
	ID       string  `json:"id"`
	Position float64 `json:"vertical_position"`
}

// Intervals bundles the agent's timing knobs. Zero values take defaults;
// tests shrink them.
type Intervals struct {
	RefreshThrottle     time.Duration // min gap between unforced refreshes
	EmptyRetry          time.Duration // one delayed rescan after an empty result
	Debounce            time.Duration // mutation quiet window
	Sweep               time.Duration // size-heuristic sweep period
	AutoRefreshEvery    time.Duration // post-load attempt spacing
	AutoRefreshAttempts int
	InteractionReset    time.Duration // stuck-engagement decay
	SizeDelta           int           // sweep body-length threshold, bytes
	MaxLevel            int           // deepest heading level collected
}

func (iv Intervals) withDefaults() Intervals {
	if iv.RefreshThrottle <= 0 {
		iv.RefreshThrottle = 500 * time.Millisecond
	}
	if iv.EmptyRetry <= 0 {
		iv.EmptyRetry = 1500 * time.Millisecond
	}
	if iv.Debounce <= 0 {
		iv.Debounce = 2 * time.Second
	}
	if iv.Sweep <= 0 {
		iv.Sweep = 2 * time.Second
	}
	if iv.AutoRefreshEvery <= 0 {
		iv.AutoRefreshEvery = 3 * time.Second
	}
	if iv.AutoRefreshAttempts <= 0 {
		iv.AutoRefreshAttempts = 3
	}
	if iv.InteractionReset <= 0 {
		iv.InteractionReset = 10 * time.Second
	}
	if iv.SizeDelta <= 0 {
		iv.SizeDelta = 100
	}
	if iv.MaxLevel <= 0 {
		iv.MaxLevel = 3
	}
	return iv
}
