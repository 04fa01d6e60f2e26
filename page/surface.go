// Package page defines the contract between the page agent and the live
// document it manages. The production implementation drives a real browser
// tab over CDP (package browser); MemorySurface backs an in-memory document
// for tests and offline runs.
package page

import (
	"context"

	"github.com/EaziSpace/gen-toc/headings"
)

// Op is the kind of DOM mutation observed on the page.
type Op string

const (
	OpInsert Op = "insert"
	OpRemove Op = "remove"
)

// Mutation summarises one added or removed node.
type Mutation struct {
	Op   Op     `json:"op"`
	Tag  string `json:"tag"`            // tag name for element nodes, "" otherwise
	HTML string `json:"html,omitempty"` // serialised subtree
}

// Event is the union of unsolicited signals a surface emits. The agent's
// event loop switches exhaustively over these.
type Event interface{ isEvent() }

// MutationEvent carries one observer callback worth of DOM changes.
type MutationEvent struct {
	Records []Mutation
}

// InteractionEvent reports pointer enter/press (Active=true) and
// leave/release (Active=false) on the sidebar.
type InteractionEvent struct {
	Active bool
}

// VisibilityEvent reports page/tab visibility changes.
type VisibilityEvent struct {
	Visible bool
}

// LoadEvent fires once when the document reaches DOM-ready.
type LoadEvent struct{}

// NavigationEvent reports an in-page (SPA) navigation.
type NavigationEvent struct {
	URL string
}

// EntryClickEvent reports activation of a sidebar entry in the live page.
type EntryClickEvent struct {
	HeadingID string
}

// ToggleRequestEvent reports activation of the sidebar's hide control.
type ToggleRequestEvent struct{}

// MoveRequestEvent reports activation of the sidebar's move control.
type MoveRequestEvent struct{}

func (MutationEvent) isEvent()      {}
func (InteractionEvent) isEvent()   {}
func (VisibilityEvent) isEvent()    {}
func (LoadEvent) isEvent()          {}
func (NavigationEvent) isEvent()    {}
func (EntryClickEvent) isEvent()    {}
func (ToggleRequestEvent) isEvent() {}
func (MoveRequestEvent) isEvent()   {}

// Surface is the agent's only handle on the live document. All writes are
// single atomic operations; partial sidebar states are never visible.
type Surface interface {
	// URL returns the page URL.
	URL() string

	// DocumentHTML returns the serialised current document.
	DocumentHTML(ctx context.Context) (string, error)

	// BodyLength returns the byte length of the serialised body, the
	// cheap change heuristic used by the periodic sweep.
	BodyLength(ctx context.Context) (int, error)

	// ApplyHeadingIDs replays the extraction query against the live
	// document and assigns the generated ids to headings that still
	// have none.
	ApplyHeadingIDs(ctx context.Context, scope headings.Scope, assigns []headings.Assignment) error

	// HeadingOffsets measures the document-relative vertical offset of
	// each id. Missing ids are absent from the result.
	HeadingOffsets(ctx context.Context, ids []string) (map[string]float64, error)

	// ApplySidebar atomically replaces (or first inserts) the sidebar
	// root with the given fragment.
	ApplySidebar(ctx context.Context, fragment string) error

	// SidebarPresent reports whether the sidebar root element exists in
	// the document. Used as the DOM marker for idempotent init.
	SidebarPresent(ctx context.Context) (bool, error)

	// ScrollToHeading scrolls to and highlights the element with the
	// given id. Returns false when the id no longer resolves.
	ScrollToHeading(ctx context.Context, id string) (bool, error)

	// ScrollToOffset scrolls to an absolute vertical offset, the
	// fallback when an id has gone away.
	ScrollToOffset(ctx context.Context, y float64) error

	// Events is the stream of unsolicited page signals.
	Events() <-chan Event

	// Close releases the surface. The event channel is closed.
	Close() error
}
