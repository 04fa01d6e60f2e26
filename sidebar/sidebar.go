// Package sidebar renders the table-of-contents panel into a page surface
// and owns its visibility and position state machine. Every render is one
// atomic fragment swap; the page never sees a partially built panel.
package sidebar

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/EaziSpace/gen-toc/headings"
	"github.com/EaziSpace/gen-toc/page"
)

// Position is the screen edge the panel docks to.
type Position string

// Visibility is whether the panel is shown.
type Visibility string

const (
	PositionLeft  Position = "left"
	PositionRight Position = "right"

	Visible Visibility = "visible"
	Hidden  Visibility = "hidden"

	DefaultPosition   = PositionRight
	DefaultVisibility = Visible

	// RootID is the id of the panel root element, also the DOM marker
	// checked for idempotent init.
	RootID = "gentoc-root"
)

// StateStore persists visibility and position across sessions.
type StateStore interface {
	// LoadState returns the saved position and visibility, or zero
	// values when nothing is saved yet.
	LoadState() (pos, vis string, err error)
	SavePosition(pos string) error
	SaveVisibility(vis string) error
}

// View is the panel's content state. The three states are mutually
// exclusive; each render shows exactly one.
type View int

const (
	ViewScanning View = iota
	ViewEmpty
	ViewList
)

// Renderer drives the panel for one page.
type Renderer struct {
	surface page.Surface
	store   StateStore
	policy  *bluemonday.Policy

	pos  Position
	vis  Visibility
	view View
	recs []headings.Record

	// onShow runs after a hidden-to-visible transition so the owner can
	// force a content refresh; entries may have gone stale while hidden.
	onShow func()
}

// NewRenderer loads persisted state (falling back to the defaults) and
// returns a renderer that has not yet touched the page.
func NewRenderer(surface page.Surface, store StateStore) (*Renderer, error) {
	r := &Renderer{
		surface: surface,
		store:   store,
		policy:  bluemonday.StrictPolicy(),
		pos:     DefaultPosition,
		vis:     DefaultVisibility,
		view:    ViewScanning,
	}
	pos, vis, err := store.LoadState()
	if err != nil {
		return nil, fmt.Errorf("sidebar: load state: %w", err)
	}
	if p := Position(pos); p == PositionLeft || p == PositionRight {
		r.pos = p
	}
	if v := Visibility(vis); v == Visible || v == Hidden {
		r.vis = v
	}
	return r, nil
}

// OnShow registers the forced-refresh hook invoked when the panel
// transitions from hidden to visible.
func (r *Renderer) OnShow(fn func()) { r.onShow = fn }

// Position returns the current dock edge.
func (r *Renderer) Position() Position { return r.pos }

// Visibility returns the current visibility.
func (r *Renderer) Visibility() Visibility { return r.vis }

// Entries returns the records shown by the last list render.
func (r *Renderer) Entries() []headings.Record { return r.recs }

// ShowScanning renders the transient scanning state.
func (r *Renderer) ShowScanning(ctx context.Context) error {
	r.view = ViewScanning
	r.recs = nil
	return r.apply(ctx)
}

// ShowEmpty renders the no-headings state.
func (r *Renderer) ShowEmpty(ctx context.Context) error {
	r.view = ViewEmpty
	r.recs = nil
	return r.apply(ctx)
}

// Render shows the entry list. An empty slice renders the empty state
// instead; the list view never shows zero entries.
func (r *Renderer) Render(ctx context.Context, recs []headings.Record) error {
	if len(recs) == 0 {
		return r.ShowEmpty(ctx)
	}
	r.view = ViewList
	r.recs = recs
	return r.apply(ctx)
}

// ToggleVisibility flips visibility, persists it, re-renders, and fires
// the OnShow hook on a hidden-to-visible transition.
func (r *Renderer) ToggleVisibility(ctx context.Context) (Visibility, error) {
	next := Visible
	if r.vis == Visible {
		next = Hidden
	}
	if err := r.store.SaveVisibility(string(next)); err != nil {
		return r.vis, fmt.Errorf("sidebar: save visibility: %w", err)
	}
	shown := r.vis == Hidden && next == Visible
	r.vis = next
	if err := r.apply(ctx); err != nil {
		return r.vis, err
	}
	if shown && r.onShow != nil {
		r.onShow()
	}
	return r.vis, nil
}

// SetPosition docks the panel to the given edge and persists the choice.
// Position changes apply even while hidden, so the panel reappears where
// the user last put it.
func (r *Renderer) SetPosition(ctx context.Context, pos Position) error {
	if pos != PositionLeft && pos != PositionRight {
		return fmt.Errorf("sidebar: invalid position %q", pos)
	}
	if err := r.store.SavePosition(string(pos)); err != nil {
		return fmt.Errorf("sidebar: save position: %w", err)
	}
	r.pos = pos
	return r.apply(ctx)
}

// TogglePosition flips the dock edge.
func (r *Renderer) TogglePosition(ctx context.Context) (Position, error) {
	next := PositionLeft
	if r.pos == PositionLeft {
		next = PositionRight
	}
	return next, r.SetPosition(ctx, next)
}

func (r *Renderer) apply(ctx context.Context) error {
	if err := r.surface.ApplySidebar(ctx, r.fragment()); err != nil {
		return fmt.Errorf("sidebar: apply: %w", err)
	}
	return nil
}

// fragment builds the full panel markup. Heading text passes through the
// strict sanitiser and is then entity-escaped, so markup in headings can
// never reach the page as markup.
func (r *Renderer) fragment() string {
	var b strings.Builder
	fmt.Fprintf(&b, `<nav id=%q data-position=%q data-visible=%q>`,
		RootID, r.pos, r.vis)
	b.WriteString(`<div class="gentoc-header"><span class="gentoc-title">Contents</span>` +
		`<button class="gentoc-move" type="button" aria-label="Move sidebar">&#8644;</button>` +
		`<button class="gentoc-close" type="button" aria-label="Hide sidebar">&#215;</button></div>`)

	switch r.view {
	case ViewScanning:
		b.WriteString(`<p class="gentoc-status gentoc-scanning">Scanning&#8230;</p>`)
	case ViewEmpty:
		b.WriteString(`<p class="gentoc-status gentoc-empty">No headings found</p>`)
	case ViewList:
		b.WriteString(`<ul class="gentoc-list">`)
		for _, rec := range r.recs {
			text := html.EscapeString(r.policy.Sanitize(rec.Text))
			fmt.Fprintf(&b, `<li><a class="gentoc-item" data-level="%d" href="#%s">%s</a></li>`,
				rec.Level, html.EscapeString(rec.ID), text)
		}
		b.WriteString(`</ul>`)
	}
	b.WriteString(`</nav>`)
	return b.String()
}
