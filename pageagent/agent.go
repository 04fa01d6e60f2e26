package pageagent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/EaziSpace/gen-toc/headings"
	"github.com/EaziSpace/gen-toc/monitor"
	"github.com/EaziSpace/gen-toc/page"
	"github.com/EaziSpace/gen-toc/sidebar"
)

// Config wires an Agent to its page.
type Config struct {
	Surface   page.Surface
	Store     sidebar.StateStore
	Logger    *slog.Logger
	Intervals Intervals

	// Allowed is the domain policy verdict for this page, echoed in ping
	// responses so callers can tell "agent alive" from "agent enabled".
	Allowed bool
}

type call struct {
	req   Request
	reply chan Response
}

// Agent owns the sidebar for one page. All state lives on the event-loop
// goroutine; the only way in is Call.
type Agent struct {
	surface  page.Surface
	renderer *sidebar.Renderer
	log      *slog.Logger
	iv       Intervals
	allowed  bool

	reqCh chan call
	done  chan struct{}

	startOnce sync.Once
	cancel    context.CancelFunc

	// Loop-owned state below. Never touched outside the loop goroutine.
	recs         []headings.Record
	offsets      map[string]float64
	scanned      bool
	lastRefresh  time.Time
	emptyRetried bool
	pageVisible  bool
	showRefresh  bool

	debounce *monitor.Debouncer
	sweeper  *monitor.Sweeper
	interact *monitor.Interaction
	auto     *monitor.AutoRefresh

	emptyCh <-chan time.Time
	autoCh  <-chan time.Time
}

// New builds an Agent. It does not touch the page until Start.
func New(cfg Config) (*Agent, error) {
	if cfg.Surface == nil {
		return nil, fmt.Errorf("pageagent: nil surface")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("pageagent: nil store")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	iv := cfg.Intervals.withDefaults()

	renderer, err := sidebar.NewRenderer(cfg.Surface, cfg.Store)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		surface:     cfg.Surface,
		renderer:    renderer,
		log:         cfg.Logger.With("url", cfg.Surface.URL()),
		iv:          iv,
		allowed:     cfg.Allowed,
		reqCh:       make(chan call),
		done:        make(chan struct{}),
		offsets:     map[string]float64{},
		pageVisible: true,
		debounce:    monitor.NewDebouncer(iv.Debounce),
		sweeper:     monitor.NewSweeper(iv.SizeDelta),
		interact:    monitor.NewInteraction(iv.InteractionReset),
		auto:        monitor.NewAutoRefresh(iv.AutoRefreshAttempts, iv.AutoRefreshEvery),
	}
	renderer.OnShow(func() { a.showRefresh = true })
	return a, nil
}

// Start initialises the sidebar and launches the event loop. Repeat calls
// are no-ops; a sidebar root already in the DOM (from an earlier agent on
// the same page) is not re-inserted, only adopted.
func (a *Agent) Start(ctx context.Context) error {
	var startErr error
	a.startOnce.Do(func() {
		present, err := a.surface.SidebarPresent(ctx)
		if err != nil {
			startErr = fmt.Errorf("pageagent: probe sidebar: %w", err)
			return
		}
		if !present {
			if err := a.renderer.ShowScanning(ctx); err != nil {
				startErr = err
				return
			}
		}
		loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a.cancel = cancel
		go a.loop(loopCtx)
	})
	return startErr
}

// Stop terminates the event loop and waits for it to drain.
func (a *Agent) Stop() {
	if a.cancel != nil {
		a.cancel()
		<-a.done
	}
}

// Call sends one request and waits for its response. Every request is
// answered; a stopped agent answers with an error.
func (a *Agent) Call(ctx context.Context, req Request) Response {
	c := call{req: req, reply: make(chan Response, 1)}
	select {
	case a.reqCh <- c:
	case <-a.done:
		return Response{Error: "pageagent: agent stopped"}
	case <-ctx.Done():
		return Response{Error: fmt.Sprintf("pageagent: %v", ctx.Err())}
	}
	select {
	case resp := <-c.reply:
		return resp
	case <-a.done:
		return Response{Error: "pageagent: agent stopped"}
	case <-ctx.Done():
		return Response{Error: fmt.Sprintf("pageagent: %v", ctx.Err())}
	}
}

func (a *Agent) loop(ctx context.Context) {
	defer close(a.done)

	sweep := time.NewTicker(a.iv.Sweep)
	defer sweep.Stop()
	defer a.debounce.Stop()

	a.refresh(ctx, true)
	a.armAuto(a.auto.Start())

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-a.reqCh:
			c.reply <- a.dispatch(ctx, c.req)
		case ev, ok := <-a.surface.Events():
			if !ok {
				return
			}
			a.handleEvent(ctx, ev)
		case <-a.debounce.C():
			if a.debounce.Fire() {
				a.refresh(ctx, false)
			}
		case <-sweep.C:
			a.sweep(ctx)
		case <-a.emptyCh:
			a.emptyCh = nil
			a.refresh(ctx, true)
		case <-a.autoCh:
			a.autoCh = nil
			a.refresh(ctx, false)
			a.armAuto(a.auto.Next(len(a.recs) > 0))
		}
	}
}

func (a *Agent) handleEvent(ctx context.Context, ev page.Event) {
	switch e := ev.(type) {
	case page.MutationEvent:
		if monitor.Relevant(e.Records, a.iv.MaxLevel) {
			a.debounce.Trigger()
		}
	case page.InteractionEvent:
		a.interact.Set(e.Active)
	case page.VisibilityEvent:
		a.pageVisible = e.Visible
	case page.LoadEvent:
		a.refresh(ctx, true)
		a.restartAuto()
	case page.NavigationEvent:
		a.log.Debug("in-page navigation", "to", e.URL)
		a.resetForNavigation(ctx)
	case page.EntryClickEvent:
		if err := a.scrollTo(ctx, e.HeadingID, a.offsets[e.HeadingID]); err != nil {
			a.log.Warn("entry click scroll failed", "err", err)
		}
	case page.ToggleRequestEvent:
		if _, err := a.renderer.ToggleVisibility(ctx); err != nil {
			a.log.Warn("toggle failed", "err", err)
		}
		if a.showRefresh {
			a.showRefresh = false
			a.refresh(ctx, true)
		}
	case page.MoveRequestEvent:
		if _, err := a.renderer.TogglePosition(ctx); err != nil {
			a.log.Warn("move failed", "err", err)
		}
	}
}

func (a *Agent) dispatch(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("request handler panicked", "action", req.Action, "panic", r)
			resp = Response{Error: fmt.Sprintf("pageagent: %s: internal error", req.Action)}
		}
	}()

	switch req.Action {
	case ActionPing:
		allowed := a.allowed
		return Response{Success: true, Pong: true, Allowed: &allowed}

	case ActionGetHeadings:
		if !a.scanned {
			a.refresh(ctx, true)
		}
		return Response{Success: true, Headings: a.headingEntries()}

	case ActionScroll:
		if req.Scroll == nil {
			return Response{Error: "pageagent: scrollToHeading: missing target"}
		}
		if err := a.scrollTo(ctx, req.Scroll.ID, req.Scroll.Position); err != nil {
			return Response{Error: err.Error()}
		}
		return Response{Success: true}

	case ActionToggle:
		vis, err := a.renderer.ToggleVisibility(ctx)
		if err != nil {
			return Response{Error: err.Error()}
		}
		if a.showRefresh {
			a.showRefresh = false
			a.refresh(ctx, true)
		}
		return Response{Success: true, Visibility: string(vis)}

	case ActionRefresh:
		a.refresh(ctx, true)
		return Response{Success: true, Headings: a.headingEntries()}

	case ActionSetPosition:
		if req.SetPosition == nil {
			return Response{Error: "pageagent: setPosition: missing position"}
		}
		if err := a.renderer.SetPosition(ctx, sidebar.Position(req.SetPosition.Position)); err != nil {
			return Response{Error: err.Error()}
		}
		return Response{Success: true, Position: req.SetPosition.Position}

	case ActionGetPosition:
		return Response{
			Success:    true,
			Position:   string(a.renderer.Position()),
			Visibility: string(a.renderer.Visibility()),
		}

	default:
		return Response{Error: fmt.Sprintf("pageagent: unknown action %q", req.Action)}
	}
}

// refresh re-extracts headings and re-renders. Unforced refreshes inside
// the throttle window are dropped; the debounce and sweep paths will come
// around again.
func (a *Agent) refresh(ctx context.Context, force bool) {
	if !force && time.Since(a.lastRefresh) < a.iv.RefreshThrottle {
		return
	}
	a.lastRefresh = time.Now()

	src, err := a.surface.DocumentHTML(ctx)
	if err != nil {
		a.log.Warn("read document failed", "err", err)
		return
	}
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		a.log.Warn("parse document failed", "err", err)
		return
	}

	res := headings.Extract(doc, headings.Options{MaxLevel: a.iv.MaxLevel})
	if len(res.Assigned) > 0 {
		if err := a.surface.ApplyHeadingIDs(ctx, res.Scope, res.Assigned); err != nil {
			a.log.Warn("apply heading ids failed", "err", err)
			return
		}
	}

	ids := make([]string, len(res.Records))
	for i, r := range res.Records {
		ids[i] = r.ID
	}
	offs, err := a.surface.HeadingOffsets(ctx, ids)
	if err != nil {
		a.log.Warn("measure offsets failed", "err", err)
		offs = map[string]float64{}
	}
	for i := range res.Records {
		res.Records[i].VerticalPos = offs[res.Records[i].ID]
	}

	a.recs = res.Records
	a.offsets = offs
	a.scanned = true

	if err := a.renderer.Render(ctx, a.recs); err != nil {
		a.log.Warn("render failed", "err", err)
		return
	}

	if len(a.recs) == 0 && !a.emptyRetried {
		a.emptyRetried = true
		a.emptyCh = time.After(a.iv.EmptyRetry)
	}
}

// sweep runs the size heuristic. It is gated off whenever a refresh would
// be useless or disruptive: sidebar hidden, user engaged, or tab hidden.
func (a *Agent) sweep(ctx context.Context) {
	gated := a.renderer.Visibility() != sidebar.Visible ||
		a.interact.Active() || !a.pageVisible
	a.sweeper.Pause(gated)
	if gated {
		return
	}
	n, err := a.surface.BodyLength(ctx)
	if err != nil {
		a.log.Warn("body length failed", "err", err)
		return
	}
	if a.sweeper.Observe(n) {
		a.refresh(ctx, false)
	}
}

func (a *Agent) scrollTo(ctx context.Context, id string, fallback float64) error {
	ok, err := a.surface.ScrollToHeading(ctx, id)
	if err != nil {
		return fmt.Errorf("pageagent: scroll: %w", err)
	}
	if ok {
		return nil
	}
	// Heading vanished since extraction; land near where it was.
	if err := a.surface.ScrollToOffset(ctx, fallback); err != nil {
		return fmt.Errorf("pageagent: scroll fallback: %w", err)
	}
	return nil
}

func (a *Agent) resetForNavigation(ctx context.Context) {
	a.debounce.Stop()
	a.sweeper.Reset()
	a.emptyRetried = false
	a.emptyCh = nil
	a.scanned = false
	a.recs = nil
	a.offsets = map[string]float64{}
	if err := a.renderer.ShowScanning(ctx); err != nil {
		a.log.Warn("render scanning failed", "err", err)
	}
	a.refresh(ctx, true)
	a.restartAuto()
}

func (a *Agent) restartAuto() {
	a.auto = monitor.NewAutoRefresh(a.iv.AutoRefreshAttempts, a.iv.AutoRefreshEvery)
	a.armAuto(a.auto.Start())
}

func (a *Agent) armAuto(d time.Duration, ok bool) {
	if !ok {
		a.autoCh = nil
		return
	}
	a.autoCh = time.After(d)
}

func (a *Agent) headingEntries() []HeadingEntry {
	out := make([]HeadingEntry, len(a.recs))
	for i, r := range a.recs {
		out[i] = HeadingEntry{Text: r.Text, Level: r.Level, ID: r.ID, Position: r.VerticalPos}
	}
	return out
}
