// Package coordinator tracks which pages carry a live agent, injects
// agents on demand, and relays externally named commands to them. It is
// the single authority on injection state; callers never talk to an agent
// they did not get from here.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/EaziSpace/gen-toc/pageagent"
)

// AgentClient is the coordinator's handle on one page agent.
type AgentClient interface {
	Call(ctx context.Context, req pageagent.Request) pageagent.Response
	Stop()
}

// Injector creates an agent on a page. The production implementation
// drives a browser tab; tests plug in fakes.
type Injector interface {
	Inject(ctx context.Context, pageID, pageURL string, allowed bool) (AgentClient, error)
}

// DomainPolicy decides whether a domain gets a sidebar. Unknown domains
// are allowed.
type DomainPolicy interface {
	Allowed(domain string) (bool, error)
}

// allowAll is the policy when none is configured.
type allowAll struct{}

func (allowAll) Allowed(string) (bool, error) { return true, nil }

// InjectionRecord is the tracked state of one page.
type InjectionRecord struct {
	PageID            string    `json:"page_id"`
	URL               string    `json:"url"`
	Allowed           bool      `json:"allowed"`
	ConfirmedInjected bool      `json:"confirmed_injected"`
	LastConfirmedAt   time.Time `json:"last_confirmed_at,omitempty"`
}

// Command is one externally named request addressed to a page.
type Command struct {
	Action   string                   `json:"action"`
	PageID   string                   `json:"page_id"`
	Scroll   *pageagent.ScrollRequest `json:"scroll,omitempty"`
	Position string                   `json:"position,omitempty"`
}

// Update is a headings change broadcast to subscribers.
type Update struct {
	PageID   string                   `json:"page_id"`
	Headings []pageagent.HeadingEntry `json:"headings"`
}

type pageState struct {
	rec      InjectionRecord
	agent    AgentClient
	inflight chan struct{} // non-nil while an EnsureInjected holds the page
}

// Config wires a Coordinator.
type Config struct {
	Injector Injector
	Policy   DomainPolicy
	Logger   *slog.Logger

	// SettleDelay is how long to wait before the ping retry after a
	// fresh injection, giving the agent time to come up.
	SettleDelay time.Duration
}

// Coordinator owns the page registry.
type Coordinator struct {
	injector Injector
	policy   DomainPolicy
	log      *slog.Logger
	settle   time.Duration

	mu    sync.Mutex
	pages map[string]*pageState
	subs  map[chan Update]struct{}
}

// New builds a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Injector == nil {
		return nil, fmt.Errorf("coordinator: nil injector")
	}
	if cfg.Policy == nil {
		cfg.Policy = allowAll{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 300 * time.Millisecond
	}
	return &Coordinator{
		injector: cfg.Injector,
		policy:   cfg.Policy,
		log:      cfg.Logger,
		settle:   cfg.SettleDelay,
		pages:    map[string]*pageState{},
		subs:     map[chan Update]struct{}{},
	}, nil
}

// Attach registers a page and returns its id. No injection happens yet;
// the first command (or an explicit EnsureInjected) triggers it.
func (c *Coordinator) Attach(ctx context.Context, pageURL string) (string, error) {
	domain := domainOf(pageURL)
	allowed, err := c.policy.Allowed(domain)
	if err != nil {
		return "", fmt.Errorf("coordinator: domain policy: %w", err)
	}

	id := uuid.NewString()
	c.mu.Lock()
	c.pages[id] = &pageState{rec: InjectionRecord{
		PageID:  id,
		URL:     pageURL,
		Allowed: allowed,
	}}
	c.mu.Unlock()

	c.log.Info("page attached", "page_id", id, "url", pageURL, "allowed", allowed)
	return id, nil
}

// EnsureInjected guarantees a responsive agent on the page. A confirmed
// record is verified with a ping; stale or fresh records get one injection
// attempt, whose ping is retried once after the settle delay. Concurrent
// callers for the same page serialize on an in-flight slot, so a fresh
// page is injected exactly once and the later caller adopts the result.
func (c *Coordinator) EnsureInjected(ctx context.Context, pageID string) (AgentClient, error) {
	if err := c.claim(ctx, pageID); err != nil {
		return nil, err
	}
	defer c.release(pageID)

	c.mu.Lock()
	st, ok := c.pages[pageID]
	if !ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("coordinator: unknown page %s", pageID)
	}
	rec := st.rec
	agent := st.agent
	c.mu.Unlock()

	if !rec.Allowed {
		return nil, fmt.Errorf("coordinator: domain disabled for %s", rec.URL)
	}

	if rec.ConfirmedInjected && agent != nil {
		if resp := agent.Call(ctx, pageagent.Request{Action: pageagent.ActionPing}); resp.Pong {
			c.confirm(pageID)
			return agent, nil
		}
		c.log.Warn("confirmed agent unresponsive, re-injecting", "page_id", pageID)
		agent.Stop()
	}

	injected, err := c.injector.Inject(ctx, pageID, rec.URL, rec.Allowed)
	if err != nil {
		return nil, fmt.Errorf("coordinator: inject %s: %w", pageID, err)
	}

	// One retry: the injected agent may need a moment before it answers.
	err = retry.Do(
		func() error {
			resp := injected.Call(ctx, pageagent.Request{Action: pageagent.ActionPing})
			if !resp.Pong {
				return fmt.Errorf("coordinator: ping %s: %s", pageID, resp.Error)
			}
			return nil
		},
		retry.Attempts(2),
		retry.Delay(c.settle),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		injected.Stop()
		return nil, err
	}

	var displaced AgentClient
	c.mu.Lock()
	st, ok = c.pages[pageID]
	if ok {
		if st.agent != nil && st.agent != injected {
			displaced = st.agent
		}
		st.agent = injected
		st.rec.ConfirmedInjected = true
		st.rec.LastConfirmedAt = time.Now()
	}
	c.mu.Unlock()
	if !ok {
		// Page closed while injecting.
		injected.Stop()
		return nil, fmt.Errorf("coordinator: unknown page %s", pageID)
	}
	if displaced != nil && displaced != agent {
		displaced.Stop()
	}
	return injected, nil
}

// claim takes the page's in-flight slot, waiting out any current holder.
func (c *Coordinator) claim(ctx context.Context, pageID string) error {
	c.mu.Lock()
	for {
		st, ok := c.pages[pageID]
		if !ok {
			c.mu.Unlock()
			return fmt.Errorf("coordinator: unknown page %s", pageID)
		}
		if st.inflight == nil {
			st.inflight = make(chan struct{})
			c.mu.Unlock()
			return nil
		}
		wait := st.inflight
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return fmt.Errorf("coordinator: ensure %s: %w", pageID, ctx.Err())
		}
		c.mu.Lock()
	}
}

func (c *Coordinator) release(pageID string) {
	c.mu.Lock()
	if st, ok := c.pages[pageID]; ok && st.inflight != nil {
		close(st.inflight)
		st.inflight = nil
	}
	c.mu.Unlock()
}

// Relay translates a command's external action name and forwards it to
// the page's agent, injecting first when needed.
func (c *Coordinator) Relay(ctx context.Context, cmd Command) (pageagent.Response, error) {
	action, ok := translate(cmd.Action)
	if !ok {
		return pageagent.Response{}, fmt.Errorf("coordinator: unknown action %q", cmd.Action)
	}

	req := pageagent.Request{Action: action, Scroll: cmd.Scroll}
	if action == pageagent.ActionSetPosition {
		req.SetPosition = &pageagent.PositionRequest{Position: cmd.Position}
	}

	agent, err := c.EnsureInjected(ctx, cmd.PageID)
	if err != nil {
		return pageagent.Response{}, err
	}
	resp := agent.Call(ctx, req)

	if resp.Success && (action == pageagent.ActionRefresh || action == pageagent.ActionGetHeadings) {
		c.publish(Update{PageID: cmd.PageID, Headings: resp.Headings})
	}
	return resp, nil
}

// PageNavigated invalidates the injection state after a full navigation.
// The old agent, if any, is stopped; the next command re-injects.
func (c *Coordinator) PageNavigated(pageID, newURL string) {
	c.mu.Lock()
	st, ok := c.pages[pageID]
	var agent AgentClient
	if ok {
		agent = st.agent
		st.agent = nil
		st.rec.URL = newURL
		st.rec.ConfirmedInjected = false
	}
	c.mu.Unlock()
	if agent != nil {
		agent.Stop()
	}
	if ok {
		c.log.Info("page navigated", "page_id", pageID, "url", newURL)
	}
}

// PageClosed drops the page and stops its agent.
func (c *Coordinator) PageClosed(pageID string) {
	c.mu.Lock()
	st, ok := c.pages[pageID]
	if ok {
		delete(c.pages, pageID)
		if st.inflight != nil {
			close(st.inflight)
			st.inflight = nil
		}
	}
	c.mu.Unlock()
	if ok && st.agent != nil {
		st.agent.Stop()
	}
	if ok {
		c.log.Info("page closed", "page_id", pageID)
	}
}

// Page returns the record for one page.
func (c *Coordinator) Page(pageID string) (InjectionRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.pages[pageID]
	if !ok {
		return InjectionRecord{}, false
	}
	return st.rec, true
}

// Pages lists all tracked pages.
func (c *Coordinator) Pages() []InjectionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]InjectionRecord, 0, len(c.pages))
	for _, st := range c.pages {
		out = append(out, st.rec)
	}
	return out
}

// Subscribe returns a channel of heading updates and a cancel function.
// Slow subscribers drop updates rather than block the relay path.
func (c *Coordinator) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 16)
	c.mu.Lock()
	c.subs[ch] = struct{}{}
	c.mu.Unlock()
	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subs[ch]; ok {
			delete(c.subs, ch)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// InvalidateAll drops every page's injection confirmation and stops its
// agent. Used when the browser behind the agents goes away, as during a
// Chrome recycle; the next command per page re-injects.
func (c *Coordinator) InvalidateAll() {
	c.mu.Lock()
	var stopped []AgentClient
	for _, st := range c.pages {
		if st.agent != nil {
			stopped = append(stopped, st.agent)
			st.agent = nil
		}
		st.rec.ConfirmedInjected = false
	}
	c.mu.Unlock()
	for _, a := range stopped {
		a.Stop()
	}
	c.log.Info("injection state invalidated", "agents_stopped", len(stopped))
}

// Close stops every agent and drops all state.
func (c *Coordinator) Close() {
	c.mu.Lock()
	pages := c.pages
	c.pages = map[string]*pageState{}
	for ch := range c.subs {
		close(ch)
	}
	c.subs = map[chan Update]struct{}{}
	c.mu.Unlock()
	for _, st := range pages {
		if st.inflight != nil {
			close(st.inflight)
			st.inflight = nil
		}
		if st.agent != nil {
			st.agent.Stop()
		}
	}
}

func (c *Coordinator) publish(u Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

func (c *Coordinator) confirm(pageID string) {
	c.mu.Lock()
	if st, ok := c.pages[pageID]; ok {
		st.rec.ConfirmedInjected = true
		st.rec.LastConfirmedAt = time.Now()
	}
	c.mu.Unlock()
}

// translate maps external action names onto agent actions. The sidebar's
// outward names predate the agent protocol and are kept for callers.
func translate(action string) (pageagent.Action, bool) {
	switch action {
	case "toggleTOC", "toggle":
		return pageagent.ActionToggle, true
	case "refreshTOC", "refresh":
		return pageagent.ActionRefresh, true
	case "getHeadings":
		return pageagent.ActionGetHeadings, true
	case "scrollToHeading":
		return pageagent.ActionScroll, true
	case "setPosition":
		return pageagent.ActionSetPosition, true
	case "getPosition":
		return pageagent.ActionGetPosition, true
	case "ping":
		return pageagent.ActionPing, true
	default:
		return "", false
	}
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
