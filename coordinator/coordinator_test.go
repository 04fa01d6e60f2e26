package coordinator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/EaziSpace/gen-toc/pageagent"
)

// fakeAgent answers pings after failAt attempts and records calls.
type fakeAgent struct {
	mu       sync.Mutex
	calls    []pageagent.Action
	pingFail int // pings to fail before answering
	stopped  bool
}

func (f *fakeAgent) Call(_ context.Context, req pageagent.Request) pageagent.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req.Action)
	if req.Action == pageagent.ActionPing {
		if f.pingFail > 0 {
			f.pingFail--
			return pageagent.Response{Error: "not ready"}
		}
		return pageagent.Response{Success: true, Pong: true}
	}
	return pageagent.Response{
		Success:  true,
		Headings: []pageagent.HeadingEntry{{Text: "Alpha", Level: 1, ID: "toc-heading-0"}},
	}
}

func (f *fakeAgent) Stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

func (f *fakeAgent) actions() []pageagent.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pageagent.Action(nil), f.calls...)
}

func (f *fakeAgent) isStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakeInjector struct {
	mu      sync.Mutex
	injects int
	next    *fakeAgent
	made    []*fakeAgent
	err     error
	delay   time.Duration // simulated injection latency
}

func (f *fakeInjector) Inject(context.Context, string, string, bool) (AgentClient, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.injects++
	if f.err != nil {
		return nil, f.err
	}
	a := f.next
	if a == nil {
		a = &fakeAgent{}
	}
	f.next = nil
	f.made = append(f.made, a)
	return a, nil
}

func (f *fakeInjector) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.injects
}

func (f *fakeInjector) created() []*fakeAgent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeAgent(nil), f.made...)
}

type denyPolicy struct{ blocked string }

func (p denyPolicy) Allowed(domain string) (bool, error) {
	return domain != p.blocked, nil
}

func newCoordinator(t *testing.T, inj Injector, policy DomainPolicy) *Coordinator {
	t.Helper()
	c, err := New(Config{Injector: inj, Policy: policy, SettleDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestCoordinator_InjectOncePingThereafter(t *testing.T) {
	ctx := context.Background()
	inj := &fakeInjector{}
	c := newCoordinator(t, inj, nil)

	id, err := c.Attach(ctx, "https://example.com/doc")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if rec, _ := c.Page(id); rec.ConfirmedInjected {
		t.Error("fresh page must not be confirmed")
	}

	if _, err := c.EnsureInjected(ctx, id); err != nil {
		t.Fatalf("EnsureInjected: %v", err)
	}
	if inj.count() != 1 {
		t.Fatalf("injects: got %d, want 1", inj.count())
	}
	rec, _ := c.Page(id)
	if !rec.ConfirmedInjected || rec.LastConfirmedAt.IsZero() {
		t.Errorf("record not confirmed: %+v", rec)
	}

	// Second ensure verifies by ping, no new injection.
	if _, err := c.EnsureInjected(ctx, id); err != nil {
		t.Fatalf("EnsureInjected: %v", err)
	}
	if inj.count() != 1 {
		t.Errorf("injects after re-ensure: got %d, want 1", inj.count())
	}
}

func TestCoordinator_PingRetriedAfterSettle(t *testing.T) {
	ctx := context.Background()
	inj := &fakeInjector{next: &fakeAgent{pingFail: 1}}
	c := newCoordinator(t, inj, nil)

	id, _ := c.Attach(ctx, "https://example.com/")
	if _, err := c.EnsureInjected(ctx, id); err != nil {
		t.Fatalf("EnsureInjected with slow agent: %v", err)
	}
}

func TestCoordinator_PingExhaustedFails(t *testing.T) {
	ctx := context.Background()
	inj := &fakeInjector{next: &fakeAgent{pingFail: 5}}
	c := newCoordinator(t, inj, nil)

	id, _ := c.Attach(ctx, "https://example.com/")
	if _, err := c.EnsureInjected(ctx, id); err == nil {
		t.Fatal("expected failure after ping retries exhausted")
	}
}

func TestCoordinator_UnresponsiveAgentReinjected(t *testing.T) {
	ctx := context.Background()
	inj := &fakeInjector{}
	c := newCoordinator(t, inj, nil)

	id, _ := c.Attach(ctx, "https://example.com/")
	first, err := c.EnsureInjected(ctx, id)
	if err != nil {
		t.Fatal(err)
	}

	// Wedge the confirmed agent so its pings fail from now on.
	first.(*fakeAgent).mu.Lock()
	first.(*fakeAgent).pingFail = 1 << 20
	first.(*fakeAgent).mu.Unlock()

	second, err := c.EnsureInjected(ctx, id)
	if err != nil {
		t.Fatalf("re-inject: %v", err)
	}
	if second == first {
		t.Error("expected a fresh agent")
	}
	if inj.count() != 2 {
		t.Errorf("injects: got %d, want 2", inj.count())
	}
	if !first.(*fakeAgent).stopped {
		t.Error("dead agent not stopped")
	}
}

func TestCoordinator_ConcurrentEnsureInjectsOnce(t *testing.T) {
	ctx := context.Background()
	inj := &fakeInjector{delay: 50 * time.Millisecond}
	c := newCoordinator(t, inj, nil)

	id, err := c.Attach(ctx, "https://example.com/doc")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	// Two callers race the first injection; the slot makes the loser wait
	// and adopt the winner's agent.
	agents := make([]AgentClient, 2)
	var wg sync.WaitGroup
	for i := range agents {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := c.EnsureInjected(ctx, id)
			if err != nil {
				t.Errorf("EnsureInjected: %v", err)
				return
			}
			agents[i] = a
		}(i)
	}
	wg.Wait()

	if inj.count() != 1 {
		t.Errorf("injects: got %d, want 1", inj.count())
	}
	if agents[0] == nil || agents[0] != agents[1] {
		t.Errorf("callers got different agents: %v, %v", agents[0], agents[1])
	}
	live := 0
	for _, a := range inj.created() {
		if !a.isStopped() {
			live++
		}
	}
	if live != 1 {
		t.Errorf("live agents: got %d, want 1", live)
	}
}

func TestCoordinator_InvalidateAllStopsAgents(t *testing.T) {
	ctx := context.Background()
	inj := &fakeInjector{}
	c := newCoordinator(t, inj, nil)

	idA, _ := c.Attach(ctx, "https://example.com/a")
	idB, _ := c.Attach(ctx, "https://example.com/b")
	if _, err := c.EnsureInjected(ctx, idA); err != nil {
		t.Fatal(err)
	}
	if _, err := c.EnsureInjected(ctx, idB); err != nil {
		t.Fatal(err)
	}

	c.InvalidateAll()

	for _, a := range inj.created() {
		if !a.isStopped() {
			t.Error("agent survived invalidation")
		}
	}
	for _, id := range []string{idA, idB} {
		rec, _ := c.Page(id)
		if rec.ConfirmedInjected {
			t.Errorf("page %s still confirmed", id)
		}
	}

	// The next ensure re-injects.
	if _, err := c.EnsureInjected(ctx, idA); err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
	if inj.count() != 3 {
		t.Errorf("injects: got %d, want 3", inj.count())
	}
}

func TestCoordinator_DeniedDomain(t *testing.T) {
	ctx := context.Background()
	inj := &fakeInjector{}
	c := newCoordinator(t, inj, denyPolicy{blocked: "blocked.example"})

	id, err := c.Attach(ctx, "https://blocked.example/page")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	rec, _ := c.Page(id)
	if rec.Allowed {
		t.Error("record must carry the deny verdict")
	}

	if _, err := c.EnsureInjected(ctx, id); err == nil {
		t.Fatal("expected domain disabled error")
	}
	if inj.count() != 0 {
		t.Errorf("denied domain must never inject, got %d injects", inj.count())
	}
}

func TestCoordinator_RelayTranslatesActions(t *testing.T) {
	ctx := context.Background()
	agent := &fakeAgent{}
	inj := &fakeInjector{next: agent}
	c := newCoordinator(t, inj, nil)

	id, _ := c.Attach(ctx, "https://example.com/")

	resp, err := c.Relay(ctx, Command{Action: "toggleTOC", PageID: id})
	if err != nil {
		t.Fatalf("Relay: %v", err)
	}
	if !resp.Success {
		t.Fatalf("resp: %+v", resp)
	}

	var sawToggle bool
	for _, a := range agent.actions() {
		if a == pageagent.ActionToggle {
			sawToggle = true
		}
	}
	if !sawToggle {
		t.Errorf("agent never saw toggle: %v", agent.actions())
	}

	if _, err := c.Relay(ctx, Command{Action: "dropTables", PageID: id}); err == nil {
		t.Fatal("unknown action must error")
	} else if !strings.Contains(err.Error(), "unknown action") {
		t.Errorf("error: %v", err)
	}
}

func TestCoordinator_RelayUnknownPage(t *testing.T) {
	c := newCoordinator(t, &fakeInjector{}, nil)
	if _, err := c.Relay(context.Background(), Command{Action: "refreshTOC", PageID: "nope"}); err == nil {
		t.Fatal("expected unknown page error")
	}
}

func TestCoordinator_NavigationInvalidates(t *testing.T) {
	ctx := context.Background()
	inj := &fakeInjector{}
	c := newCoordinator(t, inj, nil)

	id, _ := c.Attach(ctx, "https://example.com/a")
	first, _ := c.EnsureInjected(ctx, id)

	c.PageNavigated(id, "https://example.com/b")
	rec, _ := c.Page(id)
	if rec.ConfirmedInjected {
		t.Error("navigation must clear confirmation")
	}
	if rec.URL != "https://example.com/b" {
		t.Errorf("url: got %q", rec.URL)
	}
	if !first.(*fakeAgent).stopped {
		t.Error("old agent not stopped")
	}

	if _, err := c.EnsureInjected(ctx, id); err != nil {
		t.Fatalf("re-ensure: %v", err)
	}
	if inj.count() != 2 {
		t.Errorf("injects: got %d, want 2", inj.count())
	}
}

func TestCoordinator_PageClosed(t *testing.T) {
	ctx := context.Background()
	inj := &fakeInjector{}
	c := newCoordinator(t, inj, nil)

	id, _ := c.Attach(ctx, "https://example.com/")
	agent, _ := c.EnsureInjected(ctx, id)

	c.PageClosed(id)
	if !agent.(*fakeAgent).stopped {
		t.Error("agent not stopped on close")
	}
	if _, ok := c.Page(id); ok {
		t.Error("closed page still tracked")
	}
	if len(c.Pages()) != 0 {
		t.Errorf("pages: got %d, want 0", len(c.Pages()))
	}
}

func TestCoordinator_SubscribeReceivesRefreshUpdates(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(t, &fakeInjector{}, nil)

	ch, cancel := c.Subscribe()
	defer cancel()

	id, _ := c.Attach(ctx, "https://example.com/")
	if _, err := c.Relay(ctx, Command{Action: "refreshTOC", PageID: id}); err != nil {
		t.Fatal(err)
	}

	select {
	case u := <-ch:
		if u.PageID != id || len(u.Headings) != 1 {
			t.Errorf("update: %+v", u)
		}
	case <-time.After(time.Second):
		t.Fatal("no update published")
	}
}

func TestCoordinator_InjectError(t *testing.T) {
	ctx := context.Background()
	inj := &fakeInjector{err: errors.New("tab crashed")}
	c := newCoordinator(t, inj, nil)

	id, _ := c.Attach(ctx, "https://example.com/")
	if _, err := c.EnsureInjected(ctx, id); err == nil {
		t.Fatal("expected inject error")
	}
}
