package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod/lib/proto"

	"github.com/EaziSpace/gen-toc/headings"
	"github.com/EaziSpace/gen-toc/page"
)

//go:embed collector.js
var collectorJS string

const bindingName = "__gentoc_binding"

// Surface implements page.Surface on a live tab. Page signals arrive
// through the collector script's CDP binding.
type Surface struct {
	tab    *Tab
	log    *slog.Logger
	cancel context.CancelFunc

	mu     sync.Mutex
	events chan page.Event
	closed bool
}

// NewSurface installs the binding and collector script on the tab and
// starts relaying its events.
func NewSurface(ctx context.Context, tab *Tab, log *slog.Logger) (*Surface, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Surface{
		tab:    tab,
		log:    log.With("url", tab.PageURL),
		events: make(chan page.Event, 256),
	}

	if err := (proto.RuntimeAddBinding{Name: bindingName}.Call(tab.Page)); err != nil {
		// Already present after a previous injection on this page.
		s.log.Warn("browser: add binding failed", "error", err)
	}

	evCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.listenBinding(evCtx)

	if _, err := tab.Page.Eval(collectorJS); err != nil {
		cancel()
		return nil, fmt.Errorf("browser: inject collector: %w", err)
	}
	return s, nil
}

func (s *Surface) URL() string { return s.tab.PageURL }

func (s *Surface) DocumentHTML(ctx context.Context) (string, error) {
	res, err := s.tab.Page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: document html: %w", err)
	}
	return res.Value.Str(), nil
}

func (s *Surface) BodyLength(ctx context.Context) (int, error) {
	res, err := s.tab.Page.Context(ctx).Eval(`() => document.body ? document.body.innerHTML.length : 0`)
	if err != nil {
		return 0, fmt.Errorf("browser: body length: %w", err)
	}
	return res.Value.Int(), nil
}

func (s *Surface) ApplyHeadingIDs(ctx context.Context, scope headings.Scope, assigns []headings.Assignment) error {
	type jsAssign struct {
		Ordinal int    `json:"ordinal"`
		ID      string `json:"id"`
	}
	list := make([]jsAssign, len(assigns))
	for i, a := range assigns {
		list[i] = jsAssign{Ordinal: a.Ordinal, ID: a.ID}
	}
	assignJSON, _ := json.Marshal(list)
	selJSON, _ := json.Marshal(scope.Selector)

	// Replays the extraction query: same selector, same ordinal space.
	js := fmt.Sprintf(`() => {
		const scopeSel = %s, wholeDoc = %t, maxLevel = %d, assigns = %s;
		let root = document;
		if (!wholeDoc && scopeSel) {
			const c = document.querySelector(scopeSel);
			if (c) root = c;
		}
		const sel = Array.from({length: maxLevel}, (_, i) => 'h' + (i + 1)).join(',');
		const nodes = root.querySelectorAll(sel);
		for (const a of assigns) {
			const n = nodes[a.ordinal];
			if (n && !n.id) n.id = a.id;
		}
	}`, selJSON, scope.WholeDoc, scope.MaxLevel, assignJSON)

	if _, err := s.tab.Page.Context(ctx).Eval(js); err != nil {
		return fmt.Errorf("browser: apply heading ids: %w", err)
	}
	return nil
}

func (s *Surface) HeadingOffsets(ctx context.Context, ids []string) (map[string]float64, error) {
	idJSON, _ := json.Marshal(ids)
	js := fmt.Sprintf(`() => {
		const out = {};
		for (const id of %s) {
			const el = document.getElementById(id);
			if (el) out[id] = el.getBoundingClientRect().top + window.scrollY;
		}
		return out;
	}`, idJSON)

	res, err := s.tab.Page.Context(ctx).Eval(js)
	if err != nil {
		return nil, fmt.Errorf("browser: heading offsets: %w", err)
	}
	out := make(map[string]float64, len(ids))
	for id, v := range res.Value.Map() {
		out[id] = v.Num()
	}
	return out, nil
}

func (s *Surface) ApplySidebar(ctx context.Context, fragment string) error {
	fragJSON, _ := json.Marshal(fragment)
	// One outerHTML swap (or one insertAdjacentHTML on first render), so
	// the page never sees a partial panel.
	js := fmt.Sprintf(`() => {
		const html = %s;
		const existing = document.getElementById('gentoc-root');
		if (existing) {
			existing.outerHTML = html;
		} else {
			document.body.insertAdjacentHTML('beforeend', html);
		}
	}`, fragJSON)

	if _, err := s.tab.Page.Context(ctx).Eval(js); err != nil {
		return fmt.Errorf("browser: apply sidebar: %w", err)
	}
	return nil
}

func (s *Surface) SidebarPresent(ctx context.Context) (bool, error) {
	res, err := s.tab.Page.Context(ctx).Eval(`() => !!document.getElementById('gentoc-root')`)
	if err != nil {
		return false, fmt.Errorf("browser: probe sidebar: %w", err)
	}
	return res.Value.Bool(), nil
}

func (s *Surface) ScrollToHeading(ctx context.Context, id string) (bool, error) {
	idJSON, _ := json.Marshal(id)
	js := fmt.Sprintf(`() => {
		const el = document.getElementById(%s);
		if (!el) return false;
		el.scrollIntoView({behavior: 'smooth', block: 'start'});
		el.classList.add('gentoc-highlight');
		setTimeout(() => el.classList.remove('gentoc-highlight'), 1500);
		return true;
	}`, idJSON)

	res, err := s.tab.Page.Context(ctx).Eval(js)
	if err != nil {
		return false, fmt.Errorf("browser: scroll to heading: %w", err)
	}
	return res.Value.Bool(), nil
}

func (s *Surface) ScrollToOffset(ctx context.Context, y float64) error {
	js := fmt.Sprintf(`() => window.scrollTo({top: %v, behavior: 'smooth'})`, y)
	if _, err := s.tab.Page.Context(ctx).Eval(js); err != nil {
		return fmt.Errorf("browser: scroll to offset: %w", err)
	}
	return nil
}

func (s *Surface) Events() <-chan page.Event { return s.events }

// Close stops the event relay and closes the tab.
func (s *Surface) Close() error {
	s.cancel()
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()
	return s.tab.Close()
}

// listenBinding receives collector calls via Runtime.bindingCalled and
// translates them into page events.
func (s *Surface) listenBinding(ctx context.Context) {
	s.tab.Page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		var entries []struct {
			Kind    string `json:"kind"`
			Op      string `json:"op"`
			Tag     string `json:"tag"`
			HTML    string `json:"html"`
			Active  bool   `json:"active"`
			Visible bool   `json:"visible"`
			URL     string `json:"url"`
			ID      string `json:"id"`
		}
		if err := json.Unmarshal([]byte(e.Payload), &entries); err != nil {
			s.log.Warn("browser: parse binding payload", "error", err)
			return
		}

		var muts []page.Mutation
		for _, en := range entries {
			switch en.Kind {
			case "mutation":
				muts = append(muts, page.Mutation{
					Op:   page.Op(en.Op),
					Tag:  en.Tag,
					HTML: en.HTML,
				})
			case "interaction":
				s.push(page.InteractionEvent{Active: en.Active})
			case "visibility":
				s.push(page.VisibilityEvent{Visible: en.Visible})
			case "load":
				s.push(page.LoadEvent{})
			case "navigate":
				s.push(page.NavigationEvent{URL: en.URL})
			case "click":
				s.push(page.EntryClickEvent{HeadingID: en.ID})
			case "toggle":
				s.push(page.ToggleRequestEvent{})
			case "move":
				s.push(page.MoveRequestEvent{})
			}
		}
		if len(muts) > 0 {
			s.push(page.MutationEvent{Records: muts})
		}
	})()
}

// push delivers without blocking the CDP event goroutine. A full channel
// drops the event; the sweep backstop covers the loss.
func (s *Surface) push(ev page.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.log.Warn("browser: event channel full, dropping", "event", fmt.Sprintf("%T", ev))
	}
}
