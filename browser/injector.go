package browser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/EaziSpace/gen-toc/coordinator"
	"github.com/EaziSpace/gen-toc/pageagent"
	"github.com/EaziSpace/gen-toc/sidebar"
)

// Injector opens a tab for a page and puts an agent on it. It satisfies
// coordinator.Injector.
type Injector struct {
	mgr       *Manager
	store     sidebar.StateStore
	log       *slog.Logger
	intervals pageagent.Intervals
}

// NewInjector creates an Injector. All agents share the preference store.
func NewInjector(mgr *Manager, store sidebar.StateStore, log *slog.Logger, iv pageagent.Intervals) *Injector {
	if log == nil {
		log = slog.Default()
	}
	return &Injector{mgr: mgr, store: store, log: log, intervals: iv}
}

// Inject opens the page in a tab, installs the collector, and starts an
// agent on it. The returned client owns the tab: Stop closes it.
func (i *Injector) Inject(ctx context.Context, pageID, pageURL string, allowed bool) (coordinator.AgentClient, error) {
	tab, err := OpenTab(ctx, i.mgr, pageURL, pageID)
	if err != nil {
		return nil, err
	}

	surf, err := NewSurface(ctx, tab, i.log)
	if err != nil {
		tab.Close()
		return nil, err
	}

	agent, err := pageagent.New(pageagent.Config{
		Surface:   surf,
		Store:     i.store,
		Logger:    i.log,
		Intervals: i.intervals,
		Allowed:   allowed,
	})
	if err != nil {
		surf.Close()
		return nil, err
	}
	if err := agent.Start(ctx); err != nil {
		surf.Close()
		return nil, fmt.Errorf("browser: start agent: %w", err)
	}

	i.log.Info("agent injected", "page_id", pageID, "url", pageURL)
	return &injectedAgent{Agent: agent, surface: surf}, nil
}

// injectedAgent couples an agent with the surface it runs on so both are
// torn down together.
type injectedAgent struct {
	*pageagent.Agent
	surface *Surface
}

func (ia *injectedAgent) Stop() {
	ia.Agent.Stop()
	ia.surface.Close()
}
