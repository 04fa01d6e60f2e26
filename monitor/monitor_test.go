package monitor

import (
	"testing"
	"time"

	"github.com/EaziSpace/gen-toc/page"
)

func TestDebouncer_TrailingEdge(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	if d.C() != nil {
		t.Fatal("C before first Trigger: want nil channel")
	}

	d.Trigger()
	time.Sleep(10 * time.Millisecond)
	d.Trigger() // restarts the window

	select {
	case <-d.C():
		t.Fatal("fired before the restarted window elapsed")
	case <-time.After(15 * time.Millisecond):
	}

	select {
	case <-d.C():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("never fired after quiet window")
	}
	if !d.Fire() {
		t.Error("Fire: got false, want true")
	}
	if d.Fire() {
		t.Error("second Fire: got true, want false")
	}
	if d.C() != nil {
		t.Error("C after Fire: want nil channel")
	}
}

func TestDebouncer_Stop(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	d.Trigger()
	d.Stop()
	if d.C() != nil {
		t.Error("C after Stop: want nil channel")
	}
	if d.Fire() {
		t.Error("Fire after Stop: got true, want false")
	}
}

func TestRelevant(t *testing.T) {
	cases := []struct {
		name string
		recs []page.Mutation
		want bool
	}{
		{"direct heading insert", []page.Mutation{{Op: page.OpInsert, Tag: "h2"}}, true},
		{"direct heading remove", []page.Mutation{{Op: page.OpRemove, Tag: "H3"}}, true},
		{"nested heading in subtree", []page.Mutation{
			{Op: page.OpInsert, Tag: "div", HTML: `<div><section><h2>Hi</h2></section></div>`},
		}, true},
		{"plain div churn", []page.Mutation{
			{Op: page.OpInsert, Tag: "div", HTML: `<div><p>text</p></div>`},
		}, false},
		{"heading beyond max level", []page.Mutation{{Op: page.OpInsert, Tag: "h4"}}, false},
		{"empty batch", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Relevant(tc.recs, 3); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSweeper(t *testing.T) {
	s := NewSweeper(100)

	if s.Observe(1000) {
		t.Error("first observation must only prime the baseline")
	}
	if s.Observe(1050) {
		t.Error("delta 50 under threshold: want false")
	}
	if !s.Observe(1200) {
		t.Error("delta 150 over threshold: want true")
	}
	if !s.Observe(1000) {
		t.Error("shrink by 200: want true")
	}
}

func TestSweeper_Paused(t *testing.T) {
	s := NewSweeper(100)
	s.Observe(1000)
	s.Pause(true)
	if s.Observe(5000) {
		t.Error("paused sweep must not recommend refresh")
	}
	s.Pause(false)
	if !s.Observe(5000) {
		t.Error("baseline must survive the pause; delta 4000 wants true")
	}
}

func TestSweeper_Reset(t *testing.T) {
	s := NewSweeper(100)
	s.Observe(1000)
	s.Reset()
	if s.Observe(9000) {
		t.Error("first observation after Reset must only re-prime")
	}
}

func TestInteraction_AutoReset(t *testing.T) {
	i := NewInteraction(10 * time.Second)
	now := time.Unix(1000, 0)
	i.now = func() time.Time { return now }

	i.Set(true)
	if !i.Active() {
		t.Fatal("just engaged: want active")
	}

	now = now.Add(9 * time.Second)
	if !i.Active() {
		t.Error("9s in: want still active")
	}

	now = now.Add(2 * time.Second)
	if i.Active() {
		t.Error("11s without release: want auto-reset to inactive")
	}
}

func TestInteraction_Release(t *testing.T) {
	i := NewInteraction(10 * time.Second)
	i.Set(true)
	i.Set(false)
	if i.Active() {
		t.Error("released: want inactive")
	}
}

func TestAutoRefresh_StopsEarlyOnFound(t *testing.T) {
	a := NewAutoRefresh(3, 3*time.Second)

	delay, ok := a.Start()
	if !ok || delay != 3*time.Second {
		t.Fatalf("Start: got (%v, %v), want (3s, true)", delay, ok)
	}
	if _, ok := a.Next(true); ok {
		t.Error("found on first attempt: sequence must stop")
	}
	if a.Running() {
		t.Error("Running after stop: want false")
	}
}

func TestAutoRefresh_ExhaustsAttempts(t *testing.T) {
	a := NewAutoRefresh(3, time.Second)
	a.Start()
	if _, ok := a.Next(false); !ok {
		t.Fatal("attempt 1 empty: want another attempt")
	}
	if _, ok := a.Next(false); !ok {
		t.Fatal("attempt 2 empty: want another attempt")
	}
	if _, ok := a.Next(false); ok {
		t.Fatal("attempt 3 empty: budget exhausted, want stop")
	}
}
