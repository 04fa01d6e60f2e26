package export

import (
	"strings"
	"testing"

	"github.com/EaziSpace/gen-toc/headings"
)

func TestMarkdown_NestedList(t *testing.T) {
	e := New()
	md, err := e.Markdown("Guide", []headings.Record{
		{Text: "Intro", Level: 1},
		{Text: "Setup", Level: 2},
		{Text: "Install", Level: 3},
		{Text: "Usage", Level: 2},
	})
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}

	if !strings.Contains(md, "# Guide") {
		t.Errorf("missing title:\n%s", md)
	}
	if !strings.Contains(md, "- Intro") {
		t.Errorf("missing top entry:\n%s", md)
	}
	iSetup := strings.Index(md, "Setup")
	iInstall := strings.Index(md, "Install")
	if iSetup < 0 || iInstall < 0 || iInstall < iSetup {
		t.Fatalf("order lost:\n%s", md)
	}
	// Install sits one level deeper than Setup.
	setupLine := lineOf(md, "Setup")
	installLine := lineOf(md, "Install")
	if indent(installLine) <= indent(setupLine) {
		t.Errorf("nesting lost:\nsetup: %q\ninstall: %q", setupLine, installLine)
	}
}

func TestMarkdown_RelativeNesting(t *testing.T) {
	e := New()
	md, err := e.Markdown("", []headings.Record{
		{Text: "First", Level: 2},
		{Text: "Second", Level: 2},
	})
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	first := lineOf(md, "First")
	if indent(first) != 0 {
		t.Errorf("h2-only page must start flat: %q", first)
	}
}

func TestMarkdown_EscapesText(t *testing.T) {
	e := New()
	md, err := e.Markdown("", []headings.Record{
		{Text: "<script>alert(1)</script> & more", Level: 1},
	})
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if strings.Contains(md, "<script>") {
		t.Errorf("markup leaked:\n%s", md)
	}
	if !strings.Contains(md, "more") {
		t.Errorf("text lost:\n%s", md)
	}
}

func TestMarkdown_Empty(t *testing.T) {
	e := New()
	md, err := e.Markdown("Only Title", nil)
	if err != nil {
		t.Fatalf("Markdown: %v", err)
	}
	if !strings.Contains(md, "# Only Title") {
		t.Errorf("got:\n%s", md)
	}
}

func lineOf(s, substr string) string {
	for _, line := range strings.Split(s, "\n") {
		if strings.Contains(line, substr) {
			return line
		}
	}
	return ""
}

func indent(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}
