package headings

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func parse(t *testing.T, src string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestExtract_DocumentOrderAndLevels(t *testing.T) {
	doc := parse(t, `<html><body><main>
		<h1>Title</h1>
		<p>intro</p>
		<h2>Section <em>One</em></h2>
		<h3>Detail</h3>
		<h2>Section Two</h2>
	</main></body></html>`)

	res := Extract(doc, Options{})

	want := []struct {
		text  string
		level int
	}{
		{"Title", 1},
		{"Section One", 2},
		{"Detail", 3},
		{"Section Two", 2},
	}
	if len(res.Records) != len(want) {
		t.Fatalf("records: got %d, want %d", len(res.Records), len(want))
	}
	for i, w := range want {
		if res.Records[i].Text != w.text {
			t.Errorf("record[%d].Text: got %q, want %q", i, res.Records[i].Text, w.text)
		}
		if res.Records[i].Level != w.level {
			t.Errorf("record[%d].Level: got %d, want %d", i, res.Records[i].Level, w.level)
		}
	}
	if res.Scope.Selector != "main" {
		t.Errorf("scope selector: got %q, want %q", res.Scope.Selector, "main")
	}
	if res.Scope.WholeDoc {
		t.Error("scope: whole-doc fallback should not trigger")
	}
}

func TestExtract_SkipsWhitespaceOnlyHeadings(t *testing.T) {
	doc := parse(t, `<html><body><article>
		<h1>  </h1>
		<h2>
		</h2>
		<h2>Real</h2>
	</article></body></html>`)

	res := Extract(doc, Options{})
	if len(res.Records) != 1 {
		t.Fatalf("records: got %d, want 1", len(res.Records))
	}
	if res.Records[0].Text != "Real" {
		t.Errorf("Text: got %q, want %q", res.Records[0].Text, "Real")
	}
}

func TestExtract_IdempotentIDAssignment(t *testing.T) {
	doc := parse(t, `<html><body><main>
		<h1 id="keep-me">Kept</h1>
		<h2>Generated</h2>
	</main></body></html>`)

	first := Extract(doc, Options{})
	second := Extract(doc, Options{})

	if first.Records[0].ID != "keep-me" {
		t.Errorf("existing id: got %q, want %q", first.Records[0].ID, "keep-me")
	}
	if first.Records[1].ID != "toc-heading-1" {
		t.Errorf("generated id: got %q, want %q", first.Records[1].ID, "toc-heading-1")
	}
	for i := range first.Records {
		if first.Records[i].ID != second.Records[i].ID {
			t.Errorf("record[%d]: id changed across runs: %q vs %q",
				i, first.Records[i].ID, second.Records[i].ID)
		}
	}
	if len(first.Assigned) != 1 {
		t.Fatalf("first run assigned: got %d, want 1", len(first.Assigned))
	}
	if len(second.Assigned) != 0 {
		t.Errorf("second run assigned: got %d, want 0", len(second.Assigned))
	}
}

func TestExtract_WholeDocumentFallback(t *testing.T) {
	// The matched container (main) has no headings, but the footer does.
	doc := parse(t, `<html><body>
		<main><p>no headings here</p></main>
		<div><h2>Outside</h2></div>
	</body></html>`)

	res := Extract(doc, Options{Containers: []string{"main"}})
	if !res.Scope.WholeDoc {
		t.Fatal("expected whole-document fallback")
	}
	if len(res.Records) != 1 || res.Records[0].Text != "Outside" {
		t.Fatalf("records: got %+v, want one %q entry", res.Records, "Outside")
	}
}

func TestExtract_ContainerPriority(t *testing.T) {
	doc := parse(t, `<html><body>
		<div id="content"><h2>In content</h2></div>
		<main><h2>In main</h2></main>
	</body></html>`)

	res := Extract(doc, Options{})
	if len(res.Records) != 1 {
		t.Fatalf("records: got %d, want 1", len(res.Records))
	}
	if res.Records[0].Text != "In content" {
		t.Errorf("Text: got %q, want %q (explicit id beats semantic tag)",
			res.Records[0].Text, "In content")
	}
}

func TestExtract_MaxLevel(t *testing.T) {
	doc := parse(t, `<html><body><main>
		<h1>A</h1><h4>Deep</h4><h5>Deeper</h5>
	</main></body></html>`)

	res := Extract(doc, Options{MaxLevel: 4})
	if len(res.Records) != 2 {
		t.Fatalf("records: got %d, want 2", len(res.Records))
	}
	if res.Records[1].Level != 4 {
		t.Errorf("Level: got %d, want 4", res.Records[1].Level)
	}

	res = Extract(parse(t, `<html><body><main><h1>A</h1><h4>Deep</h4></main></body></html>`), Options{})
	if len(res.Records) != 1 {
		t.Errorf("default max level: got %d records, want 1 (h4 excluded)", len(res.Records))
	}
}

func TestExtract_DuplicateTextKept(t *testing.T) {
	doc := parse(t, `<html><body><main>
		<h2>Repeated</h2><h2>Repeated</h2>
	</main></body></html>`)

	res := Extract(doc, Options{})
	if len(res.Records) != 2 {
		t.Fatalf("records: got %d, want 2 (no de-duplication)", len(res.Records))
	}
	if res.Records[0].ID == res.Records[1].ID {
		t.Errorf("ids must differ: both %q", res.Records[0].ID)
	}
}

func TestElementByID(t *testing.T) {
	doc := parse(t, `<html><body><h2 id="x">X</h2></body></html>`)
	if n := ElementByID(doc, "x"); n == nil {
		t.Fatal("ElementByID(x): got nil")
	}
	if n := ElementByID(doc, "missing"); n != nil {
		t.Fatal("ElementByID(missing): expected nil")
	}
}
