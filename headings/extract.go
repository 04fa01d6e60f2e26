package headings

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultContainers is the container preference list, evaluated in order.
// Explicit content ids first, then semantic tags, then class hints, with
// the document body as last resort.
var DefaultContainers = []string{
	"#content",
	"#main-content",
	"#article",
	"main",
	"article",
	".content",
	".post-content",
	".article-body",
	"body",
}

// DefaultIDPrefix is the prefix for generated anchor ids.
const DefaultIDPrefix = "toc-heading-"

// Options controls extraction behaviour.
type Options struct {
	// MaxLevel is the deepest heading level to extract. Default: 3.
	MaxLevel int
	// IDPrefix for generated anchor ids. Default: "toc-heading-".
	IDPrefix string
	// Containers overrides the container preference list.
	Containers []string
}

func (o *Options) defaults() {
	if o.MaxLevel < 1 || o.MaxLevel > 4 {
		o.MaxLevel = 3
	}
	if o.IDPrefix == "" {
		o.IDPrefix = DefaultIDPrefix
	}
	if len(o.Containers) == 0 {
		o.Containers = DefaultContainers
	}
}

// Extract locates the content container and returns the heading records in
// document order. Whitespace-only headings are skipped. Headings without an
// id get a generated one recorded in Result.Assigned; headings that already
// carry an id keep it.
func Extract(doc *html.Node, opts Options) *Result {
	opts.defaults()

	container, selector := FindContainer(doc, opts.Containers)
	if container == nil {
		container, selector = doc, ""
	}

	scope := Scope{Selector: selector, MaxLevel: opts.MaxLevel}
	matched := QueryHeadings(container, opts.MaxLevel)
	if len(matched) == 0 && container != doc {
		// Scoped precision found nothing; fall back to whole-document
		// recall.
		matched = QueryHeadings(doc, opts.MaxLevel)
		scope.WholeDoc = true
		scope.Selector = ""
	}

	res := &Result{Scope: scope}
	for i, n := range matched {
		text := strings.TrimSpace(collectText(n))
		if text == "" {
			continue
		}
		id := nodeID(n)
		if id == "" {
			id = fmt.Sprintf("%s%d", opts.IDPrefix, i)
			setNodeID(n, id)
			res.Assigned = append(res.Assigned, Assignment{Ordinal: i, ID: id})
		}
		res.Records = append(res.Records, Record{
			Text:  text,
			Level: headingLevel(n),
			ID:    id,
		})
	}
	return res
}

// FindContainer evaluates the selector list in order and returns the first
// matching element along with the selector that matched.
func FindContainer(doc *html.Node, selectors []string) (*html.Node, string) {
	for _, sel := range selectors {
		if n := findFirst(doc, sel); n != nil {
			return n, sel
		}
	}
	return nil, ""
}

// QueryHeadings returns all heading elements of level 1..maxLevel under
// scope, in document order. The index of each element in the returned slice
// is its ordinal for id assignment.
func QueryHeadings(scope *html.Node, maxLevel int) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if lvl := headingLevel(n); lvl > 0 && lvl <= maxLevel {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(scope)
	return out
}

// ElementByID returns the element with the given id attribute, or nil.
func ElementByID(doc *html.Node, id string) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && nodeID(n) == id {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

// headingLevel returns 1–6 for h1–h6 elements and 0 for anything else.
func headingLevel(n *html.Node) int {
	if n == nil || n.Type != html.ElementNode {
		return 0
	}
	switch n.DataAtom {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

// collectText extracts all visible text from a node subtree.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func nodeID(n *html.Node) string {
	for _, a := range n.Attr {
		if a.Key == "id" {
			return a.Val
		}
	}
	return ""
}

func setNodeID(n *html.Node, id string) {
	n.Attr = append(n.Attr, html.Attribute{Key: "id", Val: id})
}

// findFirst returns the first element matching a simple selector: "#id",
// ".class" or a bare tag name. The container preference list only needs
// these three forms.
func findFirst(doc *html.Node, sel string) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && matchSelector(n, sel) {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

func matchSelector(n *html.Node, sel string) bool {
	switch {
	case strings.HasPrefix(sel, "#"):
		return nodeID(n) == sel[1:]
	case strings.HasPrefix(sel, "."):
		for _, a := range n.Attr {
			if a.Key == "class" {
				for _, c := range strings.Fields(a.Val) {
					if c == sel[1:] {
						return true
					}
				}
			}
		}
		return false
	default:
		return n.Data == sel && n.Type == html.ElementNode
	}
}
