package monitor

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/EaziSpace/gen-toc/page"
)

// Relevant reports whether any mutation added or removed a heading element
// (level 1..maxLevel) or a subtree containing one. Only relevant changes
// are worth a refresh; attribute and text churn is ignored upstream.
func Relevant(records []page.Mutation, maxLevel int) bool {
	for _, rec := range records {
		if rec.Op != page.OpInsert && rec.Op != page.OpRemove {
			continue
		}
		if isHeadingTag(rec.Tag, maxLevel) {
			return true
		}
		if rec.HTML != "" && fragmentHasHeading(rec.HTML, maxLevel) {
			return true
		}
	}
	return false
}

func isHeadingTag(tag string, maxLevel int) bool {
	tag = strings.ToLower(tag)
	if len(tag) != 2 || tag[0] != 'h' {
		return false
	}
	lvl := int(tag[1] - '0')
	return lvl >= 1 && lvl <= maxLevel
}

// fragmentHasHeading parses a serialised subtree and walks it for heading
// descendants.
func fragmentHasHeading(frag string, maxLevel int) bool {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(frag), ctx)
	if err != nil {
		return false
	}
	for _, n := range nodes {
		if subtreeHasHeading(n, maxLevel) {
			return true
		}
	}
	return false
}

func subtreeHasHeading(n *html.Node, maxLevel int) bool {
	if n.Type == html.ElementNode && isHeadingTag(n.Data, maxLevel) {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if subtreeHasHeading(c, maxLevel) {
			return true
		}
	}
	return false
}
