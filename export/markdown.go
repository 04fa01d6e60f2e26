// Package export turns an extracted table of contents into portable
// formats.
package export

import (
	"fmt"
	"html"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"

	"github.com/EaziSpace/gen-toc/headings"
)

// Exporter converts heading lists to markdown. Safe for concurrent use.
type Exporter struct {
	conv *converter.Converter
}

// New creates an Exporter.
func New() *Exporter {
	return &Exporter{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// Markdown renders the headings as a nested markdown list, optionally
// preceded by the page title. Levels nest relative to the shallowest
// heading present, so a page that starts at h2 still produces a flat
// top level.
func (e *Exporter) Markdown(title string, recs []headings.Record) (string, error) {
	frag := listHTML(title, recs)
	md, err := e.conv.ConvertString(frag)
	if err != nil {
		return "", fmt.Errorf("export: convert: %w", err)
	}
	return strings.TrimSpace(md) + "\n", nil
}

// listHTML builds the intermediate HTML the converter consumes: a ul tree
// nested by heading level.
func listHTML(title string, recs []headings.Record) string {
	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "<h1>%s</h1>", html.EscapeString(title))
	}
	if len(recs) == 0 {
		return b.String()
	}

	min := recs[0].Level
	for _, r := range recs {
		if r.Level < min {
			min = r.Level
		}
	}

	depth := 0
	for _, r := range recs {
		want := r.Level - min + 1
		for depth < want {
			b.WriteString("<ul>")
			depth++
		}
		for depth > want {
			b.WriteString("</ul>")
			depth--
		}
		fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(r.Text))
	}
	for depth > 0 {
		b.WriteString("</ul>")
		depth--
	}
	return b.String()
}
